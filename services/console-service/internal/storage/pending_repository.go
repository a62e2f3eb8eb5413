package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nvoloshyn/placedesk/libs/db"
	"github.com/nvoloshyn/placedesk/services/console-service/internal/upgrade"
)

// PendingRepository stores upgrade signals that survive the redirect to the
// plan page. Consume deletes and returns in one statement so the token is
// one-shot even with concurrent resumes.
type PendingRepository struct {
	pool *db.Pool
}

func NewPendingRepository(pool *db.Pool) *PendingRepository {
	return &PendingRepository{pool: pool}
}

func (r *PendingRepository) Create(ctx context.Context, p upgrade.PendingUpgrade) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO pending_upgrades (token, account_id, place_id, feature, plan)
		VALUES ($1, $2, $3, $4, $5)
	`, p.Token, p.AccountID, p.PlaceID, string(p.Feature), p.Plan)
	return err
}

func (r *PendingRepository) Consume(ctx context.Context, token string) (upgrade.PendingUpgrade, bool, error) {
	var p upgrade.PendingUpgrade
	var feature string
	err := r.pool.QueryRow(ctx, `
		DELETE FROM pending_upgrades
		WHERE token = $1
		RETURNING token, account_id, place_id, feature, plan, created_at
	`, token).Scan(&p.Token, &p.AccountID, &p.PlaceID, &feature, &p.Plan, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return upgrade.PendingUpgrade{}, false, nil
	}
	if err != nil {
		return upgrade.PendingUpgrade{}, false, err
	}
	p.Feature = upgrade.Feature(feature)
	return p, true, nil
}

// PurgeOlderThan drops abandoned signals so the table does not grow without
// bound when users never return from the plan page.
func (r *PendingRepository) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM pending_upgrades
		WHERE created_at < now() - $1::interval
	`, age.String())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
