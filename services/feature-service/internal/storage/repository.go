package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nvoloshyn/placedesk/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Pool() *db.Pool {
	return r.pool
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// ListFeatures returns stored toggle states keyed by feature name. Features
// with no row yet are simply absent.
func (r *Repository) ListFeatures(ctx context.Context, placeID string) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT feature, enabled
		FROM feature_settings
		WHERE place_id = $1
	`, placeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var feature string
		var enabled bool
		if err := rows.Scan(&feature, &enabled); err != nil {
			return nil, err
		}
		out[feature] = enabled
	}
	return out, rows.Err()
}

func (r *Repository) SetFeature(ctx context.Context, tx pgx.Tx, placeID, feature string, enabled bool) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO feature_settings (place_id, feature, enabled)
		VALUES ($1, $2, $3)
		ON CONFLICT (place_id, feature)
		DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = now()
	`, placeID, feature, enabled)
	return err
}

func (r *Repository) GetFeature(ctx context.Context, placeID, feature string) (bool, error) {
	var enabled bool
	err := r.pool.QueryRow(ctx, `
		SELECT enabled
		FROM feature_settings
		WHERE place_id = $1 AND feature = $2
	`, placeID, feature).Scan(&enabled)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return enabled, nil
}

// Entitlement is the locally cached view of a place subscription, kept
// current by the billing event consumer.
type Entitlement struct {
	PlaceID   string
	Tier      string
	Status    string
	UpdatedAt time.Time
}

func (r *Repository) GetEntitlement(ctx context.Context, placeID string) (Entitlement, bool, error) {
	var ent Entitlement
	err := r.pool.QueryRow(ctx, `
		SELECT place_id::text, tier, status, updated_at
		FROM place_entitlements
		WHERE place_id = $1
	`, placeID).Scan(&ent.PlaceID, &ent.Tier, &ent.Status, &ent.UpdatedAt)
	if IsNotFound(err) {
		return Entitlement{}, false, nil
	}
	if err != nil {
		return Entitlement{}, false, err
	}
	return ent, true, nil
}

func (r *Repository) UpsertEntitlement(ctx context.Context, tx pgx.Tx, ent Entitlement) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO place_entitlements (place_id, tier, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (place_id)
		DO UPDATE SET tier = EXCLUDED.tier,
		              status = EXCLUDED.status,
		              updated_at = now()
	`, ent.PlaceID, ent.Tier, ent.Status)
	return err
}

// RewardSettings configures the rewards program for a place.
type RewardSettings struct {
	PlaceID         string    `json:"place_id"`
	PointsPerVisit  int       `json:"points_per_visit"`
	RedeemThreshold int       `json:"redeem_threshold"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (r *Repository) GetRewardSettings(ctx context.Context, placeID string) (RewardSettings, bool, error) {
	var rs RewardSettings
	err := r.pool.QueryRow(ctx, `
		SELECT place_id::text, points_per_visit, redeem_threshold, updated_at
		FROM reward_settings
		WHERE place_id = $1
	`, placeID).Scan(&rs.PlaceID, &rs.PointsPerVisit, &rs.RedeemThreshold, &rs.UpdatedAt)
	if IsNotFound(err) {
		return RewardSettings{}, false, nil
	}
	if err != nil {
		return RewardSettings{}, false, err
	}
	return rs, true, nil
}

func (r *Repository) UpsertRewardSettings(ctx context.Context, rs RewardSettings) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reward_settings (place_id, points_per_visit, redeem_threshold)
		VALUES ($1, $2, $3)
		ON CONFLICT (place_id)
		DO UPDATE SET points_per_visit = EXCLUDED.points_per_visit,
		              redeem_threshold = EXCLUDED.redeem_threshold,
		              updated_at = now()
	`, rs.PlaceID, rs.PointsPerVisit, rs.RedeemThreshold)
	return err
}
