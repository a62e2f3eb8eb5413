package storage

import (
	"context"

	"github.com/nvoloshyn/placedesk/libs/db"
)

// NotifySettings controls how the place owner is alerted about new customer
// messages. Disabled or missing settings mean no notify job is enqueued.
type NotifySettings struct {
	PlaceID   string `json:"place_id"`
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Enabled   bool   `json:"enabled"`
}

type SettingsRepository struct {
	pool *db.Pool
}

func NewSettingsRepository(pool *db.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

func (r *SettingsRepository) Get(ctx context.Context, placeID string) (NotifySettings, error) {
	var s NotifySettings
	err := r.pool.QueryRow(ctx, `
		SELECT place_id::text, channel, recipient, enabled
		FROM place_notify_settings
		WHERE place_id = $1
	`, placeID).Scan(&s.PlaceID, &s.Channel, &s.Recipient, &s.Enabled)
	return s, err
}

func (r *SettingsRepository) Upsert(ctx context.Context, s NotifySettings) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO place_notify_settings (place_id, channel, recipient, enabled)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (place_id) DO UPDATE
		SET channel = EXCLUDED.channel,
			recipient = EXCLUDED.recipient,
			enabled = EXCLUDED.enabled,
			updated_at = now()
	`, s.PlaceID, s.Channel, s.Recipient, s.Enabled)
	return err
}
