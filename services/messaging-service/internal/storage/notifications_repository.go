package storage

import (
	"context"
	"encoding/json"

	"github.com/nvoloshyn/placedesk/libs/db"
)

type Notification struct {
	ThreadID  string
	PlaceID   string
	Channel   string
	Recipient string
	Payload   map[string]any
	Status    string
}

type NotificationsRepository struct {
	pool *db.Pool
}

func NewNotificationsRepository(pool *db.Pool) *NotificationsRepository {
	return &NotificationsRepository{pool: pool}
}

func (r *NotificationsRepository) Insert(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications (thread_id, place_id, channel, recipient, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.ThreadID, n.PlaceID, n.Channel, n.Recipient, payload, n.Status)
	return err
}
