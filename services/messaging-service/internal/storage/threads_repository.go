package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nvoloshyn/placedesk/libs/db"
)

type Thread struct {
	ID              string    `json:"id"`
	PlaceID         string    `json:"place_id"`
	CustomerName    string    `json:"customer_name"`
	CustomerContact string    `json:"customer_contact"`
	Unread          bool      `json:"unread"`
	LastMessageAt   time.Time `json:"last_message_at"`
	CreatedAt       time.Time `json:"created_at"`
}

type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type ThreadsRepository struct {
	pool *db.Pool
}

func NewThreadsRepository(pool *db.Pool) *ThreadsRepository {
	return &ThreadsRepository{pool: pool}
}

// EnsureThread returns the thread for (place, customer contact), creating it
// on first contact. A returning customer reopens the same thread.
func (r *ThreadsRepository) EnsureThread(ctx context.Context, tx pgx.Tx, placeID, customerName, customerContact string) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO message_threads (place_id, customer_name, customer_contact, unread, last_message_at)
		VALUES ($1, $2, $3, true, now())
		ON CONFLICT (place_id, customer_contact) DO UPDATE
		SET customer_name = EXCLUDED.customer_name,
			unread = true,
			last_message_at = now()
		RETURNING id::text
	`, placeID, customerName, customerContact).Scan(&id)
	return id, err
}

func (r *ThreadsRepository) AddMessage(ctx context.Context, tx pgx.Tx, threadID, sender, body string) (Message, error) {
	var m Message
	err := tx.QueryRow(ctx, `
		INSERT INTO thread_messages (thread_id, sender, body)
		VALUES ($1, $2, $3)
		RETURNING id::text, thread_id::text, sender, body, created_at
	`, threadID, sender, body).Scan(&m.ID, &m.ThreadID, &m.Sender, &m.Body, &m.CreatedAt)
	return m, err
}

// MarkRead clears the unread flag; replying does this in the same tx as the
// owner message so a crash never leaves a replied thread marked unread.
func (r *ThreadsRepository) MarkRead(ctx context.Context, tx pgx.Tx, threadID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE message_threads
		SET unread = false, last_message_at = now()
		WHERE id = $1
	`, threadID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ThreadsRepository) GetThread(ctx context.Context, threadID string) (Thread, error) {
	var t Thread
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, place_id::text, customer_name, customer_contact, unread, last_message_at, created_at
		FROM message_threads
		WHERE id = $1
	`, threadID).Scan(&t.ID, &t.PlaceID, &t.CustomerName, &t.CustomerContact, &t.Unread, &t.LastMessageAt, &t.CreatedAt)
	return t, err
}

func (r *ThreadsRepository) ListThreads(ctx context.Context, placeID string, unreadOnly bool, limit int) ([]Thread, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, place_id::text, customer_name, customer_contact, unread, last_message_at, created_at
		FROM message_threads
		WHERE place_id = $1 AND ($2 = false OR unread)
		ORDER BY last_message_at DESC
		LIMIT $3
	`, placeID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Thread
	for rows.Next() {
		var t Thread
		if err := rows.Scan(&t.ID, &t.PlaceID, &t.CustomerName, &t.CustomerContact, &t.Unread, &t.LastMessageAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *ThreadsRepository) ListMessages(ctx context.Context, threadID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, thread_id::text, sender, body, created_at
		FROM thread_messages
		WHERE thread_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, threadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Sender, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func IsNotFound(err error) bool {
	return err == pgx.ErrNoRows
}
