package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nvoloshyn/placedesk/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

type Place struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"account_id"`
	Name         string    `json:"name"`
	LocationType string    `json:"location_type"`
	Timezone     string    `json:"timezone"`
	CreatedAt    time.Time `json:"created_at"`
}

func (r *Repository) CreatePlace(ctx context.Context, accountID, name, locationType, timezone string) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO places (id, account_id, name, location_type, timezone)
		VALUES ($1, $2, $3, $4, $5)
	`, id, accountID, name, locationType, timezone)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListPlaces returns the account's places oldest first, so the first element
// is the primary place for plan-change flows.
func (r *Repository) ListPlaces(ctx context.Context, accountID string, limit int) ([]Place, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, account_id::text, name, location_type, timezone, created_at
		FROM places
		WHERE account_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Place
	for rows.Next() {
		var p Place
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Name, &p.LocationType, &p.Timezone, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) GetPlace(ctx context.Context, accountID, placeID string) (Place, error) {
	var p Place
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, account_id::text, name, location_type, timezone, created_at
		FROM places
		WHERE account_id = $1 AND id = $2
	`, accountID, placeID).Scan(&p.ID, &p.AccountID, &p.Name, &p.LocationType, &p.Timezone, &p.CreatedAt)
	return p, err
}

func (r *Repository) UpdatePlace(ctx context.Context, accountID, placeID, name, timezone string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE places
		SET name = $3, timezone = $4, updated_at = now()
		WHERE account_id = $1 AND id = $2
	`, accountID, placeID, name, timezone)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type Staff struct {
	ID       string `json:"id"`
	PlaceID  string `json:"place_id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

func (r *Repository) placeOwned(ctx context.Context, accountID, placeID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM places WHERE id = $1 AND account_id = $2
		)
	`, placeID, accountID).Scan(&exists)
	return exists, err
}

func (r *Repository) CreateStaff(ctx context.Context, accountID, placeID, name string, isActive bool) (string, error) {
	owned, err := r.placeOwned(ctx, accountID, placeID)
	if err != nil {
		return "", err
	}
	if !owned {
		return "", pgx.ErrNoRows
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO staff (place_id, name, is_active)
		VALUES ($1, $2, $3)
		RETURNING id::text
	`, placeID, name, isActive).Scan(&id)
	if err != nil {
		return "", err
	}

	// Default schedule: Mon-Fri 09:00-17:00 working, Sat/Sun closed.
	for wd := 0; wd <= 6; wd++ {
		isWorking := wd >= 1 && wd <= 5
		startMin := 540
		endMin := 1020
		if !isWorking {
			startMin = 0
			endMin = 0
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO staff_working_hours (staff_id, weekday, is_working, start_minute, end_minute)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (staff_id, weekday) DO NOTHING
		`, id, wd, isWorking, startMin, endMin); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListStaff(ctx context.Context, accountID, placeID string, limit int) ([]Staff, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT st.id::text, st.place_id::text, st.name, st.is_active
		FROM staff st
		JOIN places p ON p.id = st.place_id
		WHERE p.account_id = $1 AND st.place_id = $2
		ORDER BY st.created_at DESC
		LIMIT $3
	`, accountID, placeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Staff
	for rows.Next() {
		var s Staff
		if err := rows.Scan(&s.ID, &s.PlaceID, &s.Name, &s.IsActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

type WorkingHours struct {
	StaffID     string `json:"staff_id"`
	Weekday     int    `json:"weekday"`
	IsWorking   bool   `json:"is_working"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
}

func (r *Repository) GetWorkingHours(ctx context.Context, accountID, staffID string, weekday int) (WorkingHours, error) {
	var wh WorkingHours
	err := r.pool.QueryRow(ctx, `
		SELECT h.staff_id::text, h.weekday, h.is_working, h.start_minute, h.end_minute
		FROM staff_working_hours h
		JOIN staff st ON st.id = h.staff_id
		JOIN places p ON p.id = st.place_id
		WHERE p.account_id = $1 AND h.staff_id = $2 AND h.weekday = $3
	`, accountID, staffID, weekday).Scan(&wh.StaffID, &wh.Weekday, &wh.IsWorking, &wh.StartMinute, &wh.EndMinute)
	if err == nil {
		return wh, nil
	}
	if err == pgx.ErrNoRows {
		// Default fallback if schedule wasn't seeded.
		return WorkingHours{StaffID: staffID, Weekday: weekday, IsWorking: weekday >= 1 && weekday <= 5, StartMinute: 540, EndMinute: 1020}, nil
	}
	return WorkingHours{}, err
}

func (r *Repository) ListWorkingHours(ctx context.Context, accountID, staffID string) ([]WorkingHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT h.staff_id::text, h.weekday, h.is_working, h.start_minute, h.end_minute
		FROM staff_working_hours h
		JOIN staff st ON st.id = h.staff_id
		JOIN places p ON p.id = st.place_id
		WHERE p.account_id = $1 AND h.staff_id = $2
		ORDER BY h.weekday ASC
	`, accountID, staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WorkingHours
	for rows.Next() {
		var wh WorkingHours
		if err := rows.Scan(&wh.StaffID, &wh.Weekday, &wh.IsWorking, &wh.StartMinute, &wh.EndMinute); err != nil {
			return nil, err
		}
		out = append(out, wh)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) staffOwned(ctx context.Context, accountID, staffID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM staff st JOIN places p ON p.id = st.place_id
			WHERE st.id = $1 AND p.account_id = $2
		)
	`, staffID, accountID).Scan(&exists)
	return exists, err
}

func (r *Repository) UpsertWorkingHours(ctx context.Context, accountID, staffID string, weekday int, isWorking bool, startMinute int, endMinute int) error {
	owned, err := r.staffOwned(ctx, accountID, staffID)
	if err != nil {
		return err
	}
	if !owned {
		return pgx.ErrNoRows
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO staff_working_hours (staff_id, weekday, is_working, start_minute, end_minute)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (staff_id, weekday) DO UPDATE
		SET is_working = EXCLUDED.is_working,
			start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute
	`, staffID, weekday, isWorking, startMinute, endMinute)
	return err
}

type TimeOff struct {
	ID        string    `json:"id"`
	StaffID   string    `json:"staff_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *Repository) CreateTimeOff(ctx context.Context, accountID, staffID string, startTime, endTime time.Time, reason string) (string, error) {
	owned, err := r.staffOwned(ctx, accountID, staffID)
	if err != nil {
		return "", err
	}
	if !owned {
		return "", pgx.ErrNoRows
	}

	id := uuid.NewString()
	_, err = r.pool.Exec(ctx, `
		INSERT INTO staff_time_off (id, staff_id, start_time, end_time, reason)
		VALUES ($1, $2, $3, $4, $5)
	`, id, staffID, startTime, endTime, reason)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListTimeOff(ctx context.Context, accountID, staffID string, from, to time.Time, limit int) ([]TimeOff, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT t.id::text, t.staff_id::text, t.start_time, t.end_time, t.reason, t.created_at
		FROM staff_time_off t
		JOIN staff st ON st.id = t.staff_id
		JOIN places p ON p.id = st.place_id
		WHERE p.account_id = $1
			AND t.staff_id = $2
			AND t.end_time > $3
			AND t.start_time < $4
		ORDER BY t.start_time ASC
		LIMIT $5
	`, accountID, staffID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimeOff
	for rows.Next() {
		var t TimeOff
		if err := rows.Scan(&t.ID, &t.StaffID, &t.StartTime, &t.EndTime, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) DeleteTimeOff(ctx context.Context, accountID, timeOffID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM staff_time_off t
		USING staff st, places p
		WHERE t.staff_id = st.id
		  AND st.place_id = p.id
		  AND p.account_id = $1
		  AND t.id = $2
	`, accountID, timeOffID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
