package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nvoloshyn/placedesk/libs/db"
	"github.com/segmentio/kafka-go"
)

// Events folds domain events into daily rollup tables. Malformed payloads
// are logged and dropped; the inbox already deduplicates replays.
type Events struct {
	pool   *db.Pool
	logger *slog.Logger
}

func NewEvents(pool *db.Pool, logger *slog.Logger) *Events {
	return &Events{pool: pool, logger: logger}
}

func (e *Events) HandleSubscriptionActivated(ctx context.Context, msg kafka.Message) error {
	var payload struct {
		PlaceID     string `json:"place_id"`
		AccountID   string `json:"account_id"`
		Tier        string `json:"tier"`
		Status      string `json:"status"`
		ActivatedAt string `json:"activated_at"`
	}
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		e.logger.Error("invalid activation payload", "err", err)
		return nil
	}
	if payload.PlaceID == "" || payload.Tier == "" {
		e.logger.Error("missing activation fields")
		return nil
	}
	day, ok := dayOf(payload.ActivatedAt)
	if !ok {
		day = time.Now().UTC()
	}

	_, err := e.pool.Exec(ctx, `
		INSERT INTO daily_plan_metrics (day, tier, activation_count)
		VALUES ($1::date, $2, 1)
		ON CONFLICT (day, tier)
		DO UPDATE SET activation_count = daily_plan_metrics.activation_count + 1,
		              updated_at = now()
	`, day, payload.Tier)
	if err != nil {
		e.logger.Error("failed to update plan metrics", "err", err)
		return err
	}

	e.logger.Info("plan activation recorded", "place_id", payload.PlaceID, "tier", payload.Tier)
	return nil
}

func (e *Events) HandleToggleApplied(ctx context.Context, msg kafka.Message) error {
	var payload struct {
		PlaceID   string `json:"place_id"`
		AccountID string `json:"account_id"`
		Feature   string `json:"feature"`
		Enabled   bool   `json:"enabled"`
	}
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		e.logger.Error("invalid toggle payload", "err", err)
		return nil
	}
	if payload.PlaceID == "" || payload.Feature == "" {
		e.logger.Error("missing toggle fields")
		return nil
	}

	enabledInc := 0
	disabledInc := 0
	if payload.Enabled {
		enabledInc = 1
	} else {
		disabledInc = 1
	}

	_, err := e.pool.Exec(ctx, `
		INSERT INTO feature_adoption_metrics (day, feature, enabled_count, disabled_count)
		VALUES ($1::date, $2, $3, $4)
		ON CONFLICT (day, feature)
		DO UPDATE SET enabled_count = feature_adoption_metrics.enabled_count + EXCLUDED.enabled_count,
		              disabled_count = feature_adoption_metrics.disabled_count + EXCLUDED.disabled_count,
		              updated_at = now()
	`, time.Now().UTC(), payload.Feature, enabledInc, disabledInc)
	if err != nil {
		e.logger.Error("failed to update adoption metrics", "err", err)
		return err
	}

	e.logger.Info("feature toggle recorded", "place_id", payload.PlaceID, "feature", payload.Feature, "enabled", payload.Enabled)
	return nil
}

func (e *Events) HandleNotificationSent(ctx context.Context, msg kafka.Message) error {
	var payload struct {
		ThreadID string `json:"thread_id"`
		PlaceID  string `json:"place_id"`
		Channel  string `json:"channel"`
		SentAt   string `json:"sent_at"`
	}
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		e.logger.Error("invalid sent payload", "err", err)
		return nil
	}
	if payload.ThreadID == "" || payload.Channel == "" || payload.SentAt == "" {
		e.logger.Error("missing sent fields")
		return nil
	}
	if _, ok := dayOf(payload.SentAt); !ok {
		e.logger.Error("invalid sent_at", "value", payload.SentAt)
		return nil
	}

	_, err := e.pool.Exec(ctx, `
		INSERT INTO notification_metrics (thread_id, place_id, channel, occurred_at, status)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, 'sent')
	`, payload.ThreadID, payload.PlaceID, payload.Channel, payload.SentAt)
	if err != nil {
		e.logger.Error("failed to write metrics", "err", err)
		return err
	}

	if err := e.bumpNotificationAggregate(ctx, payload.PlaceID, payload.Channel, payload.SentAt, 1, 0); err != nil {
		e.logger.Error("failed to update daily notification metrics", "err", err)
		return err
	}

	e.logger.Info("notification metric recorded", "thread_id", payload.ThreadID, "channel", payload.Channel)
	return nil
}

func (e *Events) HandleNotificationFailed(ctx context.Context, msg kafka.Message) error {
	var payload struct {
		ThreadID    string `json:"thread_id"`
		PlaceID     string `json:"place_id"`
		Channel     string `json:"channel"`
		ErrorReason string `json:"error_reason"`
		FailedAt    string `json:"failed_at"`
	}
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		e.logger.Error("invalid failed payload", "err", err)
		return nil
	}
	if payload.ThreadID == "" || payload.Channel == "" || payload.FailedAt == "" {
		e.logger.Error("missing failed fields")
		return nil
	}
	if _, ok := dayOf(payload.FailedAt); !ok {
		e.logger.Error("invalid failed_at", "value", payload.FailedAt)
		return nil
	}

	_, err := e.pool.Exec(ctx, `
		INSERT INTO notification_metrics (thread_id, place_id, channel, occurred_at, status)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, 'failed')
	`, payload.ThreadID, payload.PlaceID, payload.Channel, payload.FailedAt)
	if err != nil {
		e.logger.Error("failed to write failed metrics", "err", err)
		return err
	}

	if err := e.bumpNotificationAggregate(ctx, payload.PlaceID, payload.Channel, payload.FailedAt, 0, 1); err != nil {
		e.logger.Error("failed to update daily notification metrics", "err", err)
		return err
	}

	e.logger.Info("notification failure recorded", "thread_id", payload.ThreadID, "channel", payload.Channel)
	return nil
}

func (e *Events) HandleNotifyDLQ(ctx context.Context, msg kafka.Message) error {
	var payload struct {
		ThreadID    string `json:"thread_id"`
		PlaceID     string `json:"place_id"`
		Channel     string `json:"channel"`
		Recipient   string `json:"recipient"`
		ErrorReason string `json:"error_reason"`
		FailedAt    string `json:"failed_at"`
	}
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		e.logger.Error("invalid dlq payload", "err", err)
		return nil
	}
	if payload.ThreadID == "" || payload.Channel == "" || payload.ErrorReason == "" || payload.FailedAt == "" {
		e.logger.Error("missing dlq fields")
		return nil
	}
	if _, ok := dayOf(payload.FailedAt); !ok {
		e.logger.Error("invalid failed_at", "value", payload.FailedAt)
		return nil
	}

	_, err := e.pool.Exec(ctx, `
		INSERT INTO notify_dlq_events (thread_id, place_id, channel, recipient, error_reason, failed_at)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6)
	`, payload.ThreadID, payload.PlaceID, payload.Channel, payload.Recipient, payload.ErrorReason, payload.FailedAt)
	if err != nil {
		e.logger.Error("failed to write dlq event", "err", err)
		return err
	}

	e.logger.Warn("notify dlq recorded", "thread_id", payload.ThreadID, "channel", payload.Channel)
	return nil
}

func (e *Events) HandleAuthAudit(ctx context.Context, msg kafka.Message) error {
	var payload struct {
		EventType string          `json:"event_type"`
		ActorID   string          `json:"actor_id"`
		Metadata  json.RawMessage `json:"metadata"`
		CreatedAt string          `json:"created_at"`
	}
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		e.logger.Error("invalid auth audit payload", "err", err)
		return nil
	}
	if payload.EventType == "" || payload.CreatedAt == "" {
		e.logger.Error("missing auth audit fields")
		return nil
	}
	if _, ok := dayOf(payload.CreatedAt); !ok {
		e.logger.Error("invalid auth audit created_at", "value", payload.CreatedAt)
		return nil
	}

	_, err := e.pool.Exec(ctx, `
		INSERT INTO security_audit_events (event_type, actor_id, metadata, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4)
	`, payload.EventType, payload.ActorID, payload.Metadata, payload.CreatedAt)
	if err != nil {
		e.logger.Error("failed to write security audit event", "err", err)
		return err
	}

	e.logger.Info("security audit recorded", "event_type", payload.EventType)
	return nil
}

func (e *Events) bumpNotificationAggregate(ctx context.Context, placeID, channel, ts string, sentInc, failedInc int) error {
	if placeID == "" || channel == "" {
		return nil
	}
	day, ok := dayOf(ts)
	if !ok {
		return nil
	}
	_, err := e.pool.Exec(ctx, `
		INSERT INTO daily_notification_metrics (place_id, day, channel, sent_count, failed_count)
		VALUES ($1, $2::date, $3, $4, $5)
		ON CONFLICT (place_id, day, channel)
		DO UPDATE SET sent_count = daily_notification_metrics.sent_count + EXCLUDED.sent_count,
		              failed_count = daily_notification_metrics.failed_count + EXCLUDED.failed_count,
		              updated_at = now()
	`, placeID, day, channel, sentInc, failedInc)
	return err
}

func dayOf(ts string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
