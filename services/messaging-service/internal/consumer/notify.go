package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nvoloshyn/placedesk/libs/db"
	"github.com/nvoloshyn/placedesk/libs/outbox"
	"github.com/nvoloshyn/placedesk/services/messaging-service/internal/email"
	"github.com/nvoloshyn/placedesk/services/messaging-service/internal/sms"
	"github.com/nvoloshyn/placedesk/services/messaging-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

type notifyPayload struct {
	ThreadID     string         `json:"thread_id"`
	PlaceID      string         `json:"place_id"`
	Channel      string         `json:"channel"`
	Recipient    string         `json:"recipient"`
	NotifyAt     string         `json:"notify_at"`
	TemplateData map[string]any `json:"template_data"`
}

// NotifyEvents delivers due owner notifications. Each processed event leaves
// a notification row plus a sent or failed outbox event.
type NotifyEvents struct {
	pool          *db.Pool
	notifications *storage.NotificationsRepository
	outbox        *outbox.Repository
	email         email.Sender
	sms           sms.Sender
	failSuffix    string
	logger        *slog.Logger
}

func NewNotifyEvents(
	pool *db.Pool,
	notifications *storage.NotificationsRepository,
	outboxRepo *outbox.Repository,
	emailSender email.Sender,
	smsSender sms.Sender,
	failSuffix string,
	logger *slog.Logger,
) *NotifyEvents {
	return &NotifyEvents{
		pool:          pool,
		notifications: notifications,
		outbox:        outboxRepo,
		email:         emailSender,
		sms:           smsSender,
		failSuffix:    failSuffix,
		logger:        logger,
	}
}

func (h *NotifyEvents) HandleDue(ctx context.Context, msg kafka.Message) error {
	var payload notifyPayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		h.logger.Error("invalid notify payload", "err", err)
		return nil
	}
	if payload.ThreadID == "" || payload.PlaceID == "" || payload.Channel == "" || payload.Recipient == "" {
		h.logger.Error("missing notify fields", "thread_id", payload.ThreadID)
		return nil
	}

	status := "sent"
	failureReason := ""
	providerID := ""
	if h.failSuffix != "" && strings.HasSuffix(payload.Recipient, h.failSuffix) {
		status = "failed"
		failureReason = "simulated failure"
	}

	if status == "sent" {
		subject, body := renderNotification(payload)
		switch strings.ToLower(payload.Channel) {
		case "email":
			if err := h.email.Send(payload.Recipient, subject, body); err != nil {
				status = "failed"
				failureReason = err.Error()
				h.logger.Error("email send failed", "err", err, "recipient", payload.Recipient)
			} else {
				providerID = "smtp"
			}
		case "sms":
			if err := h.sms.Send(ctx, payload.Recipient, body); err != nil {
				status = "failed"
				failureReason = err.Error()
				h.logger.Error("sms send failed", "err", err, "recipient", payload.Recipient)
			} else {
				providerID = h.sms.ProviderID()
			}
		default:
			status = "failed"
			failureReason = "unsupported channel: " + payload.Channel
			h.logger.Error("unsupported channel", "channel", payload.Channel)
		}
	}

	if err := h.notifications.Insert(ctx, storage.Notification{
		ThreadID:  payload.ThreadID,
		PlaceID:   payload.PlaceID,
		Channel:   payload.Channel,
		Recipient: payload.Recipient,
		Payload:   payload.TemplateData,
		Status:    status,
	}); err != nil {
		h.logger.Error("failed to persist notification", "err", err)
		return err
	}

	if status == "failed" {
		if err := h.writeOutboxFailed(ctx, payload, failureReason); err != nil {
			h.logger.Error("failed to enqueue notification.failed", "err", err)
			return err
		}
	} else {
		if err := h.writeOutboxSent(ctx, payload, providerID); err != nil {
			h.logger.Error("failed to enqueue notification.sent", "err", err)
			return err
		}
	}

	h.logger.Info("notification processed", "thread_id", payload.ThreadID, "channel", payload.Channel, "status", status)
	return nil
}

func renderNotification(payload notifyPayload) (subject string, body string) {
	subject = "New customer message"
	body = fmt.Sprintf("You have a new customer message in thread %s.", payload.ThreadID)
	if name, ok := payload.TemplateData["customer_name"].(string); ok && name != "" {
		body = fmt.Sprintf("New message from %s.", name)
	}
	if preview, ok := payload.TemplateData["preview"].(string); ok && preview != "" {
		body = body + " " + preview
	}
	return subject, body
}

func (h *NotifyEvents) writeOutboxSent(ctx context.Context, payload notifyPayload, providerID string) error {
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if strings.TrimSpace(providerID) == "" {
		providerID = "unknown"
	}
	eventPayload, err := json.Marshal(map[string]any{
		"thread_id":   payload.ThreadID,
		"place_id":    payload.PlaceID,
		"channel":     payload.Channel,
		"provider_id": providerID,
		"sent_at":     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   payload.ThreadID,
		EventType:     "messaging.notification.sent.v1",
		Payload:       eventPayload,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (h *NotifyEvents) writeOutboxFailed(ctx context.Context, payload notifyPayload, reason string) error {
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	eventPayload, err := json.Marshal(map[string]any{
		"thread_id":    payload.ThreadID,
		"place_id":     payload.PlaceID,
		"channel":      payload.Channel,
		"error_reason": reason,
		"failed_at":    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   payload.ThreadID,
		EventType:     "messaging.notification.failed.v1",
		Payload:       eventPayload,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
