package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/nvoloshyn/placedesk/libs/db"
	"github.com/nvoloshyn/placedesk/libs/outbox"
	"github.com/nvoloshyn/placedesk/services/feature-service/internal/features"
	"github.com/nvoloshyn/placedesk/services/feature-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

// BillingEvents keeps the local entitlement cache in sync with billing's
// subscription stream and auto-enables the feature that triggered an upgrade.
type BillingEvents struct {
	pool   *db.Pool
	repo   *storage.Repository
	outbox *outbox.Repository
	logger *slog.Logger
}

func NewBillingEvents(pool *db.Pool, repo *storage.Repository, outboxRepo *outbox.Repository, logger *slog.Logger) *BillingEvents {
	return &BillingEvents{pool: pool, repo: repo, outbox: outboxRepo, logger: logger}
}

type subscriptionActivated struct {
	PlaceID         string `json:"place_id"`
	AccountID       string `json:"account_id"`
	Tier            string `json:"tier"`
	Status          string `json:"status"`
	FeatureToEnable string `json:"feature_to_enable"`
}

func (c *BillingEvents) HandleActivated(ctx context.Context, msg kafka.Message) error {
	var evt subscriptionActivated
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		c.logger.Error("malformed subscription event dropped", "err", err)
		return nil
	}
	if evt.PlaceID == "" {
		c.logger.Error("subscription event without place_id dropped")
		return nil
	}

	return c.pool.WithTx(ctx, func(tx pgx.Tx) error {
		if err := c.repo.UpsertEntitlement(ctx, tx, storage.Entitlement{
			PlaceID: evt.PlaceID,
			Tier:    evt.Tier,
			Status:  evt.Status,
		}); err != nil {
			return err
		}

		if evt.FeatureToEnable == "" {
			return nil
		}
		feature, err := features.Parse(evt.FeatureToEnable)
		if err != nil {
			c.logger.Warn("unknown feature_to_enable ignored", "feature", evt.FeatureToEnable)
			return nil
		}
		if !features.Allowed(evt.Tier, evt.Status, feature) {
			c.logger.Warn("feature_to_enable not covered by new tier",
				"feature", feature, "tier", evt.Tier, "status", evt.Status)
			return nil
		}
		if err := c.repo.SetFeature(ctx, tx, evt.PlaceID, string(feature), true); err != nil {
			return err
		}
		payload, err := json.Marshal(map[string]any{
			"place_id":   evt.PlaceID,
			"account_id": evt.AccountID,
			"feature":    string(feature),
			"enabled":    true,
		})
		if err != nil {
			return err
		}
		c.logger.Info("feature auto-enabled after upgrade",
			"place_id", evt.PlaceID, "feature", feature, "tier", evt.Tier)
		return c.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: "feature_setting",
			AggregateID:   evt.PlaceID,
			EventType:     "feature.toggle.applied.v1",
			Payload:       payload,
		})
	})
}

type subscriptionCanceled struct {
	PlaceID string `json:"place_id"`
}

// HandleCanceled downgrades the cached entitlement. Toggles stay as they are;
// the gate in the write path is what stops paid features from being
// re-enabled once the subscription no longer entitles them.
func (c *BillingEvents) HandleCanceled(ctx context.Context, msg kafka.Message) error {
	var evt subscriptionCanceled
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		c.logger.Error("malformed cancellation event dropped", "err", err)
		return nil
	}
	if evt.PlaceID == "" {
		c.logger.Error("cancellation event without place_id dropped")
		return nil
	}
	return c.pool.WithTx(ctx, func(tx pgx.Tx) error {
		return c.repo.UpsertEntitlement(ctx, tx, storage.Entitlement{
			PlaceID: evt.PlaceID,
			Tier:    features.TierFree,
			Status:  "canceled",
		})
	})
}
