package subscriptions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nvoloshyn/placedesk/libs/outbox"
	"github.com/nvoloshyn/placedesk/services/billing-service/internal/storage"
)

// Service encapsulates subscription state transitions and the side effects (outbox events).
// Keeping this out of HTTP handlers makes it reusable for webhook + reconciliation flows.
type Service struct {
	repo       *storage.Repository
	outboxRepo *outbox.Repository
}

func New(repo *storage.Repository, outboxRepo *outbox.Repository) *Service {
	return &Service{repo: repo, outboxRepo: outboxRepo}
}

// Activation carries everything a subscription activation needs. Status is
// either "active" or "trialing"; both entitle the place to the tier's
// features. FeatureToEnable names the toggle that triggered the plan change,
// if any, so downstream consumers can flip it on without a second round trip.
type Activation struct {
	PlaceID              string
	AccountID            string
	Tier                 string
	Status               string
	OccurredAt           time.Time
	Provider             string
	StripeCustomerID     string
	StripeSubscriptionID string
	PeriodStart          *time.Time
	PeriodEnd            *time.Time
	FeatureToEnable      string
}

func (s *Service) ApplyActivated(ctx context.Context, tx pgx.Tx, act Activation) error {
	if act.Status == "" {
		act.Status = "active"
	}

	existing, ok, err := s.repo.GetSubscriptionForUpdate(ctx, tx, act.PlaceID)
	if err != nil {
		return err
	}

	if err := s.repo.UpsertSubscription(ctx, tx, storage.Subscription{
		PlaceID:              act.PlaceID,
		AccountID:            act.AccountID,
		Tier:                 act.Tier,
		Status:               act.Status,
		Provider:             act.Provider,
		StripeCustomerID:     act.StripeCustomerID,
		StripeSubscriptionID: act.StripeSubscriptionID,
		CurrentPeriodStart:   act.PeriodStart,
		CurrentPeriodEnd:     act.PeriodEnd,
	}); err != nil {
		return err
	}

	// Only emit when the effective entitlement changes (tier/status). Provider ID updates alone shouldn't fan out.
	if ok && existing.Status == act.Status && existing.Tier == act.Tier {
		return nil
	}

	accountID := act.AccountID
	if accountID == "" {
		accountID = existing.AccountID
	}

	payload, err := json.Marshal(map[string]any{
		"place_id":          act.PlaceID,
		"account_id":        accountID,
		"tier":              act.Tier,
		"status":            act.Status,
		"feature_to_enable": act.FeatureToEnable,
		"activated_at":      act.OccurredAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	return s.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "subscription",
		AggregateID:   act.PlaceID,
		EventType:     "billing.subscription.activated.v1",
		Payload:       payload,
	})
}

func (s *Service) ApplyCanceled(ctx context.Context, tx pgx.Tx, placeID string, canceledAt time.Time, provider string, stripeCustomerID string, stripeSubscriptionID string, periodStart, periodEnd *time.Time) error {
	existing, ok, err := s.repo.GetSubscriptionForUpdate(ctx, tx, placeID)
	if err != nil {
		return err
	}

	if err := s.repo.UpsertSubscription(ctx, tx, storage.Subscription{
		PlaceID:              placeID,
		AccountID:            existing.AccountID,
		Tier:                 "free",
		Status:               "canceled",
		Provider:             provider,
		StripeCustomerID:     stripeCustomerID,
		StripeSubscriptionID: stripeSubscriptionID,
		CurrentPeriodStart:   periodStart,
		CurrentPeriodEnd:     periodEnd,
	}); err != nil {
		return err
	}

	// Only emit when the effective entitlement changes (tier/status).
	if ok && existing.Status == "canceled" && existing.Tier == "free" {
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"place_id":    placeID,
		"account_id":  existing.AccountID,
		"tier":        "free",
		"status":      "canceled",
		"canceled_at": canceledAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	return s.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "subscription",
		AggregateID:   placeID,
		EventType:     "billing.subscription.canceled.v1",
		Payload:       payload,
	})
}
