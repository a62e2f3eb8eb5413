package upgrade

import (
	"fmt"
	"time"
)

// Feature names a per-place toggle managed from the console.
type Feature string

const (
	FeatureBookings      Feature = "bookings"
	FeatureRewards       Feature = "rewards"
	FeatureTimeOff       Feature = "time_off"
	FeatureCampaigns     Feature = "campaigns"
	FeatureMessaging     Feature = "messaging"
	FeatureNotifications Feature = "notifications"
)

var knownFeatures = map[Feature]struct{}{
	FeatureBookings:      {},
	FeatureRewards:       {},
	FeatureTimeOff:       {},
	FeatureCampaigns:     {},
	FeatureMessaging:     {},
	FeatureNotifications: {},
}

func ParseFeature(s string) (Feature, error) {
	f := Feature(s)
	if _, ok := knownFeatures[f]; !ok {
		return "", fmt.Errorf("unknown feature: %q", s)
	}
	return f, nil
}

// SubscriptionStatus is the console's view of a place subscription.
type SubscriptionStatus string

const (
	SubscriptionNone     SubscriptionStatus = "none"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionOther    SubscriptionStatus = "other"
)

// Entitles reports whether the status unlocks plan-gated features.
func (s SubscriptionStatus) Entitles() bool {
	return s == SubscriptionTrialing || s == SubscriptionActive
}

type Place struct {
	ID           string
	Name         string
	LocationType string
}

// Phase tracks where a toggle attempt currently is. Phases are logged, not
// persisted; the attempt itself runs to a terminal outcome in one call.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseRequesting   Phase = "requesting"
	PhasePrompting    Phase = "prompting"
	PhaseChangingPlan Phase = "changing_plan"
	PhasePolling      Phase = "polling"
	PhaseRetrying     Phase = "retrying"
	PhaseApplied      Phase = "applied"
	PhaseFailed       Phase = "failed"
)

// Status is the terminal result reported to the caller.
type Status string

const (
	StatusApplied         Status = "applied"
	StatusCancelled       Status = "cancelled"
	StatusUpgradeRequired Status = "upgrade_required"
	StatusFailed          Status = "failed"
)

// Outcome is the result of a toggle attempt. Enabled is the confirmed state
// of the feature after the attempt; the caller renders it as-is and never
// flips the toggle optimistically. Finalizing is set when the toggle was
// accepted before the new subscription became visible as trialing or active.
type Outcome struct {
	Status       Status
	Enabled      bool
	Finalizing   bool
	RequiredTier string
	Message      string
}

// Request describes one toggle attempt. Plan, when set, names the tier a
// prior gated attempt recorded; it takes precedence over the policy default
// when the gating error itself carries no tier.
type Request struct {
	AccountID string
	PlaceID   string
	Feature   Feature
	Enable    bool
	Plan      string
}

// Policy bounds the activation poll loop and names the default target plan.
type Policy struct {
	Plan         string
	PollAttempts int
	PollInterval time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.Plan == "" {
		p.Plan = "pro"
	}
	if p.PollAttempts <= 0 {
		p.PollAttempts = 5
	}
	if p.PollInterval <= 0 {
		p.PollInterval = 500 * time.Millisecond
	}
	return p
}
