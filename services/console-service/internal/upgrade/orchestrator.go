package upgrade

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// PlacesDirectory lists the places owned by an account, oldest first.
type PlacesDirectory interface {
	ListOwned(ctx context.Context, accountID string) ([]Place, error)
}

// SubscriptionService changes and reads the plan attached to a place.
type SubscriptionService interface {
	ChangePlan(ctx context.Context, placeID, plan string, featureToEnable Feature) error
	GetStatus(ctx context.Context, placeID string) (SubscriptionStatus, error)
}

// FeatureStore persists feature toggles. SetFeature returns a *GatingError
// when the feature is managed by a higher plan.
type FeatureStore interface {
	SetFeature(ctx context.Context, placeID string, feature Feature, enabled bool) error
}

// Prompter answers "upgrade to <tier> to enable <feature>?". Implementations
// that cannot answer synchronously return ErrConfirmationPending.
type Prompter interface {
	ConfirmUpgrade(ctx context.Context, feature Feature, requiredTier string) (bool, error)
}

// Decision is a prompter with a predetermined answer, used when the client
// already asked the user.
type Decision bool

func (d Decision) ConfirmUpgrade(context.Context, Feature, string) (bool, error) {
	return bool(d), nil
}

// AskUser defers the decision to the client via StatusUpgradeRequired.
var AskUser Prompter = deferredPrompt{}

type deferredPrompt struct{}

func (deferredPrompt) ConfirmUpgrade(context.Context, Feature, string) (bool, error) {
	return false, ErrConfirmationPending
}

// Orchestrator runs the toggle-upgrade-retry saga: attempt the toggle,
// detect plan gating, confirm with the user, change the plan, wait for the
// subscription to activate, then retry the toggle.
type Orchestrator struct {
	places   PlacesDirectory
	billing  SubscriptionService
	features FeatureStore
	locks    Locker
	logger   *slog.Logger
	policy   Policy
}

func New(places PlacesDirectory, billing SubscriptionService, features FeatureStore, locks Locker, logger *slog.Logger, policy Policy) *Orchestrator {
	if locks == nil {
		locks = NewMemoryLocker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		places:   places,
		billing:  billing,
		features: features,
		locks:    locks,
		logger:   logger,
		policy:   policy.withDefaults(),
	}
}

// Run drives one attempt to a terminal outcome. There is no mid-attempt
// cancellation: once the user confirms the upgrade, the saga runs through.
func (o *Orchestrator) Run(ctx context.Context, req Request, prompter Prompter) (Outcome, error) {
	if req.PlaceID == "" {
		return Outcome{}, errors.New("place id is required")
	}
	if _, err := ParseFeature(string(req.Feature)); err != nil {
		return Outcome{}, err
	}
	if prompter == nil {
		prompter = AskUser
	}

	release, err := o.locks.Acquire(ctx, req.PlaceID+"/"+string(req.Feature))
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	log := o.logger.With("place_id", req.PlaceID, "feature", req.Feature, "enable", req.Enable)

	log.Info("feature toggle", "phase", PhaseRequesting)
	err = o.features.SetFeature(ctx, req.PlaceID, req.Feature, req.Enable)
	if err == nil {
		log.Info("feature toggle", "phase", PhaseApplied)
		return Outcome{Status: StatusApplied, Enabled: req.Enable}, nil
	}

	var gate *GatingError
	if !errors.As(err, &gate) || !req.Enable {
		// A plain rejection. The displayed state stays where it was and no
		// upgrade is offered.
		log.Warn("feature toggle", "phase", PhaseFailed, "err", err)
		return Outcome{Status: StatusFailed, Enabled: !req.Enable, Message: err.Error()}, err
	}

	tier := gate.RequiredTier
	if tier == "" {
		tier = req.Plan
	}
	if tier == "" {
		tier = o.policy.Plan
	}

	log.Info("feature toggle", "phase", PhasePrompting, "required_tier", tier)
	confirmed, perr := prompter.ConfirmUpgrade(ctx, req.Feature, tier)
	if perr != nil {
		if errors.Is(perr, ErrConfirmationPending) {
			return Outcome{Status: StatusUpgradeRequired, RequiredTier: tier, Message: gate.Error()}, nil
		}
		return Outcome{Status: StatusFailed, Enabled: !req.Enable, Message: perr.Error()}, perr
	}
	if !confirmed {
		log.Info("feature toggle", "phase", PhaseIdle, "outcome", "declined")
		return Outcome{Status: StatusCancelled, Enabled: !req.Enable}, nil
	}

	log.Info("feature toggle", "phase", PhaseChangingPlan, "plan", tier)
	places, err := o.places.ListOwned(ctx, req.AccountID)
	if err != nil {
		log.Warn("feature toggle", "phase", PhaseFailed, "err", err)
		return Outcome{Status: StatusFailed, Enabled: !req.Enable, Message: err.Error()}, err
	}
	if len(places) == 0 {
		log.Warn("feature toggle", "phase", PhaseFailed, "err", ErrNoPlaceAvailable)
		return Outcome{Status: StatusFailed, Enabled: !req.Enable, Message: ErrNoPlaceAvailable.Error()}, ErrNoPlaceAvailable
	}
	subscriptionPlace := places[0].ID

	if err := o.billing.ChangePlan(ctx, subscriptionPlace, tier, req.Feature); err != nil {
		rej := &PlanChangeRejectedError{Message: err.Error()}
		log.Warn("feature toggle", "phase", PhaseFailed, "err", rej)
		return Outcome{Status: StatusFailed, Enabled: !req.Enable, Message: err.Error()}, rej
	}

	log.Info("feature toggle", "phase", PhasePolling, "subscription_place", subscriptionPlace)
	ready := o.waitForActivation(ctx, subscriptionPlace, log)

	log.Info("feature toggle", "phase", PhaseRetrying, "subscription_ready", ready)
	if err := o.features.SetFeature(ctx, req.PlaceID, req.Feature, req.Enable); err != nil {
		rej := &ToggleRejectedError{Message: err.Error()}
		log.Warn("feature toggle", "phase", PhaseFailed, "err", rej)
		return Outcome{Status: StatusFailed, Enabled: !req.Enable, Message: err.Error()}, rej
	}

	log.Info("feature toggle", "phase", PhaseApplied, "finalizing", !ready)
	return Outcome{Status: StatusApplied, Enabled: req.Enable, Finalizing: !ready}, nil
}

// waitForActivation polls the subscription until it entitles or the attempt
// budget runs out. Exhaustion is not an error: activation may land a moment
// later, so the caller proceeds and flags the outcome as finalizing.
func (o *Orchestrator) waitForActivation(ctx context.Context, placeID string, log *slog.Logger) bool {
	for attempt := 1; attempt <= o.policy.PollAttempts; attempt++ {
		status, err := o.billing.GetStatus(ctx, placeID)
		if err != nil {
			log.Warn("subscription status poll failed", "attempt", attempt, "err", err)
		} else if status.Entitles() {
			return true
		}
		if attempt == o.policy.PollAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(o.policy.PollInterval):
		}
	}
	return false
}
