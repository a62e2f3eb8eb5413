package features

import "fmt"

// Feature names a per-place toggle.
type Feature string

const (
	Bookings      Feature = "bookings"
	Rewards       Feature = "rewards"
	TimeOff       Feature = "time_off"
	Campaigns     Feature = "campaigns"
	Messaging     Feature = "messaging"
	Notifications Feature = "notifications"
)

const (
	TierFree    = "free"
	TierStarter = "starter"
	TierPro     = "pro"
)

// requiredTier is the lowest plan whose subscribers may enable a feature.
var requiredTier = map[Feature]string{
	Bookings:      TierFree,
	TimeOff:       TierFree,
	Notifications: TierFree,
	Messaging:     TierStarter,
	Rewards:       TierPro,
	Campaigns:     TierPro,
}

func All() []Feature {
	return []Feature{Bookings, Rewards, TimeOff, Campaigns, Messaging, Notifications}
}

func Parse(s string) (Feature, error) {
	f := Feature(s)
	if _, ok := requiredTier[f]; !ok {
		return "", fmt.Errorf("unknown feature: %q", s)
	}
	return f, nil
}

// RequiredTier returns the plan a feature is managed by.
func RequiredTier(f Feature) string {
	if tier, ok := requiredTier[f]; ok {
		return tier
	}
	return TierPro
}

func tierRank(tier string) int {
	switch tier {
	case TierStarter:
		return 1
	case TierPro:
		return 2
	default:
		return 0
	}
}

func isEntitlingStatus(status string) bool {
	return status == "active" || status == "trialing"
}

// Allowed reports whether a place on the given tier and subscription status
// may enable the feature. Free-tier features are always allowed; paid ones
// need an entitling subscription on a high enough tier.
func Allowed(tier, status string, f Feature) bool {
	required := RequiredTier(f)
	if required == TierFree {
		return true
	}
	if !isEntitlingStatus(status) {
		return false
	}
	return tierRank(tier) >= tierRank(required)
}
