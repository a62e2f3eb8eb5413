package entitlements

// Limits represents the entitlements derived from a subscription tier.
// Keep this small and stable: other services may rely on these limits to enforce behavior.
type Limits struct {
	Tier               string   `json:"tier"`
	MaxStaff           int32    `json:"max_staff"`
	MaxPlaces          int32    `json:"max_places"`
	MaxMonthlyMessages int32    `json:"max_monthly_messages"`
	Features           []string `json:"features"`
}

func LimitsForTier(tier string) Limits {
	switch tier {
	case "starter":
		return Limits{
			Tier:               "starter",
			MaxStaff:           5,
			MaxPlaces:          1,
			MaxMonthlyMessages: 500,
			Features:           []string{"bookings", "time_off", "notifications", "messaging"},
		}
	case "pro":
		return Limits{
			Tier:               "pro",
			MaxStaff:           25,
			MaxPlaces:          10,
			MaxMonthlyMessages: 10000,
			Features:           []string{"bookings", "time_off", "notifications", "messaging", "rewards", "campaigns"},
		}
	default:
		return Limits{
			Tier:               "free",
			MaxStaff:           2,
			MaxPlaces:          1,
			MaxMonthlyMessages: 50,
			Features:           []string{"bookings", "time_off", "notifications"},
		}
	}
}

// KnownTier reports whether tier names a purchasable plan.
func KnownTier(tier string) bool {
	switch tier {
	case "starter", "pro":
		return true
	default:
		return false
	}
}
