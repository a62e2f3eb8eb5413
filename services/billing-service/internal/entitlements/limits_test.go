package entitlements

import "testing"

func TestLimitsForTierDefaultsToFree(t *testing.T) {
	got := LimitsForTier("enterprise")
	if got.Tier != "free" {
		t.Fatalf("expected free fallback, got %q", got.Tier)
	}
}

func TestProTierIncludesPaidFeatures(t *testing.T) {
	got := LimitsForTier("pro")
	features := map[string]bool{}
	for _, f := range got.Features {
		features[f] = true
	}
	for _, want := range []string{"rewards", "campaigns", "messaging"} {
		if !features[want] {
			t.Fatalf("pro tier missing feature %q", want)
		}
	}
}

func TestKnownTier(t *testing.T) {
	if !KnownTier("starter") || !KnownTier("pro") {
		t.Fatal("starter and pro should be purchasable")
	}
	if KnownTier("free") || KnownTier("") {
		t.Fatal("free is not a purchasable plan")
	}
}
