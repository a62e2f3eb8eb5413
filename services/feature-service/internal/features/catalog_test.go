package features

import "testing"

func TestParseRejectsUnknown(t *testing.T) {
	if _, err := Parse("snacks"); err == nil {
		t.Fatal("expected error for unknown feature")
	}
	f, err := Parse("rewards")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if f != Rewards {
		t.Fatalf("unexpected feature %q", f)
	}
}

func TestFreeFeaturesAlwaysAllowed(t *testing.T) {
	for _, f := range []Feature{Bookings, TimeOff, Notifications} {
		if !Allowed(TierFree, "none", f) {
			t.Fatalf("%s must be allowed without a subscription", f)
		}
	}
}

func TestPaidFeaturesNeedEntitlingSubscription(t *testing.T) {
	if Allowed(TierFree, "none", Rewards) {
		t.Fatal("rewards must be gated on the free tier")
	}
	if Allowed(TierPro, "canceled", Rewards) {
		t.Fatal("a canceled pro subscription must not entitle")
	}
	if !Allowed(TierPro, "active", Rewards) {
		t.Fatal("active pro must allow rewards")
	}
	if !Allowed(TierPro, "trialing", Campaigns) {
		t.Fatal("trialing pro must allow campaigns")
	}
	if Allowed(TierStarter, "active", Rewards) {
		t.Fatal("starter must not allow pro features")
	}
	if !Allowed(TierStarter, "active", Messaging) {
		t.Fatal("starter must allow messaging")
	}
	if !Allowed(TierPro, "active", Messaging) {
		t.Fatal("higher tiers cover lower requirements")
	}
}

func TestRequiredTier(t *testing.T) {
	if RequiredTier(Rewards) != TierPro {
		t.Fatalf("rewards requires pro, got %s", RequiredTier(Rewards))
	}
	if RequiredTier(Messaging) != TierStarter {
		t.Fatalf("messaging requires starter, got %s", RequiredTier(Messaging))
	}
	if RequiredTier(Bookings) != TierFree {
		t.Fatalf("bookings requires free, got %s", RequiredTier(Bookings))
	}
}
