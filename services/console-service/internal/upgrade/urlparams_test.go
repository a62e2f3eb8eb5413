package upgrade

import (
	"net/url"
	"testing"
)

func TestWithUpgradeTokenAndStrip(t *testing.T) {
	withToken := WithUpgradeToken("https://console.example.com/settings?tab=features", "tok123")
	u, err := url.Parse(withToken)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if u.Query().Get(ParamUpgradeToken) != "tok123" {
		t.Fatalf("token missing from %q", withToken)
	}
	if u.Query().Get("tab") != "features" {
		t.Fatal("existing params must survive")
	}

	clean := StripUpgradeParams(withToken)
	cu, err := url.Parse(clean)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cu.Query().Get(ParamUpgradeToken) != "" {
		t.Fatalf("token must be stripped, got %q", clean)
	}
	if cu.Query().Get("tab") != "features" {
		t.Fatal("unrelated params must survive stripping")
	}
}

func TestStripUpgradeParamsIdempotent(t *testing.T) {
	raw := "https://console.example.com/settings?pending_feature=rewards&pending_place=p1&upgrade_token=t"
	once := StripUpgradeParams(raw)
	twice := StripUpgradeParams(once)
	if once != twice {
		t.Fatalf("strip must be idempotent: %q vs %q", once, twice)
	}
	u, _ := url.Parse(once)
	for _, p := range []string{ParamUpgradeToken, ParamPendingFeature, ParamPendingPlace} {
		if u.Query().Get(p) != "" {
			t.Fatalf("param %s must be removed", p)
		}
	}
}
