package clients

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nvoloshyn/placedesk/services/console-service/internal/upgrade"
)

func TestFeaturesClientClassifiesStructuredGating(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("unexpected method %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"code":"plan_required","feature":"rewards","required_tier":"pro","error":"managed_by_plan: rewards"}`))
	}))
	defer srv.Close()

	c := NewFeaturesClient(srv.URL, time.Second)
	err := c.SetFeature(context.Background(), "place-1", upgrade.FeatureRewards, true)
	var gate *upgrade.GatingError
	if !errors.As(err, &gate) {
		t.Fatalf("expected GatingError, got %v", err)
	}
	if gate.Feature != upgrade.FeatureRewards || gate.RequiredTier != "pro" {
		t.Fatalf("unexpected gating error: %+v", gate)
	}
}

func TestFeaturesClientClassifiesLegacyPrefix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"managed_by_plan: campaigns"}`))
	}))
	defer srv.Close()

	c := NewFeaturesClient(srv.URL, time.Second)
	err := c.SetFeature(context.Background(), "place-1", upgrade.FeatureCampaigns, true)
	var gate *upgrade.GatingError
	if !errors.As(err, &gate) {
		t.Fatalf("expected GatingError from legacy prefix, got %v", err)
	}
	if gate.Feature != upgrade.FeatureCampaigns {
		t.Fatalf("unexpected feature: %q", gate.Feature)
	}
}

func TestFeaturesClientPlainRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unknown feature: \"snacks\""}`))
	}))
	defer srv.Close()

	c := NewFeaturesClient(srv.URL, time.Second)
	err := c.SetFeature(context.Background(), "place-1", "snacks", true)
	if err == nil {
		t.Fatal("expected error")
	}
	var gate *upgrade.GatingError
	if errors.As(err, &gate) {
		t.Fatalf("plain rejection must not classify as gating: %v", err)
	}
}

func TestBillingClientGetStatusMapping(t *testing.T) {
	status := "trialing"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("place_id"); got != "place-9" {
			t.Errorf("unexpected place_id %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"` + status + `","tier":"pro"}`))
	}))
	defer srv.Close()

	c := NewBillingClient(srv.URL, time.Second)
	got, err := c.GetStatus(context.Background(), "place-9")
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if got != upgrade.SubscriptionTrialing {
		t.Fatalf("expected trialing, got %q", got)
	}

	status = "past_due"
	got, err = c.GetStatus(context.Background(), "place-9")
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if got != upgrade.SubscriptionOther {
		t.Fatalf("unknown statuses must map to other, got %q", got)
	}
}

func TestPlacesClientForwardsIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Account-Id"); got != "acct-1" {
			t.Errorf("missing account header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"places":[{"id":"p1","name":"Main","location_type":"fixed"}]}`))
	}))
	defer srv.Close()

	c := NewPlacesClient(srv.URL, time.Second)
	places, err := c.ListOwned(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("ListOwned failed: %v", err)
	}
	if len(places) != 1 || places[0].ID != "p1" || places[0].LocationType != "fixed" {
		t.Fatalf("unexpected places: %+v", places)
	}
}

func TestClientsWrapTransportFailures(t *testing.T) {
	c := NewBillingClient("http://127.0.0.1:1", 200*time.Millisecond)
	err := c.ChangePlan(context.Background(), "p1", "pro", upgrade.FeatureRewards)
	if !errors.Is(err, upgrade.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
