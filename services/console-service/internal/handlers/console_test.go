package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nvoloshyn/placedesk/services/console-service/internal/upgrade"
)

type fakeRunner struct {
	outcomes []upgrade.Outcome
	requests []upgrade.Request
	err      error
}

func (f *fakeRunner) Run(_ context.Context, req upgrade.Request, _ upgrade.Prompter) (upgrade.Outcome, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return upgrade.Outcome{}, f.err
	}
	if len(f.outcomes) == 0 {
		return upgrade.Outcome{Status: upgrade.StatusApplied, Enabled: req.Enable}, nil
	}
	out := f.outcomes[0]
	f.outcomes = f.outcomes[1:]
	return out, nil
}

type memPending struct {
	mu    sync.Mutex
	items map[string]upgrade.PendingUpgrade
}

func newMemPending() *memPending {
	return &memPending{items: map[string]upgrade.PendingUpgrade{}}
}

func (m *memPending) Create(_ context.Context, p upgrade.PendingUpgrade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[p.Token] = p
	return nil
}

func (m *memPending) Consume(_ context.Context, token string) (upgrade.PendingUpgrade, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[token]
	if ok {
		delete(m.items, token)
	}
	return p, ok, nil
}

type stubDirectory struct{}

func (stubDirectory) ListOwned(context.Context, string) ([]upgrade.Place, error) {
	return []upgrade.Place{{ID: "p1", Name: "Main", LocationType: "fixed"}}, nil
}

type stubBilling struct{}

func (stubBilling) ChangePlan(context.Context, string, string, upgrade.Feature) error { return nil }
func (stubBilling) GetStatus(context.Context, string) (upgrade.SubscriptionStatus, error) {
	return upgrade.SubscriptionActive, nil
}

type stubFeatures struct{}

func (stubFeatures) ListFeatures(context.Context, string) (map[string]bool, error) {
	return map[string]bool{"bookings": true}, nil
}

func newTestHandler(runner Runner, pending upgrade.PendingStore) *Handler {
	return New(runner, pending, stubDirectory{}, stubBilling{}, stubFeatures{}, slog.New(slog.DiscardHandler))
}

func postJSON(t *testing.T, h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("X-Account-Id", "acct-1")
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestToggleFeatureGatedParksSignal(t *testing.T) {
	runner := &fakeRunner{outcomes: []upgrade.Outcome{
		{Status: upgrade.StatusUpgradeRequired, RequiredTier: "pro", Message: "managed_by_plan: rewards"},
	}}
	pending := newMemPending()
	h := newTestHandler(runner, pending)

	rec := postJSON(t, h.ToggleFeature, "/api/v1/console/features/toggle",
		`{"place_id":"p1","feature":"rewards","enabled":true,"return_url":"https://c.example.com/settings"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Outcome      string `json:"outcome"`
		UpgradeToken string `json:"upgrade_token"`
		ReturnURL    string `json:"return_url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Outcome != "upgrade_required" || resp.UpgradeToken == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !strings.Contains(resp.ReturnURL, "upgrade_token="+resp.UpgradeToken) {
		t.Fatalf("return url must carry the token: %q", resp.ReturnURL)
	}
	if _, ok := pending.items[resp.UpgradeToken]; !ok {
		t.Fatal("pending signal was not stored")
	}
}

func TestResumeConsumesSignalExactlyOnce(t *testing.T) {
	runner := &fakeRunner{}
	pending := newMemPending()
	_ = pending.Create(context.Background(), upgrade.PendingUpgrade{
		Token: "tok1", AccountID: "acct-1", PlaceID: "p1", Feature: upgrade.FeatureRewards, Plan: "pro",
	})
	h := newTestHandler(runner, pending)

	body := `{"token":"tok1","return_url":"https://c.example.com/settings?upgrade_token=tok1"}`
	rec := postJSON(t, h.ResumeUpgrade, "/api/v1/console/upgrade/resume", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var first struct {
		Outcome  string `json:"outcome"`
		CleanURL string `json:"clean_url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if first.Outcome != "applied" {
		t.Fatalf("expected applied, got %q", first.Outcome)
	}
	if strings.Contains(first.CleanURL, "upgrade_token") {
		t.Fatalf("clean url must drop the token: %q", first.CleanURL)
	}
	if len(runner.requests) != 1 {
		t.Fatalf("expected one saga run, got %d", len(runner.requests))
	}
	if got := runner.requests[0]; got.PlaceID != "p1" || got.Feature != upgrade.FeatureRewards || !got.Enable {
		t.Fatalf("unexpected saga request: %+v", got)
	}
	if runner.requests[0].Plan != "pro" {
		t.Fatalf("resume must carry the recorded plan, got %q", runner.requests[0].Plan)
	}

	// A browser refresh replays the same token.
	rec = postJSON(t, h.ResumeUpgrade, "/api/v1/console/upgrade/resume", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay status %d", rec.Code)
	}
	var second struct {
		Outcome string `json:"outcome"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if second.Outcome != "already_processed" {
		t.Fatalf("replay must be a no-op, got %q", second.Outcome)
	}
	if len(runner.requests) != 1 {
		t.Fatalf("replay must not re-run the saga, got %d runs", len(runner.requests))
	}
}

func TestResumeRejectsForeignAccount(t *testing.T) {
	runner := &fakeRunner{}
	pending := newMemPending()
	_ = pending.Create(context.Background(), upgrade.PendingUpgrade{
		Token: "tok2", AccountID: "someone-else", PlaceID: "p1", Feature: upgrade.FeatureRewards,
	})
	h := newTestHandler(runner, pending)

	rec := postJSON(t, h.ResumeUpgrade, "/api/v1/console/upgrade/resume", `{"token":"tok2"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if len(runner.requests) != 0 {
		t.Fatal("foreign token must not run the saga")
	}
}

func TestToggleFeatureRequiresIdentity(t *testing.T) {
	h := newTestHandler(&fakeRunner{}, newMemPending())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/console/features/toggle",
		strings.NewReader(`{"place_id":"p1","feature":"bookings","enabled":true}`))
	rec := httptest.NewRecorder()
	h.ToggleFeature(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestToggleFeatureAbortedRunIsServerError(t *testing.T) {
	// A run that dies before reaching a terminal outcome, e.g. the lock
	// backend is down, must not render as an empty success.
	runner := &fakeRunner{err: errors.New("redis: connection refused")}
	h := newTestHandler(runner, newMemPending())

	rec := postJSON(t, h.ToggleFeature, "/api/v1/console/features/toggle",
		`{"place_id":"p1","feature":"rewards","enabled":true}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestResumeAbortedRunIsServerError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("redis: connection refused")}
	pending := newMemPending()
	_ = pending.Create(context.Background(), upgrade.PendingUpgrade{
		Token: "tok3", AccountID: "acct-1", PlaceID: "p1", Feature: upgrade.FeatureRewards, Plan: "pro",
	})
	h := newTestHandler(runner, pending)

	rec := postJSON(t, h.ResumeUpgrade, "/api/v1/console/upgrade/resume", `{"token":"tok3"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestToggleFeatureRejectsUnknownFeature(t *testing.T) {
	h := newTestHandler(&fakeRunner{}, newMemPending())
	rec := postJSON(t, h.ToggleFeature, "/api/v1/console/features/toggle",
		`{"place_id":"p1","feature":"snacks","enabled":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOverviewAggregates(t *testing.T) {
	h := newTestHandler(&fakeRunner{}, newMemPending())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/console/overview", nil)
	req.Header.Set("X-Account-Id", "acct-1")
	rec := httptest.NewRecorder()
	h.Overview(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var resp struct {
		PlaceID      string          `json:"place_id"`
		Subscription string          `json:"subscription_status"`
		Features     map[string]bool `json:"features"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.PlaceID != "p1" || resp.Subscription != "active" || !resp.Features["bookings"] {
		t.Fatalf("unexpected overview: %+v", resp)
	}
}
