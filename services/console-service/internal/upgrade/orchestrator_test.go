package upgrade

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

type setCall struct {
	placeID string
	feature Feature
	enabled bool
}

type fakeFeatures struct {
	errs  []error
	calls []setCall
}

func (f *fakeFeatures) SetFeature(_ context.Context, placeID string, feature Feature, enabled bool) error {
	f.calls = append(f.calls, setCall{placeID: placeID, feature: feature, enabled: enabled})
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

type changeCall struct {
	placeID string
	plan    string
	feature Feature
}

type fakeBilling struct {
	changeErr   error
	changeCalls []changeCall
	statuses    []SubscriptionStatus
	statusCalls int
}

func (f *fakeBilling) ChangePlan(_ context.Context, placeID, plan string, feature Feature) error {
	f.changeCalls = append(f.changeCalls, changeCall{placeID: placeID, plan: plan, feature: feature})
	return f.changeErr
}

func (f *fakeBilling) GetStatus(_ context.Context, _ string) (SubscriptionStatus, error) {
	f.statusCalls++
	if len(f.statuses) == 0 {
		return SubscriptionNone, nil
	}
	st := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return st, nil
}

type fakeDirectory struct {
	places []Place
	err    error
	calls  int
}

func (f *fakeDirectory) ListOwned(context.Context, string) ([]Place, error) {
	f.calls++
	return f.places, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testPolicy() Policy {
	return Policy{Plan: "pro", PollAttempts: 5, PollInterval: time.Millisecond}
}

func TestRunAppliesUngatedToggle(t *testing.T) {
	features := &fakeFeatures{}
	billing := &fakeBilling{}
	dir := &fakeDirectory{places: []Place{{ID: "place-1"}}}
	o := New(dir, billing, features, nil, testLogger(), testPolicy())

	out, err := o.Run(context.Background(), Request{AccountID: "a", PlaceID: "place-1", Feature: FeatureBookings, Enable: true}, AskUser)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Status != StatusApplied || !out.Enabled || out.Finalizing {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(billing.changeCalls) != 0 {
		t.Fatal("plan change must not run for ungated toggles")
	}
}

func TestRunFullUpgradeSaga(t *testing.T) {
	// Enabling rewards on a basic plan: gated, confirmed, plan changed on
	// place 42, subscription active on the first poll, toggle retried.
	features := &fakeFeatures{errs: []error{
		&GatingError{Feature: FeatureRewards, Message: "managed_by_plan: rewards"},
	}}
	billing := &fakeBilling{statuses: []SubscriptionStatus{SubscriptionActive}}
	dir := &fakeDirectory{places: []Place{{ID: "place-42"}, {ID: "place-7"}}}
	o := New(dir, billing, features, nil, testLogger(), testPolicy())

	out, err := o.Run(context.Background(), Request{AccountID: "a", PlaceID: "place-42", Feature: FeatureRewards, Enable: true}, Decision(true))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Status != StatusApplied || !out.Enabled {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Finalizing {
		t.Fatal("subscription was active, outcome must not be finalizing")
	}
	if len(billing.changeCalls) != 1 {
		t.Fatalf("expected one plan change, got %d", len(billing.changeCalls))
	}
	cc := billing.changeCalls[0]
	if cc.placeID != "place-42" || cc.plan != "pro" || cc.feature != FeatureRewards {
		t.Fatalf("unexpected plan change: %+v", cc)
	}
	if billing.statusCalls != 1 {
		t.Fatalf("active on first poll must stop polling, got %d polls", billing.statusCalls)
	}
	if len(features.calls) != 2 {
		t.Fatalf("expected toggle + retry, got %d calls", len(features.calls))
	}
}

func TestRunDeclinedPromptCancels(t *testing.T) {
	features := &fakeFeatures{errs: []error{
		&GatingError{Feature: FeatureCampaigns, RequiredTier: "pro"},
	}}
	billing := &fakeBilling{}
	dir := &fakeDirectory{places: []Place{{ID: "place-1"}}}
	o := New(dir, billing, features, nil, testLogger(), testPolicy())

	out, err := o.Run(context.Background(), Request{AccountID: "a", PlaceID: "place-1", Feature: FeatureCampaigns, Enable: true}, Decision(false))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Status != StatusCancelled || out.Enabled {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(billing.changeCalls) != 0 || billing.statusCalls != 0 {
		t.Fatal("declining the prompt must not touch billing")
	}
	if len(features.calls) != 1 {
		t.Fatalf("declined attempt must not retry the toggle, got %d calls", len(features.calls))
	}
}

func TestRunNoPlaceAvailable(t *testing.T) {
	features := &fakeFeatures{errs: []error{
		&GatingError{Feature: FeatureRewards, RequiredTier: "pro"},
	}}
	billing := &fakeBilling{}
	dir := &fakeDirectory{}
	o := New(dir, billing, features, nil, testLogger(), testPolicy())

	out, err := o.Run(context.Background(), Request{AccountID: "a", PlaceID: "place-1", Feature: FeatureRewards, Enable: true}, Decision(true))
	if !errors.Is(err, ErrNoPlaceAvailable) {
		t.Fatalf("expected ErrNoPlaceAvailable, got %v", err)
	}
	if out.Status != StatusFailed || out.Enabled {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(billing.changeCalls) != 0 {
		t.Fatal("plan change must never run without a place")
	}
}

func TestRunPlainFailureSkipsPrompt(t *testing.T) {
	features := &fakeFeatures{errs: []error{errors.New("boom")}}
	billing := &fakeBilling{}
	dir := &fakeDirectory{places: []Place{{ID: "place-1"}}}
	o := New(dir, billing, features, nil, testLogger(), testPolicy())

	// AskUser would report upgrade_required if the prompt were reached.
	out, err := o.Run(context.Background(), Request{AccountID: "a", PlaceID: "place-1", Feature: FeatureMessaging, Enable: true}, AskUser)
	if err == nil {
		t.Fatal("expected error")
	}
	if out.Status != StatusFailed {
		t.Fatalf("plain failures must not offer an upgrade: %+v", out)
	}
	if out.Enabled {
		t.Fatal("failed enable must leave the feature disabled")
	}
}

func TestRunPollExhaustionProceedsFinalizing(t *testing.T) {
	features := &fakeFeatures{errs: []error{
		&GatingError{Feature: FeatureRewards, RequiredTier: "pro"},
	}}
	billing := &fakeBilling{statuses: []SubscriptionStatus{SubscriptionNone}}
	dir := &fakeDirectory{places: []Place{{ID: "place-1"}}}
	o := New(dir, billing, features, nil, testLogger(), testPolicy())

	out, err := o.Run(context.Background(), Request{AccountID: "a", PlaceID: "place-1", Feature: FeatureRewards, Enable: true}, Decision(true))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Status != StatusApplied || !out.Enabled {
		t.Fatalf("exhausted polling must still retry the toggle: %+v", out)
	}
	if !out.Finalizing {
		t.Fatal("outcome must be flagged finalizing when activation was never observed")
	}
	if billing.statusCalls != 5 {
		t.Fatalf("expected 5 polls, got %d", billing.statusCalls)
	}
}

func TestRunPlanChangeRejected(t *testing.T) {
	features := &fakeFeatures{errs: []error{
		&GatingError{Feature: FeatureRewards, RequiredTier: "pro"},
	}}
	billing := &fakeBilling{changeErr: errors.New("card declined")}
	dir := &fakeDirectory{places: []Place{{ID: "place-1"}}}
	o := New(dir, billing, features, nil, testLogger(), testPolicy())

	out, err := o.Run(context.Background(), Request{AccountID: "a", PlaceID: "place-1", Feature: FeatureRewards, Enable: true}, Decision(true))
	var rej *PlanChangeRejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("expected PlanChangeRejectedError, got %v", err)
	}
	if out.Status != StatusFailed || out.Message != "card declined" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(features.calls) != 1 {
		t.Fatal("rejected plan change must not retry the toggle")
	}
	if billing.statusCalls != 0 {
		t.Fatal("rejected plan change must not poll")
	}
}

func TestRunRetryRejectedFails(t *testing.T) {
	features := &fakeFeatures{errs: []error{
		&GatingError{Feature: FeatureRewards, RequiredTier: "pro"},
		errors.New("still gated"),
	}}
	billing := &fakeBilling{statuses: []SubscriptionStatus{SubscriptionTrialing}}
	dir := &fakeDirectory{places: []Place{{ID: "place-1"}}}
	o := New(dir, billing, features, nil, testLogger(), testPolicy())

	out, err := o.Run(context.Background(), Request{AccountID: "a", PlaceID: "place-1", Feature: FeatureRewards, Enable: true}, Decision(true))
	var rej *ToggleRejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("expected ToggleRejectedError, got %v", err)
	}
	if out.Status != StatusFailed || out.Enabled {
		t.Fatalf("failed retry must leave the feature disabled: %+v", out)
	}
}

func TestRunDeferredPromptReportsUpgradeRequired(t *testing.T) {
	features := &fakeFeatures{errs: []error{
		&GatingError{Feature: FeatureRewards, Message: "managed_by_plan: rewards"},
	}}
	billing := &fakeBilling{}
	dir := &fakeDirectory{places: []Place{{ID: "place-1"}}}
	o := New(dir, billing, features, nil, testLogger(), testPolicy())

	out, err := o.Run(context.Background(), Request{AccountID: "a", PlaceID: "place-1", Feature: FeatureRewards, Enable: true}, AskUser)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Status != StatusUpgradeRequired || out.RequiredTier != "pro" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(billing.changeCalls) != 0 {
		t.Fatal("deferred prompt must not change the plan")
	}
}

func TestRunRecordedPlanOverridesDefault(t *testing.T) {
	// A resumed attempt carries the tier recorded when the signal was
	// parked; it wins over the policy default when the gating error is
	// silent about the tier.
	features := &fakeFeatures{errs: []error{
		&GatingError{Feature: FeatureMessaging, Message: "managed_by_plan: messaging"},
	}}
	billing := &fakeBilling{statuses: []SubscriptionStatus{SubscriptionActive}}
	dir := &fakeDirectory{places: []Place{{ID: "place-1"}}}
	o := New(dir, billing, features, nil, testLogger(), testPolicy())

	out, err := o.Run(context.Background(), Request{AccountID: "a", PlaceID: "place-1", Feature: FeatureMessaging, Enable: true, Plan: "starter"}, Decision(true))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Status != StatusApplied {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(billing.changeCalls) != 1 || billing.changeCalls[0].plan != "starter" {
		t.Fatalf("expected plan change to starter, got %+v", billing.changeCalls)
	}
}

func TestRunSecondAttemptBlocked(t *testing.T) {
	locks := NewMemoryLocker()
	release, err := locks.Acquire(context.Background(), "place-1/rewards")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer release()

	o := New(&fakeDirectory{}, &fakeBilling{}, &fakeFeatures{}, locks, testLogger(), testPolicy())
	_, err = o.Run(context.Background(), Request{AccountID: "a", PlaceID: "place-1", Feature: FeatureRewards, Enable: true}, Decision(true))
	if !errors.Is(err, ErrAttemptInFlight) {
		t.Fatalf("expected ErrAttemptInFlight, got %v", err)
	}
}

func TestMemoryLockerReleases(t *testing.T) {
	locks := NewMemoryLocker()
	release, err := locks.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, err := locks.Acquire(context.Background(), "k"); !errors.Is(err, ErrAttemptInFlight) {
		t.Fatalf("expected ErrAttemptInFlight, got %v", err)
	}
	release()
	release2, err := locks.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	release2()
}

func TestGatingFromMessage(t *testing.T) {
	gate, ok := GatingFromMessage("managed_by_plan: rewards")
	if !ok {
		t.Fatal("expected managed_by_plan prefix to classify as gating")
	}
	if gate.Feature != FeatureRewards {
		t.Fatalf("unexpected feature: %q", gate.Feature)
	}

	gate, ok = GatingFromMessage("feature_requires_pro")
	if !ok || gate.RequiredTier != "pro" {
		t.Fatalf("expected feature_requires_pro to classify, got %+v ok=%v", gate, ok)
	}

	if _, ok := GatingFromMessage("validation failed"); ok {
		t.Fatal("plain messages must not classify as gating")
	}
}
