package upgrade

import (
	"errors"
	"strings"
)

var (
	// ErrNoPlaceAvailable means the account owns no place to attach a
	// subscription to. The plan change is never attempted in that case.
	ErrNoPlaceAvailable = errors.New("no place available for subscription")

	// ErrAttemptInFlight means another attempt is already running for the
	// same place and feature.
	ErrAttemptInFlight = errors.New("feature toggle attempt already in flight")

	// ErrConfirmationPending is returned by prompters that cannot answer
	// synchronously; the caller should park the attempt and resume it once
	// the user decides.
	ErrConfirmationPending = errors.New("upgrade confirmation pending")

	// ErrUnavailable wraps transport-level failures talking to a
	// collaborator service.
	ErrUnavailable = errors.New("upstream unavailable")
)

// GatingError is a toggle rejection that names the plan requirement. Only
// rejections of this type ever lead to an upgrade prompt.
type GatingError struct {
	Feature      Feature
	RequiredTier string
	Message      string
}

func (e *GatingError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "managed_by_plan: " + string(e.Feature)
}

type PlanChangeRejectedError struct {
	Message string
}

func (e *PlanChangeRejectedError) Error() string {
	return "plan change rejected: " + e.Message
}

type ToggleRejectedError struct {
	Message string
}

func (e *ToggleRejectedError) Error() string {
	return "feature toggle rejected: " + e.Message
}

// Legacy gating message prefixes still emitted by feature builds that
// predate the structured plan_required code.
const (
	legacyManagedPrefix = "managed_by_plan:"
	legacyProPrefix     = "feature_requires_pro"
)

// GatingFromMessage recognizes the legacy prefix scheme. New servers send a
// structured code instead; this shim keeps old responses classifiable.
func GatingFromMessage(msg string) (*GatingError, bool) {
	trimmed := strings.TrimSpace(msg)
	if rest, ok := strings.CutPrefix(trimmed, legacyManagedPrefix); ok {
		return &GatingError{
			Feature: Feature(strings.TrimSpace(rest)),
			Message: trimmed,
		}, true
	}
	if strings.HasPrefix(trimmed, legacyProPrefix) {
		return &GatingError{RequiredTier: "pro", Message: trimmed}, true
	}
	return nil, false
}
