package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nvoloshyn/placedesk/libs/httpx"
	"github.com/nvoloshyn/placedesk/services/console-service/internal/clients"
	"github.com/nvoloshyn/placedesk/services/console-service/internal/upgrade"
)

// Runner is the saga entry point; *upgrade.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, req upgrade.Request, prompter upgrade.Prompter) (upgrade.Outcome, error)
}

// FeatureReader lists current toggles for the overview screen.
type FeatureReader interface {
	ListFeatures(ctx context.Context, placeID string) (map[string]bool, error)
}

type Handler struct {
	runner   Runner
	pending  upgrade.PendingStore
	places   upgrade.PlacesDirectory
	billing  upgrade.SubscriptionService
	features FeatureReader
	logger   *slog.Logger
}

func New(runner Runner, pending upgrade.PendingStore, places upgrade.PlacesDirectory, billing upgrade.SubscriptionService, features FeatureReader, logger *slog.Logger) *Handler {
	return &Handler{
		runner:   runner,
		pending:  pending,
		places:   places,
		billing:  billing,
		features: features,
		logger:   logger,
	}
}

type toggleRequest struct {
	PlaceID        string `json:"place_id"`
	Feature        string `json:"feature"`
	Enabled        bool   `json:"enabled"`
	ConfirmUpgrade *bool  `json:"confirm_upgrade,omitempty"`
	ReturnURL      string `json:"return_url,omitempty"`
}

type outcomeResponse struct {
	Outcome      string `json:"outcome"`
	Enabled      bool   `json:"enabled"`
	Finalizing   bool   `json:"finalizing,omitempty"`
	RequiredTier string `json:"required_tier,omitempty"`
	Error        string `json:"error,omitempty"`
	UpgradeToken string `json:"upgrade_token,omitempty"`
	ReturnURL    string `json:"return_url,omitempty"`
	CleanURL     string `json:"clean_url,omitempty"`
}

// ToggleFeature drives one saga attempt. Without confirm_upgrade the prompt
// is deferred to the client: a gated enable parks a one-shot signal and
// reports upgrade_required with the token.
func (h *Handler) ToggleFeature(w http.ResponseWriter, r *http.Request) {
	id, ok := callerIdentity(r)
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var body toggleRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	feature, err := upgrade.ParseFeature(body.Feature)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.PlaceID == "" {
		httpx.Error(w, http.StatusBadRequest, "place_id is required")
		return
	}

	prompter := upgrade.AskUser
	if body.ConfirmUpgrade != nil {
		prompter = upgrade.Decision(*body.ConfirmUpgrade)
	}

	ctx := clients.WithIdentity(r.Context(), id)
	req := upgrade.Request{
		AccountID: id.AccountID,
		PlaceID:   body.PlaceID,
		Feature:   feature,
		Enable:    body.Enabled,
	}
	out, err := h.runner.Run(ctx, req, prompter)
	if errors.Is(err, upgrade.ErrAttemptInFlight) {
		httpx.Error(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil && out.Status == "" {
		// The attempt aborted before reaching a terminal outcome, e.g. the
		// single-flight lock backend was unreachable.
		h.logger.Error("toggle attempt aborted", "err", err)
		httpx.Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := responseFor(out)
	if out.Status == upgrade.StatusUpgradeRequired {
		pending := upgrade.PendingUpgrade{
			Token:     upgrade.NewToken(),
			AccountID: id.AccountID,
			PlaceID:   body.PlaceID,
			Feature:   feature,
			Plan:      out.RequiredTier,
		}
		if err := h.pending.Create(ctx, pending); err != nil {
			h.logger.Error("pending upgrade create failed", "err", err)
			httpx.Error(w, http.StatusInternalServerError, "could not record upgrade signal")
			return
		}
		resp.UpgradeToken = pending.Token
		if body.ReturnURL != "" {
			resp.ReturnURL = upgrade.WithUpgradeToken(body.ReturnURL, pending.Token)
		}
	}

	httpx.JSON(w, statusFor(out, err), resp)
}

type resumeRequest struct {
	Token     string `json:"token"`
	ReturnURL string `json:"return_url,omitempty"`
}

// ResumeUpgrade consumes a one-shot signal left behind by a gated toggle and
// re-runs the saga with the upgrade pre-confirmed. Replaying a consumed
// token is a no-op.
func (h *Handler) ResumeUpgrade(w http.ResponseWriter, r *http.Request) {
	id, ok := callerIdentity(r)
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var body resumeRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Token == "" {
		httpx.Error(w, http.StatusBadRequest, "token is required")
		return
	}

	cleanURL := ""
	if body.ReturnURL != "" {
		cleanURL = upgrade.StripUpgradeParams(body.ReturnURL)
	}

	pending, found, err := h.pending.Consume(r.Context(), body.Token)
	if err != nil {
		h.logger.Error("pending upgrade consume failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "could not consume upgrade signal")
		return
	}
	if !found {
		httpx.JSON(w, http.StatusOK, outcomeResponse{Outcome: "already_processed", CleanURL: cleanURL})
		return
	}
	if pending.AccountID != id.AccountID {
		httpx.Error(w, http.StatusForbidden, "upgrade signal belongs to another account")
		return
	}

	ctx := clients.WithIdentity(r.Context(), id)
	req := upgrade.Request{
		AccountID: pending.AccountID,
		PlaceID:   pending.PlaceID,
		Feature:   pending.Feature,
		Enable:    true,
		Plan:      pending.Plan,
	}
	out, err := h.runner.Run(ctx, req, upgrade.Decision(true))
	if errors.Is(err, upgrade.ErrAttemptInFlight) {
		httpx.Error(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil && out.Status == "" {
		h.logger.Error("resume attempt aborted", "err", err)
		httpx.Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := responseFor(out)
	resp.CleanURL = cleanURL
	httpx.JSON(w, statusFor(out, err), resp)
}

// Overview aggregates the console dashboard: owned places, subscription
// state of the selected place, and its feature toggles.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	id, ok := callerIdentity(r)
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "missing identity")
		return
	}

	ctx := clients.WithIdentity(r.Context(), id)
	places, err := h.places.ListOwned(ctx, id.AccountID)
	if err != nil {
		httpx.Error(w, http.StatusBadGateway, err.Error())
		return
	}

	placeID := r.URL.Query().Get("place_id")
	if placeID == "" && len(places) > 0 {
		placeID = places[0].ID
	}

	type placeJSON struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		LocationType string `json:"location_type"`
	}
	resp := struct {
		Places       []placeJSON     `json:"places"`
		PlaceID      string          `json:"place_id,omitempty"`
		Subscription string          `json:"subscription_status,omitempty"`
		Features     map[string]bool `json:"features,omitempty"`
	}{}
	for _, p := range places {
		resp.Places = append(resp.Places, placeJSON{ID: p.ID, Name: p.Name, LocationType: p.LocationType})
	}

	if placeID != "" {
		resp.PlaceID = placeID
		if status, err := h.billing.GetStatus(ctx, placeID); err == nil {
			resp.Subscription = string(status)
		}
		if features, err := h.features.ListFeatures(ctx, placeID); err == nil {
			resp.Features = features
		}
	}

	httpx.JSON(w, http.StatusOK, resp)
}

func callerIdentity(r *http.Request) (clients.Identity, bool) {
	id := clients.Identity{
		UserID:    r.Header.Get("X-User-Id"),
		AccountID: r.Header.Get("X-Account-Id"),
		Role:      r.Header.Get("X-Role"),
	}
	return id, id.AccountID != ""
}

func responseFor(out upgrade.Outcome) outcomeResponse {
	return outcomeResponse{
		Outcome:      string(out.Status),
		Enabled:      out.Enabled,
		Finalizing:   out.Finalizing,
		RequiredTier: out.RequiredTier,
		Error:        out.Message,
	}
}

func statusFor(out upgrade.Outcome, err error) int {
	if out.Status != upgrade.StatusFailed {
		return http.StatusOK
	}
	if errors.Is(err, upgrade.ErrUnavailable) {
		return http.StatusBadGateway
	}
	return http.StatusUnprocessableEntity
}
