package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nvoloshyn/placedesk/libs/db"
	"github.com/nvoloshyn/placedesk/libs/httpx"
	"github.com/nvoloshyn/placedesk/libs/outbox"
	"github.com/nvoloshyn/placedesk/services/feature-service/internal/entitlements"
	"github.com/nvoloshyn/placedesk/services/feature-service/internal/features"
	"github.com/nvoloshyn/placedesk/services/feature-service/internal/storage"

	"github.com/jackc/pgx/v5"
)

type Handler struct {
	pool     *db.Pool
	repo     *storage.Repository
	outbox   *outbox.Repository
	provider entitlements.Provider
	logger   *slog.Logger
}

func New(pool *db.Pool, repo *storage.Repository, outboxRepo *outbox.Repository, provider entitlements.Provider, logger *slog.Logger) *Handler {
	return &Handler{
		pool:     pool,
		repo:     repo,
		outbox:   outboxRepo,
		provider: provider,
		logger:   logger,
	}
}

// GetFeatures returns the toggle state of every known feature for a place.
func (h *Handler) GetFeatures(w http.ResponseWriter, r *http.Request) {
	placeID := r.URL.Query().Get("place_id")
	if placeID == "" {
		httpx.Error(w, http.StatusBadRequest, "place_id is required")
		return
	}

	stored, err := h.repo.ListFeatures(r.Context(), placeID)
	if err != nil {
		h.logger.Error("list features failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "could not load features")
		return
	}

	toggles := make(map[string]bool, len(features.All()))
	for _, f := range features.All() {
		toggles[string(f)] = stored[string(f)]
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"place_id": placeID,
		"features": toggles,
	})
}

type setFeatureRequest struct {
	PlaceID string `json:"place_id"`
	Feature string `json:"feature"`
	Enabled bool   `json:"enabled"`
}

// SetFeature writes a toggle. Enabling a plan-managed feature without an
// entitling subscription is rejected with the structured plan_required
// payload; the legacy managed_by_plan message prefix rides along for older
// console builds that still parse it.
func (h *Handler) SetFeature(w http.ResponseWriter, r *http.Request) {
	accountID := r.Header.Get("X-Account-Id")
	if accountID == "" {
		httpx.Error(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var body setFeatureRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.PlaceID == "" {
		httpx.Error(w, http.StatusBadRequest, "place_id is required")
		return
	}
	feature, err := features.Parse(body.Feature)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	// Disabling is never gated.
	if body.Enabled {
		ent := h.resolveEntitlement(r.Context(), body.PlaceID)
		if !features.Allowed(ent.Tier, ent.Status, feature) {
			httpx.JSON(w, http.StatusPaymentRequired, map[string]string{
				"code":          "plan_required",
				"feature":       string(feature),
				"required_tier": features.RequiredTier(feature),
				"error":         "managed_by_plan: " + string(feature),
			})
			return
		}
	}

	err = h.pool.WithTx(r.Context(), func(tx pgx.Tx) error {
		if err := h.repo.SetFeature(r.Context(), tx, body.PlaceID, string(feature), body.Enabled); err != nil {
			return err
		}
		payload, err := json.Marshal(map[string]any{
			"place_id":   body.PlaceID,
			"account_id": accountID,
			"feature":    string(feature),
			"enabled":    body.Enabled,
		})
		if err != nil {
			return err
		}
		return h.outbox.Insert(r.Context(), tx, outbox.Event{
			AggregateType: "feature_setting",
			AggregateID:   body.PlaceID,
			EventType:     "feature.toggle.applied.v1",
			Payload:       payload,
		})
	})
	if err != nil {
		h.logger.Error("set feature failed", "err", err, "place_id", body.PlaceID, "feature", feature)
		httpx.Error(w, http.StatusInternalServerError, "could not store feature setting")
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"place_id": body.PlaceID,
		"feature":  string(feature),
		"enabled":  body.Enabled,
	})
}

// GetRewardSettings returns the rewards program configuration.
func (h *Handler) GetRewardSettings(w http.ResponseWriter, r *http.Request) {
	placeID := r.URL.Query().Get("place_id")
	if placeID == "" {
		httpx.Error(w, http.StatusBadRequest, "place_id is required")
		return
	}
	rs, found, err := h.repo.GetRewardSettings(r.Context(), placeID)
	if err != nil {
		h.logger.Error("get reward settings failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "could not load reward settings")
		return
	}
	if !found {
		rs = storage.RewardSettings{PlaceID: placeID, PointsPerVisit: 1, RedeemThreshold: 10}
	}
	httpx.JSON(w, http.StatusOK, rs)
}

type rewardSettingsRequest struct {
	PlaceID         string `json:"place_id"`
	PointsPerVisit  int    `json:"points_per_visit"`
	RedeemThreshold int    `json:"redeem_threshold"`
}

// PutRewardSettings updates the rewards program. The rewards feature has to
// be enabled first.
func (h *Handler) PutRewardSettings(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Account-Id") == "" {
		httpx.Error(w, http.StatusUnauthorized, "missing identity")
		return
	}
	var body rewardSettingsRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.PlaceID == "" {
		httpx.Error(w, http.StatusBadRequest, "place_id is required")
		return
	}
	if body.PointsPerVisit <= 0 || body.RedeemThreshold <= 0 {
		httpx.Error(w, http.StatusBadRequest, "points_per_visit and redeem_threshold must be positive")
		return
	}

	enabled, err := h.repo.GetFeature(r.Context(), body.PlaceID, string(features.Rewards))
	if err != nil {
		h.logger.Error("get feature failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "could not check rewards feature")
		return
	}
	if !enabled {
		httpx.Error(w, http.StatusConflict, "rewards feature is disabled for this place")
		return
	}

	if err := h.repo.UpsertRewardSettings(r.Context(), storage.RewardSettings{
		PlaceID:         body.PlaceID,
		PointsPerVisit:  body.PointsPerVisit,
		RedeemThreshold: body.RedeemThreshold,
	}); err != nil {
		h.logger.Error("upsert reward settings failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "could not store reward settings")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) resolveEntitlement(ctx context.Context, placeID string) entitlements.Entitlement {
	cached, found, err := h.repo.GetEntitlement(ctx, placeID)
	if err != nil {
		h.logger.Error("entitlement cache read failed", "err", err, "place_id", placeID)
	}
	if found {
		return entitlements.Entitlement{Tier: cached.Tier, Status: cached.Status}
	}
	ent, err := h.provider.Lookup(ctx, placeID)
	if err != nil {
		h.logger.Warn("entitlement lookup failed, assuming free", "err", err, "place_id", placeID)
		return entitlements.Entitlement{Tier: features.TierFree, Status: "none"}
	}
	return ent
}
