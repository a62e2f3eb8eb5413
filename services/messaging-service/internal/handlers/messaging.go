package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nvoloshyn/placedesk/libs/db"
	"github.com/nvoloshyn/placedesk/libs/httpx"
	"github.com/nvoloshyn/placedesk/services/messaging-service/internal/jobs"
	"github.com/nvoloshyn/placedesk/services/messaging-service/internal/storage"
)

type Handler struct {
	pool     *db.Pool
	threads  *storage.ThreadsRepository
	settings *storage.SettingsRepository
	jobs     *jobs.Repository
	logger   *slog.Logger
}

func New(
	pool *db.Pool,
	threads *storage.ThreadsRepository,
	settings *storage.SettingsRepository,
	jobsRepo *jobs.Repository,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		pool:     pool,
		threads:  threads,
		settings: settings,
		jobs:     jobsRepo,
		logger:   logger,
	}
}

func accountIDFromHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Account-Id"))
}

func (h *Handler) ListThreads(w http.ResponseWriter, r *http.Request) {
	if accountIDFromHeader(r) == "" {
		httpx.Error(w, http.StatusUnauthorized, "missing account identity")
		return
	}
	placeID := strings.TrimSpace(r.URL.Query().Get("place_id"))
	if placeID == "" {
		httpx.Error(w, http.StatusBadRequest, "place_id is required")
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"

	threads, err := h.threads.ListThreads(r.Context(), placeID, unreadOnly, 100)
	if err != nil {
		h.logger.Error("failed to list threads", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to list threads")
		return
	}
	if threads == nil {
		threads = []storage.Thread{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"threads": threads})
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	if accountIDFromHeader(r) == "" {
		httpx.Error(w, http.StatusUnauthorized, "missing account identity")
		return
	}
	threadID := strings.TrimSpace(r.URL.Query().Get("thread_id"))
	if threadID == "" {
		httpx.Error(w, http.StatusBadRequest, "thread_id is required")
		return
	}

	if _, err := h.threads.GetThread(r.Context(), threadID); err != nil {
		if storage.IsNotFound(err) {
			httpx.Error(w, http.StatusNotFound, "thread not found")
			return
		}
		h.logger.Error("failed to load thread", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to load thread")
		return
	}

	messages, err := h.threads.ListMessages(r.Context(), threadID, 200)
	if err != nil {
		h.logger.Error("failed to list messages", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if messages == nil {
		messages = []storage.Message{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type replyRequest struct {
	ThreadID string `json:"thread_id"`
	Body     string `json:"body"`
}

// Reply appends an owner message and marks the thread read in one tx.
func (h *Handler) Reply(w http.ResponseWriter, r *http.Request) {
	if accountIDFromHeader(r) == "" {
		httpx.Error(w, http.StatusUnauthorized, "missing account identity")
		return
	}
	var req replyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.ThreadID = strings.TrimSpace(req.ThreadID)
	req.Body = strings.TrimSpace(req.Body)
	if req.ThreadID == "" || req.Body == "" {
		httpx.Error(w, http.StatusBadRequest, "thread_id and body are required")
		return
	}

	var message storage.Message
	err := h.pool.WithTx(r.Context(), func(tx pgx.Tx) error {
		var err error
		message, err = h.threads.AddMessage(r.Context(), tx, req.ThreadID, "owner", req.Body)
		if err != nil {
			return err
		}
		return h.threads.MarkRead(r.Context(), tx, req.ThreadID)
	})
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.Error(w, http.StatusNotFound, "thread not found")
			return
		}
		h.logger.Error("failed to store reply", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to store reply")
		return
	}

	httpx.JSON(w, http.StatusCreated, message)
}

type publicMessageRequest struct {
	PlaceID         string `json:"place_id"`
	CustomerName    string `json:"customer_name"`
	CustomerContact string `json:"customer_contact"`
	Body            string `json:"body"`
}

// PublicPost is the unauthenticated customer entry point. It files the
// message into the customer's thread and, when the place has notify settings
// enabled, enqueues an owner-notify job in the same tx.
func (h *Handler) PublicPost(w http.ResponseWriter, r *http.Request) {
	var req publicMessageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.PlaceID = strings.TrimSpace(req.PlaceID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerContact = strings.TrimSpace(req.CustomerContact)
	req.Body = strings.TrimSpace(req.Body)
	if req.PlaceID == "" || req.CustomerContact == "" || req.Body == "" {
		httpx.Error(w, http.StatusBadRequest, "place_id, customer_contact and body are required")
		return
	}

	notify, err := h.settings.Get(r.Context(), req.PlaceID)
	if err != nil && !storage.IsNotFound(err) {
		h.logger.Error("failed to load notify settings", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to accept message")
		return
	}

	var threadID string
	var message storage.Message
	err = h.pool.WithTx(r.Context(), func(tx pgx.Tx) error {
		var err error
		threadID, err = h.threads.EnsureThread(r.Context(), tx, req.PlaceID, req.CustomerName, req.CustomerContact)
		if err != nil {
			return err
		}
		message, err = h.threads.AddMessage(r.Context(), tx, threadID, "customer", req.Body)
		if err != nil {
			return err
		}
		if !notify.Enabled || notify.Recipient == "" {
			return nil
		}
		return h.jobs.Insert(r.Context(), tx, jobs.Job{
			IdempotencyKey: "notify:" + message.ID,
			ThreadID:       threadID,
			PlaceID:        req.PlaceID,
			Channel:        notify.Channel,
			Recipient:      notify.Recipient,
			NotifyAt:       time.Now().UTC(),
			TemplateData: map[string]any{
				"customer_name": req.CustomerName,
				"preview":       preview(req.Body),
			},
		})
	})
	if err != nil {
		h.logger.Error("failed to accept message", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to accept message")
		return
	}

	httpx.JSON(w, http.StatusCreated, map[string]any{
		"thread_id":  threadID,
		"message_id": message.ID,
	})
}

func (h *Handler) GetNotifySettings(w http.ResponseWriter, r *http.Request) {
	if accountIDFromHeader(r) == "" {
		httpx.Error(w, http.StatusUnauthorized, "missing account identity")
		return
	}
	placeID := strings.TrimSpace(r.URL.Query().Get("place_id"))
	if placeID == "" {
		httpx.Error(w, http.StatusBadRequest, "place_id is required")
		return
	}

	settings, err := h.settings.Get(r.Context(), placeID)
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.JSON(w, http.StatusOK, storage.NotifySettings{PlaceID: placeID, Channel: "email"})
			return
		}
		h.logger.Error("failed to load notify settings", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}

func (h *Handler) PutNotifySettings(w http.ResponseWriter, r *http.Request) {
	if accountIDFromHeader(r) == "" {
		httpx.Error(w, http.StatusUnauthorized, "missing account identity")
		return
	}
	var req storage.NotifySettings
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.PlaceID = strings.TrimSpace(req.PlaceID)
	req.Channel = strings.ToLower(strings.TrimSpace(req.Channel))
	req.Recipient = strings.TrimSpace(req.Recipient)
	if req.PlaceID == "" {
		httpx.Error(w, http.StatusBadRequest, "place_id is required")
		return
	}
	if req.Channel != "email" && req.Channel != "sms" {
		httpx.Error(w, http.StatusBadRequest, "channel must be email or sms")
		return
	}
	if req.Enabled && req.Recipient == "" {
		httpx.Error(w, http.StatusBadRequest, "recipient is required when enabled")
		return
	}

	if err := h.settings.Upsert(r.Context(), req); err != nil {
		h.logger.Error("failed to save notify settings", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func preview(body string) string {
	const max = 120
	if len(body) <= max {
		return body
	}
	return body[:max] + "..."
}
