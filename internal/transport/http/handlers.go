package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/history"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/notifications"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/apperror"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/requestcontext"
)

// Handler serves the notification and history endpoints.
type Handler struct {
	notifications *notifications.Service
	history       *history.Service
	logger        *slog.Logger
}

func NewHandler(notifySvc *notifications.Service, historySvc *history.Service, logger *slog.Logger) *Handler {
	return &Handler{
		notifications: notifySvc,
		history:       historySvc,
		logger:        logger,
	}
}

// Register mounts the authenticated API routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/notifications", h.handleListNotifications)
	r.Post("/notifications/read-all", h.handleMarkAllRead)
	r.Post("/notifications/{notificationID}/read", h.handleMarkRead)
	r.Get("/notifications/preferences", h.handleGetPreferences)
	r.Put("/notifications/preferences", h.handlePutPreferences)
	r.Get("/history/{recordType}/{recordID}", h.handleSearchHistory)
}

func (h *Handler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := requestcontext.TenantID(ctx)
	userID := requestcontext.Actor(ctx)

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	list, err := h.notifications.List(ctx, tenantID, userID, limit, offset)
	if err != nil {
		h.logger.ErrorContext(ctx, "list notifications failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		writeError(w, err)
		return
	}
	if list == nil {
		list = []notifications.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"list": list})
}

func (h *Handler) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	count, err := h.notifications.MarkAllRead(ctx, requestcontext.TenantID(ctx), requestcontext.Actor(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "mark all read failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"read": count})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "notificationID")
	err := h.notifications.MarkRead(ctx, requestcontext.TenantID(ctx), requestcontext.Actor(ctx), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pref, err := h.notifications.GetPreference(ctx, requestcontext.TenantID(ctx), requestcontext.Actor(ctx))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

type putPreferencesRequest struct {
	AlwaysNotified []string `json:"always_notified"`
	Email          string   `json:"email"`
	Locale         string   `json:"locale"`
}

func (h *Handler) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req putPreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.New(apperror.CodeBadRequest, "invalid request body"))
		return
	}

	pref := &notifications.Preference{
		TenantID:       requestcontext.TenantID(ctx),
		UserID:         requestcontext.Actor(ctx),
		AlwaysNotified: req.AlwaysNotified,
		Email:          req.Email,
		Locale:         req.Locale,
	}
	if err := h.notifications.SetPreference(ctx, pref); err != nil {
		h.logger.WarnContext(ctx, "store preference failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

func (h *Handler) handleSearchHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.history.Search(ctx,
		requestcontext.TenantID(ctx),
		chi.URLParam(r, "recordType"),
		chi.URLParam(r, "recordID"),
		queryInt(r, "limit", 0),
		queryInt(r, "offset", 0),
	)
	if err != nil {
		h.logger.ErrorContext(ctx, "history search failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
