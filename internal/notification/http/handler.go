package notificationhttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/taskroom/taskroom/internal/identity"
	"github.com/taskroom/taskroom/internal/notification"
	"github.com/taskroom/taskroom/internal/platform/httpx"
	"github.com/taskroom/taskroom/internal/shared"
)

// Principals resolves the caller of a request.
type Principals interface {
	Current(ctx context.Context) (identity.Principal, error)
}

// Service is the notification read side used by the handler.
type Service interface {
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]notification.Notification, error)
	MarkAsRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Handler serves the caller's own notifications.
type Handler struct {
	logger     *slog.Logger
	principals Principals
	service    Service
}

// NewHandler creates a notification handler.
func NewHandler(logger *slog.Logger, principals Principals, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, principals: principals, service: service}
}

// MountRoutes registers notification endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/unread-count", h.unreadCount)
		r.Post("/read-all", h.markAll)
		r.Post("/{id}/read", h.markRead)
	})
}

func (h *Handler) caller(r *http.Request) (identity.Principal, error) {
	p, err := h.principals.Current(r.Context())
	if err != nil {
		return identity.Principal{}, err
	}
	if err := identity.CheckAccount(p); err != nil {
		return identity.Principal{}, err
	}
	return p, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, err := h.caller(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: limit must be a number", shared.ErrValidation))
			return
		}
	}
	notes, err := h.service.ListForUser(r.Context(), p.ID, limit)
	if err != nil {
		h.logger.Error("list notifications", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, notes)
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	p, err := h.caller(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	count, err := h.service.UnreadCount(r.Context(), p.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"unread": count})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	p, err := h.caller(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid notification id", shared.ErrNotFound))
		return
	}
	if err := h.service.MarkAsRead(r.Context(), p.ID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markAll(w http.ResponseWriter, r *http.Request) {
	p, err := h.caller(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	n, err := h.service.MarkAllAsRead(r.Context(), p.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"marked": n})
}
