package identity

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskroom/taskroom/internal/platform/httpx"
)

// AccountService is the part of Service the handler uses.
type AccountService interface {
	Current(ctx context.Context) (Principal, error)
	Register(ctx context.Context, in RegisterInput) (Principal, error)
}

// Handler serves the caller's own account.
type Handler struct {
	logger  *slog.Logger
	service AccountService
}

// NewHandler creates an account handler.
func NewHandler(logger *slog.Logger, service AccountService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers account endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/account", h.current)
	r.Post("/account", h.register)
}

// current is the one route open to every account status.
func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Current(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	p, err := h.service.Register(r.Context(), in)
	if err != nil {
		status, _ := httpx.StatusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("register principal", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

