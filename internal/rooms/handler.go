package rooms

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/taskroom/taskroom/internal/identity"
	"github.com/taskroom/taskroom/internal/platform/httpx"
	"github.com/taskroom/taskroom/internal/shared"
)

const (
	rotateRateLimit  = 5
	rotateRateWindow = time.Minute
)

// Principals resolves the caller of a request.
type Principals interface {
	Current(ctx context.Context) (identity.Principal, error)
}

// Handler serves room administration endpoints.
type Handler struct {
	logger     *slog.Logger
	principals Principals
	service    *Service
}

// NewHandler creates a rooms handler.
func NewHandler(logger *slog.Logger, principals Principals, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, principals: principals, service: service}
}

// MountRoutes registers room endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(rotateRateLimit, rotateRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too many requests", "")
		}),
	)
	r.Post("/rooms", h.create)
	r.Route("/rooms/current", func(r chi.Router) {
		r.Get("/", h.current)
		r.With(limiter).Post("/rotate", h.rotate)
		r.Get("/history", h.history)
		r.Get("/members", h.members)
		r.Post("/members/{id}/status", h.setStatus)
		r.Post("/members/{id}/role", h.changeRole)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if id, ok := shared.SubjectFromContext(r.Context()); ok {
		return "principal:" + id.String(), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

// caller resolves the principal and its room.
func (h *Handler) caller(r *http.Request) (identity.Principal, uuid.UUID, error) {
	p, err := h.principals.Current(r.Context())
	if err != nil {
		return identity.Principal{}, uuid.Nil, err
	}
	if err := identity.CheckAccount(p); err != nil {
		return identity.Principal{}, uuid.Nil, err
	}
	roomID, err := RoomOf(p)
	if err != nil {
		return identity.Principal{}, uuid.Nil, err
	}
	return p, roomID, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.StatusFor(err); status == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, err := h.principals.Current(r.Context())
	if err != nil {
		h.fail(w, "create room", err)
		return
	}
	var in CreateRoomInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	room, err := h.service.Create(r.Context(), p, in)
	if err != nil {
		h.fail(w, "create room", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, room)
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	p, err := h.principals.Current(r.Context())
	if err != nil {
		h.fail(w, "current room", err)
		return
	}
	room, err := h.service.Current(r.Context(), p)
	if err != nil {
		h.fail(w, "current room", err)
		return
	}
	// Only admins see the join code.
	if p.Role != identity.RoleAdmin {
		room.CurrentCode = ""
	}
	httpx.JSON(w, http.StatusOK, room)
}

func (h *Handler) rotate(w http.ResponseWriter, r *http.Request) {
	p, roomID, err := h.caller(r)
	if err != nil {
		h.fail(w, "rotate code", err)
		return
	}
	room, err := h.service.RotateCode(r.Context(), p, roomID)
	if err != nil {
		h.fail(w, "rotate code", err)
		return
	}
	httpx.JSON(w, http.StatusOK, room)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	p, roomID, err := h.caller(r)
	if err != nil {
		h.fail(w, "code history", err)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.History(r.Context(), p, roomID, limit)
	if err != nil {
		h.fail(w, "code history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) members(w http.ResponseWriter, r *http.Request) {
	p, roomID, err := h.caller(r)
	if err != nil {
		h.fail(w, "list members", err)
		return
	}
	filter := MemberFilter{Status: identity.AccountStatus(r.URL.Query().Get("status"))}
	out, err := h.service.ListMembers(r.Context(), p, roomID, filter)
	if err != nil {
		h.fail(w, "list members", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	p, _, err := h.caller(r)
	if err != nil {
		h.fail(w, "set account status", err)
		return
	}
	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid member id", shared.ErrNotFound))
		return
	}
	var in SetStatusInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	out, err := h.service.SetAccountStatus(r.Context(), p, targetID, in)
	if err != nil {
		h.fail(w, "set account status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	p, _, err := h.caller(r)
	if err != nil {
		h.fail(w, "change role", err)
		return
	}
	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid member id", shared.ErrNotFound))
		return
	}
	var in ChangeRoleInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	out, err := h.service.ChangeRole(r.Context(), p, targetID, in)
	if err != nil {
		h.fail(w, "change role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: limit must be a number", shared.ErrValidation)
	}
	return limit, nil
}
