package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/taskroom/taskroom/internal/identity"
	"github.com/taskroom/taskroom/internal/platform/httpx"
	"github.com/taskroom/taskroom/internal/shared"
)

// Principals resolves the caller of a request.
type Principals interface {
	Current(ctx context.Context) (identity.Principal, error)
}

// Handler exposes the lifecycle engine over HTTP.
type Handler struct {
	logger     *slog.Logger
	principals Principals
	service    *Service
}

// NewHandler creates a task handler.
func NewHandler(logger *slog.Logger, principals Principals, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, principals: principals, service: service}
}

// MountRoutes registers task endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/stats", h.stats)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Patch("/", h.update)
			r.Delete("/", h.delete)
			r.Post("/transitions", h.transition)
			r.Get("/history", h.history)
		})
	})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.StatusFor(err); status == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func taskID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid task id", shared.ErrNotFound)
	}
	return id, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, err := h.principals.Current(r.Context())
	if err != nil {
		h.fail(w, "list tasks", err)
		return
	}
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status")), Query: q.Get("q")}
	if q.Get("mine") == "true" {
		filter.AssignedTo = &p.ID
	}
	out, err := h.service.List(r.Context(), p, filter)
	if err != nil {
		h.fail(w, "list tasks", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, err := h.principals.Current(r.Context())
	if err != nil {
		h.fail(w, "create task", err)
		return
	}
	var in CreateTaskInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	out, err := h.service.Create(r.Context(), p, in)
	if err != nil {
		h.fail(w, "create task", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	p, err := h.principals.Current(r.Context())
	if err != nil {
		h.fail(w, "task stats", err)
		return
	}
	out, err := h.service.Stats(r.Context(), p)
	if err != nil {
		h.fail(w, "task stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.principals.Current(r.Context())
	if err != nil {
		h.fail(w, "get task", err)
		return
	}
	id, err := taskID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.Get(r.Context(), p, id)
	if err != nil {
		h.fail(w, "get task", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	p, err := h.principals.Current(r.Context())
	if err != nil {
		h.fail(w, "update task", err)
		return
	}
	id, err := taskID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in UpdateTaskInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	out, err := h.service.Update(r.Context(), p, id, in)
	if err != nil {
		h.fail(w, "update task", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	p, err := h.principals.Current(r.Context())
	if err != nil {
		h.fail(w, "delete task", err)
		return
	}
	id, err := taskID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), p, id); err != nil {
		h.fail(w, "delete task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	p, err := h.principals.Current(r.Context())
	if err != nil {
		h.fail(w, "transition task", err)
		return
	}
	id, err := taskID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in TransitionInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	out, err := h.service.Transition(r.Context(), p, id, in)
	if err != nil {
		h.fail(w, "transition task", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	p, err := h.principals.Current(r.Context())
	if err != nil {
		h.fail(w, "task history", err)
		return
	}
	id, err := taskID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.History(r.Context(), p, id)
	if err != nil {
		h.fail(w, "task history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}
