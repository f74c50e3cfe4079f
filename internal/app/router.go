package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taskroom/taskroom/internal/identity"
	notificationhttp "github.com/taskroom/taskroom/internal/notification/http"
	"github.com/taskroom/taskroom/internal/observability"
	"github.com/taskroom/taskroom/internal/rooms"
	"github.com/taskroom/taskroom/internal/tasks"
	"github.com/taskroom/taskroom/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	Authenticator       *Authenticator
	AccountHandler      *identity.Handler
	RoomsHandler        *rooms.Handler
	TasksHandler        *tasks.Handler
	NotificationHandler *notificationhttp.Handler
	JobHandler          *jobs.Handler
	Metrics             *observability.Metrics
}

// NewRouter constructs the chi.Router with taskroom defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(params.Authenticator.Middleware)
		if params.AccountHandler != nil {
			params.AccountHandler.MountRoutes(r)
		}
		if params.RoomsHandler != nil {
			params.RoomsHandler.MountRoutes(r)
		}
		if params.TasksHandler != nil {
			params.TasksHandler.MountRoutes(r)
		}
		if params.NotificationHandler != nil {
			params.NotificationHandler.MountRoutes(r)
		}
	})

	return r
}
