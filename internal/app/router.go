package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/campusops/campusops/internal/academicyear"
	"github.com/campusops/campusops/internal/auth"
	"github.com/campusops/campusops/internal/budget"
	"github.com/campusops/campusops/internal/emergency"
	"github.com/campusops/campusops/internal/observability"
	"github.com/campusops/campusops/internal/reporting"
	"github.com/campusops/campusops/internal/request"
	"github.com/campusops/campusops/internal/shared"
	"github.com/campusops/campusops/internal/users"
	"github.com/campusops/campusops/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager

	AuthHandler         *auth.Handler
	AcademicYearHandler *academicyear.Handler
	BudgetHandler       *budget.Handler
	RequestHandler      *request.Handler
	EmergencyHandler    *emergency.Handler
	ReportingHandler    *reporting.Handler
	DirectoryHandler    *users.Handler
	JobHandler          *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
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

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", params.AuthHandler.MountRoutes)
		api.Route("/academic-years", params.AcademicYearHandler.MountRoutes)
		api.Route("/budgets", params.BudgetHandler.MountRoutes)
		api.Route("/requests", params.RequestHandler.MountRoutes)
		api.Route("/emergencies", params.EmergencyHandler.MountRoutes)
		api.Route("/reports", params.ReportingHandler.MountRoutes)
		api.Route("/departments", params.DirectoryHandler.MountDepartmentRoutes)
		api.Route("/users", params.DirectoryHandler.MountUserRoutes)
		if params.JobHandler != nil {
			api.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
