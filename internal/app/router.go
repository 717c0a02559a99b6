package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promanage/promanage/internal/auth"
	"github.com/promanage/promanage/internal/gate"
	"github.com/promanage/promanage/internal/observability"
	"github.com/promanage/promanage/internal/platform/httpx"
	"github.com/promanage/promanage/internal/token"
	"github.com/promanage/promanage/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger      *slog.Logger
	Config      *Config
	Gate        *gate.Gate
	AuthHandler *auth.Handler
	Codec       *token.Codec
	Pool        *pgxpool.Pool
	Metrics     *observability.Metrics
	JobHandler  *jobs.Handler
}

// NewRouter constructs the chi.Router with ProManage defaults. Route-level
// access control lives in the gate middleware, not here; handlers mounted on
// this router can assume the gate already admitted the request.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Gate:    params.Gate,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "the requested resource does not exist")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			status := "ok"
			if params.Pool != nil {
				if err := params.Pool.Ping(r.Context()); err != nil {
					params.Logger.Warn("health check database ping failed", slog.Any("error", err))
					status = "degraded"
				}
			}
			httpx.JSON(w, http.StatusOK, map[string]string{"status": status})
		})

		if params.AuthHandler != nil {
			api.Route("/auth", params.AuthHandler.MountRoutes)
		}

		if params.JobHandler != nil {
			api.Route("/jobs", params.JobHandler.MountRoutes)
		}

		// Convenience login for local development. The gate answers 404 for
		// every /api/dev path in production before this handler is reached.
		if !params.Config.IsProduction() {
			api.Post("/dev/login-as-admin", devLoginHandler(params))
		}
	})

	return r
}

func devLoginHandler(params RouterParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if params.Codec == nil {
			httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "token issuing is not configured")
			return
		}
		access, err := params.Codec.IssueAccess("1", "admin")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		refresh, err := params.Codec.IssueRefresh("1")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		gate.SetAuthCookies(w, access, refresh, "1", params.Codec.AccessTTL(), params.Codec.RefreshTTL(), params.Config.IsProduction())
		httpx.JSON(w, http.StatusOK, map[string]string{
			"access_token":  access,
			"refresh_token": refresh,
		})
	}
}
