package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/fleetgate/agentctl/internal/admission"
	"github.com/fleetgate/agentctl/internal/authn"
	"github.com/fleetgate/agentctl/pkg/plan"
	"github.com/fleetgate/agentctl/pkg/provisioning"
	"github.com/fleetgate/agentctl/pkg/tenant"
	"github.com/fleetgate/agentctl/pkg/usage"
)

// Config holds the parameters NewServer needs, decoupled from the
// top-level application Config struct.
type Config struct {
	CORSAllowedOrigins []string
}

// Deps holds every collaborator the HTTP surface dispatches into.
type Deps struct {
	Tenants              tenant.Store
	Plans                plan.Store
	ProvisioningQ        provisioning.Queue
	Usage                usage.Meter
	Pipeline             *admission.Pipeline
	AdminAuth            *authn.AdminAuthenticator
	DefaultMaxAttempts   int
	DefaultRetryBaseSecs int
}

// Server holds the HTTP server's router and its readiness dependencies.
type Server struct {
	Router  *chi.Mux
	logger  *slog.Logger
	db      *pgxpool.Pool
	rdb     *redis.Client
	metrics *prometheus.Registry
	deps    Deps
}

// NewServer creates an HTTP server with the middleware chain, health
// endpoints, and the full `/v1` resource surface mounted.
func NewServer(cfg Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry, deps Deps) *Server {
	s := &Server{
		Router:  chi.NewRouter(),
		logger:  logger,
		db:      db,
		rdb:     rdb,
		metrics: metricsReg,
		deps:    deps,
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(chimw.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Api-Key", "X-Tenant-Id", "X-Customer-User-Id", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.Router.Get("/health", s.handleHealthz)
	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	s.Router.Route("/v1", func(r chi.Router) {
		r.Post("/tenants", s.handleCreateTenant)
		r.Get("/tenants/{tenant_id}", s.handleGetTenant)
		r.Post("/tenants/{tenant_id}/runs", s.handleExecuteRun)
		r.Post("/provisioning/jobs/run-next", s.handleRunNextProvisioningJob)

		r.Route("/admin", func(admin chi.Router) {
			admin.Use(authn.RequireAdmin(deps.AdminAuth, []string{"platform_admin"}, []string{"plans:read", "plans:write", "tenants:write", "usage:read"}))

			admin.Get("/plans", s.handleListPlans)
			admin.Get("/plans/{plan_id}", s.handleGetPlan)
			admin.Post("/plans", s.handleCreatePlan)

			admin.Group(func(scoped chi.Router) {
				scoped.Use(authn.RequireTenantAccess(func(r *http.Request) string {
					return chi.URLParam(r, "tenant_id")
				}))
				scoped.Patch("/tenants/{tenant_id}/plan", s.handleSetTenantPlan)
				scoped.Get("/tenants/{tenant_id}/usage", s.handleTenantUsage)
			})

			admin.Get("/usage/export", s.handleUsageExport)
		})
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	type checkResult struct {
		Name   string `json:"name"`
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}

	var checks []checkResult
	allOK := true

	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("readiness check: database ping failed", "error", err)
		checks = append(checks, checkResult{Name: "database", Status: "fail", Error: err.Error()})
		allOK = false
	} else {
		checks = append(checks, checkResult{Name: "database", Status: "ok"})
	}

	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			s.logger.Error("readiness check: redis ping failed", "error", err)
			checks = append(checks, checkResult{Name: "redis", Status: "fail", Error: err.Error()})
			allOK = false
		} else {
			checks = append(checks, checkResult{Name: "redis", Status: "ok"})
		}
	}

	status := "ready"
	httpStatus := http.StatusOK
	if !allOK {
		status = "unavailable"
		httpStatus = http.StatusServiceUnavailable
	}

	Respond(w, httpStatus, map[string]any{
		"status": status,
		"checks": checks,
		"time":   time.Now().UTC(),
	})
}
