package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/projectvision/vision/pkg/httputil"
	"github.com/projectvision/vision/pkg/membership"
	"github.com/projectvision/vision/pkg/middleware"
	"github.com/projectvision/vision/pkg/observability"
)

const maxRequestBodyBytes = 1 << 20

// Dependencies are the collaborators of the API server. Service and
// Authenticator are required; the rest may be nil.
type Dependencies struct {
	Service       *membership.Service
	Authenticator *middleware.Authenticator
	InviteLimiter middleware.Limiter
	Health        *observability.HealthChecker
	Metrics       *observability.Metrics
	Registry      *prometheus.Registry
	Logger        *observability.Logger
	CORSOrigins   []string
}

// Server is the membership HTTP API
type Server struct {
	router  *mux.Router
	deps    Dependencies
	members *MembershipHandlers
	invites *InviteHandlers
	audit   *AuditHandlers
}

// NewServer creates the API server and registers its routes
func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	s := &Server{
		router:  mux.NewRouter(),
		deps:    deps,
		members: NewMembershipHandlers(deps.Service),
		invites: NewInviteHandlers(deps.Service),
		audit:   NewAuditHandlers(deps.Service),
	}
	s.setupRoutes()
	return s
}

// Router returns the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the router wrapped with tracing
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "vision-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					return r.Method + " " + tmpl
				}
			}
			return r.Method + " " + r.URL.Path
		}),
	)
}

func (s *Server) setupRoutes() {
	s.router.Use(observability.RecoveryMiddleware)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RequestLogger(s.deps.Logger))
	if s.deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.deps.Metrics))
	}
	if len(s.deps.CORSOrigins) > 0 {
		s.router.Use(httputil.CORSMiddleware(s.deps.CORSOrigins))
	}

	if s.deps.Health != nil {
		s.deps.Health.RegisterRoutes(s.router)
	}
	if s.deps.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.deps.Registry)).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(httputil.ContentTypeMiddleware)
	api.Use(httputil.MaxBytesMiddleware(maxRequestBodyBytes))
	api.Use(s.deps.Authenticator.Handler)

	s.members.RegisterRoutes(api)
	s.audit.RegisterRoutes(api)

	var limit func(http.Handler) http.Handler
	if s.deps.InviteLimiter != nil {
		limit = middleware.RateLimit("invites", s.deps.InviteLimiter, s.deps.Metrics)
	}
	s.invites.RegisterRoutes(api, limit)
}
