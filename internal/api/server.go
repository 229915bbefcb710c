// Package api implements the notifyhub REST API server using the chi
// router. It registers the business-entity, fcm-token, push-notification,
// and live-view route groups from spec §6, with middleware for logging,
// recovery, CORS, and rate limiting.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/amityvox/notifyhub/internal/auth"
	"github.com/amityvox/notifyhub/internal/config"
	"github.com/amityvox/notifyhub/internal/emaildelivery"
	"github.com/amityvox/notifyhub/internal/events"
	notifymw "github.com/amityvox/notifyhub/internal/middleware"
	"github.com/amityvox/notifyhub/internal/orchestrator"
	"github.com/amityvox/notifyhub/internal/push"
	"github.com/amityvox/notifyhub/internal/queue"
	"github.com/amityvox/notifyhub/internal/ratelimit"
	"github.com/amityvox/notifyhub/internal/socket"
	"github.com/amityvox/notifyhub/internal/store"
	"github.com/amityvox/notifyhub/internal/telemetry"
	"github.com/amityvox/notifyhub/internal/tokens"
)

// Server is the HTTP API server for notifyhub. It holds the chi router and
// every collaborator a route handler needs.
type Server struct {
	Router *chi.Mux

	Store        *store.Store
	Config       *config.Config
	AuthService  *auth.Service
	Orchestrator *orchestrator.Orchestrator
	Tokens       *tokens.Registry
	Queue        *queue.Client
	EventBus     *events.Bus
	Mailer       *emaildelivery.Client
	Push         *push.Client
	Telemetry    *telemetry.Recorder
	Registry     *prometheus.Registry
	Limiter      *ratelimit.Limiter
	Sockets      *socket.Service

	InstanceID string
	Version    string
	Logger     *slog.Logger

	server *http.Server
}

// Deps groups NewServer's collaborators.
type Deps struct {
	Store        *store.Store
	Config       *config.Config
	AuthService  *auth.Service
	Orchestrator *orchestrator.Orchestrator
	Tokens       *tokens.Registry
	Queue        *queue.Client
	EventBus     *events.Bus
	Mailer       *emaildelivery.Client
	Push         *push.Client
	Telemetry    *telemetry.Recorder
	Registry     *prometheus.Registry
	Limiter      *ratelimit.Limiter
	Sockets      *socket.Service
	InstanceID   string
	Version      string
	Logger       *slog.Logger
}

// NewServer creates a new API server with all routes and middleware
// registered.
func NewServer(d Deps) *Server {
	s := &Server{
		Router:       chi.NewRouter(),
		Store:        d.Store,
		Config:       d.Config,
		AuthService:  d.AuthService,
		Orchestrator: d.Orchestrator,
		Tokens:       d.Tokens,
		Queue:        d.Queue,
		EventBus:     d.EventBus,
		Mailer:       d.Mailer,
		Push:         d.Push,
		Telemetry:    d.Telemetry,
		Registry:     d.Registry,
		Limiter:      d.Limiter,
		Sockets:      d.Sockets,
		InstanceID:   d.InstanceID,
		Version:      d.Version,
		Logger:       d.Logger,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// registerMiddleware adds global middleware to the router.
func (s *Server) registerMiddleware() {
	s.Router.Use(middleware.RequestID)
	s.Router.Use(middleware.RealIP)
	s.Router.Use(notifymw.CorrelationID)
	s.Router.Use(notifymw.TracingLogger(s.Logger))
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(notifymw.SecurityHeaders)
	s.Router.Use(corsMiddleware(s.Config.HTTP.CORSOrigins))
	s.Router.Use(middleware.Compress(5))
	s.Router.Use(requestTimeout(s.Config.HTTP))
	s.Router.Use(maxBodySize(1 << 20))
	s.Router.Use(s.rateLimitMiddleware())
}

// requestTimeout wraps the router in chi's Timeout middleware using the
// configured request timeout, falling back to 30s if unset/unparseable.
func requestTimeout(cfg config.HTTPConfig) func(http.Handler) http.Handler {
	d, err := cfg.RequestTimeoutParsed()
	if err != nil || d <= 0 {
		d = 30 * time.Second
	}
	return middleware.Timeout(d)
}

// registerRoutes mounts all API route groups on the router.
func (s *Server) registerRoutes() {
	entityH := &entityHandler{s: s}
	tokenH := &tokenHandler{s: s}
	pushH := &pushHandler{s: s}
	liveViewH := &liveViewHandler{s: s}

	s.Router.Get("/health", s.handleShallowHealthCheck)
	s.Router.Get("/health/deep", s.handleDeepHealthCheck)
	s.Router.Get("/metrics", s.handleMetrics)
	s.Router.Get("/ws", s.handleSocketUpgrade)

	s.Router.Route("/api/v1", func(r chi.Router) {
		r.Route("/signups", func(r chi.Router) {
			r.Post("/", entityH.handleCreateSignup)
			r.Get("/{id}/welcome-email-status", entityH.handleSignupWelcomeEmailStatus)
		})
		r.Route("/logins", func(r chi.Router) {
			r.Post("/", entityH.handleCreateLogin)
			r.Get("/{id}/login-alert-email-status", entityH.handleLoginAlertEmailStatus)
			r.Get("/{id}/login-in-app-status", entityH.handleLoginInAppStatus)
		})
		r.Route("/purchases", func(r chi.Router) {
			r.Post("/", entityH.handleCreatePurchase)
			r.Get("/{id}/purchase-push-status", entityH.handlePurchasePushStatus)
		})
		r.Route("/friend-requests", func(r chi.Router) {
			r.Post("/", entityH.handleCreateFriendRequest)
			r.Get("/{id}/in-app-status", entityH.handleFriendRequestInAppStatus)
		})
		r.Route("/reset-passwords", func(r chi.Router) {
			r.Post("/", entityH.handleCreateResetPassword)
			r.Get("/{id}/reset-email-status", entityH.handleResetPasswordEmailStatus)
		})

		r.Route("/fcm-tokens", func(r chi.Router) {
			r.Post("/", tokenH.handleRegister)
			r.Post("/refresh", tokenH.handleRefresh)
			r.Delete("/{token}", tokenH.handleDelete)
			r.Get("/user/{userId}", tokenH.handleListByUser)
			r.Get("/statistics", tokenH.handleStatistics)
			r.Post("/mark-stale", tokenH.handleMarkStale)
			r.Delete("/cleanup", tokenH.handleCleanup)
		})

		r.Route("/push-notifications", func(r chi.Router) {
			r.Get("/purchase/{purchaseId}/status", pushH.handlePurchaseStatus)
			r.Get("/{id}", pushH.handleGet)
			r.Patch("/{id}/delivery-status", pushH.handleDeliveryStatus)
			r.Post("/{id}/clicked", pushH.handleClicked)
		})

		r.Route("/live-view", func(r chi.Router) {
			r.Get("/status", liveViewH.handleStatus)
			r.Get("/requests", liveViewH.handleRequests)
			r.Get("/queues", liveViewH.handleQueues)
			r.Get("/connections", liveViewH.handleConnections)
			r.With(auth.RequireAuth(s.AuthService)).Post("/simulate", liveViewH.handleSimulate)
		})
	})
}

// Start runs the HTTP server on the configured listen address until the
// context is canceled or ListenAndServe returns a fatal error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.Config.HTTP.Listen,
		Handler: s.Router,
	}
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// maxBodySize limits the request body to the given number of bytes.
func maxBodySize(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ct := r.Header.Get("Content-Type")
			if r.Body != nil && !strings.HasPrefix(ct, "multipart/form-data") {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware returns a chi middleware that sets CORS headers for the
// given allowed origins.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed := false
			for _, o := range origins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")
				isWildcard := len(origins) == 1 && origins[0] == "*"
				if !isWildcard {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
