// Package http implements the REST API of the project lifecycle service.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/palms-core/internal/application/command"
	"github.com/alem-hub/palms-core/internal/application/query"
	"github.com/alem-hub/palms-core/internal/domain/activity"
	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/interface/http/handlers"
	"github.com/alem-hub/palms-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Host string
	Port int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	MaxHeaderBytes int

	// MaxBodyBytes limits request bodies of the API.
	MaxBodyBytes int64

	// MaxConcurrent caps in-flight API requests (0 = unlimited).
	MaxConcurrent int

	AllowedOrigins []string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 10 * time.Second,
		MaxHeaderBytes: 1 << 20,
		MaxBodyBytes:   1 << 20,
		MaxConcurrent:  100,
		AllowedOrigins: []string{"*"},
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Commands are the write-side handlers exposed by the API.
type Commands struct {
	CreateProject      *command.CreateProjectHandler
	UpdateProject      *command.UpdateProjectHandler
	SubmitProject      *command.SubmitProjectHandler
	CancelSubmission   *command.CancelSubmissionHandler
	AddTarget          *command.AddTargetHandler
	RemoveTarget       *command.RemoveTargetHandler
	UpdateTargets      *command.UpdateTargetsHandler
	BranchProject      *command.BranchProjectHandler
	DecideAvailability *command.DecideAvailabilityHandler
	AttachOutcome      *command.AttachOutcomeHandler
	CompleteProject    *command.CompleteProjectHandler
	GradeProject       *command.GradeProjectHandler
	ResetProject       *command.ResetProjectHandler
	UnlinkProject      *command.UnlinkProjectHandler
	CreateProposal     *command.CreateProposalHandler
	Proposals          *command.ProposalHandler
	CreateApplication  *command.CreateApplicationHandler
	Applications       *command.ApplicationHandler
	AnnounceMilestone  *command.AnnounceMilestoneHandler
	Commissions        *command.CommissionHandler
}

// Queries are the read-side handlers exposed by the API.
type Queries struct {
	GetProject       *query.GetProjectHandler
	ListProjects     *query.ListProjectsHandler
	ListApplications *query.ListApplicationsHandler
	ListProposals    *query.ListProposalsHandler
	GetProposal      *query.GetProposalHandler
	ListActivity     *query.ListActivityHandler
}

// Dependencies contains everything the handlers need.
type Dependencies struct {
	Commands Commands
	Queries  Queries

	Auth          identity.Provider
	HealthChecker handlers.HealthChecker
	Logger        *logger.Logger
	Version       string

	// Clock is used for read-time urgency. Defaults to time.Now.
	Clock func() time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     chi.Router
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger.With(logger.Component("http")),
	}
	s.router = s.routes()

	s.httpServer = &http.Server{
		Addr:              config.Address(),
		Handler:           s.router,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.tracingMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(handlers.SecurityHeadersMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/live", s.handleLive)

	r.Route("/api/v1", func(api chi.Router) {
		if s.config.RequestTimeout > 0 {
			api.Use(middleware.Timeout(s.config.RequestTimeout))
		}
		if s.config.MaxConcurrent > 0 {
			api.Use(middleware.Throttle(s.config.MaxConcurrent))
		}
		if s.config.MaxBodyBytes > 0 {
			api.Use(handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes))
		}
		api.Use(handlers.NewBearerAuth(s.deps.Auth, s.deps.Logger).Middleware)

		api.Route("/projects", func(r chi.Router) {
			r.Get("/", s.handleListProjects)
			r.Post("/", s.handleCreateProject)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetProject)
				r.Patch("/", s.handleUpdateProject)
				r.Post("/submit", s.handleSubmitProject)
				r.Post("/cancel", s.handleCancelSubmission)
				r.Post("/targets", s.handleAddTarget)
				r.Post("/outcome", s.handleAttachOutcome)
				r.Post("/complete", s.handleCompleteProject)
				r.Post("/grade", s.handleGradeProject)
				r.Post("/reset", s.handleResetProject)
				r.Post("/unlink", s.handleUnlinkProject)
				r.Get("/applications", s.handleListProjectApplications)
				r.Get("/activity", s.handleActivity(activity.EntityProject))
			})
		})

		api.Route("/availabilities/{id}", func(r chi.Router) {
			r.Patch("/", s.handleUpdateTargets)
			r.Delete("/", s.handleRemoveTarget)
			r.Post("/approve", s.handleDecide(command.DecisionApprove))
			r.Post("/reject", s.handleDecide(command.DecisionReject))
			r.Post("/return", s.handleDecide(command.DecisionReturn))
			r.Post("/branch", s.handleBranchProject)
		})

		api.Route("/proposals", func(r chi.Router) {
			r.Get("/", s.handleListProposals)
			r.Post("/", s.handleCreateProposal)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetProposal)
				r.Delete("/", s.handleDeleteProposal)
				r.Post("/send", s.handleProposalAction(s.deps.Commands.Proposals.Send))
				r.Post("/cancel", s.handleProposalAction(s.deps.Commands.Proposals.Cancel))
				r.Post("/accept", s.handleProposalAction(s.deps.Commands.Proposals.Accept))
				r.Post("/reject", s.handleProposalAction(s.deps.Commands.Proposals.Reject))
				r.Get("/activity", s.handleActivity(activity.EntityProposal))
			})
		})

		api.Route("/applications", func(r chi.Router) {
			r.Get("/", s.handleListApplicantApplications)
			r.Post("/", s.handleCreateApplication)
			r.Route("/{id}", func(r chi.Router) {
				r.Post("/send", s.handleApplicationAction(s.deps.Commands.Applications.Send))
				r.Post("/cancel", s.handleApplicationAction(s.deps.Commands.Applications.Cancel))
				r.Post("/accept", s.handleApplicationAction(s.deps.Commands.Applications.Accept))
				r.Post("/reject", s.handleApplicationAction(s.deps.Commands.Applications.Reject))
				r.Get("/activity", s.handleActivity(activity.EntityApplication))
			})
		})

		api.Post("/milestones", s.handleAnnounceMilestone)
		api.Route("/commissions/{id}", func(r chi.Router) {
			r.Post("/lock", s.handleCommission(s.deps.Commands.Commissions.Lock))
			r.Post("/unlock", s.handleCommission(s.deps.Commands.Commissions.Unlock))
		})
	})

	return r
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

var tracer = otel.Tracer("github.com/alem-hub/palms-core/internal/interface/http")

// tracingMiddleware continues the caller's trace from the W3C headers and
// opens a server span per request. Command spans become its children.
func (s *Server) tracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			),
		)
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}

// loggingMiddleware logs all HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Info("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
			logger.Latency(time.Since(start)),
			logger.String("ip", r.RemoteAddr),
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.String("trace_id", traceID(r.Context())),
		)
	})
}

func traceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic recovered",
					logger.Any("error", rec),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", r.URL.Path),
					logger.String("request_id", middleware.GetReqID(r.Context())),
				)
				writeJSONError(w, r, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "healthy", "version": s.deps.Version})
		return
	}
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
