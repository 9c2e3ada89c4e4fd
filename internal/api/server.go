package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/typepilot/internal/delivery"
	"github.com/nerrad567/typepilot/internal/infrastructure/config"
	"github.com/nerrad567/typepilot/internal/infrastructure/logging"
	"github.com/nerrad567/typepilot/internal/learning"
	"github.com/nerrad567/typepilot/internal/orchestrator"
	"github.com/nerrad567/typepilot/internal/process"
	"github.com/nerrad567/typepilot/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// commandTimeout bounds a single session command issued over HTTP or the
// WebSocket.
const commandTimeout = 10 * time.Second

// Sessions is the session state machine. Satisfied by *session.Machine.
type Sessions interface {
	Snapshot(target string) []session.Session
	Get(id string) (session.Session, bool)
	Pause(ctx context.Context, id string) (session.Result, error)
	Resume(ctx context.Context, id string) (session.Result, error)
	TogglePause(ctx context.Context, target string) (session.Result, error)
	Stop(ctx context.Context, id string) (session.Result, error)
}

// Dispatcher runs triggers and resolves reviews.
// Satisfied by *orchestrator.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, t orchestrator.Trigger) (orchestrator.Outcome, error)
	ConfirmReview(ctx context.Context, id, editedText string) (delivery.Delivery, error)
	RejectReview(id string) error
	OverlayVisible(target string) bool
	Generating(target string) bool
}

// ReviewLister lists pending reviews. Satisfied by *delivery.Reviews.
type ReviewLister interface {
	List(target string) []delivery.Review
	Get(id string) (delivery.Review, bool)
}

// HistoryReader reads stored session records.
// Satisfied by *session.SQLiteRepository.
type HistoryReader interface {
	History(ctx context.Context, target string, limit int) ([]session.Session, error)
}

// LearningLog reads recorded learning topics. Satisfied by *learning.Store.
type LearningLog interface {
	List(ctx context.Context, limit int) ([]learning.Topic, error)
	Count(ctx context.Context) (int, error)
}

// EngineStatus reports whether the entry engine is reachable.
// Satisfied by *engine.Client.
type EngineStatus interface {
	Online() bool
}

// EngineProcess reports on a supervised engine binary.
// Satisfied by *process.Manager.
type EngineProcess interface {
	Stats() process.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	// Target is used when a request does not name one.
	Target string

	Sessions   Sessions
	Dispatcher Dispatcher
	Reviews    ReviewLister  // optional
	History    HistoryReader // optional
	Learning   LearningLog   // optional
	Engine     EngineStatus  // optional
	Process    EngineProcess // optional
	Audit      AuditLog      // optional

	// Hub is shared with the publishers that feed it. If nil the server
	// creates its own.
	Hub *Hub

	Version string
}

// Server is the HTTP API server for the typepilot core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	secCfg  config.SecurityConfig
	logger  *logging.Logger
	target  string
	version string

	sessions   Sessions
	dispatcher Dispatcher
	reviews    ReviewLister
	history    HistoryReader
	learning   LearningLog
	engine     EngineStatus
	process    EngineProcess
	audit      AuditLog

	tickets     *ticketStore
	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session machine is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Target == "" {
		return nil, fmt.Errorf("default target is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		target:     deps.Target,
		version:    deps.Version,
		sessions:   deps.Sessions,
		dispatcher: deps.Dispatcher,
		reviews:    deps.Reviews,
		history:    deps.History,
		learning:   deps.Learning,
		engine:     deps.Engine,
		process:    deps.Process,
		audit:      deps.Audit,
		tickets:    newTicketStore(ticketTTL),
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	s.hub.setBackend(s)

	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub (unless injected) and ticket cleanup, then
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	// Start periodic ticket cleanup to prevent memory leaks
	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket cleanup)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// targetOrDefault returns t, or the server's default target when t is empty.
func (s *Server) targetOrDefault(t string) string {
	if t == "" {
		return s.target
	}
	return t
}
