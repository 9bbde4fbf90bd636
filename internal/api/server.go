package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// ServerOptions carries the optional collaborators of a Server.
type ServerOptions struct {
	History           HistoryInterface
	Renderer          FrameRenderer
	Origins           []string // Extra allowed browser origins besides localhost
	MaxBatchAdd       int
	BroadcastInterval time.Duration
	RateLimit         *RateLimitConfig
}

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with WebSocket hub for live snapshots.
type Server struct {
	engine      EngineInterface
	opts        ServerOptions
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter

	mu         sync.Mutex
	httpServer *http.Server
	started    bool
}

// NewServer creates a new API server.
//
// IMPORTANT: Background workers do NOT start until Start() is called.
// For testing HTTP endpoints without WebSocket support, use NewRouter() directly.
func NewServer(engine EngineInterface, opts ServerOptions) *Server {
	rlCfg := DefaultRateLimitConfig
	if opts.RateLimit != nil {
		rlCfg = *opts.RateLimit
	}

	s := &Server{
		engine:      engine,
		opts:        opts,
		wsHub:       NewWebSocketHub(opts.Origins),
		rateLimiter: NewIPRateLimiter(rlCfg),
	}

	var corsOrigins []string
	if len(opts.Origins) > 0 {
		corsOrigins = append([]string{"http://localhost:*", "http://127.0.0.1:*"}, opts.Origins...)
	}

	s.router = NewRouter(RouterConfig{
		Engine:      engine,
		History:     opts.History,
		Renderer:    opts.Renderer,
		RateLimiter: s.rateLimiter,
		CORSOrigins: corsOrigins,
		MaxBatchAdd: opts.MaxBatchAdd,
	})

	// The WebSocket route needs the hub instance, so it is not part of NewRouter.
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	return s
}

// startWorkers launches the hub and the broadcast loop once.
func (s *Server) startWorkers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	go s.wsHub.Run()
	s.wsHub.StartBroadcastLoop(s.engine, s.opts.BroadcastInterval)
}

// Start begins the HTTP server AND starts background workers. It blocks
// until the server stops and returns nil after a Shutdown.
func (s *Server) Start(addr string) error {
	s.startWorkers()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	log.Printf("🌐 API server starting on %s", addr)
	log.Printf("   - live feed: ws://localhost%s/ws", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Shutdown stops accepting requests, closes WebSocket clients and stops
// background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsHub.Stop()
	s.rateLimiter.Stop()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
