package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"swarm-grid/internal/game"
	"swarm-grid/internal/game/spatial"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// EngineInterface defines the engine methods used by the API.
// This interface enables mocking for tests without spinning up the tick loop.
// Keep this minimal - only include methods the API layer actually calls.
type EngineInterface interface {
	// ViewSnapshot calls fn with the latest snapshot, which stays valid until
	// fn returns; it reports false before the first snapshot
	ViewSnapshot(fn func(*game.WorldSnapshot)) bool
	// GridStats returns occupancy statistics of the spatial index
	GridStats() spatial.GridStats
	// LastTick returns timings of the most recent tick
	LastTick() game.TickStats
	// Neighbors returns the particles within radius of a point
	Neighbors(x, y, radius float64) []game.ParticleSnapshot
	// AddParticles spawns up to n particles at random and reports how many were added
	AddParticles(n int) int
	// AddParticleAt spawns one particle; NaN velocity components are randomised
	AddParticleAt(x, y, vx, vy float64) (uint32, bool)
	// ParticleCount returns the number of live particles
	ParticleCount() int
	// TickRate returns the measured ticks per second
	TickRate() float64
}

// HistoryInterface reads persisted tick statistics.
type HistoryInterface interface {
	Recent(ctx context.Context, limit int) ([]game.TickRecord, error)
}

// FrameRenderer encodes a snapshot as a PNG image.
type FrameRenderer interface {
	RenderPNG(snap *game.WorldSnapshot, w io.Writer) error
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Engine: mockEngine,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Engine is the simulation engine (required)
	Engine EngineInterface

	// History serves /api/history. Optional; the route answers 404 without it.
	History HistoryInterface

	// Renderer serves /api/frame.png. Optional; the route answers 404 without it.
	Renderer FrameRenderer

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, only localhost origins are allowed.
	CORSOrigins []string

	// MaxBatchAdd caps POST /api/particles {"count": n}. Zero means 1000.
	MaxBatchAdd int

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the handler functions for the router.
type routerHandlers struct {
	engine      EngineInterface
	history     HistoryInterface
	renderer    FrameRenderer
	maxBatchAdd int
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// IMPORTANT: This function is PURE apart from the rate limiter's cleanup
// goroutine: no listeners are opened and no broadcast loop is started.
// This makes it safe to use in tests with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	h := &routerHandlers{
		engine:      cfg.Engine,
		history:     cfg.History,
		renderer:    cfg.Renderer,
		maxBatchAdd: cfg.MaxBatchAdd,
	}
	if h.maxBatchAdd <= 0 {
		h.maxBatchAdd = 1000
	}

	r.Route("/api", func(r chi.Router) {
		// World state
		r.Get("/state", h.handleGetState)
		r.Get("/stats", h.handleGetStats)
		r.Get("/grid", h.handleGetGrid)
		r.Get("/history", h.handleGetHistory)

		// Spatial queries
		r.Get("/query", h.handleQuery)

		// Population
		r.Post("/particles", h.handleAddParticles)

		r.Get("/frame.png", h.handleFrame)
	})

	r.Get("/health", h.handleHealth)

	return r
}

// metricsMiddleware records latency and status per route pattern, keeping
// label cardinality bounded by the route table.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				endpoint = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}
