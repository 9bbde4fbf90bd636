// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for world, grid and simulation settings.
//
// Every group has a Default* constructor and, where it makes sense, a
// *FromEnv variant where environment variables take precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// ErrInvalid is wrapped by every error returned from Validate.
var ErrInvalid = errors.New("invalid configuration")

// =============================================================================
// WORLD CONFIGURATION
// =============================================================================

// WorldConfig is the simulated domain [0,Width]×[0,Height]. It wraps at the
// edges (torus).
type WorldConfig struct {
	Width  float64
	Height float64
}

// DefaultWorld returns the default world size.
func DefaultWorld() WorldConfig {
	return WorldConfig{
		Width:  1280,
		Height: 720,
	}
}

// WorldFromEnv returns world configuration with environment variable overrides.
func WorldFromEnv() WorldConfig {
	cfg := DefaultWorld()

	if w := getEnvFloat("WORLD_WIDTH", 0); w > 0 {
		cfg.Width = w
	}
	if h := getEnvFloat("WORLD_HEIGHT", 0); h > 0 {
		cfg.Height = h
	}

	return cfg
}

// =============================================================================
// SPATIAL CONFIGURATION
// =============================================================================

// SpatialConfig holds spatial indexing settings.
type SpatialConfig struct {
	CellsX      int     // Grid columns
	CellsY      int     // Grid rows
	QueryRadius float64 // Neighbor radius used by every particle each tick
}

// DefaultSpatial returns the default spatial configuration.
// 16x9 cells over 1280x720 gives 80px cells, a little above the query radius
// so most queries touch a 3x3 window.
func DefaultSpatial() SpatialConfig {
	return SpatialConfig{
		CellsX:      16,
		CellsY:      9,
		QueryRadius: 60,
	}
}

// SpatialFromEnv returns spatial configuration with environment variable overrides.
func SpatialFromEnv() SpatialConfig {
	cfg := DefaultSpatial()

	if v := getEnvInt("GRID_CELLS_X", 0); v > 0 {
		cfg.CellsX = v
	}
	if v := getEnvInt("GRID_CELLS_Y", 0); v > 0 {
		cfg.CellsY = v
	}
	if v := getEnvFloat("QUERY_RADIUS", 0); v > 0 {
		cfg.QueryRadius = v
	}

	return cfg
}

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// FlockConfig weights the three classic flocking rules.
type FlockConfig struct {
	Separation         float64
	Alignment          float64
	Cohesion           float64
	SeparationDistance float64 // Neighbors closer than this push apart
}

// SimConfig holds simulation loop settings.
type SimConfig struct {
	Particles int     // Particles spawned at startup
	TickRate  int     // Ticks per second
	Workers   int     // Goroutines used for the neighbor phase
	Seed      int64   // RNG seed; 0 picks one from the clock
	Friction  float64 // Velocity damping per second (0..1)
	MaxSpeed  float64 // World units per second
	MinRadius float64
	MaxRadius float64
	Kinds     int     // Number of particle kinds (colors)
	Wander    float64 // Strength of the noise steering field
	Flock     FlockConfig
}

// DefaultSim returns the default simulation configuration.
func DefaultSim() SimConfig {
	return SimConfig{
		Particles: 600,
		TickRate:  30,
		Workers:   runtime.NumCPU(),
		Seed:      0,
		Friction:  0.1,
		MaxSpeed:  120,
		MinRadius: 3,
		MaxRadius: 6,
		Kinds:     5,
		Wander:    40,
		Flock: FlockConfig{
			Separation:         1.5,
			Alignment:          1.0,
			Cohesion:           0.6,
			SeparationDistance: 20,
		},
	}
}

// SimFromEnv returns simulation configuration with environment variable overrides.
func SimFromEnv() SimConfig {
	cfg := DefaultSim()

	if v := getEnvInt("PARTICLES", -1); v >= 0 {
		cfg.Particles = v
	}
	if v := getEnvInt("TICK_RATE", 0); v > 0 {
		cfg.TickRate = v
	}
	if v := getEnvInt("WORKERS", 0); v > 0 {
		cfg.Workers = v
	}
	if v := getEnvInt("SEED", 0); v != 0 {
		cfg.Seed = int64(v)
	}
	if v := getEnvFloat("FRICTION", -1); v >= 0 {
		cfg.Friction = v
	}
	if v := getEnvFloat("MAX_SPEED", 0); v > 0 {
		cfg.MaxSpeed = v
	}
	if v := getEnvFloat("WANDER", -1); v >= 0 {
		cfg.Wander = v
	}

	return cfg
}

// =============================================================================
// RESOURCE LIMITS
// =============================================================================

// ResourceLimits caps what API callers can make the simulation allocate.
type ResourceLimits struct {
	MaxParticles         int // Hard cap on live particles
	MaxSnapshotParticles int // Particles copied into each snapshot
	MaxBatchAdd          int // Particles one API call may add
	MaxQueryRadius       float64
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		MaxParticles:         20_000,
		MaxSnapshotParticles: 5_000,
		MaxBatchAdd:          1_000,
		MaxQueryRadius:       400,
	}
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port          int
	DebugDisabled bool     // Disable the localhost pprof/metrics server
	Origins       []string // Browser origins allowed besides localhost
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port: 3000,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	cfg.DebugDisabled = getEnvBool("DISABLE_DEBUG_SERVER", false)
	for _, o := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.Origins = append(cfg.Origins, o)
		}
	}

	return cfg
}

// =============================================================================
// RENDER CONFIGURATION
// =============================================================================

// RenderConfig holds offline frame rendering settings.
type RenderConfig struct {
	Width          int    // Frame width in pixels
	Height         int    // Frame height in pixels
	DrawGrid       bool   // Overlay cell lines and occupancy shading
	TimelapseDir   string // Empty disables timelapse capture
	TimelapseEvery int    // Capture one frame every N ticks
}

// DefaultRender returns the default render configuration.
func DefaultRender() RenderConfig {
	return RenderConfig{
		Width:          1280,
		Height:         720,
		DrawGrid:       true,
		TimelapseEvery: 30,
	}
}

// RenderFromEnv returns render configuration with environment variable overrides.
func RenderFromEnv() RenderConfig {
	cfg := DefaultRender()

	if w := getEnvInt("FRAME_WIDTH", 0); w > 0 {
		cfg.Width = w
	}
	if h := getEnvInt("FRAME_HEIGHT", 0); h > 0 {
		cfg.Height = h
	}
	cfg.DrawGrid = getEnvBool("FRAME_GRID", cfg.DrawGrid)
	cfg.TimelapseDir = os.Getenv("TIMELAPSE_DIR")
	if n := getEnvInt("TIMELAPSE_EVERY", 0); n > 0 {
		cfg.TimelapseEvery = n
	}

	return cfg
}

// =============================================================================
// RECORDER CONFIGURATION
// =============================================================================

// RecorderConfig controls persistence of per-tick statistics.
type RecorderConfig struct {
	Path  string // SQLite file; empty disables recording
	Every int    // Record one tick out of every N
}

// DefaultRecorder returns the default recorder configuration (disabled).
func DefaultRecorder() RecorderConfig {
	return RecorderConfig{Every: 10}
}

// RecorderFromEnv returns recorder configuration with environment variable overrides.
func RecorderFromEnv() RecorderConfig {
	cfg := DefaultRecorder()

	cfg.Path = os.Getenv("RECORD_DB")
	if n := getEnvInt("RECORD_EVERY", 0); n > 0 {
		cfg.Every = n
	}

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	World    WorldConfig
	Spatial  SpatialConfig
	Sim      SimConfig
	Limits   ResourceLimits
	Server   ServerConfig
	Render   RenderConfig
	Recorder RecorderConfig
}

// Default returns the complete configuration without environment overrides.
func Default() AppConfig {
	return AppConfig{
		World:    DefaultWorld(),
		Spatial:  DefaultSpatial(),
		Sim:      DefaultSim(),
		Limits:   DefaultLimits(),
		Server:   DefaultServer(),
		Render:   DefaultRender(),
		Recorder: DefaultRecorder(),
	}
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		World:    WorldFromEnv(),
		Spatial:  SpatialFromEnv(),
		Sim:      SimFromEnv(),
		Limits:   DefaultLimits(),
		Server:   ServerFromEnv(),
		Render:   RenderFromEnv(),
		Recorder: RecorderFromEnv(),
	}
}

// Validate checks values that would otherwise fail deep inside the engine.
// Grid geometry itself is validated by the spatial package on construction.
func (c AppConfig) Validate() error {
	switch {
	case c.World.Width <= 0 || c.World.Height <= 0:
		return fmt.Errorf("%w: world %gx%g must be positive", ErrInvalid, c.World.Width, c.World.Height)
	case c.Spatial.CellsX <= 0 || c.Spatial.CellsY <= 0:
		return fmt.Errorf("%w: grid %dx%d must be positive", ErrInvalid, c.Spatial.CellsX, c.Spatial.CellsY)
	case c.Spatial.QueryRadius <= 0:
		return fmt.Errorf("%w: query radius %g must be positive", ErrInvalid, c.Spatial.QueryRadius)
	case c.Spatial.QueryRadius > c.World.Width/2 || c.Spatial.QueryRadius > c.World.Height/2:
		// A single wrap only folds windows up to half the domain back in.
		return fmt.Errorf("%w: query radius %g exceeds half the world", ErrInvalid, c.Spatial.QueryRadius)
	case c.Sim.TickRate <= 0:
		return fmt.Errorf("%w: tick rate %d must be positive", ErrInvalid, c.Sim.TickRate)
	case c.Sim.Workers <= 0:
		return fmt.Errorf("%w: workers %d must be positive", ErrInvalid, c.Sim.Workers)
	case c.Sim.MinRadius <= 0 || c.Sim.MaxRadius < c.Sim.MinRadius:
		return fmt.Errorf("%w: particle radius range [%g,%g]", ErrInvalid, c.Sim.MinRadius, c.Sim.MaxRadius)
	case c.Sim.Kinds <= 0:
		return fmt.Errorf("%w: kinds %d must be positive", ErrInvalid, c.Sim.Kinds)
	case c.Sim.Particles > c.Limits.MaxParticles:
		return fmt.Errorf("%w: %d particles exceeds limit %d", ErrInvalid, c.Sim.Particles, c.Limits.MaxParticles)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
