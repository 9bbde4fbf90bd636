package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"swarm-grid/internal/api"
	"swarm-grid/internal/config"
	"swarm-grid/internal/game"
	"swarm-grid/internal/render"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🐝 ================================")
	log.Println("🐝  SWARM GRID - SIMULATION SERVER")
	log.Println("🐝 ================================")

	// Load centralized configuration (SSOT - Single Source of Truth)
	appConfig := config.Load()
	if err := appConfig.Validate(); err != nil {
		log.Fatalf("❌ %v", err)
	}

	engineCfg := game.EngineConfigFrom(appConfig)
	engineCfg.Palette = render.Palette(engineCfg.Kinds)

	log.Printf("🌍 World %gx%g, grid %dx%d, query radius %g",
		appConfig.World.Width, appConfig.World.Height,
		appConfig.Spatial.CellsX, appConfig.Spatial.CellsY, appConfig.Spatial.QueryRadius)
	log.Printf("🎮 Config: %d particles, %d TPS, %d workers, seed %d",
		appConfig.Sim.Particles, appConfig.Sim.TickRate, appConfig.Sim.Workers, appConfig.Sim.Seed)
	limits := appConfig.Limits
	log.Printf("🛡️ Resource limits: %d particles, %d per snapshot, %d per batch, radius %g",
		limits.MaxParticles, limits.MaxSnapshotParticles, limits.MaxBatchAdd, limits.MaxQueryRadius)

	engine, err := game.NewEngine(engineCfg)
	if err != nil {
		log.Fatalf("❌ Engine: %v", err)
	}

	// Start recorder
	var recorder *game.Recorder
	if appConfig.Recorder.Path != "" {
		recorder, err = game.OpenRecorder(appConfig.Recorder.Path, appConfig.Recorder.Every)
		if err != nil {
			log.Printf("⚠️ Recorder disabled: %v", err)
			recorder = nil
		}
	} else {
		log.Println("💡 RECORD_DB not set - tick history disabled")
	}

	renderer := render.NewRenderer(render.Options{
		Width:      appConfig.Render.Width,
		Height:     appConfig.Render.Height,
		DrawGrid:   appConfig.Render.DrawGrid,
		Background: render.DefaultOptions().Background,
	})

	var timelapse *render.Timelapse
	if dir := appConfig.Render.TimelapseDir; dir != "" {
		// The timelapse draws on its own renderer so /api/frame.png never waits on it.
		tr := render.NewRenderer(renderer.Options())
		if timelapse, err = render.NewTimelapse(tr, dir, appConfig.Render.TimelapseEvery); err != nil {
			log.Printf("⚠️ Timelapse disabled: %v", err)
			timelapse = nil
		}
	}

	engine.SetTickObserver(func(s game.TickStats) {
		api.ObserveTick(s)
		if recorder != nil {
			recorder.Record(s)
			api.UpdateRecorderStats(recorder.Stats())
		}
		engine.ViewSnapshot(func(snap *game.WorldSnapshot) {
			if _, err := timelapse.Capture(snap); err != nil {
				log.Printf("⚠️ %v", err)
			}
		})
	})

	// Start debug server
	var debugSrv *http.Server
	if !appConfig.Server.DebugDisabled {
		debugSrv = api.StartDebugServer(api.DefaultObservabilityConfig())
	}

	opts := api.ServerOptions{
		Renderer:    renderer,
		Origins:     appConfig.Server.Origins,
		MaxBatchAdd: limits.MaxBatchAdd,
	}
	if recorder != nil {
		opts.History = recorder
	}
	server := api.NewServer(engine, opts)

	engine.Start()

	addr := fmt.Sprintf(":%d", appConfig.Server.Port)
	serverErr := make(chan error, 1)
	go func() {
		log.Printf("🌐 API server on http://localhost%s", addr)
		log.Printf("   - state:  http://localhost%s/api/state", addr)
		log.Printf("   - frame:  http://localhost%s/api/frame.png", addr)
		serverErr <- server.Start(addr)
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	select {
	case <-quit:
	case err := <-serverErr:
		if err != nil {
			log.Printf("❌ API server: %v", err)
		}
	}

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ API shutdown: %v", err)
	}
	if debugSrv != nil {
		debugSrv.Shutdown(ctx)
	}
	engine.Stop()
	if recorder != nil {
		if err := recorder.Close(); err != nil {
			log.Printf("⚠️ Recorder close: %v", err)
		}
		stats := recorder.Stats()
		log.Printf("💾 Recorded %d ticks (%d dropped)", stats.Written, stats.Dropped)
	}
	if timelapse != nil {
		log.Printf("🎞️ Captured %d frames", timelapse.Frames())
	}
	log.Println("👋 Goodbye!")
}
