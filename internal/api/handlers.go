package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"swarm-grid/internal/game"
)

// Handler methods for routerHandlers.
// These are used by both the standalone router (for testing) and the full Server.

func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	var body []byte
	var err error
	ok := h.engine.ViewSnapshot(func(snap *game.WorldSnapshot) {
		body, err = json.Marshal(snap)
	})
	writeSnapshotJSON(w, body, ok, err)
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	t := h.engine.LastTick()
	writeJSON(w, map[string]interface{}{
		"particles": h.engine.ParticleCount(),
		"tps":       h.engine.TickRate(),
		"tick":      t.Tick,
		"lastTick": map[string]interface{}{
			"durationUs":  t.Duration.Microseconds(),
			"queryUs":     t.Query.Microseconds(),
			"integrateUs": t.Integrate.Microseconds(),
			"rebuildUs":   t.Rebuild.Microseconds(),
			"candidates":  t.Candidates,
			"neighbors":   t.Neighbors,
		},
		"grid": h.engine.GridStats(),
	})
}

func (h *routerHandlers) handleGetGrid(w http.ResponseWriter, r *http.Request) {
	var body []byte
	var err error
	ok := h.engine.ViewSnapshot(func(snap *game.WorldSnapshot) {
		body, err = json.Marshal(map[string]interface{}{
			"tick":   snap.Tick,
			"width":  snap.Width,
			"height": snap.Height,
			"grid":   snap.Grid,
		})
	})
	writeSnapshotJSON(w, body, ok, err)
}

func (h *routerHandlers) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, "Recording disabled", http.StatusNotFound)
		return
	}

	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, 1000)
	}

	rows, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		log.Printf("❌ History query failed: %v", err)
		writeError(w, "History unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

func (h *routerHandlers) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	x, errX := parseFinite(q.Get("x"))
	y, errY := parseFinite(q.Get("y"))
	radius, errR := parseFinite(q.Get("r"))
	if err := errors.Join(errX, errY, errR); err != nil {
		writeError(w, "x, y and r must be finite numbers", http.StatusBadRequest)
		return
	}
	if radius < 0 {
		writeError(w, "r must not be negative", http.StatusBadRequest)
		return
	}

	found := h.engine.Neighbors(x, y, radius)
	writeJSON(w, map[string]interface{}{
		"x":         x,
		"y":         y,
		"r":         radius,
		"count":     len(found),
		"particles": found,
	})
}

func (h *routerHandlers) handleAddParticles(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count *int     `json:"count"`
		X     *float64 `json:"x"`
		Y     *float64 `json:"y"`
		VX    *float64 `json:"vx"`
		VY    *float64 `json:"vy"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 4096)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	switch {
	case req.X != nil || req.Y != nil:
		if req.X == nil || req.Y == nil {
			writeError(w, "x and y are both required", http.StatusBadRequest)
			return
		}
		vx, vy := math.NaN(), math.NaN()
		if req.VX != nil {
			vx = *req.VX
		}
		if req.VY != nil {
			vy = *req.VY
		}
		id, ok := h.engine.AddParticleAt(*req.X, *req.Y, vx, vy)
		if !ok {
			// Handle particle limit reached (DoS protection)
			writeError(w, "Particle limit reached", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]interface{}{"success": true, "id": id})

	case req.Count != nil:
		n := *req.Count
		if n <= 0 {
			writeError(w, "count must be positive", http.StatusBadRequest)
			return
		}
		n = min(n, h.maxBatchAdd)
		added := h.engine.AddParticles(n)
		if added == 0 {
			writeError(w, "Particle limit reached", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]interface{}{
			"success": true,
			"count":   added,
			"total":   h.engine.ParticleCount(),
		})

	default:
		writeError(w, "count or x/y is required", http.StatusBadRequest)
	}
}

func (h *routerHandlers) handleFrame(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		writeError(w, "Rendering disabled", http.StatusNotFound)
		return
	}
	start := time.Now()
	var buf bytes.Buffer
	var err error
	ok := h.engine.ViewSnapshot(func(snap *game.WorldSnapshot) {
		err = h.renderer.RenderPNG(snap, &buf)
	})
	if !ok {
		writeError(w, "No snapshot yet", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		log.Printf("❌ Frame render failed: %v", err)
		writeError(w, "Render failed", http.StatusInternalServerError)
		return
	}
	RecordRender(time.Since(start))

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":    "ok",
		"particles": h.engine.ParticleCount(),
		"tick":      h.engine.LastTick().Tick,
	})
}

// Helper functions (package-level for reuse)

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("not finite")
	}
	return v, nil
}

// writeSnapshotJSON writes a body encoded while the snapshot was held, so
// slow clients never keep the snapshot slot locked.
func writeSnapshotJSON(w http.ResponseWriter, body []byte, ok bool, err error) {
	switch {
	case !ok:
		writeError(w, "No snapshot yet", http.StatusServiceUnavailable)
	case err != nil:
		log.Printf("❌ Snapshot encode failed: %v", err)
		writeError(w, "Encode failed", http.StatusInternalServerError)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
