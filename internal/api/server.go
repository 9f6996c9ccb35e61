// Package api provides the HTTP API for observing a running simulation.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/macro-sim/internal/economy"
	"github.com/talgya/macro-sim/internal/engine"
	"github.com/talgya/macro-sim/internal/persistence"
)

// Server serves simulation snapshots over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	Hub      *Hub             // nil = streaming disabled
	DB       *persistence.DB  // nil = run lookups disabled
	RunID    string
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	historyLimiter := NewRateLimiter(60, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/readings", s.handleReadings)
	mux.HandleFunc("/api/v1/readings/history", RateLimitMiddleware(historyLimiter, s.handleHistory))
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/api/v1/bank", s.handleBank)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/run", s.handleRun)

	// Websocket stream of every tick.
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))

	return corsMiddleware(mux)
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", srv.Addr, "admin_auth", s.AdminKey != "", "stream", s.Hub != nil)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	slog.Info("HTTP API stopped")
	return nil
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of extra allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && token == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no MACROSIM_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Sim.Latest()
	status := map[string]any{
		"name":         "macro-sim",
		"run_id":       s.RunID,
		"tick":         snap.Tick,
		"sim_time":     snap.Time,
		"agents":       len(snap.Agents),
		"households":   len(s.Sim.Pop.Households),
		"firms":        len(s.Sim.Pop.AllFirms()),
		"money_supply": snap.Readings[engine.MoneySupply],
		"inflation":    snap.Readings[engine.InflationMultiplier],
		"defaults":     snap.Readings[engine.Defaults],
	}
	if s.Eng != nil {
		status["speed"] = s.Eng.Speed()
		status["running"] = s.Eng.Running()
		status["max_ticks"] = s.Eng.MaxTicks
	}
	writeJSON(w, status)
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	snap := s.Sim.Latest()
	writeJSON(w, engine.TickReadings{Tick: snap.Tick, Readings: snap.Readings})
}

// handleHistory returns readings after ?from= (default 0), at most ?limit= (default 100,
// max 1000). With ?key= only that reading is returned per tick.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := uint64(0)
	limit := 100
	if f := q.Get("from"); f != "" {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		from = v
	}
	if l := q.Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 || v > 1000 {
			http.Error(w, "limit must be 1-1000", http.StatusBadRequest)
			return
		}
		limit = v
	}

	rows := s.Sim.HistorySince(from, limit)
	if key := q.Get("key"); key != "" {
		type point struct {
			Tick  uint64  `json:"tick"`
			Value float64 `json:"value"`
		}
		points := make([]point, 0, len(rows))
		for _, row := range rows {
			v, ok := row.Readings[key]
			if !ok {
				http.Error(w, fmt.Sprintf("unknown reading %q", key), http.StatusNotFound)
				return
			}
			points = append(points, point{Tick: row.Tick, Value: v})
		}
		writeJSON(w, points)
		return
	}
	if rows == nil {
		rows = []engine.TickReadings{}
	}
	writeJSON(w, rows)
}

// handleAgents lists agents, optionally filtered by ?kind= (government, bank, firm, household)
// and, for firms, ?tier=.
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	tier := r.URL.Query().Get("tier")

	out := make([]engine.AgentView, 0)
	for _, a := range s.Sim.Latest().Agents {
		if kind != "" && a.Kind != kind {
			continue
		}
		if tier != "" && a.Tier != tier {
			continue
		}
		out = append(out, a)
	}
	writeJSON(w, out)
}

func (s *Server) handleBank(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Latest().Bank)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	out := make([]economy.Entry, 0)
	for _, e := range s.Sim.Latest().Events {
		if category == "" || e.Category == category {
			out = append(out, e)
		}
	}
	writeJSON(w, out)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil || s.RunID == "" {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	run, err := s.DB.GetRun(s.RunID)
	if err != nil {
		slog.Error("run lookup failed", "run_id", s.RunID, "error", err)
		http.Error(w, "run lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, run)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		http.Error(w, "streaming disabled", http.StatusServiceUnavailable)
		return
	}
	s.Hub.ServeWs(w, r)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not available", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}
