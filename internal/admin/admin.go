// Package admin serves the operational HTTP surface: health, latency
// metrics, session inspection, and token minting.
//
// Everything here is JSON over the shared mux. The voice data path never
// touches this package; a slow admin query cannot stall a turn.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxwire/voxwire/internal/auth"
	"github.com/voxwire/voxwire/internal/cache"
	"github.com/voxwire/voxwire/internal/health"
	"github.com/voxwire/voxwire/internal/observe"
	"github.com/voxwire/voxwire/internal/resilience"
	"github.com/voxwire/voxwire/internal/session"
)

// healthProbeTimeout bounds the provider health sweep on GET /health.
const healthProbeTimeout = 10 * time.Second

// ManagerProbe exposes one provider pool to the admin surface without tying
// this package to the pool's type parameter.
type ManagerProbe struct {
	Status func() resilience.ManagerStatus
	Health func(ctx context.Context) map[string]bool
}

// Probe adapts a typed manager into a ManagerProbe.
func Probe[P resilience.Provider](m *resilience.Manager[P]) ManagerProbe {
	return ManagerProbe{
		Status: m.Status,
		Health: m.HealthCheckAll,
	}
}

// Server holds the admin endpoint dependencies.
type Server struct {
	sessions  *session.Store
	collector *observe.Collector
	issuer    *auth.Issuer

	managers    []ManagerProbe
	checkers    []health.Checker
	corsOrigins []string
	activeConns func() int
	cacheStats  func() cache.Stats
}

// Option configures a Server.
type Option func(*Server)

// WithManagers registers provider pools for /health reporting.
func WithManagers(probes ...ManagerProbe) Option {
	return func(s *Server) { s.managers = append(s.managers, probes...) }
}

// WithCheckers registers component health checks (redis, postgres, ...).
func WithCheckers(checkers ...health.Checker) Option {
	return func(s *Server) { s.checkers = append(s.checkers, checkers...) }
}

// WithCORSOrigins sets the origins allowed to call the admin API from a
// browser. "*" allows any origin.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithActiveConnections wires the live-connection counter, typically the
// gateway handler's.
func WithActiveConnections(fn func() int) Option {
	return func(s *Server) { s.activeConns = fn }
}

// WithCacheStats wires semantic-cache hit-rate reporting into /health.
func WithCacheStats(fn func() cache.Stats) Option {
	return func(s *Server) { s.cacheStats = fn }
}

// New creates the admin Server.
func New(sessions *session.Store, collector *observe.Collector, issuer *auth.Issuer, opts ...Option) *Server {
	s := &Server{
		sessions:  sessions,
		collector: collector,
		issuer:    issuer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register mounts every admin route on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("GET /health", s.cors(http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /metrics", s.cors(http.HandlerFunc(s.handleMetrics)))
	mux.Handle("GET /metrics/prometheus", promhttp.Handler())
	mux.Handle("GET /sessions", s.cors(http.HandlerFunc(s.handleListSessions)))
	mux.Handle("GET /sessions/{id}", s.cors(http.HandlerFunc(s.handleGetSession)))
	mux.Handle("DELETE /sessions/{id}", s.cors(http.HandlerFunc(s.handleDeleteSession)))
	mux.Handle("DELETE /sessions/cleanup", s.cors(http.HandlerFunc(s.handleCleanup)))
	mux.Handle("POST /auth/token", s.cors(http.HandlerFunc(s.handleToken)))
	mux.Handle("OPTIONS /", s.cors(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})))
}

// cors wraps next with the configured origin policy.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	return slices.Contains(s.corsOrigins, "*") || slices.Contains(s.corsOrigins, origin)
}

// healthResponse is the GET /health body.
type healthResponse struct {
	Status         string               `json:"status"`
	ActiveSessions int                  `json:"active_sessions"`
	Components     map[string]string    `json:"components,omitempty"`
	Providers      []providerPoolHealth `json:"providers,omitempty"`
	Cache          *cache.Stats         `json:"cache,omitempty"`
}

type providerPoolHealth struct {
	resilience.ManagerStatus
	Healthy map[string]bool `json:"healthy"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok"}

	if s.activeConns != nil {
		resp.ActiveSessions = s.activeConns()
	} else if n, err := s.sessions.Count(ctx); err == nil {
		resp.ActiveSessions = n
	}

	if len(s.checkers) > 0 {
		resp.Components = make(map[string]string, len(s.checkers))
		for _, c := range s.checkers {
			if err := c.Check(ctx); err != nil {
				resp.Components[c.Name] = "fail: " + err.Error()
				resp.Status = "degraded"
			} else {
				resp.Components[c.Name] = "ok"
			}
		}
	}

	for _, probe := range s.managers {
		pool := providerPoolHealth{
			ManagerStatus: probe.Status(),
			Healthy:       probe.Health(ctx),
		}
		allDown := len(pool.Healthy) > 0
		for _, ok := range pool.Healthy {
			if ok {
				allDown = false
				break
			}
		}
		if allDown {
			resp.Status = "degraded"
		}
		resp.Providers = append(resp.Providers, pool)
	}

	if s.cacheStats != nil {
		stats := s.cacheStats()
		resp.Cache = &stats
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	lastN := 0
	if raw := r.URL.Query().Get("last"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "last must be a non-negative integer")
			return
		}
		lastN = n
	}
	writeJSON(w, http.StatusOK, s.collector.Stats(lastN))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.ListActive(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing sessions failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(ids),
		"sessions": ids,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	data, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "loading session failed")
	default:
		writeJSON(w, http.StatusOK, data)
	}
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.sessions.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "deleting session failed")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	cleaned, err := s.sessions.CleanupExpired(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleaned": cleaned})
}

// tokenRequest is the optional POST /auth/token body.
type tokenRequest struct {
	UserID string `json:"user_id"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	ExpiresIn int64  `json:"expires_in"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if s.issuer == nil {
		writeError(w, http.StatusServiceUnavailable, "token issuing disabled")
		return
	}

	// An empty body mints a guest token.
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		token  string
		userID string
		err    error
	)
	if req.UserID == "" {
		token, userID, err = s.issuer.GuestToken()
	} else {
		userID = req.UserID
		token, err = s.issuer.Token(userID)
	}
	if err != nil {
		slog.Error("token minting failed", "err", err)
		writeError(w, http.StatusInternalServerError, "token minting failed")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		UserID:    userID,
		ExpiresIn: int64(s.issuer.Validity().Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("admin response encode failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
