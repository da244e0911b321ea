// Package api implements the HTTP API: accounts, the planning document,
// direct tool endpoints, the assistant and the calendar feed.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/axis/internal/agent"
	"github.com/nugget/axis/internal/auth"
	"github.com/nugget/axis/internal/buildinfo"
	"github.com/nugget/axis/internal/config"
	"github.com/nugget/axis/internal/store"
	"github.com/nugget/axis/internal/tools"
	"github.com/nugget/axis/internal/usage"
)

// maxBodyBytes caps every request body the API decodes.
const maxBodyBytes = 1 << 20

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Store     *store.Store
	Usage     *usage.Store
	Auth      *auth.Authenticator
	Tools     *tools.Registry
	Agent     *agent.Loop
	Scheduler tools.Scheduler

	// PublicURL is the externally reachable base URL used in calendar
	// subscription links. Empty means derive it from the request.
	PublicURL string
	RateLimit config.RateLimitConfig
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	deps    Deps
	limiter *rateLimiter
	logger  *slog.Logger
	server  *http.Server
	now     func() time.Time
}

// NewServer creates a new API server.
func NewServer(address string, port int, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		port:    port,
		deps:    deps,
		limiter: newRateLimiter(deps.RateLimit),
		logger:  logger.With("component", "api"),
		now:     time.Now,
	}
}

// Handler builds the routing table wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Accounts
	mux.HandleFunc("POST /api/auth/register", s.limited(s.handleRegister))
	mux.HandleFunc("POST /api/auth/login", s.limited(s.handleLogin))
	mux.HandleFunc("GET /api/me", s.authed(s.handleMe))
	mux.HandleFunc("PUT /api/me", s.authed(s.handleUpdateMe))
	mux.HandleFunc("PUT /api/me/password", s.authed(s.handleChangePassword))
	mux.HandleFunc("DELETE /api/me", s.authed(s.handleDeleteMe))

	// Planning document
	mux.HandleFunc("GET /api/data", s.authed(s.handleGetData))
	mux.HandleFunc("PUT /api/data", s.authed(s.handlePutData))
	mux.HandleFunc("PUT /api/data/profile", s.authed(s.handlePutProfile))
	mux.HandleFunc("PUT /api/data/fixed-blocks", s.authed(s.handlePutFixedBlocks))

	// Direct tool endpoints
	mux.HandleFunc("POST /api/tasks", s.authed(s.handleAddTask))
	mux.HandleFunc("POST /api/tasks/{id}/complete", s.authed(s.handleCompleteTask))
	mux.HandleFunc("DELETE /api/tasks/{id}", s.authed(s.handleDeleteTask))
	mux.HandleFunc("POST /api/habits", s.authed(s.handleAddHabit))
	mux.HandleFunc("DELETE /api/habits/{id}", s.authed(s.handleDeleteHabit))
	mux.HandleFunc("POST /api/schedule/rebalance", s.authed(s.handleRebalance))
	mux.HandleFunc("POST /api/reschedule", s.authed(s.handleReschedule))

	// Assistant
	mux.HandleFunc("POST /api/assistant", s.limited(s.authed(s.handleAssistant)))

	// Calendar
	mux.HandleFunc("GET /api/calendar/token", s.authed(s.handleCalendarToken))
	mux.HandleFunc("POST /api/calendar/token/rotate", s.authed(s.handleRotateCalendarToken))
	mux.HandleFunc("GET /api/calendar/qr.png", s.authed(s.handleCalendarQR))
	mux.HandleFunc("GET /calendar/{token}", s.handleCalendarFeed)

	// Usage
	mux.HandleFunc("GET /api/usage", s.authed(s.handleUsage))

	// Health endpoints
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It returns when the server stops;
// a clean shutdown returns nil.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // assistant runs make several model calls
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// statusRecorder captures the response code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", logPath(r),
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// logPath keeps calendar feed tokens out of the request log.
func logPath(r *http.Request) string {
	if strings.HasPrefix(r.URL.Path, "/calendar/") {
		return "/calendar/<token>"
	}
	return r.URL.Path
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.RuntimeInfo(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

// respond writes v as a JSON body with the given status.
func (s *Server) respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, v, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	s.respond(w, code, map[string]string{"error": message})
}

// decodeJSON reads a size-limited JSON body into v. An empty body is
// an error unless allowEmpty is set, in which case v is left untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return badRequest("request body too large or unreadable")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		if allowEmpty {
			return nil
		}
		return badRequest("request body is required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return badRequest("invalid JSON: %v", err)
	}
	return nil
}
