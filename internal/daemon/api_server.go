package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"nfewatch/internal/api"
	"nfewatch/internal/config"
	"nfewatch/internal/journal"
	"nfewatch/internal/logging"
	"nfewatch/internal/services"
)

const (
	defaultOutcomeLimit = 50
	maxOutcomeLimit     = 500
	maxRequestBody      = 64 << 10
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// newAPIServer returns nil when paths.api_bind is empty.
func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.handler = authMiddleware(cfg.Paths.APIToken, srv.routes())
	return srv
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/monitor/start", s.handleStart)
	mux.HandleFunc("POST /api/monitor/stop", s.handleStop)
	mux.HandleFunc("POST /api/monitor/restart", s.handleRestart)
	mux.HandleFunc("PUT /api/monitor/interval", s.handleInterval)
	mux.HandleFunc("POST /api/records/test", s.handleInsertTest)
	mux.HandleFunc("GET /api/records/stats", s.handleStoreStats)
	mux.HandleFunc("GET /api/tasks", s.handleTasks)
	mux.HandleFunc("GET /api/outcomes", s.handleOutcomes)
	mux.HandleFunc("POST /api/notifications/test", s.handleTestNotification)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	server := s.server
	s.server, s.listener = nil, nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, StatusPayload(s.daemon.Status(r.Context())))
}

func (s *apiServer) handleStart(w http.ResponseWriter, _ *http.Request) {
	started, err := s.daemon.StartMonitor()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	msg := "monitor started"
	if !started {
		msg = "monitor already running"
	}
	s.writeJSON(w, http.StatusOK, api.ActionResponse{OK: started, Message: msg})
}

func (s *apiServer) handleStop(w http.ResponseWriter, _ *http.Request) {
	stopped, err := s.daemon.StopMonitor()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	msg := "monitor stopped"
	if !stopped {
		msg = "monitor not running"
	}
	s.writeJSON(w, http.StatusOK, api.ActionResponse{OK: stopped, Message: msg})
}

func (s *apiServer) handleRestart(w http.ResponseWriter, _ *http.Request) {
	if err := s.daemon.RestartMonitor(); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ActionResponse{OK: true, Message: "monitor restarted"})
}

func (s *apiServer) handleInterval(w http.ResponseWriter, r *http.Request) {
	var req api.IntervalRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.daemon.UpdateInterval(req.IntervalMS); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ActionResponse{OK: true, Message: fmt.Sprintf("interval set to %dms", req.IntervalMS)})
}

func (s *apiServer) handleInsertTest(w http.ResponseWriter, r *http.Request) {
	var req api.InsertTestRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	rec, err := s.daemon.InsertTestRecord(r.Context(), req.ExternalKey)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.RecordResponse{Record: api.FromRecord(rec)})
}

func (s *apiServer) handleStoreStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.daemon.StoreStats(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromStoreStats(stats))
}

func (s *apiServer) handleTasks(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	s.writeJSON(w, http.StatusOK, api.TasksResponse{
		Tasks:    api.FromRunningTasks(s.daemon.RunningTasks(), now),
		Waiting:  api.FromWatchEntries(s.daemon.WaitingFiles(), now),
		TimedOut: api.FromWatchEntries(s.daemon.TimedOutFiles(), now),
	})
}

func (s *apiServer) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := defaultOutcomeLimit
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(parsed, maxOutcomeLimit)
	}
	var kinds []journal.Kind
	for _, value := range query["kind"] {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			kinds = append(kinds, journal.Kind(trimmed))
		}
	}
	outcomes, err := s.daemon.RecentOutcomes(r.Context(), limit, kinds...)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.OutcomesResponse{Outcomes: api.FromOutcomes(outcomes)})
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, msg, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, fmt.Sprintf("%s: %v", msg, err))
		return
	}
	s.writeJSON(w, http.StatusOK, api.ActionResponse{OK: sent, Message: msg})
}

// StatusPayload converts a Status into its API representation.
func StatusPayload(status Status) api.DaemonStatus {
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		LockFilePath: status.LockFilePath,
		JournalPath:  status.JournalPath,
		LogPath:      status.LogPath,
		Watching:     status.Watching,
		Monitor:      api.FromMonitorStats(status.Monitor),
		Store:        api.StoreStatus{BaseURL: status.StoreURL, Connected: status.StoreConnected},
	}
	if status.OutcomeCounts != nil {
		payload.OutcomeCounts = api.FromOutcomeCounts(status.OutcomeCounts)
	}
	return payload
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeFailure maps facade errors to HTTP status codes.
func (s *apiServer) writeFailure(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, ErrNotRunning):
		status = http.StatusConflict
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
