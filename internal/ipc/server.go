package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"nfewatch/internal/api"
	"nfewatch/internal/daemon"
	"nfewatch/internal/journal"
	"nfewatch/internal/logging"
	"nfewatch/internal/logs"
)

const defaultOutcomeLimit = 20

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(ServiceName, &service{daemon: d, logger: logger, ctx: serverCtx}); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until Close is called.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
				)
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"),
		)
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = daemon.StatusPayload(s.daemon.Status(s.ctx))
	return nil
}

func (s *service) MonitorStart(_ MonitorRequest, resp *MonitorResponse) error {
	started, err := s.daemon.StartMonitor()
	if err != nil {
		return err
	}
	resp.OK = started
	resp.Message = "monitor started"
	if !started {
		resp.Message = "monitor already running"
	}
	s.logger.Info("monitor start requested via IPC", logging.Bool("started", started))
	return nil
}

func (s *service) MonitorStop(_ MonitorRequest, resp *MonitorResponse) error {
	stopped, err := s.daemon.StopMonitor()
	if err != nil {
		return err
	}
	resp.OK = stopped
	resp.Message = "monitor stopped"
	if !stopped {
		resp.Message = "monitor not running"
	}
	s.logger.Info("monitor stop requested via IPC", logging.Bool("stopped", stopped))
	return nil
}

func (s *service) MonitorRestart(_ MonitorRequest, resp *MonitorResponse) error {
	if err := s.daemon.RestartMonitor(); err != nil {
		return err
	}
	resp.OK = true
	resp.Message = "monitor restarted"
	return nil
}

func (s *service) SetInterval(req IntervalRequest, resp *MonitorResponse) error {
	if err := s.daemon.UpdateInterval(req.IntervalMS); err != nil {
		return err
	}
	resp.OK = true
	resp.Message = fmt.Sprintf("interval set to %dms", req.IntervalMS)
	return nil
}

func (s *service) InsertTest(req InsertTestRequest, resp *InsertTestResponse) error {
	rec, err := s.daemon.InsertTestRecord(s.ctx, req.ExternalKey)
	if err != nil {
		return err
	}
	resp.Record = api.FromRecord(rec)
	return nil
}

func (s *service) Tasks(_ TasksRequest, resp *TasksResponse) error {
	now := time.Now()
	resp.Tasks = api.FromRunningTasks(s.daemon.RunningTasks(), now)
	resp.Waiting = api.FromWatchEntries(s.daemon.WaitingFiles(), now)
	resp.TimedOut = api.FromWatchEntries(s.daemon.TimedOutFiles(), now)
	return nil
}

func (s *service) Outcomes(req OutcomesRequest, resp *OutcomesResponse) error {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultOutcomeLimit
	}
	kinds := make([]journal.Kind, 0, len(req.Kinds))
	for _, kind := range req.Kinds {
		kinds = append(kinds, journal.Kind(kind))
	}
	outcomes, err := s.daemon.RecentOutcomes(s.ctx, limit, kinds...)
	if err != nil {
		return err
	}
	resp.Outcomes = api.FromOutcomes(outcomes)
	return nil
}

func (s *service) StoreStats(_ StoreStatsRequest, resp *StoreStatsResponse) error {
	stats, err := s.daemon.StoreStats(s.ctx)
	if err != nil {
		return err
	}
	*resp = api.FromStoreStats(stats)
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, logs.TailOptions{
		Offset:   req.Offset,
		Limit:    req.Limit,
		Follow:   req.Follow,
		Wait:     wait,
		RecordID: req.RecordID,
	})
	resp.Offset = result.Offset
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	resp.Lines = result.Lines
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
