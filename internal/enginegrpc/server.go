package enginegrpc

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"pkt.systems/pslog"
	"pkt.systems/tmplay/core"
	"pkt.systems/tmplay/schema"
)

// Verifier is implemented by backends that can check they are usable
// before the daemon reports SERVING.
type Verifier interface {
	Verify(ctx context.Context) error
}

// Server exposes a core.Engine over gRPC on a Unix domain socket.
type Server struct {
	cfg     Config
	backend core.Engine
	logger  pslog.Logger
	health  *health.Server

	lastPingUnix int64
}

// NewServer constructs an engine gRPC server around backend.
func NewServer(cfg Config, backend core.Engine) *Server {
	return &Server{cfg: cfg, backend: backend, health: health.NewServer()}
}

// ListenAndServe serves until ctx is done or keepalive pings stop arriving.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.cfg.SocketPath == "" {
		return errors.New("engine socket path is required")
	}
	if s.backend == nil {
		return errors.New("engine backend is required")
	}
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o755); err != nil {
		return err
	}
	_ = os.Remove(s.cfg.SocketPath)

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(s.cfg.SocketPath) }()

	grpcServer := grpc.NewServer()
	registerEngineServer(grpcServer, s)
	healthpb.RegisterHealthServer(grpcServer, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	s.logger.Info("engine grpc listening", "socket", s.cfg.SocketPath)

	errCh := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.verify(runCtx)
	s.setLastPing(time.Now())
	if s.cfg.KeepaliveInterval > 0 && s.cfg.KeepaliveMisses > 0 {
		go s.keepaliveLoop(runCtx, cancel, grpcServer)
	}
	go func() {
		errCh <- grpcServer.Serve(listener)
	}()

	select {
	case <-runCtx.Done():
		s.health.Shutdown()
		grpcServer.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// verify flips the health status to SERVING once the backend checks out.
func (s *Server) verify(ctx context.Context) {
	if verifier, ok := s.backend.(Verifier); ok {
		if err := verifier.Verify(ctx); err != nil {
			s.logger.Error("engine backend verify failed", "err", err)
			return
		}
	}
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.logger.Info("engine ready")
}

// Compile forwards a compile request to the backend.
func (s *Server) Compile(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error) {
	s.setLastPing(time.Now())
	source := stringField(req, fieldSource)
	if source == "" {
		return nil, status.Error(codes.InvalidArgument, schema.ErrEmptySource.Error())
	}
	log := s.log(ctx)
	started := time.Now()
	raw, err := s.backend.Compile(pslog.ContextWithLogger(ctx, log), source)
	if err != nil {
		log.Warn("engine compile failed", "err", err, "duration", time.Since(started))
		return nil, engineStatus(err)
	}
	log.Debug("engine compile done", "source_len", len(source), "duration", time.Since(started))
	return wrapperspb.String(raw), nil
}

// Run forwards a run request to the backend.
func (s *Server) Run(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error) {
	s.setLastPing(time.Now())
	source := stringField(req, fieldSource)
	if source == "" {
		return nil, status.Error(codes.InvalidArgument, schema.ErrEmptySource.Error())
	}
	tape := stringField(req, fieldTape)
	log := s.log(ctx)
	started := time.Now()
	raw, err := s.backend.Run(pslog.ContextWithLogger(ctx, log), source, tape)
	if err != nil {
		log.Warn("engine run failed", "err", err, "duration", time.Since(started))
		return nil, engineStatus(err)
	}
	log.Debug("engine run done", "source_len", len(source), "tape_len", len(tape), "duration", time.Since(started))
	return wrapperspb.String(raw), nil
}

// Ping updates the keepalive timer.
func (s *Server) Ping(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.setLastPing(time.Now())
	s.log(ctx).Trace("engine ping")
	return &emptypb.Empty{}, nil
}

func (s *Server) log(ctx context.Context) pslog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return pslog.Ctx(ctx)
}

func (s *Server) setLastPing(ts time.Time) {
	atomic.StoreInt64(&s.lastPingUnix, ts.UnixNano())
}

func (s *Server) lastPing() time.Time {
	val := atomic.LoadInt64(&s.lastPingUnix)
	if val == 0 {
		return time.Time{}
	}
	return time.Unix(0, val)
}

func (s *Server) keepaliveLoop(ctx context.Context, cancel context.CancelFunc, grpcServer *grpc.Server) {
	ticker := time.NewTicker(s.cfg.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := s.lastPing()
			if last.IsZero() {
				continue
			}
			if time.Since(last) > time.Duration(s.cfg.KeepaliveMisses)*s.cfg.KeepaliveInterval {
				s.logger.Warn("engine keepalive missed; shutting down", "last_ping", last.Format(time.RFC3339Nano), "interval", s.cfg.KeepaliveInterval, "misses", s.cfg.KeepaliveMisses)
				s.health.Shutdown()
				grpcServer.GracefulStop()
				cancel()
				return
			}
		}
	}
}

// engineStatus maps backend failures onto gRPC status codes.
func engineStatus(err error) error {
	var engineErr *core.EngineError
	if !errors.As(err, &engineErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return status.Error(codes.DeadlineExceeded, err.Error())
		}
		if errors.Is(err, context.Canceled) {
			return status.Error(codes.Canceled, err.Error())
		}
		return status.Error(codes.Internal, err.Error())
	}
	switch engineErr.Kind {
	case core.EngineErrorTimeout:
		return status.Error(codes.DeadlineExceeded, engineErr.Error())
	case core.EngineErrorCanceled:
		return status.Error(codes.Canceled, engineErr.Error())
	case core.EngineErrorUnavailable:
		return status.Error(codes.Unavailable, engineErr.Error())
	case core.EngineErrorExec:
		return status.Error(codes.FailedPrecondition, engineErr.Error())
	case core.EngineErrorMalformed:
		return status.Error(codes.DataLoss, engineErr.Error())
	default:
		return status.Error(codes.Internal, engineErr.Error())
	}
}
