package enginegrpc

import (
	"context"
	"errors"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"pkt.systems/pslog"
	"pkt.systems/tmplay/core"
)

// Client implements core.Engine over gRPC.
type Client struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// Dial creates a new engine client over a Unix domain socket. The
// connection is established lazily on the first call.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	if socketPath == "" {
		return nil, errors.New("engine socket path is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dialer := func(ctx context.Context, addr string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", addr)
	}
	conn, err := grpc.NewClient(
		"passthrough:///"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialer),
	)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, health: healthpb.NewHealthClient(conn)}, nil
}

// Close closes the underlying gRPC connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Compile implements core.Engine.
func (c *Client) Compile(ctx context.Context, source string) (string, error) {
	req, err := structpb.NewStruct(map[string]any{fieldSource: source})
	if err != nil {
		return "", core.NewEngineError(core.EngineErrorUnknown, "compile", err)
	}
	return c.invoke(ctx, "compile", methodCompile, req)
}

// Run implements core.Engine.
func (c *Client) Run(ctx context.Context, source, tape string) (string, error) {
	req, err := structpb.NewStruct(map[string]any{fieldSource: source, fieldTape: tape})
	if err != nil {
		return "", core.NewEngineError(core.EngineErrorUnknown, "run", err)
	}
	return c.invoke(ctx, "run", methodRun, req)
}

func (c *Client) invoke(ctx context.Context, op, method string, req *structpb.Struct) (string, error) {
	if c.conn == nil {
		return "", core.NewEngineError(core.EngineErrorUnavailable, op, errors.New("engine client not initialized"))
	}
	out := new(wrapperspb.StringValue)
	if err := c.conn.Invoke(ctx, method, req, out); err != nil {
		logGRPCError(pslog.Ctx(ctx), "engine "+op+" failed", err)
		return "", wrapEngineError(op, err)
	}
	return out.GetValue(), nil
}

// Ping sends a keepalive ping to the daemon.
func (c *Client) Ping(ctx context.Context) error {
	if c.conn == nil {
		return errors.New("engine client not initialized")
	}
	return c.conn.Invoke(ctx, methodPing, &emptypb.Empty{}, new(emptypb.Empty))
}

// Serving reports whether the daemon's health check says SERVING.
func (c *Client) Serving(ctx context.Context) (bool, error) {
	if c.health == nil {
		return false, errors.New("engine client not initialized")
	}
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// KeepAlive pings the daemon every interval until ctx is done.
func (c *Client) KeepAlive(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	log := pslog.Ctx(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	consecutive := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval/2)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				consecutive++
				log.Warn("engine keepalive ping failed", "misses", consecutive, "err", err)
				continue
			}
			if consecutive > 0 {
				log.Debug("engine keepalive recovered", "misses", consecutive)
			}
			consecutive = 0
		}
	}
}

func logGRPCError(log pslog.Logger, msg string, err error) {
	if log == nil || err == nil {
		return
	}
	if st, ok := status.FromError(err); ok {
		log.Warn(msg, "err", err, "code", st.Code().String(), "message", st.Message())
		return
	}
	log.Warn(msg, "err", err)
}

func wrapEngineError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *core.EngineError
	if errors.As(err, &existing) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return core.NewEngineError(core.EngineErrorCanceled, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.NewEngineError(core.EngineErrorTimeout, op, err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return core.NewEngineError(core.EngineErrorUnknown, op, err)
	}
	var kind core.EngineErrorKind
	switch st.Code() {
	case codes.Unavailable:
		kind = core.EngineErrorUnavailable
	case codes.DeadlineExceeded:
		kind = core.EngineErrorTimeout
	case codes.Canceled:
		kind = core.EngineErrorCanceled
	case codes.FailedPrecondition:
		kind = core.EngineErrorExec
	case codes.DataLoss:
		kind = core.EngineErrorMalformed
	default:
		kind = core.EngineErrorUnknown
	}
	wrapped := core.NewEngineError(kind, op, err)
	wrapped.Message = st.Message()
	return wrapped
}
