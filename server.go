package tmplay

import (
	"context"
	"errors"
	"io"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tmplay/core"
	"pkt.systems/tmplay/httpapi"
	"pkt.systems/tmplay/internal/eventbus"
	"pkt.systems/tmplay/schema"
	"pkt.systems/tmplay/sshserver"
)

// Server composes the HTTP, SSH and in-process engine services.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Service    schema.ServiceConfig
	HTTP       httpapi.Config
	SSH        sshserver.Config
	HubHistory int
}

// EngineServer is a long-running engine daemon hosted next to the UI servers.
type EngineServer interface {
	ListenAndServe(ctx context.Context) error
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	ServiceDeps core.ServiceDeps
	// Engine is started by WithEngine.
	Engine EngineServer
	// Loader brings the engine gateway to ready. It runs in the background
	// from Start; compile and run report not-ready until it succeeds.
	Loader func(ctx context.Context) error
	// Closers are closed on Stop, e.g. the engine client connection.
	Closers []io.Closer
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP   bool
	enableSSH    bool
	enableEngine bool
}

// WithHTTP enables the HTTP API.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithSSH enables the SSH tape viewer.
func WithSSH() ServerOption {
	return func(o *serverOptions) { o.enableSSH = true }
}

// WithEngine hosts the engine daemon in-process (if provided in deps).
func WithEngine() ServerOption {
	return func(o *serverOptions) { o.enableEngine = true }
}

// New constructs a composable tmplay server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHTTP && !options.enableSSH && !options.enableEngine {
		return nil, errors.New("no services enabled")
	}
	if options.enableEngine && deps.Engine == nil {
		return nil, errors.New("engine server dependency is required")
	}

	var httpSrv *httpapi.Server
	var sshSrv *sshserver.Server
	var service core.Service
	if options.enableHTTP || options.enableSSH {
		if deps.ServiceDeps.Gateway == nil {
			return nil, errors.New("engine gateway dependency is required")
		}
		normalized, err := schema.NormalizeServiceConfig(cfg.Service)
		if err != nil {
			return nil, err
		}
		cfg.Service = normalized

		serviceDeps := deps.ServiceDeps
		var hub *httpapi.Hub
		var bus *eventbus.Bus
		if options.enableHTTP {
			hub = httpapi.NewHub(cfg.HubHistory)
		}
		if options.enableSSH {
			bus = eventbus.New(serviceDeps.Logger)
		}
		serviceDeps.EventSink = fanoutSinks(serviceDeps.EventSink, hub, bus)

		service, err = core.NewService(cfg.Service, serviceDeps)
		if err != nil {
			return nil, err
		}
		if options.enableHTTP {
			httpSrv = httpapi.NewServer(cfg.HTTP, service, hub)
		}
		if options.enableSSH {
			sshSrv = sshserver.NewServer(cfg.SSH, service, bus)
		}
	}

	return &compositeServer{
		cfg:     cfg,
		options: options,
		service: service,
		httpSrv: httpSrv,
		sshSrv:  sshSrv,
		engine:  deps.Engine,
		loader:  deps.Loader,
		closers: deps.Closers,
	}, nil
}

// fanoutSinks joins the non-nil sinks; nil when there are none.
func fanoutSinks(base core.EventSink, hub *httpapi.Hub, bus *eventbus.Bus) core.EventSink {
	sinks := make([]core.EventSink, 0, 3)
	if base != nil {
		sinks = append(sinks, base)
	}
	if hub != nil {
		sinks = append(sinks, hub)
	}
	if bus != nil {
		sinks = append(sinks, bus)
	}
	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	default:
		return eventFanout{sinks: sinks}
	}
}

type compositeServer struct {
	cfg     ServerConfig
	options serverOptions
	service core.Service
	httpSrv *httpapi.Server
	sshSrv  *sshserver.Server
	engine  EngineServer
	loader  func(ctx context.Context) error
	closers []io.Closer
	logger  pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
	closed  bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 3)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"ssh", s.options.enableSSH,
		"engine", s.options.enableEngine,
		"http_addr", s.cfg.HTTP.Addr,
		"http_base_path", s.cfg.HTTP.BasePath,
		"ssh_addr", s.cfg.SSH.Addr,
	)
	if s.options.enableEngine && s.engine != nil {
		go func() {
			if err := s.engine.ListenAndServe(s.ctx); err != nil {
				log.Error("engine server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	if s.loader != nil {
		go func() {
			// A failed load leaves the gate failed; the UI keeps serving and
			// reports the engine as unavailable.
			if err := s.loader(s.ctx); err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Warn("engine load failed", "err", err)
				}
				return
			}
			log.Info("engine ready")
		}()
	}
	if s.options.enableHTTP && s.httpSrv != nil {
		s.httpSrv.SetBaseContext(s.ctx)
		go func() {
			if err := httpapi.ListenAndServe(s.ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler()); err != nil {
				log.Error("http server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	if s.options.enableSSH && s.sshSrv != nil {
		go func() {
			if err := s.sshSrv.ListenAndServe(s.ctx); err != nil {
				log.Error("ssh server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	log := s.logger
	closers := s.closers
	alreadyClosed := s.closed
	s.closed = true
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if cancel != nil {
		cancel()
	}
	if !alreadyClosed {
		for _, closer := range closers {
			if closer == nil {
				continue
			}
			if err := closer.Close(); err != nil {
				log.Warn("server close failed", "err", err)
			}
		}
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-s.ctx.Done():
		log.Info("server stopped")
		return nil
	}
}
