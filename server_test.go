package tmplay

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"pkt.systems/tmplay/core"
	"pkt.systems/tmplay/httpapi"
	"pkt.systems/tmplay/internal/eventbus"
	"pkt.systems/tmplay/schema"
)

func TestServerStopClosesEngineClients(t *testing.T) {
	closer := &trackingCloser{}
	ctx, cancel := context.WithCancel(context.Background())
	server := &compositeServer{
		closers: []io.Closer{closer},
		ctx:     ctx,
		cancel:  cancel,
		started: true,
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := server.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := server.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if closer.count() != 1 {
		t.Fatalf("expected Close once, got %d", closer.count())
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatalf("expected server context to be canceled")
	}
}

func TestNewRequiresComponents(t *testing.T) {
	if _, err := New(ServerConfig{}, ServerDeps{}); err == nil {
		t.Fatalf("expected error with no services enabled")
	}
	if _, err := New(ServerConfig{}, ServerDeps{}, WithHTTP()); err == nil {
		t.Fatalf("expected error without a gateway")
	}
	if _, err := New(ServerConfig{}, ServerDeps{}, WithEngine()); err == nil {
		t.Fatalf("expected error without an engine server")
	}
}

func TestNewBuildsHTTPAndSSH(t *testing.T) {
	gate := core.NewReadyGate()
	deps := ServerDeps{ServiceDeps: core.ServiceDeps{
		Gateway: core.NewGateway(nil, gate, core.GatewayOptions{}),
	}}
	srv, err := New(ServerConfig{}, deps, WithHTTP(), WithSSH())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	composite := srv.(*compositeServer)
	if composite.httpSrv == nil || composite.sshSrv == nil || composite.service == nil {
		t.Fatalf("expected http, ssh and service to be built")
	}
}

func TestStartRunsLoaderAndEngine(t *testing.T) {
	engine := &fakeEngineServer{err: errors.New("socket busy")}
	loaded := make(chan struct{})
	srv, err := New(ServerConfig{}, ServerDeps{
		Engine: engine,
		Loader: func(context.Context) error {
			close(loaded)
			return nil
		},
	}, WithEngine())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := srv.Wait(); err == nil {
		t.Fatalf("expected Wait before Start to fail")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Fatalf("expected second Start to fail")
	}
	select {
	case <-loaded:
	case <-time.After(2 * time.Second):
		t.Fatalf("loader did not run")
	}
	if err := srv.Wait(); err == nil || err.Error() != "socket busy" {
		t.Fatalf("expected engine failure from Wait, got %v", err)
	}
}

func TestStopEndsWait(t *testing.T) {
	engine := &fakeEngineServer{}
	srv, err := New(ServerConfig{}, ServerDeps{Engine: engine}, WithEngine())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- srv.Wait() }()
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Wait did not return after Stop")
	}
}

func TestEventFanoutDeliversToAllSinks(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	sink := fanoutSinks(a, nil, nil)
	if sink != core.EventSink(a) {
		t.Fatalf("expected single sink to be used directly")
	}
	if fanoutSinks(nil, nil, nil) != nil {
		t.Fatalf("expected nil sink without targets")
	}
	fan := eventFanout{sinks: []core.EventSink{a, b}}
	fan.OnPlayback(schema.PlaybackEvent{SessionID: "s"})
	fan.OnCompile(schema.CompileEvent{SessionID: "s"})
	fan.OnNotice(schema.NoticeEvent{SessionID: "s"})
	fan.OnSource(schema.SourceEvent{SessionID: "s"})
	fan.OnClose(schema.SessionClosedEvent{SessionID: "s"})
	for i, sink := range []*recordingSink{a, b} {
		if got := sink.events(); len(got) != 5 || got[4] != "close" {
			t.Fatalf("sink %d: expected 5 events ending in close, got %v", i, got)
		}
	}
}

func TestClosedSessionReleasesHubHistory(t *testing.T) {
	gate := core.NewReadyGate()
	gate.MarkReady()
	hub := httpapi.NewHub(100)
	bus := eventbus.New(nil)
	svc, err := core.NewService(schema.ServiceConfig{}, core.ServiceDeps{
		Gateway:   core.NewGateway(stubEngine{}, gate, core.GatewayOptions{Timeout: time.Second}),
		EventSink: fanoutSinks(nil, hub, bus),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()
	created, err := svc.CreateSession(ctx, schema.CreateSessionRequest{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	id := created.Session.ID
	events, cancel := bus.Subscribe(id)
	defer cancel()
	if _, err := svc.Run(ctx, schema.RunRequest{ID: id}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := svc.Playback(ctx, schema.PlaybackRequest{ID: id, Action: schema.ActionForward}); err != nil {
		t.Fatalf("Playback: %v", err)
	}
	if len(hub.Replay(id, 0)) == 0 {
		t.Fatalf("expected hub history while the session is open")
	}
	if err := svc.CloseSession(ctx, schema.CloseSessionRequest{ID: id}); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if got := hub.Replay(id, 0); len(got) != 0 {
		t.Fatalf("closed session still holds %d hub events", len(got))
	}
	for {
		select {
		case ev := <-events:
			if ev.Type == eventbus.EventClose {
				return
			}
		case <-time.After(time.Second):
			t.Fatalf("bus subscriber never saw the close event")
		}
	}
}

type fakeEngineServer struct {
	err error
}

func (f *fakeEngineServer) ListenAndServe(ctx context.Context) error {
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return nil
}

type trackingCloser struct {
	mu     sync.Mutex
	closed int
}

func (c *trackingCloser) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *trackingCloser) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type recordingSink struct {
	mu   sync.Mutex
	seen []string
}

func (r *recordingSink) add(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, kind)
}

func (r *recordingSink) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func (r *recordingSink) OnPlayback(schema.PlaybackEvent)   { r.add("playback") }
func (r *recordingSink) OnCompile(schema.CompileEvent)     { r.add("compile") }
func (r *recordingSink) OnNotice(schema.NoticeEvent)       { r.add("notice") }
func (r *recordingSink) OnSource(schema.SourceEvent)       { r.add("source") }
func (r *recordingSink) OnClose(schema.SessionClosedEvent) { r.add("close") }

type stubEngine struct{}

func (stubEngine) Compile(context.Context, string) (string, error) {
	return `{"status":"success","c_code":"int main(void) { return 0; }","dot":"digraph tm {}"}`, nil
}

func (stubEngine) Run(context.Context, string, string) (string, error) {
	return `{"status":"ACCEPTED","history":[` +
		`{"step":0,"tape":"11011","head":0,"state":"q0"},` +
		`{"step":1,"tape":"11011","head":1,"state":"q0"},` +
		`{"step":2,"tape":"11011","head":2,"state":"q0"}]}`, nil
}
