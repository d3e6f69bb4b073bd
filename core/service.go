package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tmplay/examples"
	"pkt.systems/tmplay/internal/logx"
	"pkt.systems/tmplay/schema"
)

// service implements the core service behavior.
type service struct {
	cfg      schema.ServiceConfig
	gateway  *Gateway
	sink     EventSink
	clock    Clock
	logger   pslog.Logger
	mu       sync.Mutex
	sessions map[schema.SessionID]*session
}

// NewService constructs the core service implementation.
func NewService(cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	if cfg.DefaultSource == "" {
		cfg.DefaultSource = examples.DefaultSource()
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &service{
		cfg:      cfg,
		gateway:  deps.Gateway,
		sink:     deps.EventSink,
		clock:    deps.Clock,
		logger:   logger,
		sessions: make(map[schema.SessionID]*session),
	}, nil
}

func (s *service) CreateSession(ctx context.Context, req schema.CreateSessionRequest) (schema.CreateSessionResponse, error) {
	if ctx == nil {
		return schema.CreateSessionResponse{}, errors.New("missing context")
	}
	id := req.ID
	if id == "" {
		id = schema.SessionID(newID())
	}
	if err := schema.ValidateSessionID(id); err != nil {
		return schema.CreateSessionResponse{}, err
	}
	source := req.Source
	tape := req.Tape
	if req.Example != "" {
		name, err := schema.NormalizeExampleName(string(req.Example))
		if err != nil {
			return schema.CreateSessionResponse{}, err
		}
		info, exampleSource, err := examples.Get(name)
		if err != nil {
			return schema.CreateSessionResponse{}, err
		}
		source = exampleSource
		if tape == "" {
			tape = info.Tape
		}
	}
	if source == "" {
		source = s.cfg.DefaultSource
	}
	if tape == "" {
		tape = s.cfg.DefaultTape
	}

	log := logx.WithSession(ctx, id)
	sess := &session{
		id:      id,
		source:  source,
		tape:    schema.NormalizeTapeInput(tape),
		view:    FollowHead(),
		notices: newNoticeLog(s.cfg.NoticeMaxLines),
	}
	sess.player = NewPlayer(PlayerOptions{
		SpeedMS: s.cfg.SpeedMS,
		Clock:   s.clock,
		Logger:  log,
		OnChange: func(snap schema.PlaybackSnapshot) {
			s.emitPlayback(id, snap)
		},
	})

	s.mu.Lock()
	if _, exists := s.sessions[id]; exists {
		s.mu.Unlock()
		sess.player.Close()
		return schema.CreateSessionResponse{}, fmt.Errorf("%w: session %s exists", schema.ErrInvalidRequest, id)
	}
	s.sessions[id] = sess
	count := len(s.sessions)
	s.mu.Unlock()

	log.Info("service session created", "example", req.Example, "sessions", count)
	return schema.CreateSessionResponse{Session: sess.snapshot()}, nil
}

func (s *service) CloseSession(ctx context.Context, req schema.CloseSessionRequest) error {
	s.mu.Lock()
	sess := s.sessions[req.ID]
	delete(s.sessions, req.ID)
	s.mu.Unlock()
	if sess == nil {
		return schema.ErrSessionNotFound
	}
	sess.player.Close()
	s.emitClose(req.ID)
	logx.WithSession(ctx, req.ID).Info("service session closed")
	return nil
}

func (s *service) GetSession(ctx context.Context, req schema.GetSessionRequest) (schema.GetSessionResponse, error) {
	sess, err := s.lookup(req.ID)
	if err != nil {
		return schema.GetSessionResponse{}, err
	}
	return schema.GetSessionResponse{Session: sess.snapshot()}, nil
}

func (s *service) SetSource(ctx context.Context, req schema.SetSourceRequest) (schema.GetSessionResponse, error) {
	sess, err := s.lookup(req.ID)
	if err != nil {
		return schema.GetSessionResponse{}, err
	}
	sess.mu.Lock()
	changed := sess.setSourceLocked(req.Source)
	snap := sess.snapshotLocked()
	sess.mu.Unlock()
	if changed {
		logx.WithSession(ctx, req.ID).Debug("service source updated", "bytes", len(req.Source))
		s.emitSource(snap)
	}
	return schema.GetSessionResponse{Session: snap}, nil
}

func (s *service) SetTape(ctx context.Context, req schema.SetTapeRequest) (schema.GetSessionResponse, error) {
	sess, err := s.lookup(req.ID)
	if err != nil {
		return schema.GetSessionResponse{}, err
	}
	tape := schema.NormalizeTapeInput(req.Tape)
	sess.mu.Lock()
	changed := sess.setTapeLocked(tape)
	snap := sess.snapshotLocked()
	sess.mu.Unlock()
	if changed {
		logx.WithSession(ctx, req.ID).Debug("service tape updated", "tape", tape)
		s.emitSource(snap)
	}
	return schema.GetSessionResponse{Session: snap}, nil
}

func (s *service) LoadExample(ctx context.Context, req schema.LoadExampleRequest) (schema.GetSessionResponse, error) {
	sess, err := s.lookup(req.ID)
	if err != nil {
		return schema.GetSessionResponse{}, err
	}
	name, err := schema.NormalizeExampleName(string(req.Name))
	if err != nil {
		return schema.GetSessionResponse{}, err
	}
	info, source, err := examples.Get(name)
	if err != nil {
		return schema.GetSessionResponse{}, err
	}
	sess.mu.Lock()
	sess.setSourceLocked(source)
	sess.setTapeLocked(schema.NormalizeTapeInput(info.Tape))
	sess.view = FollowHead()
	sess.notices.Append(fmt.Sprintf("Loaded example %s", info.Title))
	snap := sess.snapshotLocked()
	sess.mu.Unlock()
	logx.WithSession(ctx, req.ID).Info("service example loaded", "example", name)
	s.emitSource(snap)
	s.emitNotice(req.ID, []string{fmt.Sprintf("Loaded example %s", info.Title)})
	return schema.GetSessionResponse{Session: snap}, nil
}

func (s *service) Compile(ctx context.Context, req schema.CompileRequest) (schema.CompileResponse, error) {
	sess, err := s.lookup(req.ID)
	if err != nil {
		return schema.CompileResponse{}, err
	}
	in := sess.input()
	if strings.TrimSpace(in.source) == "" {
		return schema.CompileResponse{}, schema.ErrEmptySource
	}
	log := logx.WithSession(ctx, req.ID)
	log.Info("service compile start", "bytes", len(in.source))
	result, ready := s.gateway.Compile(ctx, in.source)
	if !ready {
		log.Warn("service compile skipped", "reason", "engine not ready")
		s.emitNotice(req.ID, sess.notice(engineNotReadyNotice))
		return schema.CompileResponse{Ready: false}, nil
	}

	sess.mu.Lock()
	if sess.revision != in.revision {
		sess.mu.Unlock()
		log.Info("service compile discarded", "reason", "source changed")
		s.emitNotice(req.ID, sess.notice("Program changed while compiling; result discarded"))
		return schema.CompileResponse{Ready: true, Result: result}, nil
	}
	stored := result
	sess.compile = &stored
	sess.mu.Unlock()

	var lines []string
	if result.OK() {
		lines = []string{"Compilation Successful"}
		log.Info("service compile done", "c_bytes", len(result.CCode), "dot_bytes", len(result.Dot))
	} else {
		lines = []string{"Compilation failed: " + result.Error}
		log.Info("service compile failed", "err", result.Error)
	}
	s.emitCompile(req.ID, result)
	s.emitNotice(req.ID, sess.notice(lines...))
	return schema.CompileResponse{Ready: true, Result: result}, nil
}

func (s *service) Run(ctx context.Context, req schema.RunRequest) (schema.RunResponse, error) {
	sess, err := s.lookup(req.ID)
	if err != nil {
		return schema.RunResponse{}, err
	}
	in := sess.input()
	if strings.TrimSpace(in.source) == "" {
		return schema.RunResponse{}, schema.ErrEmptySource
	}
	runID := newID()
	log := logx.WithRun(ctx, req.ID, runID)
	ctx = logx.ContextWithRun(logx.ContextWithSessionLogger(ctx, log, req.ID), runID)
	log.Info("service run start", "tape", in.tape)
	result, ready := s.gateway.Run(ctx, in.source, in.tape)
	if !ready {
		log.Warn("service run skipped", "reason", "engine not ready")
		s.emitNotice(req.ID, sess.notice(engineNotReadyNotice))
		return schema.RunResponse{Ready: false, Playback: sess.player.Snapshot()}, nil
	}

	sess.mu.Lock()
	if sess.revision != in.revision {
		sess.mu.Unlock()
		log.Info("service run discarded", "reason", "input changed")
		s.emitNotice(req.ID, sess.notice("Program or tape changed while running; result discarded"))
		return schema.RunResponse{Ready: true, Status: result.Status, Error: result.Error, Playback: sess.player.Snapshot()}, nil
	}
	sess.runError = result.Error
	sess.player.Load(result)
	sess.mu.Unlock()

	logx.WithResult(log, result).Info("service run done")
	lines := []string{
		fmt.Sprintf("Simulation Complete: %s", result.Status),
		fmt.Sprintf("Total steps: %d", len(result.History)),
	}
	if result.Error != "" {
		lines = append(lines, "Simulation error: "+result.Error)
	}
	s.emitNotice(req.ID, sess.notice(lines...))
	return schema.RunResponse{
		Ready:    true,
		Status:   result.Status,
		Error:    result.Error,
		Playback: sess.player.Snapshot(),
	}, nil
}

func (s *service) Playback(ctx context.Context, req schema.PlaybackRequest) (schema.PlaybackResponse, error) {
	sess, err := s.lookup(req.ID)
	if err != nil {
		return schema.PlaybackResponse{}, err
	}
	action, err := schema.NormalizePlaybackAction(string(req.Action))
	if err != nil {
		return schema.PlaybackResponse{}, err
	}
	p := sess.player
	switch action {
	case schema.ActionForward:
		p.StepForward()
	case schema.ActionBackward:
		p.StepBackward()
	case schema.ActionToggle:
		p.TogglePlay()
	case schema.ActionPlay:
		p.Play()
	case schema.ActionPause:
		p.Pause()
	case schema.ActionReset:
		p.Reset()
	case schema.ActionFirst:
		p.First()
	case schema.ActionLast:
		p.Last()
	case schema.ActionSeek:
		p.SetStep(req.Step)
	}
	snap := p.Snapshot()
	logx.WithSession(ctx, req.ID).Debug("service playback", "action", action, "step", snap.CurrentStep, "playing", snap.IsPlaying)
	return schema.PlaybackResponse{Playback: snap}, nil
}

func (s *service) SetSpeed(ctx context.Context, req schema.SetSpeedRequest) (schema.PlaybackResponse, error) {
	sess, err := s.lookup(req.ID)
	if err != nil {
		return schema.PlaybackResponse{}, err
	}
	if err := sess.player.SetSpeed(req.SpeedMS); err != nil {
		return schema.PlaybackResponse{}, err
	}
	logx.WithSession(ctx, req.ID).Debug("service playback speed", "speed_ms", req.SpeedMS)
	return schema.PlaybackResponse{Playback: sess.player.Snapshot()}, nil
}

func (s *service) SetViewport(ctx context.Context, req schema.SetViewportRequest) (schema.GetViewportResponse, error) {
	sess, err := s.lookup(req.ID)
	if err != nil {
		return schema.GetViewportResponse{}, err
	}
	head := activeHead(sess.player.Snapshot())
	sess.mu.Lock()
	switch {
	case req.Scroll != 0:
		sess.view = ScrollViewport(sess.view, head, req.Scroll)
	case req.Offset != nil:
		sess.view = SetViewOffset(*req.Offset)
	case req.Follow:
		sess.view = FollowHead()
	default:
		sess.view = SetViewOffset(ViewportCenter(sess.view, head))
	}
	sess.mu.Unlock()
	return s.GetViewport(ctx, schema.GetViewportRequest{ID: req.ID})
}

func (s *service) GetViewport(ctx context.Context, req schema.GetViewportRequest) (schema.GetViewportResponse, error) {
	sess, err := s.lookup(req.ID)
	if err != nil {
		return schema.GetViewportResponse{}, err
	}
	cells := req.VisibleCells
	if cells == 0 {
		cells = s.cfg.VisibleCells
	}
	if cells < 0 {
		return schema.GetViewportResponse{}, fmt.Errorf("%w: visible cells must not be negative", schema.ErrInvalidRequest)
	}
	if cells > schema.MaxVisibleCells {
		return schema.GetViewportResponse{}, fmt.Errorf("%w: visible cells must not exceed %d", schema.ErrInvalidRequest, schema.MaxVisibleCells)
	}
	snap := sess.player.Snapshot()
	sess.mu.Lock()
	view := sess.view
	tape := sess.tape
	sess.mu.Unlock()

	out := schema.ViewportSnapshot{
		View:         view,
		VisibleCells: cells,
		Head:         -1,
		Step:         -1,
	}
	if snap.Step != nil {
		out.Head = snap.Step.Head
		out.State = snap.Step.State
		out.Step = snap.Step.Step
		tape = snap.Step.Tape
	}
	out.Cells = ComputeViewport(tape, out.Head, view, cells)
	return schema.GetViewportResponse{Viewport: out}, nil
}

func (s *service) GetArtifact(ctx context.Context, req schema.GetArtifactRequest) (schema.GetArtifactResponse, error) {
	sess, err := s.lookup(req.ID)
	if err != nil {
		return schema.GetArtifactResponse{}, err
	}
	sess.mu.Lock()
	compiled := sess.compile
	sess.mu.Unlock()
	if compiled == nil || !compiled.OK() {
		return schema.GetArtifactResponse{}, schema.ErrNoArtifact
	}
	switch req.Kind {
	case schema.ArtifactC:
		return schema.GetArtifactResponse{Kind: req.Kind, Filename: "output.c", Content: compiled.CCode}, nil
	case schema.ArtifactDot:
		return schema.GetArtifactResponse{Kind: req.Kind, Filename: "graph.dot", Content: compiled.Dot}, nil
	default:
		return schema.GetArtifactResponse{}, fmt.Errorf("%w: unknown artifact %q", schema.ErrInvalidRequest, req.Kind)
	}
}

func (s *service) ListExamples(ctx context.Context) (schema.ListExamplesResponse, error) {
	return schema.ListExamplesResponse{Examples: examples.List()}, nil
}

func (s *service) EngineStatus(ctx context.Context) schema.EngineStatus {
	return s.gateway.Status()
}

const engineNotReadyNotice = "Engine not ready; try again shortly"

func (s *service) lookup(id schema.SessionID) (*session, error) {
	if err := schema.ValidateSessionID(id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[id]
	if sess == nil {
		return nil, schema.ErrSessionNotFound
	}
	return sess, nil
}

func (s *service) emitPlayback(id schema.SessionID, snap schema.PlaybackSnapshot) {
	if s.sink == nil {
		return
	}
	s.sink.OnPlayback(schema.PlaybackEvent{SessionID: id, Snapshot: snap})
}

func (s *service) emitCompile(id schema.SessionID, result schema.CompileResult) {
	if s.sink == nil {
		return
	}
	s.sink.OnCompile(schema.CompileEvent{SessionID: id, Result: result})
}

func (s *service) emitNotice(id schema.SessionID, lines []string) {
	if s.sink == nil || len(lines) == 0 {
		return
	}
	s.sink.OnNotice(schema.NoticeEvent{
		SessionID: id,
		Lines:     append([]string(nil), lines...),
	})
}

func (s *service) emitSource(snap schema.SessionSnapshot) {
	if s.sink == nil {
		return
	}
	s.sink.OnSource(schema.SourceEvent{SessionID: snap.ID, Source: snap.Source, Tape: snap.Tape})
}

func (s *service) emitClose(id schema.SessionID) {
	if s.sink == nil {
		return
	}
	s.sink.OnClose(schema.SessionClosedEvent{SessionID: id})
}

// activeHead returns the head of the displayed step, or 0 before any run.
func activeHead(snap schema.PlaybackSnapshot) int {
	if snap.Step == nil {
		return 0
	}
	return snap.Step.Head
}
