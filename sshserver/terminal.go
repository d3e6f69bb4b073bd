package sshserver

import (
	"context"
	"errors"
	"io"
	"sync"

	gliderssh "github.com/gliderlabs/ssh"

	"pkt.systems/pslog"
	"pkt.systems/tmplay/core"
	"pkt.systems/tmplay/internal/eventbus"
	"pkt.systems/tmplay/internal/format"
	"pkt.systems/tmplay/schema"
)

const maxLocalNotes = 50

// viewer drives one interactive tape viewer bound to a single core session.
type viewer struct {
	screen   *screen
	service  core.Service
	id       schema.SessionID
	title    string
	theme    tuiTheme
	renderer *format.PlainRenderer
	events   <-chan eventbus.Event

	width  int
	height int

	mu     sync.Mutex
	busy   string
	notes  []string
	redraw chan struct{}
	wg     sync.WaitGroup
}

func newViewer(out io.Writer, service core.Service, id schema.SessionID, title string, theme tuiTheme, events <-chan eventbus.Event) *viewer {
	return &viewer{
		screen:   newScreen(out),
		service:  service,
		id:       id,
		title:    title,
		theme:    theme,
		renderer: format.NewPlainRenderer(),
		events:   events,
		width:    80,
		height:   24,
		redraw:   make(chan struct{}, 1),
	}
}

func (v *viewer) SetSize(width, height int) {
	if width > 0 {
		v.width = width
	}
	if height > 0 {
		v.height = height
	}
}

// Run paints the viewer and handles input until quit, ctx cancellation or
// the key stream closing.
func (v *viewer) Run(ctx context.Context, keys <-chan key, winCh <-chan gliderssh.Window) error {
	log := pslog.Ctx(ctx)
	v.screen.EnterAltScreen()
	defer func() {
		v.wg.Wait()
		v.screen.ExitAltScreen()
	}()
	if err := v.render(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case k, ok := <-keys:
			if !ok {
				return nil
			}
			if v.handleKey(ctx, k) {
				log.Debug("ssh viewer quit")
				return nil
			}
		case win, ok := <-winCh:
			if !ok {
				winCh = nil
				continue
			}
			v.SetSize(win.Width, win.Height)
			v.screen.Invalidate()
		case ev, ok := <-v.events:
			if !ok {
				v.events = nil
				continue
			}
			log.Trace("ssh viewer event", "type", ev.Type)
		case <-v.redraw:
		}
		if err := v.render(ctx); err != nil {
			return err
		}
	}
}

// handleKey applies one key press and reports whether the viewer should quit.
func (v *viewer) handleKey(ctx context.Context, k key) bool {
	switch k.kind {
	case keyCtrlC, keyCtrlD:
		return true
	case keyCtrlL:
		v.screen.Invalidate()
	case keyRight:
		v.playback(ctx, schema.ActionForward)
	case keyLeft:
		v.playback(ctx, schema.ActionBackward)
	case keyHome:
		v.playback(ctx, schema.ActionFirst)
	case keyEnd:
		v.playback(ctx, schema.ActionLast)
	case keyUp:
		v.stepSpeed(ctx, -1)
	case keyDown:
		v.stepSpeed(ctx, 1)
	case keyPageUp:
		v.scroll(ctx, -v.cells())
	case keyPageDown:
		v.scroll(ctx, v.cells())
	case keyEnter:
		v.background(ctx, "running", v.run)
	case keyRune:
		return v.handleRune(ctx, k.r)
	}
	return false
}

func (v *viewer) handleRune(ctx context.Context, r rune) bool {
	switch r {
	case 'q', 'Q':
		return true
	case ' ':
		v.playback(ctx, schema.ActionToggle)
	case 'l', 'n':
		v.playback(ctx, schema.ActionForward)
	case 'h', 'p':
		v.playback(ctx, schema.ActionBackward)
	case 'g':
		v.playback(ctx, schema.ActionFirst)
	case 'G':
		v.playback(ctx, schema.ActionLast)
	case 'r':
		v.playback(ctx, schema.ActionReset)
	case '+', '=':
		v.stepSpeed(ctx, -1)
	case '-', '_':
		v.stepSpeed(ctx, 1)
	case '[':
		v.scroll(ctx, -1)
	case ']':
		v.scroll(ctx, 1)
	case 'f':
		v.note(ctx, v.setViewport(ctx, schema.SetViewportRequest{ID: v.id, Follow: true}))
	case 'c':
		v.background(ctx, "compiling", v.compile)
	}
	return false
}

func (v *viewer) playback(ctx context.Context, action schema.PlaybackAction) {
	_, err := v.service.Playback(ctx, schema.PlaybackRequest{ID: v.id, Action: action})
	v.note(ctx, err)
}

// stepSpeed moves to the adjacent speed preset; a negative dir is faster.
func (v *viewer) stepSpeed(ctx context.Context, dir int) {
	resp, err := v.service.GetSession(ctx, schema.GetSessionRequest{ID: v.id})
	if err != nil {
		v.note(ctx, err)
		return
	}
	current := resp.Session.Playback.SpeedMS
	next := schema.NextSpeedPreset(current, dir)
	if next == current {
		return
	}
	if _, err := v.service.SetSpeed(ctx, schema.SetSpeedRequest{ID: v.id, SpeedMS: next}); err != nil {
		v.note(ctx, err)
		return
	}
	v.addNote(speedLabel(next))
}

func (v *viewer) scroll(ctx context.Context, delta int) {
	if delta == 0 {
		return
	}
	v.note(ctx, v.setViewport(ctx, schema.SetViewportRequest{ID: v.id, Scroll: delta}))
}

func (v *viewer) setViewport(ctx context.Context, req schema.SetViewportRequest) error {
	_, err := v.service.SetViewport(ctx, req)
	return err
}

func (v *viewer) compile(ctx context.Context) error {
	resp, err := v.service.Compile(ctx, schema.CompileRequest{ID: v.id})
	if err != nil {
		return err
	}
	if !resp.Ready {
		return schema.ErrEngineNotReady
	}
	return nil
}

func (v *viewer) run(ctx context.Context) error {
	resp, err := v.service.Run(ctx, schema.RunRequest{ID: v.id})
	if err != nil {
		return err
	}
	if !resp.Ready {
		return schema.ErrEngineNotReady
	}
	return nil
}

// background runs fn off the input loop. Only one engine request runs at a
// time per viewer.
func (v *viewer) background(ctx context.Context, label string, fn func(context.Context) error) {
	v.mu.Lock()
	if v.busy != "" {
		busy := v.busy
		v.mu.Unlock()
		v.addNote("busy: " + busy)
		return
	}
	v.busy = label
	v.mu.Unlock()
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		err := fn(ctx)
		v.mu.Lock()
		v.busy = ""
		v.mu.Unlock()
		if !errors.Is(err, context.Canceled) {
			v.note(ctx, err)
		}
		v.requestRedraw()
	}()
}

func (v *viewer) note(ctx context.Context, err error) {
	if err == nil {
		return
	}
	pslog.Ctx(ctx).Debug("ssh viewer action failed", "err", err)
	v.addNote("error: " + err.Error())
}

func (v *viewer) addNote(line string) {
	v.mu.Lock()
	v.notes = append(v.notes, line)
	if len(v.notes) > maxLocalNotes {
		v.notes = v.notes[len(v.notes)-maxLocalNotes:]
	}
	v.mu.Unlock()
}

func (v *viewer) requestRedraw() {
	select {
	case v.redraw <- struct{}{}:
	default:
	}
}

func (v *viewer) cells() int {
	return visibleCellsForWidth(v.width, schema.MaxVisibleCells)
}

// frame gathers a consistent snapshot of the session for rendering.
func (v *viewer) frame(ctx context.Context) (frame, error) {
	sess, err := v.service.GetSession(ctx, schema.GetSessionRequest{ID: v.id})
	if err != nil {
		return frame{}, err
	}
	view, err := v.service.GetViewport(ctx, schema.GetViewportRequest{ID: v.id, VisibleCells: v.cells()})
	if err != nil {
		return frame{}, err
	}
	v.mu.Lock()
	busy := v.busy
	notices := append(append([]string(nil), sess.Session.Notices...), v.notes...)
	v.mu.Unlock()
	return frame{
		Title:    v.title,
		Session:  sess.Session,
		Viewport: view.Viewport,
		Engine:   v.service.EngineStatus(ctx),
		Busy:     busy,
		Notices:  notices,
	}, nil
}

func (v *viewer) render(ctx context.Context) error {
	f, err := v.frame(ctx)
	if err != nil {
		return err
	}
	return v.screen.Render(renderFrame(f, v.theme, v.renderer, v.width, v.height))
}
