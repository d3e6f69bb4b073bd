package core

import (
	"context"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/tmplay/schema"
)

// PlayerOptions configures a Player.
type PlayerOptions struct {
	// SpeedMS is the initial auto-advance interval; DefaultSpeedMS when zero.
	SpeedMS int
	// Clock drives auto-advance; SystemClock when nil.
	Clock Clock
	// History is the backing store; a fresh store when nil.
	History *HistoryStore
	// OnChange receives a snapshot after every state change. It is called
	// without the player lock held and may call back into the player.
	OnChange func(schema.PlaybackSnapshot)
	Logger   pslog.Logger
}

// tickKey is the tuple the auto-advance timer is bound to.
type tickKey struct {
	active  bool
	speed   int
	history uint64
}

// Player is the playback controller for one execution history.
// All operations are safe for concurrent use and are applied atomically.
type Player struct {
	mu       sync.Mutex
	clock    Clock
	history  *HistoryStore
	onChange func(schema.PlaybackSnapshot)
	log      pslog.Logger

	current int
	playing bool
	ended   bool
	speed   int
	closed  bool

	timer Timer
	key   tickKey
	seq   uint64
}

// NewPlayer constructs an idle player.
func NewPlayer(opts PlayerOptions) *Player {
	speed := opts.SpeedMS
	if speed <= 0 {
		speed = schema.DefaultSpeedMS
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}
	history := opts.History
	if history == nil {
		history = NewHistoryStore()
	}
	log := opts.Logger
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	return &Player{
		clock:    clock,
		history:  history,
		onChange: opts.OnChange,
		log:      log,
		speed:    speed,
	}
}

// History returns the backing store.
func (p *Player) History() *HistoryStore {
	return p.history
}

// Load installs a new result. Any running timer is stopped before the
// history is rebound, and playback returns to step 0, paused.
func (p *Player) Load(result schema.SimulationResult) {
	p.apply(func() bool {
		p.playing = false
		p.rearmLocked()
		p.history.Install(result)
		p.current = 0
		p.ended = false
		return true
	})
}

// Clear discards the history and returns the player to idle.
func (p *Player) Clear() {
	p.apply(func() bool {
		if !p.history.Loaded() && !p.playing {
			return false
		}
		p.playing = false
		p.rearmLocked()
		p.history.Clear()
		p.current = 0
		p.ended = false
		return true
	})
}

// SetStep moves to step n when 0 <= n < length; otherwise it does nothing.
func (p *Player) SetStep(n int) {
	p.apply(func() bool {
		if n < 0 || n >= p.history.Len() {
			return false
		}
		return p.moveLocked(n)
	})
}

// StepForward advances one step, or stops playback at the last step.
func (p *Player) StepForward() {
	p.apply(p.stepForwardLocked)
}

// StepBackward goes back one step unless already at step 0.
func (p *Player) StepBackward() {
	p.apply(func() bool {
		if p.current <= 0 {
			return false
		}
		return p.moveLocked(p.current - 1)
	})
}

// TogglePlay starts or pauses playback. From the last step it restarts
// from step 0. It never starts on an empty history.
func (p *Player) TogglePlay() {
	p.apply(func() bool {
		if p.playing {
			p.playing = false
			return true
		}
		return p.startLocked()
	})
}

// Play starts playback unless it is already running.
func (p *Player) Play() {
	p.apply(func() bool {
		if p.playing {
			return false
		}
		return p.startLocked()
	})
}

// Pause stops playback without moving.
func (p *Player) Pause() {
	p.apply(func() bool {
		if !p.playing {
			return false
		}
		p.playing = false
		return true
	})
}

// Reset returns to step 0, paused. The history is kept.
func (p *Player) Reset() {
	p.apply(func() bool {
		changed := p.current != 0 || p.playing || p.ended
		p.current = 0
		p.playing = false
		p.ended = false
		return changed
	})
}

// First moves to step 0.
func (p *Player) First() {
	p.SetStep(0)
}

// Last moves to the final step of the history loaded at the time of the call.
func (p *Player) Last() {
	p.apply(func() bool {
		n := p.history.Len() - 1
		if n < 0 {
			return false
		}
		return p.moveLocked(n)
	})
}

// SetSpeed changes the auto-advance interval. Any positive value is accepted.
func (p *Player) SetSpeed(ms int) error {
	if ms <= 0 {
		return schema.ErrInvalidSpeed
	}
	p.apply(func() bool {
		if p.speed == ms {
			return false
		}
		p.speed = ms
		return true
	})
	return nil
}

// Snapshot returns the current playback state.
func (p *Player) Snapshot() schema.PlaybackSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Close stops the timer. A closed player ignores further ticks.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.playing = false
	p.rearmLocked()
}

// apply runs fn under the lock, settles playback, rebinds the timer and
// notifies listeners when fn reports a change.
func (p *Player) apply(fn func() bool) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	changed := fn()
	if p.settleLocked() {
		changed = true
	}
	p.rearmLocked()
	snap := p.snapshotLocked()
	notify := p.onChange
	p.mu.Unlock()
	if changed && notify != nil {
		notify(snap)
	}
}

func (p *Player) startLocked() bool {
	length := p.history.Len()
	if length == 0 {
		return false
	}
	if p.current >= length-1 {
		p.current = 0
	}
	p.playing = true
	p.ended = false
	return true
}

func (p *Player) moveLocked(n int) bool {
	if n == p.current {
		return false
	}
	p.current = n
	p.ended = false
	return true
}

func (p *Player) stepForwardLocked() bool {
	length := p.history.Len()
	if p.current < length-1 {
		p.current++
		return true
	}
	if p.playing {
		p.playing = false
		p.ended = true
		return true
	}
	return false
}

// settleLocked stops playback once the last step is reached.
func (p *Player) settleLocked() bool {
	if !p.playing {
		return false
	}
	length := p.history.Len()
	if length == 0 {
		p.playing = false
		return true
	}
	if p.current >= length-1 {
		p.playing = false
		p.ended = true
		return true
	}
	return false
}

// rearmLocked cancels and reschedules the auto-advance timer whenever the
// (playing, speed, history identity) tuple changed since it was armed.
func (p *Player) rearmLocked() {
	key := tickKey{
		active:  p.playing && !p.closed && p.history.Len() > 0,
		speed:   p.speed,
		history: p.history.Identity(),
	}
	if key == p.key && (p.timer != nil || !key.active) {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.seq++
	p.key = key
	if !key.active {
		return
	}
	seq := p.seq
	p.timer = p.clock.AfterFunc(p.intervalLocked(), func() { p.tick(seq) })
}

func (p *Player) tick(seq uint64) {
	p.mu.Lock()
	if p.closed || seq != p.seq {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.stepForwardLocked()
	p.settleLocked()
	if p.playing {
		p.timer = p.clock.AfterFunc(p.intervalLocked(), func() { p.tick(seq) })
	} else {
		p.rearmLocked()
	}
	snap := p.snapshotLocked()
	notify := p.onChange
	p.mu.Unlock()
	p.log.Trace("playback tick", "step", snap.CurrentStep, "playing", snap.IsPlaying)
	if notify != nil {
		notify(snap)
	}
}

func (p *Player) intervalLocked() time.Duration {
	return time.Duration(p.speed) * time.Millisecond
}

func (p *Player) snapshotLocked() schema.PlaybackSnapshot {
	length := p.history.Len()
	snap := schema.PlaybackSnapshot{
		CurrentStep: p.current,
		IsPlaying:   p.playing,
		SpeedMS:     p.speed,
		TotalSteps:  length,
		Status:      p.history.Status(),
	}
	switch {
	case length == 0:
		snap.Phase = schema.PhaseIdle
	case p.playing:
		snap.Phase = schema.PhasePlaying
	case p.ended:
		snap.Phase = schema.PhaseEnded
	default:
		snap.Phase = schema.PhasePaused
	}
	if step, err := p.history.At(p.current); err == nil {
		snap.Step = &step
	}
	return snap
}
