package httpapi

import (
	"context"
	"sync"
	"time"

	"pkt.systems/tmplay/internal/logx"
	"pkt.systems/tmplay/schema"
)

// Stream event types.
const (
	StreamSnapshot = "snapshot"
	StreamPlayback = "playback"
	StreamCompile  = "compile"
	StreamNotice   = "notice"
	StreamSource   = "source"
)

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq       uint64                   `json:"seq"`
	Type      string                   `json:"type"`
	Playback  *schema.PlaybackSnapshot `json:"playback,omitempty"`
	Compile   *schema.CompileResult    `json:"compile,omitempty"`
	Lines     []string                 `json:"lines,omitempty"`
	Source    *string                  `json:"source,omitempty"`
	Tape      *string                  `json:"tape,omitempty"`
	Snapshot  *schema.SessionSnapshot  `json:"snapshot,omitempty"`
	Timestamp time.Time                `json:"timestamp"`
}

// Hub broadcasts events per playground session.
type Hub struct {
	mu          sync.Mutex
	sessions    map[schema.SessionID]*sessionHub
	historySize int
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = 1000
	}
	return &Hub{
		sessions:    make(map[schema.SessionID]*sessionHub),
		historySize: historySize,
	}
}

// OnPlayback implements core.EventSink.
func (h *Hub) OnPlayback(event schema.PlaybackEvent) {
	snap := event.Snapshot
	logx.WithSession(context.Background(), event.SessionID).Trace("hub playback event", "step", snap.CurrentStep, "phase", snap.Phase)
	h.publish(event.SessionID, StreamEvent{
		Type:      StreamPlayback,
		Playback:  &snap,
		Timestamp: time.Now(),
	})
}

// OnCompile implements core.EventSink.
func (h *Hub) OnCompile(event schema.CompileEvent) {
	result := event.Result
	logx.WithSession(context.Background(), event.SessionID).Trace("hub compile event", "status", result.Status)
	h.publish(event.SessionID, StreamEvent{
		Type:      StreamCompile,
		Compile:   &result,
		Timestamp: time.Now(),
	})
}

// OnNotice implements core.EventSink.
func (h *Hub) OnNotice(event schema.NoticeEvent) {
	logx.WithSession(context.Background(), event.SessionID).Trace("hub notice event", "lines", len(event.Lines))
	h.publish(event.SessionID, StreamEvent{
		Type:      StreamNotice,
		Lines:     event.Lines,
		Timestamp: time.Now(),
	})
}

// OnSource implements core.EventSink.
func (h *Hub) OnSource(event schema.SourceEvent) {
	source, tape := event.Source, event.Tape
	logx.WithSession(context.Background(), event.SessionID).Trace("hub source event", "source_len", len(source), "tape", tape)
	h.publish(event.SessionID, StreamEvent{
		Type:      StreamSource,
		Source:    &source,
		Tape:      &tape,
		Timestamp: time.Now(),
	})
}

// OnClose releases the history and subscribers of a closed session.
func (h *Hub) OnClose(event schema.SessionClosedEvent) {
	logx.WithSession(context.Background(), event.SessionID).Debug("hub session closed")
	h.Drop(event.SessionID)
}

// Subscribe registers a subscriber for a session.
func (h *Hub) Subscribe(id schema.SessionID) (<-chan StreamEvent, func(), uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sh := h.getOrCreateLocked(id)
	ch := make(chan StreamEvent, 256)
	sh.subs[ch] = struct{}{}
	seq := sh.seq
	log := logx.WithSession(context.Background(), id)
	log.Info("hub subscribe", "subs", len(sh.subs), "history", len(sh.history))
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := sh.subs[ch]; ok {
				delete(sh.subs, ch)
				close(ch)
			}
			remaining := len(sh.subs)
			h.mu.Unlock()
			log.Info("hub unsubscribe", "subs", remaining)
		})
	}
	return ch, unsub, seq
}

// Replay returns events after the provided seq.
func (h *Hub) Replay(id schema.SessionID, after uint64) []StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	sh := h.sessions[id]
	if sh == nil {
		return nil
	}
	events := make([]StreamEvent, 0, len(sh.history))
	for _, event := range sh.history {
		if event.Seq > after {
			events = append(events, event)
		}
	}
	logx.WithSession(context.Background(), id).Debug("hub replay", "after", after, "count", len(events))
	return events
}

// Drop closes all subscribers of a session and forgets its history.
func (h *Hub) Drop(id schema.SessionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sh := h.sessions[id]
	if sh == nil {
		return
	}
	for ch := range sh.subs {
		delete(sh.subs, ch)
		close(ch)
	}
	delete(h.sessions, id)
}

// publish sends under the hub lock so a concurrent unsubscribe cannot close
// a channel mid-send.
func (h *Hub) publish(id schema.SessionID, event StreamEvent) {
	h.mu.Lock()
	sh := h.getOrCreateLocked(id)
	sh.seq++
	event.Seq = sh.seq
	sh.history = append(sh.history, event)
	if len(sh.history) > h.historySize {
		sh.history = sh.history[len(sh.history)-h.historySize:]
	}
	dropped := 0
	for sub := range sh.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	h.mu.Unlock()
	if dropped > 0 {
		logx.WithSession(context.Background(), id).Warn("hub event dropped", "type", event.Type, "dropped", dropped)
	}
}

func (h *Hub) getOrCreateLocked(id schema.SessionID) *sessionHub {
	sh := h.sessions[id]
	if sh == nil {
		sh = &sessionHub{subs: make(map[chan StreamEvent]struct{})}
		h.sessions[id] = sh
	}
	return sh
}

type sessionHub struct {
	seq     uint64
	history []StreamEvent
	subs    map[chan StreamEvent]struct{}
}
