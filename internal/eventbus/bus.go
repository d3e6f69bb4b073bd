package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tmplay/schema"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventPlayback carries a playback state change.
	EventPlayback EventType = "playback"
	// EventCompile carries a finished compile.
	EventCompile EventType = "compile"
	// EventNotice carries user-facing notices.
	EventNotice EventType = "notice"
	// EventSource carries a program or tape input change.
	EventSource EventType = "source"
	// EventClose is the last event a session's subscribers receive.
	EventClose EventType = "close"
)

// Event represents a UI-facing event emitted by the core service.
type Event struct {
	Type     EventType
	Playback schema.PlaybackEvent
	Compile  schema.CompileEvent
	Notice   schema.NoticeEvent
	Source   schema.SourceEvent
	Close    schema.SessionClosedEvent
}

// Bus fans events out to per-session subscribers.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.SessionID]map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.SessionID]map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for the session and returns a channel + cancel.
func (b *Bus) Subscribe(id schema.SessionID) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	sessionSubs := b.subs[id]
	if sessionSubs == nil {
		sessionSubs = make(map[chan Event]struct{})
		b.subs[id] = sessionSubs
	}
	sessionSubs[ch] = struct{}{}
	count := len(sessionSubs)
	b.mu.Unlock()
	b.log.With("session", id).Debug("eventbus subscribe", "subs", count)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if subs := b.subs[id]; subs != nil {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subs, id)
				}
			}
			close(ch)
			b.mu.Unlock()
			b.log.With("session", id).Debug("eventbus unsubscribe")
		})
	}
}

// OnPlayback publishes a playback event.
func (b *Bus) OnPlayback(event schema.PlaybackEvent) {
	b.publish(event.SessionID, Event{Type: EventPlayback, Playback: event})
}

// OnCompile publishes a compile event.
func (b *Bus) OnCompile(event schema.CompileEvent) {
	b.publish(event.SessionID, Event{Type: EventCompile, Compile: event})
}

// OnNotice publishes a notice event.
func (b *Bus) OnNotice(event schema.NoticeEvent) {
	b.publish(event.SessionID, Event{Type: EventNotice, Notice: event})
}

// OnSource publishes a source event.
func (b *Bus) OnSource(event schema.SourceEvent) {
	b.publish(event.SessionID, Event{Type: EventSource, Source: event})
}

// OnClose publishes a close event and forgets the session's subscribers.
// Their channels stay open until each cancel func runs.
func (b *Bus) OnClose(event schema.SessionClosedEvent) {
	if b == nil {
		return
	}
	b.publish(event.SessionID, Event{Type: EventClose, Close: event})
	b.mu.Lock()
	delete(b.subs, event.SessionID)
	b.mu.Unlock()
}

// publish never blocks; a full subscriber misses the event.
func (b *Bus) publish(id schema.SessionID, event Event) {
	if b == nil {
		return
	}
	dropped := 0
	b.mu.Lock()
	for sub := range b.subs[id] {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 {
		b.log.With("session", id).Trace("eventbus dropped", "count", dropped)
	}
}
