package eventbus

import (
	"sync"
	"testing"
	"time"

	"pkt.systems/tmplay/schema"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("s1")
	defer cancel()

	event := schema.PlaybackEvent{SessionID: "s1", Snapshot: schema.PlaybackSnapshot{CurrentStep: 3}}
	bus.OnPlayback(event)

	select {
	case got := <-ch:
		if got.Type != EventPlayback {
			t.Fatalf("expected playback event, got %v", got.Type)
		}
		if got.Playback.Snapshot.CurrentStep != 3 {
			t.Fatalf("unexpected payload: %+v", got.Playback)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
}

func TestPublishIsScopedToSession(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("s1")
	defer cancel()
	bus.OnNotice(schema.NoticeEvent{SessionID: "s2", Lines: []string{"other"}})
	bus.OnCompile(schema.CompileEvent{SessionID: "s1"})
	got := <-ch
	if got.Type != EventCompile {
		t.Fatalf("expected only the s1 compile event, got %v", got.Type)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("s1")
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
}

func TestPublishDoesNotBlockWhenFull(t *testing.T) {
	bus := New(nil)
	bus.depth = 1
	_, cancel := bus.Subscribe("s1")
	defer cancel()

	bus.OnSource(schema.SourceEvent{SessionID: "s1"})
	done := make(chan struct{})
	go func() {
		bus.OnSource(schema.SourceEvent{SessionID: "s1"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("publish blocked on full channel")
	}
}

func TestConcurrentCancelAndPublish(t *testing.T) {
	bus := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		_, cancel := bus.Subscribe("s1")
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.OnPlayback(schema.PlaybackEvent{SessionID: "s1"})
		}()
		go func() {
			defer wg.Done()
			cancel()
		}()
	}
	wg.Wait()
}

func TestCloseForgetsSubscribers(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("s1")
	bus.OnClose(schema.SessionClosedEvent{SessionID: "s1"})
	if got := <-ch; got.Type != EventClose || got.Close.SessionID != "s1" {
		t.Fatalf("expected close event, got %+v", got)
	}
	bus.mu.Lock()
	remaining := len(bus.subs)
	bus.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected no tracked sessions, got %d", remaining)
	}
	bus.OnPlayback(schema.PlaybackEvent{SessionID: "s1"})
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after cancel")
	}
}
