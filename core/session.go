package core

import (
	"sync"

	"pkt.systems/tmplay/schema"
)

// session is the owned state of one playground: program, tape input, the
// last compile and run, playback and the tape viewport.
type session struct {
	id     schema.SessionID
	player *Player

	mu       sync.Mutex
	source   string
	tape     string
	compile  *schema.CompileResult
	runError string
	// revision changes whenever the program or tape input changes, so
	// results computed for an older input can be recognized and dropped.
	revision uint64
	view     schema.ViewportState
	notices  *noticeLog
}

type sessionInput struct {
	source   string
	tape     string
	revision uint64
}

func (s *session) input() sessionInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sessionInput{source: s.source, tape: s.tape, revision: s.revision}
}

func (s *session) snapshot() schema.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *session) snapshotLocked() schema.SessionSnapshot {
	snap := schema.SessionSnapshot{
		ID:       s.id,
		Source:   s.source,
		Tape:     s.tape,
		RunError: s.runError,
		Playback: s.player.Snapshot(),
		Viewport: s.view,
		Notices:  s.notices.Tail(0),
	}
	if s.compile != nil {
		compiled := *s.compile
		snap.Compile = &compiled
	}
	snap.Status = snap.Playback.Status
	return snap
}

// setSourceLocked replaces the program and invalidates derived results.
func (s *session) setSourceLocked(source string) bool {
	if source == s.source {
		return false
	}
	s.source = source
	s.revision++
	s.compile = nil
	s.runError = ""
	s.player.Clear()
	return true
}

func (s *session) setTapeLocked(tape string) bool {
	if tape == s.tape {
		return false
	}
	s.tape = tape
	s.revision++
	return true
}

func (s *session) notice(lines ...string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices.Append(lines...)
	return lines
}
