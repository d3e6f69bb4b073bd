package schema

// PlaybackEvent reports a playback state change for a session.
type PlaybackEvent struct {
	SessionID SessionID
	Snapshot  PlaybackSnapshot
}

// CompileEvent reports a finished compile for a session.
type CompileEvent struct {
	SessionID SessionID
	Result    CompileResult
}

// NoticeEvent reports user-facing notices for a session.
type NoticeEvent struct {
	SessionID SessionID
	Lines     []string
}

// SessionClosedEvent reports that a session was closed and its events can
// be released.
type SessionClosedEvent struct {
	SessionID SessionID
}

// SourceEvent reports that a session's program or tape input changed.
type SourceEvent struct {
	SessionID SessionID
	Source    string
	Tape      string
}
