package schema

// Session lifecycle.

// CreateSessionRequest describes a request to create a session.
type CreateSessionRequest struct {
	// ID is optional; a random identifier is assigned when empty.
	ID      SessionID
	Source  string
	Tape    string
	Example ExampleName
}

// CreateSessionResponse reports the created session.
type CreateSessionResponse struct {
	Session SessionSnapshot
}

// CloseSessionRequest describes a request to close a session.
type CloseSessionRequest struct {
	ID SessionID
}

// GetSessionRequest describes a request for a session snapshot.
type GetSessionRequest struct {
	ID SessionID
}

// GetSessionResponse reports a session snapshot.
type GetSessionResponse struct {
	Session SessionSnapshot
}

// Editing.

// SetSourceRequest replaces the session program.
type SetSourceRequest struct {
	ID     SessionID
	Source string
}

// SetTapeRequest replaces the session tape input.
type SetTapeRequest struct {
	ID   SessionID
	Tape string
}

// LoadExampleRequest loads a bundled example into a session.
type LoadExampleRequest struct {
	ID   SessionID
	Name ExampleName
}

// Compile and run.

// CompileRequest compiles the session program.
type CompileRequest struct {
	ID SessionID
}

// CompileResponse reports a compile outcome. Ready is false when the engine
// has not finished loading; Result is then zero.
type CompileResponse struct {
	Ready  bool
	Result CompileResult
}

// RunRequest simulates the session program on the session tape.
type RunRequest struct {
	ID SessionID
}

// RunResponse reports a run outcome. Ready is false when the engine has not
// finished loading; Playback is then unchanged.
type RunResponse struct {
	Ready    bool
	Status   SimStatus
	Error    string
	Playback PlaybackSnapshot
}

// Playback.

// PlaybackAction names a playback navigation operation.
type PlaybackAction string

const (
	ActionForward  PlaybackAction = "forward"
	ActionBackward PlaybackAction = "backward"
	ActionToggle   PlaybackAction = "toggle"
	ActionPlay     PlaybackAction = "play"
	ActionPause    PlaybackAction = "pause"
	ActionReset    PlaybackAction = "reset"
	ActionFirst    PlaybackAction = "first"
	ActionLast     PlaybackAction = "last"
	ActionSeek     PlaybackAction = "seek"
)

// PlaybackRequest applies a navigation action. Step is used by ActionSeek.
type PlaybackRequest struct {
	ID     SessionID
	Action PlaybackAction
	Step   int
}

// PlaybackResponse reports the playback state after the action.
type PlaybackResponse struct {
	Playback PlaybackSnapshot
}

// SetSpeedRequest changes the auto-advance interval.
type SetSpeedRequest struct {
	ID      SessionID
	SpeedMS int
}

// Viewport.

// SetViewportRequest changes how the tape window is centered.
// Scroll takes precedence over Offset, which takes precedence over Follow.
type SetViewportRequest struct {
	ID     SessionID
	Follow bool
	Offset *int
	Scroll int
}

// GetViewportRequest renders the tape window for the active step.
// VisibleCells falls back to the configured default when zero.
type GetViewportRequest struct {
	ID           SessionID
	VisibleCells int
}

// GetViewportResponse reports the rendered tape window.
type GetViewportResponse struct {
	Viewport ViewportSnapshot
}

// Artifacts.

// GetArtifactRequest fetches a compiled artifact.
type GetArtifactRequest struct {
	ID   SessionID
	Kind ArtifactKind
}

// GetArtifactResponse carries artifact content.
type GetArtifactResponse struct {
	Kind     ArtifactKind
	Filename string
	Content  string
}

// ListExamplesResponse reports the bundled examples.
type ListExamplesResponse struct {
	Examples []ExampleInfo
}
