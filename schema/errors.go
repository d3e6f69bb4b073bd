package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidSession indicates an invalid session identifier.
	ErrInvalidSession = errors.New("invalid session")
	// ErrSessionNotFound indicates a session could not be found.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNoSimulation indicates no simulation history is installed.
	ErrNoSimulation = errors.New("no simulation data")
	// ErrInvalidSpeed indicates a non-positive playback speed.
	ErrInvalidSpeed = errors.New("playback speed must be positive")
	// ErrEngineNotReady indicates the execution engine has not finished loading.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrExampleNotFound indicates an unknown example program.
	ErrExampleNotFound = errors.New("example not found")
	// ErrNoArtifact indicates no compiled artifact is available.
	ErrNoArtifact = errors.New("no compiled artifact")
	// ErrEmptySource indicates the source program was empty.
	ErrEmptySource = errors.New("empty source")
	// ErrInvalidAction indicates an unknown playback action.
	ErrInvalidAction = errors.New("invalid playback action")
)
