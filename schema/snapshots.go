package schema

// PlaybackPhase is the coarse state of a playback controller.
type PlaybackPhase string

const (
	// PhaseIdle indicates no history is installed.
	PhaseIdle PlaybackPhase = "idle"
	// PhasePaused indicates a history is installed and not advancing.
	PhasePaused PlaybackPhase = "paused"
	// PhasePlaying indicates auto-advance is active.
	PhasePlaying PlaybackPhase = "playing"
	// PhaseEnded indicates auto-advance stopped at the last step.
	PhaseEnded PlaybackPhase = "ended"
)

// PlaybackSnapshot is a read-only view of a playback controller.
type PlaybackSnapshot struct {
	CurrentStep int             `json:"current_step"`
	IsPlaying   bool            `json:"is_playing"`
	SpeedMS     int             `json:"speed_ms"`
	TotalSteps  int             `json:"total_steps"`
	Phase       PlaybackPhase   `json:"phase"`
	Status      SimStatus       `json:"status,omitempty"`
	Step        *SimulationStep `json:"step,omitempty"`
}

// AtEnd reports whether the snapshot sits on the last recorded step.
func (s PlaybackSnapshot) AtEnd() bool {
	return s.TotalSteps > 0 && s.CurrentStep >= s.TotalSteps-1
}

// EngineStatus reports the readiness of the execution engine.
type EngineStatus struct {
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

// ExampleInfo describes a bundled example program.
type ExampleInfo struct {
	Name        ExampleName `json:"name"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Tape        string      `json:"tape"`
}

// SessionSnapshot is a read-only view of a playground session.
type SessionSnapshot struct {
	ID       SessionID        `json:"id"`
	Source   string           `json:"source"`
	Tape     string           `json:"tape"`
	Compile  *CompileResult   `json:"compile,omitempty"`
	Status   SimStatus        `json:"status,omitempty"`
	RunError string           `json:"run_error,omitempty"`
	Playback PlaybackSnapshot `json:"playback"`
	Viewport ViewportState    `json:"viewport"`
	Notices  []string         `json:"notices,omitempty"`
}

// ViewportSnapshot is the rendered tape window for the active step.
type ViewportSnapshot struct {
	Cells        []TapeCell    `json:"cells"`
	View         ViewportState `json:"view"`
	VisibleCells int           `json:"visible_cells"`
	Head         int           `json:"head"`
	State        string        `json:"state,omitempty"`
	Step         int           `json:"step"`
}
