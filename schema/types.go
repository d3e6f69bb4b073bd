package schema

// SessionID identifies a playground session.
type SessionID string

// ExampleName identifies a bundled example program.
type ExampleName string

// BlankSymbol is the tape symbol used for cells with no recorded content.
const BlankSymbol = '_'

// SimStatus is the terminal status of a simulation run.
type SimStatus string

const (
	// SimAccepted indicates the machine halted in its accept state.
	SimAccepted SimStatus = "ACCEPTED"
	// SimRejected indicates the machine halted in its reject state.
	SimRejected SimStatus = "REJECTED"
	// SimTimeout indicates the interpreter gave up after its step limit.
	SimTimeout SimStatus = "TIMEOUT"
	// SimCrash indicates the machine had no applicable transition.
	SimCrash SimStatus = "CRASH"
	// SimError indicates the run could not be performed at all.
	SimError SimStatus = "error"
)

// Valid reports whether s is one of the known run statuses.
func (s SimStatus) Valid() bool {
	switch s {
	case SimAccepted, SimRejected, SimTimeout, SimCrash, SimError:
		return true
	default:
		return false
	}
}

// CompileStatus is the outcome of a compile request.
type CompileStatus string

const (
	// CompileSuccess indicates the source compiled.
	CompileSuccess CompileStatus = "success"
	// CompileError indicates compilation failed.
	CompileError CompileStatus = "error"
)

// SimulationStep is one recorded instant of machine execution.
// Head is not guaranteed to index into Tape.
type SimulationStep struct {
	Step  int    `json:"step"`
	Tape  string `json:"tape"`
	Head  int    `json:"head"`
	State string `json:"state"`
}

// SimulationResult is the full output of one run.
type SimulationResult struct {
	Status  SimStatus        `json:"status"`
	History []SimulationStep `json:"history"`
	Error   string           `json:"error,omitempty"`
}

// CompileResult is the output of one compile request.
type CompileResult struct {
	Status CompileStatus `json:"status"`
	CCode  string        `json:"c_code"`
	Dot    string        `json:"dot"`
	Error  string        `json:"error,omitempty"`
}

// OK reports whether the compile succeeded.
func (r CompileResult) OK() bool {
	return r.Status == CompileSuccess
}

// ViewportState selects the center of the visible tape window.
// ViewOffset is only meaningful when FollowHead is false.
type ViewportState struct {
	FollowHead bool `json:"follow_head"`
	ViewOffset int  `json:"view_offset"`
}

// TapeCell is one rendered cell of the visible tape window.
type TapeCell struct {
	Char   string `json:"char"`
	Index  int    `json:"index"`
	IsHead bool   `json:"is_head"`
}

// ArtifactKind identifies a generated compile artifact.
type ArtifactKind string

const (
	// ArtifactC is the generated C program.
	ArtifactC ArtifactKind = "c"
	// ArtifactDot is the generated transition graph description.
	ArtifactDot ArtifactKind = "dot"
)
