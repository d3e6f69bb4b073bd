package core

import (
	"context"
	"fmt"
)

// Engine is the external TM-Lang compiler and interpreter. Both calls return
// the engine's raw JSON payload; decoding happens in the Gateway.
type Engine interface {
	Compile(ctx context.Context, source string) (string, error)
	Run(ctx context.Context, source, tape string) (string, error)
}

// Readiness reports whether the engine has finished loading.
type Readiness interface {
	Ready() bool
}

// EngineErrorKind classifies engine failures for user-facing hints.
type EngineErrorKind string

const (
	// EngineErrorUnknown is an uncategorized engine failure.
	EngineErrorUnknown EngineErrorKind = "unknown"
	// EngineErrorUnavailable indicates the engine is unreachable.
	EngineErrorUnavailable EngineErrorKind = "unavailable"
	// EngineErrorTimeout indicates the engine call timed out.
	EngineErrorTimeout EngineErrorKind = "timeout"
	// EngineErrorCanceled indicates the engine call was canceled.
	EngineErrorCanceled EngineErrorKind = "canceled"
	// EngineErrorMalformed indicates the engine returned an unreadable payload.
	EngineErrorMalformed EngineErrorKind = "malformed"
	// EngineErrorExec indicates the engine process failed.
	EngineErrorExec EngineErrorKind = "exec"
)

// EngineError wraps engine failures with a stable classification.
type EngineError struct {
	Kind    EngineErrorKind
	Op      string
	Message string
	Err     error
}

// NewEngineError constructs a classified engine error.
func NewEngineError(kind EngineErrorKind, op string, err error) *EngineError {
	return &EngineError{Kind: kind, Op: op, Err: err}
}

func (e *EngineError) Error() string {
	if e == nil {
		return "engine error"
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("engine %s failed", e.Op)
	}
	return "engine error"
}

func (e *EngineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
