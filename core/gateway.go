package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/tmplay/schema"
)

// GatewayOptions configures a Gateway.
type GatewayOptions struct {
	// Timeout bounds each engine call; zero means no extra deadline.
	Timeout time.Duration
	Logger  pslog.Logger
}

// Gateway adapts the external engine into tagged result values. It holds no
// state beyond its collaborators and never caches results.
type Gateway struct {
	engine  Engine
	ready   Readiness
	timeout time.Duration
	log     pslog.Logger
}

// NewGateway constructs a gateway. A nil readiness keeps the gateway NotReady.
func NewGateway(engine Engine, ready Readiness, opts GatewayOptions) *Gateway {
	log := opts.Logger
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	return &Gateway{
		engine:  engine,
		ready:   ready,
		timeout: opts.Timeout,
		log:     log,
	}
}

// Ready reports whether the engine can be called.
func (g *Gateway) Ready() bool {
	if g == nil || g.engine == nil || g.ready == nil {
		return false
	}
	return g.ready.Ready()
}

// Status reports readiness and the last recorded load failure, if any.
func (g *Gateway) Status() schema.EngineStatus {
	status := schema.EngineStatus{Ready: g.Ready()}
	if g == nil || status.Ready {
		return status
	}
	if g.engine == nil {
		status.Error = "no engine configured"
		return status
	}
	if withErr, ok := g.ready.(interface{ Err() error }); ok {
		if err := withErr.Err(); err != nil {
			status.Error = err.Error()
		}
	}
	return status
}

// Compile compiles source. The bool is false when the engine is not ready;
// the result is then zero and the call may be retried later. Engine
// failures are folded into an error-status result.
func (g *Gateway) Compile(ctx context.Context, source string) (schema.CompileResult, bool) {
	if !g.Ready() {
		return schema.CompileResult{}, false
	}
	ctx, cancel := g.callContext(ctx)
	defer cancel()
	raw, err := g.engine.Compile(ctx, source)
	if err != nil {
		g.log.Warn("engine compile failed", "err", err)
		return compileFailure(err), true
	}
	result, err := DecodeCompileResult(raw)
	if err != nil {
		g.log.Warn("engine compile payload rejected", "err", err)
		return compileFailure(err), true
	}
	g.log.Debug("engine compile done", "status", result.Status)
	return result, true
}

// Run simulates source on tape. The bool is false when the engine is not
// ready. Engine failures yield an error-status result with an empty history.
func (g *Gateway) Run(ctx context.Context, source, tape string) (schema.SimulationResult, bool) {
	if !g.Ready() {
		return schema.SimulationResult{}, false
	}
	ctx, cancel := g.callContext(ctx)
	defer cancel()
	raw, err := g.engine.Run(ctx, source, tape)
	if err != nil {
		g.log.Warn("engine run failed", "err", err)
		return runFailure(err), true
	}
	result, err := DecodeSimulationResult(raw)
	if err != nil {
		g.log.Warn("engine run payload rejected", "err", err)
		return runFailure(err), true
	}
	g.log.Debug("engine run done", "status", result.Status, "steps", len(result.History))
	return result, true
}

func (g *Gateway) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if g.timeout > 0 {
		return context.WithTimeout(ctx, g.timeout)
	}
	return context.WithCancel(ctx)
}

// DecodeCompileResult decodes an engine compile payload.
func DecodeCompileResult(raw string) (schema.CompileResult, error) {
	var result schema.CompileResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return schema.CompileResult{}, NewEngineError(EngineErrorMalformed, "compile", fmt.Errorf("decode compile result: %w", err))
	}
	switch result.Status {
	case schema.CompileSuccess, schema.CompileError:
	default:
		return schema.CompileResult{}, NewEngineError(EngineErrorMalformed, "compile", fmt.Errorf("unknown compile status %q", result.Status))
	}
	return result, nil
}

// DecodeSimulationResult decodes an engine run payload.
func DecodeSimulationResult(raw string) (schema.SimulationResult, error) {
	var result schema.SimulationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return schema.SimulationResult{}, NewEngineError(EngineErrorMalformed, "run", fmt.Errorf("decode simulation result: %w", err))
	}
	if !result.Status.Valid() {
		return schema.SimulationResult{}, NewEngineError(EngineErrorMalformed, "run", fmt.Errorf("unknown run status %q", result.Status))
	}
	if result.History == nil {
		result.History = []schema.SimulationStep{}
	}
	return result, nil
}

func compileFailure(err error) schema.CompileResult {
	return schema.CompileResult{Status: schema.CompileError, Error: engineMessage(err)}
}

func runFailure(err error) schema.SimulationResult {
	return schema.SimulationResult{
		Status:  schema.SimError,
		History: []schema.SimulationStep{},
		Error:   engineMessage(err),
	}
}

func engineMessage(err error) string {
	if err == nil {
		return ""
	}
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		switch engineErr.Kind {
		case EngineErrorTimeout:
			return "engine timed out: " + strings.TrimSpace(engineErr.Error())
		case EngineErrorUnavailable:
			return "engine unavailable: " + strings.TrimSpace(engineErr.Error())
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "engine timed out"
	}
	return strings.TrimSpace(err.Error())
}
