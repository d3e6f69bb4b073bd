package engineexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/tmplay/core"
	"pkt.systems/tmplay/schema"
)

// Config configures the engine binary invocation.
type Config struct {
	// Binary is the engine executable, resolved through PATH when bare.
	Binary string
	// Args are prepended to every subcommand.
	Args []string
	// Env is appended to the inherited environment.
	Env map[string]string
}

// Engine implements core.Engine by running the engine binary once per call.
// Compile runs `<binary> <args> compile` and Run runs
// `<binary> <args> run --tape <tape>`; the program is written to stdin and
// the JSON result is read from stdout.
type Engine struct {
	cfg Config
}

// New validates cfg and returns an exec engine.
func New(cfg Config) (*Engine, error) {
	cfg.Binary = strings.TrimSpace(cfg.Binary)
	if cfg.Binary == "" {
		return nil, errors.New("engine binary is required")
	}
	return &Engine{cfg: cfg}, nil
}

// Verify checks that the engine binary can be found.
func (e *Engine) Verify(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := exec.LookPath(e.cfg.Binary)
	if err != nil {
		return core.NewEngineError(core.EngineErrorUnavailable, "verify", err)
	}
	pslog.Ctx(ctx).Debug("engine binary resolved", "path", path)
	return nil
}

// Compile translates source and returns the raw compile payload.
func (e *Engine) Compile(ctx context.Context, source string) (string, error) {
	return e.invoke(ctx, "compile", source, "compile")
}

// Run executes source on tape and returns the raw simulation payload.
func (e *Engine) Run(ctx context.Context, source, tape string) (string, error) {
	if tape == "" {
		tape = string(schema.BlankSymbol)
	}
	return e.invoke(ctx, "run", source, "run", "--tape", tape)
}

func (e *Engine) invoke(ctx context.Context, op, source string, sub ...string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	args := buildArgs(e.cfg, sub...)
	log := pslog.Ctx(ctx)
	log.Debug("engine exec start", "op", op, "binary", e.cfg.Binary, "args", args, "source_len", len(source))

	cmd := exec.CommandContext(ctx, e.cfg.Binary, args...)
	cmd.Env = append(os.Environ(), buildEnv(e.cfg.Env)...)
	cmd.Stdin = strings.NewReader(source)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	elapsed := time.Since(started)
	if err != nil {
		wrapped := wrapExecError(ctx, op, err, stderr.String())
		log.Warn("engine exec failed", "op", op, "err", wrapped, "duration", elapsed)
		return "", wrapped
	}
	log.Debug("engine exec finished", "op", op, "duration", elapsed, "stdout_len", stdout.Len())
	if stderr.Len() > 0 {
		log.Trace("engine exec stderr", "op", op, "stderr", strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func buildArgs(cfg Config, sub ...string) []string {
	args := make([]string, 0, len(cfg.Args)+len(sub))
	args = append(args, cfg.Args...)
	args = append(args, sub...)
	return args
}

// buildEnv renders env as sorted KEY=VALUE pairs.
func buildEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, key+"="+env[key])
	}
	return out
}

func wrapExecError(ctx context.Context, op string, err error, stderr string) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return core.NewEngineError(core.EngineErrorTimeout, op, ctx.Err())
	case errors.Is(ctx.Err(), context.Canceled):
		return core.NewEngineError(core.EngineErrorCanceled, op, ctx.Err())
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return core.NewEngineError(core.EngineErrorUnavailable, op, err)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		engineErr := core.NewEngineError(core.EngineErrorExec, op, err)
		detail := firstLine(stderr)
		if detail != "" {
			engineErr.Message = fmt.Sprintf("engine %s exited with code %d: %s", op, exitErr.ExitCode(), detail)
		} else {
			engineErr.Message = fmt.Sprintf("engine %s exited with code %d", op, exitErr.ExitCode())
		}
		return engineErr
	}
	return core.NewEngineError(core.EngineErrorUnknown, op, err)
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = strings.TrimSpace(text[:idx])
	}
	return text
}
