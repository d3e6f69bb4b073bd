package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"pkt.systems/pslog"
	"pkt.systems/tmplay/schema"
)

func newCaptureLogger(capture *logCapture) pslog.Logger {
	return pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
}

func TestWithSessionAddsField(t *testing.T) {
	capture := &logCapture{}
	ctx := pslog.ContextWithLogger(context.Background(), newCaptureLogger(capture))
	WithSession(ctx, "abc123").Info("hello")

	entry := capture.firstEntry(t)
	if entry["session"] != "abc123" {
		t.Fatalf("expected session field, got %+v", entry)
	}
}

func TestWithSessionSkipsDuplicate(t *testing.T) {
	capture := &logCapture{}
	logger := newCaptureLogger(capture).With("session", "abc123")
	ctx := ContextWithSessionLogger(context.Background(), logger, "abc123")
	WithSession(ctx, "abc123").Info("hello")

	line := capture.buf.String()
	if bytes.Count([]byte(line), []byte(`"session"`)) != 1 {
		t.Fatalf("expected a single session field, got %s", line)
	}
}

func TestWithRunAndResult(t *testing.T) {
	capture := &logCapture{}
	ctx := pslog.ContextWithLogger(context.Background(), newCaptureLogger(capture))
	log := WithRun(ctx, "s1", "r1")
	WithResult(log, schema.SimulationResult{
		Status:  schema.SimAccepted,
		History: []schema.SimulationStep{{Step: 0}, {Step: 1}},
	}).Info("done")

	entry := capture.firstEntry(t)
	if entry["session"] != "s1" || entry["run"] != "r1" {
		t.Fatalf("expected session/run fields, got %+v", entry)
	}
	if entry["status"] != "ACCEPTED" {
		t.Fatalf("expected status field, got %+v", entry)
	}
	if steps, ok := entry["steps"].(float64); !ok || steps != 2 {
		t.Fatalf("expected steps=2, got %+v", entry)
	}
}

func TestCopyContextFields(t *testing.T) {
	src := ContextWithRun(ContextWithSession(context.Background(), "s1"), "r1")
	dst := CopyContextFields(context.Background(), src)
	if dst.Value(sessionKey) != schema.SessionID("s1") {
		t.Fatalf("session marker not copied")
	}
	if dst.Value(runKey) != "r1" {
		t.Fatalf("run marker not copied")
	}
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) firstEntry(t *testing.T) map[string]any {
	t.Helper()
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		idx = len(data)
	}
	line := bytes.TrimSpace(data[:idx])
	entry := map[string]any{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	return entry
}
