package format

import (
	"reflect"
	"testing"

	"pkt.systems/tmplay/core"
	"pkt.systems/tmplay/schema"
)

func TestFormatViewportMarksHead(t *testing.T) {
	view := schema.ViewportSnapshot{
		Cells:        core.ComputeViewport("101", 1, core.FollowHead(), 3),
		View:         core.FollowHead(),
		VisibleCells: 3,
		Head:         1,
		State:        "q1",
		Step:         2,
	}
	lines := NewPlainRenderer().FormatViewport(view)
	want := []string{
		" 1 [0] 1 ",
		"    ^",
		"step 2  state q1  head 1  view follow",
	}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("unexpected lines:\nwant: %#v\ngot:  %#v", want, lines)
	}
}

func TestFormatViewportManualOffset(t *testing.T) {
	view := schema.ViewportSnapshot{
		Cells: []schema.TapeCell{{Char: "_", Index: 4}, {Char: "", Index: 5}},
		View:  schema.ViewportState{ViewOffset: 5},
		Head:  0,
		Step:  -1,
	}
	lines := (&PlainRenderer{CellMarker: "<>"}).FormatViewport(view)
	if lines[0] != " _  _ " {
		t.Fatalf("expected blank cells, got %q", lines[0])
	}
	if lines[1] != "" {
		t.Fatalf("expected empty caret line, got %q", lines[1])
	}
	if lines[2] != "input  view offset 5" {
		t.Fatalf("unexpected position line %q", lines[2])
	}
}

func TestFormatViewportCustomMarker(t *testing.T) {
	view := schema.ViewportSnapshot{Cells: []schema.TapeCell{{Char: "1", IsHead: true}}, View: core.FollowHead()}
	lines := (&PlainRenderer{CellMarker: "<>"}).FormatViewport(view)
	if lines[0] != "<1>" {
		t.Fatalf("expected custom marker, got %q", lines[0])
	}
}

func TestFormatPlayback(t *testing.T) {
	r := NewPlainRenderer()
	cases := []struct {
		name string
		snap schema.PlaybackSnapshot
		want string
	}{
		{name: "idle", snap: schema.PlaybackSnapshot{Phase: schema.PhaseIdle}, want: "idle  no simulation loaded"},
		{name: "crash", snap: schema.PlaybackSnapshot{Phase: schema.PhaseIdle, Status: schema.SimCrash}, want: "CRASH  no steps"},
		{
			name: "playing",
			snap: schema.PlaybackSnapshot{Phase: schema.PhasePlaying, CurrentStep: 2, TotalSteps: 5, SpeedMS: 300, Status: schema.SimAccepted},
			want: "playing  step 3/5  300ms  ACCEPTED",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.FormatPlayback(tc.snap); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestFormatCompile(t *testing.T) {
	r := NewPlainRenderer()
	if got := r.FormatCompile(schema.CompileResult{Status: schema.CompileSuccess}); !reflect.DeepEqual(got, []string{"Compilation Successful"}) {
		t.Fatalf("unexpected success lines %#v", got)
	}
	got := r.FormatCompile(schema.CompileResult{Status: schema.CompileError, Error: "line 1: bad\nline 2: worse\n"})
	want := []string{"Compilation failed: line 1: bad", "Compilation failed: line 2: worse"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected error lines %#v", got)
	}
}

func TestFormatResult(t *testing.T) {
	r := NewPlainRenderer()
	result := schema.SimulationResult{
		Status:  schema.SimRejected,
		History: []schema.SimulationStep{{Step: 0}, {Step: 1}},
	}
	want := []string{"Simulation Complete: REJECTED", "Total steps: 2"}
	if got := r.FormatResult(result); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected lines %#v", got)
	}
	failed := r.FormatResult(schema.SimulationResult{Status: schema.SimError, Error: "engine timed out"})
	if !reflect.DeepEqual(failed, []string{"Simulation error: engine timed out"}) {
		t.Fatalf("unexpected error lines %#v", failed)
	}
}
