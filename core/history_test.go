package core

import (
	"errors"
	"testing"

	"pkt.systems/tmplay/schema"
)

func twoStepResult() schema.SimulationResult {
	return schema.SimulationResult{
		Status: schema.SimAccepted,
		History: []schema.SimulationStep{
			{Step: 0, Tape: "0", Head: 0, State: "q0"},
			{Step: 1, Tape: "0_", Head: 1, State: "q1"},
		},
	}
}

func TestHistoryStoreEmpty(t *testing.T) {
	h := NewHistoryStore()
	if h.Loaded() || h.Len() != 0 || h.Identity() != 0 {
		t.Fatalf("expected empty store")
	}
	if _, err := h.At(0); !errors.Is(err, schema.ErrNoSimulation) {
		t.Fatalf("expected ErrNoSimulation, got %v", err)
	}
	if _, err := h.Result(); !errors.Is(err, schema.ErrNoSimulation) {
		t.Fatalf("expected ErrNoSimulation, got %v", err)
	}
}

func TestHistoryStoreInstallReplacesWholesale(t *testing.T) {
	h := NewHistoryStore()
	first := h.Install(twoStepResult())
	second := h.Install(twoStepResult())
	if first == second || second == 0 {
		t.Fatalf("expected a new identity per install, got %d and %d", first, second)
	}
	h.Install(schema.SimulationResult{Status: schema.SimRejected, History: []schema.SimulationStep{{State: "r"}}})
	if h.Len() != 1 || h.Status() != schema.SimRejected {
		t.Fatalf("expected replaced history, got len=%d status=%s", h.Len(), h.Status())
	}
	step, err := h.At(0)
	if err != nil || step.State != "r" {
		t.Fatalf("unexpected step %+v err=%v", step, err)
	}
}

func TestHistoryStoreIsolatedFromCaller(t *testing.T) {
	h := NewHistoryStore()
	result := twoStepResult()
	h.Install(result)
	result.History[0].State = "mutated"
	step, _ := h.At(0)
	if step.State != "q0" {
		t.Fatalf("stored history changed through caller slice")
	}
	out, _ := h.Result()
	out.History[1].State = "mutated"
	step, _ = h.At(1)
	if step.State != "q1" {
		t.Fatalf("stored history changed through returned slice")
	}
}

func TestHistoryStoreClear(t *testing.T) {
	h := NewHistoryStore()
	h.Install(twoStepResult())
	h.Clear()
	if h.Loaded() {
		t.Fatalf("expected cleared store")
	}
	if _, err := h.At(0); !errors.Is(err, schema.ErrNoSimulation) {
		t.Fatalf("expected ErrNoSimulation after clear, got %v", err)
	}
	if id := h.Install(twoStepResult()); id == 0 {
		t.Fatalf("expected non-zero identity after clear")
	}
}
