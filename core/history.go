package core

import (
	"sync"

	"pkt.systems/tmplay/schema"
)

// HistoryStore holds the step history of one simulation run.
// A stored history is never mutated; Install replaces it wholesale.
type HistoryStore struct {
	mu      sync.RWMutex
	result  *schema.SimulationResult
	gen     uint64
	nextGen uint64
}

// NewHistoryStore returns an empty store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{}
}

// Install replaces the stored result and returns its identity.
// Every call yields a new identity, even for an identical result.
func (h *HistoryStore) Install(result schema.SimulationResult) uint64 {
	stored := schema.SimulationResult{
		Status:  result.Status,
		Error:   result.Error,
		History: append([]schema.SimulationStep(nil), result.History...),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextGen++
	h.gen = h.nextGen
	h.result = &stored
	return h.gen
}

// Clear discards the stored result.
func (h *HistoryStore) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result = nil
	h.gen = 0
}

// Loaded reports whether a result is stored.
func (h *HistoryStore) Loaded() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.result != nil
}

// Identity returns the identity of the stored result, or 0 when empty.
func (h *HistoryStore) Identity() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.gen
}

// Len returns the number of stored steps.
func (h *HistoryStore) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.result == nil {
		return 0
	}
	return len(h.result.History)
}

// At returns step i of the stored history.
func (h *HistoryStore) At(i int) (schema.SimulationStep, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.result == nil || i < 0 || i >= len(h.result.History) {
		return schema.SimulationStep{}, schema.ErrNoSimulation
	}
	return h.result.History[i], nil
}

// Result returns a copy of the stored result.
func (h *HistoryStore) Result() (schema.SimulationResult, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.result == nil {
		return schema.SimulationResult{}, schema.ErrNoSimulation
	}
	return schema.SimulationResult{
		Status:  h.result.Status,
		Error:   h.result.Error,
		History: append([]schema.SimulationStep(nil), h.result.History...),
	}, nil
}

// Status returns the stored run status, or "" when empty.
func (h *HistoryStore) Status() schema.SimStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.result == nil {
		return ""
	}
	return h.result.Status
}
