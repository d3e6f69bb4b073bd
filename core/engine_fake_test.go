package core

import (
	"context"
	"sync"
)

// fakeEngine returns canned payloads and counts calls.
type fakeEngine struct {
	mu           sync.Mutex
	compileJSON  string
	compileErr   error
	runJSON      string
	runErr       error
	compileCalls int
	runCalls     int
	lastSource   string
	lastTape     string
	block        chan struct{}
}

func (f *fakeEngine) Compile(ctx context.Context, source string) (string, error) {
	f.mu.Lock()
	f.compileCalls++
	f.lastSource = source
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.compileJSON, f.compileErr
}

func (f *fakeEngine) Run(ctx context.Context, source, tape string) (string, error) {
	f.mu.Lock()
	f.runCalls++
	f.lastSource = source
	f.lastTape = tape
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.runJSON, f.runErr
}

func (f *fakeEngine) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.compileCalls, f.runCalls
}

func readyGate() *ReadyGate {
	gate := NewReadyGate()
	gate.MarkReady()
	return gate
}

const acceptedRunJSON = `{"status":"ACCEPTED","history":[{"step":0,"tape":"0","head":0,"state":"q0"},{"step":1,"tape":"0_","head":1,"state":"q1"}]}`
