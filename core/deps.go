package core

import "pkt.systems/pslog"

// ServiceDeps captures optional dependencies for the core service.
type ServiceDeps struct {
	// Gateway reaches the execution engine; compile and run report NotReady without one.
	Gateway   *Gateway
	EventSink EventSink
	// Clock drives playback timers; SystemClock when nil.
	Clock  Clock
	Logger pslog.Logger
}
