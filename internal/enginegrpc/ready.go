package enginegrpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/tmplay/core"
)

var errNotServing = errors.New("engine daemon is not serving yet")

// WaitOptions controls WaitReady polling.
type WaitOptions struct {
	// Interval between health checks; 250ms when zero.
	Interval time.Duration
	// Timeout bounds the whole wait; unbounded when zero.
	Timeout time.Duration
}

// WaitReady polls the daemon until its health check reports SERVING and
// then opens gate. Intermediate failures are recorded on the gate. When the
// wait times out the last failure stays on the gate and is returned.
func WaitReady(ctx context.Context, client *Client, gate *core.ReadyGate, opts WaitOptions) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	log := pslog.Ctx(ctx)
	started := time.Now()
	attempts := 0
	for {
		attempts++
		checkCtx, cancel := context.WithTimeout(ctx, interval*4)
		serving, err := client.Serving(checkCtx)
		cancel()
		if err == nil && serving {
			gate.MarkReady()
			log.Info("engine ready", "attempts", attempts, "waited", time.Since(started))
			return nil
		}
		if err == nil {
			err = errNotServing
		}
		log.Trace("engine not ready", "attempt", attempts, "err", err)
		gate.Fail(err)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			failure := fmt.Errorf("engine not ready after %s: %w", time.Since(started).Round(time.Millisecond), err)
			gate.Fail(failure)
			log.Warn("engine readiness wait ended", "err", failure)
			return failure
		case <-timer.C:
		}
	}
}
