package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/tmplay/core"
	"pkt.systems/tmplay/internal/appconfig"
	"pkt.systems/tmplay/internal/enginegrpc"
	"pkt.systems/tmplay/internal/engineexec"
)

// engineStack is the engine side of a command: the gateway plus whatever
// must be started, awaited or closed to make it ready.
type engineStack struct {
	Gate    *core.ReadyGate
	Gateway *core.Gateway
	// Load brings Gate to ready or records why it could not.
	Load    func(ctx context.Context) error
	Closers []io.Closer
	// Daemon is set when the engine daemon is hosted in-process.
	Daemon *enginegrpc.Server
}

func (s engineStack) Close() {
	for _, closer := range s.Closers {
		_ = closer.Close()
	}
}

// selectEngine wires the configured engine mode. With hostDaemon in grpc
// mode the daemon is served from this process on the configured socket.
func selectEngine(cfg appconfig.Config, hostDaemon bool, logger pslog.Logger) (engineStack, error) {
	gate := core.NewReadyGate()
	opts := core.GatewayOptions{
		Timeout: time.Duration(cfg.Engine.TimeoutSeconds) * time.Second,
		Logger:  logger,
	}
	readyTimeout := time.Duration(cfg.Engine.ReadyTimeoutSeconds) * time.Second

	switch cfg.Engine.Mode {
	case appconfig.EngineModeExec:
		engine, err := engineexec.New(execConfig(cfg.Engine))
		if err != nil {
			return engineStack{}, err
		}
		return engineStack{
			Gate:    gate,
			Gateway: core.NewGateway(engine, gate, opts),
			Load: func(ctx context.Context) error {
				if err := engine.Verify(ctx); err != nil {
					gate.Fail(err)
					return err
				}
				gate.MarkReady()
				return nil
			},
		}, nil
	case appconfig.EngineModeGRPC:
		stack := engineStack{Gate: gate}
		if hostDaemon {
			backend, err := engineexec.New(execConfig(cfg.Engine))
			if err != nil {
				return engineStack{}, err
			}
			stack.Daemon = enginegrpc.NewServer(enginegrpc.Config{SocketPath: cfg.Engine.SocketPath}, backend)
		}
		client, err := enginegrpc.Dial(context.Background(), cfg.Engine.SocketPath)
		if err != nil {
			return engineStack{}, fmt.Errorf("engine client: %w", err)
		}
		interval := time.Duration(cfg.Engine.KeepaliveIntervalSeconds) * time.Second
		stack.Gateway = core.NewGateway(client, gate, opts)
		stack.Closers = append(stack.Closers, client)
		stack.Load = func(ctx context.Context) error {
			if err := enginegrpc.WaitReady(ctx, client, gate, enginegrpc.WaitOptions{Timeout: readyTimeout}); err != nil {
				return err
			}
			if interval > 0 && !hostDaemon {
				go client.KeepAlive(ctx, interval)
			}
			return nil
		}
		return stack, nil
	default:
		return engineStack{}, fmt.Errorf("unsupported engine.mode %q", cfg.Engine.Mode)
	}
}

func execConfig(cfg appconfig.EngineConfig) engineexec.Config {
	return engineexec.Config{
		Binary: cfg.Binary,
		Args:   cfg.Args,
		Env:    cfg.Env,
	}
}

// applyEngineFlags overrides the engine section with non-empty flag values.
func applyEngineFlags(cfg *appconfig.Config, mode, binary, socketPath string) error {
	if mode = strings.ToLower(strings.TrimSpace(mode)); mode != "" {
		switch mode {
		case appconfig.EngineModeExec, appconfig.EngineModeGRPC:
			cfg.Engine.Mode = mode
		default:
			return fmt.Errorf("unsupported engine mode %q", mode)
		}
	}
	if strings.TrimSpace(binary) != "" {
		cfg.Engine.Binary = binary
	}
	if strings.TrimSpace(socketPath) != "" {
		cfg.Engine.SocketPath = socketPath
	}
	return nil
}

// readyEngine wires the engine and waits until it can take requests. It is
// used by one-shot commands that have nothing to do before the engine is up.
func readyEngine(ctx context.Context, cfg appconfig.Config) (engineStack, error) {
	stack, err := selectEngine(cfg, false, pslog.Ctx(ctx))
	if err != nil {
		return engineStack{}, err
	}
	if err := stack.Load(ctx); err != nil {
		stack.Close()
		return engineStack{}, err
	}
	return stack, nil
}
