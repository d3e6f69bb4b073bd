package main

import (
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/tmplay/internal/appconfig"
	"pkt.systems/tmplay/internal/enginegrpc"
	"pkt.systems/tmplay/internal/engineexec"
)

type engineFlags struct {
	cfgPath           string
	socketPath        string
	binary            string
	args              []string
	env               []string
	keepaliveInterval time.Duration
	keepaliveMisses   int
}

func newEngineCmd() *cobra.Command {
	var flags engineFlags
	cmd := &cobra.Command{
		Use:   "engine",
		Short: "Start the engine daemon on a unix socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := loadEngineConfig(flags)
			if err != nil {
				return err
			}
			logger.Info("engine config loaded", "binary", cfg.Binary, "args", len(cfg.Args), "env", len(cfg.Env), "keepalive_interval", cfg.KeepaliveInterval, "keepalive_misses", cfg.KeepaliveMisses)

			backend, err := engineexec.New(engineexec.Config{
				Binary: cfg.Binary,
				Args:   cfg.Args,
				Env:    cfg.Env,
			})
			if err != nil {
				return err
			}
			server := enginegrpc.NewServer(enginegrpc.Config{
				SocketPath:        cfg.SocketPath,
				KeepaliveInterval: cfg.KeepaliveInterval,
				KeepaliveMisses:   cfg.KeepaliveMisses,
			}, backend)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger.Info("engine socket listening", "socket", cfg.SocketPath)
			return server.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVarP(&flags.cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&flags.socketPath, "socket-path", "", "engine socket path (overrides config)")
	cmd.Flags().StringVar(&flags.binary, "binary", "", "engine executable (overrides config)")
	cmd.Flags().StringArrayVar(&flags.args, "arg", nil, "extra engine args (repeatable)")
	cmd.Flags().StringArrayVar(&flags.env, "env", nil, "extra env for the engine (repeatable KEY=VAL)")
	cmd.Flags().DurationVar(&flags.keepaliveInterval, "keepalive-interval", 0, "stop after missed client pings at this interval (e.g. 10s)")
	cmd.Flags().IntVar(&flags.keepaliveMisses, "keepalive-misses", 0, "missed keepalive intervals before exit")
	return cmd
}

type engineConfig struct {
	SocketPath        string
	Binary            string
	Args              []string
	Env               map[string]string
	KeepaliveInterval time.Duration
	KeepaliveMisses   int
}

// loadEngineConfig reads the engine section of the config file and applies
// flag overrides on top.
func loadEngineConfig(flags engineFlags) (engineConfig, error) {
	fileCfg, err := appconfig.Load(flags.cfgPath)
	if err != nil {
		return engineConfig{}, err
	}
	cfg := fileCfg.Engine
	if strings.TrimSpace(flags.socketPath) != "" {
		cfg.SocketPath = flags.socketPath
	}
	if strings.TrimSpace(flags.binary) != "" {
		cfg.Binary = flags.binary
	}
	if len(flags.args) > 0 {
		cfg.Args = flags.args
	}
	if env := mapFromEnv(flags.env); len(env) > 0 {
		cfg.Env = env
	}
	if flags.keepaliveInterval > 0 {
		cfg.KeepaliveIntervalSeconds = int(flags.keepaliveInterval.Seconds())
	}
	if flags.keepaliveMisses > 0 {
		cfg.KeepaliveMisses = flags.keepaliveMisses
	}
	return engineConfig{
		SocketPath:        cfg.SocketPath,
		Binary:            cfg.Binary,
		Args:              cfg.Args,
		Env:               cfg.Env,
		KeepaliveInterval: time.Duration(cfg.KeepaliveIntervalSeconds) * time.Second,
		KeepaliveMisses:   cfg.KeepaliveMisses,
	}, nil
}

func mapFromEnv(values []string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for _, value := range values {
		key, val, ok := strings.Cut(value, "=")
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}
		out[key] = val
	}
	return out
}
