package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/tmplay"
	"pkt.systems/tmplay/core"
	"pkt.systems/tmplay/httpapi"
	"pkt.systems/tmplay/internal/appconfig"
	"pkt.systems/tmplay/schema"
	"pkt.systems/tmplay/sshserver"
)

type serveFlags struct {
	cfgPath    string
	httpAddr   string
	sshAddr    string
	noHTTP     bool
	noSSH      bool
	hostEngine bool
	engineMode string
	binary     string
	socketPath string
	example    string
	sourcePath string
}

func newServeCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and SSH tape viewer",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(flags.cfgPath)
			if err != nil {
				return err
			}
			if err := applyServeFlags(&cfg, flags); err != nil {
				return err
			}
			if flags.noHTTP && flags.noSSH && !flags.hostEngine {
				return fmt.Errorf("nothing to serve: both --no-http and --no-ssh given")
			}

			stack, err := selectEngine(cfg, flags.hostEngine, logger)
			if err != nil {
				return err
			}
			logger.Info("engine selected", "mode", cfg.Engine.Mode, "binary", cfg.Engine.Binary, "socket", cfg.Engine.SocketPath, "in_process", stack.Daemon != nil)

			sshCfg := toSSHConfig(cfg.SSH)
			if flags.sourcePath != "" {
				source, err := readSourceFile(cmd.InOrStdin(), flags.sourcePath)
				if err != nil {
					return err
				}
				sshCfg.Source = source
			}

			serverCfg := tmplay.ServerConfig{
				Service:    cfg.ServiceSettings(),
				HTTP:       toHTTPConfig(cfg.HTTP, cfg.Service),
				SSH:        sshCfg,
				HubHistory: 1000,
			}
			serverDeps := tmplay.ServerDeps{
				ServiceDeps: core.ServiceDeps{
					Gateway: stack.Gateway,
					Logger:  logger,
				},
				Loader:  stack.Load,
				Closers: stack.Closers,
			}
			opts := make([]tmplay.ServerOption, 0, 3)
			if !flags.noHTTP {
				opts = append(opts, tmplay.WithHTTP())
			}
			if !flags.noSSH {
				opts = append(opts, tmplay.WithSSH())
			}
			if stack.Daemon != nil {
				serverDeps.Engine = stack.Daemon
				opts = append(opts, tmplay.WithEngine())
			}
			server, err := tmplay.New(serverCfg, serverDeps, opts...)
			if err != nil {
				stack.Close()
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			if !flags.noHTTP {
				logger.Info("http server listening", "addr", serverCfg.HTTP.Addr)
			}
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&flags.cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&flags.httpAddr, "http-addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&flags.sshAddr, "ssh-addr", "", "SSH listen address (overrides config)")
	cmd.Flags().BoolVar(&flags.noHTTP, "no-http", false, "disable the HTTP API")
	cmd.Flags().BoolVar(&flags.noSSH, "no-ssh", false, "disable the SSH viewer")
	cmd.Flags().BoolVar(&flags.hostEngine, "with-engine", false, "host the engine daemon in this process (grpc mode)")
	cmd.Flags().StringVar(&flags.engineMode, "engine-mode", "", "engine mode: grpc or exec (overrides config)")
	cmd.Flags().StringVar(&flags.binary, "engine-binary", "", "engine executable (overrides config)")
	cmd.Flags().StringVar(&flags.socketPath, "socket-path", "", "engine daemon socket (overrides config)")
	cmd.Flags().StringVar(&flags.example, "example", "", "example loaded by SSH viewers (overrides config)")
	cmd.Flags().StringVar(&flags.sourcePath, "source", "", "program file loaded by SSH viewers instead of an example")
	return cmd
}

func applyServeFlags(cfg *appconfig.Config, flags serveFlags) error {
	if err := applyEngineFlags(cfg, flags.engineMode, flags.binary, flags.socketPath); err != nil {
		return err
	}
	if strings.TrimSpace(flags.httpAddr) != "" {
		cfg.HTTP.Addr = flags.httpAddr
	}
	if strings.TrimSpace(flags.sshAddr) != "" {
		cfg.SSH.Addr = flags.sshAddr
	}
	if strings.TrimSpace(flags.example) != "" {
		cfg.SSH.Example = flags.example
	}
	if flags.hostEngine && cfg.Engine.Mode != appconfig.EngineModeGRPC {
		return fmt.Errorf("--with-engine requires engine mode %q", appconfig.EngineModeGRPC)
	}
	return nil
}

func toHTTPConfig(cfg appconfig.HTTPConfig, service appconfig.ServiceConfig) httpapi.Config {
	return httpapi.Config{
		Addr:            cfg.Addr,
		SessionCookie:   cfg.SessionCookie,
		SessionTTLHours: cfg.SessionTTLHours,
		BasePath:        cfg.BasePath,
		DefaultCells:    service.VisibleCells,
	}
}

func toSSHConfig(cfg appconfig.SSHConfig) sshserver.Config {
	return sshserver.Config{
		Addr:               cfg.Addr,
		HostKeyPath:        cfg.HostKeyPath,
		AuthorizedKeysPath: cfg.AuthorizedKeysPath,
		Example:            cfg.Example,
		Theme:              cfg.Theme,
	}
}

// readSourceFile reads a program from path, or from stdin when path is "-".
func readSourceFile(stdin io.Reader, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read program: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("read program %s: %w", path, schema.ErrEmptySource)
	}
	return string(data), nil
}
