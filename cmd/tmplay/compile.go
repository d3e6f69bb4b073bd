package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/tmplay/internal/appconfig"
	"pkt.systems/tmplay/internal/format"
	"pkt.systems/tmplay/schema"
)

var errCompileFailed = errors.New("compilation failed")

func newCompileCmd() *cobra.Command {
	var cfgPath, example, outC, outDot, engineMode, binary, socketPath string
	cmd := &cobra.Command{
		Use:   "compile [FILE|-]",
		Short: "Compile a TM-Lang program and write its artifacts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			prog, err := loadProgram(cmd.InOrStdin(), args, example)
			if err != nil {
				return err
			}
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if err := applyEngineFlags(&cfg, engineMode, binary, socketPath); err != nil {
				return err
			}
			stack, err := readyEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer stack.Close()

			logger.Debug("compile start", "program", prog.Name, "bytes", len(prog.Source))
			result, ready := stack.Gateway.Compile(cmd.Context(), prog.Source)
			if !ready {
				return schema.ErrEngineNotReady
			}
			out := cmd.OutOrStdout()
			for _, line := range format.NewPlainRenderer().FormatCompile(result) {
				if _, err := fmt.Fprintln(out, line); err != nil {
					return err
				}
			}
			if !result.OK() {
				return errCompileFailed
			}
			if err := writeArtifact(outC, result.CCode); err != nil {
				return err
			}
			if err := writeArtifact(outDot, result.Dot); err != nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&example, "example", "", "compile a bundled example instead of a file")
	cmd.Flags().StringVarP(&outC, "output", "o", "", "write the generated C program to this file")
	cmd.Flags().StringVar(&outDot, "dot", "", "write the transition graph to this file")
	cmd.Flags().StringVar(&engineMode, "engine-mode", "", "engine mode: grpc or exec (overrides config)")
	cmd.Flags().StringVar(&binary, "engine-binary", "", "engine executable (overrides config)")
	cmd.Flags().StringVar(&socketPath, "socket-path", "", "engine daemon socket (overrides config)")
	return cmd
}

func writeArtifact(path, content string) error {
	if path == "" {
		return nil
	}
	if content == "" {
		return fmt.Errorf("write %s: %w", path, schema.ErrNoArtifact)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
