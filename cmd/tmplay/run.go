package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pkt.systems/pslog"
	"pkt.systems/tmplay/core"
	"pkt.systems/tmplay/internal/appconfig"
	"pkt.systems/tmplay/internal/format"
	"pkt.systems/tmplay/schema"
)

func newRunCmd() *cobra.Command {
	var cfgPath, example, tape, engineMode, binary, socketPath string
	var speed, cells int
	var noPlay bool
	cmd := &cobra.Command{
		Use:   "run [FILE|-]",
		Short: "Simulate a TM-Lang program and play the tape in the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			if !cmd.Flags().Changed("tape") {
				tape = prog.Tape
				if tape == "" {
					tape = cfg.Service.DefaultTape
				}
			}
			if speed <= 0 {
				speed = cfg.Service.SpeedMS
			}
			if cells <= 0 {
				cells = cfg.Service.VisibleCells
			}
			if cells > schema.MaxVisibleCells {
				return fmt.Errorf("--cells must not exceed %d", schema.MaxVisibleCells)
			}

			stack, err := readyEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer stack.Close()

			result, ready := stack.Gateway.Run(cmd.Context(), prog.Source, tape)
			if !ready {
				return schema.ErrEngineNotReady
			}
			out := cmd.OutOrStdout()
			opts := playOptions{SpeedMS: speed, Cells: cells, NoPlay: noPlay}
			if file, ok := out.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
				opts.Redraw = true
				if width, _, err := term.GetSize(int(file.Fd())); err == nil {
					opts.Cells = fitCells(opts.Cells, width)
				}
			}
			if err := playResult(cmd.Context(), out, result, opts); err != nil {
				return err
			}
			for _, line := range format.NewPlainRenderer().FormatResult(result) {
				if _, err := fmt.Fprintln(out, line); err != nil {
					return err
				}
			}
			if result.Status == schema.SimError {
				return fmt.Errorf("simulation error: %s", result.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&example, "example", "", "run a bundled example instead of a file")
	cmd.Flags().StringVarP(&tape, "tape", "t", "", "tape input (defaults to the example tape or service.default_tape)")
	cmd.Flags().IntVar(&speed, "speed", 0, "playback interval in milliseconds")
	cmd.Flags().IntVar(&cells, "cells", 0, "visible tape cells")
	cmd.Flags().BoolVar(&noPlay, "no-play", false, "print the final step only")
	cmd.Flags().StringVar(&engineMode, "engine-mode", "", "engine mode: grpc or exec (overrides config)")
	cmd.Flags().StringVar(&binary, "engine-binary", "", "engine executable (overrides config)")
	cmd.Flags().StringVar(&socketPath, "socket-path", "", "engine daemon socket (overrides config)")
	return cmd
}

type playOptions struct {
	SpeedMS int
	Cells   int
	// Redraw repaints frames in place instead of appending them.
	Redraw bool
	NoPlay bool
	Clock  core.Clock
}

// fitCells shrinks cells so a frame of three-column cells fits width.
func fitCells(cells, width int) int {
	if width <= 0 {
		return cells
	}
	if limit := width / 3; cells > limit {
		cells = limit
	}
	if cells > 1 && cells%2 == 0 {
		cells--
	}
	if cells < 1 {
		cells = 1
	}
	return cells
}

// playResult plays a simulation on out with a Player until it ends or ctx
// is done.
func playResult(ctx context.Context, out io.Writer, result schema.SimulationResult, opts playOptions) error {
	if len(result.History) == 0 {
		return nil
	}
	log := pslog.Ctx(ctx)
	renderer := format.NewPlainRenderer()
	painter := &framePainter{out: out, redraw: opts.Redraw}
	if opts.NoPlay {
		player := core.NewPlayer(core.PlayerOptions{SpeedMS: opts.SpeedMS, Clock: opts.Clock, Logger: log})
		defer player.Close()
		player.Load(result)
		player.Last()
		snap := player.Snapshot()
		return painter.paintLocked(renderer.FormatFrame(viewportFor(snap, opts.Cells), snap))
	}
	done := make(chan struct{})
	var once sync.Once
	var paintErr error
	draw := func(snap schema.PlaybackSnapshot) {
		if err := painter.paintLocked(renderer.FormatFrame(viewportFor(snap, opts.Cells), snap)); err != nil && paintErr == nil {
			paintErr = err
		}
		if snap.Phase == schema.PhaseEnded || !snap.IsPlaying && snap.AtEnd() {
			once.Do(func() { close(done) })
		}
	}
	player := core.NewPlayer(core.PlayerOptions{
		SpeedMS: opts.SpeedMS,
		Clock:   opts.Clock,
		Logger:  log,
		OnChange: func(snap schema.PlaybackSnapshot) {
			painter.mu.Lock()
			defer painter.mu.Unlock()
			draw(snap)
		},
	})
	defer player.Close()
	player.Load(result)
	player.Play()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}
	painter.mu.Lock()
	defer painter.mu.Unlock()
	return paintErr
}

// viewportFor renders the window around the head of the active step.
func viewportFor(snap schema.PlaybackSnapshot, cells int) schema.ViewportSnapshot {
	view := core.FollowHead()
	if snap.Step == nil {
		return schema.ViewportSnapshot{Cells: []schema.TapeCell{}, View: view, VisibleCells: cells, Step: -1}
	}
	step := *snap.Step
	return schema.ViewportSnapshot{
		Cells:        core.ComputeViewport(step.Tape, step.Head, view, cells),
		View:         view,
		VisibleCells: cells,
		Head:         step.Head,
		State:        step.State,
		Step:         step.Step,
	}
}

type framePainter struct {
	mu     sync.Mutex
	out    io.Writer
	redraw bool
	drawn  int
}

// paintLocked writes a frame; concurrent callers hold mu. In redraw mode
// the previous frame is overwritten by moving the cursor back up over it.
func (p *framePainter) paintLocked(lines []string) error {
	var b strings.Builder
	if p.redraw && p.drawn > 0 {
		fmt.Fprintf(&b, "\x1b[%dA", p.drawn)
	}
	for _, line := range lines {
		if p.redraw {
			b.WriteString("\x1b[2K")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if !p.redraw {
		b.WriteString("\n")
	}
	p.drawn = len(lines)
	_, err := io.WriteString(p.out, b.String())
	return err
}
