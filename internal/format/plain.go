package format

import (
	"fmt"
	"strings"

	"pkt.systems/tmplay/schema"
)

// PlainRenderer formats tape frames and results as plain text lines.
type PlainRenderer struct {
	// CellMarker is placed on both sides of the head cell; "[]" when empty.
	CellMarker string
}

// NewPlainRenderer returns a default plain-text renderer.
func NewPlainRenderer() *PlainRenderer {
	return &PlainRenderer{CellMarker: "[]"}
}

// FormatViewport renders the visible cells, a caret under the head cell and
// a status line. Each cell is three columns wide.
func (p *PlainRenderer) FormatViewport(view schema.ViewportSnapshot) []string {
	open, closing := p.markers()
	var cells, caret strings.Builder
	for _, cell := range view.Cells {
		char := cell.Char
		if char == "" {
			char = string(schema.BlankSymbol)
		}
		if cell.IsHead {
			cells.WriteString(open + char + closing)
			caret.WriteString(" ^ ")
			continue
		}
		cells.WriteString(" " + char + " ")
		caret.WriteString("   ")
	}
	lines := []string{cells.String(), strings.TrimRight(caret.String(), " ")}
	return append(lines, formatPosition(view))
}

// FormatPlayback renders a one-line playback summary.
func (p *PlainRenderer) FormatPlayback(snap schema.PlaybackSnapshot) string {
	if snap.TotalSteps == 0 {
		if snap.Status != "" {
			return fmt.Sprintf("%s  no steps", snap.Status)
		}
		return "idle  no simulation loaded"
	}
	line := fmt.Sprintf("%s  step %d/%d  %dms", snap.Phase, snap.CurrentStep+1, snap.TotalSteps, snap.SpeedMS)
	if snap.Status != "" {
		line += "  " + string(snap.Status)
	}
	return line
}

// FormatFrame renders a full tape frame: viewport lines plus the playback line.
func (p *PlainRenderer) FormatFrame(view schema.ViewportSnapshot, snap schema.PlaybackSnapshot) []string {
	lines := p.FormatViewport(view)
	return append(lines, p.FormatPlayback(snap))
}

// FormatCompile converts a compile result into user-facing lines.
func (p *PlainRenderer) FormatCompile(result schema.CompileResult) []string {
	if result.OK() {
		return []string{"Compilation Successful"}
	}
	if result.Error == "" {
		return []string{"Compilation failed"}
	}
	return markLines("Compilation failed: ", splitLines(result.Error))
}

// FormatResult converts a simulation result into user-facing lines.
func (p *PlainRenderer) FormatResult(result schema.SimulationResult) []string {
	if result.Status == schema.SimError {
		if result.Error == "" {
			return []string{"Simulation error"}
		}
		return markLines("Simulation error: ", splitLines(result.Error))
	}
	lines := []string{
		fmt.Sprintf("Simulation Complete: %s", result.Status),
		fmt.Sprintf("Total steps: %d", len(result.History)),
	}
	if result.Error != "" {
		lines = append(lines, splitLines(result.Error)...)
	}
	return lines
}

func (p *PlainRenderer) markers() (string, string) {
	marker := p.CellMarker
	if len(marker) != 2 {
		marker = "[]"
	}
	return marker[:1], marker[1:]
}

func formatPosition(view schema.ViewportSnapshot) string {
	mode := "follow"
	if !view.View.FollowHead {
		mode = fmt.Sprintf("offset %d", view.View.ViewOffset)
	}
	if view.Step < 0 {
		return fmt.Sprintf("input  view %s", mode)
	}
	state := view.State
	if state == "" {
		state = "-"
	}
	return fmt.Sprintf("step %d  state %s  head %d  view %s", view.Step, state, view.Head, mode)
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(text, "\n"), "\n")
}

func markLines(marker string, lines []string) []string {
	if marker == "" || len(lines) == 0 {
		return lines
	}
	marked := make([]string, 0, len(lines))
	for _, line := range lines {
		marked = append(marked, marker+line)
	}
	return marked
}
