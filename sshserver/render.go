package sshserver

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"pkt.systems/tmplay/internal/format"
	"pkt.systems/tmplay/schema"
)

// frame is everything the viewer draws in one repaint.
type frame struct {
	Title    string
	Session  schema.SessionSnapshot
	Viewport schema.ViewportSnapshot
	Engine   schema.EngineStatus
	Busy     string
	Notices  []string
}

const helpLine = "space play/pause  ←/→ step  home/end  r reset  +/- speed  [ ] scroll  f follow  c compile  enter run  q quit"

// renderFrame lays out the viewer for a width x height terminal.
func renderFrame(f frame, theme tuiTheme, renderer *format.PlainRenderer, width, height int) []string {
	if width <= 0 || height <= 0 {
		return nil
	}
	lines := []string{titleBar(f.Title, f.Session.ID, theme, width), ""}
	lines = append(lines, renderTape(f.Viewport, theme)...)
	position := renderer.FormatViewport(f.Viewport)
	lines = append(lines, colorize(theme.MetaFG, position[len(position)-1]), "")

	playback := renderer.FormatPlayback(f.Session.Playback)
	lines = append(lines, colorize(statusColor(f.Session.Playback.Status, theme), playback))
	lines = append(lines, renderCompile(f.Session.Compile, theme, renderer)...)
	if f.Session.RunError != "" {
		lines = append(lines, colorize(theme.ErrorFG, "Simulation error: "+firstLine(f.Session.RunError)))
	}
	if !f.Engine.Ready {
		msg := "engine loading"
		if f.Engine.Error != "" {
			msg = "engine unavailable: " + firstLine(f.Engine.Error)
		}
		lines = append(lines, colorize(theme.ErrorFG, msg))
	}
	if f.Busy != "" {
		lines = append(lines, colorize(theme.KeyFG, f.Busy+"..."))
	}
	lines = append(lines, "")

	footer := colorize(theme.KeyFG, helpLine)
	room := height - len(lines) - 1
	if room > 0 && len(f.Notices) > 0 {
		notices := f.Notices
		if len(notices) > room {
			notices = notices[len(notices)-room:]
		}
		for _, notice := range notices {
			lines = append(lines, colorize(theme.MetaFG, notice))
		}
	}
	if len(lines) >= height {
		lines = lines[:height-1]
	}
	for len(lines) < height-1 {
		lines = append(lines, "")
	}
	lines = append(lines, footer)
	for i, line := range lines {
		lines[i] = trimANSIToWidth(line, width)
	}
	return lines
}

func titleBar(title string, id schema.SessionID, theme tuiTheme, width int) string {
	if title == "" {
		title = "tmplay"
	}
	text := " " + title
	if id != "" {
		text += "  " + string(id)
	}
	if pad := width - visibleWidth(text); pad > 0 {
		text += strings.Repeat(" ", pad)
	}
	return ansiBgRGB(theme.TitleBG) + ansiFgRGB(theme.TitleFG) + ansiBold + trimToWidth(text, width) + ansiReset
}

// renderTape draws the visible cells between borders with a caret under
// the head. Each cell is three columns wide.
func renderTape(view schema.ViewportSnapshot, theme tuiTheme) []string {
	if len(view.Cells) == 0 {
		return []string{"", colorize(theme.MetaFG, "(empty tape)"), "", ""}
	}
	border := colorize(theme.BorderFG, strings.Repeat("---", len(view.Cells)))
	var cells, caret strings.Builder
	for _, cell := range view.Cells {
		char := cell.Char
		if char == "" {
			char = string(schema.BlankSymbol)
		}
		if cell.IsHead {
			cells.WriteString(ansiBgRGB(theme.HeadBG) + ansiFgRGB(theme.HeadFG) + ansiBold + " " + char + " " + ansiReset)
			caret.WriteString(" ^ ")
			continue
		}
		cells.WriteString(ansiFgRGB(theme.CellFG) + " " + char + " " + ansiReset)
		caret.WriteString("   ")
	}
	caretLine := strings.TrimRight(caret.String(), " ")
	return []string{border, cells.String(), border, colorize(theme.StateFG, caretLine)}
}

func renderCompile(result *schema.CompileResult, theme tuiTheme, renderer *format.PlainRenderer) []string {
	if result == nil {
		return []string{colorize(theme.MetaFG, "not compiled")}
	}
	color := theme.OKFG
	if !result.OK() {
		color = theme.ErrorFG
	}
	lines := renderer.FormatCompile(*result)
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, colorize(color, line))
	}
	return out
}

func statusColor(status schema.SimStatus, theme tuiTheme) rgb {
	switch status {
	case schema.SimAccepted:
		return theme.OKFG
	case schema.SimRejected, schema.SimTimeout, schema.SimCrash, schema.SimError:
		return theme.ErrorFG
	default:
		return theme.CellFG
	}
}

// visibleCellsForWidth fits an odd number of three-column cells into width
// so the head can sit in the middle.
func visibleCellsForWidth(width, max int) int {
	cells := width / 3
	if max > 0 && cells > max {
		cells = max
	}
	if cells%2 == 0 {
		cells--
	}
	if cells < 1 {
		cells = 1
	}
	return cells
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}

func trimToWidth(value string, width int) string {
	if width <= 0 {
		return ""
	}
	if utf8.RuneCountInString(value) <= width {
		return value
	}
	return string([]rune(value)[:width])
}

func visibleWidth(text string) int {
	width := 0
	for i := 0; i < len(text); {
		if text[i] == 0x1b {
			i = skipEscape(text, i+1)
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		if size == 0 {
			break
		}
		i += size
		width++
	}
	return width
}

// trimANSIToWidth cuts text to width visible runes, keeping escape sequences.
func trimANSIToWidth(text string, width int) string {
	if width <= 0 {
		return ""
	}
	if visibleWidth(text) <= width {
		return text
	}
	var b strings.Builder
	visible := 0
	for i := 0; i < len(text); {
		if text[i] == 0x1b {
			start := i
			i = skipEscape(text, i+1)
			b.WriteString(text[start:i])
			continue
		}
		if visible >= width {
			break
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		if size == 0 {
			break
		}
		b.WriteRune(r)
		i += size
		visible++
	}
	return b.String()
}

func skipEscape(text string, i int) int {
	if i >= len(text) {
		return i
	}
	if text[i] != '[' {
		return i + 1
	}
	for i++; i < len(text); i++ {
		if b := text[i]; b >= 0x40 && b <= 0x7e {
			return i + 1
		}
	}
	return i
}

func speedLabel(ms int) string {
	return fmt.Sprintf("speed %dms", ms)
}
