package sshserver

import (
	"io"
	"strings"
)

// screen paints whole frames onto an ANSI terminal. The viewer never shows
// a cursor, so it stays hidden until the alternate screen is left.
type screen struct {
	out  io.Writer
	last string
}

func newScreen(out io.Writer) *screen {
	return &screen{out: out}
}

func (s *screen) EnterAltScreen() {
	_, _ = io.WriteString(s.out, "\x1b[?1049h\x1b[?25l\x1b[H\x1b[2J")
}

func (s *screen) ExitAltScreen() {
	_, _ = io.WriteString(s.out, "\x1b[0m\x1b[?1049l\x1b[?25h")
}

// Invalidate forces the next Render to repaint even if the frame is unchanged.
func (s *screen) Invalidate() {
	s.last = ""
}

// Render paints lines from the top-left corner. Identical frames are skipped.
func (s *screen) Render(lines []string) error {
	var b strings.Builder
	b.WriteString("\x1b[H")
	for i, line := range lines {
		if i > 0 {
			b.WriteString("\r\n")
		}
		b.WriteString(line)
		b.WriteString(ansiReset)
		b.WriteString("\x1b[K")
	}
	b.WriteString("\x1b[J")
	frame := b.String()
	if frame == s.last {
		return nil
	}
	s.last = frame
	_, err := io.WriteString(s.out, frame)
	return err
}
