package core

import "pkt.systems/tmplay/schema"

const defaultNoticeMax = schema.DefaultNoticeMaxLines

// noticeLog stores user-facing notices, oldest first, bounded to max lines.
type noticeLog struct {
	lines []string
	max   int
}

func newNoticeLog(limit int) *noticeLog {
	if limit <= 0 {
		limit = defaultNoticeMax
	}
	return &noticeLog{max: limit}
}

// Append adds lines, dropping the oldest once the limit is exceeded.
func (n *noticeLog) Append(lines ...string) {
	if len(lines) == 0 {
		return
	}
	n.lines = append(n.lines, lines...)
	if len(n.lines) > n.max {
		trim := len(n.lines) - n.max
		n.lines = append([]string(nil), n.lines[trim:]...)
	}
}

// Tail returns up to limit of the newest lines. A non-positive limit returns all.
func (n *noticeLog) Tail(limit int) []string {
	total := len(n.lines)
	if limit <= 0 || limit > total {
		limit = total
	}
	out := make([]string, limit)
	copy(out, n.lines[total-limit:])
	return out
}

// Len returns the number of stored lines.
func (n *noticeLog) Len() int {
	return len(n.lines)
}
