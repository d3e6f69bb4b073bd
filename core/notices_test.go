package core

import "testing"

func TestNoticeLogRespectsMax(t *testing.T) {
	n := newNoticeLog(3)
	n.Append("one", "two", "three", "four", "five")
	if n.Len() != 3 {
		t.Fatalf("expected 3 lines, got %d", n.Len())
	}
	lines := n.Tail(0)
	if lines[0] != "three" || lines[2] != "five" {
		t.Fatalf("unexpected lines: %+v", lines)
	}
}

func TestNoticeLogTail(t *testing.T) {
	n := newNoticeLog(10)
	n.Append("one", "two", "three")
	lines := n.Tail(2)
	if len(lines) != 2 || lines[0] != "two" || lines[1] != "three" {
		t.Fatalf("unexpected tail: %+v", lines)
	}
	lines[0] = "mutated"
	if n.Tail(2)[0] != "two" {
		t.Fatalf("tail must return a copy")
	}
}

func TestNoticeLogDefaultMax(t *testing.T) {
	n := newNoticeLog(0)
	if n.max != defaultNoticeMax {
		t.Fatalf("expected default max %d, got %d", defaultNoticeMax, n.max)
	}
	n.Append()
	if n.Len() != 0 {
		t.Fatalf("expected empty log")
	}
}
