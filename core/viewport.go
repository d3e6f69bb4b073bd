package core

import (
	"math"

	"pkt.systems/tmplay/schema"
)

// manualExtentPadding and manualExtentMin widen the addressable tape when the
// user scrolls, so blank cells the machine never visited can be inspected.
const (
	manualExtentPadding = 10
	manualExtentMin     = 20
)

// ComputeViewport returns exactly visibleCells cells of tape, centered on the
// head when view.FollowHead is set and on view.ViewOffset otherwise. Cells
// without recorded content hold the blank symbol. The function is pure.
func ComputeViewport(tape string, head int, view schema.ViewportState, visibleCells int) []schema.TapeCell {
	if visibleCells <= 0 {
		return []schema.TapeCell{}
	}
	cells := []rune(tape)
	extent := TapeExtent(len(cells), head, view.FollowHead)
	// Clamp the center into [0, extent] first so the window bounds below
	// stay within int range for any head or offset.
	center := min(max(ViewportCenter(view, head), 0), extent)
	maxStart := extent - visibleCells
	if head >= extent {
		// extent saturated at math.MaxInt; keep the head as the last cell.
		maxStart = head - (visibleCells - 1)
	}
	start := max(center-visibleCells/2, 0)
	if start > maxStart {
		start = max(maxStart, 0)
	}
	out := make([]schema.TapeCell, visibleCells)
	for i := range out {
		index := start + i
		char := rune(schema.BlankSymbol)
		if index >= 0 && index < len(cells) {
			char = cells[index]
		}
		out[i] = schema.TapeCell{
			Char:   string(char),
			Index:  index,
			IsHead: index == head,
		}
	}
	return out
}

// TapeExtent returns the addressable tape length for a window. A head beyond
// the recorded tape always stays addressable.
func TapeExtent(tapeLen, head int, followHead bool) int {
	extent := tapeLen
	if !followHead {
		extent = tapeLen + manualExtentPadding
		if extent < manualExtentMin {
			extent = manualExtentMin
		}
	}
	if head >= extent {
		extent = addSaturating(head, 1)
	}
	return extent
}

// ViewportCenter returns the tape index the window is centered on.
func ViewportCenter(view schema.ViewportState, head int) int {
	if view.FollowHead {
		return head
	}
	return view.ViewOffset
}

// FollowHead returns a viewport state that tracks the head.
func FollowHead() schema.ViewportState {
	return schema.ViewportState{FollowHead: true}
}

// ScrollViewport moves the window center by delta cells and switches to
// manual centering. Offsets never go below 0.
func ScrollViewport(view schema.ViewportState, head, delta int) schema.ViewportState {
	return SetViewOffset(addSaturating(ViewportCenter(view, head), delta))
}

// SetViewOffset returns a manually centered viewport state.
func SetViewOffset(offset int) schema.ViewportState {
	if offset < 0 {
		offset = 0
	}
	return schema.ViewportState{ViewOffset: offset}
}

// addSaturating adds without wrapping past the int limits.
func addSaturating(a, b int) int {
	switch {
	case b > 0 && a > math.MaxInt-b:
		return math.MaxInt
	case b < 0 && a < math.MinInt-b:
		return math.MinInt
	}
	return a + b
}
