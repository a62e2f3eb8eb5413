package schedule

import (
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 8, 24, hour, minute, 0, 0, time.UTC)
}

func TestSubtractBlocksNoBlocks(t *testing.T) {
	got := SubtractBlocks(at(9, 0), at(17, 0), nil)
	if len(got) != 1 || !got[0].Start.Equal(at(9, 0)) || !got[0].End.Equal(at(17, 0)) {
		t.Fatalf("expected full window, got %v", got)
	}
}

func TestSubtractBlocksSplitsWindow(t *testing.T) {
	blocks := []Interval{{Start: at(12, 0), End: at(13, 0)}}
	got := SubtractBlocks(at(9, 0), at(17, 0), blocks)
	if len(got) != 2 {
		t.Fatalf("expected 2 windows, got %v", got)
	}
	if !got[0].End.Equal(at(12, 0)) || !got[1].Start.Equal(at(13, 0)) {
		t.Fatalf("wrong split points: %v", got)
	}
}

func TestSubtractBlocksMergesOverlaps(t *testing.T) {
	blocks := []Interval{
		{Start: at(10, 0), End: at(12, 0)},
		{Start: at(11, 0), End: at(13, 0)},
	}
	got := SubtractBlocks(at(9, 0), at(17, 0), blocks)
	if len(got) != 2 {
		t.Fatalf("expected 2 windows after merge, got %v", got)
	}
	if !got[0].End.Equal(at(10, 0)) || !got[1].Start.Equal(at(13, 0)) {
		t.Fatalf("merge produced wrong windows: %v", got)
	}
}

func TestSubtractBlocksFullCover(t *testing.T) {
	blocks := []Interval{{Start: at(8, 0), End: at(18, 0)}}
	got := SubtractBlocks(at(9, 0), at(17, 0), blocks)
	if len(got) != 0 {
		t.Fatalf("expected no open windows, got %v", got)
	}
}

func TestSubtractBlocksClipsOutOfRange(t *testing.T) {
	blocks := []Interval{
		{Start: at(6, 0), End: at(7, 0)},
		{Start: at(20, 0), End: at(21, 0)},
	}
	got := SubtractBlocks(at(9, 0), at(17, 0), blocks)
	if len(got) != 1 || !got[0].Start.Equal(at(9, 0)) || !got[0].End.Equal(at(17, 0)) {
		t.Fatalf("out-of-range blocks should not affect window: %v", got)
	}
}
