package main

import (
	"sort"
	"testing"
	"time"

	"github.com/nsf/termbox-go"

	"raidlab/internal/sim"
)

func TestHeldKeys_ReleaseAfterHold(t *testing.T) {
	h := newHeldKeys(200 * time.Millisecond)
	start := time.Unix(100, 0)

	h.press(sim.KeyLeft, start)
	h.press(sim.KeyUp, start.Add(150*time.Millisecond))

	if got := h.expire(start.Add(199 * time.Millisecond)); len(got) != 0 {
		t.Fatalf("released early: %v", got)
	}
	if got := h.expire(start.Add(200 * time.Millisecond)); len(got) != 1 || got[0] != sim.KeyLeft {
		t.Fatalf("expire=%v, want [left]", got)
	}

	// A repeat press extends the hold.
	h.press(sim.KeyUp, start.Add(300*time.Millisecond))
	if got := h.expire(start.Add(400 * time.Millisecond)); len(got) != 0 {
		t.Fatalf("repeat press should extend: %v", got)
	}
	got := h.expire(start.Add(time.Second))
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	if len(got) != 1 || got[0] != sim.KeyUp {
		t.Fatalf("expire=%v", got)
	}
}

func TestDirectionKey(t *testing.T) {
	tests := []struct {
		ev   termbox.Event
		want sim.Key
		ok   bool
	}{
		{termbox.Event{Key: termbox.KeyArrowUp}, sim.KeyUp, true},
		{termbox.Event{Ch: 'a'}, sim.KeyLeft, true},
		{termbox.Event{Ch: 'D'}, sim.KeyRight, true},
		{termbox.Event{Ch: 'x'}, 0, false},
	}
	for _, tt := range tests {
		got, ok := directionKey(tt.ev)
		if got != tt.want || ok != tt.ok {
			t.Errorf("directionKey(%+v)=%v,%v", tt.ev, got, ok)
		}
	}
	if !quitKey(termbox.Event{Ch: 'q'}) || quitKey(termbox.Event{Ch: 'w'}) {
		t.Error("quitKey mismatch")
	}
}

func TestField_Mapping(t *testing.T) {
	f := newField(600, 200, 32)
	if f.rows != 30 || f.cols != 60 {
		t.Fatalf("field=%+v", f)
	}
	if x, y := f.cell(0, 0); x != 0 || y != hudRows {
		t.Errorf("origin -> %d,%d", x, y)
	}
	if x, y := f.cell(600, 600); x != 59 || y != 29+hudRows {
		t.Errorf("far corner -> %d,%d", x, y)
	}
	if x, y := f.cell(300, 300); x != 30 || y != 15+hudRows {
		t.Errorf("center -> %d,%d", x, y)
	}

	// Narrow terminals shrink the field to keep the aspect ratio.
	narrow := newField(600, 40, 50)
	if narrow.cols != 40 || narrow.rows != 20 {
		t.Errorf("narrow=%+v", narrow)
	}
}
