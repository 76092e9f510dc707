package main

import (
	"fmt"

	"github.com/nsf/termbox-go"

	"raidlab/internal/sim"
)

const hudRows = 2

// field maps arena coordinates onto terminal cells. Cells are roughly twice
// as tall as they are wide, so the field is twice as many columns as rows.
type field struct {
	arena      float64
	cols, rows int
}

func newField(arena float64, termCols, termRows int) field {
	rows := termRows - hudRows
	if rows < 1 {
		rows = 1
	}
	cols := rows * 2
	if cols > termCols {
		cols = termCols
		rows = cols / 2
		if rows < 1 {
			rows = 1
		}
	}
	return field{arena: arena, cols: cols, rows: rows}
}

// cell returns the terminal cell holding an arena point.
func (f field) cell(x, y float64) (int, int) {
	cx := int(x / f.arena * float64(f.cols))
	cy := int(y / f.arena * float64(f.rows))
	return clampInt(cx, 0, f.cols-1), clampInt(cy, 0, f.rows-1) + hudRows
}

// center returns the arena point at the middle of a cell.
func (f field) center(cx, cy int) (float64, float64) {
	x := (float64(cx) + 0.5) / float64(f.cols) * f.arena
	y := (float64(cy-hudRows) + 0.5) / float64(f.rows) * f.arena
	return x, y
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func draw(snap *sim.Snapshot) {
	termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)
	cols, rows := termbox.Size()
	f := newField(snap.ArenaSize, cols, rows)

	for cy := hudRows; cy < f.rows+hudRows; cy++ {
		for cx := 0; cx < f.cols; cx++ {
			termbox.SetCell(cx, cy, '·', termbox.ColorBlack|termbox.AttrBold, termbox.ColorDefault)
		}
	}

	var boss *sim.Object
	for i := range snap.Objects {
		o := snap.Objects[i]
		if o.Kind == sim.KindBoss {
			boss = &snap.Objects[i]
			continue
		}
		fill(f, o)
	}
	if boss != nil {
		fill(f, *boss)
	}
	px, py := f.cell(snap.Player.X, snap.Player.Y)
	termbox.SetCell(px, py, '@', termbox.ColorCyan|termbox.AttrBold, termbox.ColorDefault)

	drawHUD(snap, cols)
	termbox.Flush()
}

func fill(f field, o sim.Object) {
	ch, fg := '░', termbox.ColorRed
	switch o.Kind {
	case sim.KindSafe:
		ch, fg = '▒', termbox.ColorGreen
	case sim.KindBoss:
		ch, fg = 'B', termbox.ColorRed|termbox.AttrBold
	}

	x0, y0 := f.cell(o.X-o.Radius, o.Y-o.Radius)
	x1, y1 := f.cell(o.X+o.Radius, o.Y+o.Radius)
	for cy := y0; cy <= y1; cy++ {
		for cx := x0; cx <= x1; cx++ {
			x, y := f.center(cx, cy)
			if sim.Distance(x, y, o.X, o.Y) <= o.Radius {
				termbox.SetCell(cx, cy, ch, fg, termbox.ColorDefault)
			}
		}
	}
}

func drawHUD(snap *sim.Snapshot, cols int) {
	status := "SPACE to start, arrows/WASD to move, q to quit"
	switch {
	case snap.Phase == sim.PhaseGameOver:
		status = "GAME OVER, SPACE to retry"
	case snap.Announcement != nil:
		status = fmt.Sprintf("%s (%s)", snap.Announcement.Name, snap.Announcement.Type)
	case snap.IsRunning:
		status = snap.Encounter
	}

	line := fmt.Sprintf(" HP %3d/%d  Score %5d  %s", snap.HP, snap.MaxHP, snap.Score, status)
	fg := termbox.ColorWhite
	if snap.HP <= snap.MaxHP/4 {
		fg = termbox.ColorRed | termbox.AttrBold
	}
	printAt(0, 0, line, fg, cols)
}

func printAt(x, y int, s string, fg termbox.Attribute, maxCols int) {
	for _, r := range s {
		if x >= maxCols {
			return
		}
		termbox.SetCell(x, y, r, fg, termbox.ColorDefault)
		x++
	}
}
