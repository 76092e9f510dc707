// Package render draws simulation snapshots with gg.
package render

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"github.com/fogleman/gg"

	"raidlab/internal/sim"
)

const hudHeight = 36

// Renderer draws arena snapshots. It is safe for concurrent use; each call
// gets its own context.
type Renderer struct {
	// Scale multiplies the arena size to get the image size.
	Scale float64
}

func NewRenderer() *Renderer {
	return &Renderer{Scale: 1}
}

// Image draws one snapshot.
func (r *Renderer) Image(snap *sim.Snapshot) image.Image {
	return r.draw(snap).Image()
}

// EncodePNG writes one snapshot as PNG.
func (r *Renderer) EncodePNG(w io.Writer, snap *sim.Snapshot) error {
	return r.draw(snap).EncodePNG(w)
}

func (r *Renderer) draw(snap *sim.Snapshot) *gg.Context {
	scale := r.Scale
	if scale <= 0 {
		scale = 1
	}
	size := snap.ArenaSize * scale
	if size <= 0 {
		size = sim.DefaultConfig().ArenaSize
	}
	width := int(math.Ceil(size))
	dc := gg.NewContext(width, width+hudHeight)

	dc.SetColor(color.RGBA{12, 12, 28, 255})
	dc.Clear()

	dc.Push()
	dc.Translate(0, hudHeight)
	dc.Scale(scale, scale)
	drawGrid(dc, snap.ArenaSize)
	for _, o := range snap.Objects {
		drawObject(dc, o, snap.Clock)
	}
	drawObject(dc, snap.Player, snap.Clock)
	dc.Pop()

	drawHUD(dc, snap, float64(width))
	return dc
}

func drawGrid(dc *gg.Context, size float64) {
	dc.SetColor(color.RGBA{30, 30, 45, 255})
	dc.SetLineWidth(1)
	for v := 0.0; v <= size; v += 50 {
		dc.DrawLine(v, 0, v, size)
		dc.Stroke()
		dc.DrawLine(0, v, size, v)
		dc.Stroke()
	}
}

func drawObject(dc *gg.Context, o sim.Object, now float64) {
	c := parseHexColor(o.Color)
	switch o.Kind {
	case sim.KindDanger, sim.KindSafe:
		// color.RGBA is premultiplied; a translucent fill needs NRGBA.
		dc.SetColor(color.NRGBA{c.R, c.G, c.B, 70})
		dc.DrawCircle(o.X, o.Y, o.Radius)
		dc.Fill()

		// The outline fills in as the hazard approaches resolution.
		progress := 1.0
		if o.Duration > 0 {
			progress = math.Min(1, math.Max(0, o.Age(now)/o.Duration))
		}
		dc.SetColor(c)
		dc.SetLineWidth(3)
		dc.DrawArc(o.X, o.Y, o.Radius, -math.Pi/2, -math.Pi/2+progress*2*math.Pi)
		dc.Stroke()
	case sim.KindBoss:
		dc.SetColor(c)
		dc.DrawCircle(o.X, o.Y, o.Radius)
		dc.Fill()
		dc.SetColor(color.RGBA{255, 200, 80, 255})
		dc.SetLineWidth(2)
		dc.DrawCircle(o.X, o.Y, o.Radius)
		dc.Stroke()
	default:
		dc.SetColor(color.RGBA{0, 0, 0, 128})
		dc.DrawCircle(o.X, o.Y+3, o.Radius)
		dc.Fill()
		dc.SetColor(c)
		dc.DrawCircle(o.X, o.Y, o.Radius)
		dc.Fill()
	}
}

func drawHUD(dc *gg.Context, snap *sim.Snapshot, width float64) {
	dc.SetColor(color.RGBA{20, 20, 36, 255})
	dc.DrawRectangle(0, 0, width, hudHeight)
	dc.Fill()

	maxHP := snap.MaxHP
	if maxHP <= 0 {
		maxHP = 100
	}
	barW := width / 3
	dc.SetColor(color.RGBA{60, 20, 20, 255})
	dc.DrawRectangle(8, 10, barW, 16)
	dc.Fill()
	dc.SetColor(color.RGBA{220, 50, 50, 255})
	dc.DrawRectangle(8, 10, barW*float64(snap.HP)/float64(maxHP), 16)
	dc.Fill()

	dc.SetColor(color.White)
	dc.DrawStringAnchored(fmt.Sprintf("HP %d", snap.HP), 8+barW/2, 18, 0.5, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("Score %d", snap.Score), width-8, 18, 1, 0.5)

	status := ""
	switch {
	case snap.Phase == sim.PhaseGameOver:
		status = "GAME OVER"
	case snap.Phase == sim.PhaseIdle:
		status = "READY"
	case snap.Announcement != nil:
		status = fmt.Sprintf("%s (%s)", snap.Announcement.Name, snap.Announcement.Type)
	}
	if status != "" {
		dc.DrawStringAnchored(status, width*0.62, 18, 0.5, 0.5)
	}
}

// parseHexColor converts "#rrggbb" to RGBA, falling back to white.
func parseHexColor(hex string) color.RGBA {
	if len(hex) != 7 || hex[0] != '#' {
		return color.RGBA{255, 255, 255, 255}
	}
	return color.RGBA{
		R: hexToByte(hex[1], hex[2]),
		G: hexToByte(hex[3], hex[4]),
		B: hexToByte(hex[5], hex[6]),
		A: 255,
	}
}

func hexToByte(h1, h2 byte) uint8 {
	return hexCharToNibble(h1)<<4 | hexCharToNibble(h2)
}

func hexCharToNibble(c byte) uint8 {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}
