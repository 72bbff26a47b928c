package draw

import (
	"image"
	"image/color"
	stddraw "image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"drawspace-backend/internal/model"
)

// painter renders one event's path onto a stroke layer. It tracks
// which pixels the current event already touched so a semi-transparent
// brush blends once per event, not once per overlapping stamp.
type painter struct {
	layer   *image.RGBA
	color   color.RGBA
	radius  int
	mode    paintMode
	visited map[int]struct{}
}

type paintMode int

const (
	paintOpaque paintMode = iota // pen, text: source copy
	paintBlend                   // brush: src-over once per pixel
	paintErase                   // eraser: destination-out (alpha to zero)
)

func newPainter(layer *image.RGBA, c color.RGBA, width float64, mode paintMode) *painter {
	radius := int(math.Round(width / 2))
	if radius < 0 {
		radius = 0
	}
	return &painter{
		layer:   layer,
		color:   c,
		radius:  radius,
		mode:    mode,
		visited: make(map[int]struct{}),
	}
}

// line walks the segment with Bresenham and stamps a disc at each step
func (p *painter) line(from, to model.Point) {
	x0, y0 := int(math.Round(from.X)), int(math.Round(from.Y))
	x1, y1 := int(math.Round(to.X)), int(math.Round(to.Y))

	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy

	for {
		p.stamp(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// stamp fills a disc of the painter's radius centered at (cx, cy)
func (p *painter) stamp(cx, cy int) {
	r := p.radius
	r2 := r * r
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy > r2 {
				continue
			}
			p.set(cx+dx, cy+dy)
		}
	}
}

func (p *painter) set(x, y int) {
	if !(image.Point{X: x, Y: y}).In(p.layer.Rect) {
		return
	}
	key := y*p.layer.Rect.Dx() + x
	if _, done := p.visited[key]; done {
		return
	}
	p.visited[key] = struct{}{}

	switch p.mode {
	case paintOpaque:
		p.layer.SetRGBA(x, y, p.color)
	case paintErase:
		p.layer.SetRGBA(x, y, color.RGBA{})
	case paintBlend:
		p.layer.SetRGBA(x, y, blend(p.layer.RGBAAt(x, y), p.color))
	}
}

// blend composites src over dst (non-premultiplied src-over)
func blend(dst, src color.RGBA) color.RGBA {
	sa := uint32(src.A)
	da := uint32(dst.A)
	outA := sa + da*(255-sa)/255
	if outA == 0 {
		return color.RGBA{}
	}
	mix := func(s, d uint8) uint8 {
		v := (uint32(s)*sa + uint32(d)*da*(255-sa)/255) / outA
		return uint8(v)
	}
	return color.RGBA{
		R: mix(src.R, dst.R),
		G: mix(src.G, dst.G),
		B: mix(src.B, dst.B),
		A: uint8(outA),
	}
}

// drawText renders a string at the given baseline origin using the
// fixed 7x13 bitmap face. Single-click placement, no wrapping.
func drawText(layer *image.RGBA, origin model.Point, text string, c color.RGBA) {
	d := font.Drawer{
		Dst:  layer,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot: fixed.Point26_6{
			X: fixed.I(int(math.Round(origin.X))),
			Y: fixed.I(int(math.Round(origin.Y))),
		},
	}
	d.DrawString(text)
}

// compose paints the stroke layer over a solid background
func compose(layer *image.RGBA, background color.RGBA) *image.RGBA {
	out := image.NewRGBA(layer.Rect)
	stddraw.Draw(out, out.Rect, image.NewUniform(background), image.Point{}, stddraw.Src)
	stddraw.Draw(out, out.Rect, layer, image.Point{}, stddraw.Over)
	return out
}

func cloneLayer(layer *image.RGBA) *image.RGBA {
	out := image.NewRGBA(layer.Rect)
	copy(out.Pix, layer.Pix)
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
