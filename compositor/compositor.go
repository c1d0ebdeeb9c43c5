// Package compositor merges up to four rendered frames into one output
// frame according to a layout and each layer's opacity and blend mode.
package compositor

import (
	"image"

	"golang.org/x/image/draw"
)

// NumLayers is the number of inputs a Compositor accepts.
const NumLayers = 4

// Layer is one input as seen by the compositor.
type Layer struct {
	Frame    *image.RGBA // nil or zero-sized while not ready
	Opacity  float64
	Blend    BlendMode
	Assigned bool // the input has an asset
}

func (l Layer) ready() bool {
	if l.Frame == nil {
		return false
	}
	b := l.Frame.Bounds()
	return b.Dx() > 0 && b.Dy() > 0
}

// Compositor owns the output frame. It is not safe for concurrent use.
type Compositor struct {
	out     *image.RGBA
	scratch map[image.Point]*image.RGBA
	cards   map[string]*image.RGBA

	// drawing state for the current pass
	alpha float64
	op    BlendMode
}

// New creates a Compositor producing frames of w x h pixels.
func New(w, h int) *Compositor {
	return &Compositor{
		out:     image.NewRGBA(image.Rect(0, 0, w, h)),
		scratch: make(map[image.Point]*image.RGBA),
		cards:   make(map[string]*image.RGBA),
		alpha:   1,
		op:      Normal,
	}
}

// Size returns the output dimensions.
func (c *Compositor) Size() (int, int) {
	b := c.out.Bounds()
	return b.Dx(), b.Dy()
}

// Output returns the frame produced by the last Compose. It is overwritten
// by the next call.
func (c *Compositor) Output() *image.RGBA {
	return c.out
}

// DrawState reports the current global alpha and operator. Between passes
// it is always (1, Normal).
func (c *Compositor) DrawState() (float64, BlendMode) {
	return c.alpha, c.op
}

// Compose draws one output frame.
func (c *Compositor) Compose(layout Layout, layers [NumLayers]Layer, active int) *image.RGBA {
	defer c.reset()
	clear(c.out.Pix)

	w, h := c.Size()
	if w == 0 || h == 0 {
		return c.out
	}

	anyAssigned := false
	for _, l := range layers {
		anyAssigned = anyAssigned || l.Assigned
	}
	if !anyAssigned {
		c.drawCard(EmptyMessage)
		return c.out
	}

	switch layout {
	case Stack:
		for i, l := range layers {
			if !l.ready() {
				continue
			}
			c.op = Normal
			if i > 0 {
				c.op = l.Blend
			}
			c.alpha = l.Opacity
			c.drawLayer(c.out.Bounds(), l.Frame)
		}
	case Split:
		for i := 0; i < 2; i++ {
			l := layers[i]
			if !l.ready() {
				continue
			}
			x0 := i * (w / 2)
			x1 := x0 + w/2
			if i == 1 {
				x1 = w
			}
			c.op = Normal
			c.alpha = l.Opacity
			c.drawLayer(image.Rect(x0, 0, x1, h), l.Frame)
		}
	case Single:
		if active < 0 || active >= NumLayers {
			return c.out
		}
		l := layers[active]
		if !l.ready() {
			if l.Assigned {
				c.drawCard(LoadingMessage(active))
			}
			return c.out
		}
		c.op = Normal
		c.alpha = l.Opacity
		c.drawLayer(c.out.Bounds(), l.Frame)
	default:
		for i, l := range layers {
			if !l.ready() {
				continue
			}
			c.op = Normal
			c.alpha = l.Opacity
			c.drawLayer(quadrant(i, w, h), l.Frame)
		}
	}
	return c.out
}

// quadrant returns the cell for layer i. The right column and bottom row
// absorb the odd pixel so the grid always covers the canvas.
func quadrant(i, w, h int) image.Rectangle {
	col, row := i%2, i/2
	x0, y0 := col*(w/2), row*(h/2)
	x1, y1 := x0+w/2, y0+h/2
	if col == 1 {
		x1 = w
	}
	if row == 1 {
		y1 = h
	}
	return image.Rect(x0, y0, x1, y1)
}

func (c *Compositor) reset() {
	c.alpha = 1
	c.op = Normal
}

func (c *Compositor) drawCard(msg string) {
	card, ok := c.cards[msg]
	if !ok {
		w, h := c.Size()
		card = renderPlaceholder(w, h, msg)
		c.cards[msg] = card
	}
	copy(c.out.Pix, card.Pix)
}

// scaled returns src resampled to the size of r.
func (c *Compositor) scaled(r image.Rectangle, src *image.RGBA) *image.RGBA {
	sb := src.Bounds()
	if sb.Dx() == r.Dx() && sb.Dy() == r.Dy() {
		return src
	}
	size := r.Size()
	dst, ok := c.scratch[size]
	if !ok {
		dst = image.NewRGBA(image.Rectangle{Max: size})
		c.scratch[size] = dst
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)
	return dst
}
