package signals

import (
	"image"

	"golang.org/x/image/draw"
)

// #region context
// Context accumulates signals for one detection pass over one image.
// Detectors read earlier signals through HasSignal to decide whether to run.
type Context struct {
	Image   image.Image
	RGBA    *image.RGBA
	Width   int
	Height  int
	Signals []Signal
}

// NewContext decodes img into a zero-origin RGBA buffer.
func NewContext(img image.Image) *Context {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	return &Context{
		Image:  img,
		RGBA:   rgba,
		Width:  b.Dx(),
		Height: b.Dy(),
	}
}

// Pixel returns the RGB value at (x, y). ok is false outside the image.
func (c *Context) Pixel(x, y int) (r, g, b uint8, ok bool) {
	if x < 0 || y < 0 || x >= c.Width || y >= c.Height {
		return 0, 0, 0, false
	}
	i := c.RGBA.PixOffset(x, y)
	p := c.RGBA.Pix[i : i+3 : i+3]
	return p[0], p[1], p[2], true
}

// Brightness returns the mean channel value at (x, y).
func (c *Context) Brightness(x, y int) (int, bool) {
	r, g, b, ok := c.Pixel(x, y)
	if !ok {
		return 0, false
	}
	return (int(r) + int(g) + int(b)) / 3, true
}

// AddSignal appends s in arrival order.
func (c *Context) AddSignal(s Signal) {
	c.Signals = append(c.Signals, s)
}

// HasSignal reports whether any accumulated signal has type t.
func (c *Context) HasSignal(t SignalType) bool {
	for _, s := range c.Signals {
		if s.Type == t {
			return true
		}
	}
	return false
}

// SignalConfidence returns the highest confidence for type t.
func (c *Context) SignalConfidence(t SignalType) (float64, bool) {
	best, found := 0.0, false
	for _, s := range c.Signals {
		if s.Type == t && (!found || s.Confidence > best) {
			best, found = s.Confidence, true
		}
	}
	return best, found
}

// Clone copies the context with an independent signal slice. The pixel buffer is shared.
func (c *Context) Clone() *Context {
	cp := *c
	cp.Signals = append([]Signal(nil), c.Signals...)
	return &cp
}

// #endregion context
