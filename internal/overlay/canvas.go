package overlay

import (
	"image/color"

	"tinygo.org/x/drivers"

	"github.com/vkngwrapper/frameloop/internal/gpu"
)

// ChannelOrder is the byte order of the presentable image format.
type ChannelOrder int

const (
	OrderBGRA ChannelOrder = iota
	OrderRGBA
)

// Canvas is an in-memory RGBA display. The vertical scroll offset emulates
// the hardware scrolling tinyterm expects: memory row (y+scroll) mod height
// is shown at row y.
type Canvas struct {
	width  int16
	height int16
	scroll int16
	pix    []byte
}

var _ drivers.Displayer = (*Canvas)(nil)

func NewCanvas(width, height int) *Canvas {
	return &Canvas{
		width:  int16(width),
		height: int16(height),
		pix:    make([]byte, width*height*4),
	}
}

func (c *Canvas) Size() (x, y int16) { return c.width, c.height }

func (c *Canvas) SetPixel(x, y int16, col color.RGBA) {
	if x < 0 || y < 0 || x >= c.width || y >= c.height {
		return
	}
	off := (int(y)*int(c.width) + int(x)) * 4
	c.pix[off] = col.R
	c.pix[off+1] = col.G
	c.pix[off+2] = col.B
	c.pix[off+3] = col.A
}

func (c *Canvas) Display() error { return nil }

func (c *Canvas) FillRectangle(x, y, width, height int16, col color.RGBA) error {
	for py := y; py < y+height; py++ {
		for px := x; px < x+width; px++ {
			c.SetPixel(px, py, col)
		}
	}
	return nil
}

func (c *Canvas) SetScroll(line int16) {
	if c.height > 0 {
		c.scroll = ((line % c.height) + c.height) % c.height
	}
}

func (c *Canvas) SetRotation(rotation drivers.Rotation) error { return nil }

func (c *Canvas) Fill(col color.RGBA) {
	c.scroll = 0
	_ = c.FillRectangle(0, 0, c.width, c.height, col)
}

// At returns the pixel shown at (x, y), honouring the scroll offset.
func (c *Canvas) At(x, y int) color.RGBA {
	row := (y + int(c.scroll)) % int(c.height)
	off := (row*int(c.width) + x) * 4
	return color.RGBA{R: c.pix[off], G: c.pix[off+1], B: c.pix[off+2], A: c.pix[off+3]}
}

// DrawTo copies the displayed contents of c into dst at (x, y).
func (c *Canvas) DrawTo(dst *Canvas, x, y int) {
	for py := 0; py < int(c.height); py++ {
		for px := 0; px < int(c.width); px++ {
			dst.SetPixel(int16(x+px), int16(y+py), c.At(px, py))
		}
	}
}

// Pack writes the canvas-relative region r into dst as tightly packed rows in
// the given channel order.
func (c *Canvas) Pack(dst []byte, r gpu.Rect, order ChannelOrder) {
	i := 0
	for y := r.Y; y < r.Y+r.Height; y++ {
		for x := r.X; x < r.X+r.Width; x++ {
			p := c.At(x, y)
			if order == OrderBGRA {
				p.R, p.B = p.B, p.R
			}
			dst[i], dst[i+1], dst[i+2], dst[i+3] = p.R, p.G, p.B, p.A
			i += 4
		}
	}
}
