// Package icon rasterizes the toolbar badge images. Everything here is a pure
// function of its arguments: primitives draw anti-aliased shapes into a
// square RGBA canvas using source-over compositing.
package icon

import (
	"image"
	"math"
)

// RGB is an opaque color; opacity is passed separately to each primitive.
type RGB struct{ R, G, B uint8 }

// Canvas is a square, initially transparent, non-premultiplied RGBA buffer.
type Canvas struct {
	size int
	img  *image.NRGBA
}

// NewCanvas returns a transparent canvas of size×size pixels.
func NewCanvas(size int) *Canvas {
	return &Canvas{size: size, img: image.NewNRGBA(image.Rect(0, 0, size, size))}
}

// Size returns the side length in pixels.
func (c *Canvas) Size() int { return c.size }

// Image returns the backing image. Callers must not draw on it afterwards.
func (c *Canvas) Image() *image.NRGBA { return c.img }

// Blend composites color at opacity a (0..1) over the pixel at (x, y) with
// the source-over operator. Out-of-bounds pixels are ignored.
func (c *Canvas) Blend(x, y int, col RGB, a float64) {
	if x < 0 || y < 0 || x >= c.size || y >= c.size || a <= 0 {
		return
	}
	if a > 1 {
		a = 1
	}
	i := c.img.PixOffset(x, y)
	p := c.img.Pix[i : i+4 : i+4]
	existing := float64(p[3]) / 255
	outA := a + existing*(1-a)
	if outA <= 0 {
		return
	}
	mix := func(src uint8, dst uint8) uint8 {
		return clampByte((float64(src)*a + float64(dst)*existing*(1-a)) / outA)
	}
	p[0] = mix(col.R, p[0])
	p[1] = mix(col.G, p[1])
	p[2] = mix(col.B, p[2])
	p[3] = clampByte(outA * 255)
}

// set overwrites a pixel with an opaque color.
func (c *Canvas) set(x, y int, col RGB) {
	if x < 0 || y < 0 || x >= c.size || y >= c.size {
		return
	}
	i := c.img.PixOffset(x, y)
	c.img.Pix[i] = col.R
	c.img.Pix[i+1] = col.G
	c.img.Pix[i+2] = col.B
	c.img.Pix[i+3] = 255
}

// Ring draws a circle outline of radius r. Coverage falls off linearly with
// the distance from the ideal radius and reaches zero at thickness/2.
func (c *Canvas) Ring(cx, cy, r, thickness float64, col RGB, alpha float64) {
	half := thickness / 2
	for y := 0; y < c.size; y++ {
		for x := 0; x < c.size; x++ {
			d := math.Abs(pixelDist(x, y, cx, cy) - r)
			if d < half {
				c.Blend(x, y, col, math.Max(0, 1-d/half)*alpha)
			}
		}
	}
}

// Disc fills a circle of radius r. Pixels in the outermost pixel of the
// radius are anti-aliased by their distance to the edge.
func (c *Canvas) Disc(cx, cy, r float64, col RGB, alpha float64) {
	minX, maxX := c.clampRange(cx-r-1, cx+r+1)
	minY, maxY := c.clampRange(cy-r-1, cy+r+1)
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			d := pixelDist(x, y, cx, cy)
			if d > r {
				continue
			}
			a := 1.0
			if d > r-1 {
				a = math.Max(0, r-d)
			}
			c.Blend(x, y, col, a*alpha)
		}
	}
}

// Line strokes the segment (x1,y1)-(x2,y2) as a run of discs of diameter
// thickness, sampled three times per pixel of length.
func (c *Canvas) Line(x1, y1, x2, y2, thickness float64, col RGB, alpha float64) {
	length := math.Hypot(x2-x1, y2-y1)
	steps := int(math.Ceil(length * 3))
	if steps == 0 {
		c.Disc(x1, y1, thickness/2, col, alpha)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		c.Disc(x1+(x2-x1)*t, y1+(y2-y1)*t, thickness/2, col, alpha)
	}
}

// Triangle fills the triangle with the given vertices. Pixel centres are
// tested with barycentric coordinates; -0.01 tolerance keeps edges inside.
func (c *Canvas) Triangle(x1, y1, x2, y2, x3, y3 float64, col RGB, alpha float64) {
	minX, maxX := c.clampRange(math.Min(x1, math.Min(x2, x3)), math.Max(x1, math.Max(x2, x3)))
	minY, maxY := c.clampRange(math.Min(y1, math.Min(y2, y3)), math.Max(y1, math.Max(y2, y3)))
	d := (y2-y3)*(x1-x3) + (x3-x2)*(y1-y3)
	if d == 0 {
		return
	}
	const tol = -0.01
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			px, py := float64(x)+0.5, float64(y)+0.5
			a := ((y2-y3)*(px-x3) + (x3-x2)*(py-y3)) / d
			b := ((y3-y1)*(px-x3) + (x1-x3)*(py-y3)) / d
			if a >= tol && b >= tol && 1-a-b >= tol {
				c.Blend(x, y, col, alpha)
			}
		}
	}
}

// Octagon fills a regular octagon with inradius r centred on (cx, cy).
func (c *Canvas) Octagon(cx, cy, r float64, col RGB, alpha float64) {
	for y := 0; y < c.size; y++ {
		for x := 0; x < c.size; x++ {
			dx := math.Abs(float64(x) + 0.5 - cx)
			dy := math.Abs(float64(y) + 0.5 - cy)
			dist := math.Max(dx, math.Max(dy, (dx+dy)*0.7071))
			if dist > r {
				continue
			}
			c.Blend(x, y, col, math.Min(1, r-dist)*alpha)
		}
	}
}

func (c *Canvas) clampRange(lo, hi float64) (int, int) {
	return max(0, int(math.Floor(lo))), min(c.size-1, int(math.Ceil(hi)))
}

func pixelDist(x, y int, cx, cy float64) float64 {
	return math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy)
}

func clampByte(v float64) uint8 {
	v = math.Floor(v + 0.5)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
