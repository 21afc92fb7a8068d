package sparsetex

import "math"

// Rect is an axis-aligned rectangle in float coordinates.
type Rect struct {
	X, Y          float64
	Width, Height float64
}

// RectU is an axis-aligned rectangle in unsigned pixel coordinates.
type RectU struct {
	X, Y          uint32
	Width, Height uint32
}

// Corners returns the four corners of the rectangle in the order
// top-left, top-right, bottom-left, bottom-right.
func (r Rect) Corners() [4]Point {
	return [4]Point{
		{X: r.X, Y: r.Y},
		{X: r.X + r.Width, Y: r.Y},
		{X: r.X, Y: r.Y + r.Height},
		{X: r.X + r.Width, Y: r.Y + r.Height},
	}
}

// TransformBounds transforms all four corners by m and returns their
// axis-aligned bounding box, with the minimum corner floored and the
// maximum corner ceiled. For rotated transforms this over-approximates
// the true footprint, which is what viewport coverage wants: the result
// never under-covers.
func (r Rect) TransformBounds(m Matrix) Rect {
	c := r.Corners()
	p0 := m.TransformPoint(c[0])
	minX, minY := p0.X, p0.Y
	maxX, maxY := p0.X, p0.Y
	for _, p := range c[1:] {
		q := m.TransformPoint(p)
		minX = math.Min(minX, q.X)
		minY = math.Min(minY, q.Y)
		maxX = math.Max(maxX, q.X)
		maxY = math.Max(maxY, q.Y)
	}
	minX, minY = math.Floor(minX), math.Floor(minY)
	maxX, maxY = math.Ceil(maxX), math.Ceil(maxY)
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// ClampToPixels converts the rectangle to unsigned pixel coordinates,
// clipping any portion that lies left of or above the origin.
func (r Rect) ClampToPixels() RectU {
	x0 := math.Max(r.X, 0)
	y0 := math.Max(r.Y, 0)
	x1 := math.Max(r.X+r.Width, 0)
	y1 := math.Max(r.Y+r.Height, 0)
	return RectU{
		X:      uint32(x0),
		Y:      uint32(y0),
		Width:  uint32(x1 - x0),
		Height: uint32(y1 - y0),
	}
}

// ToRect converts to float coordinates.
func (r RectU) ToRect() Rect {
	return Rect{
		X:      float64(r.X),
		Y:      float64(r.Y),
		Width:  float64(r.Width),
		Height: float64(r.Height),
	}
}

// Empty reports whether the rectangle covers no pixels.
func (r RectU) Empty() bool {
	return r.Width == 0 || r.Height == 0
}
