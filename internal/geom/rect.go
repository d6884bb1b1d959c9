// Package geom provides axis-aligned rectangle arithmetic in normalized
// image coordinates. All boxes are expressed as corners in [0,1]×[0,1]
// with Y increasing downward, matching detector output.
package geom

import "math"

// Rect is an axis-aligned bounding box with corner coordinates.
// A Rect is well-formed when X1 <= X2 and Y1 <= Y2.
type Rect struct {
	X1 float64
	Y1 float64
	X2 float64
	Y2 float64
}

// Width returns the horizontal extent of the box.
func (r Rect) Width() float64 { return r.X2 - r.X1 }

// Height returns the vertical extent of the box.
func (r Rect) Height() float64 { return r.Y2 - r.Y1 }

// Area returns the area of the box, zero for degenerate boxes.
func (r Rect) Area() float64 {
	w := r.Width()
	h := r.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Center returns the midpoint of the box.
func (r Rect) Center() (x, y float64) {
	return (r.X1 + r.X2) / 2, (r.Y1 + r.Y2) / 2
}

// Translate returns the box shifted by (dx, dy).
func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{X1: r.X1 + dx, Y1: r.Y1 + dy, X2: r.X2 + dx, Y2: r.Y2 + dy}
}

// Clamp returns the box clipped to the unit square.
func (r Rect) Clamp() Rect {
	return Rect{
		X1: math.Max(0, math.Min(1, r.X1)),
		Y1: math.Max(0, math.Min(1, r.Y1)),
		X2: math.Max(0, math.Min(1, r.X2)),
		Y2: math.Max(0, math.Min(1, r.Y2)),
	}
}

// Intersect returns the overlapping region of a and b. The result has zero
// Area when the boxes do not overlap.
func Intersect(a, b Rect) Rect {
	return Rect{
		X1: math.Max(a.X1, b.X1),
		Y1: math.Max(a.Y1, b.Y1),
		X2: math.Min(a.X2, b.X2),
		Y2: math.Min(a.Y2, b.Y2),
	}
}

// IoU returns the intersection-over-union of two boxes: the area of their
// overlap divided by the area of their union. The result is symmetric,
// lies in [0,1], and is 0 for disjoint or degenerate boxes.
func IoU(a, b Rect) float64 {
	inter := Intersect(a, b).Area()
	if inter <= 0 {
		return 0
	}
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
