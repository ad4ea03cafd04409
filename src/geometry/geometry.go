package geometry

import (
	"fmt"
	"math"
)

// Space tags a rectangle with the coordinate system it is expressed in.
// The tag types carry no data; they only keep rectangles from different
// spaces from being mixed up at compile time.
type Space interface {
	spaceName() string
}

// InteractionSpace is the per-window overlay space: origin bottom-left, point units.
type InteractionSpace struct{}

// DisplaySpace is relative to one physical display: origin top-left, point units.
type DisplaySpace struct{}

// CaptureSpace is what the capture primitive receives: per display, origin top-left.
type CaptureSpace struct{}

func (InteractionSpace) spaceName() string { return "interaction" }
func (DisplaySpace) spaceName() string     { return "display" }
func (CaptureSpace) spaceName() string     { return "capture" }

// Point is a location in an untagged 2D plane.
type Point struct {
	X float64
	Y float64
}

// Rect is an axis-aligned rectangle in coordinate space S.
type Rect[S Space] struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

type (
	InteractionRect = Rect[InteractionSpace]
	DisplayRect     = Rect[DisplaySpace]
	CaptureRect     = Rect[CaptureSpace]
)

// Frame is a display rectangle inside the global virtual desktop,
// top-left origin, point units.
type Frame struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// FromCorners builds a normalized rectangle from two arbitrary corner points.
// The order of the corners does not matter.
func FromCorners[S Space](a, b Point) Rect[S] {
	return Rect[S]{
		X:      math.Min(a.X, b.X),
		Y:      math.Min(a.Y, b.Y),
		Width:  math.Abs(b.X - a.X),
		Height: math.Abs(b.Y - a.Y),
	}
}

// Normalize returns r with non-negative extents.
func (r Rect[S]) Normalize() Rect[S] {
	out := r
	if out.Width < 0 {
		out.X += out.Width
		out.Width = -out.Width
	}
	if out.Height < 0 {
		out.Y += out.Height
		out.Height = -out.Height
	}
	return out
}

func (r Rect[S]) MaxX() float64 { return r.X + r.Width }
func (r Rect[S]) MaxY() float64 { return r.Y + r.Height }

// Empty reports whether r has no area.
func (r Rect[S]) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Scale multiplies origin and extents by f.
func (r Rect[S]) Scale(f float64) Rect[S] {
	return Rect[S]{X: r.X * f, Y: r.Y * f, Width: r.Width * f, Height: r.Height * f}
}

// Translate moves r by (dx, dy).
func (r Rect[S]) Translate(dx, dy float64) Rect[S] {
	return Rect[S]{X: r.X + dx, Y: r.Y + dy, Width: r.Width, Height: r.Height}
}

// Intersect returns the overlap of r and o. When they do not overlap the
// result has zero extent on the non-overlapping axis and its origin is pinned
// to the nearest edge of o.
func (r Rect[S]) Intersect(o Rect[S]) Rect[S] {
	x0 := clamp(r.X, o.X, o.MaxX())
	y0 := clamp(r.Y, o.Y, o.MaxY())
	x1 := clamp(r.MaxX(), o.X, o.MaxX())
	y1 := clamp(r.MaxY(), o.Y, o.MaxY())
	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	return Rect[S]{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Contains reports whether o lies within r, allowing tol of slack on each edge.
func (r Rect[S]) Contains(o Rect[S], tol float64) bool {
	return o.X >= r.X-tol && o.Y >= r.Y-tol &&
		o.MaxX() <= r.MaxX()+tol && o.MaxY() <= r.MaxY()+tol
}

// ApproxEqual compares two rectangles component-wise within tol.
func (r Rect[S]) ApproxEqual(o Rect[S], tol float64) bool {
	return math.Abs(r.X-o.X) <= tol && math.Abs(r.Y-o.Y) <= tol &&
		math.Abs(r.Width-o.Width) <= tol && math.Abs(r.Height-o.Height) <= tol
}

func (r Rect[S]) String() string {
	var s S
	return fmt.Sprintf("%s(x=%.1f y=%.1f w=%.1f h=%.1f)", s.spaceName(), r.X, r.Y, r.Width, r.Height)
}

// Rect returns the frame in global desktop coordinates.
func (f Frame) Rect() Rect[DisplaySpace] {
	return Rect[DisplaySpace]{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height}
}

// Local returns the frame's own extent with a zero origin.
func (f Frame) Local() Rect[DisplaySpace] {
	return Rect[DisplaySpace]{Width: f.Width, Height: f.Height}
}

func (f Frame) String() string {
	return fmt.Sprintf("%.0fx%.0f+%.0f+%.0f", f.Width, f.Height, f.X, f.Y)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
