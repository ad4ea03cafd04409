package coords

import (
	"log"
	"math"

	"screen-region-capture/src/display"
	"screen-region-capture/src/geometry"
)

// clampLogThreshold is the smallest correction (in points) worth reporting.
const clampLogThreshold = 1e-6

// ToDisplaySpace flips an interaction-space rectangle (origin bottom-left of
// the overlay window) into display space (origin top-left of the display).
func ToDisplaySpace(r geometry.InteractionRect, d display.Descriptor) geometry.DisplayRect {
	n := r.Normalize()
	return geometry.DisplayRect{
		X:      n.X,
		Y:      d.Frame.Height - n.Y - n.Height,
		Width:  n.Width,
		Height: n.Height,
	}
}

// ToGlobal offsets a display-space rectangle by the display's origin in the
// virtual desktop. Units stay in points.
func ToGlobal(r geometry.DisplayRect, d display.Descriptor) geometry.DisplayRect {
	return r.Translate(d.Frame.X, d.Frame.Y)
}

// ToCaptureSpace converts a selection into the display-relative rectangle the
// capture primitive expects. The scale factor is not applied here;
// the platform capture service applies device scaling itself.
//
// The result is clamped to the display. Clamping never fails the transform but
// is logged, since a selection outside its own display means an upstream bug or
// pointer jitter at a display boundary.
func ToCaptureSpace(r geometry.InteractionRect, d display.Descriptor) geometry.CaptureRect {
	local := ToDisplaySpace(r, d)
	global := ToGlobal(local, d)
	frame := d.Frame.Rect()

	clamped := global.Intersect(frame)
	if clamped.Empty() {
		// Nothing of the selection lies on this display. Keep the intersection
		// rather than collapsing to the origin so the caller sees where it was.
		log.Printf("coords: selection %v does not intersect %v; returning edge intersection %v", global, d, clamped)
	} else if dx, dy := clampAmount(global, clamped); dx > clampLogThreshold || dy > clampLogThreshold {
		log.Printf("coords: clamped selection %v to %v on %v (dx=%.2f dy=%.2f)", global, clamped, d, dx, dy)
	}

	out := clamped.Translate(-d.Frame.X, -d.Frame.Y)
	return geometry.CaptureRect{X: out.X, Y: out.Y, Width: out.Width, Height: out.Height}
}

// FromCaptureSpace is the inverse of ToCaptureSpace for rectangles that lie
// inside the display.
func FromCaptureSpace(r geometry.CaptureRect, d display.Descriptor) geometry.InteractionRect {
	return geometry.InteractionRect{
		X:      r.X,
		Y:      d.Frame.Height - r.Y - r.Height,
		Width:  r.Width,
		Height: r.Height,
	}
}

// ContainingDisplay returns the display whose frame contains the global point p.
func ContainingDisplay(p geometry.Point, displays []display.Descriptor) (display.Descriptor, bool) {
	for _, d := range displays {
		f := d.Frame
		if p.X >= f.X && p.X < f.X+f.Width && p.Y >= f.Y && p.Y < f.Y+f.Height {
			return d, true
		}
	}
	return display.Descriptor{}, false
}

func clampAmount(before, after geometry.DisplayRect) (float64, float64) {
	dx := math.Abs(before.X-after.X) + math.Abs(before.MaxX()-after.MaxX())
	dy := math.Abs(before.Y-after.Y) + math.Abs(before.MaxY()-after.MaxY())
	return dx, dy
}
