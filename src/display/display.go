package display

import (
	"fmt"
	"image"
	"log"
	"math"
	"sort"

	"screen-region-capture/src/geometry"

	"github.com/kbinani/screenshot"
)

// Descriptor identifies one connected display for the lifetime of a session.
type Descriptor struct {
	ID int
	// Frame is the display inside the virtual desktop, in point units.
	Frame geometry.Frame
	// ScaleFactor is pixels per point.
	ScaleFactor float64
	// Bounds is the native rectangle reported by the platform, in pixels.
	Bounds  image.Rectangle
	Primary bool
}

// Enumerator lists the displays that are connected right now.
type Enumerator interface {
	CurrentDisplays() []Descriptor
}

// PixelSize returns the frame size in device pixels.
func (d Descriptor) PixelSize() (int, int) {
	return ToPixels(d.Frame.Width, d.ScaleFactor), ToPixels(d.Frame.Height, d.ScaleFactor)
}

// SameGeometry reports whether two descriptors describe the same physical
// arrangement. A display that kept its ID but moved or changed scale does not.
func (d Descriptor) SameGeometry(o Descriptor) bool {
	return d.Frame == o.Frame && d.ScaleFactor == o.ScaleFactor
}

func (d Descriptor) String() string {
	return fmt.Sprintf("display#%d %s @%.2fx", d.ID, d.Frame, d.ScaleFactor)
}

// Find returns the descriptor with the given ID.
func Find(displays []Descriptor, id int) (Descriptor, bool) {
	for _, d := range displays {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Primary picks the primary display, falling back to the first one.
func Primary(displays []Descriptor) (Descriptor, bool) {
	if len(displays) == 0 {
		return Descriptor{}, false
	}
	for _, d := range displays {
		if d.Primary {
			return d, true
		}
	}
	return displays[0], true
}

// ToPixels converts a point length to whole device pixels.
func ToPixels(points, scale float64) int {
	if scale <= 0 {
		scale = 1
	}
	return int(math.Round(points * scale))
}

// KbinaniEnumerator enumerates displays through github.com/kbinani/screenshot.
type KbinaniEnumerator struct {
	// ScaleFactor is applied to every display; values <= 0 mean 1.
	ScaleFactor float64
}

// NewEnumerator returns the platform display enumerator.
func NewEnumerator(scaleFactor float64) *KbinaniEnumerator {
	return &KbinaniEnumerator{ScaleFactor: scaleFactor}
}

func (e *KbinaniEnumerator) CurrentDisplays() []Descriptor {
	n := screenshot.NumActiveDisplays()
	bounds := make([]image.Rectangle, 0, n)
	for i := 0; i < n; i++ {
		bounds = append(bounds, screenshot.GetDisplayBounds(i))
	}
	displays := FromBounds(bounds, e.ScaleFactor)
	log.Printf("display: enumerated %d display(s)", len(displays))
	return displays
}

// FromBounds builds descriptors from native display rectangles. IDs follow the
// platform index; the display whose bounds contain the desktop origin is primary.
// Displays are returned ordered left to right.
func FromBounds(bounds []image.Rectangle, scale float64) []Descriptor {
	if scale <= 0 {
		scale = 1
	}
	out := make([]Descriptor, 0, len(bounds))
	for i, b := range bounds {
		if b.Empty() {
			continue
		}
		out = append(out, Descriptor{
			ID: i,
			Frame: geometry.Frame{
				X:      float64(b.Min.X) / scale,
				Y:      float64(b.Min.Y) / scale,
				Width:  float64(b.Dx()) / scale,
				Height: float64(b.Dy()) / scale,
			},
			ScaleFactor: scale,
			Bounds:      b,
			Primary:     image.Pt(0, 0).In(b),
		})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Bounds.Min.X < out[b].Bounds.Min.X })
	return out
}
