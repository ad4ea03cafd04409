package gui

import (
	"context"
	"errors"
	"image"
	"image/draw"
	"math"

	"screen-region-capture/src/display"
	"screen-region-capture/src/geometry"
	"screen-region-capture/src/selection"
)

var errHostStopped = errors.New("overlay host stopped")

// Host is a platform surface host. Run pumps the platform UI and must be
// called from the main goroutine with its OS thread locked. Every other method
// may be called from any goroutine.
type Host interface {
	selection.SurfaceHost
	Run(ctx context.Context) error
}

// PostFunc receives input events from overlay surfaces.
type PostFunc func(selection.Event)

// toInteraction maps a top-left origin point on a surface, measured in units
// of unitsPerPoint, to the surface's interaction space.
func toInteraction(x, y, unitsPerPoint float64, d display.Descriptor) geometry.Point {
	if unitsPerPoint <= 0 {
		unitsPerPoint = 1
	}
	return geometry.Point{
		X: x / unitsPerPoint,
		Y: d.Frame.Height - y/unitsPerPoint,
	}
}

// pixelBounds is the display's native rectangle, derived from its frame when
// the platform reported none.
func pixelBounds(d display.Descriptor) image.Rectangle {
	if !d.Bounds.Empty() {
		return d.Bounds
	}
	scale := d.ScaleFactor
	if scale <= 0 {
		scale = 1
	}
	w, h := d.PixelSize()
	minPt := image.Pt(int(math.Round(d.Frame.X*scale)), int(math.Round(d.Frame.Y*scale)))
	return image.Rectangle{Min: minPt, Max: minPt.Add(image.Pt(w, h))}
}

// toBGRA converts a straight-alpha RGBA frame into premultiplied BGRA rows.
// Alpha is raised to at least minAlpha.
func toBGRA(frame *image.RGBA, dst []byte, minAlpha byte) {
	b := frame.Bounds()
	w := b.Dx()
	for y := 0; y < b.Dy(); y++ {
		src := frame.Pix[y*frame.Stride : y*frame.Stride+w*4]
		row := dst[y*w*4 : (y+1)*w*4]
		for x := 0; x < w; x++ {
			r, g, bl, a := uint32(src[x*4]), uint32(src[x*4+1]), uint32(src[x*4+2]), uint32(src[x*4+3])
			if a < uint32(minAlpha) {
				a = uint32(minAlpha)
			}
			row[x*4] = byte(bl * a / 255)
			row[x*4+1] = byte(g * a / 255)
			row[x*4+2] = byte(r * a / 255)
			row[x*4+3] = byte(a)
		}
	}
}

// composeOver draws frame on top of background into dst, reusing dst when it
// has the right size.
func composeOver(dst, background, frame *image.RGBA) *image.RGBA {
	b := frame.Bounds()
	if dst == nil || dst.Bounds() != b {
		dst = image.NewRGBA(b)
	}
	if background != nil {
		draw.Draw(dst, b, background, background.Bounds().Min, draw.Src)
	} else {
		draw.Draw(dst, b, image.Black, image.Point{}, draw.Src)
	}
	draw.Draw(dst, b, frame, b.Min, draw.Over)
	return dst
}
