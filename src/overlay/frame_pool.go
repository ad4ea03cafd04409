package overlay

import (
	"image"
	"sync"
)

// Overlay frames are redrawn on every pointer move at full display resolution,
// so their backing slices are pooled. A frame handed to a surface must be
// copied by the surface before Present returns; the caller recycles it after.

var framePool sync.Pool // stores *image.RGBA

// acquireFrame returns an RGBA image sized to rect. Pix length is exactly
// rect area * 4 and Stride is width*4. Pixel contents are undefined.
func acquireFrame(rect image.Rectangle) *image.RGBA {
	w, h := rect.Dx(), rect.Dy()
	if w <= 0 || h <= 0 {
		return &image.RGBA{Rect: rect}
	}
	needed := w * h * 4
	var img *image.RGBA
	if v := framePool.Get(); v != nil {
		img = v.(*image.RGBA)
	}
	if img == nil || cap(img.Pix) < needed {
		img = &image.RGBA{Pix: make([]byte, needed), Stride: w * 4, Rect: rect}
	} else {
		img.Stride = w * 4
		img.Rect = rect
		img.Pix = img.Pix[:needed]
	}
	return img
}

// RecycleFrame returns a frame produced by Render to the pool. The frame must
// not be accessed after this call.
func RecycleFrame(img *image.RGBA) {
	if img == nil || img.Pix == nil {
		return
	}
	framePool.Put(img)
}
