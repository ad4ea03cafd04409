package screenshot

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log"
	"math"
	"sync"

	"screen-region-capture/src/display"

	"github.com/kbinani/screenshot"
)

// KbinaniPlatform captures through github.com/kbinani/screenshot. The library
// never draws the cursor and always yields RGBA, so those request fields need
// no handling here.
type KbinaniPlatform struct{}

func (KbinaniPlatform) CaptureAsync(req PlatformRequest) <-chan PlatformResult {
	ch := make(chan PlatformResult, 1)
	go func() {
		img, err := captureRect(req)
		ch <- PlatformResult{Image: img, Err: err}
	}()
	return ch
}

// PixelRect maps a display-relative capture rectangle to native desktop
// pixels for the request's display.
func PixelRect(req PlatformRequest) image.Rectangle {
	d := req.Display
	scale := d.ScaleFactor
	if scale <= 0 {
		scale = 1
	}
	origin := d.Bounds.Min
	if d.Bounds.Empty() {
		origin = image.Pt(int(math.Round(d.Frame.X*scale)), int(math.Round(d.Frame.Y*scale)))
	}
	topLeft := origin.Add(image.Pt(
		int(math.Round(req.Rect.X*scale)),
		int(math.Round(req.Rect.Y*scale)),
	))
	return image.Rectangle{Min: topLeft, Max: topLeft.Add(image.Pt(req.PixelWidth, req.PixelHeight))}
}

func captureRect(req PlatformRequest) (img *image.RGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("capture panicked: %v", r)
		}
	}()

	if req.PixelFormat != PixelFormatRGBA8 {
		log.Printf("capture: pixel format %d unsupported, using RGBA8", req.PixelFormat)
	}
	if !req.Display.Bounds.Empty() && !attached(req.Display.Bounds) {
		return nil, ErrDisplayGone
	}

	bounds := PixelRect(req)
	img, err = screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("failed to capture region %v: %w", bounds, err)
	}
	return img, nil
}

func attached(bounds image.Rectangle) bool {
	n := screenshot.NumActiveDisplays()
	for i := 0; i < n; i++ {
		if screenshot.GetDisplayBounds(i) == bounds {
			return true
		}
	}
	return false
}

// ProbePermission stands in for a platform permission query by capturing one
// pixel of the primary display. The answer is cached until RequestGrant.
type ProbePermission struct {
	Displays display.Enumerator

	mu      sync.Mutex
	probed  bool
	granted bool
}

func (p *ProbePermission) Granted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.probed {
		return p.granted
	}
	p.probed = true

	d, ok := display.Primary(p.Displays.CurrentDisplays())
	if !ok {
		log.Printf("capture: permission probe found no display")
		return false
	}
	_, err := captureRect(PlatformRequest{Display: d, PixelWidth: 1, PixelHeight: 1})
	p.granted = err == nil
	if err != nil {
		log.Printf("capture: permission probe failed: %v", err)
	}
	return p.granted
}

// RequestGrant clears the cached answer. The platforms served here have no
// grant dialog, so the next Granted call simply probes again.
func (p *ProbePermission) RequestGrant() error {
	p.mu.Lock()
	p.probed = false
	p.mu.Unlock()
	return nil
}

// EncodePNG encodes img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image as PNG: %v", err)
	}
	return buf.Bytes(), nil
}

// PNG encodes the captured bitmap.
func (c *CapturedImage) PNG() ([]byte, error) {
	if c == nil || c.Bitmap == nil {
		return nil, fmt.Errorf("no bitmap to encode")
	}
	return EncodePNG(c.Bitmap)
}
