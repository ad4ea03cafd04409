package screenshot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"screen-region-capture/src/coords"
	"screen-region-capture/src/display"
	"screen-region-capture/src/geometry"
)

const (
	DefaultMinDimension = 1
	DefaultMaxDimension = 4000
	// DefaultMaxBitmapBytes bounds one RGBA bitmap (512 MiB).
	DefaultMaxBitmapBytes = 512 << 20

	boundsTolerance = 1e-6
)

// PixelFormat names the raw layout requested from a Platform.
type PixelFormat int

const (
	PixelFormatRGBA8 PixelFormat = iota
)

// Permission reports whether screen capture is allowed.
type Permission interface {
	Granted() bool
	// RequestGrant asks the host to grant capture permission. It may show UI.
	RequestGrant() error
}

// PlatformRequest is one call into the platform capture primitive. Rect is
// display-relative in points; PixelWidth and PixelHeight are the expected
// output dimensions.
type PlatformRequest struct {
	Display               display.Descriptor
	Rect                  geometry.CaptureRect
	PixelWidth            int
	PixelHeight           int
	ShowsCursor           bool
	TransparentBackground bool
	PixelFormat           PixelFormat
}

// PlatformResult resolves a PlatformRequest.
type PlatformResult struct {
	Image image.Image
	Err   error
}

// Platform is the asynchronous capture primitive. The returned channel must
// deliver exactly one result.
type Platform interface {
	CaptureAsync(req PlatformRequest) <-chan PlatformResult
}

// CapturedImage is a successful capture. Ownership passes to the receiver.
type CapturedImage struct {
	Bitmap *image.RGBA
	// OriginalRect is the requested region in interaction space.
	OriginalRect geometry.InteractionRect
	// CaptureRect is the region actually captured, after size optimization.
	CaptureRect       geometry.CaptureRect
	CapturedAt        time.Time
	SourceDisplay     display.Descriptor
	ScaleFactor       float64
	EstimatedByteSize int64
}

// Outcome holds either an image or an error, never both.
type Outcome struct {
	Image *CapturedImage
	Err   *CaptureError
}

// OK reports whether the capture succeeded.
func (o Outcome) OK() bool { return o.Err == nil && o.Image != nil }

func failure(kind ErrorKind, err error, format string, args ...any) Outcome {
	return Outcome{Err: newError(kind, err, format, args...)}
}

// Options configure an Executor. Zero values select defaults.
type Options struct {
	MinDimension   float64
	MaxDimension   float64
	MaxBitmapBytes int64
}

type request struct {
	rect     geometry.CaptureRect
	original geometry.InteractionRect
	display  display.Descriptor
}

// Executor validates, optimizes and runs one capture at a time.
type Executor struct {
	permission Permission
	displays   display.Enumerator
	platform   Platform
	opts       Options

	inFlight atomic.Bool
	stats    Stats

	mu   sync.Mutex
	last *request
}

// NewExecutor wires an executor. A nil permission is treated as granted.
func NewExecutor(permission Permission, displays display.Enumerator, platform Platform, opts Options) *Executor {
	if opts.MinDimension <= 0 {
		opts.MinDimension = DefaultMinDimension
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultMaxDimension
	}
	if opts.MaxBitmapBytes <= 0 {
		opts.MaxBitmapBytes = DefaultMaxBitmapBytes
	}
	return &Executor{permission: permission, displays: displays, platform: platform, opts: opts}
}

// Stats returns the executor's counters.
func (e *Executor) Stats() *Stats { return &e.stats }

// InFlight reports whether a platform capture is pending.
func (e *Executor) InFlight() bool { return e.inFlight.Load() }

// HasLast reports whether Retry has a request to repeat.
func (e *Executor) HasLast() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last != nil
}

// Capture runs the full pipeline for rect on display d. It blocks the calling
// goroutine until the platform answers or ctx ends, and never returns an
// unstructured error. A second call while one is pending fails with KindBusy
// without reaching the platform.
func (e *Executor) Capture(ctx context.Context, rect geometry.CaptureRect, d display.Descriptor) Outcome {
	req := request{rect: rect, original: coords.FromCaptureSpace(rect, d), display: d}
	return e.capture(ctx, req, true)
}

// CaptureSelection captures an interaction-space selection. The result keeps
// sel as its OriginalRect even when the transformer clamps it to the display.
func (e *Executor) CaptureSelection(ctx context.Context, sel geometry.InteractionRect, d display.Descriptor) Outcome {
	req := request{rect: coords.ToCaptureSpace(sel, d), original: sel, display: d}
	return e.capture(ctx, req, true)
}

// Retry repeats the most recent request once. It reports false when nothing
// has been captured since the last retry.
func (e *Executor) Retry(ctx context.Context) (Outcome, bool) {
	e.mu.Lock()
	last := e.last
	e.last = nil
	e.mu.Unlock()
	if last == nil {
		return Outcome{}, false
	}
	log.Printf("capture: retrying %v on %v", last.rect, last.display)
	return e.capture(ctx, *last, false), true
}

func (e *Executor) capture(ctx context.Context, req request, remember bool) Outcome {
	if !e.inFlight.CompareAndSwap(false, true) {
		out := failure(KindBusy, nil, "a capture is already in progress")
		e.stats.record(out, 0)
		return out
	}

	if remember {
		e.mu.Lock()
		e.last = &req
		e.mu.Unlock()
	}

	start := time.Now()
	out, pending := e.run(ctx, req)
	if !pending {
		e.inFlight.Store(false)
	}
	e.stats.record(out, time.Since(start))
	if out.Err != nil {
		log.Printf("capture: %v failed: %v", req.rect, out.Err)
	} else {
		b := out.Image.Bitmap.Bounds()
		log.Printf("capture: %v on %v -> %dx%d in %s", req.rect, req.display, b.Dx(), b.Dy(), time.Since(start).Round(time.Millisecond))
	}
	return out
}

// run returns pending=true when the platform call is still outstanding and the
// in-flight flag will be cleared by a background drain.
func (e *Executor) run(ctx context.Context, r request) (out Outcome, pending bool) {
	rect, d := r.rect, r.display
	if e.permission != nil && !e.permission.Granted() {
		if err := e.permission.RequestGrant(); err != nil {
			log.Printf("capture: request permission: %v", err)
		}
		return failure(KindPermissionDenied, nil, "screen capture permission not granted"), false
	}

	if err := e.validate(rect, d); err != nil {
		return Outcome{Err: err}, false
	}

	rect = e.optimize(rect)

	current, ok := display.Find(e.displays.CurrentDisplays(), d.ID)
	if !ok {
		return failure(KindDisplayNotFound, nil, "display %d is not attached", d.ID), false
	}
	if !current.SameGeometry(d) {
		return failure(KindDisplayConfigurationChanged, nil, "%v is now %v", d, current), false
	}

	req := PlatformRequest{
		Display:               current,
		Rect:                  rect,
		PixelWidth:            max(1, display.ToPixels(rect.Width, current.ScaleFactor)),
		PixelHeight:           max(1, display.ToPixels(rect.Height, current.ScaleFactor)),
		ShowsCursor:           false,
		TransparentBackground: true,
		PixelFormat:           PixelFormatRGBA8,
	}
	if need := int64(req.PixelWidth) * int64(req.PixelHeight) * 4; need > e.opts.MaxBitmapBytes {
		return failure(KindMemoryAllocationFailed, nil, "%dx%d bitmap needs %d bytes, limit %d",
			req.PixelWidth, req.PixelHeight, need, e.opts.MaxBitmapBytes), false
	}

	ch := e.platform.CaptureAsync(req)
	if ch == nil {
		return failure(KindCaptureCreationFailed, nil, "platform returned no result channel"), false
	}

	var res PlatformResult
	select {
	case res = <-ch:
	case <-ctx.Done():
		go func() {
			<-ch
			e.inFlight.Store(false)
			log.Printf("capture: late platform result for %v drained", rect)
		}()
		return failure(KindUnknown, ctx.Err(), "capture deadline exceeded"), true
	}

	if res.Err != nil {
		if errors.Is(res.Err, ErrDisplayGone) {
			return failure(KindDisplayConfigurationChanged, res.Err, "display %d changed during capture", d.ID), false
		}
		return failure(KindCaptureCreationFailed, res.Err, "platform capture failed"), false
	}
	if res.Image == nil {
		return failure(KindImageConversionFailed, nil, "platform returned no image"), false
	}

	if b := res.Image.Bounds(); b.Dx() != req.PixelWidth || b.Dy() != req.PixelHeight {
		log.Printf("capture: warning: requested %dx%d, platform returned %dx%d",
			req.PixelWidth, req.PixelHeight, b.Dx(), b.Dy())
	}

	bitmap, cerr := toRGBA(res.Image)
	if cerr != nil {
		return Outcome{Err: cerr}, false
	}

	b := bitmap.Bounds()
	return Outcome{Image: &CapturedImage{
		Bitmap:            bitmap,
		OriginalRect:      r.original,
		CaptureRect:       rect,
		CapturedAt:        time.Now(),
		SourceDisplay:     current,
		ScaleFactor:       current.ScaleFactor,
		EstimatedByteSize: int64(b.Dx()) * int64(b.Dy()) * 4,
	}}, false
}

func (e *Executor) validate(r geometry.CaptureRect, d display.Descriptor) *CaptureError {
	for _, v := range []float64{r.X, r.Y, r.Width, r.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return newError(KindInvalidCoordinates, nil, "%v is not finite", r)
		}
	}
	if r.Width <= 0 || r.Height <= 0 {
		return newError(KindInvalidCoordinates, nil, "%v has no area", r)
	}
	if r.Width < e.opts.MinDimension || r.Height < e.opts.MinDimension {
		return newError(KindInvalidCoordinates, nil, "%v is below the %.0f unit minimum", r, e.opts.MinDimension)
	}
	if r.X < -boundsTolerance || r.Y < -boundsTolerance ||
		r.MaxX() > d.Frame.Width+boundsTolerance || r.MaxY() > d.Frame.Height+boundsTolerance {
		return newError(KindInvalidCoordinates, nil, "%v lies outside %v", r, d)
	}
	return nil
}

// optimize downscales rect uniformly, origin included, so neither side
// exceeds MaxDimension.
func (e *Executor) optimize(r geometry.CaptureRect) geometry.CaptureRect {
	longest := math.Max(r.Width, r.Height)
	if longest <= e.opts.MaxDimension {
		return r
	}
	f := e.opts.MaxDimension / longest
	out := r.Scale(f)
	log.Printf("capture: downscaled %v to %v (factor %.3f)", r, out, f)
	return out
}

// toRGBA returns img as a zero-origin, tightly packed RGBA bitmap.
func toRGBA(img image.Image) (out *image.RGBA, cerr *CaptureError) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			cerr = newError(KindMemoryAllocationFailed, fmt.Errorf("%v", r), "allocate bitmap")
		}
	}()

	b := img.Bounds()
	if b.Empty() {
		return nil, newError(KindImageConversionFailed, nil, "empty image %v", b)
	}
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && rgba.Stride == 4*b.Dx() {
		return rgba, nil
	}
	out = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out, nil
}
