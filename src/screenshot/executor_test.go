package screenshot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"screen-region-capture/src/display"
	"screen-region-capture/src/geometry"
)

type fakePermission struct {
	denied   bool
	requests int
}

func (p *fakePermission) Granted() bool { return !p.denied }

func (p *fakePermission) RequestGrant() error {
	p.requests++
	return nil
}

type fakeEnumerator struct{ displays []display.Descriptor }

func (e fakeEnumerator) CurrentDisplays() []display.Descriptor { return e.displays }

// fakePlatform answers synchronously unless gate is set, in which case it
// waits for gate to close before answering.
type fakePlatform struct {
	mu       sync.Mutex
	requests []PlatformRequest
	called   chan struct{}
	gate     chan struct{}
	err      error
	image    func(req PlatformRequest) image.Image
}

func (p *fakePlatform) CaptureAsync(req PlatformRequest) <-chan PlatformResult {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	if p.called != nil {
		p.called <- struct{}{}
	}

	ch := make(chan PlatformResult, 1)
	answer := func() {
		if p.err != nil {
			ch <- PlatformResult{Err: p.err}
			return
		}
		var img image.Image = image.NewRGBA(image.Rect(0, 0, req.PixelWidth, req.PixelHeight))
		if p.image != nil {
			img = p.image(req)
		}
		ch <- PlatformResult{Image: img}
	}
	if p.gate == nil {
		answer()
		return ch
	}
	go func() {
		<-p.gate
		answer()
	}()
	return ch
}

func (p *fakePlatform) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func hd() display.Descriptor {
	return display.Descriptor{ID: 3, Frame: geometry.Frame{Width: 1920, Height: 1080}, ScaleFactor: 1}
}

func newTestExecutor(perm *fakePermission, displays []display.Descriptor, platform *fakePlatform, opts Options) *Executor {
	var p Permission
	if perm != nil {
		p = perm
	}
	return NewExecutor(p, fakeEnumerator{displays: displays}, platform, opts)
}

func TestCaptureSucceeds(t *testing.T) {
	d := display.Descriptor{ID: 1, Frame: geometry.Frame{X: 1920, Width: 1280, Height: 800}, ScaleFactor: 2}
	platform := &fakePlatform{}
	e := newTestExecutor(&fakePermission{}, []display.Descriptor{hd(), d}, platform, Options{})

	rect := geometry.CaptureRect{X: 10, Y: 20, Width: 30, Height: 40}
	out := e.Capture(context.Background(), rect, d)
	if !out.OK() {
		t.Fatalf("Capture() failed: %v", out.Err)
	}

	req := platform.requests[0]
	if req.PixelWidth != 60 || req.PixelHeight != 80 {
		t.Fatalf("pixel size = %dx%d, want 60x80", req.PixelWidth, req.PixelHeight)
	}
	if req.ShowsCursor || !req.TransparentBackground || req.PixelFormat != PixelFormatRGBA8 {
		t.Fatalf("unexpected request flags %+v", req)
	}
	if req.Rect != rect {
		t.Fatalf("request rect = %v, want %v", req.Rect, rect)
	}

	img := out.Image
	if img.EstimatedByteSize != 60*80*4 {
		t.Fatalf("EstimatedByteSize = %d, want %d", img.EstimatedByteSize, 60*80*4)
	}
	wantOriginal := geometry.InteractionRect{X: 10, Y: 740, Width: 30, Height: 40}
	if img.OriginalRect != wantOriginal {
		t.Fatalf("OriginalRect = %v, want %v", img.OriginalRect, wantOriginal)
	}
	if img.SourceDisplay.ID != 1 || img.ScaleFactor != 2 {
		t.Fatalf("unexpected source %v scale %.1f", img.SourceDisplay, img.ScaleFactor)
	}
	if img.CapturedAt.IsZero() {
		t.Fatal("CapturedAt not set")
	}
	if e.InFlight() {
		t.Fatal("in-flight flag left set")
	}
}

func TestCaptureFailureKinds(t *testing.T) {
	platformErr := errors.New("stream creation failed")

	tests := []struct {
		name      string
		perm      *fakePermission
		displays  []display.Descriptor
		platform  *fakePlatform
		opts      Options
		rect      geometry.CaptureRect
		want      ErrorKind
		reachesOS bool
	}{
		{
			name: "permission denied",
			perm: &fakePermission{denied: true},
			rect: geometry.CaptureRect{Width: 100, Height: 100},
			want: KindPermissionDenied,
		},
		{
			name: "zero width",
			rect: geometry.CaptureRect{X: 10, Y: 10, Width: 0, Height: 100},
			want: KindInvalidCoordinates,
		},
		{
			name: "negative height",
			rect: geometry.CaptureRect{X: 10, Y: 10, Width: 10, Height: -5},
			want: KindInvalidCoordinates,
		},
		{
			name: "below one unit",
			rect: geometry.CaptureRect{X: 10, Y: 10, Width: 0.5, Height: 100},
			want: KindInvalidCoordinates,
		},
		{
			name: "past right edge",
			rect: geometry.CaptureRect{X: 1900, Y: 10, Width: 100, Height: 100},
			want: KindInvalidCoordinates,
		},
		{
			name: "negative origin",
			rect: geometry.CaptureRect{X: -1, Y: 10, Width: 100, Height: 100},
			want: KindInvalidCoordinates,
		},
		{
			name:     "display unplugged",
			displays: []display.Descriptor{},
			rect:     geometry.CaptureRect{Width: 100, Height: 100},
			want:     KindDisplayNotFound,
		},
		{
			name:     "display rescaled",
			displays: []display.Descriptor{{ID: 3, Frame: geometry.Frame{Width: 1920, Height: 1080}, ScaleFactor: 2}},
			rect:     geometry.CaptureRect{Width: 100, Height: 100},
			want:     KindDisplayConfigurationChanged,
		},
		{
			name: "bitmap too large",
			opts: Options{MaxBitmapBytes: 1000},
			rect: geometry.CaptureRect{Width: 100, Height: 100},
			want: KindMemoryAllocationFailed,
		},
		{
			name:      "platform error",
			platform:  &fakePlatform{err: platformErr},
			rect:      geometry.CaptureRect{Width: 100, Height: 100},
			want:      KindCaptureCreationFailed,
			reachesOS: true,
		},
		{
			name:      "display vanished mid-capture",
			platform:  &fakePlatform{err: fmt.Errorf("capture: %w", ErrDisplayGone)},
			rect:      geometry.CaptureRect{Width: 100, Height: 100},
			want:      KindDisplayConfigurationChanged,
			reachesOS: true,
		},
		{
			name:      "no image",
			platform:  &fakePlatform{image: func(PlatformRequest) image.Image { return nil }},
			rect:      geometry.CaptureRect{Width: 100, Height: 100},
			want:      KindImageConversionFailed,
			reachesOS: true,
		},
		{
			name:      "empty image",
			platform:  &fakePlatform{image: func(PlatformRequest) image.Image { return image.NewRGBA(image.Rectangle{}) }},
			rect:      geometry.CaptureRect{Width: 100, Height: 100},
			want:      KindImageConversionFailed,
			reachesOS: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perm := tt.perm
			if perm == nil {
				perm = &fakePermission{}
			}
			displays := tt.displays
			if displays == nil {
				displays = []display.Descriptor{hd()}
			}
			platform := tt.platform
			if platform == nil {
				platform = &fakePlatform{}
			}
			e := newTestExecutor(perm, displays, platform, tt.opts)

			out := e.Capture(context.Background(), tt.rect, hd())
			if out.Err == nil || out.Image != nil {
				t.Fatalf("expected failure only, got %+v", out)
			}
			if out.Err.Kind != tt.want {
				t.Fatalf("kind = %s, want %s (%v)", out.Err.Kind, tt.want, out.Err)
			}
			if !errors.Is(out.Err, &CaptureError{Kind: tt.want}) {
				t.Fatal("errors.Is by kind failed")
			}
			if got := platform.calls(); (got == 1) != tt.reachesOS {
				t.Fatalf("platform called %d times, reachesOS=%v", got, tt.reachesOS)
			}
			if e.InFlight() {
				t.Fatal("in-flight flag left set after failure")
			}
		})
	}
}

func TestPermissionDeniedRequestsGrant(t *testing.T) {
	perm := &fakePermission{denied: true}
	e := newTestExecutor(perm, []display.Descriptor{hd()}, &fakePlatform{}, Options{})
	e.Capture(context.Background(), geometry.CaptureRect{Width: 10, Height: 10}, hd())
	if perm.requests != 1 {
		t.Fatalf("RequestGrant called %d times, want 1", perm.requests)
	}
}

func TestPlatformErrorIsWrapped(t *testing.T) {
	platformErr := errors.New("stream creation failed")
	e := newTestExecutor(nil, []display.Descriptor{hd()}, &fakePlatform{err: platformErr}, Options{})
	out := e.Capture(context.Background(), geometry.CaptureRect{Width: 10, Height: 10}, hd())
	if !errors.Is(out.Err, platformErr) {
		t.Fatalf("expected platform error in chain, got %v", out.Err)
	}
}

func TestOptimizationPreservesAspectRatio(t *testing.T) {
	d := display.Descriptor{ID: 3, Frame: geometry.Frame{Width: 10000, Height: 5000}, ScaleFactor: 1}
	platform := &fakePlatform{}
	e := newTestExecutor(nil, []display.Descriptor{d}, platform, Options{})

	out := e.Capture(context.Background(), geometry.CaptureRect{X: 2000, Y: 1000, Width: 8000, Height: 4000}, d)
	if !out.OK() {
		t.Fatalf("Capture() failed: %v", out.Err)
	}

	req := platform.requests[0]
	want := geometry.CaptureRect{X: 1000, Y: 500, Width: 4000, Height: 2000}
	if !req.Rect.ApproxEqual(want, 1e-9) {
		t.Fatalf("optimized rect = %v, want %v", req.Rect, want)
	}
	if req.PixelWidth != 4000 || req.PixelHeight != 2000 {
		t.Fatalf("pixel size = %dx%d, want 4000x2000", req.PixelWidth, req.PixelHeight)
	}
	if out.Image.CaptureRect != req.Rect {
		t.Fatalf("CaptureRect = %v, want %v", out.Image.CaptureRect, req.Rect)
	}
}

func TestSizeMismatchIsOnlyAWarning(t *testing.T) {
	platform := &fakePlatform{image: func(PlatformRequest) image.Image {
		return image.NewRGBA(image.Rect(0, 0, 10, 10))
	}}
	e := newTestExecutor(nil, []display.Descriptor{hd()}, platform, Options{})

	out := e.Capture(context.Background(), geometry.CaptureRect{Width: 20, Height: 20}, hd())
	if !out.OK() {
		t.Fatalf("Capture() failed: %v", out.Err)
	}
	if out.Image.EstimatedByteSize != 400 {
		t.Fatalf("EstimatedByteSize = %d, want 400", out.Image.EstimatedByteSize)
	}
}

func TestConversionNormalizesImage(t *testing.T) {
	platform := &fakePlatform{image: func(req PlatformRequest) image.Image {
		img := image.NewNRGBA(image.Rect(5, 5, 5+req.PixelWidth, 5+req.PixelHeight))
		img.SetNRGBA(5, 5, color.NRGBA{R: 255, A: 255})
		return img
	}}
	e := newTestExecutor(nil, []display.Descriptor{hd()}, platform, Options{})

	out := e.Capture(context.Background(), geometry.CaptureRect{Width: 20, Height: 10}, hd())
	if !out.OK() {
		t.Fatalf("Capture() failed: %v", out.Err)
	}
	bm := out.Image.Bitmap
	if bm.Bounds() != image.Rect(0, 0, 20, 10) {
		t.Fatalf("bitmap bounds = %v", bm.Bounds())
	}
	if got := bm.RGBAAt(0, 0); got != (color.RGBA{R: 255, A: 255}) {
		t.Fatalf("pixel (0,0) = %v", got)
	}
	if _, err := out.Image.PNG(); err != nil {
		t.Fatalf("PNG() error: %v", err)
	}
}

func TestSecondCaptureWhilePendingIsBusy(t *testing.T) {
	platform := &fakePlatform{called: make(chan struct{}, 2), gate: make(chan struct{})}
	e := newTestExecutor(nil, []display.Descriptor{hd()}, platform, Options{})
	rect := geometry.CaptureRect{Width: 50, Height: 50}

	first := make(chan Outcome, 1)
	go func() { first <- e.Capture(context.Background(), rect, hd()) }()
	<-platform.called

	out := e.Capture(context.Background(), rect, hd())
	if out.Err == nil || out.Err.Kind != KindBusy {
		t.Fatalf("second Capture() = %+v, want busy", out)
	}
	if platform.calls() != 1 {
		t.Fatalf("platform called %d times, want 1", platform.calls())
	}

	close(platform.gate)
	if res := <-first; !res.OK() {
		t.Fatalf("first Capture() failed: %v", res.Err)
	}
	if snap := e.Stats().Snapshot(); snap.Captures != 1 || snap.Busy != 1 || snap.Failures != 0 {
		t.Fatalf("unexpected stats %+v", snap)
	}
}

func TestDeadlineKeepsFlagUntilPlatformAnswers(t *testing.T) {
	platform := &fakePlatform{called: make(chan struct{}, 2), gate: make(chan struct{})}
	e := newTestExecutor(nil, []display.Descriptor{hd()}, platform, Options{})
	rect := geometry.CaptureRect{Width: 50, Height: 50}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	out := e.Capture(ctx, rect, hd())
	if out.Err == nil || out.Err.Kind != KindUnknown {
		t.Fatalf("Capture() = %+v, want unknown deadline failure", out)
	}
	if !errors.Is(out.Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline in error chain, got %v", out.Err)
	}
	if !e.InFlight() {
		t.Fatal("flag must stay set while the platform call is outstanding")
	}
	if busy := e.Capture(context.Background(), rect, hd()); busy.Err == nil || busy.Err.Kind != KindBusy {
		t.Fatalf("expected busy while the platform is still working, got %+v", busy)
	}

	close(platform.gate)
	deadline := time.Now().Add(2 * time.Second)
	for e.InFlight() {
		if time.Now().After(deadline) {
			t.Fatal("flag never cleared after the platform answered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRetry(t *testing.T) {
	platform := &fakePlatform{}
	e := newTestExecutor(nil, []display.Descriptor{hd()}, platform, Options{})

	if _, ok := e.Retry(context.Background()); ok {
		t.Fatal("Retry() with no history must report false")
	}
	if e.HasLast() {
		t.Fatal("HasLast() before any capture")
	}

	rect := geometry.CaptureRect{X: 5, Y: 6, Width: 70, Height: 80}
	if out := e.Capture(context.Background(), rect, hd()); !out.OK() {
		t.Fatalf("Capture() failed: %v", out.Err)
	}
	out, ok := e.Retry(context.Background())
	if !ok || !out.OK() {
		t.Fatalf("Retry() = %+v, %v", out, ok)
	}
	if platform.calls() != 2 || platform.requests[1].Rect != rect {
		t.Fatalf("retry did not repeat the request: %+v", platform.requests)
	}

	if e.HasLast() {
		t.Fatal("HasLast() after the retry was used")
	}
	if _, ok := e.Retry(context.Background()); ok {
		t.Fatal("second Retry() of the same capture must report false")
	}
	if platform.calls() != 2 {
		t.Fatalf("platform called %d times, want 2", platform.calls())
	}
}

func TestCaptureSelectionKeepsOriginalRect(t *testing.T) {
	platform := &fakePlatform{}
	e := newTestExecutor(nil, []display.Descriptor{hd()}, platform, Options{})

	sel := geometry.InteractionRect{X: -20, Y: 10, Width: 120, Height: 60}
	out := e.CaptureSelection(context.Background(), sel, hd())
	if !out.OK() {
		t.Fatalf("CaptureSelection() failed: %v", out.Err)
	}
	if out.Image.OriginalRect != sel {
		t.Fatalf("OriginalRect = %v, want %v", out.Image.OriginalRect, sel)
	}
	want := geometry.CaptureRect{X: 0, Y: 1010, Width: 100, Height: 60}
	if out.Image.CaptureRect != want || platform.requests[0].Rect != want {
		t.Fatalf("CaptureRect = %v, want %v", out.Image.CaptureRect, want)
	}

	retried, ok := e.Retry(context.Background())
	if !ok || !retried.OK() || retried.Image.OriginalRect != sel {
		t.Fatalf("Retry() lost the selection: %+v, %v", retried, ok)
	}
}

func TestCaptureErrorMessage(t *testing.T) {
	err := &CaptureError{Kind: KindDisplayNotFound, Message: "display 4 is not attached"}
	if got, want := err.Error(), "capture display not found: display 4 is not attached"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
