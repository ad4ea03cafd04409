package worker

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"screen-region-capture/src/display"
	"screen-region-capture/src/geometry"
	"screen-region-capture/src/screenshot"
)

type fakeCapturer struct {
	mu      sync.Mutex
	started chan struct{}
	release chan struct{}
	calls   int
	retries int
	hasLast bool

	selections []geometry.InteractionRect
}

func (c *fakeCapturer) Capture(ctx context.Context, rect geometry.CaptureRect, d display.Descriptor) screenshot.Outcome {
	c.mu.Lock()
	c.calls++
	c.hasLast = true
	c.mu.Unlock()
	if c.started != nil {
		c.started <- struct{}{}
	}
	if c.release != nil {
		<-c.release
	}
	return screenshot.Outcome{Image: &screenshot.CapturedImage{Bitmap: image.NewRGBA(image.Rect(0, 0, 1, 1))}}
}

func (c *fakeCapturer) Retry(ctx context.Context) (screenshot.Outcome, bool) {
	c.mu.Lock()
	c.retries++
	has := c.hasLast
	c.mu.Unlock()
	if !has {
		return screenshot.Outcome{}, false
	}
	return c.Capture(ctx, geometry.CaptureRect{}, display.Descriptor{}), true
}

func (c *fakeCapturer) CaptureSelection(ctx context.Context, sel geometry.InteractionRect, d display.Descriptor) screenshot.Outcome {
	c.mu.Lock()
	c.selections = append(c.selections, sel)
	c.mu.Unlock()
	return c.Capture(ctx, geometry.CaptureRect{Width: sel.Width, Height: sel.Height}, d)
}

func waitOutcome(t *testing.T, ch <-chan screenshot.Outcome) screenshot.Outcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the worker callback")
		return screenshot.Outcome{}
	}
}

func TestSubmitRejectsWhileBusy(t *testing.T) {
	c := &fakeCapturer{started: make(chan struct{}, 1), release: make(chan struct{})}
	p := New(c)
	defer p.Close()

	results := make(chan screenshot.Outcome, 2)
	cb := func(out screenshot.Outcome) { results <- out }
	rect := geometry.CaptureRect{Width: 10, Height: 10}

	if !p.Submit(context.Background(), rect, display.Descriptor{}, cb) {
		t.Fatal("first Submit() rejected")
	}
	<-c.started
	if !p.Busy() {
		t.Fatal("pool should report busy while capturing")
	}
	if p.Submit(context.Background(), rect, display.Descriptor{}, cb) {
		t.Fatal("second Submit() accepted while busy")
	}
	if p.SubmitRetry(context.Background(), cb) {
		t.Fatal("SubmitRetry() accepted while busy")
	}

	close(c.release)
	if out := waitOutcome(t, results); !out.OK() {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if p.Busy() {
		t.Fatal("pool still busy after the callback")
	}
	if c.calls != 1 {
		t.Fatalf("capturer called %d times, want 1", c.calls)
	}
}

func TestSubmitRetry(t *testing.T) {
	c := &fakeCapturer{}
	p := New(c)
	defer p.Close()

	results := make(chan screenshot.Outcome, 1)
	cb := func(out screenshot.Outcome) { results <- out }

	if !p.SubmitRetry(context.Background(), cb) {
		t.Fatal("SubmitRetry() rejected on an idle pool")
	}
	out := waitOutcome(t, results)
	if out.Err == nil || out.Err.Kind != screenshot.KindUnknown {
		t.Fatalf("retry with no history = %+v, want unknown failure", out)
	}

	if !p.Submit(context.Background(), geometry.CaptureRect{Width: 5, Height: 5}, display.Descriptor{}, cb) {
		t.Fatal("Submit() rejected")
	}
	waitOutcome(t, results)

	if !p.SubmitRetry(context.Background(), cb) {
		t.Fatal("SubmitRetry() rejected")
	}
	if out := waitOutcome(t, results); !out.OK() {
		t.Fatalf("retry failed: %v", out.Err)
	}
	if c.retries != 2 || c.calls != 2 {
		t.Fatalf("retries=%d calls=%d, want 2 and 2", c.retries, c.calls)
	}
}

func TestSubmitSelection(t *testing.T) {
	c := &fakeCapturer{}
	p := New(c)
	defer p.Close()

	results := make(chan screenshot.Outcome, 1)
	sel := geometry.InteractionRect{X: -20, Y: 10, Width: 120, Height: 60}
	if !p.SubmitSelection(context.Background(), sel, display.Descriptor{ID: 2}, func(out screenshot.Outcome) { results <- out }) {
		t.Fatal("SubmitSelection() rejected on an idle pool")
	}
	if out := waitOutcome(t, results); !out.OK() {
		t.Fatalf("unexpected outcome %+v", out)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.selections) != 1 || c.selections[0] != sel {
		t.Fatalf("selections = %v, want [%v]", c.selections, sel)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	p := New(&fakeCapturer{})
	p.Close()
	p.Close()
}
