package worker

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"screen-region-capture/src/display"
	"screen-region-capture/src/geometry"
	"screen-region-capture/src/screenshot"
)

// Capturer runs one capture. *screenshot.Executor satisfies it.
type Capturer interface {
	Capture(ctx context.Context, rect geometry.CaptureRect, d display.Descriptor) screenshot.Outcome
	CaptureSelection(ctx context.Context, sel geometry.InteractionRect, d display.Descriptor) screenshot.Outcome
	Retry(ctx context.Context) (screenshot.Outcome, bool)
}

// ResultCallback is invoked on capture completion (from the worker goroutine).
// The event loop should pass a closure that posts back into the event loop safely.
type ResultCallback func(out screenshot.Outcome)

// Pool runs captures on a single background goroutine and accepts at most one
// job at a time: Submit fails while a job is queued or running.
type Pool struct {
	capturer Capturer
	jobs     chan job
	busy     atomic.Bool
	wg       sync.WaitGroup
	closed   sync.Once
}

type job struct {
	ctx   context.Context
	retry bool
	rect  geometry.CaptureRect
	sel   *geometry.InteractionRect
	disp  display.Descriptor
	cb    ResultCallback
}

// New starts the worker goroutine.
func New(capturer Capturer) *Pool {
	p := &Pool{capturer: capturer, jobs: make(chan job, 1)}
	p.wg.Add(1)
	go p.run()
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for j := range p.jobs {
		var out screenshot.Outcome
		if j.retry {
			log.Printf("Worker: retrying last capture")
			var ok bool
			out, ok = p.capturer.Retry(j.ctx)
			if !ok {
				out = screenshot.Outcome{Err: &screenshot.CaptureError{
					Kind:    screenshot.KindUnknown,
					Message: "nothing to retry",
				}}
			}
		} else if j.sel != nil {
			log.Printf("Worker: capturing selection %v on display %d", *j.sel, j.disp.ID)
			out = p.capturer.CaptureSelection(j.ctx, *j.sel, j.disp)
		} else {
			log.Printf("Worker: capturing %v on display %d", j.rect, j.disp.ID)
			out = p.capturer.Capture(j.ctx, j.rect, j.disp)
		}
		p.busy.Store(false)
		log.Printf("Worker: capture finished ok=%v", out.OK())
		j.cb(out)
	}
}

// Busy reports whether a job is queued or running.
func (p *Pool) Busy() bool { return p.busy.Load() }

// Submit enqueues a capture if the pool is idle. Returns false if dropped.
func (p *Pool) Submit(ctx context.Context, rect geometry.CaptureRect, d display.Descriptor, cb ResultCallback) bool {
	return p.submit(job{ctx: ctx, rect: rect, disp: d, cb: cb})
}

// SubmitSelection enqueues a capture of an interaction-space selection if the
// pool is idle. Returns false if dropped.
func (p *Pool) SubmitSelection(ctx context.Context, sel geometry.InteractionRect, d display.Descriptor, cb ResultCallback) bool {
	return p.submit(job{ctx: ctx, sel: &sel, disp: d, cb: cb})
}

// SubmitRetry enqueues a retry of the capturer's last request if the pool is
// idle. Returns false if dropped.
func (p *Pool) SubmitRetry(ctx context.Context, cb ResultCallback) bool {
	return p.submit(job{ctx: ctx, retry: true, cb: cb})
}

func (p *Pool) submit(j job) bool {
	if !p.busy.CompareAndSwap(false, true) {
		return false
	}
	select {
	case p.jobs <- j:
		return true
	default:
		p.busy.Store(false)
		return false
	}
}

// Close stops the pool after draining current work.
func (p *Pool) Close() {
	p.closed.Do(func() { close(p.jobs) })
	p.wg.Wait()
}
