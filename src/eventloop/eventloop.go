package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"screen-region-capture/src/config"
	"screen-region-capture/src/display"
	"screen-region-capture/src/hotkey"
	"screen-region-capture/src/screenshot"
	"screen-region-capture/src/selection"
	"screen-region-capture/src/session"
	"screen-region-capture/src/singleinstance"
	"screen-region-capture/src/worker"
)

// ErrBusy is reported to a requester while another capture is running.
var ErrBusy = errors.New("Busy, please retry")

// Capturer is the executor as seen by the loop.
type Capturer interface {
	worker.Capturer
	InFlight() bool
	HasLast() bool
	Stats() *screenshot.Stats
}

// Indicator reflects loop state in the tray.
type Indicator interface {
	UpdateTooltip(text string)
	SetAboutExtra(text string)
}

// Notifier shows user-facing notices for requests without a client.
type Notifier interface {
	ShowBusy()
	ShowCaptureFailure(message string)
}

// Deps are the collaborators a Loop drives. Indicator and Notifier default to
// the tray and notification packages.
type Deps struct {
	Host      selection.SurfaceHost
	Displays  display.Enumerator
	Renderer  selection.Renderer
	Capturer  Capturer
	Server    singleinstance.Server
	Indicator Indicator
	Notifier  Notifier
}

// Loop is the single-threaded coordinator for hotkey, tray and run-once
// requests. The selection controller is only touched from the loop goroutine.
type Loop struct {
	controller *selection.Controller
	capturer   Capturer
	pool       *worker.Pool
	srv        singleinstance.Server
	indicator  Indicator
	notifier   Notifier

	// pending is the request whose selection is on screen.
	pending *request
	// capturing is set while a submitted capture has not been handled.
	capturing bool

	events         chan selection.Event
	results        chan result
	hotkeyCh       chan struct{}
	retryCh        chan struct{}
	defaultTooltip string
	deadline       time.Duration
}

type request struct {
	ctx       context.Context
	target    resultTarget
	callbacks requestCallbacks
}

type result struct {
	out    screenshot.Outcome
	target resultTarget
	cancel context.CancelFunc
}

type resultTarget interface {
	OnSuccess(img *screenshot.CapturedImage) error
	OnProcessError(err error)
	OnDeliveryError(err error)
	Close()
}

type requestCallbacks struct {
	onBusy        func()
	onSelectError func(err error)
	onCancelled   func(reason selection.CancelReason)
	// onNoHistory replaces the "nothing to retry" error when set.
	onNoHistory   func()
}

// New creates a loop. If cfg is nil or cfg.CaptureDeadlineSec <= 0, a 10s
// deadline is used.
func New(cfg *config.Config, deps Deps) *Loop {
	deadlineSec := config.DefaultCaptureDeadlineSec
	minSize := 0.0
	if cfg != nil {
		if cfg.CaptureDeadlineSec > 0 {
			deadlineSec = cfg.CaptureDeadlineSec
		}
		minSize = cfg.MinSelectionSize
	}
	if deps.Indicator == nil {
		deps.Indicator = trayIndicator{}
	}
	if deps.Notifier == nil {
		deps.Notifier = popupNotifier{}
	}

	l := &Loop{
		capturer:       deps.Capturer,
		pool:           worker.New(deps.Capturer),
		srv:            deps.Server,
		indicator:      deps.Indicator,
		notifier:       deps.Notifier,
		events:         make(chan selection.Event, 256),
		results:        make(chan result, 1),
		hotkeyCh:       make(chan struct{}, 4),
		retryCh:        make(chan struct{}, 1),
		defaultTooltip: "Screen Region Capture",
		deadline:       time.Duration(deadlineSec) * time.Second,
	}
	l.controller = selection.New(deps.Host, deps.Displays, deps.Renderer, selection.Callbacks{
		OnComplete: l.onSelected,
		OnCancel:   l.onSelectionCancelled,
	}, selection.Options{MinSelectionSize: minSize})
	return l
}

// SetDefaultTooltip optionally sets the tray tooltip base text.
func (l *Loop) SetDefaultTooltip(tt string) { l.defaultTooltip = tt }

// Deadline returns the configured capture deadline for this loop.
func (l *Loop) Deadline() time.Duration { return l.deadline }

// Post delivers a host input event. It never blocks: surface hosts call it
// from their UI thread while the loop may be waiting on that thread.
func (l *Loop) Post(ev selection.Event) {
	select {
	case l.events <- ev:
	default:
		log.Printf("eventloop: event queue full, dropping %s", ev.Kind)
	}
}

// Trigger starts a clipboard capture as if the hotkey was pressed.
func (l *Loop) Trigger() {
	select {
	case l.hotkeyCh <- struct{}{}:
	default:
	}
}

// RetryLastCapture repeats the most recent capture request.
func (l *Loop) RetryLastCapture() {
	select {
	case l.retryCh <- struct{}{}:
	default:
	}
}

// StartHotkey registers a global hotkey that triggers a capture.
func (l *Loop) StartHotkey(combo string) (*hotkey.Listener, error) {
	if combo == "" {
		return nil, nil
	}
	listener, err := hotkey.NewListener(combo, l.Trigger)
	if err != nil {
		return nil, err
	}
	if err := listener.Start(); err != nil {
		return nil, err
	}
	return listener, nil
}

func (l *Loop) busy() bool {
	return l.controller.Active() || l.capturing || l.pool.Busy() || l.capturer.InFlight()
}

func (l *Loop) setBusy(b bool) {
	l.capturing = b
	if b {
		l.indicator.UpdateTooltip("Screen Region Capture: capturing...")
		return
	}
	l.indicator.UpdateTooltip(fmt.Sprintf("%s\n%s", l.defaultTooltip, l.capturer.Stats().Snapshot()))
}

// Run starts the singleinstance server (when one was provided) and processes
// requests until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.pool.Close()

	var reqCh chan singleinstance.Conn
	if l.srv != nil {
		if err := l.srv.Start(ctx); err != nil {
			return err
		}
		defer l.srv.Close()
		if p := l.srv.Port(); p > 0 {
			log.Printf("Resident listening on 127.0.0.1:%d", p)
			l.indicator.SetAboutExtra(fmt.Sprintf("Resident TCP port: %d", p))
		}

		// Accept loop in background to avoid blocking result handling
		reqCh = make(chan singleinstance.Conn, 4)
		go func() {
			for {
				conn, err := l.srv.Next(ctx)
				if err != nil {
					close(reqCh)
					return
				}
				select {
				case reqCh <- conn:
				case <-ctx.Done():
					_ = conn.Close()
					close(reqCh)
					return
				}
			}
		}()
	}

	return l.loop(ctx, reqCh, nil)
}

// RunOnce runs one selection and capture, delivering to sink, and returns
// when the request has ended.
func (l *Loop) RunOnce(ctx context.Context, sink session.ResultTarget) error {
	defer l.pool.Close()
	done := make(chan error, 1)
	target := &onceResultTarget{sink: sink, done: done}
	l.startRequest(ctx, target, target.callbacks())
	return l.loop(ctx, nil, done)
}

func (l *Loop) loop(ctx context.Context, reqCh <-chan singleinstance.Conn, done <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			l.abandon()
			return ctx.Err()
		case err := <-done:
			return err
		case ev := <-l.events:
			l.controller.Handle(ev)
		case <-l.hotkeyCh:
			l.handleHotkey(ctx)
		case <-l.retryCh:
			l.handleRetry(ctx, hotkeyResultTarget{notifier: l.notifier}, hotkeyCallbacks(l.notifier))
		case conn, ok := <-reqCh:
			if !ok {
				return nil
			}
			l.handleConn(ctx, conn)
		case res := <-l.results:
			l.handleResult(res)
		}
	}
}

// abandon cancels a selection left on screen at shutdown.
func (l *Loop) abandon() {
	if l.controller.Active() {
		l.controller.Escape()
	}
}

func (l *Loop) handleConn(ctx context.Context, conn singleinstance.Conn) {
	req := conn.Request()
	target := newDelegatedResultTarget(conn, req.OutputToStdout())
	callbacks := requestCallbacks{
		onBusy: func() {
			target.OnProcessError(ErrBusy)
			target.Close()
		},
		onSelectError: func(err error) {
			target.OnProcessError(fmt.Errorf("Failed to select region: %w", err))
			target.Close()
		},
		onCancelled: func(selection.CancelReason) {
			target.OnProcessError(session.ErrSelectionCancelled)
			target.Close()
		},
	}
	log.Printf("handleConn: %s request", req.Mode)
	if req.Mode == singleinstance.ModeRetry {
		l.handleRetry(ctx, target, callbacks)
		return
	}
	l.startRequest(ctx, target, callbacks)
}

func (l *Loop) handleHotkey(ctx context.Context) {
	log.Printf("handleHotkey: called")
	l.startRequest(ctx, hotkeyResultTarget{notifier: l.notifier}, hotkeyCallbacks(l.notifier))
}

func hotkeyCallbacks(n Notifier) requestCallbacks {
	return requestCallbacks{
		onBusy: func() {
			log.Printf("handleHotkey: busy, skipping")
			n.ShowBusy()
		},
		onSelectError: func(err error) {
			log.Printf("handleHotkey: selection error: %v", err)
			n.ShowCaptureFailure(fmt.Sprintf("Selection error: %v", err))
		},
		onCancelled: func(reason selection.CancelReason) {
			log.Printf("handleHotkey: selection cancelled (%s)", reason)
		},
		onNoHistory: func() {
			log.Printf("handleRetry: no previous capture, ignoring")
		},
	}
}

func (l *Loop) startRequest(ctx context.Context, target resultTarget, callbacks requestCallbacks) {
	if l.busy() {
		if callbacks.onBusy != nil {
			callbacks.onBusy()
		}
		return
	}

	l.pending = &request{ctx: ctx, target: target, callbacks: callbacks}
	if err := l.controller.Start(); err != nil {
		l.pending = nil
		if callbacks.onSelectError != nil {
			callbacks.onSelectError(err)
		}
	}
}

func (l *Loop) handleRetry(ctx context.Context, target resultTarget, callbacks requestCallbacks) {
	if l.busy() {
		if callbacks.onBusy != nil {
			callbacks.onBusy()
		}
		return
	}
	if !l.capturer.HasLast() {
		if callbacks.onNoHistory != nil {
			callbacks.onNoHistory()
			return
		}
		target.OnProcessError(errors.New("nothing to retry"))
		target.Close()
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, l.deadline)
	l.setBusy(true)
	submitted := l.pool.SubmitRetry(jobCtx, func(out screenshot.Outcome) {
		l.results <- result{out: out, target: target, cancel: cancel}
	})
	if !submitted {
		cancel()
		l.setBusy(false)
		if callbacks.onBusy != nil {
			callbacks.onBusy()
		}
	}
}

// onSelected runs on the loop goroutine via the controller's callback.
func (l *Loop) onSelected(res selection.Result) {
	req := l.pending
	l.pending = nil
	if req == nil {
		log.Printf("onSelected: no pending request")
		return
	}

	jobCtx, cancel := context.WithTimeout(req.ctx, l.deadline)
	l.setBusy(true)
	submitted := l.pool.SubmitSelection(jobCtx, res.Rect, res.Display, func(out screenshot.Outcome) {
		l.results <- result{out: out, target: req.target, cancel: cancel}
	})
	if !submitted {
		cancel()
		l.setBusy(false)
		if req.callbacks.onBusy != nil {
			req.callbacks.onBusy()
		}
	}
}

func (l *Loop) onSelectionCancelled(reason selection.CancelReason) {
	req := l.pending
	l.pending = nil
	if req == nil {
		return
	}
	if req.callbacks.onCancelled != nil {
		req.callbacks.onCancelled(reason)
	}
}

func (l *Loop) handleResult(res result) {
	defer func() {
		l.setBusy(false)
		if res.cancel != nil {
			res.cancel()
		}
	}()
	if res.target == nil {
		log.Printf("handleResult: missing target")
		return
	}
	defer res.target.Close()

	if !res.out.OK() {
		err := error(res.out.Err)
		if res.out.Err == nil {
			err = errors.New("capture produced no image")
		}
		log.Printf("handleResult: capture error: %v", err)
		res.target.OnProcessError(err)
		return
	}

	img := res.out.Image
	log.Printf("handleResult: captured %dx%d from display %d", img.Bitmap.Rect.Dx(), img.Bitmap.Rect.Dy(), img.SourceDisplay.ID)
	if err := res.target.OnSuccess(img); err != nil {
		log.Printf("handleResult: delivery error: %v", err)
		res.target.OnDeliveryError(err)
	}
}
