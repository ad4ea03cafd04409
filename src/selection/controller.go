package selection

import (
	"fmt"
	"log"

	"screen-region-capture/src/display"
	"screen-region-capture/src/geometry"
)

// Controller drives one selection gesture at a time across every connected
// display. It is not safe for concurrent use: all methods must be called from
// the goroutine that owns the UI (the event loop).
type Controller struct {
	host      SurfaceHost
	displays  display.Enumerator
	renderer  Renderer
	callbacks Callbacks
	minSize   float64

	state State
	sess  *session
}

type session struct {
	displays []display.Descriptor
	surfaces []surfaceHandle
	chrome   bool

	pressed bool
	origin  display.Descriptor
	start   geometry.Point
	current geometry.Point
}

type surfaceHandle struct {
	display display.Descriptor
	surface Surface
}

// Options tune a Controller. Zero values select defaults.
type Options struct {
	MinSelectionSize float64
}

// New returns an idle controller.
func New(host SurfaceHost, displays display.Enumerator, renderer Renderer, callbacks Callbacks, opts Options) *Controller {
	minSize := opts.MinSelectionSize
	if minSize <= 0 {
		minSize = DefaultMinSelectionSize
	}
	return &Controller{
		host:      host,
		displays:  displays,
		renderer:  renderer,
		callbacks: callbacks,
		minSize:   minSize,
	}
}

// State reports the current lifecycle state.
func (c *Controller) State() State { return c.state }

// Active reports whether a session is in progress.
func (c *Controller) Active() bool { return c.state == Selecting }

// Start opens a session: one overlay surface per current display, chrome
// suppressed, input focus on the primary display. It returns ErrSessionActive
// without side effects when a session is already running.
func (c *Controller) Start() (err error) {
	if c.state != Idle {
		log.Printf("selection: start rejected, state=%s", c.state)
		return ErrSessionActive
	}

	displays := c.displays.CurrentDisplays()
	if len(displays) == 0 {
		return ErrNoDisplays
	}

	s := &session{displays: displays}
	c.sess = s
	c.state = Selecting
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("selection: start panicked: %v", r)
		}
		if err != nil {
			log.Printf("selection: start failed: %v", err)
			c.teardown()
			c.state = Idle
		}
	}()

	for _, d := range displays {
		surface, err := c.host.CreateSurface(d)
		if err != nil {
			return fmt.Errorf("create surface for %v: %w", d, err)
		}
		s.surfaces = append(s.surfaces, surfaceHandle{display: d, surface: surface})
	}

	// A host may hide part of the chrome before failing, so restore it regardless.
	s.chrome = true
	if err := c.host.SuppressChrome(); err != nil {
		log.Printf("selection: suppress chrome: %v", err)
	}

	for _, h := range s.surfaces {
		c.present(h, nil)
	}

	primary, _ := display.Primary(displays)
	for _, h := range s.surfaces {
		if h.display.ID == primary.ID {
			if err := h.surface.Focus(); err != nil {
				log.Printf("selection: focus %v: %v", h.display, err)
			}
			break
		}
	}

	log.Printf("selection: session started on %d display(s)", len(displays))
	return nil
}

// Handle dispatches a host input event.
func (c *Controller) Handle(ev Event) {
	switch ev.Kind {
	case EventPointerDown:
		c.PointerDown(ev.Point, ev.DisplayID)
	case EventPointerDrag:
		c.PointerDrag(ev.Point)
	case EventPointerUp:
		c.PointerUp(ev.Point)
	case EventEscape:
		c.Escape()
	case EventRightClick:
		c.RightClick()
	default:
		log.Printf("selection: ignoring event %v", ev.Kind)
	}
}

// PointerDown anchors the gesture at point on the given display.
func (c *Controller) PointerDown(point geometry.Point, displayID int) {
	c.guard("pointer down", func() {
		s := c.sess
		d, ok := display.Find(s.displays, displayID)
		if !ok {
			log.Printf("selection: pointer down on unknown display %d", displayID)
			return
		}
		s.pressed = true
		s.origin = d
		s.start = point
		s.current = point
	})
}

// PointerDrag moves the free corner and redraws the origin surface.
func (c *Controller) PointerDrag(point geometry.Point) {
	c.guard("pointer drag", func() {
		s := c.sess
		if !s.pressed {
			return
		}
		s.current = point
		rect := geometry.FromCorners[geometry.InteractionSpace](s.start, s.current)
		if h, ok := s.surfaceFor(s.origin.ID); ok {
			c.present(h, &rect)
		}
	})
}

// PointerUp ends the gesture. Selections smaller than the minimum size on
// either axis cancel the session.
func (c *Controller) PointerUp(point geometry.Point) {
	c.guard("pointer up", func() {
		s := c.sess
		if !s.pressed {
			return
		}
		s.current = point
		rect := geometry.FromCorners[geometry.InteractionSpace](s.start, s.current)
		if rect.Width < c.minSize || rect.Height < c.minSize {
			log.Printf("selection: %v below minimum %.0f", rect, c.minSize)
			c.cancel(CancelUndersized)
			return
		}
		c.complete(Result{Rect: rect, Display: s.origin})
	})
}

// Escape cancels the session.
func (c *Controller) Escape() {
	c.guard("escape", func() { c.cancel(CancelEscape) })
}

// RightClick cancels the session.
func (c *Controller) RightClick() {
	c.guard("right click", func() { c.cancel(CancelRightClick) })
}

// guard runs fn only while selecting and turns a panic into a cancelled
// session.
func (c *Controller) guard(what string, fn func()) {
	if c.state != Selecting || c.sess == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("selection: panic during %s: %v", what, r)
			if c.sess != nil {
				c.cancel(CancelFailure)
			}
		}
	}()
	fn()
}

func (c *Controller) complete(res Result) {
	c.state = Completed
	c.teardown()
	c.state = Idle
	log.Printf("selection: completed %v on %v", res.Rect, res.Display)
	if c.callbacks.OnComplete != nil {
		c.callbacks.OnComplete(res)
	}
}

func (c *Controller) cancel(reason CancelReason) {
	c.state = Cancelled
	c.teardown()
	c.state = Idle
	log.Printf("selection: cancelled (%s)", reason)
	if c.callbacks.OnCancel != nil {
		c.callbacks.OnCancel(reason)
	}
}

// teardown dismisses every surface and restores chrome and cursor. It is the
// only cleanup path and runs at most once per session.
func (c *Controller) teardown() {
	s := c.sess
	c.sess = nil
	if s == nil {
		return
	}
	for i := len(s.surfaces) - 1; i >= 0; i-- {
		h := s.surfaces[i]
		bestEffort(fmt.Sprintf("dismiss %v", h.display), h.surface.Dismiss)
	}
	if s.chrome {
		bestEffort("restore chrome", c.host.RestoreChrome)
	}
	bestEffort("restore cursor", func() error {
		c.host.RestoreCursor()
		return nil
	})
}

func (c *Controller) present(h surfaceHandle, sel *geometry.InteractionRect) {
	frame := c.renderer.Render(sel, h.display)
	if err := h.surface.Present(frame); err != nil {
		log.Printf("selection: present on %v: %v", h.display, err)
	}
	c.renderer.Recycle(frame)
}

func (s *session) surfaceFor(id int) (surfaceHandle, bool) {
	for _, h := range s.surfaces {
		if h.display.ID == id {
			return h, true
		}
	}
	return surfaceHandle{}, false
}

func bestEffort(what string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("selection: %s panicked: %v", what, r)
		}
	}()
	if err := fn(); err != nil {
		log.Printf("selection: %s: %v", what, err)
	}
}
