//go:build !windows

package gui

import (
	"context"
	"errors"
	"image"
	"log"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
	"github.com/kbinani/screenshot"

	"screen-region-capture/src/display"
	"screen-region-capture/src/selection"
)

// fyneHost shows one fullscreen splash window per display. Windows are
// opaque, so each surface composes frames over a snapshot of its display.
type fyneHost struct {
	post PostFunc
	app  fyne.App
	grab func(image.Rectangle) (*image.RGBA, error)
	done chan struct{}
}

// NewHost returns the fyne overlay host.
func NewHost(post PostFunc) (Host, error) {
	return &fyneHost{
		post: post,
		app:  app.NewWithID("screen-region-capture"),
		grab: screenshot.CaptureRect,
		done: make(chan struct{}),
	}, nil
}

func (h *fyneHost) Run(ctx context.Context) error {
	defer close(h.done)
	go func() {
		<-ctx.Done()
		fyne.Do(h.app.Quit)
	}()
	h.app.Run()
	return ctx.Err()
}

// do runs fn on the fyne thread and waits for it.
func (h *fyneHost) do(fn func()) error {
	select {
	case <-h.done:
		return errHostStopped
	default:
	}
	finished := make(chan struct{})
	fyne.Do(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
		return nil
	case <-h.done:
		return errHostStopped
	}
}

func (h *fyneHost) CreateSurface(d display.Descriptor) (selection.Surface, error) {
	bg, err := h.grab(pixelBounds(d))
	if err != nil {
		log.Printf("OVERLAY: no background for %v: %v", d, err)
	}

	s := &fyneSurface{host: h, display: d, background: bg}
	s.area = newOverlayArea(s)
	var createErr error
	err = h.do(func() {
		drv, ok := h.app.Driver().(desktop.Driver)
		if !ok {
			createErr = errors.New("overlay needs a desktop driver")
			return
		}
		w := drv.CreateSplashWindow()
		w.SetContent(s.area)
		w.SetFullScreen(true)
		w.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
			if ev.Name == fyne.KeyEscape {
				h.post(selection.Event{Kind: selection.EventEscape, DisplayID: d.ID})
			}
		})
		w.Show()
		s.window = w
	})
	if err == nil {
		err = createErr
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SuppressChrome is a no-op: fullscreen windows already cover panels and docks.
func (h *fyneHost) SuppressChrome() error { return nil }

func (h *fyneHost) RestoreChrome() error { return nil }

// RestoreCursor is a no-op: the crosshair belongs to the overlay windows.
func (h *fyneHost) RestoreCursor() {}

type fyneSurface struct {
	host       *fyneHost
	window     fyne.Window
	display    display.Descriptor
	background *image.RGBA
	area       *overlayArea
}

func (s *fyneSurface) Present(frame *image.RGBA) error {
	composed := composeOver(nil, s.background, frame)
	fyne.Do(func() {
		s.area.image.Image = composed
		s.area.image.Refresh()
	})
	return nil
}

func (s *fyneSurface) Focus() error {
	return s.host.do(func() { s.window.RequestFocus() })
}

func (s *fyneSurface) Dismiss() error {
	return s.host.do(func() { s.window.Close() })
}

// unitsPerPoint converts fyne canvas units to display points.
func (s *fyneSurface) unitsPerPoint() float64 {
	if s.window == nil {
		return 1
	}
	scale := float64(s.window.Canvas().Scale())
	if scale <= 0 || s.display.ScaleFactor <= 0 {
		return 1
	}
	return s.display.ScaleFactor / scale
}

// overlayArea turns fyne pointer input into selection events.
type overlayArea struct {
	widget.BaseWidget
	surface *fyneSurface
	image   *canvas.Image
	pressed bool
	last    fyne.Position
}

func newOverlayArea(s *fyneSurface) *overlayArea {
	var initial image.Image = image.NewRGBA(image.Rect(0, 0, 1, 1))
	if s.background != nil {
		initial = s.background
	}
	a := &overlayArea{surface: s, image: canvas.NewImageFromImage(initial)}
	a.image.FillMode = canvas.ImageFillStretch
	a.image.ScaleMode = canvas.ImageScalePixels
	a.ExtendBaseWidget(a)
	return a
}

func (a *overlayArea) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(a.image)
}

func (a *overlayArea) Cursor() desktop.Cursor { return desktop.CrosshairCursor }

func (a *overlayArea) MouseDown(ev *desktop.MouseEvent) {
	switch ev.Button {
	case desktop.MouseButtonSecondary:
		a.emit(selection.EventRightClick, ev.Position)
	case desktop.MouseButtonPrimary:
		a.pressed = true
		a.last = ev.Position
		a.emit(selection.EventPointerDown, ev.Position)
	}
}

func (a *overlayArea) MouseUp(ev *desktop.MouseEvent) {
	if ev.Button == desktop.MouseButtonPrimary {
		a.release(ev.Position)
	}
}

func (a *overlayArea) Dragged(ev *fyne.DragEvent) {
	if !a.pressed {
		return
	}
	a.last = ev.Position
	a.emit(selection.EventPointerDrag, ev.Position)
}

func (a *overlayArea) DragEnd() { a.release(a.last) }

// release ends the gesture once, whichever of MouseUp and DragEnd arrives first.
func (a *overlayArea) release(p fyne.Position) {
	if !a.pressed {
		return
	}
	a.pressed = false
	a.emit(selection.EventPointerUp, p)
}

func (a *overlayArea) emit(kind selection.EventKind, p fyne.Position) {
	d := a.surface.display
	a.surface.host.post(selection.Event{
		Kind:      kind,
		Point:     toInteraction(float64(p.X), float64(p.Y), a.surface.unitsPerPoint(), d),
		DisplayID: d.ID,
	})
}
