package selection

import (
	"errors"
	"image"

	"screen-region-capture/src/display"
	"screen-region-capture/src/geometry"
)

// DefaultMinSelectionSize is the smallest accepted extent on each axis, in points.
const DefaultMinSelectionSize = 10

var (
	// ErrSessionActive is returned by Start while a selection is in progress.
	ErrSessionActive = errors.New("selection already in progress")
	// ErrNoDisplays is returned by Start when the enumerator reports nothing.
	ErrNoDisplays = errors.New("no displays available")
)

// State is the controller's position in the gesture lifecycle.
type State int

const (
	Idle State = iota
	Selecting
	Completed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selecting:
		return "selecting"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// CancelReason says why a session ended without a selection.
type CancelReason int

const (
	CancelEscape CancelReason = iota + 1
	CancelRightClick
	CancelUndersized
	CancelFailure
)

func (r CancelReason) String() string {
	switch r {
	case CancelEscape:
		return "escape"
	case CancelRightClick:
		return "right-click"
	case CancelUndersized:
		return "undersized"
	case CancelFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Result is the terminal rectangle of a completed session and the display
// the gesture started on.
type Result struct {
	Rect    geometry.InteractionRect
	Display display.Descriptor
}

// Surface is one borderless, always-on-top overlay window covering a display.
type Surface interface {
	// Present shows frame. The frame is reused after Present returns, so
	// implementations must copy it.
	Present(frame *image.RGBA) error
	Focus() error
	Dismiss() error
}

// SurfaceHost creates overlay surfaces and controls the shell chrome around
// them (taskbar, dock, menu bar).
type SurfaceHost interface {
	CreateSurface(d display.Descriptor) (Surface, error)
	SuppressChrome() error
	RestoreChrome() error
	RestoreCursor()
}

// Renderer draws one overlay frame for a display.
type Renderer interface {
	Render(sel *geometry.InteractionRect, d display.Descriptor) *image.RGBA
	Recycle(frame *image.RGBA)
}

// Callbacks receive terminal transitions. They run after teardown, on the
// goroutine driving the controller.
type Callbacks struct {
	OnComplete func(Result)
	OnCancel   func(CancelReason)
}

// EventKind tags an input Event.
type EventKind int

const (
	EventPointerDown EventKind = iota + 1
	EventPointerDrag
	EventPointerUp
	EventEscape
	EventRightClick
)

func (k EventKind) String() string {
	switch k {
	case EventPointerDown:
		return "pointer-down"
	case EventPointerDrag:
		return "pointer-drag"
	case EventPointerUp:
		return "pointer-up"
	case EventEscape:
		return "escape"
	case EventRightClick:
		return "right-click"
	default:
		return "unknown"
	}
}

// Event is an input event posted by a surface host. Point is in the
// interaction space of the surface on DisplayID.
type Event struct {
	Kind      EventKind
	Point     geometry.Point
	DisplayID int
}
