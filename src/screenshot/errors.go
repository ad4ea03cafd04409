package screenshot

import (
	"errors"
	"fmt"
)

// ErrDisplayGone is returned by a Platform when the target display vanished
// between resolution and capture.
var ErrDisplayGone = errors.New("display no longer attached")

// ErrorKind classifies capture failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindPermissionDenied
	KindInvalidCoordinates
	KindDisplayNotFound
	KindCaptureCreationFailed
	KindImageConversionFailed
	KindMemoryAllocationFailed
	KindDisplayConfigurationChanged
	// KindBusy rejects a request while another capture is in flight.
	KindBusy
)

func (k ErrorKind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission denied"
	case KindInvalidCoordinates:
		return "invalid coordinates"
	case KindDisplayNotFound:
		return "display not found"
	case KindCaptureCreationFailed:
		return "capture creation failed"
	case KindImageConversionFailed:
		return "image conversion failed"
	case KindMemoryAllocationFailed:
		return "memory allocation failed"
	case KindDisplayConfigurationChanged:
		return "display configuration changed"
	case KindBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// CaptureError is the failure half of an Outcome.
type CaptureError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *CaptureError) Error() string {
	msg := "capture " + e.Kind.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Is matches another *CaptureError of the same kind, so callers can write
// errors.Is(err, &CaptureError{Kind: KindBusy}).
func (e *CaptureError) Is(target error) bool {
	t, ok := target.(*CaptureError)
	return ok && t.Kind == e.Kind
}

func newError(kind ErrorKind, err error, format string, args ...any) *CaptureError {
	return &CaptureError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}
