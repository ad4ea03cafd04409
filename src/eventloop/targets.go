package eventloop

import (
	"errors"
	"fmt"

	"screen-region-capture/src/notification"
	"screen-region-capture/src/screenshot"
	"screen-region-capture/src/selection"
	"screen-region-capture/src/session"
	"screen-region-capture/src/singleinstance"
	"screen-region-capture/src/tray"
)

// hotkeyResultTarget copies captures started from the hotkey or tray.
type hotkeyResultTarget struct {
	notifier Notifier
}

func (hotkeyResultTarget) OnSuccess(img *screenshot.CapturedImage) error {
	return session.ClipboardTarget{}.OnSuccess(img)
}

func (t hotkeyResultTarget) OnProcessError(err error) {
	var cerr *screenshot.CaptureError
	if errors.As(err, &cerr) && cerr.Kind == screenshot.KindBusy {
		t.notifier.ShowBusy()
		return
	}
	t.notifier.ShowCaptureFailure(UserMessage(err))
}

func (t hotkeyResultTarget) OnDeliveryError(err error) {
	t.notifier.ShowCaptureFailure(fmt.Sprintf("Clipboard error: %v", err))
}

func (hotkeyResultTarget) Close() {}

type delegatedResultTarget struct {
	sink session.DelegatedTarget
	conn singleinstance.Conn
}

func newDelegatedResultTarget(conn singleinstance.Conn, outputToStdout bool) delegatedResultTarget {
	return delegatedResultTarget{
		sink: session.DelegatedTarget{Conn: conn, OutputToStdout: outputToStdout},
		conn: conn,
	}
}

func (t delegatedResultTarget) OnSuccess(img *screenshot.CapturedImage) error {
	return t.sink.OnSuccess(img)
}

func (t delegatedResultTarget) OnProcessError(err error) {
	_ = t.sink.OnFailure(errors.New(UserMessage(err)))
}

func (t delegatedResultTarget) OnDeliveryError(err error) {
	_ = t.sink.OnFailure(err)
}

func (t delegatedResultTarget) Close() {
	if t.conn != nil {
		_ = t.conn.Close()
	}
}

// onceResultTarget ends RunOnce with the request's first error, or nil.
type onceResultTarget struct {
	sink session.ResultTarget
	done chan<- error
	err  error
}

func (t *onceResultTarget) OnSuccess(img *screenshot.CapturedImage) error {
	return t.sink.OnSuccess(img)
}

func (t *onceResultTarget) OnProcessError(err error) {
	t.err = err
	_ = t.sink.OnFailure(err)
}

func (t *onceResultTarget) OnDeliveryError(err error) {
	t.err = err
	_ = t.sink.OnFailure(err)
}

func (t *onceResultTarget) Close() { t.finish(t.err) }

func (t *onceResultTarget) finish(err error) {
	select {
	case t.done <- err:
	default:
	}
}

func (t *onceResultTarget) callbacks() requestCallbacks {
	return requestCallbacks{
		onBusy: func() { t.finish(ErrBusy) },
		onSelectError: func(err error) {
			t.finish(fmt.Errorf("Failed to select region: %w", err))
		},
		onCancelled: func(selection.CancelReason) {
			t.finish(session.ErrSelectionCancelled)
		},
	}
}

// UserMessage turns a capture failure into text for a notice or client.
func UserMessage(err error) string {
	var cerr *screenshot.CaptureError
	if !errors.As(err, &cerr) {
		return err.Error()
	}
	switch cerr.Kind {
	case screenshot.KindPermissionDenied:
		return "Screen capture permission denied. Grant access and try again."
	case screenshot.KindInvalidCoordinates:
		return "The selected region is not on a display."
	case screenshot.KindDisplayNotFound, screenshot.KindDisplayConfigurationChanged:
		return "The display changed during capture. Please select again."
	case screenshot.KindMemoryAllocationFailed:
		return "The selected region is too large to capture."
	case screenshot.KindBusy:
		return ErrBusy.Error()
	default:
		return err.Error()
	}
}

type trayIndicator struct{}

func (trayIndicator) UpdateTooltip(text string) { tray.UpdateTooltip(text) }

func (trayIndicator) SetAboutExtra(text string) { tray.SetAboutExtra(text) }

type popupNotifier struct{}

func (popupNotifier) ShowBusy() { notification.ShowBusy() }

func (popupNotifier) ShowCaptureFailure(message string) { notification.ShowCaptureFailure(message) }
