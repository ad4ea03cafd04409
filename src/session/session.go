package session

import (
	"errors"
	"fmt"
	"io"
	"os"

	"screen-region-capture/src/clipboard"
	"screen-region-capture/src/screenshot"
	"screen-region-capture/src/singleinstance"
)

var ErrSelectionCancelled = errors.New("selection cancelled")

// ResultTarget receives the end of one capture request.
type ResultTarget interface {
	OnSuccess(img *screenshot.CapturedImage) error
	OnFailure(err error) error
}

// encode is swapped in tests.
var encode = func(img *screenshot.CapturedImage) ([]byte, error) { return img.PNG() }

// copyImage is swapped in tests.
var copyImage = clipboard.WriteImage

type ClipboardTarget struct{}

func (ClipboardTarget) OnSuccess(img *screenshot.CapturedImage) error {
	data, err := encode(img)
	if err != nil {
		return err
	}
	return copyImage(data)
}

func (ClipboardTarget) OnFailure(err error) error {
	return nil
}

// StdoutTarget writes PNG bytes to Writer (os.Stdout when nil).
type StdoutTarget struct {
	Writer io.Writer
}

func (t StdoutTarget) OnSuccess(img *screenshot.CapturedImage) error {
	w := t.Writer
	if w == nil {
		w = os.Stdout
	}
	data, err := encode(img)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (t StdoutTarget) OnFailure(err error) error {
	return nil
}

// DelegatedTarget answers a run-once client of the resident process.
type DelegatedTarget struct {
	Conn           singleinstance.Conn
	OutputToStdout bool
}

func (t DelegatedTarget) OnSuccess(img *screenshot.CapturedImage) error {
	if t.Conn == nil {
		return errors.New("delegated target missing connection")
	}
	data, err := encode(img)
	if err != nil {
		return err
	}
	if t.OutputToStdout {
		return t.Conn.RespondSuccess(data)
	}
	if err := copyImage(data); err != nil {
		return fmt.Errorf("clipboard error: %w", err)
	}
	return t.Conn.RespondSuccess(nil)
}

func (t DelegatedTarget) OnFailure(err error) error {
	if t.Conn == nil {
		return nil
	}
	if err == nil {
		return t.Conn.RespondError("unknown session error")
	}
	return t.Conn.RespondError(err.Error())
}
