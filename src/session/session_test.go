package session

import (
	"bytes"
	"errors"
	"image"
	"testing"

	"screen-region-capture/src/screenshot"
	"screen-region-capture/src/singleinstance"
)

type fakeConn struct {
	success []byte
	ok      bool
	errMsg  string
}

func (c *fakeConn) Request() singleinstance.Request { return singleinstance.Request{} }

func (c *fakeConn) RespondSuccess(payload []byte) error {
	c.ok = true
	c.success = payload
	return nil
}

func (c *fakeConn) RespondError(msg string) error {
	c.errMsg = msg
	return nil
}

func (c *fakeConn) Close() error { return nil }

func stubClipboard(t *testing.T) *[][]byte {
	t.Helper()
	var copied [][]byte
	prev := copyImage
	copyImage = func(data []byte) error {
		copied = append(copied, data)
		return nil
	}
	t.Cleanup(func() { copyImage = prev })
	return &copied
}

func testImage() *screenshot.CapturedImage {
	return &screenshot.CapturedImage{Bitmap: image.NewRGBA(image.Rect(0, 0, 2, 2))}
}

func TestClipboardTarget(t *testing.T) {
	copied := stubClipboard(t)
	if err := (ClipboardTarget{}).OnSuccess(testImage()); err != nil {
		t.Fatalf("OnSuccess: %v", err)
	}
	if len(*copied) != 1 || !bytes.HasPrefix((*copied)[0], []byte("\x89PNG")) {
		t.Fatalf("expected one PNG on the clipboard, got %d writes", len(*copied))
	}
}

func TestStdoutTarget(t *testing.T) {
	var buf bytes.Buffer
	if err := (StdoutTarget{Writer: &buf}).OnSuccess(testImage()); err != nil {
		t.Fatalf("OnSuccess: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Fatal("expected PNG bytes on the writer")
	}
	if err := (StdoutTarget{Writer: &buf}).OnSuccess(&screenshot.CapturedImage{}); err == nil {
		t.Fatal("expected error for a capture without bitmap")
	}
}

func TestDelegatedTarget(t *testing.T) {
	t.Run("stdout mode returns bytes", func(t *testing.T) {
		copied := stubClipboard(t)
		conn := &fakeConn{}
		if err := (DelegatedTarget{Conn: conn, OutputToStdout: true}).OnSuccess(testImage()); err != nil {
			t.Fatalf("OnSuccess: %v", err)
		}
		if !conn.ok || !bytes.HasPrefix(conn.success, []byte("\x89PNG")) {
			t.Fatal("expected PNG payload in the response")
		}
		if len(*copied) != 0 {
			t.Fatal("stdout mode must not touch the clipboard")
		}
	})

	t.Run("clipboard mode copies locally", func(t *testing.T) {
		copied := stubClipboard(t)
		conn := &fakeConn{}
		if err := (DelegatedTarget{Conn: conn}).OnSuccess(testImage()); err != nil {
			t.Fatalf("OnSuccess: %v", err)
		}
		if !conn.ok || len(conn.success) != 0 || len(*copied) != 1 {
			t.Fatalf("expected empty success and one clipboard write, got %+v", conn)
		}
	})

	t.Run("failure", func(t *testing.T) {
		conn := &fakeConn{}
		_ = (DelegatedTarget{Conn: conn}).OnFailure(ErrSelectionCancelled)
		if conn.errMsg != "selection cancelled" {
			t.Fatalf("errMsg = %q", conn.errMsg)
		}
		_ = (DelegatedTarget{Conn: conn}).OnFailure(nil)
		if conn.errMsg != "unknown session error" {
			t.Fatalf("errMsg = %q", conn.errMsg)
		}
	})

	t.Run("missing connection", func(t *testing.T) {
		err := (DelegatedTarget{}).OnSuccess(testImage())
		if err == nil || errors.Is(err, ErrSelectionCancelled) {
			t.Fatalf("unexpected error %v", err)
		}
	})
}
