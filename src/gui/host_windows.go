//go:build windows

package gui

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"runtime"
	"syscall"
	"unsafe"

	"github.com/lxn/win"
	"golang.org/x/sys/windows"

	"screen-region-capture/src/display"
	"screen-region-capture/src/selection"
)

const (
	wmInvoke  = win.WM_APP + 1
	ulwAlpha  = 0x00000002
	acSrcOver = 0x00
	// Fully transparent layered pixels are click-through; the selection
	// cutout keeps alpha 1 so drags inside it still reach the overlay.
	hitTestAlpha = 1
)

var (
	user32                       = windows.NewLazySystemDLL("user32.dll")
	procUpdateLayeredWindow      = user32.NewProc("UpdateLayeredWindow")
	procPostThreadMessage        = user32.NewProc("PostThreadMessageW")
	procAllowSetForegroundWindow = user32.NewProc("AllowSetForegroundWindow")

	// activeHost routes window procedure callbacks; there is one host per process.
	activeHost *windowsHost
)

var taskbarClasses = []string{"Shell_TrayWnd", "Shell_SecondaryTrayWnd"}

type windowsHost struct {
	post  PostFunc
	ready chan struct{}
	done  chan struct{}
	calls chan func()

	// Owned by the UI thread.
	thread    uint32
	className *uint16
	cross     win.HCURSOR
	arrow     win.HCURSOR
	surfaces  map[win.HWND]*windowSurface
	taskbars  []win.HWND
}

// NewHost returns the layered-window overlay host.
func NewHost(post PostFunc) (Host, error) {
	if activeHost != nil {
		return nil, errors.New("overlay host already created")
	}
	h := &windowsHost{
		post:     post,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		calls:    make(chan func(), 16),
		surfaces: make(map[win.HWND]*windowSurface),
	}
	activeHost = h
	return h, nil
}

func (h *windowsHost) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(h.done)

	h.thread = win.GetCurrentThreadId()
	h.cross = win.LoadCursor(0, win.MAKEINTRESOURCE(win.IDC_CROSS))
	h.arrow = win.LoadCursor(0, win.MAKEINTRESOURCE(win.IDC_ARROW))
	h.className = syscall.StringToUTF16Ptr("ScreenRegionCaptureOverlay")
	wndClass := win.WNDCLASSEX{
		CbSize:        uint32(unsafe.Sizeof(win.WNDCLASSEX{})),
		Style:         win.CS_HREDRAW | win.CS_VREDRAW,
		LpfnWndProc:   syscall.NewCallback(overlayWndProc),
		HInstance:     win.GetModuleHandle(nil),
		HCursor:       h.cross,
		LpszClassName: h.className,
	}
	if atom := win.RegisterClassEx(&wndClass); atom == 0 {
		return fmt.Errorf("failed to register overlay window class")
	}
	defer win.UnregisterClass(h.className)
	close(h.ready)
	log.Printf("OVERLAY: UI thread %d ready", h.thread)

	go func() {
		<-ctx.Done()
		procPostThreadMessage.Call(uintptr(h.thread), win.WM_QUIT, 0, 0)
	}()

	var msg win.MSG
	for {
		ret := win.GetMessage(&msg, 0, 0, 0)
		if ret == 0 { // WM_QUIT
			break
		}
		if ret == -1 {
			log.Printf("OVERLAY: GetMessage error")
			break
		}
		if msg.HWnd == 0 && msg.Message == wmInvoke {
			h.drain()
			continue
		}
		win.TranslateMessage(&msg)
		win.DispatchMessage(&msg)
	}

	for hwnd := range h.surfaces {
		win.DestroyWindow(hwnd)
	}
	h.surfaces = map[win.HWND]*windowSurface{}
	h.showTaskbars()
	return ctx.Err()
}

func (h *windowsHost) drain() {
	for {
		select {
		case fn := <-h.calls:
			fn()
		default:
			return
		}
	}
}

// invoke runs fn on the UI thread and waits for it. A panic in fn is
// returned as an error.
func (h *windowsHost) invoke(fn func() error) error {
	select {
	case <-h.ready:
	case <-h.done:
		return errHostStopped
	}
	result := make(chan error, 1)
	call := func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("overlay UI call panicked: %v", r)
			}
		}()
		result <- fn()
	}
	select {
	case h.calls <- call:
	case <-h.done:
		return errHostStopped
	}
	if r, _, err := procPostThreadMessage.Call(uintptr(h.thread), wmInvoke, 0, 0); r == 0 {
		log.Printf("OVERLAY: failed to wake UI thread: %v", err)
	}
	select {
	case err := <-result:
		return err
	case <-h.done:
		return errHostStopped
	}
}

func (h *windowsHost) CreateSurface(d display.Descriptor) (selection.Surface, error) {
	s := &windowSurface{host: h, display: d}
	err := h.invoke(func() error {
		b := pixelBounds(d)
		hwnd := win.CreateWindowEx(
			win.WS_EX_TOPMOST|win.WS_EX_TOOLWINDOW|win.WS_EX_LAYERED,
			h.className,
			syscall.StringToUTF16Ptr("Select Region - drag to select, ESC cancels"),
			win.WS_POPUP,
			int32(b.Min.X), int32(b.Min.Y), int32(b.Dx()), int32(b.Dy()),
			0, 0, win.GetModuleHandle(nil), nil,
		)
		if hwnd == 0 {
			return fmt.Errorf("failed to create overlay window for %v", d)
		}
		s.hwnd = hwnd
		h.surfaces[hwnd] = s
		win.ShowWindow(hwnd, win.SW_SHOWNA)
		log.Printf("OVERLAY: window %v covers %v", hwnd, b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (h *windowsHost) SuppressChrome() error {
	return h.invoke(func() error {
		for _, class := range taskbarClasses {
			hwnd := win.FindWindow(syscall.StringToUTF16Ptr(class), nil)
			if hwnd == 0 {
				continue
			}
			win.ShowWindow(hwnd, win.SW_HIDE)
			h.taskbars = append(h.taskbars, hwnd)
		}
		if len(h.taskbars) == 0 {
			return errors.New("taskbar window not found")
		}
		return nil
	})
}

func (h *windowsHost) RestoreChrome() error {
	return h.invoke(func() error {
		h.showTaskbars()
		return nil
	})
}

func (h *windowsHost) showTaskbars() {
	for _, hwnd := range h.taskbars {
		win.ShowWindow(hwnd, win.SW_SHOW)
	}
	h.taskbars = nil
}

func (h *windowsHost) RestoreCursor() {
	if err := h.invoke(func() error {
		win.SetCursor(h.arrow)
		return nil
	}); err != nil {
		log.Printf("OVERLAY: restore cursor: %v", err)
	}
}

type windowSurface struct {
	host    *windowsHost
	hwnd    win.HWND
	display display.Descriptor
	// pressed is owned by the UI thread.
	pressed bool
}

func (s *windowSurface) Present(frame *image.RGBA) error {
	w, hgt := frame.Bounds().Dx(), frame.Bounds().Dy()
	bgra := make([]byte, w*hgt*4)
	toBGRA(frame, bgra, hitTestAlpha)
	return s.host.invoke(func() error {
		return updateLayered(s.hwnd, bgra, int32(w), int32(hgt))
	})
}

func (s *windowSurface) Focus() error {
	return s.host.invoke(func() error {
		procAllowSetForegroundWindow.Call(uintptr(os.Getpid()))
		if !win.SetForegroundWindow(s.hwnd) {
			log.Printf("OVERLAY: SetForegroundWindow refused for %v", s.hwnd)
		}
		win.BringWindowToTop(s.hwnd)
		win.SetFocus(s.hwnd)
		return nil
	})
}

func (s *windowSurface) Dismiss() error {
	return s.host.invoke(func() error {
		delete(s.host.surfaces, s.hwnd)
		if s.pressed {
			win.ReleaseCapture()
		}
		if !win.DestroyWindow(s.hwnd) {
			return fmt.Errorf("failed to destroy overlay window %v", s.hwnd)
		}
		return nil
	})
}

func updateLayered(hwnd win.HWND, bgra []byte, w, h int32) error {
	screenDC := win.GetDC(0)
	defer win.ReleaseDC(0, screenDC)
	memDC := win.CreateCompatibleDC(screenDC)
	defer win.DeleteDC(memDC)

	header := win.BITMAPINFOHEADER{
		BiSize:        uint32(unsafe.Sizeof(win.BITMAPINFOHEADER{})),
		BiWidth:       w,
		BiHeight:      -h, // top-down
		BiPlanes:      1,
		BiBitCount:    32,
		BiCompression: win.BI_RGB,
	}
	var bits unsafe.Pointer
	hBitmap := win.CreateDIBSection(memDC, &header, win.DIB_RGB_COLORS, &bits, 0, 0)
	if hBitmap == 0 {
		return errors.New("CreateDIBSection failed")
	}
	defer win.DeleteObject(win.HGDIOBJ(hBitmap))
	oldBitmap := win.SelectObject(memDC, win.HGDIOBJ(hBitmap))
	defer win.SelectObject(memDC, oldBitmap)

	copy(unsafe.Slice((*byte)(bits), len(bgra)), bgra)

	size := win.SIZE{CX: w, CY: h}
	var src win.POINT
	blend := win.BLENDFUNCTION{BlendOp: acSrcOver, SourceConstantAlpha: 255, AlphaFormat: win.AC_SRC_ALPHA}
	r, _, err := procUpdateLayeredWindow.Call(
		uintptr(hwnd), uintptr(screenDC), 0,
		uintptr(unsafe.Pointer(&size)), uintptr(memDC), uintptr(unsafe.Pointer(&src)),
		0, uintptr(unsafe.Pointer(&blend)), ulwAlpha,
	)
	if r == 0 {
		return fmt.Errorf("UpdateLayeredWindow: %v", err)
	}
	return nil
}

func overlayWndProc(hwnd win.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	h := activeHost
	var s *windowSurface
	if h != nil {
		s = h.surfaces[hwnd]
	}
	if s == nil {
		return win.DefWindowProc(hwnd, msg, wParam, lParam)
	}

	switch msg {
	case win.WM_LBUTTONDOWN:
		win.SetCapture(hwnd)
		s.pressed = true
		h.emit(s, selection.EventPointerDown, lParam)
		return 0
	case win.WM_MOUSEMOVE:
		if s.pressed {
			h.emit(s, selection.EventPointerDrag, lParam)
		}
		return 0
	case win.WM_LBUTTONUP:
		if s.pressed {
			win.ReleaseCapture()
			s.pressed = false
			h.emit(s, selection.EventPointerUp, lParam)
		}
		return 0
	case win.WM_RBUTTONDOWN:
		h.emit(s, selection.EventRightClick, lParam)
		return 0
	case win.WM_KEYDOWN:
		if wParam == win.VK_ESCAPE {
			h.emit(s, selection.EventEscape, 0)
		}
		return 0
	case win.WM_SETCURSOR:
		win.SetCursor(h.cross)
		return 1
	case win.WM_NCHITTEST:
		return uintptr(win.HTCLIENT)
	case win.WM_PAINT:
		var ps win.PAINTSTRUCT
		win.BeginPaint(hwnd, &ps)
		win.EndPaint(hwnd, &ps)
		return 0
	}
	return win.DefWindowProc(hwnd, msg, wParam, lParam)
}

// emit converts client pixel coordinates to interaction points and posts
// the event.
func (h *windowsHost) emit(s *windowSurface, kind selection.EventKind, lParam uintptr) {
	x := float64(win.GET_X_LPARAM(lParam))
	y := float64(win.GET_Y_LPARAM(lParam))
	h.post(selection.Event{
		Kind:      kind,
		Point:     toInteraction(x, y, s.display.ScaleFactor, s.display),
		DisplayID: s.display.ID,
	})
}
