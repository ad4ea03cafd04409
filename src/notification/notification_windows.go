//go:build windows

package notification

import (
	"log"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	mbOK            = 0x00000000
	mbIconError     = 0x00000010
	mbIconWarning   = 0x00000030
	mbSystemModal   = 0x00001000
	mbSetForeground = 0x00010000
)

var (
	user32         = windows.NewLazySystemDLL("user32.dll")
	procMessageBox = user32.NewProc("MessageBoxW")
)

// ShowBlockingError displays a modal, blocking error dialog and returns after user dismisses it.
func ShowBlockingError(title, message string) {
	messageBox(title, message, mbOK|mbIconError|mbSystemModal)
}

func showPlatformNotice(title, message string) {
	messageBox(title, message, mbOK|mbIconWarning|mbSetForeground)
}

func messageBox(title, message string, flags uintptr) {
	titlePtr, err := windows.UTF16PtrFromString(title)
	if err != nil {
		log.Printf("NOTIFY: bad title %q: %v", title, err)
		return
	}
	msgPtr, err := windows.UTF16PtrFromString(message)
	if err != nil {
		log.Printf("NOTIFY: bad message: %v", err)
		return
	}
	procMessageBox.Call(0, uintptr(unsafe.Pointer(msgPtr)), uintptr(unsafe.Pointer(titlePtr)), flags)
}
