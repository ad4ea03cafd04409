package notification

import (
	"log"
	"sync"
	"unicode/utf8"
)

const maxMessageRunes = 200

// queue serializes notices so a burst of failures does not stack dialogs.
var (
	queue     chan notice
	queueOnce sync.Once
)

type notice struct {
	title   string
	message string
}

// show is swapped in tests.
var show = showPlatformNotice

// ShowNotice queues a non-blocking notice. Notices beyond the queue depth are
// dropped.
func ShowNotice(title, message string) {
	queueOnce.Do(func() {
		queue = make(chan notice, 4)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("NOTIFY: notice goroutine panic: %v", r)
				}
			}()
			for n := range queue {
				show(n.title, n.message)
			}
		}()
	})

	n := notice{title: title, message: Truncate(message, maxMessageRunes)}
	select {
	case queue <- n:
	default:
		log.Printf("NOTIFY: queue full, dropping %q", title)
	}
}

// ShowCaptureFailure reports a failed capture to the user.
func ShowCaptureFailure(message string) {
	ShowNotice("Screen capture failed", message)
}

// ShowBusy tells the user a capture is already running.
func ShowBusy() {
	ShowNotice("Screen capture busy", "A capture is already in progress.")
}

// Truncate shortens text to max runes, appending "..." when cut.
func Truncate(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max]) + "..."
}
