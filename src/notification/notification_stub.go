//go:build !windows

package notification

import (
	"fmt"
	"log"
	"os"
)

// ShowBlockingError has no dialog outside Windows; the message goes to
// stderr so a terminal user still sees why startup stopped.
func ShowBlockingError(title, message string) {
	log.Printf("NOTIFY: %s: %s", title, message)
	fmt.Fprintf(os.Stderr, "%s\n%s\n", title, message)
}

func showPlatformNotice(title, message string) {
	log.Printf("NOTIFY: %s: %s", title, message)
}
