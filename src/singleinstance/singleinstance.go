package singleinstance

// This file defines the API for single-instance ownership and run-once delegation.

import (
	"context"
	"fmt"
	"strings"
)

// Server owns the TCP endpoint and answers run-once requests.
type Server interface {
	// Start begins listening on the first port of the configured range and accepting client requests.
	Start(ctx context.Context) error
	// Port returns the bound TCP port, or 0 if not started.
	Port() int
	// Next returns the next accepted connection as a Conn, or ctx error.
	Next(ctx context.Context) (Conn, error)
	// Close releases ownership and stops accepting clients.
	Close() error
}

// Conn represents one client connection and exposes request + response API.
type Conn interface {
	// Request returns the parsed client request.
	Request() Request
	// RespondSuccess sends success. Stdout mode carries PNG bytes; other modes send nothing.
	RespondSuccess(payload []byte) error
	// RespondError sends an error with human-readable message.
	RespondError(msg string) error
	// Close closes the underlying connection.
	Close() error
}

// Mode selects what the resident does for a delegated request.
type Mode int

const (
	// ModeClipboard selects a region and copies the PNG to the clipboard.
	ModeClipboard Mode = iota
	// ModeStdout selects a region and returns the PNG to the client.
	ModeStdout
	// ModeRetry repeats the last capture and copies it to the clipboard.
	ModeRetry
)

var modeLines = map[Mode]string{
	ModeClipboard: "CLIPBOARD",
	ModeStdout:    "STDOUT",
	ModeRetry:     "RETRY",
}

func (m Mode) String() string {
	if s, ok := modeLines[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode reads a request line. Unknown lines fall back to clipboard mode.
func ParseMode(line string) (Mode, bool) {
	line = strings.TrimSpace(line)
	for m, s := range modeLines {
		if s == line {
			return m, true
		}
	}
	return ModeClipboard, false
}

// Request represents a single run-once client request.
type Request struct {
	Mode Mode
}

// OutputToStdout reports whether the client expects the image bytes back.
func (r Request) OutputToStdout() bool { return r.Mode == ModeStdout }

// Client attempts to delegate run-once invocation to a resident server.
type Client interface {
	// TryRunOnce scans the configured TCP range, performs handshake, and delegates to resident.
	// If no resident is found, returns delegated=false, err=nil.
	TryRunOnce(ctx context.Context, mode Mode) (delegated bool, payload []byte, err error)
}

// NewServer returns TCP implementation.
func NewServer() Server { return newTcpServer() }

// NewClient returns TCP implementation.
func NewClient() Client { return newTcpClient() }
