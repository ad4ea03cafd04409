package singleinstance

import (
	"fmt"
	"os"
	"strconv"
)

const (
	PortStartEnvVar = "SINGLEINSTANCE_PORT_START"
	PortEndEnvVar   = "SINGLEINSTANCE_PORT_END"

	defaultPortStart = 49600
	defaultPortEnd   = 49650
	minPort          = 1024
	maxPort          = 65535
)

// PortRange is an inclusive loopback port range. The resident binds Start;
// clients scan the whole range.
type PortRange struct {
	Start int
	End   int
}

func (r PortRange) String() string { return fmt.Sprintf("%d-%d", r.Start, r.End) }

// Len returns the number of ports in the range.
func (r PortRange) Len() int { return r.End - r.Start + 1 }

// CurrentPortRange reads the range from the environment. Invalid values fall
// back to the defaults; the result is clamped to [1024, 65535] and ordered.
func CurrentPortRange() PortRange {
	return portRangeFrom(os.Getenv)
}

func portRangeFrom(getenv func(string) string) PortRange {
	r := PortRange{Start: defaultPortStart, End: defaultPortEnd}
	if n, err := strconv.Atoi(getenv(PortStartEnvVar)); err == nil {
		r.Start = n
	}
	if n, err := strconv.Atoi(getenv(PortEndEnvVar)); err == nil {
		r.End = n
	}
	r.Start = min(max(r.Start, minPort), maxPort)
	r.End = min(max(r.End, minPort), maxPort)
	if r.End < r.Start {
		r.Start, r.End = r.End, r.Start
	}
	return r
}
