package screenshot

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Stats counts executor activity. Safe for concurrent use.
type Stats struct {
	captures  atomic.Uint64
	failures  atomic.Uint64
	busy      atomic.Uint64
	totalNano atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Captures    uint64
	Failures    uint64
	Busy        uint64
	AvgDuration time.Duration
}

func (s *Stats) record(out Outcome, took time.Duration) {
	if out.Err != nil {
		if out.Err.Kind == KindBusy {
			s.busy.Add(1)
			return
		}
		s.failures.Add(1)
		return
	}
	s.captures.Add(1)
	s.totalNano.Add(took.Nanoseconds())
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Captures: s.captures.Load(),
		Failures: s.failures.Load(),
		Busy:     s.busy.Load(),
	}
	if snap.Captures > 0 {
		snap.AvgDuration = time.Duration(s.totalNano.Load() / int64(snap.Captures))
	}
	return snap
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf("%d captured, %d failed, %d busy, avg %s",
		s.Captures, s.Failures, s.Busy, s.AvgDuration.Round(time.Millisecond))
}
