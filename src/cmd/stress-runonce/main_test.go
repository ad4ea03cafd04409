package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"screen-region-capture/src/singleinstance"
)

func TestNewRootCmdDefaults(t *testing.T) {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	if err := cmd.ParseFlags([]string{}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if opts.n != 50 {
		t.Fatalf("Expected default n=50, got %d", opts.n)
	}
	if opts.mode != "std" {
		t.Fatalf("Expected default mode=std, got %q", opts.mode)
	}
	if opts.deadline != 5*time.Second {
		t.Fatalf("Expected default deadline=5s, got %v", opts.deadline)
	}
}

func TestNewRootCmdCustomFlags(t *testing.T) {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	if err := cmd.ParseFlags([]string{"--n", "3", "--mode", "retry", "--deadline", "7s"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if opts.n != 3 {
		t.Fatalf("Expected n=3, got %d", opts.n)
	}
	if opts.mode != "retry" {
		t.Fatalf("Expected mode=retry, got %q", opts.mode)
	}
	if opts.deadline != 7*time.Second {
		t.Fatalf("Expected deadline=7s, got %v", opts.deadline)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    singleinstance.Mode
		wantErr bool
	}{
		{in: "std", want: singleinstance.ModeStdout},
		{in: "clip", want: singleinstance.ModeClipboard},
		{in: "retry", want: singleinstance.ModeRetry},
		{in: "video", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseMode(%q) error = %v", tt.in, err)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("parseMode(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

// firstWinsClient lets the first request through and answers busy after.
type firstWinsClient struct {
	calls *int32
}

func (c firstWinsClient) TryRunOnce(ctx context.Context, mode singleinstance.Mode) (bool, []byte, error) {
	if atomic.AddInt32(c.calls, 1) == 1 {
		return true, nil, nil
	}
	return true, nil, errors.New("Busy, please retry")
}

func TestRunWithOptionsCountsBusy(t *testing.T) {
	var calls int32
	var out bytes.Buffer
	opts := stressOptions{n: 5, deadline: time.Second}
	err := runWithOptions(opts, singleinstance.ModeStdout, func() client { return firstWinsClient{calls: &calls} }, &out)
	if err != nil {
		t.Fatalf("runWithOptions: %v", err)
	}
	if !strings.Contains(out.String(), "launched=5 ok=1 busy=4 cancelled=0 not_delegated=0 err=0") {
		t.Fatalf("unexpected summary %q", out.String())
	}
}

func TestCountsRecord(t *testing.T) {
	var c counts
	c.record(false, nil)
	c.record(true, errors.New("selection cancelled"))
	c.record(false, errors.New("connection refused"))
	if got := c.String(); got != "ok=0 busy=0 cancelled=1 not_delegated=1 err=1" {
		t.Fatalf("counts = %q", got)
	}
}
