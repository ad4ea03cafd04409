package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"screen-region-capture/src/singleinstance"
)

type stressOptions struct {
	n        int
	mode     string
	deadline time.Duration
}

type counts struct {
	ok, busy, cancelled, notDelegated, err int32
}

func (c *counts) String() string {
	return fmt.Sprintf("ok=%d busy=%d cancelled=%d not_delegated=%d err=%d",
		atomic.LoadInt32(&c.ok), atomic.LoadInt32(&c.busy), atomic.LoadInt32(&c.cancelled),
		atomic.LoadInt32(&c.notDelegated), atomic.LoadInt32(&c.err))
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	return cmd.Execute()
}

func newRootCmd(opts *stressOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stress-runonce",
		Short:         "Stress test run-once delegation and the busy guard",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseMode(opts.mode)
			if err != nil {
				return err
			}
			newClient := func() client { return singleinstance.NewClient() }
			return runWithOptions(*opts, mode, newClient, os.Stdout)
		},
	}

	cmd.Flags().IntVar(&opts.n, "n", 50, "number of clients to launch")
	cmd.Flags().StringVar(&opts.mode, "mode", "std", "std|clip|retry: run-once-std (stdout), run-once (clipboard) or retry")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 5*time.Second, "per-client timeout")

	return cmd
}

type client interface {
	TryRunOnce(ctx context.Context, mode singleinstance.Mode) (bool, []byte, error)
}

func parseMode(s string) (singleinstance.Mode, error) {
	switch s {
	case "std":
		return singleinstance.ModeStdout, nil
	case "clip":
		return singleinstance.ModeClipboard, nil
	case "retry":
		return singleinstance.ModeRetry, nil
	}
	return 0, fmt.Errorf("unknown mode %q (want std, clip or retry)", s)
}

func runWithOptions(opts stressOptions, mode singleinstance.Mode, newClient func() client, out io.Writer) error {
	var wg sync.WaitGroup
	var c counts

	start := time.Now()
	for i := 0; i < opts.n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), opts.deadline)
			defer cancel()
			delegated, _, err := newClient().TryRunOnce(ctx, mode)
			c.record(delegated, err)
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)
	fmt.Fprintf(out, "launched=%d %s elapsed=%s\n", opts.n, &c, elapsed)
	return nil
}

func (c *counts) record(delegated bool, err error) {
	switch {
	case err != nil:
		msg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(msg, "busy"):
			atomic.AddInt32(&c.busy, 1)
		case strings.Contains(msg, "cancelled"):
			atomic.AddInt32(&c.cancelled, 1)
		default:
			atomic.AddInt32(&c.err, 1)
		}
	case delegated:
		atomic.AddInt32(&c.ok, 1)
	default:
		atomic.AddInt32(&c.notDelegated, 1)
	}
}
