package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"screen-region-capture/src/config"
	"screen-region-capture/src/eventloop"
	"screen-region-capture/src/gui"
	"screen-region-capture/src/logutil"
	"screen-region-capture/src/overlay"
	"screen-region-capture/src/runtimeinit"
	"screen-region-capture/src/selection"
	"screen-region-capture/src/session"
	"screen-region-capture/src/singleinstance"
	"screen-region-capture/src/tray"
)

const appTitle = "Screen Region Capture"

type mainOptions struct {
	runOnce    bool
	runOnceStd bool
	retry      bool
	hotkey     string
	scale      float64
}

// runOnceClient is the part of singleinstance.Client used for delegation.
type runOnceClient interface {
	TryRunOnce(ctx context.Context, mode singleinstance.Mode) (bool, []byte, error)
}

// stdout receives PNG bytes in --run-once-std mode.
var stdout io.Writer = os.Stdout

func main() {
	// DPI awareness must be set before any window exists or metrics are read.
	enableDPIAwareness()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := normalizeLegacyArgs(os.Args)
	if len(args) == 0 {
		args = []string{"screen-region-capture"}
	}
	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "screen-region-capture",
		Short:         "Select a screen region and capture it",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithOptions(*opts)
		},
	}

	cmd.Flags().BoolVar(&opts.runOnce, "run-once", false, "Capture one region to the clipboard and exit")
	cmd.Flags().BoolVar(&opts.runOnceStd, "run-once-std", false, "Capture one region and write the PNG to stdout")
	cmd.Flags().BoolVar(&opts.retry, "retry", false, "Ask the resident instance to repeat its last capture")
	cmd.Flags().StringVar(&opts.hotkey, "hotkey", "", "Override the HOTKEY setting")
	cmd.Flags().Float64Var(&opts.scale, "scale", 0, "Override DISPLAY_SCALE_FACTOR")
	cmd.MarkFlagsMutuallyExclusive("run-once", "run-once-std", "retry")

	return cmd
}

// normalizeLegacyArgs maps Go-style single dash long flags to GNU form.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		if !strings.HasPrefix(arg, "-") || strings.HasPrefix(arg, "--") {
			continue
		}
		name := strings.TrimPrefix(arg, "-")
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			name = name[:eq]
		}
		switch name {
		case "run-once", "run-once-std", "retry", "hotkey", "scale":
			normalized[i] = "-" + arg
		}
	}

	return normalized
}

func runWithOptions(opts mainOptions) error {
	loadOptions := config.LoadOptions{
		HotkeyOverride:      opts.hotkey,
		ScaleFactorOverride: opts.scale,
	}

	if !opts.runOnce && !opts.runOnceStd && !opts.retry {
		return runResident(loadOptions)
	}

	// Load .env early so SINGLEINSTANCE_PORT_* apply before the delegation scan.
	_, _ = config.LoadWithOptions(loadOptions)
	client := singleinstance.NewClient()

	if opts.retry {
		return handleRunOnceWithDelegation(singleinstance.ModeRetry, client, nil)
	}

	mode := singleinstance.ModeClipboard
	if opts.runOnceStd {
		mode = singleinstance.ModeStdout
	}
	var standaloneErr error
	err := handleRunOnceWithDelegation(mode, client, func() {
		standaloneErr = runStandalone(mode, loadOptions)
	})
	if err != nil {
		return err
	}
	return standaloneErr
}

// handleRunOnceWithDelegation asks a resident to serve the request and calls
// fallback when none answers. An error reported by the resident is returned
// as is. A nil fallback means the mode needs a resident.
func handleRunOnceWithDelegation(mode singleinstance.Mode, client runOnceClient, fallback func()) error {
	delegated, payload, err := client.TryRunOnce(context.Background(), mode)
	switch {
	case delegated && err != nil:
		return err
	case delegated:
		log.Printf("Delegated %s request to resident", mode)
		if mode == singleinstance.ModeStdout {
			_, err := stdout.Write(payload)
			return err
		}
		return nil
	case err != nil:
		log.Printf("Delegation error: %v; falling back to standalone", err)
	default:
		log.Printf("No resident detected (not delegated), running standalone")
	}
	if fallback == nil {
		return errors.New("no resident instance is running, nothing to retry")
	}
	fallback()
	return nil
}

// newLoop wires an overlay host and an event loop to each other. The host
// posts input into the loop, which drives the host's surfaces.
func newLoop(rt *runtimeinit.Runtime, srv singleinstance.Server) (gui.Host, *eventloop.Loop, error) {
	var loop *eventloop.Loop
	host, err := gui.NewHost(func(ev selection.Event) { loop.Post(ev) })
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create overlay host: %w", err)
	}
	loop = eventloop.New(rt.Config, eventloop.Deps{
		Host:     host,
		Displays: rt.Displays,
		Renderer: overlay.NewRenderer(overlay.DefaultStyle()),
		Capturer: rt.Executor,
		Server:   srv,
	})
	return host, loop, nil
}

func runStandalone(mode singleinstance.Mode, loadOptions config.LoadOptions) error {
	rt, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:   loadOptions,
		SetupLogging:  logutil.Setup,
		SkipClipboard: mode == singleinstance.ModeStdout,
	})
	if err != nil {
		return err
	}

	var sink session.ResultTarget = session.ClipboardTarget{}
	if mode == singleinstance.ModeStdout {
		sink = session.StdoutTarget{Writer: stdout}
	}

	host, loop, err := newLoop(rt, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cancelOnSignal(cancel)

	errCh := make(chan error, 1)
	go func() {
		errCh <- loop.RunOnce(ctx, sink)
		cancel()
	}()

	if err := host.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("overlay host stopped: %v", err)
	}
	cancel()
	return <-errCh
}

func runResident(loadOptions config.LoadOptions) error {
	// Load .env early so SINGLEINSTANCE_PORT_* are available for pre-flight.
	_, _ = config.LoadWithOptions(loadOptions)
	detectCtx, detectCancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	log.Printf("Pre-flight: scanning ports %s", singleinstance.CurrentPortRange())
	port, running := singleinstance.DetectResidentPort(detectCtx)
	detectCancel()
	if running {
		log.Printf("Pre-flight: resident answered on port %d", port)
		return fmt.Errorf("one is already running on port %d", port)
	}

	rt, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:                 loadOptions,
		SetupLogging:                logutil.Setup,
		ShowBlockingPermissionError: true,
	})
	if err != nil {
		return err
	}
	cfg := rt.Config
	logMonitorConfiguration()

	log.Printf("%s initialized", appTitle)
	log.Printf("Hotkey: %s", cfg.Hotkey)
	log.Printf("Capture deadline: %ds", cfg.CaptureDeadlineSec)
	if cfg.EnvPath != "" {
		log.Printf("Config: %s", cfg.EnvPath)
	}

	tray.SetAboutHotkey(cfg.Hotkey)

	host, loop, err := newLoop(rt, singleinstance.NewServer())
	if err != nil {
		return err
	}
	tooltip := fmt.Sprintf("%s - Press %s to capture", appTitle, cfg.Hotkey)
	loop.SetDefaultTooltip(tooltip)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trayIcon, err := tray.New(tray.Config{
		Title:     appTitle,
		Tooltip:   tooltip,
		OnCapture: loop.Trigger,
		OnRetry:   loop.RetryLastCapture,
		OnExit:    cancel,
	})
	if err != nil {
		return err
	}
	go trayIcon.Run()
	defer trayIcon.Destroy()

	listener, err := loop.StartHotkey(cfg.Hotkey)
	if err != nil {
		log.Printf("Hotkey %q unavailable: %v", cfg.Hotkey, err)
	} else if listener != nil {
		defer listener.Stop()
	}

	cancelOnSignal(cancel)

	loopErr := make(chan error, 1)
	go func() {
		err := loop.Run(ctx)
		cancel()
		loopErr <- err
	}()

	hostErr := host.Run(ctx)
	cancel()
	if err := <-loopErr; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("event loop stopped: %w", err)
	}
	if hostErr != nil && !errors.Is(hostErr, context.Canceled) {
		return hostErr
	}
	return nil
}

// cancelOnSignal cancels on SIGINT/SIGTERM.
func cancelOnSignal(cancel context.CancelFunc) {
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()
}
