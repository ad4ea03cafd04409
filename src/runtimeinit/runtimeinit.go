package runtimeinit

import (
	"fmt"
	"log"

	"screen-region-capture/src/clipboard"
	"screen-region-capture/src/config"
	"screen-region-capture/src/display"
	"screen-region-capture/src/notification"
	"screen-region-capture/src/screenshot"
)

type Options struct {
	LoadOptions  config.LoadOptions
	SetupLogging func(bool)
	// SkipClipboard leaves the clipboard uninitialized (stdout-only runs).
	SkipClipboard bool
	// ShowBlockingPermissionError raises a modal dialog when capture is denied.
	ShowBlockingPermissionError bool
}

// Runtime bundles what every entry point needs to capture.
type Runtime struct {
	Config   *config.Config
	Displays *display.KbinaniEnumerator
	Executor *screenshot.Executor
}

func Bootstrap(opts Options) (*Runtime, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg.EnableFileLogging)
	}

	displays := display.NewEnumerator(cfg.DisplayScaleFactor)
	current := displays.CurrentDisplays()
	if len(current) == 0 {
		return nil, fmt.Errorf("no active displays found")
	}
	for _, d := range current {
		log.Printf("Display %s", d)
	}

	permission := &screenshot.ProbePermission{Displays: displays}
	if !permission.Granted() {
		if opts.ShowBlockingPermissionError {
			notification.ShowBlockingError("Screen capture unavailable",
				"Screen capture permission is not granted.\n\nGrant screen recording access and start the tool again.")
		}
		return nil, fmt.Errorf("screen capture permission denied")
	}

	executor := screenshot.NewExecutor(permission, displays, screenshot.KbinaniPlatform{}, screenshot.Options{
		MaxDimension: cfg.MaxCaptureDimension,
	})

	if !opts.SkipClipboard {
		if err := clipboard.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialize clipboard: %w", err)
		}
	}

	return &Runtime{Config: cfg, Displays: displays, Executor: executor}, nil
}
