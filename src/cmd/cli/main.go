package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"screen-region-capture/src/config"
	"screen-region-capture/src/coords"
	"screen-region-capture/src/display"
	"screen-region-capture/src/geometry"
	"screen-region-capture/src/runtimeinit"
	"screen-region-capture/src/screenshot"
)

type cliOptions struct {
	verbose bool
	scale   float64
}

type displaysOptions struct {
	jsonOutput bool
}

type captureOptions struct {
	displayID int
	rect      string
	space     string
	out       string
	timeout   time.Duration
}

// capturer is the part of screenshot.Executor the capture command drives.
type capturer interface {
	Capture(ctx context.Context, rect geometry.CaptureRect, d display.Descriptor) screenshot.Outcome
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(normalizeLegacyArgs(os.Args))
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"region-capture"}
	}

	opts := &cliOptions{}
	cmd := newRootCmd(opts, os.Stdout)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions, stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "region-capture",
		Short:         "Capture display regions without the overlay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	cmd.PersistentFlags().Float64Var(&opts.scale, "scale", 0, "Override DISPLAY_SCALE_FACTOR")

	cmd.AddCommand(newDisplaysCmd(opts, stdout), newCaptureCmd(opts, stdout))
	return cmd
}

func newDisplaysCmd(root *cliOptions, stdout io.Writer) *cobra.Command {
	opts := &displaysOptions{}
	cmd := &cobra.Command{
		Use:   "displays",
		Short: "List connected displays",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(*root)
			if err != nil {
				return err
			}
			return writeDisplays(stdout, rt.Displays.CurrentDisplays(), opts.jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output displays as JSON")
	return cmd
}

func newCaptureCmd(root *cliOptions, stdout io.Writer) *cobra.Command {
	opts := &captureOptions{}
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a rectangle of one display to PNG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(*root)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
			defer cancel()
			img, err := captureRegion(ctx, rt.Executor, rt.Displays.CurrentDisplays(), *opts)
			if err != nil {
				return err
			}
			return writePNG(stdout, opts.out, img)
		},
	}
	cmd.Flags().IntVar(&opts.displayID, "display", -1, "Display ID (default: primary)")
	cmd.Flags().StringVar(&opts.rect, "rect", "", "Rectangle as x,y,w,h in points")
	cmd.Flags().StringVar(&opts.space, "space", "capture", "Space of --rect: capture (top-left origin) or interaction (bottom-left origin)")
	cmd.Flags().StringVar(&opts.out, "out", "-", "Output PNG path ('-' for stdout)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Capture timeout")
	_ = cmd.MarkFlagRequired("rect")
	return cmd
}

func bootstrap(opts cliOptions) (*runtimeinit.Runtime, error) {
	// Configure logging BEFORE any other operations.
	setupLogging := func(bool) {
		if opts.verbose {
			log.SetOutput(os.Stderr)
			return
		}
		log.SetOutput(io.Discard)
	}
	setupLogging(false)
	return runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:   config.LoadOptions{ScaleFactorOverride: opts.scale},
		SetupLogging:  setupLogging,
		SkipClipboard: true,
	})
}

func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range []string{"json", "verbose", "display", "rect", "space", "out", "scale", "timeout"} {
			if arg == "-"+name || strings.HasPrefix(arg, "-"+name+"=") {
				normalized[i] = "-" + arg
				break
			}
		}
	}

	return normalized
}

// parseRect reads "x,y,w,h".
func parseRect(s string) ([4]float64, error) {
	var out [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return out, fmt.Errorf("rect %q: expected x,y,w,h", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, fmt.Errorf("rect %q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}

func resolveDisplay(displays []display.Descriptor, id int) (display.Descriptor, error) {
	if id < 0 {
		if d, ok := display.Primary(displays); ok {
			return d, nil
		}
		return display.Descriptor{}, fmt.Errorf("no active displays found")
	}
	if d, ok := display.Find(displays, id); ok {
		return d, nil
	}
	return display.Descriptor{}, fmt.Errorf("display %d not found", id)
}

func captureRegion(ctx context.Context, c capturer, displays []display.Descriptor, opts captureOptions) (*screenshot.CapturedImage, error) {
	d, err := resolveDisplay(displays, opts.displayID)
	if err != nil {
		return nil, err
	}
	v, err := parseRect(opts.rect)
	if err != nil {
		return nil, err
	}

	var rect geometry.CaptureRect
	switch opts.space {
	case "capture":
		rect = geometry.CaptureRect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
	case "interaction":
		rect = coords.ToCaptureSpace(geometry.InteractionRect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, d)
	default:
		return nil, fmt.Errorf("unknown space %q (want capture or interaction)", opts.space)
	}
	log.Printf("Capturing %v on %s", rect, d)

	out := c.Capture(ctx, rect, d)
	if !out.OK() {
		if out.Err != nil {
			return nil, out.Err
		}
		return nil, fmt.Errorf("capture returned no image")
	}
	return out.Image, nil
}

func writePNG(stdout io.Writer, path string, img *screenshot.CapturedImage) error {
	data, err := img.PNG()
	if err != nil {
		return err
	}
	if path == "" || path == "-" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

type displayJSON struct {
	ID          int     `json:"id"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	ScaleFactor float64 `json:"scale_factor"`
	PixelWidth  int     `json:"pixel_width"`
	PixelHeight int     `json:"pixel_height"`
	Primary     bool    `json:"primary"`
}

func writeDisplays(w io.Writer, displays []display.Descriptor, jsonOutput bool) error {
	if !jsonOutput {
		for _, d := range displays {
			fmt.Fprintln(w, d.String())
		}
		return nil
	}

	out := make([]displayJSON, 0, len(displays))
	for _, d := range displays {
		pw, ph := d.PixelSize()
		out = append(out, displayJSON{
			ID:          d.ID,
			X:           d.Frame.X,
			Y:           d.Frame.Y,
			Width:       d.Frame.Width,
			Height:      d.Frame.Height,
			ScaleFactor: d.ScaleFactor,
			PixelWidth:  pw,
			PixelHeight: ph,
			Primary:     d.Primary,
		})
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}
