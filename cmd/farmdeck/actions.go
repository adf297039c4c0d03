package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/frudas24/farmdeck/internal/config"
	"github.com/frudas24/farmdeck/internal/control"
	"github.com/frudas24/farmdeck/internal/geometry"
	"github.com/frudas24/farmdeck/internal/inventory"
	"github.com/frudas24/farmdeck/internal/provider"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// newHealthCmd builds the health command.
func newHealthCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health <udid>",
		Short: "Check that a device is reachable through the provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadClientConfig(root)
			if err != nil {
				return err
			}
			client, err := newProviderClient(cfg)
			if err != nil {
				return err
			}
			if err := client.Health(cmd.Context(), args[0]); err != nil {
				return describeProviderError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
			return nil
		},
	}
}

// newTapCmd builds the tap command.
func newTapCmd(root *rootOptions) *cobra.Command {
	var hold bool
	cmd := &cobra.Command{
		Use:   "tap <udid> <x> <y>",
		Short: "Tap a device at device pixel coordinates",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			nums, err := parseFloats(args[1:])
			if err != nil {
				return err
			}
			p := geometry.Point{X: nums[0], Y: nums[1]}
			g := control.Tap(p)
			if hold {
				g = control.LongPress(p)
			}
			return dispatchOnce(cmd, root, nil, args[0], g)
		},
	}
	cmd.Flags().BoolVar(&hold, "hold", false, "Touch and hold instead of tapping")
	return cmd
}

// newSwipeCmd builds the swipe command.
func newSwipeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "swipe <udid> <x> <y> <endX> <endY>",
		Short: "Swipe on a device between device pixel coordinates",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			nums, err := parseFloats(args[1:])
			if err != nil {
				return err
			}
			g := control.Swipe(geometry.Point{X: nums[0], Y: nums[1]}, geometry.Point{X: nums[2], Y: nums[3]})
			return dispatchOnce(cmd, root, nil, args[0], g)
		},
	}
}

type gestureOptions struct {
	down         string
	up           string
	screen       string
	canvasHeight float64
	dryRun       bool
}

// newGestureCmd builds the gesture command.
func newGestureCmd(root *rootOptions) *cobra.Command {
	opts := &gestureOptions{}
	cmd := &cobra.Command{
		Use:   "gesture <udid>",
		Short: "Classify a canvas down/up pair and send the resulting gesture",
		Example: `  farmdeck gesture pixel-7 --down 191.25,425,1000 --up 191.25,425,1100
  farmdeck gesture pixel-7 --screen 1080x2400 --down 10,10,0 --up 300,10,200 --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGesture(cmd, root, opts, args[0])
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.down, "down", "", "Pointer down as x,y,ts (canvas pixels, ms)")
	flags.StringVar(&opts.up, "up", "", "Pointer up as x,y,ts (canvas pixels, ms)")
	flags.StringVar(&opts.screen, "screen", "", "Device screen as WxH (defaults to the inventory entry)")
	flags.Float64Var(&opts.canvasHeight, "canvas-height", 0, "Rendered canvas height (defaults to CANVAS_HEIGHT)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Print the gesture without sending it")
	_ = cmd.MarkFlagRequired("down")
	_ = cmd.MarkFlagRequired("up")
	return cmd
}

// runGesture resolves the gesture in device space and dispatches it.
func runGesture(cmd *cobra.Command, root *rootOptions, opts *gestureOptions, udid string) error {
	cfg, err := loadClientConfig(root)
	if err != nil {
		return err
	}
	down, err := parseSample(opts.down)
	if err != nil {
		return errors.Wrap(err, "--down")
	}
	up, err := parseSample(opts.up)
	if err != nil {
		return errors.Wrap(err, "--up")
	}

	rawScreen := opts.screen
	if rawScreen == "" {
		devices, err := inventory.Load(cfg.InventoryPath)
		if err != nil {
			return err
		}
		dev, ok := inventory.NewRegistry(devices...).Get(udid)
		if !ok {
			return errors.Errorf("device %s is not in %s; pass --screen", udid, cfg.InventoryPath)
		}
		rawScreen = dev.Screen
	}
	screen, err := geometry.ParseScreenSize(rawScreen)
	if err != nil {
		return err
	}

	height := opts.canvasHeight
	if height <= 0 {
		height = cfg.CanvasHeight
	}
	g, err := control.Resolve(down, up, geometry.CanvasFor(screen, height), screen)
	if err != nil {
		return err
	}
	if opts.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), describeGesture(g))
		return nil
	}
	return dispatchOnce(cmd, root, &cfg, udid, g)
}

// dispatchOnce sends g through the dispatcher and reports the outcome.
// cfg is loaded when nil.
func dispatchOnce(cmd *cobra.Command, root *rootOptions, cfg *config.Config, udid string, g control.Gesture) error {
	if cfg == nil {
		loaded, err := loadClientConfig(root)
		if err != nil {
			return err
		}
		cfg = &loaded
	}
	client, err := newProviderClient(*cfg)
	if err != nil {
		return err
	}
	d := provider.NewDispatcher(client, nil)
	if err := d.Dispatch(cmd.Context(), udid, g); err != nil {
		return describeProviderError(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), describeGesture(g))
	return nil
}

// describeGesture renders a device-space gesture on one line.
func describeGesture(g control.Gesture) string {
	if g.Kind == control.GestureSwipe {
		return fmt.Sprintf("%s %g,%g -> %g,%g", g.Kind, g.From.X, g.From.Y, g.To.X, g.To.Y)
	}
	return fmt.Sprintf("%s %g,%g", g.Kind, g.From.X, g.From.Y)
}

// describeProviderError adds a refresh hint to expired sessions.
func describeProviderError(err error) error {
	if provider.IsSessionExpired(err) {
		return errors.Wrap(err, "provider session expired or unreachable; refresh PROVIDER_TOKEN")
	}
	return err
}

// parseSample parses "x,y,ts".
func parseSample(raw string) (control.PointerSample, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return control.PointerSample{}, errors.Errorf("expected x,y,ts, got %q", raw)
	}
	nums, err := parseFloats(parts[:2])
	if err != nil {
		return control.PointerSample{}, err
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64)
	if err != nil {
		return control.PointerSample{}, errors.Wrapf(err, "timestamp %q", parts[2])
	}
	return control.PointerSample{X: nums[0], Y: nums[1], TimestampMs: ts}, nil
}

// parseFloats parses every argument as a float.
func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, 0, len(args))
	for _, a := range args {
		f, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid number %q", a)
		}
		out = append(out, f)
	}
	return out, nil
}
