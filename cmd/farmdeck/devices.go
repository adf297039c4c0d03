package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/frudas24/farmdeck/internal/geometry"
	"github.com/frudas24/farmdeck/internal/inventory"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type devicesOptions struct {
	output string
	save   bool
}

// newDevicesCmd builds the devices command.
func newDevicesCmd(root *rootOptions) *cobra.Command {
	opts := &devicesOptions{}
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List the provider's devices",
		Example: `  farmdeck devices
  farmdeck devices --output json
  farmdeck devices --save`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevices(cmd, root, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.output, "output", "o", "text", "Output format (json or text)")
	flags.BoolVar(&opts.save, "save", false, "Write the list to the inventory file")
	return cmd
}

// runDevices lists provider devices and optionally saves them as the inventory.
func runDevices(cmd *cobra.Command, root *rootOptions, opts *devicesOptions) error {
	cfg, err := loadClientConfig(root)
	if err != nil {
		return err
	}
	client, err := newProviderClient(cfg)
	if err != nil {
		return err
	}

	path := ""
	if opts.save {
		path = cfg.InventoryPath
	}
	devices, err := inventory.Sync(cmd.Context(), client, inventory.NewRegistry(), path)
	if err != nil {
		return err
	}
	if devices == nil {
		devices = []inventory.Device{}
	}
	return printDevices(cmd.OutOrStdout(), devices, opts.output, cfg.CanvasHeight)
}

// printDevices renders devices as a table or JSON.
func printDevices(w io.Writer, devices []inventory.Device, format string, canvasHeight float64) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(devices)
	case "text":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "UDID\tNAME\tOS\tSCREEN\tCANVAS")
		for _, d := range devices {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.UDID, d.Name, d.OS, d.Screen, canvasLabel(d, canvasHeight))
		}
		return tw.Flush()
	default:
		return errors.Errorf("unknown output format %q", format)
	}
}

// canvasLabel describes the canvas a device renders to, or why it cannot be controlled.
func canvasLabel(d inventory.Device, height float64) string {
	c, err := d.Canvas(height)
	if err != nil {
		var perr *geometry.ParseError
		if errors.As(err, &perr) {
			return "invalid geometry"
		}
		return err.Error()
	}
	return fmt.Sprintf("%.1fx%.1f", c.Width, c.Height)
}
