package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/srg/bluest/pkg/catalog"
)

type catalogOptions struct {
	json  bool
	model bool
	sync  bool
}

func newCatalogCmd() *cobra.Command {
	opts := &catalogOptions{}
	cmd := &cobra.Command{
		Use:   "catalog <device-id> [<fw-id>]",
		Short: "Look up a board in the device catalog",
		Long: `Print the device catalog entry of a board. With a firmware id the V2
catalog is searched, without one the V1 catalog. Ids are hex, with or
without a 0x prefix.

The catalog is downloaded on first use and cached; when the download fails
the cached copy is used.`,
		Example: `  bluest catalog 0x0E 0x01
  bluest catalog 0E 01 --model`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(cmd, opts, args)
		},
	}
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the entry as JSON")
	cmd.Flags().BoolVar(&opts.model, "model", false, "Print the DTDL model of the entry instead")
	cmd.Flags().BoolVar(&opts.sync, "sync", false, "Download the catalog even when a copy is loaded")
	return cmd
}

func parseID(s string) (uint8, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: must be a hex byte", s)
	}
	return uint8(v), nil
}

func runCatalog(cmd *cobra.Command, opts *catalogOptions, args []string) error {
	deviceID, err := parseID(args[0])
	if err != nil {
		return err
	}
	var firmwareID *uint8
	if len(args) == 2 {
		fw, err := parseID(args[1])
		if err != nil {
			return err
		}
		firmwareID = &fw
	}
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, cancel := interruptContext(cmd.Context(), 0)
	defer cancel()

	c := a.catalog()
	if opts.sync {
		if err := c.Synchronize(ctx); err != nil {
			return err
		}
	}

	var entry *catalog.Entry
	if firmwareID != nil {
		entry, err = c.Entry(ctx, deviceID, *firmwareID)
	} else {
		entry, err = c.EntryV1(ctx, deviceID)
	}
	if err != nil {
		return err
	}

	switch {
	case opts.model:
		return writeModel(ctx, a.out, c, entry)
	case opts.json || a.cfg.OutputFormat == "json":
		return writeJSON(a.out, entry)
	}
	return writeEntry(a.out, entry)
}

func writeModel(ctx context.Context, out io.Writer, c *catalog.Manager, entry *catalog.Entry) error {
	if entry.DTMI == "" {
		return fmt.Errorf("catalog entry of %s has no DTMI", entry.BoardName)
	}
	model, err := c.Model(ctx, entry.DTMI)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, model, "", "  "); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, pretty.String())
	return err
}

func writeEntry(out io.Writer, e *catalog.Entry) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Board:\t%s\n", e.BoardName)
	fmt.Fprintf(w, "Device id:\t%s\n", e.DeviceID)
	if e.FirmwareID != "" {
		fmt.Fprintf(w, "Firmware id:\t%s\n", e.FirmwareID)
	}
	if e.FirmwareName != "" {
		fmt.Fprintf(w, "Firmware:\t%s %s\n", e.FirmwareName, e.FirmwareVersion)
	}
	if e.DTMI != "" {
		fmt.Fprintf(w, "DTMI:\t%s\n", e.DTMI)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	features := e.Features()
	if len(features) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FEATURE\tKIND\tMASK\tUUID")
	for _, f := range features {
		fmt.Fprintf(w, "%s\t%s\t0x%08X\t%s\n", f.Name, f.Kind, f.Mask, f.UUID)
	}
	return w.Flush()
}
