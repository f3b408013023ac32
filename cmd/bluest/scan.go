package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/bluest/pkg/advertising"
	"github.com/srg/bluest/pkg/device"
	"github.com/srg/bluest/pkg/discovery"
)

type scanOptions struct {
	timeout  time.Duration
	passive  bool
	json     bool
	decodeLE bool
	catalog  bool
	allow    []string
	block    []string
}

func newScanCmd() *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for BlueST nodes",
		Long: `Scan for BlueST nodes and list them with their decoded advertisement:
board type, protocol, feature mask or firmware id, and the features the
node declares.

Advertisements that are not BlueST are counted and otherwise ignored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts)
		},
	}
	cmd.Flags().DurationVarP(&opts.timeout, "timeout", "t", 0, "Scan duration (default from config, 10s)")
	cmd.Flags().BoolVar(&opts.passive, "passive", false, "Passive scan (no scan requests)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print JSON instead of a table")
	cmd.Flags().BoolVar(&opts.decodeLE, "decode-le", false, "Decode BlueST-LE payloads through the LE catalog")
	cmd.Flags().BoolVar(&opts.catalog, "catalog", false, "Resolve the features of V2 nodes through the device catalog")
	cmd.Flags().StringSliceVar(&opts.allow, "allow", nil, "Only show nodes with these addresses")
	cmd.Flags().StringSliceVar(&opts.block, "block", nil, "Hide nodes with these addresses")
	return cmd
}

// scanEntry is one node in the scan output.
type scanEntry struct {
	Name       string          `json:"name"`
	Address    string          `json:"address"`
	RSSI       int             `json:"rssi"`
	TxPower    int             `json:"tx_power"`
	Type       string          `json:"type"`
	Protocol   string          `json:"protocol"`
	DeviceID   string          `json:"device_id"`
	FirmwareID string          `json:"firmware_id,omitempty"`
	Mask       string          `json:"feature_mask,omitempty"`
	MAC        string          `json:"mac,omitempty"`
	Sleeping   bool            `json:"sleeping"`
	Features   []string        `json:"features"`
	Telemetry  json.RawMessage `json:"telemetry,omitempty"`
}

func runScan(cmd *cobra.Command, opts *scanOptions) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true
	defer a.close()

	timeout := opts.timeout
	if timeout <= 0 {
		timeout = a.cfg.ScanTimeout
	}
	asJSON := opts.json || a.cfg.OutputFormat == "json"

	dopts := discovery.Options{
		ReportInvalidDevices: a.cfg.ReportInvalidDevices,
		AllowList:            opts.allow,
		BlockList:            opts.block,
	}
	if opts.catalog {
		dopts.Catalog = a.catalog()
	}
	if opts.decodeLE {
		dopts.LE = a.leCatalog()
	}
	m := a.discovery(dopts)
	defer m.Close()

	ctx, cancel := interruptContext(cmd.Context(), 0)
	defer cancel()

	var progress *ProgressPrinter
	if !asJSON && isTerminal(a.out) {
		progress = NewProgressPrinter(a.out, "Scanning for BlueST nodes", timeout)
		m.AddListener(&discovery.ListenerFuncs{
			Discovered: func(_ *discovery.Manager, d *device.Device, _ error) {
				if d != nil {
					progress.Inc()
				}
			},
		})
		progress.Start()
	}

	var ignored atomic.Int64
	m.AddListener(&discovery.ListenerFuncs{
		Discovered: func(_ *discovery.Manager, d *device.Device, err error) {
			if d == nil && err != nil {
				ignored.Add(1)
			}
		},
	})

	err = m.Discover(ctx, timeout, opts.passive)
	if progress != nil {
		progress.Stop()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.WithError(err).Error("Scan failed")
		return err
	}
	a.logger.WithFields(logrus.Fields{
		"devices": len(m.Devices()),
		"ignored": ignored.Load(),
	}).Info("Scan completed")

	entries := make([]scanEntry, 0)
	for _, d := range m.Devices() {
		entries = append(entries, newScanEntry(context.Background(), m, d, opts.decodeLE))
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Address < entries[j].Address
	})

	if asJSON {
		return writeJSON(a.out, entries)
	}
	return writeScanTable(a.out, entries)
}

func newScanEntry(ctx context.Context, m *discovery.Manager, d *device.Device, decodeLE bool) scanEntry {
	id := d.Identity()
	e := scanEntry{
		Name:     d.Name(),
		Address:  d.Address(),
		RSSI:     d.RSSI(),
		TxPower:  d.TxPower(),
		Type:     d.Type().String(),
		Protocol: id.Protocol().String(),
		DeviceID: fmt.Sprintf("0x%02X", id.DeviceID()),
		Sleeping: d.IsSleeping(),
		Features: make([]string, 0),
	}
	if fw, ok := id.FirmwareID(); ok {
		e.FirmwareID = fmt.Sprintf("0x%02X", fw)
	}
	if mask, ok := id.FeatureMask(); ok {
		e.Mask = fmt.Sprintf("0x%08X", mask)
	}
	if mac, ok := id.MAC(); ok {
		e.MAC = mac
	}
	for _, f := range d.Features() {
		e.Features = append(e.Features, f.Name())
	}
	if decodeLE && id.Protocol() == advertising.ProtocolVLE {
		if msg, err := m.DecodeBlueSTLE(ctx, id); err == nil {
			e.Telemetry = json.RawMessage(msg)
		}
	}
	return e
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func writeScanTable(out io.Writer, entries []scanEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No BlueST nodes discovered")
		return nil
	}
	color.NoColor = !isTerminal(out)
	sleeping := color.New(color.FgYellow).SprintFunc()
	active := color.New(color.FgGreen).SprintFunc()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := []string{"NAME", "ADDRESS", "RSSI", "TYPE", "PROTOCOL", "ID", "FEATURES", "STATUS"}
	rule := make([]string, len(header))
	for i, h := range header {
		rule[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))
	fmt.Fprintln(w, strings.Join(rule, "\t"))
	for _, e := range entries {
		name := e.Name
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		id := e.Mask
		if id == "" {
			id = e.FirmwareID
		}
		features := strings.Join(e.Features, ",")
		if len(e.Telemetry) > 0 {
			features = string(e.Telemetry)
		}
		if len(features) > 40 {
			features = features[:37] + "..."
		}
		status := active("active")
		if e.Sleeping {
			status = sleeping("sleeping")
		}
		// Status is last so color codes do not break the column alignment
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s\t%s\t%s\t%s\n",
			name, e.Address, e.RSSI, e.Type, e.Protocol, id, features, status)
	}
	return w.Flush()
}
