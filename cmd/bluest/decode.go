package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/srg/bluest/pkg/advertising"
	"github.com/srg/bluest/pkg/feature"
)

type decodeOptions struct {
	name    string
	txPower int
	records bool
	json    bool
}

func newDecodeCmd() *cobra.Command {
	opts := &decodeOptions{}
	cmd := &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode a BlueST advertisement offline",
		Long: `Decode BlueST manufacturer data without a radio.

The argument is the manufacturer specific value (AD type byte stripped), as
hex with optional spaces, colons or a 0x prefix. With --records the argument
is a whole advertising payload made of length/type/value structures.`,
		Example: `  bluest decode 01 80 00 04 00 00
  bluest decode --records 0709534e534f52... `,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd, opts, strings.Join(args, ""))
		},
	}
	cmd.Flags().StringVar(&opts.name, "name", advertising.NoName, "Local name to attach to the identity")
	cmd.Flags().IntVar(&opts.txPower, "tx-power", advertising.NoTxPower, "Tx power level to attach to the identity")
	cmd.Flags().BoolVar(&opts.records, "records", false, "Argument is a raw advertising payload")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print JSON instead of a table")
	return cmd
}

// identityView is the printable form of an advertising.Identity.
type identityView struct {
	Name       string   `json:"name"`
	TxPower    int      `json:"tx_power"`
	Protocol   string   `json:"protocol"`
	Type       string   `json:"type"`
	DeviceID   string   `json:"device_id"`
	Sleeping   bool     `json:"sleeping"`
	Mask       string   `json:"feature_mask,omitempty"`
	FirmwareID string   `json:"firmware_id,omitempty"`
	PayloadID  string   `json:"payload_id,omitempty"`
	Options    string   `json:"option_bytes,omitempty"`
	MAC        string   `json:"mac,omitempty"`
	Features   []string `json:"features,omitempty"`
}

func runDecode(cmd *cobra.Command, opts *decodeOptions, arg string) error {
	raw, err := parseHex(arg)
	if err != nil {
		return err
	}
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	var id *advertising.Identity
	if opts.records {
		records, err := advertising.ParseRecords(raw)
		if err != nil {
			return err
		}
		for _, r := range records {
			a.logger.WithField("type", r.Description).Debugf("AD record % X", r.Value)
		}
		id, err = advertising.Parse(records)
		if err != nil {
			return err
		}
	} else if id, err = advertising.ParseManufacturerData(opts.name, opts.txPower, raw); err != nil {
		return err
	}

	view := newIdentityView(id)
	if opts.json || a.cfg.OutputFormat == "json" {
		return writeJSON(a.out, view)
	}
	return writeIdentity(a.out, view)
}

// parseHex accepts "0x0180", "01 80" and "01:80".
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	s = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(s)
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	return raw, nil
}

func newIdentityView(id *advertising.Identity) identityView {
	v := identityView{
		Name:     id.Name(),
		TxPower:  id.TxPower(),
		Protocol: id.Protocol().String(),
		Type:     id.DeviceType().String(),
		DeviceID: fmt.Sprintf("0x%02X", id.DeviceID()),
		Sleeping: id.Sleeping(),
	}
	if mask, ok := id.FeatureMask(); ok {
		v.Mask = fmt.Sprintf("0x%08X", mask)
		all, _ := feature.DefaultRegistry().ScanMask(id.DeviceID(), mask, make(feature.MaskedFeatures))
		for _, f := range all {
			v.Features = append(v.Features, f.Name())
		}
	}
	if fw, ok := id.FirmwareID(); ok {
		v.FirmwareID = fmt.Sprintf("0x%02X", fw)
	}
	if p, ok := id.PayloadID(); ok {
		v.PayloadID = fmt.Sprintf("0x%02X", p)
	}
	if opt := id.OptionBytes(); len(opt) > 0 {
		v.Options = fmt.Sprintf("% X", opt)
	}
	if mac, ok := id.MAC(); ok {
		v.MAC = mac
	}
	return v
}

func writeIdentity(out io.Writer, v identityView) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	row := func(k, val string) {
		if val != "" {
			fmt.Fprintf(w, "%s:\t%s\n", k, val)
		}
	}
	row("Name", v.Name)
	row("Tx power", fmt.Sprintf("%d", v.TxPower))
	row("Protocol", v.Protocol)
	row("Type", v.Type)
	row("Device id", v.DeviceID)
	row("Sleeping", fmt.Sprintf("%t", v.Sleeping))
	row("Feature mask", v.Mask)
	row("Firmware id", v.FirmwareID)
	row("Payload id", v.PayloadID)
	row("Options", v.Options)
	row("MAC", v.MAC)
	row("Features", strings.Join(v.Features, ", "))
	return w.Flush()
}
