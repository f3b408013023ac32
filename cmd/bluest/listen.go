package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/bluest/pkg/bluest"
	"github.com/srg/bluest/pkg/device"
	"github.com/srg/bluest/pkg/feature"
)

type listenOptions struct {
	features []string
	duration time.Duration
	json     bool
}

func newListenCmd() *cobra.Command {
	opts := &listenOptions{}
	cmd := &cobra.Command{
		Use:   "listen <address>",
		Short: "Stream feature samples from a BlueST node",
		Long: `Connect to a BlueST node, enable notifications and print every decoded
sample until the duration elapses or Ctrl+C is pressed.

Without --feature every feature that can notify is enabled.`,
		Example: `  bluest listen C0:FF:EE:00:00:01 --feature Temperature --feature Humidity
  bluest listen C0:FF:EE:00:00:01 --duration 30s --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(cmd, opts, args[0])
		},
	}
	cmd.Flags().StringSliceVarP(&opts.features, "feature", "f", nil, "Feature names to enable (repeatable)")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Listen duration (0 for indefinite)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print one JSON object per sample")
	return cmd
}

// sampleView is the JSON form of a sample.
type sampleView struct {
	Feature   string             `json:"feature"`
	Timestamp uint32             `json:"timestamp"`
	Values    map[string]float64 `json:"values,omitempty"`
	Text      string             `json:"text,omitempty"`
}

func newSampleView(f *feature.Feature, s *feature.Sample) sampleView {
	v := sampleView{Feature: f.Name(), Timestamp: s.Timestamp, Text: s.Text}
	if len(s.Values) > 0 {
		v.Values = make(map[string]float64, len(s.Values))
		for i, val := range s.Values {
			name := fmt.Sprintf("#%d", i)
			if s.Descriptor != nil && i < len(s.Descriptor.Fields) {
				name = s.Descriptor.Fields[i].Name
			}
			v.Values[name] = val
		}
	}
	return v
}

// samplePrinter writes every update of the features it listens to.
type samplePrinter struct {
	w    io.Writer
	json bool
}

func (p *samplePrinter) OnUpdate(f *feature.Feature, s *feature.Sample) {
	if p.json {
		line, err := json.Marshal(newSampleView(f, s))
		if err != nil {
			return
		}
		fmt.Fprintf(p.w, "%s\n", line)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", time.Now().Format("15:04:05.000"), s)
}

func runListen(cmd *cobra.Command, opts *listenOptions, address string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true
	defer a.close()

	ctx, cancel := interruptContext(cmd.Context(), 0)
	defer cancel()

	dev, linkCtx, release, err := a.connect(ctx, address)
	if err != nil {
		return err
	}
	defer release()

	selected, err := selectFeatures(dev, opts.features)
	if err != nil {
		return err
	}

	printer := &samplePrinter{w: &syncWriter{w: a.out}, json: opts.json || a.cfg.OutputFormat == "json"}
	var enabled []*feature.Feature
	for _, f := range selected {
		f.AddListener(printer)
		if err := dev.EnableNotifications(ctx, f); err != nil {
			f.RemoveListener(printer)
			if len(opts.features) == 0 && errors.Is(err, bluest.ErrInvalidOperation) {
				a.logger.WithField("feature", f.Name()).Debug("Feature cannot notify, skipped")
				continue
			}
			return err
		}
		enabled = append(enabled, f)
	}
	if len(enabled) == 0 {
		return fmt.Errorf("no feature of %s can notify", dev.Address())
	}
	a.logger.WithFields(logrus.Fields{
		"address":  dev.Address(),
		"features": len(enabled),
	}).Info("Listening")

	waitCtx := linkCtx
	if opts.duration > 0 {
		var stop context.CancelFunc
		waitCtx, stop = context.WithTimeout(linkCtx, opts.duration)
		defer stop()
	}
	<-waitCtx.Done()

	if cause := context.Cause(linkCtx); errors.Is(cause, ErrConnectionLost) {
		return cause
	}

	for _, f := range enabled {
		f.RemoveListener(printer)
		if err := dev.DisableNotifications(context.Background(), f); err != nil {
			a.logger.WithError(err).WithField("feature", f.Name()).Debug("Disable notifications failed")
		}
	}
	return nil
}

// selectFeatures resolves names against the implemented features,
// case-insensitively. No names means every feature.
func selectFeatures(dev *device.Device, names []string) ([]*feature.Feature, error) {
	all := dev.Features()
	if len(names) == 0 {
		return all, nil
	}
	out := make([]*feature.Feature, 0, len(names))
	for _, name := range names {
		var found *feature.Feature
		for _, f := range all {
			if strings.EqualFold(f.Name(), name) {
				found = f
				break
			}
		}
		if found == nil {
			available := make([]string, 0, len(all))
			for _, f := range all {
				available = append(available, f.Name())
			}
			return nil, fmt.Errorf("feature %q not found, available: %s", name, strings.Join(available, ", "))
		}
		out = append(out, found)
	}
	return out, nil
}
