package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/bluest/pkg/device"
	"github.com/srg/bluest/pkg/feature"
)

type pnplOptions struct {
	timeout time.Duration
	noReply bool
}

func newPnPLCmd() *cobra.Command {
	opts := &pnplOptions{}
	cmd := &cobra.Command{
		Use:   "pnpl <address> <json>",
		Short: "Send a PnPL command and print the reply",
		Long: `Send a PnPL JSON command to the PnPLike feature of a node and print the
JSON document the node answers with.`,
		Example: `  bluest pnpl C0:FF:EE:00:00:01 '{"get_status":"all"}'
  bluest pnpl C0:FF:EE:00:00:01 '{"log_controller*start_log":{"interface":0}}' --no-reply`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPnPL(cmd, opts, args[0], args[1])
		},
	}
	cmd.Flags().DurationVarP(&opts.timeout, "timeout", "t", 5*time.Second, "How long to wait for the reply")
	cmd.Flags().BoolVar(&opts.noReply, "no-reply", false, "Do not wait for a reply")
	return cmd
}

// replyListener keeps the first reassembled reply.
type replyListener struct {
	replies chan *feature.Sample
}

func (l *replyListener) OnUpdate(_ *feature.Feature, s *feature.Sample) {
	select {
	case l.replies <- s:
	default:
	}
}

func runPnPL(cmd *cobra.Command, opts *pnplOptions, address, command string) error {
	if !json.Valid([]byte(command)) {
		return fmt.Errorf("command is not valid JSON: %s", command)
	}
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

	pnpl := device.FeaturesOf[*feature.PnPLike](dev)
	if len(pnpl) == 0 {
		return fmt.Errorf("%s has no PnPLike feature", dev.Address())
	}
	f := pnpl[0]

	listener := &replyListener{replies: make(chan *feature.Sample, 1)}
	f.AddListener(listener)
	defer f.RemoveListener(listener)

	if !opts.noReply {
		if err := dev.EnableNotifications(linkCtx, f); err != nil {
			return err
		}
	}
	if err := feature.SendPnPLCommand(linkCtx, f, command); err != nil {
		return err
	}
	a.logger.WithField("address", dev.Address()).Info("PnPL command sent")
	if opts.noReply {
		return nil
	}

	timer := time.NewTimer(opts.timeout)
	defer timer.Stop()
	select {
	case s := <-listener.replies:
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, []byte(s.Text), "", "  "); err != nil {
			return err
		}
		fmt.Fprintln(a.out, pretty.String())
		return nil
	case <-timer.C:
		return fmt.Errorf("no PnPL reply within %s: %w", opts.timeout, context.DeadlineExceeded)
	case <-linkCtx.Done():
		if cause := context.Cause(linkCtx); errors.Is(cause, ErrConnectionLost) {
			return cause
		}
		return linkCtx.Err()
	}
}
