package cli

import (
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"ssh-actions/internal/actions"
	"ssh-actions/internal/result"
)

func newActionCommand(opts *rootOptions, use string, kind actions.Kind) *cobra.Command {
	var in *inputSet
	cmd := &cobra.Command{
		Use:   use + " [flags] -- COMMAND",
		Short: kind.Description(),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs := in.collect(cmd, opts)
			inputs["command"] = strings.Join(args, " ")
			return runOnce(cmd, opts, kind, inputs)
		},
	}
	in = addInputFlags(cmd.Flags(), connectionFlags, commandFlags)
	return cmd
}

// newTunnelCommand keeps the process, and with it the tunnel, alive until it
// is interrupted.
func newTunnelCommand(opts *rootOptions) *cobra.Command {
	var in *inputSet
	cmd := &cobra.Command{
		Use:   "tunnel",
		Short: actions.KindTunnel.Description(),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.close()

			out := a.service.Run(ctx, actions.KindTunnel, in.collect(cmd, opts))
			if err := printResult(cmd.OutOrStdout(), opts.output, out); err != nil {
				return err
			}
			if !out.Succeeded() {
				return errActionFailed
			}
			a.log.WithField("localPort", out[result.LocalPort]).Info("tunnel open, interrupt to close")
			<-ctx.Done()
			return nil
		},
	}
	in = addInputFlags(cmd.Flags(), connectionFlags, tunnelFlags)
	return cmd
}

func runOnce(cmd *cobra.Command, opts *rootOptions, kind actions.Kind, inputs map[string]string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.close()

	out := a.service.Run(ctx, kind, inputs)
	if err := printResult(cmd.OutOrStdout(), opts.output, out); err != nil {
		return err
	}
	if !out.Succeeded() {
		return errActionFailed
	}
	return nil
}
