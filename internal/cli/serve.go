package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ssh-actions/internal/config"
	"ssh-actions/internal/server"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve every action as an MCP tool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.close()
			a.startBackground()

			t, err := server.NewTransport(a.cfg.Server)
			if err != nil {
				return err
			}
			srv, err := server.New(t, a.service, a.log)
			if err != nil {
				return err
			}

			log := a.log.WithField("transport", a.cfg.Server.Transport)
			if a.cfg.Server.Transport == config.TransportHTTP {
				log = log.WithField("addr", a.cfg.Server.Addr+a.cfg.Server.Endpoint)
			}
			log.Info("starting MCP server")
			return srv.Serve(ctx)
		},
	}

	flags := cmd.Flags()
	flags.String("transport", "", "MCP transport: stdio or http")
	flags.String("addr", "", "Listen address of the http transport")
	flags.Duration("idle-timeout", 0, "Close sessions idle for this long, 0 keeps them")
	_ = opts.v.BindPFlag("server.transport", flags.Lookup("transport"))
	_ = opts.v.BindPFlag("server.addr", flags.Lookup("addr"))
	_ = opts.v.BindPFlag("session.idle_timeout", flags.Lookup("idle-timeout"))
	return cmd
}
