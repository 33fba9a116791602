package server

import (
	"context"
	"fmt"

	mcp_golang "github.com/metoro-io/mcp-golang"
	"github.com/metoro-io/mcp-golang/transport"
	"github.com/metoro-io/mcp-golang/transport/http"
	"github.com/metoro-io/mcp-golang/transport/stdio"
	"github.com/sirupsen/logrus"

	"ssh-actions/internal/actions"
	"ssh-actions/internal/config"
)

const (
	Name    = "ssh-actions"
	Version = "0.2.0"
)

// Server exposes every action as an MCP tool.
type Server struct {
	mcp       *mcp_golang.Server
	transport transport.Transport
	log       logrus.FieldLogger
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewTransport returns the transport named by cfg.
func NewTransport(cfg config.ServerConfig) (transport.Transport, error) {
	switch cfg.Transport {
	case config.TransportStdio:
		return stdio.NewStdioServerTransport(), nil
	case config.TransportHTTP:
		return http.NewHTTPTransport(cfg.Endpoint).WithAddr(cfg.Addr), nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

// New creates a server on t and registers the tools. Tool calls run until
// Serve returns.
func New(t transport.Transport, svc *actions.Service, log logrus.FieldLogger) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		mcp: mcp_golang.NewServer(
			t,
			mcp_golang.WithName(Name),
			mcp_golang.WithInstructions("Run commands, shells, tunnels and SFTP transfers over cached SSH sessions. "+
				"Every tool returns a JSON map with returnResult, returnCode (0 or -1) and exception on failure."),
			mcp_golang.WithVersion(Version),
		),
		transport: t,
		log:       log.WithField("component", "mcp"),
		ctx:       ctx,
		cancel:    cancel,
	}

	for _, tool := range GetTools(ctx, svc, s.log) {
		if err := s.mcp.RegisterTool(tool.Name, tool.Description, tool.Handler); err != nil {
			cancel()
			return nil, fmt.Errorf("register tool %s: %w", tool.Name, err)
		}
	}
	return s, nil
}

// Serve runs the server until ctx is done or the transport fails.
func (s *Server) Serve(ctx context.Context) error {
	defer s.cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- s.mcp.Serve() }()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("shutting down")
			if err := s.transport.Close(); err != nil {
				s.log.WithError(err).Debug("close transport")
			}
			return nil
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("mcp server: %w", err)
			}
			// stdio returns once it is listening
			errCh = nil
		}
	}
}
