package testcontainers

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"ssh-actions/internal/actions"
	"ssh-actions/internal/config"
	"ssh-actions/internal/server"
	"ssh-actions/internal/session"
)

// MCPServer is an in-process ssh-actions server on the HTTP transport.
type MCPServer struct {
	URL      string
	Sessions *session.Manager
	cancel   context.CancelFunc
	done     chan error
}

// StartMCPServer starts a server on a free loopback port and waits until it
// accepts connections.
func StartMCPServer(ctx context.Context) (*MCPServer, error) {
	addr, err := freeAddr()
	if err != nil {
		return nil, err
	}

	log, _ := test.NewNullLogger()

	sessions := session.NewManager(0, log)
	svc := actions.NewService(sessions, actions.WithLogger(log))

	t, err := server.NewTransport(config.ServerConfig{Transport: config.TransportHTTP, Addr: addr, Endpoint: "/mcp"})
	if err != nil {
		return nil, err
	}
	srv, err := server.New(t, svc, log)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &MCPServer{URL: "http://" + addr, Sessions: sessions, cancel: cancel, done: make(chan error, 1)}
	go func() { s.done <- srv.Serve(ctx) }()

	deadline := time.Now().Add(10 * time.Second)
	for {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			conn.Close()
			return s, nil
		}
		select {
		case err := <-s.done:
			cancel()
			return nil, fmt.Errorf("mcp server exited: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			cancel()
			return nil, fmt.Errorf("mcp server did not listen on %s: %v", addr, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Stop stops the server and closes its sessions.
func (s *MCPServer) Stop() {
	s.cancel()
	<-s.done
	s.Sessions.CloseAll()
}

func freeAddr() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer ln.Close()
	return ln.Addr().String(), nil
}
