// Package sshtest runs an in-process SSH server for tests. It understands a
// handful of shell-like commands, interactive shells, pseudo-terminals,
// direct-tcpip forwarding and the sftp subsystem.
package sshtest

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Handler runs one command line. stderr is the same writer as stdout when a
// pty was requested. A negative return value closes the channel without an
// exit status.
type Handler func(ctx context.Context, command string, stdout, stderr io.Writer) int

// Options configures the server. With no password and no authorized key any
// client is let in.
type Options struct {
	User          string
	Password      string
	AuthorizedKey ssh.PublicKey
	Handler       Handler
}

// Server is a running test server.
type Server struct {
	Addr    string
	Host    string
	Port    int
	HostKey ssh.Signer

	config   *ssh.ServerConfig
	handler  Handler
	listener net.Listener

	mu    sync.Mutex
	conns []net.Conn

	connections   atomic.Int32
	ptyRequests   atomic.Int32
	agentRequests atomic.Int32
	execCommands  chan string
}

// New starts a server on a free loopback port and stops it when the test
// ends.
func New(t testing.TB, opts Options) *Server {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	hostKey, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("host key signer: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &Server{
		Addr:         ln.Addr().String(),
		Host:         "127.0.0.1",
		Port:         ln.Addr().(*net.TCPAddr).Port,
		HostKey:      hostKey,
		handler:      opts.Handler,
		listener:     ln,
		execCommands: make(chan string, 64),
	}
	if s.handler == nil {
		s.handler = DefaultHandler
	}
	s.config = serverConfig(opts)
	s.config.AddHostKey(hostKey)

	go s.serve()
	t.Cleanup(s.Close)
	return s
}

func serverConfig(opts Options) *ssh.ServerConfig {
	cfg := &ssh.ServerConfig{}
	if opts.Password == "" && opts.AuthorizedKey == nil {
		cfg.NoClientAuth = true
		return cfg
	}

	checkPassword := func(user, password string) bool {
		return opts.Password != "" &&
			(opts.User == "" || user == opts.User) &&
			subtle.ConstantTimeCompare([]byte(password), []byte(opts.Password)) == 1
	}

	cfg.PasswordCallback = func(c ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
		if checkPassword(c.User(), string(password)) {
			return nil, nil
		}
		return nil, fmt.Errorf("password rejected for %s", c.User())
	}
	cfg.KeyboardInteractiveCallback = func(c ssh.ConnMetadata, challenge ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
		answers, err := challenge(c.User(), "", []string{"Password: "}, []bool{false})
		if err != nil {
			return nil, err
		}
		if len(answers) == 1 && checkPassword(c.User(), answers[0]) {
			return nil, nil
		}
		return nil, fmt.Errorf("keyboard-interactive rejected for %s", c.User())
	}
	if opts.AuthorizedKey != nil {
		want := opts.AuthorizedKey.Marshal()
		cfg.PublicKeyCallback = func(c ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if (opts.User == "" || c.User() == opts.User) && subtle.ConstantTimeCompare(key.Marshal(), want) == 1 {
				return nil, nil
			}
			return nil, fmt.Errorf("public key rejected for %s", c.User())
		}
	}
	return cfg
}

// Close stops accepting and drops every open connection.
func (s *Server) Close() {
	s.listener.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
}

// KnownHostsLine returns a known_hosts entry for the server.
func (s *Server) KnownHostsLine() string {
	return knownhosts.Line([]string{knownhosts.Normalize(s.Addr)}, s.HostKey.PublicKey())
}

// Connections returns the number of completed handshakes.
func (s *Server) Connections() int { return int(s.connections.Load()) }

// PtyRequests returns the number of pty-req requests seen.
func (s *Server) PtyRequests() int { return int(s.ptyRequests.Load()) }

// AgentRequests returns the number of agent forwarding requests seen.
func (s *Server) AgentRequests() int { return int(s.agentRequests.Load()) }

// ExecCommands receives every exec command line the server runs.
func (s *Server) ExecCommands() <-chan string { return s.execCommands }

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(raw net.Conn) {
	sc, chans, reqs, err := ssh.NewServerConn(raw, s.config)
	if err != nil {
		raw.Close()
		return
	}
	defer sc.Close()
	s.connections.Add(1)

	go ssh.DiscardRequests(reqs)
	for nc := range chans {
		switch nc.ChannelType() {
		case "session":
			ch, reqs, err := nc.Accept()
			if err != nil {
				continue
			}
			go s.handleSession(ch, reqs)
		case "direct-tcpip":
			go handleDirectTCPIP(nc)
		default:
			nc.Reject(ssh.UnknownChannelType, nc.ChannelType())
		}
	}
}

func (s *Server) handleSession(ch ssh.Channel, in <-chan *ssh.Request) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var pty, started bool
	for req := range in {
		switch req.Type {
		case "pty-req":
			pty = true
			s.ptyRequests.Add(1)
			req.Reply(true, nil)
		case "env", "window-change":
			req.Reply(true, nil)
		case "auth-agent-req@openssh.com":
			s.agentRequests.Add(1)
			req.Reply(true, nil)
		case "exec":
			var payload struct{ Command string }
			if started || ssh.Unmarshal(req.Payload, &payload) != nil {
				req.Reply(false, nil)
				continue
			}
			started = true
			req.Reply(true, nil)
			select {
			case s.execCommands <- payload.Command:
			default:
			}
			go s.runExec(ctx, ch, payload.Command, pty)
		case "shell":
			if started {
				req.Reply(false, nil)
				continue
			}
			started = true
			req.Reply(true, nil)
			go s.runShell(ctx, ch, pty)
		case "subsystem":
			var payload struct{ Name string }
			if started || ssh.Unmarshal(req.Payload, &payload) != nil || payload.Name != "sftp" {
				req.Reply(false, nil)
				continue
			}
			started = true
			req.Reply(true, nil)
			go serveSFTP(ch)
		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

func streams(ch ssh.Channel, pty bool) (io.Writer, io.Writer) {
	if pty {
		return ch, ch
	}
	return ch, ch.Stderr()
}

func (s *Server) runExec(ctx context.Context, ch ssh.Channel, command string, pty bool) {
	defer ch.Close()
	stdout, stderr := streams(ch, pty)
	code := s.handler(ctx, command, stdout, stderr)
	if code >= 0 {
		sendExitStatus(ch, code)
	}
}

func (s *Server) runShell(ctx context.Context, ch ssh.Channel, pty bool) {
	defer ch.Close()
	stdout, stderr := streams(ch, pty)
	r := bufio.NewReader(ch)
	last := 0
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "exit" {
			sendExitStatus(ch, last)
			return
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		last = s.handler(ctx, line, stdout, stderr)
	}
}

func sendExitStatus(ch ssh.Channel, code int) {
	status := struct{ Status uint32 }{uint32(code)}
	ch.SendRequest("exit-status", false, ssh.Marshal(&status))
}

func serveSFTP(ch ssh.Channel) {
	defer ch.Close()
	server, err := sftp.NewServer(ch)
	if err != nil {
		return
	}
	server.Serve()
	server.Close()
}

func handleDirectTCPIP(nc ssh.NewChannel) {
	var payload struct {
		DestAddr string
		DestPort uint32
		OrigAddr string
		OrigPort uint32
	}
	if err := ssh.Unmarshal(nc.ExtraData(), &payload); err != nil {
		nc.Reject(ssh.ConnectionFailed, "bad payload")
		return
	}
	target := net.JoinHostPort(payload.DestAddr, strconv.Itoa(int(payload.DestPort)))
	upstream, err := net.DialTimeout("tcp", target, 5*time.Second)
	if err != nil {
		nc.Reject(ssh.ConnectionFailed, err.Error())
		return
	}
	ch, reqs, err := nc.Accept()
	if err != nil {
		upstream.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	done := make(chan struct{}, 2)
	go func() { io.Copy(ch, upstream); ch.CloseWrite(); done <- struct{}{} }()
	go func() { io.Copy(upstream, ch); done <- struct{}{} }()
	<-done
	ch.Close()
	upstream.Close()
	<-done
}

// GenerateKey returns a new ed25519 client key as a signer and as OpenSSH
// PEM, encrypted when passphrase is set.
func GenerateKey(t testing.TB, passphrase string) (ssh.Signer, []byte) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "", []byte(passphrase))
	}
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return signer, pem.EncodeToMemory(block)
}
