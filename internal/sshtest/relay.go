package sshtest

import (
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

// Relay forwards TCP connections to a target address. Silence makes every
// connection it already carries go quiet: bytes are still read from both
// sides but never delivered, and nothing is closed. Connections accepted
// afterwards are forwarded normally.
type Relay struct {
	Host string
	Port int

	listener net.Listener
	target   string

	mu    sync.Mutex
	links []*relayLink
}

type relayLink struct {
	silent atomic.Bool
	conns  [2]net.Conn
}

// NewRelay starts a relay to target on a free loopback port and stops it
// when the test ends.
func NewRelay(t testing.TB, target string) *Relay {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("relay listen: %v", err)
	}
	r := &Relay{
		Host:     "127.0.0.1",
		Port:     ln.Addr().(*net.TCPAddr).Port,
		listener: ln,
		target:   target,
	}
	go r.serve()
	t.Cleanup(r.Close)
	return r
}

// Addr returns the relay's host:port.
func (r *Relay) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// Silence stops delivering bytes on every current connection.
func (r *Relay) Silence() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		l.silent.Store(true)
	}
}

// Close stops the relay and drops its connections.
func (r *Relay) Close() {
	r.listener.Close()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		l.conns[0].Close()
		l.conns[1].Close()
	}
	r.links = nil
}

func (r *Relay) serve() {
	for {
		in, err := r.listener.Accept()
		if err != nil {
			return
		}
		out, err := net.Dial("tcp", r.target)
		if err != nil {
			in.Close()
			continue
		}
		l := &relayLink{conns: [2]net.Conn{in, out}}
		r.mu.Lock()
		r.links = append(r.links, l)
		r.mu.Unlock()

		go l.pipe(in, out)
		go l.pipe(out, in)
	}
}

func (l *relayLink) pipe(dst, src net.Conn) {
	defer dst.Close()
	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 && !l.silent.Load() {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
