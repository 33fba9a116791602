package ssh

import (
	"io"
	"net"
	"strconv"

	"github.com/sirupsen/logrus"
)

// CreateLocalTunnel listens on 127.0.0.1:localPort and forwards every
// accepted connection to remoteHost:remotePort through the transport. A
// localPort of 0 picks a free port; the bound port is returned. The
// listener lives until the connection closes.
func (t *Transport) CreateLocalTunnel(localPort int, remoteHost string, remotePort int) (int, error) {
	local := net.JoinHostPort("127.0.0.1", strconv.Itoa(localPort))
	remote := net.JoinHostPort(remoteHost, strconv.Itoa(remotePort))

	if t.client == nil {
		return 0, &TunnelError{Local: local, Remote: remote, Err: ErrNotConnected}
	}

	ln, err := net.Listen("tcp", local)
	if err != nil {
		return 0, &TunnelError{Local: local, Remote: remote, Err: err}
	}
	bound := ln.Addr().(*net.TCPAddr).Port

	log := t.log.WithFields(logrus.Fields{"local_port": bound, "remote": remote})
	log.Info("local port forwarding started")

	go func() {
		t.client.Wait()
		ln.Close()
	}()
	go t.acceptLoop(ln, remote, log)

	return bound, nil
}

func (t *Transport) acceptLoop(ln net.Listener, remote string, log logrus.FieldLogger) {
	defer log.Info("local port forwarding stopped")
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go t.forward(conn, remote, log)
	}
}

func (t *Transport) forward(local net.Conn, remote string, log logrus.FieldLogger) {
	upstream, err := t.client.Dial("tcp", remote)
	if err != nil {
		log.WithError(err).Warn("forwarded connection failed")
		local.Close()
		return
	}
	bidirectionalCopy(local, upstream)
}

// bidirectionalCopy pipes a and b until either side closes.
func bidirectionalCopy(a, b net.Conn) {
	done := make(chan struct{}, 2)
	cp := func(dst, src net.Conn) {
		defer func() { done <- struct{}{} }()
		io.Copy(dst, src)
	}
	go cp(a, b)
	go cp(b, a)

	<-done
	a.Close()
	b.Close()
	<-done
}
