package ssh

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// Transport is an authenticated SSH connection. One Transport must not be
// used for concurrent commands.
type Transport struct {
	client   *ssh.Client
	channel  *ssh.Session
	host     string
	username string
	log      logrus.FieldLogger

	closeOnce sync.Once
	closeErr  error
}

// NewTransport wraps an existing client, for example one taken from the
// session cache. channel may be nil.
func NewTransport(client *ssh.Client, channel *ssh.Session, host string, log logrus.FieldLogger) *Transport {
	if log == nil {
		log = logrus.StandardLogger()
	}
	t := &Transport{client: client, channel: channel, host: host}
	if client != nil {
		t.username = client.User()
	}
	t.log = log.WithFields(logrus.Fields{"host": t.host, "user": t.username})
	return t
}

// Connect dials and authenticates. Every failure after the options are
// validated is a *ConnectionError.
func Connect(ctx context.Context, opts ConnectOptions, log logrus.FieldLogger) (*Transport, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	host := opts.Details.Host
	log = log.WithFields(logrus.Fields{"host": host, "user": opts.Details.Username})

	ciphers, dropped, err := parseCiphers(opts.AllowedCiphers)
	if err != nil {
		return nil, &ConnectionError{Host: host, Err: err}
	}
	if len(dropped) > 0 {
		log.WithField("ciphers", dropped).Debug("ignoring unsupported ciphers")
	}

	auth, err := authMethods(opts.Details, opts.Identity)
	if err != nil {
		return nil, &ConnectionError{Host: host, Err: err}
	}

	hostKeys, err := hostKeyCallback(opts.KnownHosts, log)
	if err != nil {
		return nil, &ConnectionError{Host: host, Err: err}
	}

	timeout := opts.ConnectTimeout
	config := &ssh.ClientConfig{
		Config:          ssh.Config{Ciphers: ciphers},
		User:            opts.Details.Username,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(host, strconv.Itoa(opts.port()))
	conn, err := dial(ctx, addr, opts.Proxy, timeout)
	if err != nil {
		return nil, &ConnectionError{Host: host, Err: err}
	}

	// The deadline covers the handshake. Cancelling ctx expires it early.
	if timeout > 0 {
		conn.SetDeadline(time.Now().Add(timeout))
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	stop()
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return nil, &ConnectionError{Host: host, Err: err}
	}
	conn.SetDeadline(time.Time{})

	t := &Transport{
		client:   ssh.NewClient(c, chans, reqs),
		host:     host,
		username: opts.Details.Username,
		log:      log,
	}

	if opts.KeepContextForExpectCommand {
		channel, err := t.client.NewSession()
		if err != nil {
			t.client.Close()
			return nil, &ConnectionError{Host: host, Err: fmt.Errorf("open expect channel: %w", err)}
		}
		t.channel = channel
	}

	log.Debug("ssh session established")
	return t, nil
}

// Client returns the underlying SSH client.
func (t *Transport) Client() *ssh.Client {
	return t.client
}

// Channel returns the long-lived expect channel, or nil.
func (t *Transport) Channel() *ssh.Session {
	return t.channel
}

// Host returns the host the transport is connected to.
func (t *Transport) Host() string {
	return t.host
}

// Username returns the login user.
func (t *Transport) Username() string {
	return t.username
}

// IsConnected sends a keepalive request and reports whether the connection
// answered within timeout. A peer that stays silent counts as disconnected,
// as does a cancelled ctx. A non-positive timeout uses DefaultAliveTimeout.
func (t *Transport) IsConnected(ctx context.Context, timeout time.Duration) bool {
	if t.client == nil {
		return false
	}
	if timeout <= 0 {
		timeout = DefaultAliveTimeout
	}

	replied := make(chan error, 1)
	go func() {
		_, _, err := t.client.SendRequest("keepalive@openssh.com", true, nil)
		replied <- err
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-replied:
		return err == nil
	case <-timer.C:
		t.log.WithField("timeout", timeout).Warn("keepalive got no reply")
		return false
	case <-ctx.Done():
		return false
	}
}

// OpenExpectChannel opens the long-lived expect channel if the transport has
// none yet.
func (t *Transport) OpenExpectChannel(ctx context.Context, timeout time.Duration) error {
	if t.channel != nil {
		return nil
	}
	channel, err := t.openChannel(ctx, timeout)
	if err != nil {
		return &ConnectionError{Host: t.host, Err: fmt.Errorf("expect channel: %w", err)}
	}
	t.channel = channel
	return nil
}

// Close closes the expect channel and the connection. Tunnels opened on the
// transport stop with it.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		if t.channel != nil {
			t.channel.Close()
		}
		if t.client != nil {
			t.closeErr = t.client.Close()
		}
		t.log.Debug("ssh session closed")
	})
	return t.closeErr
}

// openChannel opens a session channel, giving up after timeout. A channel
// that arrives late is closed.
func (t *Transport) openChannel(ctx context.Context, timeout time.Duration) (*ssh.Session, error) {
	if t.client == nil {
		return nil, ErrNotConnected
	}

	type opened struct {
		sess *ssh.Session
		err  error
	}
	ch := make(chan opened, 1)
	go func() {
		sess, err := t.client.NewSession()
		ch <- opened{sess, err}
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	abandon := func() {
		go func() {
			if o := <-ch; o.sess != nil {
				o.sess.Close()
			}
		}()
	}

	select {
	case o := <-ch:
		if o.err != nil {
			return nil, fmt.Errorf("open channel: %w", o.err)
		}
		return o.sess, nil
	case <-expired:
		abandon()
		return nil, fmt.Errorf("open channel: timed out after %s", timeout)
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	}
}
