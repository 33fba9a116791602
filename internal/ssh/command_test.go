package ssh

import (
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh/agent"
)

func commandOptions(command string, timeout time.Duration) CommandOptions {
	return CommandOptions{
		Command:        command,
		CharacterSet:   "UTF-8",
		ConnectTimeout: 5 * time.Second,
		Timeout:        timeout,
	}
}

func TestRunCommandEcho(t *testing.T) {
	srv := newServer(t)
	tr := connect(t, passwordOptions(srv))

	start := time.Now()
	res, err := tr.RunCommand(context.Background(), commandOptions("echo hi", 5*time.Second))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "hi\n")
	assert.Empty(t, res.Stderr)
	assert.Equal(t, 0, res.ExitCode)
	assert.Less(t, elapsed, 5*time.Second)
	assert.Equal(t, "echo hi", <-srv.ExecCommands())
}

func TestRunCommandNonZeroExit(t *testing.T) {
	srv := newServer(t)
	tr := connect(t, passwordOptions(srv))

	res, err := tr.RunCommand(context.Background(), commandOptions("echo out; fail 2 oops", 5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "oops\n", res.Stderr)
}

func TestRunCommandPtyMergesStderr(t *testing.T) {
	srv := newServer(t)
	tr := connect(t, passwordOptions(srv))

	opts := commandOptions("echo out; fail 3 boom", 5*time.Second)
	opts.Pty = true
	res, err := tr.RunCommand(context.Background(), opts)

	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, res.Stdout, res.Stderr)
	assert.Contains(t, res.Stdout, "boom")
	assert.Equal(t, 1, srv.PtyRequests())

	// A successful pty command keeps its own (empty) stderr.
	opts.Command = "echo fine"
	res, err = tr.RunCommand(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Empty(t, res.Stderr)
}

func TestRunCommandTimeout(t *testing.T) {
	srv := newServer(t)
	tr := connect(t, passwordOptions(srv))

	start := time.Now()
	res, err := tr.RunCommand(context.Background(), commandOptions("echo partial; sleep 10", 300*time.Millisecond))
	elapsed := time.Since(start)

	var timeoutErr *CommandTimeoutError
	require.True(t, errors.As(err, &timeoutErr), "got %v", err)
	assert.Equal(t, 300*time.Millisecond, timeoutErr.Timeout)
	assert.Same(t, res, timeoutErr.Result)
	assert.Equal(t, -1, res.ExitCode)
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 5*time.Second)

	require.Eventually(t, func() bool {
		r, err := tr.RunCommand(context.Background(), commandOptions("echo again", time.Second))
		return err == nil && r.Stdout == "again\n"
	}, 2*time.Second, 50*time.Millisecond, "transport survives a timed out command")
}

func TestRunCommandTimeoutKeepsPartialOutput(t *testing.T) {
	srv := newServer(t)
	tr := connect(t, passwordOptions(srv))

	_, err := tr.RunCommand(context.Background(), commandOptions("echo partial; sleep 10", time.Second))
	var timeoutErr *CommandTimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, "partial\n", timeoutErr.Result.Stdout)
}

func TestRunCommandMissingExitStatus(t *testing.T) {
	srv := newServer(t)
	tr := connect(t, passwordOptions(srv))

	res, err := tr.RunCommand(context.Background(), commandOptions("noexit", 5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, -1, res.ExitCode)
}

func TestRunCommandContextCancelled(t *testing.T) {
	srv := newServer(t)
	tr := connect(t, passwordOptions(srv))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	res, err := tr.RunCommand(ctx, commandOptions("sleep 10", 10*time.Second))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, res)
	assert.Equal(t, -1, res.ExitCode)
}

func TestRunCommandCharacterSet(t *testing.T) {
	srv := newServer(t)
	tr := connect(t, passwordOptions(srv))

	opts := commandOptions("echo café", 5*time.Second)
	opts.CharacterSet = "ISO-8859-1"
	res, err := tr.RunCommand(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "café\n", res.Stdout)
	assert.Equal(t, "echo caf\xe9", <-srv.ExecCommands())

	opts.CharacterSet = "no-such-charset"
	_, err = tr.RunCommand(context.Background(), opts)
	assert.Error(t, err)
}

func TestRunCommandAgentForwarding(t *testing.T) {
	srv := newServer(t)
	tr := connect(t, passwordOptions(srv))

	t.Setenv("SSH_AUTH_SOCK", "")
	opts := commandOptions("echo hi", 5*time.Second)
	opts.AgentForwarding = true
	res, err := tr.RunCommand(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", res.Stdout)
	assert.Equal(t, 0, srv.AgentRequests())

	sock := filepath.Join(t.TempDir(), "agent.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	keyring := agent.NewKeyring()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go agent.ServeAgent(keyring, c)
		}
	}()

	t.Setenv("SSH_AUTH_SOCK", sock)
	_, err = tr.RunCommand(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, srv.AgentRequests())
}

func TestRunShellWaitsFullTimeout(t *testing.T) {
	srv := newServer(t)
	tr := connect(t, passwordOptions(srv))

	timeout := 400 * time.Millisecond
	start := time.Now()
	res, err := tr.RunShell(context.Background(), commandOptions("echo hi", timeout))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Contains(t, res.Stdout, "hi\n")
	assert.Equal(t, 0, res.ExitCode)
}

func TestRunShellExitStatusOfLastCommand(t *testing.T) {
	srv := newServer(t)
	tr := connect(t, passwordOptions(srv))

	opts := commandOptions("fail 4 nope", 100*time.Millisecond)
	opts.Newline = "\r\n"
	res, err := tr.RunShell(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 4, res.ExitCode)
	assert.Equal(t, "nope\n", res.Stderr)
}

func TestRunShellCancelled(t *testing.T) {
	srv := newServer(t)
	tr := connect(t, passwordOptions(srv))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := tr.RunShell(ctx, commandOptions("echo hi", 10*time.Second))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCommandOnClosedTransport(t *testing.T) {
	srv := newServer(t)
	tr := connect(t, passwordOptions(srv))
	require.NoError(t, tr.Close())

	_, err := tr.RunCommand(context.Background(), commandOptions("echo hi", time.Second))
	assert.Error(t, err)
}

func startEchoServer(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				io.Copy(c, c)
			}()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestCreateLocalTunnel(t *testing.T) {
	srv := newServer(t)
	tr := connect(t, passwordOptions(srv))
	echoPort := startEchoServer(t)

	port, err := tr.CreateLocalTunnel(0, "127.0.0.1", echoPort)
	require.NoError(t, err)
	require.NotZero(t, port)

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	_, err = conn.Write([]byte("ping\n"))
	require.NoError(t, err)
	buf := make([]byte, 5)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping\n", string(buf))
	conn.Close()

	// The same port cannot be bound twice.
	_, err = tr.CreateLocalTunnel(port, "127.0.0.1", echoPort)
	var tunnelErr *TunnelError
	assert.True(t, errors.As(err, &tunnelErr))

	require.NoError(t, tr.Close())
	require.Eventually(t, func() bool {
		c, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err != nil {
			return true
		}
		c.Close()
		return false
	}, 5*time.Second, 50*time.Millisecond, "listener closes with the session")
}
