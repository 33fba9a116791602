package ssh

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	exitCommand       = "exit"
	defaultDrainLimit = 10 * time.Second
)

// RunShell writes the command to an interactive shell, waits the whole
// timeout, then sends exit and collects what the shell printed. A shell has
// no completion signal for a single command, so the call always takes at
// least opts.Timeout.
func (t *Transport) RunShell(ctx context.Context, opts CommandOptions) (*CommandResult, error) {
	enc, err := lookupCharset(opts.CharacterSet)
	if err != nil {
		return nil, err
	}
	newline := opts.Newline
	if newline == "" {
		newline = "\n"
	}
	command, err := encodeString(enc, opts.Command+newline)
	if err != nil {
		return nil, err
	}
	exit, err := encodeString(enc, exitCommand+newline)
	if err != nil {
		return nil, err
	}

	sess, err := t.openChannel(ctx, opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	if opts.Pty {
		if err := sess.RequestPty(ptyTerm, ptyHeight, ptyWidth, ptyModes); err != nil {
			return nil, fmt.Errorf("request pty: %w", err)
		}
	}
	if opts.AgentForwarding {
		if err := t.forwardAgent(sess); err != nil {
			t.log.WithError(err).Warn("agent forwarding unavailable")
		}
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open shell stdin: %w", err)
	}
	var stdout, stderr syncBuffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	if err := sess.Shell(); err != nil {
		return nil, fmt.Errorf("start shell: %w", err)
	}
	if _, err := io.WriteString(stdin, command); err != nil {
		return nil, fmt.Errorf("write command: %w", err)
	}

	timer := time.NewTimer(opts.Timeout)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		return nil, ctx.Err()
	}

	if _, err := io.WriteString(stdin, exit); err != nil {
		t.log.WithError(err).Debug("shell already closed before exit was sent")
	}

	done := make(chan error, 1)
	go func() {
		done <- sess.Wait()
	}()

	drain := opts.ConnectTimeout
	if drain <= 0 {
		drain = defaultDrainLimit
	}

	code := -1
	select {
	case err := <-done:
		code, _ = exitStatus(err)
	case <-time.After(drain):
		sess.Close()
		t.log.WithField("drain", drain).Warn("shell did not exit, returning collected output")
	case <-ctx.Done():
		sess.Close()
		return nil, ctx.Err()
	}

	t.log.WithFields(logrus.Fields{"exit_code": code}).Debug("shell finished")
	return &CommandResult{
		Stdout:   decodeBytes(enc, stdout.Bytes()),
		Stderr:   decodeBytes(enc, stderr.Bytes()),
		ExitCode: code,
	}, nil
}
