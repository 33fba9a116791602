package ssh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

const (
	ptyTerm   = "vt100"
	ptyHeight = 24
	ptyWidth  = 80
)

var ptyModes = ssh.TerminalModes{
	ssh.ECHO:          0,
	ssh.TTY_OP_ISPEED: 14400,
	ssh.TTY_OP_OSPEED: 14400,
}

// RunCommand runs one command on an exec channel and waits for the channel
// to close, the timeout to elapse or ctx to end, whichever comes first.
//
// On timeout the channel is closed and a *CommandTimeoutError carrying the
// output captured so far is returned. With a pseudo-terminal the streams are
// merged by the remote side, so a failing command reports its stdout as
// stderr too.
func (t *Transport) RunCommand(ctx context.Context, opts CommandOptions) (*CommandResult, error) {
	enc, err := lookupCharset(opts.CharacterSet)
	if err != nil {
		return nil, err
	}
	command, err := encodeString(enc, opts.Command)
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

	var stdout, stderr syncBuffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	start := time.Now()
	if err := sess.Start(command); err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- sess.Wait()
	}()

	var expired <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		expired = timer.C
	}

	collect := func(exitCode int) *CommandResult {
		res := &CommandResult{
			Stdout:   decodeBytes(enc, stdout.Bytes()),
			Stderr:   decodeBytes(enc, stderr.Bytes()),
			ExitCode: exitCode,
		}
		if opts.Pty && exitCode != 0 {
			res.Stderr = res.Stdout
		}
		return res
	}

	select {
	case err := <-done:
		code, waitErr := exitStatus(err)
		res := collect(code)
		t.log.WithFields(logrus.Fields{
			"exit_code": code,
			"duration":  time.Since(start).Round(time.Millisecond),
		}).Debug("command finished")
		if waitErr != nil {
			return res, fmt.Errorf("command execution failed: %w", waitErr)
		}
		return res, nil

	case <-expired:
		sess.Close()
		res := collect(-1)
		t.log.WithField("timeout", opts.Timeout).Warn("command timed out")
		return res, &CommandTimeoutError{Timeout: opts.Timeout, Result: res}

	case <-ctx.Done():
		sess.Close()
		return collect(-1), ctx.Err()
	}
}

// exitStatus maps the error from Session.Wait to an exit code. Errors other
// than a reported or missing exit status are returned.
func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) {
		return -1, nil
	}
	return -1, err
}
