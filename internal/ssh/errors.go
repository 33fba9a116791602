package ssh

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotConnected is returned when an operation needs a live transport.
var ErrNotConnected = errors.New("ssh session is not connected")

// ConnectionError is returned for dial, proxy, handshake, authentication and
// host key failures.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("ssh connection to %s failed: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// CommandTimeoutError is returned when a command outlives its timeout.
// Result holds whatever output was captured.
type CommandTimeoutError struct {
	Timeout time.Duration
	Result  *CommandResult
}

func (e *CommandTimeoutError) Error() string {
	return fmt.Sprintf("timeout of %s elapsed while waiting for the command to complete", e.Timeout)
}

// TunnelError wraps a failure to set up local port forwarding.
type TunnelError struct {
	Local  string
	Remote string
	Err    error
}

func (e *TunnelError) Error() string {
	return fmt.Sprintf("port forwarding %s -> %s: %v", e.Local, e.Remote, e.Err)
}

func (e *TunnelError) Unwrap() error {
	return e.Err
}
