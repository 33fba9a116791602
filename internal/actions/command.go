package actions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ssh-actions/internal/audit"
	"ssh-actions/internal/inputs"
	"ssh-actions/internal/result"
	"ssh-actions/internal/ssh"
)

// Command runs a command on an exec channel.
func (s *Service) Command(ctx context.Context, args CommandArgs) result.Map {
	return s.guard(KindCommand, func() (result.Map, error) {
		return s.runCommand(ctx, KindCommand, args)
	})
}

// Shell sends a command to an interactive shell.
func (s *Service) Shell(ctx context.Context, args CommandArgs) result.Map {
	return s.guard(KindShell, func() (result.Map, error) {
		return s.runCommand(ctx, KindShell, args)
	})
}

func (s *Service) runCommand(ctx context.Context, kind Kind, args CommandArgs) (result.Map, error) {
	var v inputs.Validator
	opts, id, closeSession := s.connectOptions(&v, args.Connection)
	cmd := ssh.CommandOptions{
		Command:         v.Required("command", args.Command),
		CharacterSet:    inputs.Default(args.CharacterSet, s.defaults.CharacterSet),
		Pty:             v.Bool("pty", args.Pty, false),
		ConnectTimeout:  opts.ConnectTimeout,
		Timeout:         v.Millis("timeout", args.Timeout, s.defaults.CommandTimeout),
		AgentForwarding: v.Bool("agentForwarding", args.AgentForwarding, false),
		Newline:         v.Newline("newline", args.Newline),
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	if s.security != nil {
		if err := s.security.CheckCommand(id, cmd.Command); err != nil {
			return nil, err
		}
	}

	t, err := s.acquire(ctx, opts, id)
	if err != nil {
		return nil, err
	}
	defer s.release(t, id, closeSession)

	run := t.RunCommand
	if kind == KindShell {
		run = t.RunShell
	}

	start := time.Now()
	res, err := run(ctx, cmd)
	entry := audit.Record{
		SessionID:  id,
		EventType:  audit.EventCommandExecution,
		Host:       t.Host(),
		Username:   t.Username(),
		Details:    cmd.Command,
		ExitCode:   -1,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if res != nil {
		entry.ExitCode = res.ExitCode
	}

	if err != nil {
		var timeout *ssh.CommandTimeoutError
		if errors.As(err, &timeout) {
			entry.EventType = audit.EventCommandTimeout
		}
		entry.Failed = true
		s.audit.Record(entry)
		return commandOutputs(res, id), err
	}
	s.audit.Record(entry)

	out := commandOutputs(res, id)
	if res.ExitCode == 0 {
		return result.Success(res.Stdout).With(out), nil
	}
	return result.Map{
		result.ReturnResult: res.Stderr,
		result.ReturnCode:   result.CodeFailure,
		result.Exception:    fmt.Sprintf("command exited with status %d", res.ExitCode),
	}.With(out), nil
}

func commandOutputs(res *ssh.CommandResult, id string) result.Map {
	out := result.Map{result.SessionID: id}
	if res == nil {
		return out
	}
	out[result.Stdout] = res.Stdout
	out[result.Stderr] = res.Stderr
	out[result.ExitCode] = strconv.Itoa(res.ExitCode)
	return out
}
