// Package result builds the flat string maps every action returns.
package result

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Output names.
const (
	ReturnResult = "returnResult"
	ReturnCode   = "returnCode"
	Exception    = "exception"

	Stdout    = "STDOUT"
	Stderr    = "STDERR"
	ExitCode  = "exitCode"
	SessionID = "sessionId"
	LocalPort = "localPort"
	Files     = "files"
	Count     = "count"
)

// Return codes.
const (
	CodeSuccess = "0"
	CodeFailure = "-1"
)

// Map is an action result.
type Map map[string]string

// Success returns a successful result with message as returnResult.
func Success(message string) Map {
	return Map{ReturnResult: message, ReturnCode: CodeSuccess}
}

// Failure returns a failed result for err.
func Failure(err error) Map {
	if err == nil {
		err = errors.New("unknown error")
	}
	return Map{
		ReturnResult: err.Error(),
		ReturnCode:   CodeFailure,
		Exception:    Describe(err),
	}
}

// With copies extra outputs into m and returns it.
func (m Map) With(outputs map[string]string) Map {
	for k, v := range outputs {
		m[k] = v
	}
	return m
}

// Succeeded reports whether the result carries the success code.
func (m Map) Succeeded() bool {
	return m[ReturnCode] == CodeSuccess
}

// Describe renders err and the chain of errors it wraps, one per line, with
// the concrete type of each.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	describe(&b, err, 0)
	return strings.TrimRight(b.String(), "\n")
}

func describe(b *strings.Builder, err error, depth int) {
	indent := strings.Repeat("\t", depth)
	if depth == 0 {
		fmt.Fprintf(b, "%T: %s\n", err, err)
	} else {
		fmt.Fprintf(b, "%sCaused by: %T: %s\n", indent, err, err)
	}

	var merr *multierror.Error
	if errors.As(err, &merr) && merr == err {
		for _, e := range merr.Errors {
			describe(b, e, depth+1)
		}
		return
	}

	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			describe(b, e, depth+1)
		}
	case interface{ Unwrap() error }:
		if next := u.Unwrap(); next != nil {
			describe(b, next, depth+1)
		}
	}
}
