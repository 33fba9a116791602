package sshtest

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// DefaultHandler understands a few commands, separated by ";":
//
//	echo ARGS          prints ARGS
//	sleep SECONDS      waits, fractions allowed
//	fail CODE MESSAGE  prints MESSAGE to stderr and exits with CODE
//	true, false        exit 0 and 1
//	noexit             ends without an exit status
//
// Anything else prints "command not found" and exits 127.
func DefaultHandler(ctx context.Context, line string, stdout, stderr io.Writer) int {
	code := 0
	for _, cmd := range strings.Split(line, ";") {
		fields := strings.Fields(cmd)
		if len(fields) == 0 {
			continue
		}
		args := unquote(fields[1:])

		switch fields[0] {
		case "echo":
			fmt.Fprintln(stdout, strings.Join(args, " "))
			code = 0
		case "sleep":
			d, err := strconv.ParseFloat(firstOr(args, "0"), 64)
			if err != nil {
				fmt.Fprintf(stderr, "sleep: invalid time interval %q\n", firstOr(args, ""))
				return 1
			}
			select {
			case <-time.After(time.Duration(d * float64(time.Second))):
			case <-ctx.Done():
				return -1
			}
			code = 0
		case "fail":
			n, err := strconv.Atoi(firstOr(args, "1"))
			if err != nil {
				n = 1
			}
			if len(args) > 1 {
				fmt.Fprintln(stderr, strings.Join(args[1:], " "))
			}
			return n
		case "true":
			code = 0
		case "false":
			code = 1
		case "noexit":
			return -1
		default:
			fmt.Fprintf(stderr, "%s: command not found\n", fields[0])
			return 127
		}
	}
	return code
}

func firstOr(args []string, def string) string {
	if len(args) == 0 {
		return def
	}
	return args[0]
}

func unquote(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = strings.Trim(a, `"'`)
	}
	return out
}
