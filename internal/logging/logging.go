// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options configures the logger.
type Options struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// New returns a logger writing to stderr, and also to File when set. stdout
// is left alone because the stdio MCP transport owns it. The returned closer
// releases the log file.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(defaultString(opts.Level, "info"))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}
	log.SetLevel(level)

	switch strings.ToLower(defaultString(opts.Format, "text")) {
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, nil, fmt.Errorf("invalid log format %q: must be text or json", opts.Format)
	}

	if opts.File == "" {
		return log, nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", opts.File, err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return log, f, nil
}

// Sanitize flattens control characters so user input cannot forge log lines.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case r >= 32:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
