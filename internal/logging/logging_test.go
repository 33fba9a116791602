package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	log, closer, err := New(Options{})
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ssh-actions.log")
	log, closer, err := New(Options{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)

	log.WithField("session", "s1").Debug("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"session":"s1"`)
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, _, err := New(Options{Level: "loud"})
	assert.Error(t, err)

	_, _, err = New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "rm -rf / fake entry", Sanitize("rm -rf /\nfake entry"))
	assert.Equal(t, "a b", Sanitize("a\tb\x00"))
}
