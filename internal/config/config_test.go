package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, TransportStdio, cfg.Server.Transport)
	assert.Equal(t, "/mcp", cfg.Server.Endpoint)
	assert.Equal(t, 10*time.Second, cfg.Defaults.ConnectTimeout)
	assert.Equal(t, 90*time.Second, cfg.Defaults.CommandTimeout)
	assert.Equal(t, "allow", cfg.Defaults.KnownHostsPolicy)
	assert.Equal(t, "UTF-8", cfg.Defaults.CharacterSet)
	assert.Zero(t, cfg.Session.IdleTimeout)
	assert.Empty(t, cfg.Audit.Path)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ssh-actions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  transport: http
  addr: 127.0.0.1:9000
session:
  idle_timeout: 30m
security:
  denied_hosts: ["10.0.0.1", "*.internal"]
  rate_limit: 1s
defaults:
  command_timeout: 2m
  known_hosts_policy: strict
`), 0600))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, TransportHTTP, cfg.Server.Transport)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, []string{"10.0.0.1", "*.internal"}, cfg.Security.DeniedHosts)
	assert.Equal(t, time.Second, cfg.Security.RateLimit)
	assert.Equal(t, 2*time.Minute, cfg.Defaults.CommandTimeout)
	assert.Equal(t, "strict", cfg.Defaults.KnownHostsPolicy)
	assert.Equal(t, 10*time.Second, cfg.Defaults.ConnectTimeout)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("SSH_ACTIONS_SERVER_TRANSPORT", "http")
	t.Setenv("SSH_ACTIONS_AUDIT_PATH", "/var/lib/ssh-actions/audit.db")
	t.Setenv("SSH_ACTIONS_DEFAULTS_CONNECT_TIMEOUT", "3s")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, TransportHTTP, cfg.Server.Transport)
	assert.Equal(t, "/var/lib/ssh-actions/audit.db", cfg.Audit.Path)
	assert.Equal(t, 3*time.Second, cfg.Defaults.ConnectTimeout)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("SSH_ACTIONS_SERVER_TRANSPORT", "carrier-pigeon")
	_, err := Load(viper.New(), "")
	assert.ErrorContains(t, err, "server.transport")

	_, err = Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
