package security

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(config Config) *Manager {
	log, _ := test.NewNullLogger()
	return NewManager(config, log)
}

func TestCheckHost(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		host    string
		allowed bool
	}{
		{"no lists", Config{}, "example.com", true},
		{"denied exact", Config{DeniedHosts: []string{"evil.com"}}, "evil.com", false},
		{"denied wins over allowed", Config{AllowedHosts: []string{"evil.com"}, DeniedHosts: []string{"evil.com"}}, "evil.com", false},
		{"allowed exact", Config{AllowedHosts: []string{"example.com"}}, "example.com", true},
		{"not in allow list", Config{AllowedHosts: []string{"example.com"}}, "unknown.com", false},
		{"port is ignored", Config{AllowedHosts: []string{"example.com"}}, "example.com:22", true},
		{"wildcard", Config{AllowedHosts: []string{"*.example.com"}}, "sub.example.com", true},
		{"wildcard other domain", Config{AllowedHosts: []string{"*.example.com"}}, "other.com", false},
		{"cidr inside", Config{AllowedHosts: []string{"192.168.1.0/24"}}, "192.168.1.10", true},
		{"cidr outside", Config{AllowedHosts: []string{"192.168.1.0/24"}}, "192.168.2.10", false},
		{"cidr with hostname", Config{AllowedHosts: []string{"192.168.1.0/24"}}, "db.local", false},
		{"denied cidr", Config{DeniedHosts: []string{"10.0.0.0/8"}}, "10.1.2.3", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newManager(tt.config).CheckHost(tt.host)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrDenied)
		})
	}
}

func TestCheckCommand(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		command string
		allowed bool
	}{
		{"no lists", Config{}, "ls -la", true},
		{"denied prefix", Config{DeniedCommands: []string{"rm"}}, "rm -rf /tmp/x", false},
		{"other command with deny list", Config{DeniedCommands: []string{"rm"}}, "ls", true},
		{"allowed prefix", Config{AllowedCommands: []string{"ls", "cat"}}, "cat /etc/hostname", true},
		{"not in allow list", Config{AllowedCommands: []string{"ls", "cat"}}, "uname -a", false},
		{"deny beats allow", Config{AllowedCommands: []string{"sudo"}, DeniedCommands: []string{"sudo rm"}}, "sudo rm -rf /", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newManager(tt.config).CheckCommand("s1", tt.command)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrDenied)
		})
	}
}

func TestRateLimitPerSession(t *testing.T) {
	m := newManager(Config{RateLimit: time.Hour})

	require.NoError(t, m.CheckCommand("s1", "ls"))
	assert.ErrorIs(t, m.CheckCommand("s1", "ls"), ErrRateLimited)
	assert.NoError(t, m.CheckCommand("s2", "ls"), "limits are kept per session")
}

func TestRateLimitRecovers(t *testing.T) {
	m := newManager(Config{RateLimit: 50 * time.Millisecond})

	require.NoError(t, m.CheckCommand("s1", "ls"))
	require.ErrorIs(t, m.CheckCommand("s1", "ls"), ErrRateLimited)
	assert.Eventually(t, func() bool {
		return m.CheckCommand("s1", "ls") == nil
	}, time.Second, 10*time.Millisecond)
}

func TestCleanupRateLimiter(t *testing.T) {
	m := newManager(Config{RateLimit: time.Second})
	require.NoError(t, m.CheckCommand("old", "ls"))
	require.NoError(t, m.CheckCommand("new", "ls"))

	m.mu.Lock()
	m.limiters["old"].lastSeen = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	m.CleanupRateLimiter(30 * time.Minute)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.NotContains(t, m.limiters, "old")
	assert.Contains(t, m.limiters, "new")
}

func TestCleanupRoutineStops(t *testing.T) {
	m := newManager(Config{RateLimit: time.Second})
	require.NoError(t, m.CheckCommand("s1", "ls"))

	m.mu.Lock()
	m.limiters["s1"].lastSeen = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	m.StartCleanupRoutine(10*time.Millisecond, time.Minute)
	defer m.Stop()

	assert.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.limiters) == 0
	}, time.Second, 10*time.Millisecond)

	m.Stop()
	m.Stop()
}

func TestOperationLogging(t *testing.T) {
	log, hook := test.NewNullLogger()
	m := NewManager(Config{DeniedCommands: []string{"rm"}, LoggingEnabled: true}, log)

	assert.Error(t, m.CheckCommand("s1", "rm -rf /\nlevel=info msg=forged"))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "command_denied", entry.Data["operation"])
	assert.Equal(t, "s1", entry.Data["session"])
	assert.NotContains(t, entry.Message, "\n")
}

func TestLoggingDisabled(t *testing.T) {
	log, hook := test.NewNullLogger()
	m := NewManager(Config{}, log)

	require.NoError(t, m.CheckCommand("s1", "ls"))
	assert.Empty(t, hook.AllEntries())
}
