package security

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"ssh-actions/internal/logging"
)

var (
	// ErrDenied is wrapped by every host or command rejection.
	ErrDenied = errors.New("denied by security policy")
	// ErrRateLimited is returned when a session sends commands too quickly.
	ErrRateLimited = errors.New("rate limit exceeded, please try again later")
)

// Config holds security configuration settings
type Config struct {
	// If empty, all hosts are allowed.
	AllowedHosts []string `mapstructure:"allowed_hosts"`
	DeniedHosts  []string `mapstructure:"denied_hosts"`
	// Prefixes. If empty, all commands are allowed.
	AllowedCommands []string `mapstructure:"allowed_commands"`
	DeniedCommands  []string `mapstructure:"denied_commands"`
	// Minimum time between commands per session.
	RateLimit      time.Duration `mapstructure:"rate_limit"`
	LoggingEnabled bool          `mapstructure:"logging_enabled"`
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Manager checks hosts and commands against the configured policy.
type Manager struct {
	config   Config
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	log      logrus.FieldLogger
	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a new security manager with the given configuration
func NewManager(config Config, log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		config:   config,
		limiters: make(map[string]*limiterEntry),
		log:      log.WithField("component", "security"),
		stop:     make(chan struct{}),
	}
}

// CheckHost verifies if a host is allowed to connect
func (m *Manager) CheckHost(host string) error {
	// Remove port from host if present
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	for _, denied := range m.config.DeniedHosts {
		if matchHost(host, denied) {
			m.logOperation("host_denied", "", host)
			return fmt.Errorf("%w: host %s is denied", ErrDenied, host)
		}
	}

	if len(m.config.AllowedHosts) == 0 {
		return nil
	}

	for _, allowed := range m.config.AllowedHosts {
		if matchHost(host, allowed) {
			return nil
		}
	}

	m.logOperation("host_not_allowed", "", host)
	return fmt.Errorf("%w: host %s is not allowed", ErrDenied, host)
}

// CheckCommand verifies if a command is allowed to execute on a session.
func (m *Manager) CheckCommand(sessionID, command string) error {
	if m.config.RateLimit > 0 && !m.allow(sessionID) {
		m.logOperation("rate_limited", sessionID, command)
		return ErrRateLimited
	}

	for _, denied := range m.config.DeniedCommands {
		if strings.HasPrefix(command, denied) {
			m.logOperation("command_denied", sessionID, command)
			return fmt.Errorf("%w: command '%s' is denied", ErrDenied, command)
		}
	}

	if len(m.config.AllowedCommands) == 0 {
		m.logOperation("command_executed", sessionID, command)
		return nil
	}

	for _, allowed := range m.config.AllowedCommands {
		if strings.HasPrefix(command, allowed) {
			m.logOperation("command_executed", sessionID, command)
			return nil
		}
	}

	m.logOperation("command_not_allowed", sessionID, command)
	return fmt.Errorf("%w: command '%s' is not allowed", ErrDenied, command)
}

func (m *Manager) allow(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.limiters[sessionID]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Every(m.config.RateLimit), 1)}
		m.limiters[sessionID] = e
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

func (m *Manager) logOperation(operation, sessionID, details string) {
	if !m.config.LoggingEnabled {
		return
	}
	m.log.WithFields(logrus.Fields{
		"operation": operation,
		"session":   sessionID,
	}).Info(logging.Sanitize(details))
}

// CleanupRateLimiter forgets sessions idle for longer than maxAge.
func (m *Manager) CleanupRateLimiter(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for sessionID, e := range m.limiters {
		if now.Sub(e.lastSeen) > maxAge {
			delete(m.limiters, sessionID)
		}
	}
}

// StartCleanupRoutine periodically cleans up the rate limiter until Stop is
// called.
func (m *Manager) StartCleanupRoutine(interval, maxAge time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.CleanupRateLimiter(maxAge)
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop ends the cleanup routine.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// matchHost checks if a host matches a pattern: exact, "*.suffix" or CIDR.
func matchHost(host, pattern string) bool {
	if host == pattern {
		return true
	}

	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(host, pattern[1:])
	}

	if strings.Contains(pattern, "/") {
		_, ipNet, err := net.ParseCIDR(pattern)
		if err != nil {
			return false
		}
		ip := net.ParseIP(host)
		if ip == nil {
			return false
		}
		return ipNet.Contains(ip)
	}

	return false
}
