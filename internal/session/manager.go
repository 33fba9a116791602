package session

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// ErrNotFound is returned when no cached session exists for an id.
var ErrNotFound = errors.New("session not found")

// Session is a cached, authenticated SSH connection. Channel is the
// long-lived command channel opened for expect-style interactions, if any.
type Session struct {
	ID           string
	Client       *ssh.Client
	Channel      *ssh.Session
	Host         string
	Username     string
	CreatedAt    time.Time
	LastActivity time.Time
}

// Close closes the channel (if any) and the client.
func (s *Session) Close() error {
	if s.Channel != nil {
		s.Channel.Close()
	}
	if s.Client == nil {
		return nil
	}
	return s.Client.Close()
}

// Manager is the session cache. It owns every session saved into it until the
// session is removed or the manager is torn down with CloseAll.
//
// Only the map is locked. Callers sharing one session id must serialize the
// commands they send over it.
type Manager struct {
	sessions    map[string]*Session
	mu          sync.RWMutex
	idleTimeout time.Duration
	log         logrus.FieldLogger
	stop        chan struct{}
	stopOnce    sync.Once
	nowFn       func() time.Time
}

// NewManager creates an empty cache. An idleTimeout of zero disables expiry,
// sessions then live until they are removed or CloseAll is called.
func NewManager(idleTimeout time.Duration, log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
		log:         log.WithField("component", "session"),
		stop:        make(chan struct{}),
		nowFn:       time.Now,
	}
}

// Save stores client and channel under id. A different client already cached
// under id is closed once it has been replaced. It reports false when there is
// nothing to store.
func (m *Manager) Save(id string, client *ssh.Client, channel *ssh.Session, host, username string) bool {
	if id == "" || client == nil {
		return false
	}

	m.mu.Lock()
	prev, ok := m.sessions[id]
	if ok && prev.Client == client {
		prev.Channel = channel
		prev.LastActivity = m.nowFn()
		m.mu.Unlock()
		return true
	}

	now := m.nowFn()
	m.sessions[id] = &Session{
		ID:           id,
		Client:       client,
		Channel:      channel,
		Host:         host,
		Username:     username,
		CreatedAt:    now,
		LastActivity: now,
	}
	m.mu.Unlock()

	if ok {
		if err := prev.Close(); err != nil {
			m.log.WithError(err).WithField("session", id).Debug("close replaced session")
		}
		m.log.WithField("session", id).Info("replaced cached session")
	}
	m.log.WithFields(logrus.Fields{"session": id, "host": host}).Debug("session cached")
	return true
}

// Lookup returns the cached session for id and marks it as used.
func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	s.LastActivity = m.nowFn()
	return s, true
}

// Remove evicts the session for id without closing it. The caller owns the
// returned session.
func (m *Manager) Remove(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	delete(m.sessions, id)
	return s, true
}

// Close evicts and closes the session for id.
func (m *Manager) Close(id string) error {
	s, ok := m.Remove(id)
	if !ok {
		return ErrNotFound
	}
	m.log.WithField("session", id).Debug("session closed")
	return s.Close()
}

// List returns a snapshot of the cached sessions.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Len returns the number of cached sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll stops the cleanup routine, then closes and evicts every session.
// It returns the first close error.
func (m *Manager) CloseAll() error {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var firstErr error
	for id, s := range sessions {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.log.WithField("session", id).Debug("session closed on teardown")
	}
	return firstErr
}

// CleanupExpiredSessions closes sessions idle for longer than the idle
// timeout. It is a no-op when expiry is disabled.
func (m *Manager) CleanupExpiredSessions() int {
	if m.idleTimeout <= 0 {
		return 0
	}

	m.mu.Lock()
	now := m.nowFn()
	var expired []*Session
	for id, s := range m.sessions {
		if now.Sub(s.LastActivity) > m.idleTimeout {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Close()
		m.log.WithField("session", s.ID).Info("idle session expired")
	}
	return len(expired)
}

// StartCleanupRoutine periodically expires idle sessions until CloseAll is
// called. Nothing is started when expiry is disabled.
func (m *Manager) StartCleanupRoutine(interval time.Duration) {
	if m.idleTimeout <= 0 {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.CleanupExpiredSessions()
			case <-m.stop:
				return
			}
		}
	}()
}
