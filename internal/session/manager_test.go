package session

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/crypto/ssh"

	"ssh-actions/internal/sshtest"
)

func newTestManager(idle time.Duration) *Manager {
	log, _ := test.NewNullLogger()
	return NewManager(idle, log)
}

// dial returns a live client; Close is exercised on it.
func dial(t *testing.T, srv *sshtest.Server) *ssh.Client {
	t.Helper()
	client, err := ssh.Dial("tcp", srv.Addr, &ssh.ClientConfig{
		User:            "tester",
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	})
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	return client
}

func TestNewManager(t *testing.T) {
	manager := newTestManager(10 * time.Minute)

	if manager == nil {
		t.Fatal("NewManager returned nil")
	}
	if manager.idleTimeout != 10*time.Minute {
		t.Errorf("Expected idle timeout %v, got %v", 10*time.Minute, manager.idleTimeout)
	}
	if manager.sessions == nil {
		t.Error("Sessions map not initialized")
	}

	// Zero disables expiry
	manager = newTestManager(0)
	if manager.idleTimeout != 0 {
		t.Errorf("Expected expiry disabled, got %v", manager.idleTimeout)
	}
}

func TestSaveAndLookup(t *testing.T) {
	manager := newTestManager(0)
	client := &ssh.Client{}
	channel := &ssh.Session{}

	if !manager.Save("flow-1", client, channel, "example.com", "testuser") {
		t.Fatal("Save returned false")
	}

	session, ok := manager.Lookup("flow-1")
	if !ok {
		t.Fatal("Lookup did not find saved session")
	}
	if session.Client != client {
		t.Error("Lookup returned a different client")
	}
	if session.Channel != channel {
		t.Error("Lookup returned a different channel")
	}
	if session.Host != "example.com" || session.Username != "testuser" {
		t.Errorf("Unexpected session details: %+v", session)
	}

	again, _ := manager.Lookup("flow-1")
	if again != session {
		t.Error("Lookup should return the exact cached session")
	}

	if _, ok := manager.Lookup("non-existent"); ok {
		t.Error("Lookup found a non-existent session")
	}
}

func TestSaveRejectsEmpty(t *testing.T) {
	manager := newTestManager(0)

	if manager.Save("", &ssh.Client{}, nil, "host", "user") {
		t.Error("Save accepted an empty id")
	}
	if manager.Save("id", nil, nil, "host", "user") {
		t.Error("Save accepted a nil client")
	}
	if manager.Len() != 0 {
		t.Errorf("Expected 0 sessions, got %d", manager.Len())
	}
}

func TestSaveSameClientKeepsCreatedAt(t *testing.T) {
	manager := newTestManager(0)
	client := &ssh.Client{}

	manager.Save("flow-1", client, nil, "host", "user")
	first, _ := manager.Lookup("flow-1")
	created := first.CreatedAt

	channel := &ssh.Session{}
	manager.Save("flow-1", client, channel, "host", "user")
	second, _ := manager.Lookup("flow-1")

	if second != first {
		t.Error("Saving the same client again should update the existing entry")
	}
	if !second.CreatedAt.Equal(created) || second.Channel != channel {
		t.Errorf("Unexpected entry after re-save: %+v", second)
	}
}

func TestSaveClosesReplacedClient(t *testing.T) {
	srv := sshtest.New(t, sshtest.Options{})
	manager := newTestManager(0)
	old := dial(t, srv)
	replacement := dial(t, srv)
	defer replacement.Close()

	manager.Save("flow-1", old, nil, srv.Host, "tester")
	if !manager.Save("flow-1", replacement, nil, srv.Host, "tester") {
		t.Fatal("Save returned false")
	}

	session, ok := manager.Lookup("flow-1")
	if !ok || session.Client != replacement {
		t.Fatal("Lookup should return the replacement client")
	}
	if _, err := old.NewSession(); err == nil {
		t.Error("Replaced client should be closed")
	}
	sess, err := replacement.NewSession()
	if err != nil {
		t.Fatalf("Replacement client should stay open: %v", err)
	}
	sess.Close()
}

func TestRemoveDoesNotClose(t *testing.T) {
	srv := sshtest.New(t, sshtest.Options{})
	manager := newTestManager(0)
	client := dial(t, srv)
	defer client.Close()

	manager.Save("flow-1", client, nil, srv.Host, "tester")

	removed, ok := manager.Remove("flow-1")
	if !ok || removed.Client != client {
		t.Fatal("Remove did not return the cached session")
	}
	if _, ok := manager.Lookup("flow-1"); ok {
		t.Error("Session still cached after Remove")
	}
	if _, ok := manager.Remove("flow-1"); ok {
		t.Error("Second Remove should report not found")
	}

	// The connection is still usable by the caller.
	sess, err := client.NewSession()
	if err != nil {
		t.Fatalf("Client was closed by Remove: %v", err)
	}
	sess.Close()
}

func TestCloseSession(t *testing.T) {
	srv := sshtest.New(t, sshtest.Options{})
	manager := newTestManager(0)
	client := dial(t, srv)
	channel, err := client.NewSession()
	if err != nil {
		t.Fatalf("Failed to open channel: %v", err)
	}

	manager.Save("flow-1", client, channel, srv.Host, "tester")
	if err := manager.Close("flow-1"); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
	if manager.Len() != 0 {
		t.Errorf("Expected 0 sessions after Close, got %d", manager.Len())
	}
	if _, err := client.NewSession(); err == nil {
		t.Error("Client should be closed")
	}

	if err := manager.Close("flow-1"); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestList(t *testing.T) {
	manager := newTestManager(0)

	if sessions := manager.List(); len(sessions) != 0 {
		t.Errorf("Expected 0 sessions, got %d", len(sessions))
	}

	manager.Save("session1", &ssh.Client{}, nil, "host1", "user1")
	manager.Save("session2", &ssh.Client{}, nil, "host2", "user2")

	sessions := manager.List()
	if len(sessions) != 2 {
		t.Errorf("Expected 2 sessions, got %d", len(sessions))
	}

	ids := make(map[string]bool)
	for _, s := range sessions {
		ids[s.ID] = true
	}
	if !ids["session1"] || !ids["session2"] {
		t.Error("List did not return all sessions")
	}
}

func TestCloseAll(t *testing.T) {
	srv := sshtest.New(t, sshtest.Options{})
	manager := newTestManager(time.Minute)
	manager.StartCleanupRoutine(10 * time.Millisecond)

	clients := []*ssh.Client{dial(t, srv), dial(t, srv)}
	manager.Save("a", clients[0], nil, srv.Host, "tester")
	manager.Save("b", clients[1], nil, srv.Host, "tester")

	if err := manager.CloseAll(); err != nil {
		t.Errorf("CloseAll returned error: %v", err)
	}
	if manager.Len() != 0 {
		t.Errorf("Expected empty cache, got %d", manager.Len())
	}
	for _, c := range clients {
		if _, err := c.NewSession(); err == nil {
			t.Error("Client should be closed after CloseAll")
		}
	}

	// Teardown twice is harmless.
	if err := manager.CloseAll(); err != nil {
		t.Errorf("Second CloseAll returned error: %v", err)
	}
}

func TestCleanupExpiredSessions(t *testing.T) {
	srv := sshtest.New(t, sshtest.Options{})
	manager := newTestManager(100 * time.Millisecond)
	now := time.Now()
	manager.nowFn = func() time.Time { return now }

	manager.Save("session1", dial(t, srv), nil, "host1", "user1")
	manager.Save("session2", dial(t, srv), nil, "host2", "user2")

	manager.sessions["session1"].LastActivity = now.Add(-200 * time.Millisecond)

	if count := manager.CleanupExpiredSessions(); count != 1 {
		t.Errorf("Expected 1 session to be cleaned up, got %d", count)
	}
	if _, exists := manager.sessions["session1"]; exists {
		t.Error("Expired session was not removed")
	}
	if _, exists := manager.sessions["session2"]; !exists {
		t.Error("Non-expired session was removed")
	}
	manager.CloseAll()
}

func TestNoExpiryWhenDisabled(t *testing.T) {
	manager := newTestManager(0)
	manager.Save("session1", &ssh.Client{}, nil, "host1", "user1")
	manager.sessions["session1"].LastActivity = time.Now().Add(-24 * time.Hour)

	if count := manager.CleanupExpiredSessions(); count != 0 {
		t.Errorf("Expected no cleanup with expiry disabled, got %d", count)
	}

	// Should not start anything.
	manager.StartCleanupRoutine(time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	if manager.Len() != 1 {
		t.Error("Session expired although expiry is disabled")
	}
}
