package actions

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"ssh-actions/internal/audit"
	"ssh-actions/internal/inputs"
	"ssh-actions/internal/result"
	"ssh-actions/internal/session"
)

// CloseSession evicts and closes a cached session.
func (s *Service) CloseSession(_ context.Context, args SessionArgs) result.Map {
	return s.guard(KindCloseSession, func() (result.Map, error) {
		var v inputs.Validator
		id := v.Required("sessionId", args.SessionID)
		if err := v.Err(); err != nil {
			return nil, err
		}

		cached, ok := s.sessions.Remove(id)
		if !ok {
			return nil, fmt.Errorf("close session %q: %w", id, session.ErrNotFound)
		}
		if err := cached.Close(); err != nil {
			s.log.WithError(err).WithField("session", id).Debug("close session")
		}
		s.audit.Record(audit.Record{
			SessionID: id,
			EventType: audit.EventSessionClosed,
			Host:      cached.Host,
			Username:  cached.Username,
		})
		return result.Success(fmt.Sprintf("Session %s closed", id)).With(result.Map{result.SessionID: id}), nil
	})
}

// ListSessions describes the cached sessions, one per line, oldest first.
func (s *Service) ListSessions(_ context.Context, _ ListArgs) result.Map {
	return s.guard(KindListSessions, func() (result.Map, error) {
		sessions := s.sessions.List()
		sort.Slice(sessions, func(i, j int) bool {
			if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
				return sessions[i].ID < sessions[j].ID
			}
			return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
		})

		lines := make([]string, 0, len(sessions))
		for _, sess := range sessions {
			lines = append(lines, fmt.Sprintf("%s %s@%s created=%s last_activity=%s",
				sess.ID, sess.Username, sess.Host,
				sess.CreatedAt.UTC().Format(time.RFC3339),
				sess.LastActivity.UTC().Format(time.RFC3339)))
		}
		return result.Success(strings.Join(lines, "\n")).With(result.Map{
			result.Count: strconv.Itoa(len(sessions)),
		}), nil
	})
}
