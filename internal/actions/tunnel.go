package actions

import (
	"context"
	"fmt"
	"strconv"

	"ssh-actions/internal/audit"
	"ssh-actions/internal/inputs"
	"ssh-actions/internal/result"
)

// Tunnel forwards a local port through a cached session. The tunnel lives as
// long as the session, so closeSession must stay false.
func (s *Service) Tunnel(ctx context.Context, args TunnelArgs) result.Map {
	return s.guard(KindTunnel, func() (result.Map, error) {
		var v inputs.Validator
		opts, id, closeSession := s.connectOptions(&v, args.Connection)
		localPort := v.Int("localPort", args.LocalPort, 0, 0, 65535)
		remoteHost := v.Required("remoteHost", args.RemoteHost)
		remotePort := 0
		if v.Required("remotePort", args.RemotePort) != "" {
			remotePort = v.Port("remotePort", args.RemotePort, 0)
		}
		if closeSession {
			v.Addf("closeSession must be false for %s: the tunnel is closed together with its session", KindTunnel)
		}
		if err := v.Err(); err != nil {
			return nil, err
		}

		t, err := s.acquire(ctx, opts, id)
		if err != nil {
			return nil, err
		}
		defer s.release(t, id, false)

		port, err := t.CreateLocalTunnel(localPort, remoteHost, remotePort)
		if err != nil {
			return result.Map{result.SessionID: id}, err
		}
		s.audit.Record(audit.Record{
			SessionID: id,
			EventType: audit.EventTunnelCreated,
			Host:      t.Host(),
			Username:  t.Username(),
			Details:   fmt.Sprintf("127.0.0.1:%d -> %s:%d", port, remoteHost, remotePort),
		})

		return result.Success(fmt.Sprintf("Forwarding 127.0.0.1:%d to %s:%d", port, remoteHost, remotePort)).With(result.Map{
			result.LocalPort: strconv.Itoa(port),
			result.SessionID: id,
		}), nil
	})
}
