package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"

	"ssh-actions/internal/audit"
	"ssh-actions/internal/file"
	"ssh-actions/internal/inputs"
	"ssh-actions/internal/result"
	"ssh-actions/internal/security"
	"ssh-actions/internal/session"
	"ssh-actions/internal/ssh"
)

// Defaults are the values used for inputs left empty.
type Defaults struct {
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	CommandTimeout   time.Duration `mapstructure:"command_timeout"`
	KnownHostsPolicy string        `mapstructure:"known_hosts_policy"`
	KnownHostsPath   string        `mapstructure:"known_hosts_path"`
	CharacterSet     string        `mapstructure:"character_set"`
}

// DefaultDefaults returns the built-in input defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		ConnectTimeout:   ssh.DefaultConnectTimeout,
		CommandTimeout:   ssh.DefaultCommandTimeout,
		KnownHostsPolicy: string(ssh.KnownHostsAllow),
		KnownHostsPath:   "~/.ssh/known_hosts",
		CharacterSet:     ssh.DefaultCharacterSet,
	}
}

// ConnectFunc opens a transport.
type ConnectFunc func(ctx context.Context, opts ssh.ConnectOptions, log logrus.FieldLogger) (*ssh.Transport, error)

// Service runs actions against a session cache. It is safe for concurrent
// use, but commands sharing a session id must not overlap.
type Service struct {
	sessions *session.Manager
	security *security.Manager
	files    *file.Operations
	audit    audit.Recorder
	defaults Defaults
	log      logrus.FieldLogger
	connect  ConnectFunc
	newID    func() string
}

// Option configures a Service.
type Option func(*Service)

// WithSecurity checks hosts and commands before use.
func WithSecurity(m *security.Manager) Option {
	return func(s *Service) { s.security = m }
}

// WithAudit records connections, commands and file operations.
func WithAudit(r audit.Recorder) Option {
	return func(s *Service) { s.audit = r }
}

// WithDefaults overrides the input defaults.
func WithDefaults(d Defaults) Option {
	return func(s *Service) { s.defaults = d }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) { s.log = log }
}

// WithConnectFunc replaces ssh.Connect.
func WithConnectFunc(fn ConnectFunc) Option {
	return func(s *Service) { s.connect = fn }
}

// NewService creates a Service that caches sessions in sessions.
func NewService(sessions *session.Manager, opts ...Option) *Service {
	s := &Service{
		sessions: sessions,
		audit:    audit.Nop{},
		defaults: DefaultDefaults(),
		log:      logrus.StandardLogger(),
		connect:  ssh.Connect,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.files = file.NewOperations(s.log)
	return s
}

// Run decodes raw inputs for kind and runs the action.
func (s *Service) Run(ctx context.Context, kind Kind, raw map[string]string) result.Map {
	switch kind {
	case KindCommand:
		return dispatch(raw, func(a CommandArgs) result.Map { return s.Command(ctx, a) })
	case KindShell:
		return dispatch(raw, func(a CommandArgs) result.Map { return s.Shell(ctx, a) })
	case KindTunnel:
		return dispatch(raw, func(a TunnelArgs) result.Map { return s.Tunnel(ctx, a) })
	case KindCloseSession:
		return dispatch(raw, func(a SessionArgs) result.Map { return s.CloseSession(ctx, a) })
	case KindListSessions:
		return dispatch(raw, func(a ListArgs) result.Map { return s.ListSessions(ctx, a) })
	case KindSFTPUpload, KindSFTPDownload, KindSFTPRename, KindSFTPDelete, KindSFTPList:
		return dispatch(raw, func(a SFTPArgs) result.Map { return s.SFTP(ctx, kind, a) })
	}
	return result.Failure(fmt.Errorf("unknown action %q", kind))
}

func dispatch[T any](raw map[string]string, fn func(T) result.Map) result.Map {
	var args T
	if err := decode(raw, &args); err != nil {
		return result.Failure(err)
	}
	return fn(args)
}

// decode fills args from raw using the json field names. Unknown names are
// validation errors.
func decode(raw map[string]string, args interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Squash:      true,
		ErrorUnused: true,
		Result:      args,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		var v inputs.Validator
		v.Add(err)
		return v.Err()
	}
	return nil
}

// guard turns errors and panics into failure results. partial outputs from
// a failed action are kept.
func (s *Service) guard(kind Kind, fn func() (result.Map, error)) (out result.Map) {
	log := s.log.WithField("kind", kind)
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			err := fmt.Errorf("%s: unexpected panic: %v", kind, r)
			log.WithField("stack", stack).Error(err)
			out = result.Failure(err)
			out[result.Exception] += "\n" + stack
		}
	}()

	m, err := fn()
	if err != nil {
		log.WithError(err).Warn("action failed")
		return result.Failure(err).With(m)
	}
	return m
}

// connectOptions validates the shared connection inputs.
func (s *Service) connectOptions(v *inputs.Validator, c Connection) (opts ssh.ConnectOptions, sessionID string, closeSession bool) {
	opts.Details = ssh.ConnectionDetails{
		Host:     v.Required("host", c.Host),
		Port:     v.Port("port", c.Port, ssh.DefaultPort),
		Username: v.Required("username", c.Username),
		Password: c.Password,
	}
	opts.Identity = ssh.Identity{Path: c.PrivateKeyFile, Data: c.PrivateKeyData, Passphrase: c.Passphrase}
	if c.Password == "" && opts.Identity.IsZero() {
		v.Addf("either the password or a private key input is required")
	}

	policy := v.OneOf("knownHostsPolicy", c.KnownHostsPolicy, s.defaults.KnownHostsPolicy,
		string(ssh.KnownHostsAllow), string(ssh.KnownHostsStrict), string(ssh.KnownHostsAdd))
	opts.KnownHosts = ssh.KnownHosts{
		Policy: ssh.KnownHostsPolicy(policy),
		Path:   expandHome(inputs.Default(c.KnownHostsPath, s.defaults.KnownHostsPath)),
	}

	opts.AllowedCiphers = c.AllowedCiphers
	opts.ConnectTimeout = v.Millis("connectTimeout", c.ConnectTimeout, s.defaults.ConnectTimeout)
	opts.KeepContextForExpectCommand = v.Bool("keepContext", c.KeepContext, false)

	if c.ProxyHost != "" {
		opts.Proxy = ssh.Proxy{
			Type:     ssh.ProxyType(v.OneOf("proxyType", c.ProxyType, string(ssh.ProxyHTTP), string(ssh.ProxyHTTP), string(ssh.ProxySOCKS5))),
			Host:     c.ProxyHost,
			Port:     v.Port("proxyPort", c.ProxyPort, ssh.DefaultProxyPort),
			Username: c.ProxyUsername,
			Password: c.ProxyPassword,
		}
	}

	sessionID = c.SessionID
	if sessionID == "" {
		sessionID = s.newID()
	}
	closeSession = v.Bool("closeSession", c.CloseSession, false)
	return opts, sessionID, closeSession
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// acquire returns the live cached session for id or opens a new one. A
// cached session that does not answer a keepalive within the connect timeout
// is evicted and closed.
func (s *Service) acquire(ctx context.Context, opts ssh.ConnectOptions, id string) (*ssh.Transport, error) {
	if cached, ok := s.sessions.Lookup(id); ok {
		t := ssh.NewTransport(cached.Client, cached.Channel, cached.Host, s.log)
		if t.IsConnected(ctx, opts.ConnectTimeout) {
			if opts.KeepContextForExpectCommand {
				if err := t.OpenExpectChannel(ctx, opts.ConnectTimeout); err != nil {
					return nil, err
				}
			}
			return t, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.log.WithField("session", id).Info("cached session is no longer connected, reconnecting")
		if evicted, ok := s.sessions.Remove(id); ok {
			evicted.Close()
		}
	}

	if s.security != nil {
		if err := s.security.CheckHost(opts.Details.Host); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	t, err := s.connect(ctx, opts, s.log.WithField("session", id))
	entry := audit.Record{
		SessionID:  id,
		EventType:  audit.EventConnectionEstablished,
		Host:       opts.Details.Host,
		Username:   opts.Details.Username,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.EventType = audit.EventConnectionFailed
		entry.Failed = true
		entry.Details = err.Error()
		s.audit.Record(entry)
		return nil, err
	}
	s.audit.Record(entry)
	return t, nil
}

// release caches the transport under id, or closes it when asked to.
func (s *Service) release(t *ssh.Transport, id string, closeSession bool) {
	if !closeSession {
		s.sessions.Save(id, t.Client(), t.Channel(), t.Host(), t.Username())
		return
	}
	s.sessions.Remove(id)
	if err := t.Close(); err != nil {
		s.log.WithError(err).WithField("session", id).Debug("close session")
	}
	s.audit.Record(audit.Record{SessionID: id, EventType: audit.EventSessionClosed, Host: t.Host(), Username: t.Username()})
}
