package cli

import (
	"io"

	"github.com/sirupsen/logrus"

	"ssh-actions/internal/actions"
	"ssh-actions/internal/audit"
	"ssh-actions/internal/config"
	"ssh-actions/internal/logging"
	"ssh-actions/internal/security"
	"ssh-actions/internal/session"
)

// app holds the components one invocation wires together. close tears them
// down in reverse order.
type app struct {
	cfg      config.Config
	log      *logrus.Logger
	sessions *session.Manager
	security *security.Manager
	auditor  *audit.Auditor
	service  *actions.Service
	logFile  io.Closer
}

func newApp(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.v, opts.configPath)
	if err != nil {
		return nil, err
	}
	log, logFile, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, logFile: logFile}
	a.sessions = session.NewManager(cfg.Session.IdleTimeout, log)
	a.security = security.NewManager(cfg.Security, log)

	serviceOpts := []actions.Option{
		actions.WithLogger(log),
		actions.WithDefaults(cfg.Defaults),
		actions.WithSecurity(a.security),
	}
	if cfg.Audit.Path != "" {
		a.auditor, err = audit.Open(cfg.Audit.Path, log)
		if err != nil {
			a.close()
			return nil, err
		}
		if cfg.Audit.RetentionDays > 0 {
			if _, err := a.auditor.PurgeOlderThan(cfg.Audit.RetentionDays); err != nil {
				log.WithError(err).Warn("purge audit log")
			}
		}
		serviceOpts = append(serviceOpts, actions.WithAudit(a.auditor))
	}
	a.service = actions.NewService(a.sessions, serviceOpts...)
	return a, nil
}

// startBackground starts the periodic cleanups used by long-running commands.
func (a *app) startBackground() {
	a.sessions.StartCleanupRoutine(a.cfg.Session.CleanupInterval)
	if a.cfg.Security.RateLimit > 0 {
		a.security.StartCleanupRoutine(a.cfg.Session.CleanupInterval, 0)
	}
}

func (a *app) close() {
	if a.sessions != nil {
		if err := a.sessions.CloseAll(); err != nil {
			a.log.WithError(err).Debug("close sessions")
		}
	}
	if a.security != nil {
		a.security.Stop()
	}
	if a.auditor != nil {
		if err := a.auditor.Close(); err != nil {
			a.log.WithError(err).Warn("close audit database")
		}
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
