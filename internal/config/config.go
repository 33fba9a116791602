// Package config loads ssh-actions settings from defaults, an optional YAML
// file, SSH_ACTIONS_* environment variables and command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"ssh-actions/internal/actions"
	"ssh-actions/internal/logging"
	"ssh-actions/internal/security"
)

// EnvPrefix prefixes every environment variable, with "." replaced by "_":
// SSH_ACTIONS_SERVER_TRANSPORT, SSH_ACTIONS_SECURITY_RATE_LIMIT, ...
const EnvPrefix = "SSH_ACTIONS"

// Transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

type Config struct {
	Server   ServerConfig     `mapstructure:"server"`
	Log      logging.Options  `mapstructure:"log"`
	Session  SessionConfig    `mapstructure:"session"`
	Security security.Config  `mapstructure:"security"`
	Audit    AuditConfig      `mapstructure:"audit"`
	Defaults actions.Defaults `mapstructure:"defaults"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	Addr      string `mapstructure:"addr"`
	Endpoint  string `mapstructure:"endpoint"`
}

// SessionConfig configures the session cache. A zero IdleTimeout keeps
// sessions until they are closed.
type SessionConfig struct {
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// AuditConfig configures the audit trail. It is off when Path is empty.
type AuditConfig struct {
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Transport: TransportStdio,
			Addr:      ":8081",
			Endpoint:  "/mcp",
		},
		Log: logging.Options{Level: "info", Format: "text"},
		Session: SessionConfig{
			CleanupInterval: 5 * time.Minute,
		},
		Security: security.Config{
			AllowedHosts:    []string{},
			DeniedHosts:     []string{},
			AllowedCommands: []string{},
			DeniedCommands:  []string{},
		},
		Audit:    AuditConfig{RetentionDays: 30},
		Defaults: actions.DefaultDefaults(),
	}
}

// SetDefaults registers every key of Default with v so that environment
// variables are picked up for all of them.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.transport", d.Server.Transport)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.endpoint", d.Server.Endpoint)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("session.idle_timeout", d.Session.IdleTimeout)
	v.SetDefault("session.cleanup_interval", d.Session.CleanupInterval)
	v.SetDefault("security.allowed_hosts", d.Security.AllowedHosts)
	v.SetDefault("security.denied_hosts", d.Security.DeniedHosts)
	v.SetDefault("security.allowed_commands", d.Security.AllowedCommands)
	v.SetDefault("security.denied_commands", d.Security.DeniedCommands)
	v.SetDefault("security.rate_limit", d.Security.RateLimit)
	v.SetDefault("security.logging_enabled", d.Security.LoggingEnabled)
	v.SetDefault("audit.path", d.Audit.Path)
	v.SetDefault("audit.retention_days", d.Audit.RetentionDays)
	v.SetDefault("defaults.connect_timeout", d.Defaults.ConnectTimeout)
	v.SetDefault("defaults.command_timeout", d.Defaults.CommandTimeout)
	v.SetDefault("defaults.known_hosts_policy", d.Defaults.KnownHostsPolicy)
	v.SetDefault("defaults.known_hosts_path", d.Defaults.KnownHostsPath)
	v.SetDefault("defaults.character_set", d.Defaults.CharacterSet)
}

// Load reads the configuration. path may be empty. Flags bound to v beforehand
// take precedence over the environment, which takes precedence over the file.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values viper cannot type-check.
func (c Config) Validate() error {
	switch c.Server.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("server.transport must be %s or %s, got %q", TransportStdio, TransportHTTP, c.Server.Transport)
	}
	if c.Session.IdleTimeout < 0 {
		return fmt.Errorf("session.idle_timeout must not be negative")
	}
	if c.Security.RateLimit < 0 {
		return fmt.Errorf("security.rate_limit must not be negative")
	}
	return nil
}
