package ssh

import (
	"fmt"
	"strings"
	"time"

	"ssh-actions/internal/inputs"
)

// KnownHostsPolicy selects how server host keys are checked.
type KnownHostsPolicy string

const (
	// KnownHostsAllow accepts every host key.
	KnownHostsAllow KnownHostsPolicy = "allow"
	// KnownHostsStrict requires an existing known_hosts file and rejects
	// unknown or changed host keys.
	KnownHostsStrict KnownHostsPolicy = "strict"
	// KnownHostsAdd creates the known_hosts file when missing and records
	// unknown hosts in it. Host keys are not verified.
	KnownHostsAdd KnownHostsPolicy = "add"
)

// ParseKnownHostsPolicy parses a policy name, case-insensitively.
func ParseKnownHostsPolicy(s string) (KnownHostsPolicy, error) {
	switch p := KnownHostsPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case KnownHostsAllow, KnownHostsStrict, KnownHostsAdd:
		return p, nil
	}
	return "", fmt.Errorf("unknown known_hosts file policy %q", s)
}

// ProxyType selects the proxy protocol.
type ProxyType string

const (
	ProxyHTTP   ProxyType = "http"
	ProxySOCKS5 ProxyType = "socks5"
)

const (
	DefaultPort           = 22
	DefaultProxyPort      = 8080
	DefaultConnectTimeout = 10 * time.Second
	DefaultCommandTimeout = 90 * time.Second
	DefaultCharacterSet   = "UTF-8"
	DefaultAliveTimeout   = 5 * time.Second
)

// ConnectionDetails identifies the account to log in as.
type ConnectionDetails struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Identity is a private key given either as a file path or as inline PEM
// data. Data wins over Path.
type Identity struct {
	Path       string
	Data       string
	Passphrase string
}

// IsZero reports whether no key was provided.
func (i Identity) IsZero() bool {
	return i.Path == "" && i.Data == ""
}

// KnownHosts holds the host key policy and the known_hosts file it uses.
type KnownHosts struct {
	Policy KnownHostsPolicy
	Path   string
}

// Proxy describes an optional proxy. It is used only when Host is set.
type Proxy struct {
	Type     ProxyType
	Host     string
	Port     int
	Username string
	Password string
}

// ConnectOptions is everything Connect needs to open a Transport.
type ConnectOptions struct {
	Details        ConnectionDetails
	Identity       Identity
	KnownHosts     KnownHosts
	ConnectTimeout time.Duration
	Proxy          Proxy
	// AllowedCiphers is a comma separated allow-list. Empty means
	// DefaultAllowedCiphers.
	AllowedCiphers string
	// KeepContextForExpectCommand opens an extra channel right after login
	// and keeps it with the session.
	KeepContextForExpectCommand bool
}

// Validate checks the options without touching the network.
func (o *ConnectOptions) Validate() error {
	var v inputs.Validator
	if o.Details.Host == "" {
		v.Addf("the host input is required")
	}
	if o.Details.Username == "" {
		v.Addf("the username input is required")
	}
	if o.Details.Port < 0 || o.Details.Port > 65535 {
		v.Addf("invalid port %d", o.Details.Port)
	}
	if o.Details.Password == "" && o.Identity.IsZero() {
		v.Addf("no authentication method provided")
	}
	if o.KnownHosts.Policy != "" {
		if _, err := ParseKnownHostsPolicy(string(o.KnownHosts.Policy)); err != nil {
			v.Add(err)
		}
	}
	if o.ConnectTimeout < 0 {
		v.Addf("the connect timeout must not be negative")
	}
	if o.Proxy.Host != "" {
		switch o.Proxy.Type {
		case "", ProxyHTTP, ProxySOCKS5:
		default:
			v.Addf("unknown proxy type %q", o.Proxy.Type)
		}
		if o.Proxy.Port < 0 || o.Proxy.Port > 65535 {
			v.Addf("invalid proxy port %d", o.Proxy.Port)
		}
	}
	return v.Err()
}

func (o *ConnectOptions) port() int {
	if o.Details.Port == 0 {
		return DefaultPort
	}
	return o.Details.Port
}

// CommandOptions configures a single exec or shell run.
type CommandOptions struct {
	Command      string
	CharacterSet string
	Pty          bool
	// ConnectTimeout bounds opening the channel. In shell mode it also
	// bounds reading the remaining output after exit is sent.
	ConnectTimeout  time.Duration
	Timeout         time.Duration
	AgentForwarding bool
	// Newline terminates the command in shell mode. Empty means "\n".
	Newline string
}

// CommandResult is the captured output of a command. ExitCode is -1 when
// the channel did not close with an exit status.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}
