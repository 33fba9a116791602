package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type inputFlag struct {
	flag  string
	input string
	usage string
}

var connectionFlags = []inputFlag{
	{"host", "host", "SSH server host"},
	{"port", "port", "SSH server port (default 22)"},
	{"user", "username", "SSH username"},
	{"password", "password", "SSH password (or set SSH_ACTIONS_PASSWORD)"},
	{"key", "privateKeyFile", "Path to a private key"},
	{"passphrase", "passphrase", "Private key passphrase (or set SSH_ACTIONS_PASSPHRASE)"},
	{"known-hosts-policy", "knownHostsPolicy", "allow, strict or add"},
	{"known-hosts", "knownHostsPath", "Path to the known_hosts file"},
	{"ciphers", "allowedCiphers", "Comma separated list of allowed ciphers"},
	{"proxy-host", "proxyHost", "Proxy host"},
	{"proxy-port", "proxyPort", "Proxy port (default 8080)"},
	{"proxy-type", "proxyType", "Proxy type: http or socks5"},
	{"proxy-user", "proxyUsername", "Proxy username"},
	{"proxy-password", "proxyPassword", "Proxy password"},
	{"connect-timeout", "connectTimeout", "Connect timeout in milliseconds"},
	{"session-id", "sessionId", "Session id"},
}

var commandFlags = []inputFlag{
	{"pty", "pty", "Request a pseudo-terminal: true or false"},
	{"charset", "characterSet", "Character set of the command and output"},
	{"timeout", "timeout", "Command timeout in milliseconds"},
	{"agent-forwarding", "agentForwarding", "Forward the local SSH agent: true or false"},
	{"newline", "newline", "Shell line terminator"},
}

var tunnelFlags = []inputFlag{
	{"local-port", "localPort", "Local port, 0 picks a free one"},
	{"remote-host", "remoteHost", "Host to forward to"},
	{"remote-port", "remotePort", "Port to forward to"},
}

type inputSet struct {
	flags  []inputFlag
	values map[string]*string
	extra  map[string]string
}

// addInputFlags registers string flags for each input and a repeatable
// --input key=value for everything else.
func addInputFlags(fs *pflag.FlagSet, groups ...[]inputFlag) *inputSet {
	s := &inputSet{values: make(map[string]*string)}
	for _, group := range groups {
		for _, f := range group {
			s.flags = append(s.flags, f)
			s.values[f.flag] = fs.String(f.flag, "", f.usage)
		}
	}
	fs.StringToStringVarP(&s.extra, "input", "i", nil, "Extra action input as key=value (repeatable)")
	return s
}

// collect returns the inputs set on the command line. Secrets fall back to
// the environment.
func (s *inputSet) collect(cmd *cobra.Command, opts *rootOptions) map[string]string {
	in := make(map[string]string)
	for k, v := range s.extra {
		in[k] = v
	}
	for _, f := range s.flags {
		if cmd.Flags().Changed(f.flag) {
			in[f.input] = *s.values[f.flag]
		}
	}
	for _, secret := range []string{"password", "passphrase"} {
		if _, ok := in[secret]; !ok {
			if v := opts.v.GetString(secret); v != "" {
				in[secret] = v
			}
		}
	}
	return in
}
