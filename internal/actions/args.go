package actions

// Connection holds the inputs shared by every action that needs an SSH
// session. All values are strings; empty means default.
type Connection struct {
	Host             string `json:"host,omitempty" jsonschema:"description=The hostname or IP address of the SSH server"`
	Port             string `json:"port,omitempty" jsonschema:"description=The port number of the SSH server (default 22)"`
	Username         string `json:"username,omitempty" jsonschema:"description=The username to authenticate with"`
	Password         string `json:"password,omitempty" jsonschema:"description=Password for authentication. Ignored when a private key is given"`
	PrivateKeyFile   string `json:"privateKeyFile,omitempty" jsonschema:"description=Path to a private key file"`
	PrivateKeyData   string `json:"privateKeyData,omitempty" jsonschema:"description=Private key content in PEM format"`
	Passphrase       string `json:"passphrase,omitempty" jsonschema:"description=Passphrase of the private key"`
	KnownHostsPolicy string `json:"knownHostsPolicy,omitempty" jsonschema:"description=Host key policy: allow | strict | add (default allow)"`
	KnownHostsPath   string `json:"knownHostsPath,omitempty" jsonschema:"description=Path of the known_hosts file (default ~/.ssh/known_hosts)"`
	AllowedCiphers   string `json:"allowedCiphers,omitempty" jsonschema:"description=Comma separated list of allowed ciphers"`
	ProxyHost        string `json:"proxyHost,omitempty" jsonschema:"description=Proxy host. No proxy is used when empty"`
	ProxyPort        string `json:"proxyPort,omitempty" jsonschema:"description=Proxy port (default 8080)"`
	ProxyUsername    string `json:"proxyUsername,omitempty" jsonschema:"description=Proxy username"`
	ProxyPassword    string `json:"proxyPassword,omitempty" jsonschema:"description=Proxy password"`
	ProxyType        string `json:"proxyType,omitempty" jsonschema:"description=Proxy protocol: http | socks5 (default http)"`
	ConnectTimeout   string `json:"connectTimeout,omitempty" jsonschema:"description=Connect timeout in milliseconds (default 10000)"`
	SessionID        string `json:"sessionId,omitempty" jsonschema:"description=Id under which the session is cached and reused. Generated when empty"`
	CloseSession     string `json:"closeSession,omitempty" jsonschema:"description=Close the session when the action ends: true | false (default false)"`
	KeepContext      string `json:"keepContext,omitempty" jsonschema:"description=Open and keep an extra channel for expect-style use, also on a cached session: true | false (default false)"`
}

// CommandArgs are the inputs of ssh_command and ssh_shell.
type CommandArgs struct {
	Connection
	Command         string `json:"command" jsonschema:"required,description=The command to run"`
	Pty             string `json:"pty,omitempty" jsonschema:"description=Request a pseudo-terminal: true | false (default false)"`
	CharacterSet    string `json:"characterSet,omitempty" jsonschema:"description=Character set of the command and its output (default UTF-8)"`
	Timeout         string `json:"timeout,omitempty" jsonschema:"description=Command timeout in milliseconds (default 90000)"`
	AgentForwarding string `json:"agentForwarding,omitempty" jsonschema:"description=Forward the local SSH agent: true | false (default false)"`
	Newline         string `json:"newline,omitempty" jsonschema:"description=Shell line terminator: \\n or \\r or comma separated character codes (default \\n)"`
}

// TunnelArgs are the inputs of ssh_tunnel.
type TunnelArgs struct {
	Connection
	LocalPort  string `json:"localPort,omitempty" jsonschema:"description=Local port to listen on; 0 picks a free port (default 0)"`
	RemoteHost string `json:"remoteHost" jsonschema:"required,description=Host to forward to as resolved by the SSH server"`
	RemotePort string `json:"remotePort" jsonschema:"required,description=Port to forward to"`
}

// SessionArgs are the inputs of ssh_close_session.
type SessionArgs struct {
	SessionID string `json:"sessionId" jsonschema:"required,description=The cached session id"`
}

// ListArgs are the inputs of ssh_list_sessions.
type ListArgs struct{}

// SFTPArgs are the inputs of the sftp_* actions.
type SFTPArgs struct {
	Connection
	LocalPath     string `json:"localPath,omitempty" jsonschema:"description=Local file path (upload source or download target)"`
	RemotePath    string `json:"remotePath,omitempty" jsonschema:"description=Remote directory or the full remote path when remoteFile is empty"`
	RemoteFile    string `json:"remoteFile,omitempty" jsonschema:"description=Remote file name inside remotePath"`
	NewRemotePath string `json:"newRemotePath,omitempty" jsonschema:"description=Rename target directory (default remotePath)"`
	NewRemoteFile string `json:"newRemoteFile,omitempty" jsonschema:"description=Rename target file name"`
}
