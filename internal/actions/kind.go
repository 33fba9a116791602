// Package actions exposes SSH and SFTP operations as independent actions
// that take string inputs and return a flat result map.
package actions

import "fmt"

// Kind names an action.
type Kind string

const (
	KindCommand      Kind = "ssh_command"
	KindShell        Kind = "ssh_shell"
	KindTunnel       Kind = "ssh_tunnel"
	KindCloseSession Kind = "ssh_close_session"
	KindListSessions Kind = "ssh_list_sessions"
	KindSFTPUpload   Kind = "sftp_upload"
	KindSFTPDownload Kind = "sftp_download"
	KindSFTPRename   Kind = "sftp_rename"
	KindSFTPDelete   Kind = "sftp_delete"
	KindSFTPList     Kind = "sftp_list"
)

// Kinds lists every action in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindCommand,
		KindShell,
		KindTunnel,
		KindCloseSession,
		KindListSessions,
		KindSFTPUpload,
		KindSFTPDownload,
		KindSFTPRename,
		KindSFTPDelete,
		KindSFTPList,
	}
}

// ParseKind validates an action name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Description returns a one-line summary of the action.
func (k Kind) Description() string {
	switch k {
	case KindCommand:
		return "Run a command over SSH on an exec channel and wait for it to finish or time out"
	case KindShell:
		return "Send a command to an interactive SSH shell, wait the full timeout, then exit and collect the output"
	case KindTunnel:
		return "Forward a local port to a remote host and port through an SSH session"
	case KindCloseSession:
		return "Close a cached SSH session"
	case KindListSessions:
		return "List cached SSH sessions"
	case KindSFTPUpload:
		return "Upload a local file over SFTP"
	case KindSFTPDownload:
		return "Download a remote file over SFTP"
	case KindSFTPRename:
		return "Rename a remote file over SFTP"
	case KindSFTPDelete:
		return "Delete a remote file or empty directory over SFTP"
	case KindSFTPList:
		return "List a remote directory over SFTP"
	}
	return ""
}
