package file

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// Operation is the kind of SFTP operation to run.
type Operation string

const (
	OpUpload   Operation = "upload"
	OpDownload Operation = "download"
	OpRename   Operation = "rename"
	OpDelete   Operation = "delete"
	OpList     Operation = "list"
)

// Request describes one SFTP operation. Which paths are used depends on the
// operation.
type Request struct {
	Operation     Operation
	LocalPath     string
	RemotePath    string
	NewRemotePath string
}

// Entry is one directory listing row.
type Entry struct {
	Name    string
	Size    int64
	Mode    os.FileMode
	ModTime time.Time
	IsDir   bool
}

// Result is what an operation produced.
type Result struct {
	Message string
	Bytes   int64
	Entries []Entry
}

// Operations runs SFTP operations over existing SSH connections.
type Operations struct {
	log logrus.FieldLogger
}

// NewOperations creates a new file operations handler
func NewOperations(log logrus.FieldLogger) *Operations {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Operations{log: log.WithField("component", "sftp")}
}

// Run opens an SFTP client on conn and performs req.
func (o *Operations) Run(conn *ssh.Client, req Request) (*Result, error) {
	if conn == nil {
		return nil, fmt.Errorf("sftp %s: no ssh connection", req.Operation)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		return nil, fmt.Errorf("start sftp: %w", err)
	}
	defer client.Close()

	var res *Result
	switch req.Operation {
	case OpUpload:
		res, err = upload(client, req.LocalPath, req.RemotePath)
	case OpDownload:
		res, err = download(client, req.RemotePath, req.LocalPath)
	case OpRename:
		res, err = rename(client, req.RemotePath, req.NewRemotePath)
	case OpDelete:
		res, err = remove(client, req.RemotePath)
	case OpList:
		res, err = list(client, req.RemotePath)
	default:
		return nil, fmt.Errorf("unknown sftp operation %q", req.Operation)
	}
	if err != nil {
		return nil, err
	}

	o.log.WithFields(logrus.Fields{
		"operation": req.Operation,
		"remote":    req.RemotePath,
		"bytes":     res.Bytes,
	}).Debug("sftp operation finished")
	return res, nil
}

func upload(client *sftp.Client, localPath, remotePath string) (*Result, error) {
	local, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local file: %w", err)
	}
	defer local.Close()

	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := client.MkdirAll(dir); err != nil {
			return nil, fmt.Errorf("failed to create remote directory %s: %w", dir, err)
		}
	}

	remote, err := client.Create(remotePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote file %s: %w", remotePath, err)
	}

	n, err := copyAndClose(remote, local)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", localPath, err)
	}
	return &Result{Message: fmt.Sprintf("Uploaded %s to %s", localPath, remotePath), Bytes: n}, nil
}

func download(client *sftp.Client, remotePath, localPath string) (*Result, error) {
	remote, err := client.Open(remotePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote file %s: %w", remotePath, err)
	}
	defer remote.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create local directory: %w", err)
	}
	local, err := os.Create(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create local file: %w", err)
	}

	n, err := copyAndClose(local, remote)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", remotePath, err)
	}
	return &Result{Message: fmt.Sprintf("Downloaded %s to %s", remotePath, localPath), Bytes: n}, nil
}

func rename(client *sftp.Client, oldPath, newPath string) (*Result, error) {
	if err := client.Rename(oldPath, newPath); err != nil {
		return nil, fmt.Errorf("failed to rename %s to %s: %w", oldPath, newPath, err)
	}
	return &Result{Message: fmt.Sprintf("Renamed %s to %s", oldPath, newPath)}, nil
}

func remove(client *sftp.Client, remotePath string) (*Result, error) {
	info, err := client.Stat(remotePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", remotePath, err)
	}
	if info.IsDir() {
		err = client.RemoveDirectory(remotePath)
	} else {
		err = client.Remove(remotePath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete %s: %w", remotePath, err)
	}
	return &Result{Message: fmt.Sprintf("Deleted %s", remotePath)}, nil
}

func list(client *sftp.Client, remotePath string) (*Result, error) {
	infos, err := client.ReadDir(remotePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", remotePath, err)
	}

	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, Entry{
			Name:    fi.Name(),
			Size:    fi.Size(),
			Mode:    fi.Mode(),
			ModTime: fi.ModTime(),
			IsDir:   fi.IsDir(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return &Result{Message: fmt.Sprintf("Listed %d entries in %s", len(entries), remotePath), Entries: entries}, nil
}

// copyAndClose copies src into dst and closes dst, returning the close error
// when the copy itself succeeded.
func copyAndClose(dst io.WriteCloser, src io.Reader) (int64, error) {
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close: %w", cerr)
	}
	return n, err
}
