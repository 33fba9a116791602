package actions

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"ssh-actions/internal/audit"
	"ssh-actions/internal/file"
	"ssh-actions/internal/inputs"
	"ssh-actions/internal/result"
)

var sftpOperations = map[Kind]file.Operation{
	KindSFTPUpload:   file.OpUpload,
	KindSFTPDownload: file.OpDownload,
	KindSFTPRename:   file.OpRename,
	KindSFTPDelete:   file.OpDelete,
	KindSFTPList:     file.OpList,
}

// SFTP runs one of the sftp_* actions over a cached session.
func (s *Service) SFTP(ctx context.Context, kind Kind, args SFTPArgs) result.Map {
	return s.guard(kind, func() (result.Map, error) {
		op, ok := sftpOperations[kind]
		if !ok {
			return nil, fmt.Errorf("%s is not an sftp action", kind)
		}

		var v inputs.Validator
		opts, id, closeSession := s.connectOptions(&v, args.Connection)
		req := sftpRequest(&v, op, args)
		if err := v.Err(); err != nil {
			return nil, err
		}

		t, err := s.acquire(ctx, opts, id)
		if err != nil {
			return nil, err
		}
		defer s.release(t, id, closeSession)

		start := time.Now()
		res, err := s.files.Run(t.Client(), req)
		entry := audit.Record{
			SessionID:  id,
			EventType:  audit.EventFileOperation,
			Host:       t.Host(),
			Username:   t.Username(),
			Details:    fmt.Sprintf("%s %s", op, req.RemotePath),
			DurationMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			entry.Failed = true
			s.audit.Record(entry)
			return result.Map{result.SessionID: id}, err
		}
		s.audit.Record(entry)

		out := result.Map{result.SessionID: id}
		if op == file.OpList {
			names := make([]string, 0, len(res.Entries))
			for _, e := range res.Entries {
				if e.IsDir {
					names = append(names, e.Name+"/")
					continue
				}
				names = append(names, e.Name)
			}
			out[result.Files] = strings.Join(names, "\n")
			out[result.Count] = strconv.Itoa(len(res.Entries))
		}
		return result.Success(res.Message).With(out), nil
	})
}

// sftpRequest validates the path inputs op needs. remoteFile, when given, is
// joined onto remotePath.
func sftpRequest(v *inputs.Validator, op file.Operation, args SFTPArgs) file.Request {
	req := file.Request{Operation: op}
	remote := v.Required("remotePath", args.RemotePath)
	if args.RemoteFile != "" {
		remote = path.Join(remote, args.RemoteFile)
	}
	req.RemotePath = remote

	switch op {
	case file.OpUpload:
		req.LocalPath = v.Required("localPath", args.LocalPath)
		if args.RemoteFile == "" && strings.HasSuffix(args.RemotePath, "/") {
			req.RemotePath = path.Join(args.RemotePath, path.Base(strings.ReplaceAll(args.LocalPath, "\\", "/")))
		}
	case file.OpDownload:
		req.LocalPath = v.Required("localPath", args.LocalPath)
	case file.OpRename:
		if args.NewRemotePath == "" && args.NewRemoteFile == "" {
			v.Addf("newRemotePath or newRemoteFile is required for rename")
		}
		dir := args.RemotePath
		if args.RemoteFile == "" {
			dir = path.Dir(args.RemotePath)
		}
		target := inputs.Default(args.NewRemotePath, dir)
		if args.NewRemoteFile != "" {
			target = path.Join(target, args.NewRemoteFile)
		}
		req.NewRemotePath = target
	}
	return req
}
