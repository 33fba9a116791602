package server

import (
	"context"
	"encoding/json"
	"fmt"

	mcp_golang "github.com/metoro-io/mcp-golang"
	"github.com/sirupsen/logrus"

	"ssh-actions/internal/actions"
	"ssh-actions/internal/result"
)

// Tool represents a tool that can be registered with the MCP server. Handler
// is a func(Args) (*mcp_golang.ToolResponse, error) whose argument type
// provides the input schema.
type Tool struct {
	Name        string
	Description string
	Handler     interface{}
}

// GetTools returns one tool per action kind. ctx is passed to every action.
func GetTools(ctx context.Context, svc *actions.Service, log logrus.FieldLogger) []Tool {
	tools := make([]Tool, 0, len(actions.Kinds()))
	for _, kind := range actions.Kinds() {
		tools = append(tools, Tool{
			Name:        string(kind),
			Description: kind.Description(),
			Handler:     handler(ctx, svc, kind, log),
		})
	}
	return tools
}

func handler(ctx context.Context, svc *actions.Service, kind actions.Kind, log logrus.FieldLogger) interface{} {
	respond := func(out result.Map) (*mcp_golang.ToolResponse, error) {
		log.WithFields(logrus.Fields{
			"kind":       kind,
			"returnCode": out[result.ReturnCode],
			"session":    out[result.SessionID],
		}).Info("tool call finished")
		return toolResponse(out)
	}

	switch kind {
	case actions.KindCommand:
		return func(args actions.CommandArgs) (*mcp_golang.ToolResponse, error) {
			return respond(svc.Command(ctx, args))
		}
	case actions.KindShell:
		return func(args actions.CommandArgs) (*mcp_golang.ToolResponse, error) {
			return respond(svc.Shell(ctx, args))
		}
	case actions.KindTunnel:
		return func(args actions.TunnelArgs) (*mcp_golang.ToolResponse, error) {
			return respond(svc.Tunnel(ctx, args))
		}
	case actions.KindCloseSession:
		return func(args actions.SessionArgs) (*mcp_golang.ToolResponse, error) {
			return respond(svc.CloseSession(ctx, args))
		}
	case actions.KindListSessions:
		return func(args actions.ListArgs) (*mcp_golang.ToolResponse, error) {
			return respond(svc.ListSessions(ctx, args))
		}
	case actions.KindSFTPUpload, actions.KindSFTPDownload, actions.KindSFTPRename, actions.KindSFTPDelete, actions.KindSFTPList:
		return func(args actions.SFTPArgs) (*mcp_golang.ToolResponse, error) {
			return respond(svc.SFTP(ctx, kind, args))
		}
	}
	panic(fmt.Sprintf("no tool handler for action %q", kind))
}

// toolResponse renders the result map as indented JSON text. Failures are
// reported inside the map, never as a protocol error.
func toolResponse(out result.Map) (*mcp_golang.ToolResponse, error) {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp_golang.NewToolResponse(mcp_golang.NewTextContent(string(data))), nil
}
