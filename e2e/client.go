package e2e

import (
	"context"
	"encoding/json"
	"fmt"

	mcp_golang "github.com/metoro-io/mcp-golang"
	"github.com/metoro-io/mcp-golang/transport/http"

	"ssh-actions/internal/result"
)

// MCPClient calls ssh-actions tools over the HTTP transport.
type MCPClient struct {
	client *mcp_golang.Client
	conn   map[string]string
}

// NewMCPClient creates and initializes a client for the server at baseURL.
// conn holds the connection inputs sent with every call.
func NewMCPClient(ctx context.Context, baseURL string, conn map[string]string) (*MCPClient, error) {
	transport := http.NewHTTPClientTransport("/mcp").WithBaseURL(baseURL)
	c := mcp_golang.NewClient(transport)
	if _, err := c.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize client: %w", err)
	}
	return &MCPClient{client: c, conn: conn}, nil
}

// Call runs the tool kind with the connection inputs plus inputs and
// decodes the result map.
func (c *MCPClient) Call(ctx context.Context, kind string, inputs map[string]string) (result.Map, error) {
	args := make(map[string]string, len(c.conn)+len(inputs))
	for k, v := range c.conn {
		args[k] = v
	}
	for k, v := range inputs {
		args[k] = v
	}

	response, err := c.client.CallTool(ctx, kind, args)
	if err != nil {
		return nil, err
	}
	if response == nil || len(response.Content) == 0 || response.Content[0].TextContent == nil {
		return nil, fmt.Errorf("%s: empty tool response", kind)
	}

	var out result.Map
	if err := json.Unmarshal([]byte(response.Content[0].TextContent.Text), &out); err != nil {
		return nil, fmt.Errorf("%s: decode result: %w", kind, err)
	}
	return out, nil
}

// MustSucceed calls the tool and fails with the exception when it did not
// succeed.
func (c *MCPClient) MustSucceed(ctx context.Context, kind string, inputs map[string]string) (result.Map, error) {
	out, err := c.Call(ctx, kind, inputs)
	if err != nil {
		return nil, err
	}
	if !out.Succeeded() {
		return out, fmt.Errorf("%s failed: %s\n%s", kind, out[result.ReturnResult], out[result.Exception])
	}
	return out, nil
}
