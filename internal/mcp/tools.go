package mcp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Replier posts agent answers and completion signals
type Replier interface {
	Reply(ctx context.Context, endpoint, text string) error
	Complete(ctx context.Context, endpoint string) error
}

// ReplyInput is the input for feishu_reply
type ReplyInput struct {
	Endpoint string `json:"endpoint" jsonschema:"the endpoint string delivered with the message being answered"`
	Text     string `json:"text" jsonschema:"the reply text; NO_REPLY stays silent"`
}

// CompleteInput is the input for feishu_complete
type CompleteInput struct {
	Endpoint string `json:"endpoint" jsonschema:"the endpoint string delivered with the message"`
}

// ToolOutput is the output of every tool
type ToolOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// NewServer creates the MCP server exposing the reply tools
func NewServer(replies Replier, version string, logger *slog.Logger) *mcp.Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mcp")

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "feishu-agent-bridge",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "feishu_reply",
		Description: "Reply in the Feishu conversation a message came from. Pass the endpoint you received with the message unchanged.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input ReplyInput) (*mcp.CallToolResult, ToolOutput, error) {
		if err := replies.Reply(ctx, input.Endpoint, input.Text); err != nil {
			logger.Warn("feishu_reply failed", "endpoint", input.Endpoint, "error", err)
			return nil, ToolOutput{Error: err.Error()}, nil
		}
		return nil, ToolOutput{Success: true}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "feishu_complete",
		Description: "Signal that work on a message is finished without replying. Clears the typing indicator.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input CompleteInput) (*mcp.CallToolResult, ToolOutput, error) {
		if err := replies.Complete(ctx, input.Endpoint); err != nil {
			return nil, ToolOutput{Error: err.Error()}, nil
		}
		return nil, ToolOutput{Success: true}, nil
	})

	return server
}

// NewHTTPHandler serves server over streamable HTTP
func NewHTTPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
}
