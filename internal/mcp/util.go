package mcp

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lecternhq/lectern/internal/tools"
)

// resultToMCP converts a tools.Result envelope to an MCP call result.
// Error results carry "[code] message" text with IsError set; success
// results carry the data as JSON for clients to parse.
func resultToMCP(result tools.Result, logger *slog.Logger) *mcp.CallToolResult {
	if result.Status == tools.StatusError {
		text := fmt.Sprintf("[%s] %s", result.Error.Code, result.Error.Message)
		logger.Debug("mcp tool error", "code", result.Error.Code, "message", result.Error.Message)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
			IsError: true,
		}
	}
	return dataToMCP(result.Data)
}

// dataToMCP marshals arbitrary result data as JSON text content.
func dataToMCP(data any) *mcp.CallToolResult {
	if data == nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: ""}},
		}
	}

	b, err := json.Marshal(data)
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "marshal error"}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}
}
