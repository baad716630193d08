package tools

import (
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// RegisterGenkit registers both retrieval tools with Genkit so the model
// receives their definitions during generation and the developer UI can
// exercise them directly.
//
// The conversation loop dispatches tool calls through its own Registry, so
// these handlers only run for direct invocations.
func RegisterGenkit(g *genkit.Genkit, search *SearchTool, outline *OutlineTool) ([]ai.Tool, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if search == nil {
		return nil, fmt.Errorf("search tool is required")
	}
	if outline == nil {
		return nil, fmt.Errorf("outline tool is required")
	}

	return []ai.Tool{
		genkit.DefineTool(g, SearchToolName, searchToolDescription,
			func(ctx *ai.ToolContext, in SearchInput) (Result, error) {
				return search.Run(ctx, in), nil
			}),
		genkit.DefineTool(g, OutlineToolName, outlineToolDescription,
			func(ctx *ai.ToolContext, in OutlineInput) (Result, error) {
				return outline.Run(ctx, in), nil
			}),
	}, nil
}
