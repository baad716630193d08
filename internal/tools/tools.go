// Package tools implements the retrieval tools the assistant can call:
// semantic search over course content and course outline lookup.
//
// # Architecture
//
// Tools are a closed set of variants behind the Tool interface. Each query
// builds its own Registry holding fresh tool instances, so the sources a
// tool records are attributable to exactly one query. The dispatcher never
// returns a Go error to the conversation loop: unknown tools, malformed
// arguments, and tool-internal failures all degrade into result text the
// model can react to.
//
// The same tool implementations back three surfaces:
//   - the conversation loop, via Registry.Dispatch (plain display strings)
//   - Genkit tool registration, via RegisterGenkit (Result envelopes)
//   - the MCP server (internal/mcp)
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/jsonschema-go/jsonschema"
)

// Status indicates whether a tool call succeeded.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ErrCode classifies tool failures for structured consumers.
type ErrCode string

const (
	// ErrCodeValidation marks malformed or missing arguments.
	ErrCodeValidation ErrCode = "validation"
	// ErrCodeNotFound marks a course resolution miss.
	ErrCodeNotFound ErrCode = "not_found"
	// ErrCodeExecution marks a store or catalog failure during execution.
	ErrCodeExecution ErrCode = "execution"
)

// Error is the structured error half of the Result envelope.
type Error struct {
	Code    ErrCode `json:"code"`
	Message string  `json:"message"`
}

// Result is the structured tool result envelope used by the Genkit and MCP
// registrations. Failures are data, not Go errors: the model reads them and
// reacts.
type Result struct {
	Status Status         `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
	Error  *Error         `json:"error,omitempty"`
}

// Source is a citation recorded by a retrieval tool: display text plus an
// optional link to the course or lesson page.
type Source struct {
	Text string `json:"text"`
	Link string `json:"link,omitempty"`
}

// Tool is the capability interface all retrieval tools implement.
//
// Call receives raw JSON arguments and returns display text for the model.
// A returned error means the arguments themselves were unusable; the
// dispatcher surfaces its message as the tool's result text.
type Tool interface {
	Name() string
	Definition() ai.ToolDefinition
	Call(ctx context.Context, args json.RawMessage) (string, error)
	LastSources() []Source
	ResetSources()
}

// inputSchema builds the JSON schema map for a tool input struct, inferred
// from its json and jsonschema_description tags.
func inputSchema[T any]() (map[string]any, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("inferring input schema: %w", err)
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshaling input schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshaling input schema: %w", err)
	}
	return m, nil
}
