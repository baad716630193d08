package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/firebase/genkit/go/ai"
)

// Registry routes tool calls for a single query and collects the sources
// its tools record.
//
// A Registry is built fresh per query and holds the only references to that
// query's tool state, which is what keeps source cohorts isolated between
// queries. It is not safe for concurrent use; the conversation loop
// dispatches sequentially.
type Registry struct {
	names  []string
	byName map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Tool)}
}

// Register adds a tool. Registering a name again replaces the previous tool
// while keeping its original position in registration order.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool is required")
	}
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool must have a name")
	}
	if _, exists := r.byName[name]; !exists {
		r.names = append(r.names, name)
	}
	r.byName[name] = t
	return nil
}

// Definitions returns every registered tool's definition in registration
// order.
func (r *Registry) Definitions() []ai.ToolDefinition {
	defs := make([]ai.ToolDefinition, 0, len(r.names))
	for _, name := range r.names {
		defs = append(defs, r.byName[name].Definition())
	}
	return defs
}

// Dispatch routes a call to the named tool and returns its result text.
//
// Dispatch never returns a Go error: an unknown tool name or a tool-level
// failure becomes result text, keeping the conversation transcript
// well-formed so the model always receives a tool result to react to.
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) string {
	t, ok := r.byName[name]
	if !ok {
		return fmt.Sprintf("Tool '%s' not found", name)
	}

	out, err := t.Call(ctx, args)
	if err != nil {
		return err.Error()
	}
	return out
}

// DrainSources collects every registered tool's pending sources in
// registration order, then clears them all.
func (r *Registry) DrainSources() []Source {
	var sources []Source
	for _, name := range r.names {
		t := r.byName[name]
		sources = append(sources, t.LastSources()...)
		t.ResetSources()
	}
	return sources
}

// ResetSources clears every tool's pending sources without collecting them.
func (r *Registry) ResetSources() {
	for _, name := range r.names {
		r.byName[name].ResetSources()
	}
}
