package harnessports

import (
	"context"
	"encoding/json"
)

// ToolSpec describes a callable tool exposed to the model.
type ToolSpec struct {
	Name        string // unique logical name
	Description string // concise doc for model selection
	Schema      []byte // JSON schema for the argument object
}

// Tool defines the runtime that executes a tool call. Invoke returns the
// tool's payload on success; the caller wraps success and failure into the
// structured tool-result record fed back to the engine.
type Tool interface {
	Name() string
	Spec() ToolSpec
	Invoke(ctx context.Context, args json.RawMessage) (any, error)
}
