package harnessports

import "context"

// Message is one entry of a working message history handed to the reasoning
// engine. Role is "system", "user", "assistant" or "tool". ToolCalls is set on
// assistant messages that requested tool invocations; ToolCallID and Name pair
// a "tool" message with the invocation it answers.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolCall is a model-requested invocation of a named tool. Args is the raw
// argument payload as produced by the engine; it is expected, but not
// guaranteed, to parse as a JSON object. ID correlates the call with its
// result message.
type ToolCall struct {
	ID   string
	Name string
	Args string
}

// Completion is the engine's reply for one round: either free text, or one or
// more tool calls (possibly alongside interim commentary text).
type Completion struct {
	Text      string
	ToolCalls []ToolCall
}

// Tool choice modes passed to the engine.
const (
	ToolChoiceAuto = "auto"
	ToolChoiceNone = "none"
)

// Engine is the opaque reasoning-engine client. One call is one round.
type Engine interface {
	Complete(ctx context.Context, messages []Message, tools []ToolSpec, toolChoice string) (Completion, error)
}

// EngineFactory builds an engine bound to a resolved credential. The session
// facade constructs the engine per response cycle so no client state outlives
// a cycle.
type EngineFactory func(apiKey string) Engine
