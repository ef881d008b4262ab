package adapters

import (
	"encoding/json"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ports "github.com/hpolasek/tabletalk/tabletalk/harness/ports"
)

func TestToOpenAIMessages(t *testing.T) {
	messages := []ports.Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "cheapest product?"},
		{Role: "assistant", ToolCalls: []ports.ToolCall{{
			ID:   "call_1",
			Name: "run_sql",
			Args: `{"query":"SELECT 1"}`,
		}}},
		{Role: "tool", ToolCallID: "call_1", Name: "run_sql", Content: `{"ok":true}`},
	}

	out := toOpenAIMessages(messages)
	require.Len(t, out, 4)

	assert.Equal(t, "system", out[0].Role)
	assert.Equal(t, "be helpful", out[0].Content)

	require.Len(t, out[2].ToolCalls, 1)
	assert.Equal(t, "call_1", out[2].ToolCalls[0].ID)
	assert.Equal(t, openai.ToolTypeFunction, out[2].ToolCalls[0].Type)
	assert.Equal(t, "run_sql", out[2].ToolCalls[0].Function.Name)
	assert.Equal(t, `{"query":"SELECT 1"}`, out[2].ToolCalls[0].Function.Arguments)

	assert.Equal(t, "tool", out[3].Role)
	assert.Equal(t, "call_1", out[3].ToolCallID)
	assert.Equal(t, "run_sql", out[3].Name)
}

func TestToOpenAITools(t *testing.T) {
	specs := []ports.ToolSpec{{
		Name:        "run_sql",
		Description: "run a read-only query",
		Schema:      []byte(`{"type":"object","required":["query"]}`),
	}}

	out := toOpenAITools(specs)
	require.Len(t, out, 1)
	assert.Equal(t, openai.ToolTypeFunction, out[0].Type)
	require.NotNil(t, out[0].Function)
	assert.Equal(t, "run_sql", out[0].Function.Name)

	params, ok := out[0].Function.Parameters.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"type":"object","required":["query"]}`, string(params))
}

func TestFactoryBuildsFreshEngines(t *testing.T) {
	factory := Factory("gpt-4o-mini", "")

	a := factory("key-a")
	b := factory("key-b")
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.NotSame(t, a, b)
}
