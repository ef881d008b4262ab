package sqltool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingExecutor captures the query handed down by the tool layer.
type recordingExecutor struct {
	query  string
	result Result
	err    error
}

func (e *recordingExecutor) Execute(ctx context.Context, query string) (Result, error) {
	e.query = query
	return e.result, e.err
}

var _ QueryExecutor = (*recordingExecutor)(nil)

func newTestTool(t *testing.T, exec QueryExecutor) *Tool {
	t.Helper()
	tool, err := NewTool(exec, zerolog.Nop())
	require.NoError(t, err)
	return tool
}

func TestToolSpec(t *testing.T) {
	tool := newTestTool(t, &recordingExecutor{})

	assert.Equal(t, "run_sql", tool.Name())
	spec := tool.Spec()
	assert.Equal(t, "run_sql", spec.Name)
	assert.NotEmpty(t, spec.Description)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(spec.Schema, &schema))
	assert.Equal(t, "object", schema["type"])
}

func TestInvokeForwardsQuery(t *testing.T) {
	exec := &recordingExecutor{result: Result{
		Columns: []string{"name"},
		Rows:    []Row{{{Name: "name", Value: "basic widget"}}},
	}}
	tool := newTestTool(t, exec)

	out, err := tool.Invoke(context.Background(), json.RawMessage(`{"query":"SELECT name FROM products"}`))
	require.NoError(t, err)
	assert.Equal(t, "SELECT name FROM products", exec.query)

	rows, ok := out.([]Row)
	require.True(t, ok)
	require.Len(t, rows, 1)
	assert.Equal(t, "basic widget", rows[0][0].Value)
}

func TestInvokeSchemaInvalidArgsDegradeToEmptyQuery(t *testing.T) {
	exec := &recordingExecutor{err: ErrNotReadOnly}
	tool := newTestTool(t, exec)

	// Wrong type for query and a missing query both fail schema validation;
	// the empty query then fails the read-only check downstream.
	for _, args := range []string{`{"query": 5}`, `{}`, `not json at all`} {
		exec.query = "sentinel"
		_, err := tool.Invoke(context.Background(), json.RawMessage(args))
		assert.ErrorIs(t, err, ErrNotReadOnly, "args: %s", args)
		assert.Empty(t, exec.query, "args: %s", args)
	}
}

func TestInvokeEmptyResultIsAnArray(t *testing.T) {
	exec := &recordingExecutor{result: Result{Columns: []string{"name"}}}
	tool := newTestTool(t, exec)

	out, err := tool.Invoke(context.Background(), json.RawMessage(`{"query":"SELECT name FROM products WHERE price < 0"}`))
	require.NoError(t, err)

	rows, ok := out.([]Row)
	require.True(t, ok)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestInvokePropagatesExecutorErrors(t *testing.T) {
	exec := &recordingExecutor{err: ErrNotReadOnly}
	tool := newTestTool(t, exec)

	_, err := tool.Invoke(context.Background(), json.RawMessage(`{"query":"DROP TABLE products"}`))
	assert.ErrorIs(t, err, ErrNotReadOnly)
	assert.Equal(t, "DROP TABLE products", exec.query)
}
