package sqltool

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	ports "github.com/hpolasek/tabletalk/tabletalk/harness/ports"
)

// ToolName is the single tool exposed to the reasoning engine.
const ToolName = "run_sql"

// toolDescription instructs the model on the read-only contract and the
// queryable tables.
const toolDescription = "execute a READ-ONLY SQL SELECT query against the app database. " +
	"tables available: products, conversations, turns, mediaplan_rows. " +
	"only use existing columns from the provided schema."

// toolSchema is the JSON schema for run_sql arguments.
const toolSchema = `{
  "type": "object",
  "properties": {
    "query": {
      "type": "string",
      "description": "a complete sql SELECT statement. must start with SELECT."
    }
  },
  "required": ["query"]
}`

// Tool adapts a QueryExecutor to the harness tool port.
type Tool struct {
	exec   QueryExecutor
	schema *gojsonschema.Schema
	logger zerolog.Logger
}

// NewTool wires the run_sql tool over an executor. The argument schema is
// compiled once at construction.
func NewTool(exec QueryExecutor, logger zerolog.Logger) (*Tool, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(toolSchema))
	if err != nil {
		return nil, err
	}
	return &Tool{exec: exec, schema: schema, logger: logger}, nil
}

// Name returns the tool's logical name.
func (t *Tool) Name() string { return ToolName }

// Spec returns the declared tool schema handed to the engine.
func (t *Tool) Spec() ports.ToolSpec {
	return ports.ToolSpec{
		Name:        ToolName,
		Description: toolDescription,
		Schema:      []byte(toolSchema),
	}
}

// Invoke parses and validates the argument payload, then executes the query.
// A malformed or schema-invalid payload degrades to an empty argument set
// rather than failing the invocation; the resulting empty query is then
// rejected by the read-only check like any other non-SELECT string.
func (t *Tool) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	var params struct {
		Query string `json:"query"`
	}

	if res, err := t.schema.Validate(gojsonschema.NewBytesLoader(args)); err != nil || !res.Valid() {
		t.logger.Warn().RawJSON("args", normalizeRawJSON(args)).Msg("run_sql arguments failed validation, treating as empty")
	} else if err := json.Unmarshal(args, &params); err != nil {
		t.logger.Warn().Err(err).Msg("run_sql arguments failed to parse, treating as empty")
		params.Query = ""
	}

	result, err := t.exec.Execute(ctx, params.Query)
	if err != nil {
		return nil, err
	}
	if result.Rows == nil {
		// Zero matching rows still yields a JSON array, never null.
		return []Row{}, nil
	}
	return result.Rows, nil
}

// normalizeRawJSON guards zerolog's RawJSON against invalid payloads.
func normalizeRawJSON(raw json.RawMessage) json.RawMessage {
	if json.Valid(raw) {
		return raw
	}
	quoted, _ := json.Marshal(string(raw))
	return quoted
}

var _ ports.Tool = (*Tool)(nil)
