package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"

	ports "github.com/hpolasek/tabletalk/tabletalk/harness/ports"
)

// Policy bounds one response cycle.
type Policy struct {
	// MaxRounds is the hard bound on reasoning-engine calls per cycle.
	MaxRounds int
	// EngineTimeout applies to each individual engine call.
	EngineTimeout time.Duration
	// ToolTimeout applies to each individual tool dispatch.
	ToolTimeout time.Duration
}

// DefaultPolicy returns the reference bounds.
func DefaultPolicy() Policy {
	return Policy{
		MaxRounds:     4,
		EngineTimeout: 60 * time.Second,
		ToolTimeout:   30 * time.Second,
	}
}

// Orchestrator drives the bounded tool-round loop for one response cycle:
// call the engine, execute any requested tool invocations, feed results back,
// repeat until the engine answers with text or the round bound is exhausted.
type Orchestrator struct {
	engine ports.Engine
	tools  map[string]ports.Tool
	specs  []ports.ToolSpec
	policy Policy
	logger zerolog.Logger
}

// NewOrchestrator wires an orchestrator for one cycle.
func NewOrchestrator(engine ports.Engine, tools []ports.Tool, policy Policy, logger zerolog.Logger) *Orchestrator {
	if policy.MaxRounds <= 0 {
		policy.MaxRounds = DefaultPolicy().MaxRounds
	}
	if policy.EngineTimeout <= 0 {
		policy.EngineTimeout = DefaultPolicy().EngineTimeout
	}
	if policy.ToolTimeout <= 0 {
		policy.ToolTimeout = DefaultPolicy().ToolTimeout
	}

	byName := make(map[string]ports.Tool, len(tools))
	specs := make([]ports.ToolSpec, 0, len(tools))
	for _, tool := range tools {
		byName[tool.Name()] = tool
		specs = append(specs, tool.Spec())
	}

	return &Orchestrator{
		engine: engine,
		tools:  byName,
		specs:  specs,
		policy: policy,
		logger: logger,
	}
}

// toolResult is the structured record fed back to the engine and attached to
// tool events. Exactly one of Rows/Error is meaningful, selected by OK.
type toolResult struct {
	OK    bool   `json:"ok"`
	Rows  any    `json:"rows,omitempty"`
	Error string `json:"error,omitempty"`
}

// RunCycle executes the bounded loop, emitting every observable event through
// em. Any failure inside the loop, including panics in tool code, is caught
// at cycle level and folded into the visible answer as a diagnostic fragment;
// the cycle always runs to completion so something is always committed.
func (o *Orchestrator) RunCycle(ctx context.Context, history []ports.Message, em *Emitter) {
	var catcher panics.Catcher
	catcher.Try(func() {
		o.runRounds(ctx, history, em)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		o.logger.Error().Str("panic", recovered.String()).Msg("response cycle panicked")
		em.StreamText(fmt.Sprintf("[backend error: %v]", recovered.Value))
	}
}

func (o *Orchestrator) runRounds(ctx context.Context, history []ports.Message, em *Emitter) {
	for round := 1; round <= o.policy.MaxRounds; round++ {
		callCtx, cancel := context.WithTimeout(ctx, o.policy.EngineTimeout)
		completion, err := o.engine.Complete(callCtx, history, o.specs, ports.ToolChoiceAuto)
		cancel()
		if err != nil {
			o.logger.Warn().Err(err).Int("round", round).Msg("engine call failed")
			em.StreamText(fmt.Sprintf("[backend error: %v]", err))
			return
		}

		if len(completion.ToolCalls) == 0 {
			// Terminal text answer; the only successful exit before the bound.
			em.StreamText(completion.Text)
			return
		}

		history = append(history, ports.Message{
			Role:      "assistant",
			Content:   completion.Text,
			ToolCalls: completion.ToolCalls,
		})

		for _, call := range completion.ToolCalls {
			result := o.dispatch(ctx, call)
			payload, err := json.Marshal(result)
			if err != nil {
				payload, _ = json.Marshal(toolResult{OK: false, Error: fmt.Sprintf("encode tool result: %v", err)})
			}

			em.Tool(ToolEvent{
				Name:   call.Name,
				Args:   normalizeArgs(call.Args),
				Result: payload,
			})

			history = append(history, ports.Message{
				Role:       "tool",
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    string(payload),
			})
		}
	}

	// Bound exhausted while the engine kept requesting tools. Stop silently
	// from the consumer's perspective; the truncation is logged so operators
	// can spot runaway tool loops.
	o.logger.Warn().Int("max_rounds", o.policy.MaxRounds).Msg("round bound exhausted without terminal answer")
}

// dispatch runs one tool invocation and wraps the outcome. Tool failures are
// reported back into the model's context, never escalated.
func (o *Orchestrator) dispatch(ctx context.Context, call ports.ToolCall) toolResult {
	tool, ok := o.tools[call.Name]
	if !ok {
		return toolResult{OK: false, Error: fmt.Sprintf("unknown tool: %s", call.Name)}
	}

	args := json.RawMessage(call.Args)
	if !json.Valid(args) || len(args) == 0 {
		// Malformed payload degrades to an empty argument set.
		args = json.RawMessage("{}")
	}

	toolCtx, cancel := context.WithTimeout(ctx, o.policy.ToolTimeout)
	defer cancel()

	output, err := tool.Invoke(toolCtx, args)
	if err != nil {
		return toolResult{OK: false, Error: err.Error()}
	}
	if output == nil {
		// An empty result set must still serialize as "rows": [], not null,
		// so the model can tell "no rows" from "no data returned".
		output = []any{}
	}
	return toolResult{OK: true, Rows: output}
}

// normalizeArgs renders the raw argument payload as valid JSON for event
// consumers, quoting it as a string when it is not.
func normalizeArgs(args string) json.RawMessage {
	if args == "" {
		return json.RawMessage("{}")
	}
	if json.Valid([]byte(args)) {
		return json.RawMessage(args)
	}
	quoted, _ := json.Marshal(args)
	return quoted
}
