package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	ports "github.com/hpolasek/tabletalk/tabletalk/harness/ports"
)

// Verdict is the safety classifier's judgment of one user turn. All three
// fields are always populated; when the classifier itself fails, the verdict
// defaults to safe with a reason describing what went wrong (fail-open).
type Verdict struct {
	Safe     bool   `json:"safe"`
	Reason   string `json:"reason"`
	Category string `json:"category"`
}

// Classifier runs the pre-flight safety check through the reasoning engine.
// It is strictly advisory: no failure mode of the classifier ever blocks a
// cycle on its own.
type Classifier struct {
	engine ports.Engine
	logger zerolog.Logger
}

// NewClassifier creates a classifier on an engine client.
func NewClassifier(engine ports.Engine, logger zerolog.Logger) *Classifier {
	return &Classifier{engine: engine, logger: logger}
}

// Classify asks the engine to judge the latest user text. Transport errors,
// non-object replies and unparsable JSON all degrade to a safe verdict with
// category "error" or "unknown" so availability is never gated on the
// classifier working.
func (c *Classifier) Classify(ctx context.Context, userText string) Verdict {
	messages := []ports.Message{
		{Role: "system", Content: safetyPrompt},
		{Role: "user", Content: userText},
	}

	completion, err := c.engine.Complete(ctx, messages, nil, ports.ToolChoiceNone)
	if err != nil {
		c.logger.Warn().Err(err).Msg("safety classifier call failed, failing open")
		return Verdict{
			Safe:     true,
			Reason:   fmt.Sprintf("classifier call failed: %v", err),
			Category: "error",
		}
	}

	return parseVerdict(completion.Text)
}

// parseVerdict extracts the JSON verdict object from the classifier reply.
// Unset or unparsable fields default toward safe.
func parseVerdict(reply string) Verdict {
	raw := extractJSONObject(reply)
	if raw == "" {
		return Verdict{
			Safe:     true,
			Reason:   "classifier reply contained no JSON object",
			Category: "unknown",
		}
	}

	var parsed struct {
		Safe     *bool  `json:"safe"`
		Reason   string `json:"reason"`
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Verdict{
			Safe:     true,
			Reason:   fmt.Sprintf("classifier reply was not a valid JSON object: %v", err),
			Category: "unknown",
		}
	}

	verdict := Verdict{Safe: true, Reason: parsed.Reason, Category: parsed.Category}
	if parsed.Safe != nil {
		verdict.Safe = *parsed.Safe
	} else {
		verdict.Reason = "classifier reply missing safe field"
	}
	if verdict.Category == "" {
		verdict.Category = "unknown"
	}
	if verdict.Reason == "" {
		verdict.Reason = "no reason given"
	}
	return verdict
}

// extractJSONObject returns the outermost {...} span of s, tolerating code
// fences and commentary around the object.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
