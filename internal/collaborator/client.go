// Package collaborator holds the external LLM boundary: the generation client
// that renders instruction sets into user-facing prose, and the classifier
// that turns raw submissions into validated classifications. Nothing outside
// this package talks to a model; the controller consumes only the validated
// structures that come back.
package collaborator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"gumshoe/internal/types"
)

// PromptContext carries everything the generator may use for one turn.
type PromptContext struct {
	Instructions  types.InstructionSet
	UserMessage   string
	Transcript    []types.Message
	SimilarPrior  []types.SearchHit
	ProblemDomain string
}

// Generator renders one instruction set into a user-facing reply.
type Generator interface {
	Generate(ctx context.Context, pc PromptContext) (string, error)
	Name() string
}

// Classifier classifies one raw submission against the open requests.
// Implementations must degrade, never fail open: a garbled model response
// yields DefaultClassification, not an error.
type Classifier interface {
	Classify(ctx context.Context, content string, openRequests []types.EvidenceRequest) (types.EvidenceClassification, error)
	Name() string
}

// wireClassification is the JSON shape requested from the classifier model.
type wireClassification struct {
	Category          string   `json:"category"`
	Verdict           string   `json:"verdict"`
	Form              string   `json:"form"`
	Relation          string   `json:"relation"`
	Intent            string   `json:"intent"`
	KeyFindings       []string `json:"key_findings"`
	HasTemporalMarker bool     `json:"has_temporal_marker"`
	TemporalMarker    string   `json:"temporal_marker"`
}

// parseClassification converts a raw model response into a validated
// classification. Every dimension goes through its Parse constructor so
// unknown values land on explicit defaults; an unparseable response yields
// the full default classification.
func parseClassification(raw string) types.EvidenceClassification {
	raw = stripCodeFence(raw)

	var wire wireClassification
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return types.DefaultClassification()
	}

	return types.EvidenceClassification{
		Category:          types.ParseEvidenceCategory(wire.Category),
		Verdict:           types.ParseCompletenessVerdict(wire.Verdict),
		Form:              types.ParseEvidenceForm(wire.Form),
		Relation:          types.ParseEvidenceRelation(wire.Relation),
		Intent:            types.ParseSubmitterIntent(wire.Intent),
		KeyFindings:       wire.KeyFindings,
		HasTemporalMarker: wire.HasTemporalMarker,
		TemporalMarker:    wire.TemporalMarker,
	}
}

// stripCodeFence unwraps a ```json ... ``` fenced response.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// wrapTimeout converts context deadline errors into the typed collaborator
// timeout so callers can tell a slow model from a broken one.
func wrapTimeout(collaborator string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &types.CollaboratorTimeout{Collaborator: collaborator, Err: err}
	}
	return err
}
