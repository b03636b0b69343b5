package collaborator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"gumshoe/internal/types"
)

// HeuristicClassifier is a deterministic keyword classifier. It is the
// default provider: it keeps the whole pipeline working offline and pins the
// controller tests to stable classifications.
type HeuristicClassifier struct{}

// Name identifies the classifier.
func (h *HeuristicClassifier) Name() string { return "heuristic" }

var temporalPattern = regexp.MustCompile(
	`(?i)\b(\d{1,2}:\d{2}|yesterday|today|this morning|last (night|week|monday|tuesday|wednesday|thursday|friday|saturday|sunday)|(\d+ )?(minutes?|hours?|days?|weeks?) ago|since|after the|right after|started (at|on|when))\b`)

var categoryKeywords = []struct {
	category types.EvidenceCategory
	words    []string
}{
	{types.CategoryChanges, []string{"deploy", "deployed", "release", "rolled out", "upgrade", "migration", "changed", "config change", "merged"}},
	{types.CategoryTimeline, []string{"started at", "first noticed", "began", "since yesterday", "timeline"}},
	{types.CategoryScope, []string{"all users", "every user", "affected users", "requests per", "percent", "% of", "only in", "region", "subset"}},
	{types.CategoryMetrics, []string{"latency", "error rate", "throughput", "p99", "p95", "cpu", "memory usage", "dashboard", "graph"}},
	{types.CategoryConfiguration, []string{"config", "configuration", "setting", "parameter", "environment variable", "flag", "pool size"}},
	{types.CategoryEnvironment, []string{"kernel", "os version", "runtime", "node version", "hardware", "network", "dns", "certificate"}},
}

// Classify derives a classification from keyword evidence alone. It never
// returns an error.
func (h *HeuristicClassifier) Classify(_ context.Context, content string,
	openRequests []types.EvidenceRequest) (types.EvidenceClassification, error) {

	cls := types.DefaultClassification()
	lower := strings.ToLower(content)

	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if strings.Contains(lower, w) {
				cls.Category = ck.category
				break
			}
		}
		if cls.Category != types.CategorySymptoms {
			break
		}
	}

	if m := temporalPattern.FindString(content); m != "" {
		cls.HasTemporalMarker = true
		cls.TemporalMarker = strings.TrimSpace(m)
	}

	switch {
	case strings.Contains(lower, "doesn't exist") || strings.Contains(lower, "no such") ||
		strings.Contains(lower, "we don't have") || strings.Contains(lower, "not logged"):
		cls.Relation = types.RelationAbsence
	case strings.Contains(lower, "confirmed") || strings.Contains(lower, "that fixed") ||
		strings.Contains(lower, "matches") || strings.Contains(lower, "you were right"):
		cls.Relation = types.RelationSupportive
	case strings.Contains(lower, "still failing") || strings.Contains(lower, "didn't help") ||
		strings.Contains(lower, "rules that out") || strings.Contains(lower, "looks normal"):
		cls.Relation = types.RelationRefuting
	}

	switch {
	case strings.Contains(lower, "can't get") || strings.Contains(lower, "no access") ||
		strings.Contains(lower, "not allowed"):
		cls.Intent = types.IntentDeclining
	case strings.HasSuffix(strings.TrimSpace(content), "?"):
		cls.Intent = types.IntentAsking
	case len(openRequests) > 0 && cls.Category != types.CategorySymptoms:
		cls.Intent = types.IntentAnswering
	}

	// Long, category-matched answers to an open request count as complete.
	if cls.Intent == types.IntentAnswering && len([]rune(content)) > 120 {
		cls.Verdict = types.VerdictComplete
	}

	return cls, nil
}

// TemplateGenerator renders instruction sets into deterministic prose with no
// model behind it. Used offline and in tests.
type TemplateGenerator struct{}

// Name identifies the generator.
func (t *TemplateGenerator) Name() string { return "template" }

// Generate produces a plain rendering of the instruction set.
func (t *TemplateGenerator) Generate(_ context.Context, pc PromptContext) (string, error) {
	var b strings.Builder
	is := pc.Instructions

	fmt.Fprintf(&b, "[%s] %s\n", is.Phase, is.Objective)

	if is.Escalation != "" {
		fmt.Fprintf(&b, "\nWe appear to be stuck: %s\n", is.Escalation)
	}

	if len(is.OpenRequests) > 0 {
		b.WriteString("\nTo make progress, please provide:\n")
		for _, r := range is.OpenRequests {
			fmt.Fprintf(&b, "- %s", r.Label)
			if len(r.Guidance.Commands) > 0 {
				fmt.Fprintf(&b, " (try: %s)", r.Guidance.Commands[0])
			}
			b.WriteString("\n")
		}
	}

	if len(is.FocusHypotheses) > 0 {
		b.WriteString("\nCurrent working theories:\n")
		for i, h := range is.FocusHypotheses {
			fmt.Fprintf(&b, "%d. %s (confidence %.0f%%)\n", i+1, h.Statement, h.Likelihood*100)
		}
	}

	return b.String(), nil
}
