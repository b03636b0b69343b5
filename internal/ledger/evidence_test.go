package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gumshoe/internal/config"
	"gumshoe/internal/types"
)

func testInvestigationConfig() config.InvestigationConfig {
	return config.DefaultConfig().Investigation
}

func TestOpenFillsGuidanceFromPlaybook(t *testing.T) {
	l := NewEvidenceLedger("case-1", testInvestigationConfig(), nil)

	id := l.Open("recent error logs", types.CategorySymptoms, true, 1)
	r, ok := l.Request(id)
	require.True(t, ok)

	assert.Equal(t, types.RequestPending, r.Status)
	assert.True(t, r.Critical)
	assert.NotEmpty(t, r.Guidance.Commands, "playbook should supply commands for symptoms")
	assert.LessOrEqual(t, len(r.Guidance.Commands), 4)
	for _, cmd := range r.Guidance.Commands {
		assert.LessOrEqual(t, len([]rune(cmd)), 200)
	}
}

func TestGuidanceCapsApplied(t *testing.T) {
	cfg := testInvestigationConfig()
	cfg.GuidanceListCap = 2
	cfg.GuidanceEntryCap = 10

	pb := &config.Playbook{Entries: map[string]config.PlaybookEntry{
		"metrics": {
			Commands: []string{
				"a command well beyond ten runes",
				"second",
				"third should be dropped",
			},
		},
	}}
	l := NewEvidenceLedger("case-1", cfg, pb)

	id := l.Open("dashboard screenshots", types.CategoryMetrics, false, 1)
	r, _ := l.Request(id)
	require.Len(t, r.Guidance.Commands, 2)
	assert.Equal(t, "a command ", r.Guidance.Commands[0])
	assert.Equal(t, "second", r.Guidance.Commands[1])
}

func TestRecordCompleteVerdictSatisfiesRequest(t *testing.T) {
	l := NewEvidenceLedger("case-1", testInvestigationConfig(), nil)
	id := l.Open("deploy history", types.CategoryChanges, true, 1)

	cls := types.DefaultClassification()
	cls.Verdict = types.VerdictComplete
	l.Record(2, "here is the full deploy log", nil, []string{id}, cls)

	r, _ := l.Request(id)
	assert.Equal(t, types.RequestComplete, r.Status)
	assert.Equal(t, 1.0, r.Completeness)
}

func TestRecordPartialVerdictAddsHalf(t *testing.T) {
	l := NewEvidenceLedger("case-1", testInvestigationConfig(), nil)
	id := l.Open("deploy history", types.CategoryChanges, false, 1)

	cls := types.DefaultClassification() // verdict partial
	l.Record(2, "partial answer", nil, []string{id}, cls)

	r, _ := l.Request(id)
	assert.Equal(t, types.RequestPartial, r.Status)
	assert.InDelta(t, 0.5, r.Completeness, 1e-9)

	// A second partial submission completes it.
	l.Record(3, "the rest", nil, []string{id}, cls)
	r, _ = l.Request(id)
	assert.Equal(t, types.RequestComplete, r.Status)
	assert.Equal(t, 1.0, r.Completeness)
}

func TestCompletenessSkipsUnknownAndObsoleteIDs(t *testing.T) {
	l := NewEvidenceLedger("case-1", testInvestigationConfig(), nil)

	satisfied := l.Open("a", types.CategorySymptoms, false, 1)
	cls := types.DefaultClassification()
	cls.Verdict = types.VerdictComplete
	l.Record(2, "done", nil, []string{satisfied}, cls)

	obsolete := l.OpenForHypothesis("b", types.CategoryScope, "hyp-1", 1)
	l.MarkObsolete("hyp-1", 2)

	// Unknown ids never block; obsolete requests are skipped.
	assert.True(t, l.Completeness([]string{satisfied, obsolete, "no-such-request"}, 0))

	open := l.Open("c", types.CategoryTimeline, false, 2)
	assert.False(t, l.Completeness([]string{satisfied, open}, 0))
}

func TestCompletenessEmptySetIsComplete(t *testing.T) {
	l := NewEvidenceLedger("case-1", testInvestigationConfig(), nil)
	assert.True(t, l.Completeness(nil, 0))
}

func TestCompletenessExplicitThreshold(t *testing.T) {
	l := NewEvidenceLedger("case-1", testInvestigationConfig(), nil)

	id := l.Open("a", types.CategorySymptoms, false, 1)
	l.Record(2, "half of it", nil, []string{id}, types.DefaultClassification())
	r, _ := l.Request(id)
	require.InDelta(t, 0.5, r.Completeness, 1e-9)

	// The explicit threshold wins over the configured 0.8.
	assert.True(t, l.Completeness([]string{id}, 0.4))
	assert.False(t, l.Completeness([]string{id}, 0.9))
	assert.False(t, l.Completeness([]string{id}, 0), "zero falls back to the configured default")
}

func TestMarkObsoleteByHypothesis(t *testing.T) {
	l := NewEvidenceLedger("case-1", testInvestigationConfig(), nil)

	linked := l.OpenForHypothesis("check pool size", types.CategoryConfiguration, "hyp-1", 1)
	other := l.Open("unrelated", types.CategorySymptoms, false, 1)

	n := l.MarkObsolete("hyp-1", 3)
	assert.Equal(t, 1, n)

	r, _ := l.Request(linked)
	assert.Equal(t, types.RequestObsolete, r.Status)
	o, _ := l.Request(other)
	assert.True(t, o.Status.Open(), "unlinked requests must stay open")

	// Second pass is a no-op.
	assert.Equal(t, 0, l.MarkObsolete("hyp-1", 4))
}

func TestRecordKeepsUnknownAddressedIDs(t *testing.T) {
	l := NewEvidenceLedger("case-1", testInvestigationConfig(), nil)

	evID := l.Record(1, "content", nil, []string{"deleted-request"}, types.DefaultClassification())
	provided := l.Provided()
	require.Len(t, provided, 1)
	assert.Equal(t, evID, provided[0].ID)
	assert.Equal(t, []string{"deleted-request"}, provided[0].AddressedRequestIDs)
}

func TestAttachmentForcesDocumentForm(t *testing.T) {
	l := NewEvidenceLedger("case-1", testInvestigationConfig(), nil)

	att := &types.Attachment{Filename: "trace.har", ContentType: "application/json", Size: 2048}
	cls := types.DefaultClassification() // form free_text
	l.Record(1, "", att, nil, cls)

	provided := l.Provided()
	require.Len(t, provided, 1)
	assert.Equal(t, types.FormDocument, provided[0].Form)
}

func TestDirtyTracksOnlyChanges(t *testing.T) {
	l := NewEvidenceLedger("case-1", testInvestigationConfig(), nil)

	l.Open("a", types.CategorySymptoms, false, 1)
	l.Record(1, "x", nil, nil, types.DefaultClassification())

	requests, provided := l.Dirty()
	assert.Len(t, requests, 1)
	assert.Len(t, provided, 1)

	l.ClearDirty()
	requests, provided = l.Dirty()
	assert.Empty(t, requests)
	assert.Empty(t, provided)
}

func TestBlockedCritical(t *testing.T) {
	l := NewEvidenceLedger("case-1", testInvestigationConfig(), nil)

	a := l.Open("a", types.CategorySymptoms, true, 1)
	b := l.Open("b", types.CategoryMetrics, true, 1)
	l.Open("c", types.CategoryScope, false, 1)

	l.MarkBlocked(a, 2)
	l.MarkBlocked(b, 2)

	assert.Equal(t, 2, l.BlockedCritical())
	assert.Len(t, l.OpenRequests(), 1)
}
