package types

import (
	"testing"
)

func TestStatusTransitions(t *testing.T) {
	legal := []struct {
		from, to CaseStatus
	}{
		{StatusIntake, StatusInProgress},
		{StatusIntake, StatusAbandoned},
		{StatusInProgress, StatusResolved},
		{StatusInProgress, StatusMitigated},
		{StatusInProgress, StatusStalled},
		{StatusInProgress, StatusAbandoned},
		{StatusResolved, StatusClosed},
		{StatusMitigated, StatusClosed},
		{StatusStalled, StatusInProgress},
		{StatusStalled, StatusAbandoned},
		{StatusAbandoned, StatusClosed},
	}
	for _, tc := range legal {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Errorf("expected %s -> %s to be legal", tc.from, tc.to)
		}
	}

	illegal := []struct {
		from, to CaseStatus
	}{
		{StatusIntake, StatusResolved},
		{StatusIntake, StatusClosed},
		{StatusResolved, StatusInProgress},
		{StatusClosed, StatusInProgress},
		{StatusClosed, StatusAbandoned},
		{StatusStalled, StatusResolved},
		{StatusAbandoned, StatusInProgress},
	}
	for _, tc := range illegal {
		if tc.from.CanTransitionTo(tc.to) {
			t.Errorf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}

	// Holding a status is not a transition.
	if !StatusInProgress.CanTransitionTo(StatusInProgress) {
		t.Error("self-transition should be allowed")
	}
}

func TestParseDefaults(t *testing.T) {
	if got := ParseCaseStatus("bogus"); got != StatusIntake {
		t.Errorf("ParseCaseStatus default = %s, want intake", got)
	}
	if got := ParseEvidenceCategory("bogus"); got != CategorySymptoms {
		t.Errorf("ParseEvidenceCategory default = %s, want symptoms", got)
	}
	if got := ParseCompletenessVerdict("bogus"); got != VerdictPartial {
		t.Errorf("ParseCompletenessVerdict default = %s, want partial", got)
	}
	if got := ParseEvidenceRelation("bogus"); got != RelationNeutral {
		t.Errorf("ParseEvidenceRelation default = %s, want neutral", got)
	}
	if got := ParseSubmitterIntent("bogus"); got != IntentVolunteering {
		t.Errorf("ParseSubmitterIntent default = %s, want volunteering", got)
	}
	if got := ParseEvidenceForm("bogus"); got != FormFreeText {
		t.Errorf("ParseEvidenceForm default = %s, want free_text", got)
	}
	if got := ParseHypothesisStatus("bogus"); got != HypothesisPending {
		t.Errorf("ParseHypothesisStatus default = %s, want pending", got)
	}
}

func TestParseKnownValues(t *testing.T) {
	if got := ParseEvidenceRelation("refuting"); got != RelationRefuting {
		t.Errorf("ParseEvidenceRelation(refuting) = %s", got)
	}
	if got := ParseCompletenessVerdict("over_complete"); got != VerdictOverComplete {
		t.Errorf("ParseCompletenessVerdict(over_complete) = %s", got)
	}
	if got := ParseEngagementMode("lead_investigator"); got != ModeLeadInvestigator {
		t.Errorf("ParseEngagementMode(lead_investigator) = %s", got)
	}
}

func TestClampUnit(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{1.1, 1},
	}
	for _, tc := range cases {
		if got := ClampUnit(tc.in); got != tc.want {
			t.Errorf("ClampUnit(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestPhaseNames(t *testing.T) {
	want := map[Phase]string{
		PhaseIntake:      "intake",
		PhaseBlastRadius: "blast_radius",
		PhaseTimeline:    "timeline",
		PhaseHypothesis:  "hypothesis",
		PhaseValidation:  "validation",
		PhaseSolution:    "solution",
		PhaseDocument:    "document",
	}
	for p, name := range want {
		if p.String() != name {
			t.Errorf("Phase(%d).String() = %s, want %s", p, p.String(), name)
		}
		if !p.Valid() {
			t.Errorf("Phase(%d) should be valid", p)
		}
	}
	if Phase(7).Valid() {
		t.Error("Phase(7) should be invalid")
	}
	if !PhaseDocument.Terminal() {
		t.Error("document phase should be terminal")
	}
}

func TestCaseClone(t *testing.T) {
	c := &Case{
		ID:     "case-1",
		Status: StatusInProgress,
		Phase:  PhaseTimeline,
		TimelineEvents: []TimelineEvent{
			{Marker: "14:05", Description: "deploy finished"},
		},
		Stall: &StallState{Reason: "no_progress"},
	}
	cp := c.Clone()
	cp.TimelineEvents[0].Marker = "mutated"
	cp.Stall.Reason = "mutated"
	cp.Phase = PhaseSolution

	if c.TimelineEvents[0].Marker != "14:05" {
		t.Error("Clone shares timeline slice with original")
	}
	if c.Stall.Reason != "no_progress" {
		t.Error("Clone shares stall pointer with original")
	}
	if c.Phase != PhaseTimeline {
		t.Error("Clone shares scalar state with original")
	}
}
