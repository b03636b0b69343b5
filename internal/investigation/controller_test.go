package investigation

import (
	"testing"
	"time"

	"gumshoe/internal/config"
	"gumshoe/internal/ledger"
	"gumshoe/internal/store"
	"gumshoe/internal/types"
)

func newTestController(t *testing.T) (*Controller, *store.LocalStore) {
	t.Helper()
	s, err := store.NewLocalStore(":memory:")
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	cfg := config.DefaultConfig().Investigation
	return NewController(s, cfg, nil, time.Hour), s
}

func openTestCase(t *testing.T, ctl *Controller) (*types.Case, *ledger.EvidenceLedger, *ledger.HypothesisLedger) {
	t.Helper()
	c, err := ctl.OpenCase("user-1", types.ModeLeadInvestigator)
	if err != nil {
		t.Fatalf("OpenCase failed: %v", err)
	}
	ev, hyp, err := ctl.LoadLedgers(c.ID)
	if err != nil {
		t.Fatalf("LoadLedgers failed: %v", err)
	}
	return c, ev, hyp
}

func turn(content string, cls types.EvidenceClassification) *TurnInput {
	return &TurnInput{Content: content, Classification: cls}
}

// advance runs one committed turn and returns the updated case.
func advance(t *testing.T, ctl *Controller, c *types.Case, ev *ledger.EvidenceLedger,
	hyp *ledger.HypothesisLedger, in *TurnInput) *types.Case {
	t.Helper()
	plan, err := ctl.Advance(c, ev, hyp, in)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	return plan.Case
}

func TestFullInvestigationLifecycle(t *testing.T) {
	ctl, _ := newTestController(t)
	c, ev, hyp := openTestCase(t, ctl)

	// Intake: a substantive problem statement advances the phase.
	c = advance(t, ctl, c, ev, hyp, turn(
		"checkout API returns 502 for roughly 10% of requests",
		types.DefaultClassification()))
	if c.Phase != types.PhaseBlastRadius {
		t.Fatalf("expected blast_radius after intake, got %s", c.Phase)
	}
	if c.Status != types.StatusInProgress {
		t.Errorf("expected in_progress, got %s", c.Status)
	}
	if c.ProblemStatement == "" {
		t.Error("problem statement not captured")
	}

	// Blast radius: complete scope evidence quantifies it.
	scopeCls := types.DefaultClassification()
	scopeCls.Category = types.CategoryScope
	scopeCls.Verdict = types.VerdictComplete
	c = advance(t, ctl, c, ev, hyp, turn("affects 12k requests/hour in eu-west only", scopeCls))
	if c.Phase != types.PhaseTimeline {
		t.Fatalf("expected timeline, got %s", c.Phase)
	}
	if !c.ScopeQuantified {
		t.Error("scope should be quantified")
	}

	// Timeline: a change anchored in time is the trigger.
	timelineCls := types.DefaultClassification()
	timelineCls.Category = types.CategoryChanges
	timelineCls.HasTemporalMarker = true
	timelineCls.TemporalMarker = "14:05 UTC, right after the v2.3 deploy"
	c = advance(t, ctl, c, ev, hyp, turn("started right after Tuesday's deploy", timelineCls))
	if c.Phase != types.PhaseHypothesis {
		t.Fatalf("expected hypothesis, got %s", c.Phase)
	}
	if !c.TriggerIdentified {
		t.Error("trigger should be identified")
	}
	if len(c.TimelineEvents) != 1 || !c.TimelineEvents[0].Trigger {
		t.Errorf("expected one trigger event, got %+v", c.TimelineEvents)
	}

	// Hypothesis: two ranked candidates advance to validation.
	in := turn("", types.DefaultClassification())
	in.Proposals = []HypothesisProposal{
		{Statement: "v2.3 shrank the upstream connection pool", Category: types.CategoryConfiguration, Likelihood: 0.6, Strategy: "compare pool config across versions"},
		{Statement: "new retry logic amplifies load", Category: types.CategoryChanges, Likelihood: 0.4, Strategy: "check retry counters"},
	}
	c = advance(t, ctl, c, ev, hyp, in)
	if c.Phase != types.PhaseValidation {
		t.Fatalf("expected validation, got %s", c.Phase)
	}
	// Validation opened one linked request per hypothesis.
	linked := 0
	for _, r := range ev.OpenRequests() {
		if r.HypothesisID != "" {
			linked++
		}
	}
	if linked != 2 {
		t.Fatalf("expected 2 linked validation requests, got %d", linked)
	}

	// Validation: supportive evidence validates the leader, refuting evidence
	// settles the other.
	var poolReq, retryReq string
	for _, r := range ev.Requests() {
		if r.HypothesisID == "" {
			continue
		}
		h, _ := hyp.Get(r.HypothesisID)
		if h.Likelihood >= 0.6 {
			poolReq = r.ID
		} else {
			retryReq = r.ID
		}
	}

	support := types.DefaultClassification()
	support.Relation = types.RelationSupportive
	support.Verdict = types.VerdictComplete
	for i := 0; i < 5 && c.Phase == types.PhaseValidation; i++ {
		in := turn("pool size dropped from 100 to 10 in v2.3", support)
		in.Addressed = []string{poolReq}
		c = advance(t, ctl, c, ev, hyp, in)
		if leading, _ := hyp.Leading(); leading.Status == types.HypothesisValidated {
			break
		}
	}

	refute := types.DefaultClassification()
	refute.Relation = types.RelationRefuting
	refute.Verdict = types.VerdictComplete
	for i := 0; i < 10 && c.Phase == types.PhaseValidation; i++ {
		in := turn("retry counters are flat", refute)
		in.Addressed = []string{retryReq}
		c = advance(t, ctl, c, ev, hyp, in)
	}
	if c.Phase != types.PhaseSolution {
		t.Fatalf("expected solution after validation settled, got %s (hypotheses: %+v)", c.Phase, hyp.Ranked())
	}
	if c.ProposedRemediation == "" {
		t.Error("entering solution must record a proposed remediation")
	}

	// Solution: the user confirms the fix worked.
	confirm := types.DefaultClassification()
	confirm.Relation = types.RelationSupportive
	c = advance(t, ctl, c, ev, hyp, turn("restored the pool size, error rate back to zero", confirm))
	if c.Status != types.StatusResolved {
		t.Errorf("expected resolved, got %s", c.Status)
	}
	if c.Phase != types.PhaseDocument {
		t.Errorf("expected document phase, got %s", c.Phase)
	}

	// Every transition was logged going forward.
	for _, tr := range c.PhaseLog {
		if tr.To != tr.From+1 && tr.Reason == "" {
			t.Errorf("regression without reason in phase log: %+v", tr)
		}
	}
}

func TestTimelineCeilingAdvancesWithoutTrigger(t *testing.T) {
	ctl, _ := newTestController(t)
	c, ev, hyp := openTestCase(t, ctl)

	c = advance(t, ctl, c, ev, hyp, turn("search is slow for everyone", types.DefaultClassification()))
	scopeCls := types.DefaultClassification()
	scopeCls.Category = types.CategoryScope
	scopeCls.Verdict = types.VerdictComplete
	c = advance(t, ctl, c, ev, hyp, turn("all users, all regions", scopeCls))
	if c.Phase != types.PhaseTimeline {
		t.Fatalf("setup failed, phase=%s", c.Phase)
	}

	// No temporal markers ever arrive; the ceiling forces progress.
	for i := 0; i < 10 && c.Phase == types.PhaseTimeline; i++ {
		c = advance(t, ctl, c, ev, hyp, turn("not sure when it started", types.DefaultClassification()))
	}
	if c.Phase != types.PhaseHypothesis {
		t.Errorf("timeline should advance at the turn ceiling, got %s", c.Phase)
	}
	if c.TriggerIdentified {
		t.Error("trigger must not be fabricated by the ceiling")
	}
}

func TestStallAfterWindowNotBefore(t *testing.T) {
	ctl, _ := newTestController(t)
	c, ev, hyp := openTestCase(t, ctl)

	// Never provide a problem statement, so intake never completes. Asking
	// questions produces no consumable evidence.
	asking := types.DefaultClassification()
	asking.Intent = types.IntentAsking

	for i := 1; i <= 4; i++ {
		c = advance(t, ctl, c, ev, hyp, turn("what do you think it is?", asking))
	}
	if c.Status == types.StatusStalled {
		t.Fatalf("stalled one turn early at turn %d", c.Turn)
	}

	c = advance(t, ctl, c, ev, hyp, turn("no idea", asking))
	if c.Status != types.StatusStalled {
		t.Fatalf("expected stalled after %d turns without progress, got %s", c.Turn, c.Status)
	}
	if c.Stall == nil || c.Stall.Recommendation == "" {
		t.Error("stall must carry a recommendation")
	}
}

func TestStallClearsOnProgress(t *testing.T) {
	ctl, _ := newTestController(t)
	c, ev, hyp := openTestCase(t, ctl)

	asking := types.DefaultClassification()
	asking.Intent = types.IntentAsking
	for i := 0; i < 5; i++ {
		c = advance(t, ctl, c, ev, hyp, turn("hm", asking))
	}
	if c.Status != types.StatusStalled {
		t.Fatalf("setup failed, status=%s", c.Status)
	}

	c = advance(t, ctl, c, ev, hyp, turn(
		"payments fail with timeout errors since this morning", types.DefaultClassification()))
	if c.Status != types.StatusInProgress {
		t.Errorf("stall should clear on phase progress, got %s", c.Status)
	}
	if c.Stall != nil {
		t.Error("stall state should be cleared")
	}
}

func TestStallOnAllRefuted(t *testing.T) {
	ctl, _ := newTestController(t)
	c, ev, hyp := openTestCase(t, ctl)
	c.Phase = types.PhaseValidation
	c.Status = types.StatusInProgress
	c.LastPhaseChangeTurn = c.Turn

	a := hyp.Propose("a", types.CategorySymptoms, 0.5, "")
	b := hyp.Propose("b", types.CategoryChanges, 0.5, "")
	hyp.SetStatus(a, types.HypothesisRefuted)
	hyp.SetStatus(b, types.HypothesisRefuted)

	plan, err := ctl.Plan(c, ev, hyp, turn("anything else?", types.DefaultClassification()))
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.Case.Status != types.StatusStalled {
		t.Errorf("all-refuted validation should stall, got %s", plan.Case.Status)
	}
	if plan.Instructions.Escalation == "" {
		t.Error("stalled instructions must carry an escalation")
	}
}

func TestStallOnBlockedCritical(t *testing.T) {
	ctl, _ := newTestController(t)
	c, ev, hyp := openTestCase(t, ctl)

	for i := 0; i < 3; i++ {
		ev.Open("critical data", types.CategoryMetrics, true, 1)
	}
	in := turn("I can't access any of those", types.DefaultClassification())
	for _, r := range ev.Requests() {
		in.Blocked = append(in.Blocked, r.ID)
	}

	plan, err := ctl.Plan(c, ev, hyp, in)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.Case.Status != types.StatusStalled {
		t.Errorf("three blocked critical requests should stall, got %s", plan.Case.Status)
	}
}

func TestSolutionFailureIsLoggedRegression(t *testing.T) {
	ctl, _ := newTestController(t)
	c, ev, hyp := openTestCase(t, ctl)
	c.Phase = types.PhaseSolution
	c.Status = types.StatusInProgress
	c.ProposedRemediation = "restore the pool size"

	id := hyp.Propose("pool too small", types.CategoryConfiguration, 0.95, "")
	hyp.SetStatus(id, types.HypothesisValidated)

	refute := types.DefaultClassification()
	refute.Relation = types.RelationRefuting
	plan, err := ctl.Plan(c, ev, hyp, turn("still failing after the change", refute))
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.Case.Phase != types.PhaseHypothesis {
		t.Fatalf("failed remediation should regress to hypothesis, got %s", plan.Case.Phase)
	}
	last := plan.Case.PhaseLog[len(plan.Case.PhaseLog)-1]
	if last.Reason == "" {
		t.Error("regression must be logged with a reason")
	}
	if last.From != types.PhaseSolution || last.To != types.PhaseHypothesis {
		t.Errorf("wrong transition logged: %+v", last)
	}
	if plan.Case.ProposedRemediation != "" {
		t.Error("failed remediation should be cleared for a fresh proposal")
	}
}

func TestScopeConfidenceFollowsEvidenceRelation(t *testing.T) {
	ctl, _ := newTestController(t)
	c, ev, hyp := openTestCase(t, ctl)

	c = advance(t, ctl, c, ev, hyp, turn(
		"image uploads fail intermittently", types.DefaultClassification()))
	if c.Phase != types.PhaseBlastRadius {
		t.Fatalf("setup failed, phase=%s", c.Phase)
	}
	if c.ScopeConfidence != scopeConfidenceSeed {
		t.Fatalf("entering blast radius should seed scope confidence, got %.3f", c.ScopeConfidence)
	}

	sup := types.DefaultClassification()
	sup.Category = types.CategoryScope
	sup.Relation = types.RelationSupportive
	c = advance(t, ctl, c, ev, hyp, turn("looks like roughly a fifth of uploads", sup))
	afterSupport := c.ScopeConfidence
	if afterSupport <= scopeConfidenceSeed {
		t.Errorf("supportive scope evidence must raise confidence, got %.3f", afterSupport)
	}

	ref := types.DefaultClassification()
	ref.Category = types.CategoryScope
	ref.Relation = types.RelationRefuting
	c = advance(t, ctl, c, ev, hyp, turn("the dashboard actually shows normal volume", ref))
	if c.ScopeConfidence >= afterSupport {
		t.Errorf("refuting scope evidence must lower confidence: %.3f -> %.3f",
			afterSupport, c.ScopeConfidence)
	}

	neutral := types.DefaultClassification()
	neutral.Category = types.CategoryMetrics
	before := c.ScopeConfidence
	c = advance(t, ctl, c, ev, hyp, turn("here is the raw graph", neutral))
	if c.ScopeConfidence != before {
		t.Errorf("neutral evidence must not move confidence: %.3f -> %.3f", before, c.ScopeConfidence)
	}
}

func TestSolutionRecordsRemediation(t *testing.T) {
	ctl, s := newTestController(t)
	c, ev, hyp := openTestCase(t, ctl)
	c.Phase = types.PhaseValidation
	c.Status = types.StatusInProgress
	c.LastPhaseChangeTurn = c.Turn

	cause := hyp.Propose("connection pool shrank in v2.3", types.CategoryConfiguration, 0.95, "")
	hyp.SetStatus(cause, types.HypothesisValidated)
	other := hyp.Propose("retry storm amplifies load", types.CategoryChanges, 0.1, "")
	hyp.SetStatus(other, types.HypothesisRefuted)

	c = advance(t, ctl, c, ev, hyp, turn("that settles it", types.DefaultClassification()))
	if c.Phase != types.PhaseSolution {
		t.Fatalf("expected solution, got %s", c.Phase)
	}
	if c.ProposedRemediation == "" {
		t.Fatal("entering solution must record a proposed remediation")
	}

	stored, err := s.GetCase(c.ID)
	if err != nil {
		t.Fatalf("GetCase failed: %v", err)
	}
	if stored.ProposedRemediation != c.ProposedRemediation {
		t.Errorf("remediation not persisted: stored %q, planned %q",
			stored.ProposedRemediation, c.ProposedRemediation)
	}
}

func TestStalledSolutionResumesBeforeResolving(t *testing.T) {
	ctl, _ := newTestController(t)
	c, ev, hyp := openTestCase(t, ctl)
	c.Phase = types.PhaseSolution
	c.Status = types.StatusStalled
	c.Stall = &types.StallState{Reason: "no confirmation", DetectedTurn: c.Turn, Recommendation: "try the rollback"}
	c.ProposedRemediation = "restore the pool size"

	id := hyp.Propose("pool too small", types.CategoryConfiguration, 0.95, "")
	hyp.SetStatus(id, types.HypothesisValidated)

	confirm := types.DefaultClassification()
	confirm.Relation = types.RelationSupportive
	plan, err := ctl.Plan(c, ev, hyp, turn("rollback fixed it, all green again", confirm))
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.Case.Status != types.StatusResolved {
		t.Fatalf("confirmed remediation should resolve, got %s", plan.Case.Status)
	}
	if plan.Case.Stall != nil {
		t.Error("resolving must clear the stall state")
	}
	if plan.Case.Phase != types.PhaseDocument {
		t.Errorf("resolved solution should advance to document, got %s", plan.Case.Phase)
	}
}

func TestRegressRequiresReason(t *testing.T) {
	ctl, _ := newTestController(t)
	c, _, _ := openTestCase(t, ctl)
	c.Phase = types.PhaseValidation

	err := ctl.Regress(c, types.PhaseTimeline, "")
	if !types.IsValidation(err) {
		t.Errorf("expected validation error for empty reason, got %v", err)
	}

	err = ctl.Regress(c, types.PhaseSolution, "cannot regress forward")
	if !types.IsValidation(err) {
		t.Errorf("expected validation error for forward target, got %v", err)
	}
}

func TestCommitConflictPersistsNothing(t *testing.T) {
	ctl, s := newTestController(t)
	c, ev, hyp := openTestCase(t, ctl)

	plan, err := ctl.Plan(c, ev, hyp, turn("db is down", types.DefaultClassification()))
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	// Another writer moves the version before Commit.
	other := c.Clone()
	if err := s.SaveCase(other, c.Version); err != nil {
		t.Fatalf("concurrent save failed: %v", err)
	}

	if err := ctl.Commit(plan); err != types.ErrVersionConflict {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	provided, err := s.EvidenceProvided(c.ID)
	if err != nil {
		t.Fatalf("EvidenceProvided failed: %v", err)
	}
	if len(provided) != 0 {
		t.Errorf("conflicted commit leaked %d evidence records", len(provided))
	}
}

func TestInstructionListsNeverNil(t *testing.T) {
	ctl, _ := newTestController(t)
	c, ev, hyp := openTestCase(t, ctl)

	plan, err := ctl.Plan(c, ev, hyp, nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	is := plan.Instructions
	if is.OpenRequests == nil || is.FocusHypotheses == nil || is.NextActions == nil {
		t.Error("instruction lists must default empty, not nil")
	}
	if is.Objective == "" || is.Tone == "" {
		t.Error("objective and tone are always present")
	}
}

func TestSetStatusEnforcesGraph(t *testing.T) {
	ctl, _ := newTestController(t)
	c, _, _ := openTestCase(t, ctl)

	if err := ctl.SetStatus(c, types.StatusClosed); err == nil {
		t.Error("intake -> closed must be rejected")
	}
	if err := ctl.SetStatus(c, types.StatusAbandoned); err != nil {
		t.Errorf("intake -> abandoned should be legal: %v", err)
	}
	if err := ctl.SetStatus(c, types.StatusClosed); err != nil {
		t.Errorf("abandoned -> closed should be legal: %v", err)
	}
}
