// Package investigation is the deterministic state machine that drives a case
// through its seven phases. The controller consumes classified evidence,
// updates the ledgers, evaluates phase completeness, and emits the
// instruction set for the generation collaborator. No free-form collaborator
// text ever reaches this package; only validated classifications do.
package investigation

import (
	"strings"

	"gumshoe/internal/ledger"
	"gumshoe/internal/types"
)

// Scope-confidence handling in the blast radius phase. Confidence is seeded
// on phase entry so the multiplicative rule has a base to move; at
// scopeConfidenceHigh the blast radius counts scoped even without hard
// numbers.
const (
	scopeConfidenceSeed = 0.5
	scopeConfidenceHigh = 0.7
	scopeSupportFactor  = 1.1
	scopeRefuteFactor   = 0.9
)

// phaseObjectives is the controller-owned objective line per phase. The
// collaborator renders these; it never chooses them.
var phaseObjectives = map[types.Phase]string{
	types.PhaseIntake:      "Establish a clear problem statement: what is broken, for whom, and how it manifests.",
	types.PhaseBlastRadius: "Quantify the blast radius: affected users, services, regions, and severity.",
	types.PhaseTimeline:    "Anchor the timeline: when it started, what changed, and the candidate trigger event.",
	types.PhaseHypothesis:  "Propose ranked candidate explanations with a validation strategy for each.",
	types.PhaseValidation:  "Test the open hypotheses against requested evidence until each is validated or refuted.",
	types.PhaseSolution:    "Propose remediation for the validated cause and confirm it resolves the problem.",
	types.PhaseDocument:    "Summarize the investigation: cause, fix, and follow-ups worth recording.",
}

// consumeEvidence applies one classified submission to the per-phase working
// state on the case. It is called once per recorded submission, before
// completeness is evaluated.
func (ctl *Controller) consumeEvidence(c *types.Case, ev *ledger.EvidenceLedger,
	hyp *ledger.HypothesisLedger, in *TurnInput) {

	cls := in.Classification

	switch c.Phase {
	case types.PhaseIntake:
		// The first substantive description becomes the problem statement.
		if c.ProblemStatement == "" && strings.TrimSpace(in.Content) != "" && cls.Intent != types.IntentAsking {
			c.ProblemStatement = strings.TrimSpace(in.Content)
		}

	case types.PhaseBlastRadius:
		if cls.Category == types.CategoryScope || cls.Category == types.CategoryMetrics {
			switch cls.Verdict {
			case types.VerdictComplete, types.VerdictOverComplete:
				c.ScopeQuantified = true
				c.ScopeConfidence = 1.0
			default:
				// Partial evidence moves confidence by its relation; neutral
				// and absence leave it where it stands.
				switch cls.Relation {
				case types.RelationSupportive:
					c.ScopeConfidence = types.ClampUnit(c.ScopeConfidence * scopeSupportFactor)
				case types.RelationRefuting:
					c.ScopeConfidence = types.ClampUnit(c.ScopeConfidence * scopeRefuteFactor)
				}
			}
		}

	case types.PhaseTimeline:
		if cls.HasTemporalMarker {
			event := types.TimelineEvent{
				Marker:      cls.TemporalMarker,
				Description: eventDescription(in.Content, cls.KeyFindings),
				Turn:        c.Turn,
			}
			// A change anchored in time is the candidate trigger.
			if cls.Category == types.CategoryChanges {
				event.Trigger = true
				c.TriggerIdentified = true
			}
			c.TimelineEvents = append(c.TimelineEvents, event)
		}

	case types.PhaseSolution:
		// The user's report on the proposed remediation settles the phase. A
		// stalled case resumes first; the status graph has no stalled ->
		// resolved edge.
		switch cls.Relation {
		case types.RelationSupportive:
			if c.Status == types.StatusStalled {
				c.Status = types.StatusInProgress
				c.Stall = nil
			}
			if c.Status.CanTransitionTo(types.StatusResolved) {
				c.Status = types.StatusResolved
			}
		case types.RelationRefuting:
			// Handled by the controller as a logged regression.
		}
	}
}

func eventDescription(content string, findings []string) string {
	if len(findings) > 0 {
		return findings[0]
	}
	const max = 160
	content = strings.TrimSpace(content)
	if runes := []rune(content); len(runes) > max {
		return string(runes[:max])
	}
	return content
}

// phaseComplete evaluates the completeness predicate for the case's current
// phase. Completeness is computed from ledger and case state only; it never
// consults raw text.
func (ctl *Controller) phaseComplete(c *types.Case, ev *ledger.EvidenceLedger,
	hyp *ledger.HypothesisLedger) bool {

	switch c.Phase {
	case types.PhaseIntake:
		return c.ProblemStatement != ""

	case types.PhaseBlastRadius:
		return c.ScopeQuantified || c.ScopeConfidence >= scopeConfidenceHigh

	case types.PhaseTimeline:
		if c.TriggerIdentified {
			return true
		}
		ceiling := ctl.cfg.TimelineTurnCeiling
		if ceiling <= 0 {
			ceiling = 4
		}
		return ctl.turnsInPhase(c) >= ceiling

	case types.PhaseHypothesis:
		min := ctl.cfg.MinRankedHypotheses
		if min <= 0 {
			min = 2
		}
		ranked := 0
		for _, h := range hyp.Ranked() {
			if h.Status != types.HypothesisRefuted {
				ranked++
			}
		}
		return ranked >= min

	case types.PhaseValidation:
		return hyp.AllSettled() && !hyp.AllRefuted()

	case types.PhaseSolution:
		return c.Status == types.StatusResolved || c.Status == types.StatusMitigated

	case types.PhaseDocument:
		return false // terminal, nothing advances past it
	}
	return false
}

// turnsInPhase counts turns spent since the last phase change.
func (ctl *Controller) turnsInPhase(c *types.Case) int {
	return c.Turn - c.LastPhaseChangeTurn
}

// advancePhase moves the case one phase forward and logs the transition.
func (ctl *Controller) advancePhase(c *types.Case, reason string) {
	from := c.Phase
	c.Phase++
	c.PhaseLog = append(c.PhaseLog, types.PhaseTransition{
		From: from, To: c.Phase, Reason: reason, Turn: c.Turn,
	})
	c.LastPhaseChangeTurn = c.Turn
	c.Stall = nil
}

// enterPhase opens the phase's initial evidence requests. Called once when a
// phase is entered going forward; regressions reuse whatever is still open.
func (ctl *Controller) enterPhase(c *types.Case, ev *ledger.EvidenceLedger, hyp *ledger.HypothesisLedger) {
	switch c.Phase {
	case types.PhaseBlastRadius:
		if c.ScopeConfidence == 0 {
			c.ScopeConfidence = scopeConfidenceSeed
		}
		ev.Open("how many users or requests are affected", types.CategoryScope, true, c.Turn)
		ev.Open("error-rate or latency metrics for the affected window", types.CategoryMetrics, false, c.Turn)
	case types.PhaseTimeline:
		ev.Open("when the problem was first observed", types.CategoryTimeline, true, c.Turn)
		ev.Open("deploys, config changes, or migrations near the onset", types.CategoryChanges, true, c.Turn)
	case types.PhaseHypothesis:
		ev.Open("configuration of the suspect components", types.CategoryConfiguration, false, c.Turn)
	case types.PhaseValidation:
		// One validation request per open hypothesis, linked so refutation
		// obsoletes it.
		for _, h := range hyp.Open() {
			label := h.ValidationStrategy
			if label == "" {
				label = "evidence to test: " + h.Statement
			}
			ev.OpenForHypothesis(label, h.Category, h.ID, c.Turn)
		}
	case types.PhaseSolution:
		// The leading surviving hypothesis is the cause being remediated.
		if c.ProposedRemediation == "" {
			if leading, ok := hyp.Leading(); ok {
				c.ProposedRemediation = "address the validated cause: " + leading.Statement
			}
		}
	}
}
