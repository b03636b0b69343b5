package investigation

import (
	"fmt"

	"gumshoe/internal/ledger"
	"gumshoe/internal/logging"
	"gumshoe/internal/types"
)

// detectStall checks the no-progress conditions after a turn has been
// consumed. A stall is a signal, not a failure: the case stays workable and
// the next phase advance clears it. Already-stalled cases are left alone
// until something moves.
func (ctl *Controller) detectStall(c *types.Case, ev *ledger.EvidenceLedger, hyp *ledger.HypothesisLedger) {
	if c.Status != types.StatusInProgress && c.Status != types.StatusStalled {
		return
	}
	if c.Stall != nil {
		return
	}

	if reason, rec := ctl.stallCondition(c, ev, hyp); reason != "" {
		c.Stall = &types.StallState{
			Reason:         reason,
			DetectedTurn:   c.Turn,
			Recommendation: rec,
		}
		if c.Status.CanTransitionTo(types.StatusStalled) {
			c.Status = types.StatusStalled
		}
		logging.InvestigationWarn("Case %s stalled at turn %d: %s", c.ID, c.Turn, reason)
		return
	}

	// Stall state was cleared by an advance this turn; resume.
	if c.Status == types.StatusStalled {
		c.Status = types.StatusInProgress
	}
}

func (ctl *Controller) stallCondition(c *types.Case, ev *ledger.EvidenceLedger, hyp *ledger.HypothesisLedger) (string, string) {
	limit := ctl.cfg.CriticalBlockedLimit
	if limit <= 0 {
		limit = 3
	}
	if blocked := ev.BlockedCritical(); blocked >= limit {
		return fmt.Sprintf("%d critical evidence requests are blocked", blocked),
			"Find alternative data sources for the blocked requests, or escalate to someone with access."
	}

	if c.Phase == types.PhaseValidation && hyp.AllRefuted() {
		return "every hypothesis has been refuted",
			"Revisit the timeline and blast radius for overlooked changes, then propose fresh hypotheses."
	}

	hypStall := ctl.cfg.HypothesisStallTurns
	if hypStall <= 0 {
		hypStall = 3
	}
	if c.Phase == types.PhaseHypothesis && hyp.Count() == 0 && ctl.turnsInPhase(c) >= hypStall {
		return fmt.Sprintf("no hypotheses proposed after %d turns", ctl.turnsInPhase(c)),
			"Review the collected evidence for patterns, or bring in a specialist for the affected component."
	}

	window := ctl.cfg.StallTurnWindow
	if window <= 0 {
		window = 5
	}
	if ctl.turnsInPhase(c) >= window {
		return fmt.Sprintf("no phase progress in %d turns", ctl.turnsInPhase(c)),
			"Focus on the open critical requests; consider narrowing the problem statement."
	}

	return "", ""
}
