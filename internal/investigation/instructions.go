package investigation

import (
	"gumshoe/internal/ledger"
	"gumshoe/internal/types"
)

// focusLimit caps how many hypotheses the collaborator is told to focus on.
const focusLimit = 3

var modeTones = map[types.EngagementMode]string{
	types.ModeConsultant:       "Answer the user's questions first. Suggest next steps without pushing; the user sets the pace.",
	types.ModeLeadInvestigator: "Drive the investigation. Ask for the highest-value missing evidence directly and keep momentum toward a root cause.",
}

// buildInstructions assembles the per-turn instruction set for the generation
// collaborator. Everything here is derived from controller state; lists are
// never nil so the serialized form is stable.
func (ctl *Controller) buildInstructions(c *types.Case, ev *ledger.EvidenceLedger,
	hyp *ledger.HypothesisLedger) types.InstructionSet {

	open := ev.OpenRequests()
	if open == nil {
		open = []types.EvidenceRequest{}
	}

	focus := []types.Hypothesis{}
	for _, h := range hyp.Ranked() {
		if h.Status == types.HypothesisRefuted {
			continue
		}
		focus = append(focus, h)
		if len(focus) == focusLimit {
			break
		}
	}

	is := types.InstructionSet{
		Phase:           c.Phase,
		Mode:            c.Mode,
		Objective:       phaseObjectives[c.Phase],
		Tone:            modeTones[c.Mode],
		OpenRequests:    open,
		FocusHypotheses: focus,
		NextActions:     ctl.nextActions(c, open, hyp),
	}
	if c.Stall != nil {
		is.Escalation = c.Stall.Recommendation
	}
	return is
}

func (ctl *Controller) nextActions(c *types.Case, open []types.EvidenceRequest,
	hyp *ledger.HypothesisLedger) []string {

	actions := []string{}
	for _, r := range open {
		if r.Critical {
			actions = append(actions, "Ask for: "+r.Label)
		}
	}

	switch c.Phase {
	case types.PhaseIntake:
		if c.ProblemStatement == "" {
			actions = append(actions, "Get a one-sentence description of what is broken and for whom.")
		}
	case types.PhaseHypothesis:
		if hyp.Count() < ctl.cfg.MinRankedHypotheses {
			actions = append(actions, "Propose candidate explanations consistent with the timeline and scope.")
		}
	case types.PhaseSolution:
		actions = append(actions, "Confirm whether the proposed remediation resolved the problem.")
	case types.PhaseDocument:
		actions = append(actions, "Write up the cause, the fix, and any follow-up work.")
	}
	return actions
}
