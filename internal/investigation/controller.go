package investigation

import (
	"time"

	"github.com/google/uuid"

	"gumshoe/internal/config"
	"gumshoe/internal/ledger"
	"gumshoe/internal/logging"
	"gumshoe/internal/store"
	"gumshoe/internal/types"
)

// Controller owns every case mutation. All writes go through Plan/Commit so
// one turn is one compare-and-swap transaction; a failed or abandoned plan
// leaves the stored case untouched.
type Controller struct {
	store     *store.LocalStore
	cfg       config.InvestigationConfig
	playbooks *config.PlaybookHolder
	caseTTL   time.Duration
}

// NewController creates the controller. playbooks may be nil.
func NewController(s *store.LocalStore, cfg config.InvestigationConfig,
	playbooks *config.PlaybookHolder, caseTTL time.Duration) *Controller {

	if playbooks == nil {
		playbooks = config.NewPlaybookHolder(nil)
	}
	if caseTTL <= 0 {
		caseTTL = 168 * time.Hour
	}
	return &Controller{store: s, cfg: cfg, playbooks: playbooks, caseTTL: caseTTL}
}

// HypothesisProposal is one candidate explanation extracted from the
// collaborator's structured output.
type HypothesisProposal struct {
	Statement  string
	Category   types.EvidenceCategory
	Likelihood float64
	Strategy   string
}

// TurnInput is one classified user turn, ready for deterministic consumption.
type TurnInput struct {
	Content        string
	Attachment     *types.Attachment
	Addressed      []string // evidence request ids this submission answers
	Blocked        []string // request ids the user declined or cannot obtain
	Classification types.EvidenceClassification
	Proposals      []HypothesisProposal
}

// TurnPlan is the computed outcome of one turn, not yet persisted. The case
// inside is a mutated clone; Commit makes it durable.
type TurnPlan struct {
	Case         *types.Case
	Evidence     *ledger.EvidenceLedger
	Hypotheses   *ledger.HypothesisLedger
	Instructions types.InstructionSet
	EvidenceID   string // id of the recorded submission, if any

	expectVersion int64
}

// OpenCase creates and persists a new case for the user.
func (ctl *Controller) OpenCase(userID string, mode types.EngagementMode) (*types.Case, error) {
	c := &types.Case{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    types.StatusIntake,
		Phase:     types.PhaseIntake,
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
	}
	if err := ctl.store.CreateCase(c, ctl.caseTTL); err != nil {
		return nil, err
	}
	logging.Investigation("Opened case %s for user %s mode=%s", c.ID, userID, mode)
	return c, nil
}

// LoadLedgers builds both ledger snapshots for a case.
func (ctl *Controller) LoadLedgers(caseID string) (*ledger.EvidenceLedger, *ledger.HypothesisLedger, error) {
	ev, err := ledger.LoadEvidenceLedger(ctl.store, caseID, ctl.cfg, ctl.playbooks.Get())
	if err != nil {
		return nil, nil, err
	}
	hyp, err := ledger.LoadHypothesisLedger(ctl.store, caseID, ctl.cfg)
	if err != nil {
		return nil, nil, err
	}
	return ev, hyp, nil
}

// Plan computes one turn: consume the classified submission, update the
// ledgers, evaluate phase completeness, detect stalls, and build the
// instruction set. Plan never writes; the input case is cloned, the ledgers
// are mutated in place and flushed by Commit.
func (ctl *Controller) Plan(c *types.Case, ev *ledger.EvidenceLedger,
	hyp *ledger.HypothesisLedger, in *TurnInput) (*TurnPlan, error) {

	if !c.Phase.Valid() {
		return nil, types.NewValidation("case.phase", "unknown phase")
	}

	clone := c.Clone()
	plan := &TurnPlan{
		Case: clone, Evidence: ev, Hypotheses: hyp,
		expectVersion: c.Version,
	}

	clone.Turn++
	if clone.Status == types.StatusIntake {
		clone.Status = types.StatusInProgress
	}

	if in != nil {
		ctl.consumeTurn(plan, in)
	}

	// Advance through every phase whose predicate now holds. A single strong
	// submission may complete more than one phase.
	for !clone.Phase.Terminal() && ctl.phaseComplete(clone, ev, hyp) {
		ctl.advancePhase(clone, "objective met")
		ctl.enterPhase(clone, ev, hyp)
		logging.Investigation("Case %s advanced to %s at turn %d", clone.ID, clone.Phase, clone.Turn)
	}

	clone.LastProcessedTurn = clone.Turn
	ctl.detectStall(clone, ev, hyp)
	plan.Instructions = ctl.buildInstructions(clone, ev, hyp)
	return plan, nil
}

// consumeTurn records the submission and applies it to the ledgers and the
// per-phase working state.
func (ctl *Controller) consumeTurn(plan *TurnPlan, in *TurnInput) {
	clone, ev, hyp := plan.Case, plan.Evidence, plan.Hypotheses

	if in.Content != "" {
		clone.AppendMessage("user", in.Content)
	}

	for _, reqID := range in.Blocked {
		ev.MarkBlocked(reqID, clone.Turn)
	}

	if in.Content != "" || in.Attachment != nil {
		evID := ev.Record(clone.Turn, in.Content, in.Attachment, in.Addressed, in.Classification)
		plan.EvidenceID = evID
		clone.EvidenceIDs = append(clone.EvidenceIDs, evID)

		// Route the evidentiary relation to every hypothesis linked through
		// the addressed requests. Refutation obsoletes the hypothesis's
		// remaining requests.
		seen := map[string]struct{}{}
		for _, reqID := range in.Addressed {
			r, ok := ev.Request(reqID)
			if !ok || r.HypothesisID == "" {
				continue
			}
			if _, dup := seen[r.HypothesisID]; dup {
				continue
			}
			seen[r.HypothesisID] = struct{}{}
			status, applied := hyp.ApplyEvidence(r.HypothesisID, evID, in.Classification.Relation)
			if applied && status == types.HypothesisRefuted {
				ev.MarkObsolete(r.HypothesisID, clone.Turn)
			}
		}
	}

	for _, p := range in.Proposals {
		id := hyp.Propose(p.Statement, p.Category, p.Likelihood, p.Strategy)
		if clone.Phase == types.PhaseValidation {
			// Late proposal during validation gets its request immediately.
			label := p.Strategy
			if label == "" {
				label = "evidence to test: " + p.Statement
			}
			ev.OpenForHypothesis(label, p.Category, id, clone.Turn)
		}
	}

	ctl.consumeEvidence(clone, ev, hyp, in)

	// A refuting report on the proposed remediation is a logged regression
	// back to hypothesis work, never a silent one.
	if clone.Phase == types.PhaseSolution && in.Classification.Relation == types.RelationRefuting {
		_ = ctl.regress(clone, types.PhaseHypothesis, "proposed remediation did not resolve the problem")
		clone.ProposedRemediation = ""
		if leading, ok := hyp.Leading(); ok {
			hyp.SetStatus(leading.ID, types.HypothesisTesting)
		}
	}
}

// Commit persists the plan atomically: the case save plus every dirty ledger
// row, all under one compare-and-swap transaction. On version conflict the
// caller reloads and replans.
func (ctl *Controller) Commit(plan *TurnPlan) error {
	requests, provided := plan.Evidence.Dirty()
	hypotheses := plan.Hypotheses.Dirty()

	if err := ctl.store.ApplyTurn(plan.Case, plan.expectVersion, requests, provided, hypotheses); err != nil {
		return err
	}
	plan.Evidence.ClearDirty()
	plan.Hypotheses.ClearDirty()
	return nil
}

// Advance is Plan followed by Commit.
func (ctl *Controller) Advance(c *types.Case, ev *ledger.EvidenceLedger,
	hyp *ledger.HypothesisLedger, in *TurnInput) (*TurnPlan, error) {

	plan, err := ctl.Plan(c, ev, hyp, in)
	if err != nil {
		return nil, err
	}
	if err := ctl.Commit(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Regress explicitly moves a case to an earlier phase and persists it. The
// reason is mandatory; phase regressions are always on the record.
func (ctl *Controller) Regress(c *types.Case, to types.Phase, reason string) error {
	clone := c.Clone()
	if err := ctl.regress(clone, to, reason); err != nil {
		return err
	}
	if err := ctl.store.SaveCase(clone, c.Version); err != nil {
		return err
	}
	*c = *clone
	return nil
}

func (ctl *Controller) regress(c *types.Case, to types.Phase, reason string) error {
	if reason == "" {
		return types.NewValidation("regression.reason", "phase regression requires a reason")
	}
	if !to.Valid() || to >= c.Phase {
		return types.NewValidation("regression.phase", "regression target must be an earlier phase")
	}
	from := c.Phase
	c.Phase = to
	c.PhaseLog = append(c.PhaseLog, types.PhaseTransition{
		From: from, To: to, Reason: reason, Turn: c.Turn,
	})
	c.LastPhaseChangeTurn = c.Turn
	c.Stall = nil
	logging.InvestigationWarn("Case %s regressed %s -> %s: %s", c.ID, from, to, reason)
	return nil
}

// SetStatus applies a lifecycle transition, enforcing the status graph, and
// persists it.
func (ctl *Controller) SetStatus(c *types.Case, next types.CaseStatus) error {
	if !c.Status.CanTransitionTo(next) {
		return types.NewValidation("case.status",
			"illegal transition "+string(c.Status)+" -> "+string(next))
	}
	clone := c.Clone()
	clone.Status = next
	if next == types.StatusInProgress {
		clone.Stall = nil
	}
	if err := ctl.store.SaveCase(clone, c.Version); err != nil {
		return err
	}
	*c = *clone
	logging.Investigation("Case %s status -> %s", c.ID, next)
	return nil
}
