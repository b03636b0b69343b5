package ledger

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"gumshoe/internal/config"
	"gumshoe/internal/logging"
	"gumshoe/internal/types"
)

// Likelihood scaling per evidentiary relation. Updates are multiplicative so
// repeated supportive evidence converges on 1 without ever jumping there.
const (
	supportFactor = 1.1
	refuteFactor  = 0.9
)

// HypothesisLedger is the ranked candidate-explanation set for one case.
type HypothesisLedger struct {
	caseID string
	cfg    config.InvestigationConfig

	hypotheses map[string]*types.Hypothesis
	order      []string // ids in creation order

	dirty map[string]struct{}
}

// LoadHypothesisLedger builds a ledger snapshot for the case from the store.
func LoadHypothesisLedger(loader Loader, caseID string, cfg config.InvestigationConfig) (*HypothesisLedger, error) {
	hypotheses, err := loader.Hypotheses(caseID)
	if err != nil {
		return nil, err
	}
	l := NewHypothesisLedger(caseID, cfg)
	// Restore creation order; the store returns likelihood order.
	sort.Slice(hypotheses, func(i, j int) bool {
		return hypotheses[i].CreatedAt.Before(hypotheses[j].CreatedAt)
	})
	for i := range hypotheses {
		h := hypotheses[i]
		l.hypotheses[h.ID] = &h
		l.order = append(l.order, h.ID)
	}
	return l, nil
}

// NewHypothesisLedger builds an empty ledger for a fresh case.
func NewHypothesisLedger(caseID string, cfg config.InvestigationConfig) *HypothesisLedger {
	return &HypothesisLedger{
		caseID:     caseID,
		cfg:        cfg,
		hypotheses: make(map[string]*types.Hypothesis),
		dirty:      make(map[string]struct{}),
	}
}

// Propose adds a new hypothesis at the given initial likelihood (clamped).
func (l *HypothesisLedger) Propose(statement string, category types.EvidenceCategory,
	initial float64, strategy string) string {

	now := time.Now().UTC()
	h := &types.Hypothesis{
		ID:                 uuid.NewString(),
		CaseID:             l.caseID,
		Statement:          statement,
		Category:           category,
		Likelihood:         types.ClampUnit(initial),
		ValidationStrategy: strategy,
		Status:             types.HypothesisPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	l.hypotheses[h.ID] = h
	l.order = append(l.order, h.ID)
	l.dirty[h.ID] = struct{}{}
	logging.Hypothesis("Proposed hypothesis %s on case %s: %q likelihood=%.2f",
		h.ID, l.caseID, statement, h.Likelihood)
	return h.ID
}

// ApplyEvidence scales the hypothesis likelihood for one piece of classified
// evidence and links the evidence id. Neutral and absence relations link the
// evidence without moving likelihood. Threshold crossings settle the status:
// validated above the high threshold, refuted below the low one. Returns the
// resulting status.
func (l *HypothesisLedger) ApplyEvidence(hypothesisID, evidenceID string,
	relation types.EvidenceRelation) (types.HypothesisStatus, bool) {

	h, ok := l.hypotheses[hypothesisID]
	if !ok {
		return types.HypothesisPending, false
	}

	h.EvidenceIDs = append(h.EvidenceIDs, evidenceID)
	before := h.Likelihood

	switch relation {
	case types.RelationSupportive:
		h.Likelihood = types.ClampUnit(h.Likelihood * supportFactor)
	case types.RelationRefuting:
		h.Likelihood = types.ClampUnit(h.Likelihood * refuteFactor)
	}

	if h.Status.Open() {
		high := l.cfg.LikelihoodHigh
		if high <= 0 {
			high = 0.9
		}
		low := l.cfg.LikelihoodLow
		if low <= 0 {
			low = 0.2
		}
		switch {
		case h.Likelihood >= high:
			h.Status = types.HypothesisValidated
			logging.Hypothesis("Hypothesis %s validated at likelihood %.3f", h.ID, h.Likelihood)
		case h.Likelihood <= low:
			h.Status = types.HypothesisRefuted
			logging.Hypothesis("Hypothesis %s refuted at likelihood %.3f", h.ID, h.Likelihood)
		}
	}

	h.UpdatedAt = time.Now().UTC()
	l.dirty[h.ID] = struct{}{}
	logging.HypothesisDebug("Hypothesis %s likelihood %.3f -> %.3f (%s)",
		h.ID, before, h.Likelihood, relation)
	return h.Status, true
}

// SetStatus forces a hypothesis status directly (solution-phase regression
// reopens refuted candidates this way).
func (l *HypothesisLedger) SetStatus(hypothesisID string, status types.HypothesisStatus) bool {
	h, ok := l.hypotheses[hypothesisID]
	if !ok {
		return false
	}
	h.Status = status
	h.UpdatedAt = time.Now().UTC()
	l.dirty[h.ID] = struct{}{}
	return true
}

// MarkTesting moves a pending hypothesis into testing.
func (l *HypothesisLedger) MarkTesting(hypothesisID string) bool {
	h, ok := l.hypotheses[hypothesisID]
	if !ok || h.Status != types.HypothesisPending {
		return false
	}
	h.Status = types.HypothesisTesting
	h.UpdatedAt = time.Now().UTC()
	l.dirty[h.ID] = struct{}{}
	return true
}

// Ranked returns all hypotheses ordered by likelihood, highest first.
func (l *HypothesisLedger) Ranked() []types.Hypothesis {
	out := make([]types.Hypothesis, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.hypotheses[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Likelihood > out[j].Likelihood
	})
	return out
}

// Open returns hypotheses still awaiting a validation outcome, ranked.
func (l *HypothesisLedger) Open() []types.Hypothesis {
	var out []types.Hypothesis
	for _, h := range l.Ranked() {
		if h.Status.Open() {
			out = append(out, h)
		}
	}
	return out
}

// Get returns one hypothesis by id.
func (l *HypothesisLedger) Get(id string) (types.Hypothesis, bool) {
	h, ok := l.hypotheses[id]
	if !ok {
		return types.Hypothesis{}, false
	}
	return *h, true
}

// Count returns the number of hypotheses on the ledger.
func (l *HypothesisLedger) Count() int {
	return len(l.hypotheses)
}

// AllRefuted reports whether the ledger is non-empty and every hypothesis is
// refuted.
func (l *HypothesisLedger) AllRefuted() bool {
	if len(l.hypotheses) == 0 {
		return false
	}
	for _, h := range l.hypotheses {
		if h.Status != types.HypothesisRefuted {
			return false
		}
	}
	return true
}

// AllSettled reports whether the ledger is non-empty and no hypothesis is
// still open.
func (l *HypothesisLedger) AllSettled() bool {
	if len(l.hypotheses) == 0 {
		return false
	}
	for _, h := range l.hypotheses {
		if h.Status.Open() {
			return false
		}
	}
	return true
}

// Leading returns the open or validated hypothesis with the highest
// likelihood.
func (l *HypothesisLedger) Leading() (types.Hypothesis, bool) {
	for _, h := range l.Ranked() {
		if h.Status != types.HypothesisRefuted {
			return h, true
		}
	}
	return types.Hypothesis{}, false
}

// Dirty returns the hypotheses changed since load, ready for the turn
// transaction.
func (l *HypothesisLedger) Dirty() []types.Hypothesis {
	var out []types.Hypothesis
	for _, id := range l.order {
		if _, ok := l.dirty[id]; ok {
			out = append(out, *l.hypotheses[id])
		}
	}
	return out
}

// ClearDirty resets dirty tracking after a successful flush.
func (l *HypothesisLedger) ClearDirty() {
	l.dirty = make(map[string]struct{})
}
