// Package ledger holds the two per-case working ledgers: evidence requests
// plus the append-only provided record, and the ranked hypothesis set. Ledgers
// are in-memory snapshots loaded from the store; mutations accumulate in the
// snapshot and flush through the store's single turn transaction.
package ledger

import (
	"time"

	"github.com/google/uuid"

	"gumshoe/internal/config"
	"gumshoe/internal/logging"
	"gumshoe/internal/types"
)

// EvidenceLedger tracks what has been asked for and what has been provided on
// one case.
type EvidenceLedger struct {
	caseID   string
	cfg      config.InvestigationConfig
	playbook *config.Playbook

	requests map[string]*types.EvidenceRequest
	order    []string // request ids in creation order
	provided []types.EvidenceProvided

	dirtyRequests map[string]struct{}
	newProvided   []string // ids of records added this turn
}

// Loader is the store surface the ledgers need. *store.LocalStore satisfies it.
type Loader interface {
	EvidenceRequests(caseID string) ([]types.EvidenceRequest, error)
	EvidenceProvided(caseID string) ([]types.EvidenceProvided, error)
	Hypotheses(caseID string) ([]types.Hypothesis, error)
}

// LoadEvidenceLedger builds a ledger snapshot for the case from the store.
func LoadEvidenceLedger(loader Loader, caseID string, cfg config.InvestigationConfig, pb *config.Playbook) (*EvidenceLedger, error) {
	requests, err := loader.EvidenceRequests(caseID)
	if err != nil {
		return nil, err
	}
	provided, err := loader.EvidenceProvided(caseID)
	if err != nil {
		return nil, err
	}

	if pb == nil {
		pb = config.DefaultPlaybook()
	}
	l := &EvidenceLedger{
		caseID:        caseID,
		cfg:           cfg,
		playbook:      pb,
		requests:      make(map[string]*types.EvidenceRequest, len(requests)),
		provided:      provided,
		dirtyRequests: make(map[string]struct{}),
	}
	for i := range requests {
		r := requests[i]
		l.requests[r.ID] = &r
		l.order = append(l.order, r.ID)
	}
	return l, nil
}

// NewEvidenceLedger builds an empty ledger for a fresh case.
func NewEvidenceLedger(caseID string, cfg config.InvestigationConfig, pb *config.Playbook) *EvidenceLedger {
	if pb == nil {
		pb = config.DefaultPlaybook()
	}
	return &EvidenceLedger{
		caseID:        caseID,
		cfg:           cfg,
		playbook:      pb,
		requests:      make(map[string]*types.EvidenceRequest),
		dirtyRequests: make(map[string]struct{}),
	}
}

// Open creates a new evidence request with guidance filled from the playbook
// and capped. Returns the new request id.
func (l *EvidenceLedger) Open(label string, category types.EvidenceCategory, critical bool, turn int) string {
	r := &types.EvidenceRequest{
		ID:          uuid.NewString(),
		CaseID:      l.caseID,
		Label:       label,
		Category:    category,
		Status:      types.RequestPending,
		Critical:    critical,
		CreatedTurn: turn,
		UpdatedTurn: turn,
		Guidance:    l.guidanceFor(category),
	}
	l.requests[r.ID] = r
	l.order = append(l.order, r.ID)
	l.dirtyRequests[r.ID] = struct{}{}
	logging.Evidence("Opened request %s [%s] critical=%v on case %s", r.ID, category, critical, l.caseID)
	return r.ID
}

// OpenForHypothesis opens a validation request linked to a hypothesis.
func (l *EvidenceLedger) OpenForHypothesis(label string, category types.EvidenceCategory, hypothesisID string, turn int) string {
	id := l.Open(label, category, true, turn)
	l.requests[id].HypothesisID = hypothesisID
	return id
}

func (l *EvidenceLedger) guidanceFor(category types.EvidenceCategory) types.AcquisitionGuidance {
	entry, ok := l.playbook.Lookup(string(category))
	if !ok {
		return types.AcquisitionGuidance{}
	}
	cap := l.cfg.GuidanceListCap
	if cap <= 0 {
		cap = 4
	}
	return types.AcquisitionGuidance{
		Commands:      l.capList(entry.Commands, cap),
		FileLocations: l.capList(entry.FileLocations, cap),
		UILocations:   l.capList(entry.UILocations, cap),
		Alternatives:  l.capList(entry.Alternatives, cap),
		Prerequisites: l.capList(entry.Prerequisites, cap),
	}
}

func (l *EvidenceLedger) capList(in []string, max int) []string {
	if len(in) > max {
		in = in[:max]
	}
	entryCap := l.cfg.GuidanceEntryCap
	if entryCap <= 0 {
		entryCap = 200
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if runes := []rune(s); len(runes) > entryCap {
			s = string(runes[:entryCap])
		}
		out = append(out, s)
	}
	return out
}

// Record appends one provided record built from the classified submission and
// updates the completeness of every addressed request. Unknown request ids in
// addressed are kept on the record verbatim and otherwise skipped. Returns the
// new record's id.
func (l *EvidenceLedger) Record(turn int, rawContent string, attachment *types.Attachment,
	addressed []string, cls types.EvidenceClassification) string {

	findings := cls.KeyFindings
	if max := l.cfg.KeyFindingsCap; max > 0 && len(findings) > max {
		findings = findings[:max]
	}

	e := types.EvidenceProvided{
		ID:                  uuid.NewString(),
		CaseID:              l.caseID,
		Turn:                turn,
		Timestamp:           time.Now().UTC(),
		Form:                cls.Form,
		Attachment:          attachment,
		RawContent:          rawContent,
		AddressedRequestIDs: append([]string(nil), addressed...),
		Verdict:             cls.Verdict,
		Relation:            cls.Relation,
		Intent:              cls.Intent,
		KeyFindings:         findings,
		Category:            cls.Category,
		HasTemporalMarker:   cls.HasTemporalMarker,
		TemporalMarker:      cls.TemporalMarker,
	}
	if attachment != nil {
		e.Form = types.FormDocument
	}
	l.provided = append(l.provided, e)
	l.newProvided = append(l.newProvided, e.ID)

	for _, reqID := range addressed {
		r, ok := l.requests[reqID]
		if !ok {
			logging.EvidenceDebug("Submission %s addressed unknown request %s; kept on record", e.ID, reqID)
			continue
		}
		l.applyVerdict(r, cls.Verdict, turn)
	}

	logging.Evidence("Recorded evidence %s on case %s turn=%d verdict=%s relation=%s addressed=%d",
		e.ID, l.caseID, turn, cls.Verdict, cls.Relation, len(addressed))
	return e.ID
}

// applyVerdict moves a request's completeness for one addressing submission.
// A complete or over-complete verdict satisfies the request outright; a
// partial verdict adds half the remaining headroom's fixed step.
func (l *EvidenceLedger) applyVerdict(r *types.EvidenceRequest, verdict types.CompletenessVerdict, turn int) {
	if r.Status == types.RequestObsolete {
		return
	}
	switch verdict {
	case types.VerdictComplete, types.VerdictOverComplete:
		r.Completeness = 1.0
		r.Status = types.RequestComplete
	default:
		r.Completeness = types.ClampUnit(r.Completeness + 0.5)
		if r.Completeness >= 1.0 {
			r.Status = types.RequestComplete
		} else {
			r.Status = types.RequestPartial
		}
	}
	r.UpdatedTurn = turn
	l.dirtyRequests[r.ID] = struct{}{}
}

// MarkBlocked marks a request blocked (the user cannot obtain the data).
func (l *EvidenceLedger) MarkBlocked(requestID string, turn int) bool {
	r, ok := l.requests[requestID]
	if !ok || r.Status == types.RequestObsolete {
		return false
	}
	r.Status = types.RequestBlocked
	r.UpdatedTurn = turn
	l.dirtyRequests[r.ID] = struct{}{}
	logging.Evidence("Request %s blocked on case %s", requestID, l.caseID)
	return true
}

// MarkObsolete obsoletes every open request linked to the hypothesis.
func (l *EvidenceLedger) MarkObsolete(hypothesisID string, turn int) int {
	n := 0
	for _, id := range l.order {
		r := l.requests[id]
		if r.HypothesisID != hypothesisID || r.Status == types.RequestObsolete {
			continue
		}
		r.Status = types.RequestObsolete
		r.UpdatedTurn = turn
		l.dirtyRequests[r.ID] = struct{}{}
		n++
	}
	if n > 0 {
		logging.Evidence("Obsoleted %d requests for refuted hypothesis %s", n, hypothesisID)
	}
	return n
}

// Completeness reports whether every referenced request is satisfied at the
// given threshold; pass 0 for the configured default. Unknown and obsolete
// ids are skipped, never blocking. An empty effective set is complete.
func (l *EvidenceLedger) Completeness(requestIDs []string, threshold float64) bool {
	if threshold <= 0 {
		threshold = l.cfg.CompletenessThreshold
	}
	if threshold <= 0 {
		threshold = 0.8
	}
	for _, id := range requestIDs {
		r, ok := l.requests[id]
		if !ok || r.Status == types.RequestObsolete {
			continue
		}
		if !r.Satisfied(threshold) {
			return false
		}
	}
	return true
}

// Requests returns all requests in creation order.
func (l *EvidenceLedger) Requests() []types.EvidenceRequest {
	out := make([]types.EvidenceRequest, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.requests[id])
	}
	return out
}

// OpenRequests returns pending and partial requests in creation order.
func (l *EvidenceLedger) OpenRequests() []types.EvidenceRequest {
	var out []types.EvidenceRequest
	for _, id := range l.order {
		if r := l.requests[id]; r.Status.Open() {
			out = append(out, *r)
		}
	}
	return out
}

// BlockedCritical counts critical requests currently blocked.
func (l *EvidenceLedger) BlockedCritical() int {
	n := 0
	for _, r := range l.requests {
		if r.Critical && r.Status == types.RequestBlocked {
			n++
		}
	}
	return n
}

// Request returns one request by id.
func (l *EvidenceLedger) Request(id string) (types.EvidenceRequest, bool) {
	r, ok := l.requests[id]
	if !ok {
		return types.EvidenceRequest{}, false
	}
	return *r, true
}

// Provided returns the full append-only record.
func (l *EvidenceLedger) Provided() []types.EvidenceProvided {
	return append([]types.EvidenceProvided(nil), l.provided...)
}

// Since returns provided records with turn strictly greater than the given turn.
func (l *EvidenceLedger) Since(turn int) []types.EvidenceProvided {
	var out []types.EvidenceProvided
	for _, e := range l.provided {
		if e.Turn > turn {
			out = append(out, e)
		}
	}
	return out
}

// Dirty returns the requests changed and the records added since load, ready
// for the turn transaction.
func (l *EvidenceLedger) Dirty() ([]types.EvidenceRequest, []types.EvidenceProvided) {
	var requests []types.EvidenceRequest
	for _, id := range l.order {
		if _, ok := l.dirtyRequests[id]; ok {
			requests = append(requests, *l.requests[id])
		}
	}
	newIDs := make(map[string]struct{}, len(l.newProvided))
	for _, id := range l.newProvided {
		newIDs[id] = struct{}{}
	}
	var provided []types.EvidenceProvided
	for _, e := range l.provided {
		if _, ok := newIDs[e.ID]; ok {
			provided = append(provided, e)
		}
	}
	return requests, provided
}

// ClearDirty resets dirty tracking after a successful flush.
func (l *EvidenceLedger) ClearDirty() {
	l.dirtyRequests = make(map[string]struct{})
	l.newProvided = nil
}
