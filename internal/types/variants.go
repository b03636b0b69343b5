package types

// Closed tagged variants for every classification dimension the system
// consumes from the generation collaborator. Each type carries a Parse
// constructor that maps unknown input to an explicit default, so a failed or
// garbled classification degrades instead of propagating free-form strings.

// =============================================================================
// CASE LIFECYCLE
// =============================================================================

// CaseStatus is the lifecycle status of a Case.
type CaseStatus string

const (
	StatusIntake     CaseStatus = "intake"
	StatusInProgress CaseStatus = "in_progress"
	StatusResolved   CaseStatus = "resolved"
	StatusMitigated  CaseStatus = "mitigated"
	StatusStalled    CaseStatus = "stalled"
	StatusAbandoned  CaseStatus = "abandoned"
	StatusClosed     CaseStatus = "closed"
)

// statusTransitions is the legal status graph. Any edge not listed here is
// rejected by CanTransitionTo.
var statusTransitions = map[CaseStatus]map[CaseStatus]struct{}{
	StatusIntake: {
		StatusInProgress: {},
		StatusAbandoned:  {},
	},
	StatusInProgress: {
		StatusResolved:  {},
		StatusMitigated: {},
		StatusStalled:   {},
		StatusAbandoned: {},
	},
	StatusResolved: {
		StatusClosed: {},
	},
	StatusMitigated: {
		StatusClosed: {},
	},
	StatusStalled: {
		StatusInProgress: {},
		StatusAbandoned:  {},
	},
	StatusAbandoned: {
		StatusClosed: {},
	},
	StatusClosed: {},
}

// Valid reports whether the status is a known lifecycle state.
func (s CaseStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransitionTo reports whether s -> next is a legal edge in the status graph.
// Self-transitions are allowed (holding a status is not a transition).
func (s CaseStatus) CanTransitionTo(next CaseStatus) bool {
	if s == next {
		return true
	}
	edges, ok := statusTransitions[s]
	if !ok {
		return false
	}
	_, ok = edges[next]
	return ok
}

// ParseCaseStatus maps a raw string to a CaseStatus, defaulting to intake.
func ParseCaseStatus(raw string) CaseStatus {
	s := CaseStatus(raw)
	if s.Valid() {
		return s
	}
	return StatusIntake
}

// =============================================================================
// INVESTIGATION PHASES
// =============================================================================

// Phase is one of the seven ordinal investigation stages.
type Phase int

const (
	PhaseIntake Phase = iota
	PhaseBlastRadius
	PhaseTimeline
	PhaseHypothesis
	PhaseValidation
	PhaseSolution
	PhaseDocument
)

// PhaseCount is the number of investigation phases.
const PhaseCount = 7

func (p Phase) String() string {
	switch p {
	case PhaseIntake:
		return "intake"
	case PhaseBlastRadius:
		return "blast_radius"
	case PhaseTimeline:
		return "timeline"
	case PhaseHypothesis:
		return "hypothesis"
	case PhaseValidation:
		return "validation"
	case PhaseSolution:
		return "solution"
	case PhaseDocument:
		return "document"
	default:
		return "unknown"
	}
}

// Valid reports whether p is within the ordinal phase range.
func (p Phase) Valid() bool {
	return p >= PhaseIntake && p <= PhaseDocument
}

// Terminal reports whether p is the final phase.
func (p Phase) Terminal() bool {
	return p == PhaseDocument
}

// =============================================================================
// ENGAGEMENT MODES
// =============================================================================

// EngagementMode alters instruction tone only, never state-machine logic.
type EngagementMode string

const (
	// ModeConsultant answers first and never forces progression.
	ModeConsultant EngagementMode = "consultant"
	// ModeLeadInvestigator actively drives the investigation to completion.
	ModeLeadInvestigator EngagementMode = "lead_investigator"
)

// ParseEngagementMode maps a raw string to a mode, defaulting to consultant.
func ParseEngagementMode(raw string) EngagementMode {
	switch EngagementMode(raw) {
	case ModeLeadInvestigator:
		return ModeLeadInvestigator
	default:
		return ModeConsultant
	}
}

// =============================================================================
// EVIDENCE DIMENSIONS
// =============================================================================

// EvidenceCategory classifies what kind of data an evidence request asks for.
type EvidenceCategory string

const (
	CategorySymptoms      EvidenceCategory = "symptoms"
	CategoryTimeline      EvidenceCategory = "timeline"
	CategoryChanges       EvidenceCategory = "changes"
	CategoryConfiguration EvidenceCategory = "configuration"
	CategoryScope         EvidenceCategory = "scope"
	CategoryMetrics       EvidenceCategory = "metrics"
	CategoryEnvironment   EvidenceCategory = "environment"
)

var evidenceCategories = map[EvidenceCategory]struct{}{
	CategorySymptoms:      {},
	CategoryTimeline:      {},
	CategoryChanges:       {},
	CategoryConfiguration: {},
	CategoryScope:         {},
	CategoryMetrics:       {},
	CategoryEnvironment:   {},
}

// Valid reports whether c is a known evidence category.
func (c EvidenceCategory) Valid() bool {
	_, ok := evidenceCategories[c]
	return ok
}

// ParseEvidenceCategory maps a raw string to a category, defaulting to symptoms.
func ParseEvidenceCategory(raw string) EvidenceCategory {
	c := EvidenceCategory(raw)
	if c.Valid() {
		return c
	}
	return CategorySymptoms
}

// RequestStatus is the lifecycle status of an EvidenceRequest.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestPartial  RequestStatus = "partial"
	RequestComplete RequestStatus = "complete"
	RequestBlocked  RequestStatus = "blocked"
	RequestObsolete RequestStatus = "obsolete"
)

// Open reports whether the request still wants evidence.
func (s RequestStatus) Open() bool {
	return s == RequestPending || s == RequestPartial
}

// ParseRequestStatus maps a raw string to a status, defaulting to pending.
func ParseRequestStatus(raw string) RequestStatus {
	switch RequestStatus(raw) {
	case RequestPartial:
		return RequestPartial
	case RequestComplete:
		return RequestComplete
	case RequestBlocked:
		return RequestBlocked
	case RequestObsolete:
		return RequestObsolete
	default:
		return RequestPending
	}
}

// CompletenessVerdict is the collaborator's judgment of how fully a piece of
// evidence answers the requests it addresses.
type CompletenessVerdict string

const (
	VerdictPartial      CompletenessVerdict = "partial"
	VerdictComplete     CompletenessVerdict = "complete"
	VerdictOverComplete CompletenessVerdict = "over_complete"
)

// ParseCompletenessVerdict defaults to partial, the lowest level, so a failed
// classification never inflates request completeness.
func ParseCompletenessVerdict(raw string) CompletenessVerdict {
	switch CompletenessVerdict(raw) {
	case VerdictComplete:
		return VerdictComplete
	case VerdictOverComplete:
		return VerdictOverComplete
	default:
		return VerdictPartial
	}
}

// EvidenceForm distinguishes free text from uploaded documents.
type EvidenceForm string

const (
	FormFreeText EvidenceForm = "free_text"
	FormDocument EvidenceForm = "document"
)

// ParseEvidenceForm maps a raw string to a form, defaulting to free text.
func ParseEvidenceForm(raw string) EvidenceForm {
	if EvidenceForm(raw) == FormDocument {
		return FormDocument
	}
	return FormFreeText
}

// EvidenceRelation is the evidentiary relation of a piece of evidence to the
// hypotheses it addresses.
type EvidenceRelation string

const (
	RelationSupportive EvidenceRelation = "supportive"
	RelationRefuting   EvidenceRelation = "refuting"
	RelationNeutral    EvidenceRelation = "neutral"
	// RelationAbsence records that requested data does not exist. It is kept
	// as evidence but never scales hypothesis likelihood.
	RelationAbsence EvidenceRelation = "absence"
)

// ParseEvidenceRelation defaults to neutral so a failed classification never
// moves hypothesis likelihood.
func ParseEvidenceRelation(raw string) EvidenceRelation {
	switch EvidenceRelation(raw) {
	case RelationSupportive:
		return RelationSupportive
	case RelationRefuting:
		return RelationRefuting
	case RelationAbsence:
		return RelationAbsence
	default:
		return RelationNeutral
	}
}

// SubmitterIntent is the inferred intent behind a user submission.
type SubmitterIntent string

const (
	IntentAnswering    SubmitterIntent = "answering"
	IntentVolunteering SubmitterIntent = "volunteering"
	IntentAsking       SubmitterIntent = "asking"
	IntentDeclining    SubmitterIntent = "declining"
)

// ParseSubmitterIntent maps a raw string to an intent, defaulting to volunteering.
func ParseSubmitterIntent(raw string) SubmitterIntent {
	switch SubmitterIntent(raw) {
	case IntentAnswering:
		return IntentAnswering
	case IntentAsking:
		return IntentAsking
	case IntentDeclining:
		return IntentDeclining
	default:
		return IntentVolunteering
	}
}

// =============================================================================
// HYPOTHESIS STATUS
// =============================================================================

// HypothesisStatus is the validation lifecycle of a hypothesis.
type HypothesisStatus string

const (
	HypothesisPending   HypothesisStatus = "pending"
	HypothesisTesting   HypothesisStatus = "testing"
	HypothesisValidated HypothesisStatus = "validated"
	HypothesisRefuted   HypothesisStatus = "refuted"
)

// Open reports whether the hypothesis still needs a validation outcome.
func (s HypothesisStatus) Open() bool {
	return s == HypothesisPending || s == HypothesisTesting
}

// ParseHypothesisStatus maps a raw string to a status, defaulting to pending.
func ParseHypothesisStatus(raw string) HypothesisStatus {
	switch HypothesisStatus(raw) {
	case HypothesisTesting:
		return HypothesisTesting
	case HypothesisValidated:
		return HypothesisValidated
	case HypothesisRefuted:
		return HypothesisRefuted
	default:
		return HypothesisPending
	}
}

// ClampUnit clamps v into [0,1]. Numeric fields arriving from the collaborator
// are range-clamped defensively before storage.
func ClampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
