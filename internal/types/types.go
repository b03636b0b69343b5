// Package types holds the shared domain model for gumshoe: cases, sessions,
// evidence, hypotheses, and the error taxonomy. It exists as a separate
// package to break import cycles between the store, the ledgers, and the
// investigation controller.
package types

import (
	"time"
)

// =============================================================================
// CASE
// =============================================================================

// Participant is one identity attached to a case.
type Participant struct {
	Identity   string `json:"identity"`
	Role       string `json:"role"`
	Permission string `json:"permission"`
}

// Message is one entry in the append-only case transcript.
type Message struct {
	Turn      int       `json:"turn"`
	Author    string    `json:"author"` // user | assistant | system
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// PhaseTransition records one phase change, including explicit regressions.
type PhaseTransition struct {
	From   Phase  `json:"from"`
	To     Phase  `json:"to"`
	Reason string `json:"reason"`
	Turn   int    `json:"turn"`
}

// TimelineEvent is one temporally-anchored observation collected during the
// timeline phase. Events are kept in the order they were anchored.
type TimelineEvent struct {
	Marker      string `json:"marker"` // raw temporal marker, e.g. "14:05 UTC", "after Tuesday's deploy"
	Description string `json:"description"`
	Trigger     bool   `json:"trigger"` // identified as the trigger event
	Turn        int    `json:"turn"`
}

// StallState is the signaled no-progress condition on a case. It is not an
// error: the case stays workable and the stall clears on the next advance.
type StallState struct {
	Reason         string `json:"reason"`
	DetectedTurn   int    `json:"detected_turn"`
	Recommendation string `json:"recommendation"`
}

// Case is one tracked troubleshooting investigation. It is owned exclusively
// by the investigation controller; everything else reads snapshots.
type Case struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Participants []Participant  `json:"participants,omitempty"`
	Status       CaseStatus     `json:"status"`
	Phase        Phase          `json:"phase"`
	Mode         EngagementMode `json:"mode"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`

	// Turn bookkeeping. Turn is the current inbound turn number;
	// LastProcessedTurn is the newest turn whose evidence has been consumed.
	Turn                int `json:"turn"`
	LastProcessedTurn   int `json:"last_processed_turn"`
	LastPhaseChangeTurn int `json:"last_phase_change_turn"`

	Messages    []Message `json:"messages,omitempty"`
	EvidenceIDs []string  `json:"evidence_ids,omitempty"`

	// Per-phase working state.
	ProblemStatement    string            `json:"problem_statement,omitempty"`
	ScopeConfidence     float64           `json:"scope_confidence"`
	ScopeQuantified     bool              `json:"scope_quantified"`
	TimelineEvents      []TimelineEvent   `json:"timeline_events,omitempty"`
	TriggerIdentified   bool              `json:"trigger_identified"`
	ProposedRemediation string            `json:"proposed_remediation,omitempty"`
	PhaseLog            []PhaseTransition `json:"phase_log,omitempty"`
	Stall               *StallState       `json:"stall,omitempty"`

	// Version is the compare-and-swap token enforced by the store. Every
	// successful save increments it.
	Version int64 `json:"version"`
}

// Clone returns a deep copy. The controller mutates only clones so a failed
// persist leaves the caller's case untouched.
func (c *Case) Clone() *Case {
	cp := *c
	cp.Participants = append([]Participant(nil), c.Participants...)
	cp.Messages = append([]Message(nil), c.Messages...)
	cp.EvidenceIDs = append([]string(nil), c.EvidenceIDs...)
	cp.TimelineEvents = append([]TimelineEvent(nil), c.TimelineEvents...)
	cp.PhaseLog = append([]PhaseTransition(nil), c.PhaseLog...)
	if c.Stall != nil {
		st := *c.Stall
		cp.Stall = &st
	}
	return &cp
}

// AppendMessage appends one transcript entry at the current turn.
func (c *Case) AppendMessage(author, content string) {
	c.Messages = append(c.Messages, Message{
		Turn:      c.Turn,
		Author:    author,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// =============================================================================
// SESSION
// =============================================================================

// Session is one client-connection lifetime. A (user, client) pair resolves
// to at most one live session; distinct clients for the same user get
// independent sessions.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ClientID   string    `json:"client_id"`
	CaseID     string    `json:"case_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// =============================================================================
// EVIDENCE
// =============================================================================

// AcquisitionGuidance tells the user how to obtain requested evidence. Each
// list is capped at creation time so collaborator output can never flood a
// request.
type AcquisitionGuidance struct {
	Commands      []string `json:"commands,omitempty"`
	FileLocations []string `json:"file_locations,omitempty"`
	UILocations   []string `json:"ui_locations,omitempty"`
	Alternatives  []string `json:"alternatives,omitempty"`
	Prerequisites []string `json:"prerequisites,omitempty"`
}

// EvidenceRequest is a structured ask for data opened by a phase objective.
type EvidenceRequest struct {
	ID           string              `json:"id"`
	CaseID       string              `json:"case_id"`
	Label        string              `json:"label"`
	Category     EvidenceCategory    `json:"category"`
	Guidance     AcquisitionGuidance `json:"guidance"`
	Status       RequestStatus       `json:"status"`
	Critical     bool                `json:"critical"`
	CreatedTurn  int                 `json:"created_turn"`
	UpdatedTurn  int                 `json:"updated_turn"`
	Completeness float64             `json:"completeness"` // in [0,1]
	// HypothesisID links a validation request to the hypothesis it tests.
	// Refuting that hypothesis obsoletes the request.
	HypothesisID string `json:"hypothesis_id,omitempty"`
}

// Satisfied reports whether the request needs no more evidence at the given
// completeness threshold.
func (r *EvidenceRequest) Satisfied(threshold float64) bool {
	return r.Status == RequestComplete || r.Completeness >= threshold
}

// Attachment describes an uploaded document supplied as evidence.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	StorageRef  string `json:"storage_ref"`
}

// EvidenceClassification is the validated output of the external classifier
// for one submission. Construct failures with DefaultClassification.
type EvidenceClassification struct {
	Category    EvidenceCategory    `json:"category"`
	Verdict     CompletenessVerdict `json:"verdict"`
	Form        EvidenceForm        `json:"form"`
	Relation    EvidenceRelation    `json:"relation"`
	Intent      SubmitterIntent     `json:"intent"`
	KeyFindings []string            `json:"key_findings,omitempty"`
	// HasTemporalMarker is set when the content anchors an event in time.
	HasTemporalMarker bool `json:"has_temporal_marker"`
	// TemporalMarker is the raw marker text when HasTemporalMarker is set.
	TemporalMarker string `json:"temporal_marker,omitempty"`
}

// DefaultClassification is the defensive degrade used when the classifier
// fails: neutral relation, lowest completeness, nothing that can move state.
func DefaultClassification() EvidenceClassification {
	return EvidenceClassification{
		Category: CategorySymptoms,
		Verdict:  VerdictPartial,
		Form:     FormFreeText,
		Relation: RelationNeutral,
		Intent:   IntentVolunteering,
	}
}

// EvidenceProvided is a structured, append-only record of supplied data.
type EvidenceProvided struct {
	ID         string       `json:"id"`
	CaseID     string       `json:"case_id"`
	Turn       int          `json:"turn"`
	Timestamp  time.Time    `json:"timestamp"`
	Form       EvidenceForm `json:"form"`
	Attachment *Attachment  `json:"attachment,omitempty"`
	RawContent string       `json:"raw_content"`
	// AddressedRequestIDs may reference requests that no longer exist; such
	// ids are stored verbatim and skipped during completeness computation.
	AddressedRequestIDs []string            `json:"addressed_request_ids,omitempty"`
	Verdict             CompletenessVerdict `json:"verdict"`
	Relation            EvidenceRelation    `json:"relation"`
	Intent              SubmitterIntent     `json:"intent"`
	KeyFindings         []string            `json:"key_findings,omitempty"`
	Category            EvidenceCategory    `json:"category"`
	HasTemporalMarker   bool                `json:"has_temporal_marker"`
	TemporalMarker      string              `json:"temporal_marker,omitempty"`
}

// =============================================================================
// HYPOTHESIS
// =============================================================================

// Hypothesis is one candidate root-cause explanation with numeric confidence.
type Hypothesis struct {
	ID                 string           `json:"id"`
	CaseID             string           `json:"case_id"`
	Statement          string           `json:"statement"`
	Category           EvidenceCategory `json:"category"`
	Likelihood         float64          `json:"likelihood"` // in [0,1]
	EvidenceIDs        []string         `json:"evidence_ids,omitempty"`
	ValidationStrategy string           `json:"validation_strategy"`
	Status             HypothesisStatus `json:"status"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// =============================================================================
// CONTROLLER OUTPUT
// =============================================================================

// InstructionSet is what the controller emits each turn for the external
// generation collaborator. Phase and mode are always present; lists default
// empty.
type InstructionSet struct {
	Phase          Phase             `json:"phase"`
	Mode           EngagementMode    `json:"mode"`
	Objective      string            `json:"objective"`
	Tone           string            `json:"tone"`
	OpenRequests   []EvidenceRequest `json:"open_requests"`
	FocusHypotheses []Hypothesis     `json:"focus_hypotheses"`
	Escalation     string            `json:"escalation,omitempty"`
	NextActions    []string          `json:"next_actions"`
}

// SearchHit is one document-similarity result from the retrieval collaborator.
type SearchHit struct {
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
	SourceID string  `json:"source_id"`
}

// TurnResult is the exposed submitTurn surface. CaseStatus and Phase are
// always set; the lists default to empty, never nil.
type TurnResult struct {
	Content          string            `json:"content"`
	EvidenceRequests []EvidenceRequest `json:"evidence_requests"`
	Hypotheses       []Hypothesis      `json:"hypotheses"`
	CaseStatus       CaseStatus        `json:"case_status"`
	Phase            Phase             `json:"phase"`
}
