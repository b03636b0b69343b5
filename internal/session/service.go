// Package session is the exposed turn surface: it resolves the caller's
// session, routes the turn through the classifier, the investigation
// controller, and the generator, and commits the whole turn atomically. A
// collaborator timeout aborts the turn with nothing persisted.
package session

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"gumshoe/internal/collaborator"
	"gumshoe/internal/config"
	"gumshoe/internal/investigation"
	"gumshoe/internal/logging"
	"gumshoe/internal/retrieval"
	"gumshoe/internal/store"
	"gumshoe/internal/types"
)

// Service handles user turns end to end.
type Service struct {
	store      *store.LocalStore
	controller *investigation.Controller
	clients    *collaborator.Clients
	searcher   *retrieval.CaseSearcher // optional

	sessionTTL time.Duration
	caseTTL    time.Duration
	mode       types.EngagementMode

	locks *caseLocks
	pool  *turnPool
}

// NewService wires the turn pipeline. searcher may be nil.
func NewService(s *store.LocalStore, ctl *investigation.Controller,
	clients *collaborator.Clients, searcher *retrieval.CaseSearcher,
	cfg *config.Config) *Service {

	return &Service{
		store:      s,
		controller: ctl,
		clients:    clients,
		searcher:   searcher,
		sessionTTL: config.ParseDurationOr(cfg.Store.SessionTTL, 24*time.Hour),
		caseTTL:    config.ParseDurationOr(cfg.Store.CaseTTL, 168*time.Hour),
		mode:       types.ModeConsultant,
		locks:      newCaseLocks(),
		pool:       newTurnPool(cfg.LLM.MaxConcurrent * 4),
	}
}

// SetDefaultMode sets the engagement mode for newly opened cases.
func (svc *Service) SetDefaultMode(mode types.EngagementMode) {
	svc.mode = mode
}

// TurnRequest is one inbound user turn.
type TurnRequest struct {
	// SessionID resumes a known live session directly. When empty the session
	// is resolved from the (UserID, ClientID) pair.
	SessionID string
	UserID    string
	ClientID  string
	Content   string

	Attachment *types.Attachment
	// Addressed lists evidence request ids the user says this answers.
	Addressed []string
	// Blocked lists request ids the user cannot fulfill.
	Blocked []string
	// Proposals carries structured hypothesis candidates when the upstream
	// surface extracted them.
	Proposals []investigation.HypothesisProposal
}

// SubmitTurn processes one turn: resolve the session, classify, plan,
// generate, commit. Ordering matters: generation runs before commit, so a
// CollaboratorTimeout leaves no trace of the turn.
func (svc *Service) SubmitTurn(ctx context.Context, req TurnRequest) (*types.TurnResult, error) {
	timer := logging.StartTimer(logging.CategorySession, "SubmitTurn")
	defer timer.Stop()

	if req.SessionID == "" && (req.UserID == "" || req.ClientID == "") {
		return nil, types.NewValidation("turn", "a session id or a user id and client id are required")
	}
	if req.Content == "" && req.Attachment == nil {
		return nil, types.NewValidation("turn", "content or attachment is required")
	}

	if err := svc.pool.acquire(ctx); err != nil {
		return nil, err
	}
	defer svc.pool.release()

	sess, err := svc.resolveSession(req)
	if err != nil {
		return nil, err
	}

	caseID := sess.CaseID
	if caseID == "" {
		c, err := svc.controller.OpenCase(sess.UserID, svc.mode)
		if err != nil {
			return nil, err
		}
		if err := svc.store.BindCase(sess.ID, c.ID); err != nil {
			return nil, err
		}
		caseID = c.ID
	}

	unlock := svc.locks.lock(caseID)
	defer unlock()

	c, err := svc.store.GetCase(caseID)
	if err != nil {
		return nil, err
	}
	ev, hyp, err := svc.controller.LoadLedgers(caseID)
	if err != nil {
		return nil, err
	}

	// Classification and prior-evidence search are independent; fan out.
	var cls types.EvidenceClassification
	var similar []types.SearchHit

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var cerr error
		cls, cerr = svc.clients.Classifier.Classify(gctx, req.Content, ev.OpenRequests())
		return cerr
	})
	if svc.searcher != nil && req.Content != "" {
		g.Go(func() error {
			hits, serr := svc.searcher.Search(gctx, caseID, req.Content)
			if serr != nil {
				logging.SessionDebug("Prior-evidence search failed: %v", serr)
				return nil // retrieval is an assist, never a gate
			}
			similar = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	in := &investigation.TurnInput{
		Content:        req.Content,
		Attachment:     req.Attachment,
		Addressed:      req.Addressed,
		Blocked:        req.Blocked,
		Classification: cls,
		Proposals:      req.Proposals,
	}

	plan, err := svc.controller.Plan(c, ev, hyp, in)
	if err != nil {
		return nil, err
	}

	// Generation runs against the planned instructions, before anything is
	// persisted. A timeout here aborts the turn cleanly.
	content, err := svc.clients.Generator.Generate(ctx, collaborator.PromptContext{
		Instructions: plan.Instructions,
		UserMessage:  req.Content,
		Transcript:   plan.Case.Messages,
		SimilarPrior: similar,
	})
	if err != nil {
		logging.SessionError("Generation failed on case %s turn %d: %v", caseID, plan.Case.Turn, err)
		return nil, err
	}
	plan.Case.AppendMessage("assistant", content)

	if err := svc.controller.Commit(plan); err != nil {
		return nil, err
	}
	if err := svc.store.TouchCase(caseID, svc.caseTTL); err != nil {
		logging.SessionDebug("TouchCase failed for %s: %v", caseID, err)
	}

	// Index the new evidence for future similarity search, best effort.
	if svc.searcher != nil && plan.EvidenceID != "" {
		for _, e := range plan.Evidence.Provided() {
			if e.ID == plan.EvidenceID {
				rec := e
				if err := svc.searcher.IndexEvidence(ctx, &rec); err != nil {
					logging.SessionDebug("Evidence indexing failed: %v", err)
				}
				break
			}
		}
	}

	return buildTurnResult(content, plan), nil
}

// resolveSession resumes the named session or resolves the identity pair. An
// expired session id never resumes.
func (svc *Service) resolveSession(req TurnRequest) (*types.Session, error) {
	if req.SessionID != "" {
		sess, err := svc.store.GetSession(req.SessionID)
		if err != nil {
			return nil, err
		}
		if !sess.ExpiresAt.After(time.Now().UTC()) {
			return nil, types.ErrSessionNotFound
		}
		return sess, nil
	}
	sess, created, err := svc.store.ResolveSession(req.UserID, req.ClientID, svc.sessionTTL)
	if err != nil {
		return nil, err
	}
	if created {
		logging.Session("New session %s for user=%s", sess.ID, req.UserID)
	}
	return sess, nil
}

// ActiveCase returns the case bound to the caller's live session, if any.
func (svc *Service) ActiveCase(userID, clientID string) (*types.Case, error) {
	sess, _, err := svc.store.ResolveSession(userID, clientID, svc.sessionTTL)
	if err != nil {
		return nil, err
	}
	if sess.CaseID == "" {
		return nil, types.ErrCaseNotFound
	}
	return svc.store.GetCase(sess.CaseID)
}

// buildTurnResult assembles the exposed result. Lists default empty, never nil.
func buildTurnResult(content string, plan *investigation.TurnPlan) *types.TurnResult {
	requests := plan.Evidence.OpenRequests()
	if requests == nil {
		requests = []types.EvidenceRequest{}
	}
	hypotheses := plan.Hypotheses.Ranked()
	if hypotheses == nil {
		hypotheses = []types.Hypothesis{}
	}
	return &types.TurnResult{
		Content:          content,
		EvidenceRequests: requests,
		Hypotheses:       hypotheses,
		CaseStatus:       plan.Case.Status,
		Phase:            plan.Case.Phase,
	}
}
