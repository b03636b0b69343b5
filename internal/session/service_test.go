package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"gumshoe/internal/collaborator"
	"gumshoe/internal/config"
	"gumshoe/internal/investigation"
	"gumshoe/internal/retrieval"
	"gumshoe/internal/store"
	"gumshoe/internal/types"
)

func newTestService(t *testing.T) (*Service, *store.LocalStore) {
	t.Helper()
	s, err := store.NewLocalStore(":memory:")
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cfg := config.DefaultConfig()
	ctl := investigation.NewController(s, cfg.Investigation, nil, time.Hour)
	clients := collaborator.NewFromConfig(cfg.LLM) // heuristic pair
	t.Cleanup(clients.Scheduler.Stop)
	searcher := retrieval.NewCaseSearcher(retrieval.NewHashEngine(64), s, 3)

	return NewService(s, ctl, clients, searcher, cfg), s
}

func TestSubmitTurnCreatesSessionAndCase(t *testing.T) {
	// The sql.DB connection opener lives until Close in t.Cleanup.
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
		// Started by opencensus in a package init; lives for the process lifetime.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
	svc, s := newTestService(t)

	res, err := svc.SubmitTurn(context.Background(), TurnRequest{
		UserID:   "user-1",
		ClientID: "client-a",
		Content:  "checkout is returning 502 errors for some customers",
	})
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	if res.Content == "" {
		t.Error("expected generated content")
	}
	if res.EvidenceRequests == nil || res.Hypotheses == nil {
		t.Error("result lists must not be nil")
	}
	if res.CaseStatus != types.StatusInProgress {
		t.Errorf("expected in_progress, got %s", res.CaseStatus)
	}

	c, err := svc.ActiveCase("user-1", "client-a")
	if err != nil {
		t.Fatalf("ActiveCase failed: %v", err)
	}
	if c.ProblemStatement == "" {
		t.Error("problem statement not persisted")
	}

	// The turn committed evidence to the store.
	provided, err := s.EvidenceProvided(c.ID)
	if err != nil || len(provided) != 1 {
		t.Errorf("expected 1 committed evidence record, got %d (err=%v)", len(provided), err)
	}
}

func TestSubmitTurnResumesSameCase(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.SubmitTurn(ctx, TurnRequest{
		UserID: "user-1", ClientID: "client-a",
		Content: "the database keeps dropping connections",
	}); err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
	first, err := svc.ActiveCase("user-1", "client-a")
	if err != nil {
		t.Fatalf("ActiveCase failed: %v", err)
	}

	if _, err := svc.SubmitTurn(ctx, TurnRequest{
		UserID: "user-1", ClientID: "client-a",
		Content: "it affects all users in the eu region",
	}); err != nil {
		t.Fatalf("second turn failed: %v", err)
	}
	second, err := svc.ActiveCase("user-1", "client-a")
	if err != nil {
		t.Fatalf("ActiveCase failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("same session must keep the same case: %s vs %s", first.ID, second.ID)
	}
	if second.Turn != 2 {
		t.Errorf("expected turn 2, got %d", second.Turn)
	}
}

func TestSubmitTurnRejectsEmpty(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.SubmitTurn(context.Background(), TurnRequest{
		UserID: "user-1", ClientID: "client-a",
	})
	if !types.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	_, err = svc.SubmitTurn(context.Background(), TurnRequest{Content: "hello"})
	if !types.IsValidation(err) {
		t.Errorf("expected validation error for missing identity, got %v", err)
	}
}

func TestSubmitTurnBySessionID(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	if _, err := svc.SubmitTurn(ctx, TurnRequest{
		UserID: "user-1", ClientID: "client-a",
		Content: "cache hit rate collapsed this morning",
	}); err != nil {
		t.Fatalf("pair turn failed: %v", err)
	}
	sess, created, err := s.ResolveSession("user-1", "client-a", time.Hour)
	if err != nil || created {
		t.Fatalf("expected to resume the existing session, created=%v err=%v", created, err)
	}

	if _, err := svc.SubmitTurn(ctx, TurnRequest{
		SessionID: sess.ID,
		Content:   "it only affects the eu cache cluster",
	}); err != nil {
		t.Fatalf("session-id turn failed: %v", err)
	}

	c, err := svc.ActiveCase("user-1", "client-a")
	if err != nil {
		t.Fatalf("ActiveCase failed: %v", err)
	}
	if c.Turn != 2 {
		t.Errorf("session-id turn must land on the same case, turn=%d", c.Turn)
	}
}

func TestSubmitTurnRejectsExpiredSessionID(t *testing.T) {
	svc, s := newTestService(t)

	sess, _, err := s.ResolveSession("user-2", "client-b", -time.Minute)
	if err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}

	_, err = svc.SubmitTurn(context.Background(), TurnRequest{
		SessionID: sess.ID,
		Content:   "hello again",
	})
	if !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("expired session id must not resume, got %v", err)
	}
}

// timeoutGenerator simulates a generation collaborator that always exceeds
// its deadline.
type timeoutGenerator struct{}

func (g *timeoutGenerator) Name() string { return "timeout" }
func (g *timeoutGenerator) Generate(context.Context, collaborator.PromptContext) (string, error) {
	return "", &types.CollaboratorTimeout{Collaborator: "timeout", Err: context.DeadlineExceeded}
}

func TestGenerationTimeoutPersistsNothing(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	// First turn succeeds and pins the case state.
	if _, err := svc.SubmitTurn(ctx, TurnRequest{
		UserID: "user-1", ClientID: "client-a",
		Content: "api latency doubled overnight",
	}); err != nil {
		t.Fatalf("setup turn failed: %v", err)
	}
	c, _ := svc.ActiveCase("user-1", "client-a")
	versionBefore := c.Version
	turnBefore := c.Turn
	providedBefore, _ := s.EvidenceProvided(c.ID)

	svc.clients.Generator = &timeoutGenerator{}

	_, err := svc.SubmitTurn(ctx, TurnRequest{
		UserID: "user-1", ClientID: "client-a",
		Content: "here is more detail about the latency",
	})
	var ct *types.CollaboratorTimeout
	if !errors.As(err, &ct) {
		t.Fatalf("expected CollaboratorTimeout, got %v", err)
	}
	if !types.IsRetryable(err) {
		t.Error("collaborator timeouts must be retryable")
	}

	// Nothing from the failed turn is visible.
	after, err := s.GetCase(c.ID)
	if err != nil {
		t.Fatalf("GetCase failed: %v", err)
	}
	if after.Version != versionBefore || after.Turn != turnBefore {
		t.Errorf("failed turn mutated the case: version %d->%d turn %d->%d",
			versionBefore, after.Version, turnBefore, after.Turn)
	}
	providedAfter, _ := s.EvidenceProvided(c.ID)
	if len(providedAfter) != len(providedBefore) {
		t.Errorf("failed turn persisted evidence: %d -> %d", len(providedBefore), len(providedAfter))
	}
}

func TestDistinctClientsGetDistinctCases(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.SubmitTurn(ctx, TurnRequest{
		UserID: "user-1", ClientID: "laptop",
		Content: "search is broken",
	}); err != nil {
		t.Fatalf("laptop turn failed: %v", err)
	}
	if _, err := svc.SubmitTurn(ctx, TurnRequest{
		UserID: "user-1", ClientID: "phone",
		Content: "uploads are failing",
	}); err != nil {
		t.Fatalf("phone turn failed: %v", err)
	}

	laptop, err := svc.ActiveCase("user-1", "laptop")
	if err != nil {
		t.Fatalf("ActiveCase laptop failed: %v", err)
	}
	phone, err := svc.ActiveCase("user-1", "phone")
	if err != nil {
		t.Fatalf("ActiveCase phone failed: %v", err)
	}
	if laptop.ID == phone.ID {
		t.Error("distinct clients must get independent cases")
	}
}
