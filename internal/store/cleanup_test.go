package store

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"

	"gumshoe/internal/types"
)

func TestSweepRemovesExpired(t *testing.T) {
	s := newTestStore(t)

	expired := newTestCase("case-expired", "user-1")
	if err := s.CreateCase(expired, -time.Minute); err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}
	live := newTestCase("case-live", "user-1")
	if err := s.CreateCase(live, time.Hour); err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}
	if _, _, err := s.ResolveSession("user-1", "client-a", -time.Minute); err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}

	sw := NewSweeper(s, nil, time.Minute)
	result, err := sw.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.CasesDeleted != 1 {
		t.Errorf("expected 1 case deleted, got %d", result.CasesDeleted)
	}
	if result.SessionsDeleted != 1 {
		t.Errorf("expected 1 session deleted, got %d", result.SessionsDeleted)
	}

	if _, err := s.GetCase("case-expired"); err != types.ErrCaseNotFound {
		t.Errorf("expired case should be gone, got %v", err)
	}
	if _, err := s.GetCase("case-live"); err != nil {
		t.Errorf("live case should survive, got %v", err)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	c := newTestCase("case-1", "user-1")
	if err := s.CreateCase(c, -time.Minute); err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}

	sw := NewSweeper(s, nil, time.Minute)
	if _, err := sw.Sweep(context.Background()); err != nil {
		t.Fatalf("first Sweep failed: %v", err)
	}
	second, err := sw.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second Sweep failed: %v", err)
	}
	if second.CasesDeleted != 0 || second.SessionsDeleted != 0 || second.OrphansDeleted != 0 {
		t.Errorf("second sweep should find nothing: %+v", second)
	}
}

func TestSweepArchivesBeforeDelete(t *testing.T) {
	s := newTestStore(t)
	archive, err := NewArchiveStore(":memory:")
	if err != nil {
		t.Fatalf("NewArchiveStore failed: %v", err)
	}
	defer archive.Close()

	c := newTestCase("case-1", "user-1")
	c.AppendMessage("user", "database is down")
	c.AppendMessage("assistant", "when did it start?")
	if err := s.CreateCase(c, -time.Minute); err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}

	sw := NewSweeper(s, archive, time.Minute)
	result, err := sw.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.CasesArchived != 1 {
		t.Errorf("expected 1 case archived, got %d", result.CasesArchived)
	}

	count, err := archive.ArchivedCount()
	if err != nil {
		t.Fatalf("ArchivedCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 archived row, got %d", count)
	}
}

func TestSweepRemovesOrphans(t *testing.T) {
	s := newTestStore(t)

	// Rows referencing a case that was never created.
	req := types.EvidenceRequest{
		ID: "req-1", CaseID: "ghost", Label: "x",
		Category: types.CategorySymptoms, Status: types.RequestPending,
	}
	if err := s.SaveEvidenceRequest(&req); err != nil {
		t.Fatalf("SaveEvidenceRequest failed: %v", err)
	}
	if err := s.StoreCaseVector("ghost", "src-1", "doc", []float32{1}); err != nil {
		t.Fatalf("StoreCaseVector failed: %v", err)
	}

	sw := NewSweeper(s, nil, time.Minute)
	result, err := sw.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.OrphansDeleted != 2 {
		t.Errorf("expected 2 orphans deleted, got %d", result.OrphansDeleted)
	}
}

func TestSweeperStartStop(t *testing.T) {
	// The sql.DB connection opener lives until Close in t.Cleanup.
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	s := newTestStore(t)
	sw := NewSweeper(s, nil, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sw.Start(ctx)
	time.Sleep(120 * time.Millisecond)
	sw.Stop()

	// Stop twice must not panic.
	sw.Stop()
}
