package store

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"gumshoe/internal/logging"
	"gumshoe/internal/types"
)

// SweepResult summarizes one cleanup pass.
type SweepResult struct {
	CasesDeleted    int
	SessionsDeleted int
	OrphansDeleted  int
	CasesArchived   int
}

// Sweeper periodically removes expired cases and sessions from the store.
// Expired cases are archived (best effort) before deletion. Sweep is
// idempotent: running it twice back to back deletes nothing the second time.
type Sweeper struct {
	store    *LocalStore
	archive  *ArchiveStore // optional
	interval time.Duration

	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped bool
	mu      sync.Mutex
}

// NewSweeper creates a sweeper over the store. archive may be nil.
func NewSweeper(store *LocalStore, archive *ArchiveStore, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{
		store:    store,
		archive:  archive,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background sweep loop. The first sweep is delayed by a
// random jitter so multiple processes sharing a database don't sweep in
// lockstep.
func (sw *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(sw.doneCh)

		jitter := time.Duration(rand.Int63n(int64(sw.interval / 4)))
		select {
		case <-time.After(jitter):
		case <-sw.stopCh:
			return
		case <-ctx.Done():
			return
		}

		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()

		logging.Cleanup("Sweeper started (interval=%s)", sw.interval)
		for {
			if _, err := sw.Sweep(ctx); err != nil {
				logging.CleanupWarn("Sweep failed: %v", err)
			}
			select {
			case <-ticker.C:
			case <-sw.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to exit.
func (sw *Sweeper) Stop() {
	sw.mu.Lock()
	if sw.stopped {
		sw.mu.Unlock()
		return
	}
	sw.stopped = true
	close(sw.stopCh)
	sw.mu.Unlock()
	<-sw.doneCh
	logging.Cleanup("Sweeper stopped")
}

// Sweep runs one cleanup pass: archive and delete expired cases, delete
// expired sessions, then remove evidence, hypothesis, and vector rows whose
// case no longer exists.
func (sw *Sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	timer := logging.StartTimer(logging.CategoryCleanup, "Sweep")
	defer timer.Stop()

	result := &SweepResult{}
	now := time.Now().UTC()

	expired, err := sw.expiredCaseIDs(now)
	if err != nil {
		return result, err
	}

	for _, id := range expired {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if sw.archive != nil {
			if c, err := sw.store.GetCase(id); err == nil {
				if err := sw.archive.ArchiveCase(c); err != nil {
					logging.CleanupWarn("Failed to archive case %s: %v", id, err)
				} else {
					result.CasesArchived++
				}
			}
		}
		if err := sw.store.DeleteCase(id); err != nil {
			logging.CleanupWarn("Failed to delete expired case %s: %v", id, err)
			continue
		}
		result.CasesDeleted++
	}

	sessionsDeleted, err := sw.deleteExpiredSessions(now)
	if err != nil {
		return result, err
	}
	result.SessionsDeleted = sessionsDeleted

	orphans, err := sw.deleteOrphans()
	if err != nil {
		return result, err
	}
	result.OrphansDeleted = orphans

	if result.CasesDeleted > 0 || result.SessionsDeleted > 0 || result.OrphansDeleted > 0 {
		logging.Cleanup("Sweep removed %d cases (%d archived), %d sessions, %d orphaned rows",
			result.CasesDeleted, result.CasesArchived, result.SessionsDeleted, result.OrphansDeleted)
	} else {
		logging.CleanupDebug("Sweep found nothing to remove")
	}
	return result, nil
}

func (sw *Sweeper) expiredCaseIDs(now time.Time) ([]string, error) {
	sw.store.mu.RLock()
	defer sw.store.mu.RUnlock()

	rows, err := sw.store.db.Query(
		`SELECT id FROM cases WHERE expires_at IS NOT NULL AND expires_at <= ?`, now)
	if err != nil {
		return nil, types.NewTransient("Sweep", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (sw *Sweeper) deleteExpiredSessions(now time.Time) (int, error) {
	sw.store.mu.Lock()
	defer sw.store.mu.Unlock()

	res, err := sw.store.db.Exec(`DELETE FROM sessions WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, types.NewTransient("Sweep", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// deleteOrphans removes dependent rows whose owning case has been deleted.
// Normally DeleteCase keeps these in step; this catches rows left behind by
// crashes between transactions of an older version of the schema.
func (sw *Sweeper) deleteOrphans() (int, error) {
	sw.store.mu.Lock()
	defer sw.store.mu.Unlock()

	total := 0
	for _, stmt := range []string{
		`DELETE FROM evidence_requests WHERE case_id NOT IN (SELECT id FROM cases)`,
		`DELETE FROM evidence_provided WHERE case_id NOT IN (SELECT id FROM cases)`,
		`DELETE FROM hypotheses WHERE case_id NOT IN (SELECT id FROM cases)`,
		`DELETE FROM case_vectors WHERE case_id NOT IN (SELECT id FROM cases)`,
	} {
		res, err := sw.store.db.Exec(stmt)
		if err != nil {
			return total, types.NewTransient("Sweep", err)
		}
		affected, _ := res.RowsAffected()
		total += int(affected)
	}
	return total, nil
}
