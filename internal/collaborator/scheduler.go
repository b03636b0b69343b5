package collaborator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"gumshoe/internal/logging"
	"gumshoe/internal/types"
)

// Scheduler caps concurrent collaborator calls with a slot semaphore. Many
// sessions may be active at once, but only this many model calls run in
// parallel.
type Scheduler struct {
	slots chan struct{}

	totalCalls        int64
	totalWaitTime     int64 // nanoseconds
	currentlyWaiting  int32
	currentlyRunning  int32

	stopCh chan struct{}
}

// NewScheduler creates a scheduler with the given slot count.
func NewScheduler(maxConcurrent int) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Scheduler{
		slots:  make(chan struct{}, maxConcurrent),
		stopCh: make(chan struct{}),
	}
}

// Acquire blocks until a slot is available or the context expires.
func (s *Scheduler) Acquire(ctx context.Context) error {
	waitStart := time.Now()
	atomic.AddInt32(&s.currentlyWaiting, 1)
	defer atomic.AddInt32(&s.currentlyWaiting, -1)

	select {
	case s.slots <- struct{}{}:
		waited := time.Since(waitStart)
		atomic.AddInt64(&s.totalWaitTime, int64(waited))
		atomic.AddInt32(&s.currentlyRunning, 1)
		if waited > 100*time.Millisecond {
			logging.CollaboratorDebug("Scheduler: acquired slot after %v", waited)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopCh:
		return fmt.Errorf("scheduler stopped")
	}
}

// Release returns a slot after a call completes.
func (s *Scheduler) Release() {
	select {
	case <-s.slots:
	default:
		logging.CollaboratorError("Scheduler: release without matching acquire")
		return
	}
	atomic.AddInt32(&s.currentlyRunning, -1)
	atomic.AddInt64(&s.totalCalls, 1)
}

// Stop unblocks every waiter.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

// SchedulerMetrics is a snapshot of scheduler counters.
type SchedulerMetrics struct {
	MaxSlots      int
	Running       int
	Waiting       int
	TotalCalls    int64
	AvgWaitTimeNs int64
}

// Metrics returns current counters.
func (s *Scheduler) Metrics() SchedulerMetrics {
	total := atomic.LoadInt64(&s.totalCalls)
	var avg int64
	if total > 0 {
		avg = atomic.LoadInt64(&s.totalWaitTime) / total
	}
	return SchedulerMetrics{
		MaxSlots:      cap(s.slots),
		Running:       int(atomic.LoadInt32(&s.currentlyRunning)),
		Waiting:       int(atomic.LoadInt32(&s.currentlyWaiting)),
		TotalCalls:    total,
		AvgWaitTimeNs: avg,
	}
}

// ScheduledGenerator wraps a Generator with slot acquisition.
type ScheduledGenerator struct {
	Scheduler *Scheduler
	Client    Generator
}

var _ Generator = (*ScheduledGenerator)(nil)

// Generate acquires a slot, calls through, and releases.
func (g *ScheduledGenerator) Generate(ctx context.Context, pc PromptContext) (string, error) {
	if err := g.Scheduler.Acquire(ctx); err != nil {
		return "", wrapTimeout(g.Client.Name(), err)
	}
	defer g.Scheduler.Release()
	return g.Client.Generate(ctx, pc)
}

// Name identifies the wrapped client.
func (g *ScheduledGenerator) Name() string { return g.Client.Name() }

// ScheduledClassifier wraps a Classifier with slot acquisition.
type ScheduledClassifier struct {
	Scheduler *Scheduler
	Client    Classifier
}

var _ Classifier = (*ScheduledClassifier)(nil)

// Classify acquires a slot, calls through, and releases.
func (c *ScheduledClassifier) Classify(ctx context.Context, content string,
	openRequests []types.EvidenceRequest) (types.EvidenceClassification, error) {

	if err := c.Scheduler.Acquire(ctx); err != nil {
		return types.DefaultClassification(), wrapTimeout(c.Client.Name(), err)
	}
	defer c.Scheduler.Release()
	return c.Client.Classify(ctx, content, openRequests)
}

// Name identifies the wrapped client.
func (c *ScheduledClassifier) Name() string { return c.Client.Name() }
