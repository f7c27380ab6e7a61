// Package sync reconciles locally-pending ledger records with the remote
// authority. One coordinator instance runs per merchant; a run drains every
// unsynced transaction and customer aggregate, marking each record's outcome
// individually so one failure never aborts the batch.
package sync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ashupal86/GraminStore/internal/models"
	"github.com/ashupal86/GraminStore/internal/store"
	"github.com/ashupal86/GraminStore/internal/util"
)

// Pusher sends local records to the remote authority
type Pusher interface {
	PushTransaction(ctx context.Context, txn models.Transaction) error
	PushAggregate(ctx context.Context, agg models.CustomerAggregate) error
}

// Result reports the outcome of one sync run
type Result struct {
	Skipped     bool      `json:"skipped"`
	Success     bool      `json:"success"`
	SyncedCount int       `json:"synced_count"`
	FailedCount int       `json:"failed_count"`
	FinishedAt  time.Time `json:"finished_at"`
	Err         error     `json:"-"`
}

// Status is the observable coordinator state exposed to the UI
type Status struct {
	Online       bool      `json:"online"`
	Syncing      bool      `json:"syncing"`
	PendingCount int64     `json:"pending_count"`
	LastRunAt    time.Time `json:"last_run_at,omitempty"`
	LastSynced   int       `json:"last_synced"`
	LastError    string    `json:"last_error,omitempty"`
}

// Coordinator drains unsynced records to the remote authority
type Coordinator struct {
	store      *store.Store
	pusher     Pusher
	monitor    *Monitor
	merchantID int64
	interval   time.Duration
	logger     *zap.Logger

	// Re-entrancy guard: exactly one run may be active. It does not block
	// concurrent ledger writes, only overlapping runs.
	isSyncing atomic.Bool

	mu     sync.Mutex
	subs   map[int64]func(Result)
	nextID int64
	last   Result

	stop chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewCoordinator creates a sync coordinator for one merchant
func NewCoordinator(s *store.Store, pusher Pusher, monitor *Monitor, merchantID int64, interval time.Duration) *Coordinator {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Coordinator{
		store:      s,
		pusher:     pusher,
		monitor:    monitor,
		merchantID: merchantID,
		interval:   interval,
		logger:     util.GetLogger(),
		subs:       make(map[int64]func(Result)),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Subscribe registers a callback invoked after every non-skipped run.
// The returned function unsubscribes.
func (c *Coordinator) Subscribe(fn func(Result)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Run performs one sync run. It returns a skipped result when offline or when
// another run is already in progress; it never queues.
func (c *Coordinator) Run(ctx context.Context) Result {
	if !c.monitor.Online() {
		util.SyncRunsTotal.WithLabelValues("offline").Inc()
		return Result{Skipped: true}
	}

	if !c.isSyncing.CompareAndSwap(false, true) {
		util.SyncRunsTotal.WithLabelValues("skipped").Inc()
		return Result{Skipped: true}
	}
	defer c.isSyncing.Store(false)

	ctx, span := util.StartSpan(ctx, "Coordinator.Run")
	defer span.End()

	start := time.Now()
	defer func() {
		util.SyncRunDuration.Observe(time.Since(start).Seconds())
	}()

	result := c.drain(ctx)
	result.FinishedAt = time.Now()

	if result.Success {
		util.SyncRunsTotal.WithLabelValues("success").Inc()
	} else {
		util.SyncRunsTotal.WithLabelValues("failure").Inc()
	}

	if pending, err := c.store.UnsyncedCount(ctx, c.merchantID); err == nil {
		util.SyncPendingRecords.Set(float64(pending))
	}

	c.logger.Info("Sync run finished",
		zap.Int("synced", result.SyncedCount),
		zap.Int("failed", result.FailedCount),
		zap.Duration("took", time.Since(start)))

	c.notify(result)
	return result
}

// drain pushes every unsynced transaction and aggregate, recording each
// record's outcome independently.
func (c *Coordinator) drain(ctx context.Context) Result {
	var result Result

	txns, err := c.store.UnsyncedTransactions(ctx, c.merchantID)
	if err != nil {
		result.Err = err
		return result
	}
	aggs, err := c.store.UnsyncedAggregates(ctx, c.merchantID)
	if err != nil {
		result.Err = err
		return result
	}

	for _, txn := range txns {
		if err := c.pusher.PushTransaction(ctx, txn); err != nil {
			util.SyncPushesTotal.WithLabelValues("transaction", "failure").Inc()
			c.logger.Warn("Transaction push failed",
				zap.Int64("id", txn.ID),
				zap.String("reference", txn.ReferenceNumber),
				zap.Error(err))
			if markErr := c.store.SetTransactionSyncState(ctx, txn.ID, models.SyncFailed); markErr != nil {
				c.logger.Error("Failed to mark transaction sync state", zap.Int64("id", txn.ID), zap.Error(markErr))
			}
			result.FailedCount++
			result.Err = err
			continue
		}

		util.SyncPushesTotal.WithLabelValues("transaction", "success").Inc()
		if markErr := c.store.SetTransactionSyncState(ctx, txn.ID, models.SyncSynced); markErr != nil {
			c.logger.Error("Failed to mark transaction sync state", zap.Int64("id", txn.ID), zap.Error(markErr))
		}
		result.SyncedCount++
	}

	for _, agg := range aggs {
		if err := c.pusher.PushAggregate(ctx, agg); err != nil {
			util.SyncPushesTotal.WithLabelValues("aggregate", "failure").Inc()
			c.logger.Warn("Aggregate push failed",
				zap.String("customer", agg.CustomerName),
				zap.Error(err))
			if markErr := c.store.SetAggregateSyncState(ctx, agg.ID, models.SyncFailed); markErr != nil {
				c.logger.Error("Failed to mark aggregate sync state", zap.Int64("id", agg.ID), zap.Error(markErr))
			}
			result.FailedCount++
			result.Err = err
			continue
		}

		util.SyncPushesTotal.WithLabelValues("aggregate", "success").Inc()
		if markErr := c.store.SetAggregateSyncState(ctx, agg.ID, models.SyncSynced); markErr != nil {
			c.logger.Error("Failed to mark aggregate sync state", zap.Int64("id", agg.ID), zap.Error(markErr))
		}
		result.SyncedCount++
	}

	result.Success = result.FailedCount == 0 && result.Err == nil
	return result
}

// ForceSync triggers an immediate run, subject to the same guard as any other
func (c *Coordinator) ForceSync(ctx context.Context) Result {
	return c.Run(ctx)
}

// Start runs the periodic loop: a tick every interval plus an immediate run
// whenever connectivity transitions offline -> online. No backoff is applied
// to failed records; the periodic cadence provides natural spacing.
func (c *Coordinator) Start(ctx context.Context) {
	transitions := c.monitor.Subscribe()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(c.done)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			case <-ticker.C:
				c.Run(ctx)
			case online := <-transitions:
				if online {
					c.Run(ctx)
				}
			}
		}
	}()
}

// Stop terminates the periodic loop, letting an in-flight run finish
func (c *Coordinator) Stop() {
	close(c.stop)
	c.wg.Wait()
}

// Status reports the coordinator's observable state
func (c *Coordinator) Status(ctx context.Context) Status {
	pending, err := c.store.UnsyncedCount(ctx, c.merchantID)
	if err != nil {
		c.logger.Warn("Failed to count pending records", zap.Error(err))
	}

	c.mu.Lock()
	last := c.last
	c.mu.Unlock()

	status := Status{
		Online:       c.monitor.Online(),
		Syncing:      c.isSyncing.Load(),
		PendingCount: pending,
		LastRunAt:    last.FinishedAt,
		LastSynced:   last.SyncedCount,
	}
	if last.Err != nil {
		status.LastError = last.Err.Error()
	}
	return status
}

func (c *Coordinator) notify(result Result) {
	c.mu.Lock()
	c.last = result
	fns := make([]func(Result), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(result)
	}
}
