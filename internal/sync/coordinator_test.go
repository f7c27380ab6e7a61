package sync

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashupal86/GraminStore/internal/models"
	"github.com/ashupal86/GraminStore/internal/store"
)

// stubPusher records pushes and fails every record for failName.
type stubPusher struct {
	mu       sync.Mutex
	failName string
	started  chan struct{}
	release  chan struct{}

	pushedTxns []string
	pushedAggs []string
}

func (p *stubPusher) PushTransaction(ctx context.Context, txn models.Transaction) error {
	if p.started != nil {
		select {
		case p.started <- struct{}{}:
		default:
		}
		<-p.release
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if txn.CustomerName == p.failName {
		return errors.New("remote rejected transaction")
	}
	p.pushedTxns = append(p.pushedTxns, txn.ReferenceNumber)
	return nil
}

func (p *stubPusher) PushAggregate(ctx context.Context, agg models.CustomerAggregate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if agg.CustomerName == p.failName {
		return errors.New("remote rejected aggregate")
	}
	p.pushedAggs = append(p.pushedAggs, agg.CustomerName)
	return nil
}

func (p *stubPusher) setFailName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failName = name
}

func newTestCoordinator(t *testing.T, pusher Pusher) (*Coordinator, *store.Store, *Monitor) {
	t.Helper()

	s, err := store.NewStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	monitor := NewMonitor(nil, time.Minute)
	monitor.SetOnline(true)

	return NewCoordinator(s, pusher, monitor, 7, time.Minute), s, monitor
}

func appendTxn(t *testing.T, s *store.Store, name string, amount float64) int64 {
	t.Helper()

	id, err := s.AppendTransaction(context.Background(), store.AppendTransactionInput{
		MerchantID:   7,
		CustomerName: name,
		Amount:       amount,
		PaymentKind:  models.PaymentInstant,
	})
	require.NoError(t, err)
	return id
}

func TestRunSkipsWhenOffline(t *testing.T) {
	pusher := &stubPusher{}
	c, s, monitor := newTestCoordinator(t, pusher)
	monitor.SetOnline(false)

	appendTxn(t, s, "Asha", 100)

	result := c.Run(context.Background())
	assert.True(t, result.Skipped)
	assert.Empty(t, pusher.pushedTxns)

	// The record stays queued for when connectivity returns.
	txns, err := s.UnsyncedTransactions(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func TestRunIsolatesPerRecordFailures(t *testing.T) {
	pusher := &stubPusher{failName: "Ravi"}
	c, s, _ := newTestCoordinator(t, pusher)
	ctx := context.Background()

	ashaID := appendTxn(t, s, "Asha", 100)
	raviID := appendTxn(t, s, "Ravi", 200)

	result := c.Run(ctx)
	require.False(t, result.Skipped)
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.SyncedCount) // Asha's transaction and aggregate
	assert.Equal(t, 2, result.FailedCount) // Ravi's transaction and aggregate
	assert.Error(t, result.Err)

	asha, err := s.GetTransaction(ctx, ashaID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncSynced, asha.SyncState)

	ravi, err := s.GetTransaction(ctx, raviID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncFailed, ravi.SyncState)

	// Failed records are picked up again by the next run.
	pusher.setFailName("")
	result = c.Run(ctx)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.SyncedCount)
	assert.Equal(t, 0, result.FailedCount)

	ravi, err = s.GetTransaction(ctx, raviID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncSynced, ravi.SyncState)
}

func TestRunIsIdempotentOnceDrained(t *testing.T) {
	pusher := &stubPusher{}
	c, s, _ := newTestCoordinator(t, pusher)
	ctx := context.Background()

	appendTxn(t, s, "Asha", 100)

	result := c.Run(ctx)
	require.True(t, result.Success)
	assert.Equal(t, 2, result.SyncedCount)

	result = c.Run(ctx)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.SyncedCount)
	assert.Len(t, pusher.pushedTxns, 1)
	assert.Len(t, pusher.pushedAggs, 1)
}

func TestRunRejectsOverlap(t *testing.T) {
	pusher := &stubPusher{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c, s, _ := newTestCoordinator(t, pusher)
	ctx := context.Background()

	appendTxn(t, s, "Asha", 100)

	var wg sync.WaitGroup
	var first Result
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = c.Run(ctx)
	}()

	<-pusher.started
	second := c.Run(ctx)
	assert.True(t, second.Skipped)

	close(pusher.release)
	wg.Wait()
	assert.False(t, first.Skipped)
	assert.True(t, first.Success)
}

func TestSubscribersObserveRuns(t *testing.T) {
	pusher := &stubPusher{}
	c, s, _ := newTestCoordinator(t, pusher)
	ctx := context.Background()

	var results []Result
	unsubscribe := c.Subscribe(func(r Result) {
		results = append(results, r)
	})

	appendTxn(t, s, "Asha", 100)
	c.Run(ctx)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].SyncedCount)

	unsubscribe()
	c.Run(ctx)
	assert.Len(t, results, 1)
}

func TestStatusReflectsLastRun(t *testing.T) {
	pusher := &stubPusher{failName: "Ravi"}
	c, s, _ := newTestCoordinator(t, pusher)
	ctx := context.Background()

	appendTxn(t, s, "Ravi", 200)
	c.Run(ctx)

	status := c.Status(ctx)
	assert.True(t, status.Online)
	assert.False(t, status.Syncing)
	assert.NotEmpty(t, status.LastError)
	assert.Equal(t, int64(2), status.PendingCount)
	assert.False(t, status.LastRunAt.IsZero())
}

func TestMonitorNotifiesOnTransition(t *testing.T) {
	m := NewMonitor(nil, time.Minute)
	transitions := m.Subscribe()

	m.SetOnline(true)
	select {
	case online := <-transitions:
		assert.True(t, online)
	default:
		t.Fatal("expected an online transition")
	}

	// Same state again is not a transition.
	m.SetOnline(true)
	select {
	case <-transitions:
		t.Fatal("duplicate state must not notify")
	default:
	}

	m.SetOnline(false)
	select {
	case online := <-transitions:
		assert.False(t, online)
	default:
		t.Fatal("expected an offline transition")
	}
	assert.False(t, m.Online())
}
