package sync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ashupal86/GraminStore/internal/util"
)

// HealthChecker probes the remote authority for reachability
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Monitor tracks connectivity to the remote authority and notifies
// subscribers on offline/online transitions.
type Monitor struct {
	checker  HealthChecker
	interval time.Duration
	online   atomic.Bool
	logger   *zap.Logger

	mu   sync.Mutex
	subs []chan bool

	stop chan struct{}
	done chan struct{}
}

// NewMonitor creates a connectivity monitor that probes checker every interval
func NewMonitor(checker HealthChecker, interval time.Duration) *Monitor {
	return &Monitor{
		checker:  checker,
		interval: interval,
		logger:   util.GetLogger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Online reports the last observed connectivity state
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// SetOnline records a connectivity observation from outside the probe loop
// (e.g. a channel connect or a failed push) and notifies on transition.
func (m *Monitor) SetOnline(online bool) {
	if m.online.Swap(online) == online {
		return
	}

	if online {
		m.logger.Info("Connectivity restored")
	} else {
		m.logger.Warn("Connectivity lost")
	}

	m.mu.Lock()
	subs := make([]chan bool, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- online:
		default:
			// Subscriber hasn't drained the previous transition; the current
			// state is still readable via Online().
		}
	}
}

// Subscribe returns a channel that receives each offline/online transition
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Start runs the probe loop until Stop or ctx cancellation
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		defer close(m.done)

		m.probe(ctx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.probe(ctx)
			}
		}
	}()
}

// Stop terminates the probe loop
func (m *Monitor) Stop() {
	close(m.stop)
	<-m.done
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	m.SetOnline(m.checker.Health(probeCtx) == nil)
}
