// Package connectivity tracks whether the remote API is reachable and notifies
// subscribers on online/offline transitions.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/alexivanou/guide-offline/internal/metrics"
	"go.uber.org/zap"
)

// Observer is the connectivity capability injected into components
type Observer interface {
	Online() bool
	// Subscribe registers fn for transitions and returns a function that unregisters it.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Monitor holds the last observed connectivity state
type Monitor struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(bool)
	logger *zap.Logger
}

// NewMonitor creates a monitor with the given initial state
func NewMonitor(online bool, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{online: online, subs: make(map[int]func(bool)), logger: logger}
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Set records the current state. Subscribers are called synchronously, outside
// the lock, only when the state actually changes.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	to := "offline"
	if online {
		to = "online"
	}
	metrics.ConnectivityTransitions.WithLabelValues(to).Inc()
	m.logger.Info("Connectivity changed", zap.Bool("online", online))

	for _, fn := range subs {
		fn(online)
	}
}

// CheckFunc reports whether the remote side is reachable
type CheckFunc func(ctx context.Context) error

// Prober drives a Monitor from periodic health checks
type Prober struct {
	monitor  *Monitor
	check    CheckFunc
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewProber creates a prober. timeout bounds each individual check.
func NewProber(monitor *Monitor, check CheckFunc, interval, timeout time.Duration, logger *zap.Logger) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	return &Prober{monitor: monitor, check: check, interval: interval, timeout: timeout, logger: logger}
}

// Probe runs one check and updates the monitor
func (p *Prober) Probe(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(checkCtx)
	if err != nil && ctx.Err() != nil {
		// shutting down; keep the last state
		return p.monitor.Online()
	}
	if err != nil {
		p.logger.Debug("Connectivity probe failed", zap.Error(err))
	}
	p.monitor.Set(err == nil)
	return err == nil
}

// Run probes immediately and then on every interval until ctx is done
func (p *Prober) Run(ctx context.Context) {
	p.Probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
