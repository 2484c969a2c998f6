package discovery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultHealthCheckInterval is how often the monitor probes unhealthy backends.
const DefaultHealthCheckInterval = time.Minute

// defaultProbeTimeout bounds a single HealthCheck call.
const defaultProbeTimeout = 10 * time.Second

// HealthMonitor re-admits unhealthy backends that pass their health check.
//
// Backends are marked unhealthy by the executor when a search fails. Without
// the monitor they stay out of discovery until marked healthy by hand.
type HealthMonitor struct {
	registry      *Registry
	checkInterval time.Duration
	probeTimeout  time.Duration
	concurrency   int
	logger        *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHealthMonitor creates a monitor for registry. Zero interval or
// concurrency values use the defaults.
func NewHealthMonitor(registry *Registry, checkInterval time.Duration, concurrency int, logger *zap.Logger) *HealthMonitor {
	if checkInterval <= 0 {
		checkInterval = DefaultHealthCheckInterval
	}
	if concurrency <= 0 {
		concurrency = DefaultMaxConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthMonitor{
		registry:      registry,
		checkInterval: checkInterval,
		probeTimeout:  defaultProbeTimeout,
		concurrency:   concurrency,
		logger:        logger,
	}
}

// Start begins periodic checks until ctx is cancelled or Stop is called.
// Calling Start on a running monitor is a no-op.
func (hm *HealthMonitor) Start(ctx context.Context) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	if hm.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	hm.cancel = cancel
	hm.done = make(chan struct{})
	go hm.run(ctx, hm.done)
}

func (hm *HealthMonitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(hm.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hm.CheckNow(ctx)
		}
	}
}

// Stop ends periodic checks and waits for the current pass to finish.
func (hm *HealthMonitor) Stop() {
	hm.mu.Lock()
	cancel, done := hm.cancel, hm.done
	hm.cancel, hm.done = nil, nil
	hm.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// CheckNow probes every unhealthy checkable backend once and returns the
// names that were re-admitted.
func (hm *HealthMonitor) CheckNow(ctx context.Context) []string {
	candidates := hm.registry.unhealthyCheckable()
	if len(candidates) == 0 {
		return nil
	}

	var (
		mu        sync.Mutex
		recovered []string
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(hm.concurrency)

	for name, checker := range candidates {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(gCtx, hm.probeTimeout)
			defer cancel()

			if err := hm.probe(probeCtx, checker); err != nil {
				hm.logger.Debug("backend still unhealthy",
					zap.String("backend", name),
					zap.Error(err))
				return nil
			}
			if err := hm.registry.MarkHealthy(name); err != nil {
				// Unregistered while probing.
				return nil
			}
			mu.Lock()
			recovered = append(recovered, name)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return recovered
}

func (hm *HealthMonitor) probe(ctx context.Context, checker HealthChecker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrBackendPanic
		}
	}()
	return checker.HealthCheck(ctx)
}
