package shutdown

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// InFlightTracker tracks in-flight purchase requests so shutdown waits for
// running commands to persist their outcome
type InFlightTracker struct {
	logger       *zap.Logger
	shutdownCh   chan struct{}
	name         string
	wg           sync.WaitGroup
	mu           sync.Mutex
	shuttingDown bool
}

// NewInFlightTracker creates a new in-flight work tracker
func NewInFlightTracker(name string, logger *zap.Logger) *InFlightTracker {
	return &InFlightTracker{
		logger:     logger,
		shutdownCh: make(chan struct{}),
		name:       name,
	}
}

// Add increments the in-flight work counter.
// Returns false if shutdown has been initiated.
func (ift *InFlightTracker) Add() bool {
	ift.mu.Lock()
	defer ift.mu.Unlock()
	if ift.shuttingDown {
		return false
	}
	ift.wg.Add(1)
	return true
}

// Done decrements the in-flight work counter
func (ift *InFlightTracker) Done() {
	ift.wg.Done()
}

// Shutdown rejects new work and waits for in-flight work to complete.
// Returns ctx.Err() if ctx ends first.
func (ift *InFlightTracker) Shutdown(ctx context.Context) error {
	ift.mu.Lock()
	if !ift.shuttingDown {
		ift.shuttingDown = true
		close(ift.shutdownCh)
	}
	ift.mu.Unlock()

	ift.logger.Info("Waiting for in-flight work to complete",
		zap.String("tracker", ift.name),
	)

	done := make(chan struct{})
	go func() {
		ift.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		ift.logger.Info("All in-flight work completed",
			zap.String("tracker", ift.name),
		)
		return nil
	case <-ctx.Done():
		ift.logger.Warn("Shutdown timeout - some work may be incomplete",
			zap.String("tracker", ift.name),
		)
		return ctx.Err()
	}
}

// IsShuttingDown returns true if shutdown has been initiated
func (ift *InFlightTracker) IsShuttingDown() bool {
	select {
	case <-ift.shutdownCh:
		return true
	default:
		return false
	}
}

// Middleware counts each request as in-flight work and answers 503 once
// shutdown has started
func (ift *InFlightTracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ift.Add() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Connection", "close")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"code":"SHUTTING_DOWN","message":"service is shutting down"}`))
			return
		}
		defer ift.Done()
		next.ServeHTTP(w, r)
	})
}

// PeriodicWorker runs a function on an interval until stopped
type PeriodicWorker struct {
	logger   *zap.Logger
	cancel   context.CancelFunc
	name     string
	interval time.Duration
	wg       sync.WaitGroup
	once     sync.Once
}

// NewPeriodicWorker creates a new periodic worker
func NewPeriodicWorker(name string, interval time.Duration, logger *zap.Logger) *PeriodicWorker {
	return &PeriodicWorker{
		logger:   logger,
		name:     name,
		interval: interval,
	}
}

// Start runs work immediately and then on every tick until ctx ends or
// Shutdown is called
func (pw *PeriodicWorker) Start(ctx context.Context, work func(ctx context.Context)) {
	pw.once.Do(func() {
		ctx, pw.cancel = context.WithCancel(ctx)
		pw.wg.Add(1)

		go func() {
			defer pw.wg.Done()
			ticker := time.NewTicker(pw.interval)
			defer ticker.Stop()

			pw.logger.Info("Periodic worker started",
				zap.String("worker", pw.name),
				zap.Duration("interval", pw.interval),
			)

			work(ctx)
			for {
				select {
				case <-ctx.Done():
					pw.logger.Info("Periodic worker stopped", zap.String("worker", pw.name))
					return
				case <-ticker.C:
					work(ctx)
				}
			}
		}()
	})
}

// Shutdown stops the worker and waits for the current run to finish
func (pw *PeriodicWorker) Shutdown(ctx context.Context) error {
	if pw.cancel == nil {
		return nil
	}
	pw.cancel()

	done := make(chan struct{})
	go func() {
		pw.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		pw.logger.Warn("Periodic worker shutdown timeout",
			zap.String("worker", pw.name),
		)
		return ctx.Err()
	}
}
