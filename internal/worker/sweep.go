package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/match-lifecycle/internal/config"
	"github.com/match-lifecycle/internal/domain"
)

// Sweeper runs one matchmaking sweep
type Sweeper interface {
	RunSweep(ctx context.Context) ([]domain.Match, error)
}

// SweepWorker runs matchmaking sweeps periodically and on demand
type SweepWorker struct {
	sweeper   Sweeper
	config    *config.SweepConfig
	logger    *slog.Logger
	triggerCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        sync.Mutex
	running   bool
}

// NewSweepWorker creates a new sweep worker
func NewSweepWorker(sweeper Sweeper, cfg *config.SweepConfig, logger *slog.Logger) *SweepWorker {
	return &SweepWorker{
		sweeper:   sweeper,
		config:    cfg,
		logger:    logger.With("component", "sweep_worker"),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background sweep loop
func (w *SweepWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sweep worker started", "interval", w.config.Interval, "on_join", w.config.OnJoin)

	go w.run(ctx)
	return nil
}

// Stop stops the background sweep loop and waits for a running sweep to finish
func (w *SweepWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sweep worker stopped")
	return nil
}

// Trigger requests a sweep without blocking. Requests arriving while one is
// already pending collapse into it.
func (w *SweepWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// run is the main worker loop
func (w *SweepWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	var tick <-chan time.Time
	if w.config.Interval > 0 {
		ticker := time.NewTicker(w.config.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-tick:
			w.RunOnce(ctx)
		case <-w.triggerCh:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single sweep (useful for manual triggers)
func (w *SweepWorker) RunOnce(ctx context.Context) {
	created, err := w.sweeper.RunSweep(ctx)
	if err != nil {
		w.logger.Error("matchmaking sweep failed", "error", err, "proposals", len(created))
		return
	}
	if len(created) > 0 {
		w.logger.Debug("sweep cycle completed", "proposals", len(created))
	}
}

// IsRunning returns whether the worker is currently running
func (w *SweepWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
