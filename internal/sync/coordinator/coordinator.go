// Package coordinator schedules background synchronization runs: it polls
// the store on a jittered interval, runs every synchronization that is
// due, and purges expired audit logs.
package coordinator

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/openbridge/objectsync/internal/model"
	"github.com/openbridge/objectsync/internal/store"
	pkgsync "github.com/openbridge/objectsync/internal/sync"
)

const (
	// basePollingInterval is the base interval at which the coordinator
	// checks for due synchronizations
	basePollingInterval = 30 * time.Second

	// pollingJitter is the maximum random offset applied to the polling
	// interval so multiple instances don't poll the database in lockstep
	pollingJitter = 5 * time.Second
)

// Coordinator manages background scheduling and execution of
// synchronization runs.
type Coordinator interface {
	// Start begins background coordination. Blocks until the context is
	// cancelled.
	Start(ctx context.Context) error

	// Stop gracefully stops the coordinator
	Stop() error
}

type defaultCoordinator struct {
	orchestrator *pkgsync.Orchestrator
	stores       *store.Stores

	// runInterval is how often each synchronization is due
	runInterval time.Duration

	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option is a function that configures the coordinator.
type Option func(*defaultCoordinator)

// WithRunInterval sets how often each synchronization is due.
func WithRunInterval(interval time.Duration) Option {
	return func(c *defaultCoordinator) {
		if interval > 0 {
			c.runInterval = interval
		}
	}
}

// New creates a new coordinator with injected dependencies.
func New(orchestrator *pkgsync.Orchestrator, stores *store.Stores, opts ...Option) Coordinator {
	c := &defaultCoordinator{
		orchestrator: orchestrator,
		stores:       stores,
		runInterval:  5 * time.Minute,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// calculatePollingInterval returns the base polling interval with a
// random jitter applied.
func calculatePollingInterval() time.Duration {
	//nolint:gosec // G404: non-cryptographic randomness is fine for jitter
	jitterOffset := time.Duration(rand.Int63n(int64(2*pollingJitter))) - pollingJitter
	return basePollingInterval + jitterOffset
}

// Start begins background coordination for all synchronizations.
func (c *defaultCoordinator) Start(ctx context.Context) error {
	slog.Info("Starting background sync coordinator", "runInterval", c.runInterval)

	coordCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	defer func() {
		close(c.done)
		slog.Info("Background sync coordinator shutting down")
	}()

	pollingInterval := calculatePollingInterval()
	ticker := time.NewTicker(pollingInterval)
	defer ticker.Stop()

	c.tick(coordCtx)

	for {
		select {
		case <-ticker.C:
			c.tick(coordCtx)
			ticker.Reset(calculatePollingInterval())
		case <-coordCtx.Done():
			slog.Info("Sync coordinator stopping")
			return nil
		}
	}
}

// Stop gracefully stops the coordinator.
func (c *defaultCoordinator) Stop() error {
	if c.cancelFunc != nil {
		slog.Info("Stopping sync coordinator")
		c.cancelFunc()
		<-c.done
	}
	return nil
}

// tick runs every due synchronization and purges expired logs.
func (c *defaultCoordinator) tick(ctx context.Context) {
	syncs, err := c.stores.Synchronizations.List(ctx)
	if err != nil {
		slog.Error("Error listing synchronizations", "error", err)
		return
	}

	for _, sync := range syncs {
		if ctx.Err() != nil {
			return
		}
		due, reason := c.isDue(ctx, sync)
		if !due {
			continue
		}
		c.runSynchronization(ctx, sync, reason)
	}

	if purged, err := c.stores.Logs.PurgeExpired(ctx, time.Now().UTC()); err != nil {
		slog.Error("Error purging expired logs", "error", err)
	} else if purged > 0 {
		slog.Debug("Purged expired logs", "count", purged)
	}
}

// isDue decides whether a synchronization should run now. A
// synchronization is due when it never ran, its last run is older than
// the run interval, or its last run was interrupted and left a resume
// cursor behind.
func (c *defaultCoordinator) isDue(ctx context.Context, sync *model.Synchronization) (bool, string) {
	logs, err := c.stores.Logs.ListSyncLogs(ctx, sync.ID)
	if err != nil {
		slog.Error("Error reading run logs",
			"synchronization", sync.ID,
			"error", err)
		return false, ""
	}
	if len(logs) == 0 {
		return true, "never-ran"
	}

	last := logs[0]
	if sync.CurrentPage > 1 {
		return true, "resume-after-rate-limit"
	}
	if time.Since(last.Created) >= c.runInterval {
		return true, "interval-elapsed"
	}
	return false, ""
}

func (c *defaultCoordinator) runSynchronization(ctx context.Context, sync *model.Synchronization, reason string) {
	slog.Info("Starting scheduled synchronization run",
		"synchronization", sync.ID,
		"reason", reason)

	if _, err := c.orchestrator.Run(ctx, sync.ID, pkgsync.RunOptions{}); err != nil {
		slog.Error("Scheduled run failed",
			"synchronization", sync.ID,
			"error", err)
	}
}
