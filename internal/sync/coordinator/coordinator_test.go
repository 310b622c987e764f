package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbridge/objectsync/internal/model"
	"github.com/openbridge/objectsync/internal/register"
	"github.com/openbridge/objectsync/internal/sources"
	"github.com/openbridge/objectsync/internal/store"
	pkgsync "github.com/openbridge/objectsync/internal/sync"
	"github.com/openbridge/objectsync/internal/targets"
)

func newTestCoordinator(t *testing.T, reg register.Register, interval time.Duration) (*defaultCoordinator, *store.Stores) {
	t.Helper()

	stores := store.NewMemoryStores()
	orchestrator := pkgsync.NewOrchestrator(
		stores,
		sources.NewHandlerFactory(nil, reg),
		targets.NewRegistry(nil, reg),
	)
	c := New(orchestrator, stores, WithRunInterval(interval)).(*defaultCoordinator)
	return c, stores
}

func registerToRegisterSync(id string) *model.Synchronization {
	return &model.Synchronization{
		ID:           id,
		SourceID:     "in",
		SourceType:   model.SourceTypeRegister,
		TargetID:     "out",
		TargetType:   model.TargetTypeRegister,
		TargetConfig: map[string]any{"register": "out"},
	}
}

func TestIsDue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c, stores := newTestCoordinator(t, register.NewMemoryRegister(), time.Hour)

	sync := registerToRegisterSync("due-check")
	require.NoError(t, stores.Synchronizations.Upsert(ctx, sync))

	due, reason := c.isDue(ctx, sync)
	assert.True(t, due)
	assert.Equal(t, "never-ran", reason)

	// A fresh run log within the interval means not due.
	require.NoError(t, stores.Logs.CreateSyncLog(ctx, &model.SynchronizationLog{
		ID:                uuid.New(),
		SynchronizationID: sync.ID,
		Created:           time.Now().UTC(),
	}))
	due, _ = c.isDue(ctx, sync)
	assert.False(t, due)

	// An interrupted run left a resume cursor behind.
	sync.CurrentPage = 3
	due, reason = c.isDue(ctx, sync)
	assert.True(t, due)
	assert.Equal(t, "resume-after-rate-limit", reason)
	sync.CurrentPage = 1

	// The interval elapsing makes it due again.
	stale, stores2 := newTestCoordinator(t, register.NewMemoryRegister(), time.Minute)
	require.NoError(t, stores2.Synchronizations.Upsert(ctx, sync))
	require.NoError(t, stores2.Logs.CreateSyncLog(ctx, &model.SynchronizationLog{
		ID:                uuid.New(),
		SynchronizationID: sync.ID,
		Created:           time.Now().UTC().Add(-2 * time.Minute),
	}))
	due, reason = stale.isDue(ctx, sync)
	assert.True(t, due)
	assert.Equal(t, "interval-elapsed", reason)
}

func TestTickRunsDueSynchronizationsAndPurges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	reg := register.NewMemoryRegister()
	require.NoError(t, reg.Put(ctx, "in", "1", map[string]any{"id": "1", "name": "one"}))

	c, stores := newTestCoordinator(t, reg, time.Hour)
	require.NoError(t, stores.Synchronizations.Upsert(ctx, registerToRegisterSync("scheduled")))

	expired := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, stores.Logs.CreateContractLog(ctx, &model.ContractLog{
		ID:                uuid.New(),
		SynchronizationID: "scheduled",
		Expires:           &expired,
	}))

	c.tick(ctx)

	// The due synchronization ran and moved the object across.
	stored, err := reg.Get(ctx, "out", "1")
	require.NoError(t, err)
	assert.Equal(t, "one", stored["name"])

	logs, err := stores.Logs.ListSyncLogs(ctx, "scheduled")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Success", logs[0].Message)

	// The expired contract log was purged during the same tick.
	orphanLogs, err := stores.Logs.ListContractLogs(ctx, uuid.Nil)
	require.NoError(t, err)
	assert.Empty(t, orphanLogs)

	// A second immediate tick finds nothing due.
	c.tick(ctx)
	logs, err = stores.Logs.ListSyncLogs(ctx, "scheduled")
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestStartAndStop(t *testing.T) {
	t.Parallel()

	c, _ := newTestCoordinator(t, register.NewMemoryRegister(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Start(ctx)
	}()

	// Give the initial tick a moment, then stop.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, c.Stop())

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not stop")
	}
}
