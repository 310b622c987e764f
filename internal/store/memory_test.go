package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbridge/objectsync/internal/model"
	"github.com/openbridge/objectsync/internal/store"
)

func newSync(id string) *model.Synchronization {
	return &model.Synchronization{
		ID:         id,
		SourceID:   "src",
		SourceType: model.SourceTypeAPI,
		TargetID:   "tgt",
		TargetType: model.TargetTypeRegister,
	}
}

func TestMemorySynchronizationStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	stores := store.NewMemoryStores()

	_, err := stores.Synchronizations.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrSynchronizationNotFound)

	require.NoError(t, stores.Synchronizations.Upsert(ctx, newSync("b-sync")))
	require.NoError(t, stores.Synchronizations.Upsert(ctx, newSync("a-sync")))

	got, err := stores.Synchronizations.Get(ctx, "a-sync")
	require.NoError(t, err)
	assert.Equal(t, "a-sync", got.ID)
	// A fresh definition starts at page one.
	assert.Equal(t, 1, got.CurrentPage)

	list, err := stores.Synchronizations.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a-sync", list[0].ID)
	assert.Equal(t, "b-sync", list[1].ID)

	// Upsert replaces the stored definition.
	updated := newSync("a-sync")
	updated.SourceID = "other"
	require.NoError(t, stores.Synchronizations.Upsert(ctx, updated))
	got, err = stores.Synchronizations.Get(ctx, "a-sync")
	require.NoError(t, err)
	assert.Equal(t, "other", got.SourceID)

	require.NoError(t, stores.Synchronizations.Delete(ctx, "a-sync"))
	assert.ErrorIs(t, stores.Synchronizations.Delete(ctx, "a-sync"), store.ErrSynchronizationNotFound)
}

func TestMemorySynchronizationStoreSetCurrentPage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	stores := store.NewMemoryStores()

	require.NoError(t, stores.Synchronizations.Upsert(ctx, newSync("sync")))

	require.NoError(t, stores.Synchronizations.SetCurrentPage(ctx, "sync", 7))
	got, err := stores.Synchronizations.Get(ctx, "sync")
	require.NoError(t, err)
	assert.Equal(t, 7, got.CurrentPage)

	// Pages below one clamp to one.
	require.NoError(t, stores.Synchronizations.SetCurrentPage(ctx, "sync", 0))
	got, err = stores.Synchronizations.Get(ctx, "sync")
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentPage)

	assert.ErrorIs(t,
		stores.Synchronizations.SetCurrentPage(ctx, "missing", 2),
		store.ErrSynchronizationNotFound)
}

func TestMemorySynchronizationStoreDoesNotAliasStoredState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	stores := store.NewMemoryStores()

	sync := newSync("sync")
	sync.SourceConfig = map[string]any{"endpoint": "http://example.com"}
	require.NoError(t, stores.Synchronizations.Upsert(ctx, sync))

	sync.SourceConfig["endpoint"] = "mutated"
	got, err := stores.Synchronizations.Get(ctx, "sync")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com", got.SourceConfig["endpoint"])
}

func TestMemoryContractStoreCreateAndFind(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	stores := store.NewMemoryStores()

	contract := &model.Contract{
		ID:                uuid.New(),
		SynchronizationID: "sync",
		OriginID:          "origin-1",
		Created:           time.Now().UTC(),
		Updated:           time.Now().UTC(),
	}
	require.NoError(t, stores.Contracts.Create(ctx, contract))

	// A second contract for the same origin is rejected.
	duplicate := &model.Contract{
		ID:                uuid.New(),
		SynchronizationID: "sync",
		OriginID:          "origin-1",
	}
	assert.ErrorIs(t, stores.Contracts.Create(ctx, duplicate), store.ErrDuplicateContract)

	// The same origin under another synchronization is fine.
	other := &model.Contract{
		ID:                uuid.New(),
		SynchronizationID: "other-sync",
		OriginID:          "origin-1",
	}
	require.NoError(t, stores.Contracts.Create(ctx, other))

	found, err := stores.Contracts.FindByOrigin(ctx, "sync", "origin-1")
	require.NoError(t, err)
	assert.Equal(t, contract.ID, found.ID)

	_, err = stores.Contracts.FindByOrigin(ctx, "sync", "")
	assert.ErrorIs(t, err, store.ErrContractNotFound)

	_, err = stores.Contracts.FindByOrigin(ctx, "sync", "unknown")
	assert.ErrorIs(t, err, store.ErrContractNotFound)
}

func TestMemoryContractStoreUpdateAndFindByTarget(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	stores := store.NewMemoryStores()

	contract := &model.Contract{
		ID:                uuid.New(),
		SynchronizationID: "sync",
		OriginID:          "origin-1",
	}
	require.NoError(t, stores.Contracts.Create(ctx, contract))

	contract.TargetID = "target-1"
	contract.TargetHash = "hash"
	require.NoError(t, stores.Contracts.Update(ctx, contract))

	found, err := stores.Contracts.FindByTarget(ctx, "sync", "target-1")
	require.NoError(t, err)
	assert.Equal(t, "hash", found.TargetHash)

	_, err = stores.Contracts.FindByTarget(ctx, "sync", "")
	assert.ErrorIs(t, err, store.ErrContractNotFound)

	missing := &model.Contract{ID: uuid.New(), SynchronizationID: "sync"}
	assert.ErrorIs(t, stores.Contracts.Update(ctx, missing), store.ErrContractNotFound)
}

func TestMemoryContractStoreListBySynchronization(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	stores := store.NewMemoryStores()

	base := time.Now().UTC()
	for i, origin := range []string{"first", "second", "third"} {
		require.NoError(t, stores.Contracts.Create(ctx, &model.Contract{
			ID:                uuid.New(),
			SynchronizationID: "sync",
			OriginID:          origin,
			Created:           base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, stores.Contracts.Create(ctx, &model.Contract{
		ID:                uuid.New(),
		SynchronizationID: "other",
		OriginID:          "elsewhere",
	}))

	contracts, err := stores.Contracts.ListBySynchronization(ctx, "sync")
	require.NoError(t, err)
	require.Len(t, contracts, 3)
	assert.Equal(t, "first", contracts[0].OriginID)
	assert.Equal(t, "third", contracts[2].OriginID)
}

func TestMemoryContractStoreHandleObjectRemoval(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("clears target side when origin remains", func(t *testing.T) {
		t.Parallel()
		stores := store.NewMemoryStores()

		contract := &model.Contract{
			ID:                uuid.New(),
			SynchronizationID: "sync",
			OriginID:          "origin-1",
			TargetID:          "target-1",
			TargetHash:        "hash",
		}
		require.NoError(t, stores.Contracts.Create(ctx, contract))

		require.NoError(t, stores.Contracts.HandleObjectRemoval(ctx, "sync", "target-1"))

		got, err := stores.Contracts.Get(ctx, contract.ID)
		require.NoError(t, err)
		assert.Empty(t, got.TargetID)
		assert.Empty(t, got.TargetHash)
		assert.Equal(t, "origin-1", got.OriginID)
	})

	t.Run("clears origin side when target remains", func(t *testing.T) {
		t.Parallel()
		stores := store.NewMemoryStores()

		contract := &model.Contract{
			ID:                uuid.New(),
			SynchronizationID: "sync",
			OriginID:          "origin-1",
			OriginHash:        "hash",
			TargetID:          "target-1",
		}
		require.NoError(t, stores.Contracts.Create(ctx, contract))

		require.NoError(t, stores.Contracts.HandleObjectRemoval(ctx, "sync", "origin-1"))

		got, err := stores.Contracts.Get(ctx, contract.ID)
		require.NoError(t, err)
		assert.Empty(t, got.OriginID)
		assert.Empty(t, got.OriginHash)
		assert.Equal(t, "target-1", got.TargetID)
	})

	t.Run("clears matching side on every contract", func(t *testing.T) {
		t.Parallel()
		stores := store.NewMemoryStores()

		asOrigin := &model.Contract{
			ID:                uuid.New(),
			SynchronizationID: "sync",
			OriginID:          "shared",
			TargetID:          "target-1",
		}
		asTarget := &model.Contract{
			ID:                uuid.New(),
			SynchronizationID: "sync",
			OriginID:          "origin-2",
			TargetID:          "shared",
		}
		otherSync := &model.Contract{
			ID:                uuid.New(),
			SynchronizationID: "other",
			OriginID:          "shared",
			TargetID:          "shared",
		}
		require.NoError(t, stores.Contracts.Create(ctx, asOrigin))
		require.NoError(t, stores.Contracts.Create(ctx, asTarget))
		require.NoError(t, stores.Contracts.Create(ctx, otherSync))

		require.NoError(t, stores.Contracts.HandleObjectRemoval(ctx, "sync", "shared"))

		got, err := stores.Contracts.Get(ctx, asOrigin.ID)
		require.NoError(t, err)
		assert.Empty(t, got.OriginID)
		assert.Equal(t, "target-1", got.TargetID)

		got, err = stores.Contracts.Get(ctx, asTarget.ID)
		require.NoError(t, err)
		assert.Equal(t, "origin-2", got.OriginID)
		assert.Empty(t, got.TargetID)

		got, err = stores.Contracts.Get(ctx, otherSync.ID)
		require.NoError(t, err)
		assert.Equal(t, "shared", got.OriginID)
		assert.Equal(t, "shared", got.TargetID)
	})

	t.Run("deletes orphaned contract", func(t *testing.T) {
		t.Parallel()
		stores := store.NewMemoryStores()

		contract := &model.Contract{
			ID:                uuid.New(),
			SynchronizationID: "sync",
			TargetID:          "target-1",
		}
		require.NoError(t, stores.Contracts.Create(ctx, contract))

		require.NoError(t, stores.Contracts.HandleObjectRemoval(ctx, "sync", "target-1"))

		_, err := stores.Contracts.Get(ctx, contract.ID)
		assert.ErrorIs(t, err, store.ErrContractNotFound)
	})

	t.Run("deletes contract orphaned across both sides", func(t *testing.T) {
		t.Parallel()
		stores := store.NewMemoryStores()

		contract := &model.Contract{
			ID:                uuid.New(),
			SynchronizationID: "sync",
			OriginID:          "origin-1",
			TargetID:          "target-1",
		}
		require.NoError(t, stores.Contracts.Create(ctx, contract))

		require.NoError(t, stores.Contracts.HandleObjectRemoval(ctx, "sync", "origin-1"))
		require.NoError(t, stores.Contracts.HandleObjectRemoval(ctx, "sync", "target-1"))

		_, err := stores.Contracts.Get(ctx, contract.ID)
		assert.ErrorIs(t, err, store.ErrContractNotFound)
	})

	t.Run("unknown object is a no-op", func(t *testing.T) {
		t.Parallel()
		stores := store.NewMemoryStores()
		require.NoError(t, stores.Contracts.HandleObjectRemoval(ctx, "sync", "never-seen"))
		require.NoError(t, stores.Contracts.HandleObjectRemoval(ctx, "sync", ""))
	})
}

func TestMemoryLogStoreSyncLogs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	stores := store.NewMemoryStores()

	base := time.Now().UTC()
	older := &model.SynchronizationLog{
		ID:                uuid.New(),
		SynchronizationID: "sync",
		Created:           base.Add(-time.Hour),
	}
	newer := &model.SynchronizationLog{
		ID:                uuid.New(),
		SynchronizationID: "sync",
		Created:           base,
	}
	require.NoError(t, stores.Logs.CreateSyncLog(ctx, older))
	require.NoError(t, stores.Logs.CreateSyncLog(ctx, newer))

	logs, err := stores.Logs.ListSyncLogs(ctx, "sync")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	// Newest first.
	assert.Equal(t, newer.ID, logs[0].ID)
	assert.Equal(t, older.ID, logs[1].ID)

	newer.Message = "Success"
	newer.Result = model.RunResult{Found: 3, Created: 3}
	require.NoError(t, stores.Logs.UpdateSyncLog(ctx, newer))

	got, err := stores.Logs.GetSyncLog(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, "Success", got.Message)
	assert.Equal(t, 3, got.Result.Created)

	_, err = stores.Logs.GetSyncLog(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrLogNotFound)

	unknown := &model.SynchronizationLog{ID: uuid.New()}
	assert.ErrorIs(t, stores.Logs.UpdateSyncLog(ctx, unknown), store.ErrLogNotFound)
}

func TestMemoryLogStoreContractLogs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	stores := store.NewMemoryStores()

	runID := uuid.New()
	base := time.Now().UTC()

	first := &model.ContractLog{
		ID:                   uuid.New(),
		SynchronizationID:    "sync",
		SynchronizationLogID: runID,
		Created:              base,
	}
	second := &model.ContractLog{
		ID:                   uuid.New(),
		SynchronizationID:    "sync",
		SynchronizationLogID: runID,
		Created:              base.Add(time.Second),
	}
	unrelated := &model.ContractLog{
		ID:                   uuid.New(),
		SynchronizationID:    "sync",
		SynchronizationLogID: uuid.New(),
		Created:              base,
	}
	require.NoError(t, stores.Logs.CreateContractLog(ctx, first))
	require.NoError(t, stores.Logs.CreateContractLog(ctx, second))
	require.NoError(t, stores.Logs.CreateContractLog(ctx, unrelated))

	logs, err := stores.Logs.ListContractLogs(ctx, runID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, first.ID, logs[0].ID)
	assert.Equal(t, second.ID, logs[1].ID)
}

func TestMemoryLogStorePurgeExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	stores := store.NewMemoryStores()

	now := time.Now().UTC()
	expired := now.Add(-time.Minute)
	alive := now.Add(time.Hour)

	require.NoError(t, stores.Logs.CreateSyncLog(ctx, &model.SynchronizationLog{
		ID: uuid.New(), SynchronizationID: "sync", Expires: &expired,
	}))
	keptLog := &model.SynchronizationLog{
		ID: uuid.New(), SynchronizationID: "sync", Expires: &alive,
	}
	require.NoError(t, stores.Logs.CreateSyncLog(ctx, keptLog))
	require.NoError(t, stores.Logs.CreateSyncLog(ctx, &model.SynchronizationLog{
		ID: uuid.New(), SynchronizationID: "sync",
	}))
	require.NoError(t, stores.Logs.CreateContractLog(ctx, &model.ContractLog{
		ID: uuid.New(), SynchronizationID: "sync", Expires: &expired,
	}))

	purged, err := stores.Logs.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	logs, err := stores.Logs.ListSyncLogs(ctx, "sync")
	require.NoError(t, err)
	// The log without an expiry and the future one survive.
	assert.Len(t, logs, 2)

	_, err = stores.Logs.GetSyncLog(ctx, keptLog.ID)
	assert.NoError(t, err)
}
