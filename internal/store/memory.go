package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openbridge/objectsync/internal/model"
)

// NewMemoryStores creates stores holding everything in process memory.
func NewMemoryStores() *Stores {
	return &Stores{
		Synchronizations: &memorySynchronizationStore{syncs: map[string]*model.Synchronization{}},
		Contracts:        &memoryContractStore{contracts: map[uuid.UUID]*model.Contract{}},
		Logs: &memoryLogStore{
			syncLogs:     map[uuid.UUID]*model.SynchronizationLog{},
			contractLogs: map[uuid.UUID]*model.ContractLog{},
		},
	}
}

type memorySynchronizationStore struct {
	mu    sync.RWMutex
	syncs map[string]*model.Synchronization
}

func (s *memorySynchronizationStore) Get(_ context.Context, id string) (*model.Synchronization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.syncs[id]
	if !ok {
		return nil, ErrSynchronizationNotFound
	}
	return cloneSynchronization(stored), nil
}

func (s *memorySynchronizationStore) List(_ context.Context) ([]*model.Synchronization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.syncs))
	for id := range s.syncs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	syncs := make([]*model.Synchronization, 0, len(ids))
	for _, id := range ids {
		syncs = append(syncs, cloneSynchronization(s.syncs[id]))
	}
	return syncs, nil
}

func (s *memorySynchronizationStore) Upsert(_ context.Context, sync *model.Synchronization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneSynchronization(sync)
	if stored.CurrentPage < 1 {
		stored.CurrentPage = 1
	}
	s.syncs[sync.ID] = stored
	return nil
}

func (s *memorySynchronizationStore) SetCurrentPage(_ context.Context, id string, page int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.syncs[id]
	if !ok {
		return ErrSynchronizationNotFound
	}
	if page < 1 {
		page = 1
	}
	stored.CurrentPage = page
	return nil
}

func (s *memorySynchronizationStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.syncs[id]; !ok {
		return ErrSynchronizationNotFound
	}
	delete(s.syncs, id)
	return nil
}

type memoryContractStore struct {
	mu        sync.RWMutex
	contracts map[uuid.UUID]*model.Contract
}

func (s *memoryContractStore) Get(_ context.Context, id uuid.UUID) (*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contract, ok := s.contracts[id]
	if !ok {
		return nil, ErrContractNotFound
	}
	return cloneContract(contract), nil
}

func (s *memoryContractStore) FindByOrigin(_ context.Context, syncID, originID string) (*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if originID == "" {
		return nil, ErrContractNotFound
	}
	for _, contract := range s.contracts {
		if contract.SynchronizationID == syncID && contract.OriginID == originID {
			return cloneContract(contract), nil
		}
	}
	return nil, ErrContractNotFound
}

func (s *memoryContractStore) FindByTarget(_ context.Context, syncID, targetID string) (*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if targetID == "" {
		return nil, ErrContractNotFound
	}
	for _, contract := range s.contracts {
		if contract.SynchronizationID == syncID && contract.TargetID == targetID {
			return cloneContract(contract), nil
		}
	}
	return nil, ErrContractNotFound
}

func (s *memoryContractStore) ListBySynchronization(_ context.Context, syncID string) ([]*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var contracts []*model.Contract
	for _, contract := range s.contracts {
		if contract.SynchronizationID == syncID {
			contracts = append(contracts, cloneContract(contract))
		}
	}
	sort.Slice(contracts, func(i, j int) bool {
		return contracts[i].Created.Before(contracts[j].Created)
	})
	return contracts, nil
}

func (s *memoryContractStore) Create(_ context.Context, contract *model.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if contract.OriginID != "" {
		for _, existing := range s.contracts {
			if existing.SynchronizationID == contract.SynchronizationID &&
				existing.OriginID == contract.OriginID {
				return ErrDuplicateContract
			}
		}
	}
	s.contracts[contract.ID] = cloneContract(contract)
	return nil
}

func (s *memoryContractStore) Update(_ context.Context, contract *model.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contracts[contract.ID]; !ok {
		return ErrContractNotFound
	}
	s.contracts[contract.ID] = cloneContract(contract)
	return nil
}

func (s *memoryContractStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contracts[id]; !ok {
		return ErrContractNotFound
	}
	delete(s.contracts, id)
	return nil
}

func (s *memoryContractStore) HandleObjectRemoval(_ context.Context, syncID, objectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if objectID == "" {
		return nil
	}
	now := time.Now().UTC()
	for id, contract := range s.contracts {
		if contract.SynchronizationID != syncID {
			continue
		}
		matched := false
		if contract.OriginID == objectID {
			contract.OriginID = ""
			contract.OriginHash = ""
			matched = true
		}
		if contract.TargetID == objectID {
			contract.TargetID = ""
			contract.TargetHash = ""
			matched = true
		}
		if !matched {
			continue
		}
		contract.Updated = now
		if contract.Orphaned() {
			delete(s.contracts, id)
		}
	}
	return nil
}

type memoryLogStore struct {
	mu           sync.RWMutex
	syncLogs     map[uuid.UUID]*model.SynchronizationLog
	contractLogs map[uuid.UUID]*model.ContractLog
}

func (s *memoryLogStore) CreateSyncLog(_ context.Context, log *model.SynchronizationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncLogs[log.ID] = cloneSyncLog(log)
	return nil
}

func (s *memoryLogStore) UpdateSyncLog(_ context.Context, log *model.SynchronizationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.syncLogs[log.ID]; !ok {
		return ErrLogNotFound
	}
	s.syncLogs[log.ID] = cloneSyncLog(log)
	return nil
}

func (s *memoryLogStore) GetSyncLog(_ context.Context, id uuid.UUID) (*model.SynchronizationLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.syncLogs[id]
	if !ok {
		return nil, ErrLogNotFound
	}
	return cloneSyncLog(log), nil
}

func (s *memoryLogStore) ListSyncLogs(_ context.Context, syncID string) ([]*model.SynchronizationLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var logs []*model.SynchronizationLog
	for _, log := range s.syncLogs {
		if log.SynchronizationID == syncID {
			logs = append(logs, cloneSyncLog(log))
		}
	}
	sort.Slice(logs, func(i, j int) bool {
		return logs[i].Created.After(logs[j].Created)
	})
	return logs, nil
}

func (s *memoryLogStore) CreateContractLog(_ context.Context, log *model.ContractLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contractLogs[log.ID] = cloneContractLog(log)
	return nil
}

func (s *memoryLogStore) ListContractLogs(_ context.Context, syncLogID uuid.UUID) ([]*model.ContractLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var logs []*model.ContractLog
	for _, log := range s.contractLogs {
		if log.SynchronizationLogID == syncLogID {
			logs = append(logs, cloneContractLog(log))
		}
	}
	sort.Slice(logs, func(i, j int) bool {
		return logs[i].Created.Before(logs[j].Created)
	})
	return logs, nil
}

func (s *memoryLogStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for id, log := range s.contractLogs {
		if log.Expires != nil && log.Expires.Before(now) {
			delete(s.contractLogs, id)
			purged++
		}
	}
	for id, log := range s.syncLogs {
		if log.Expires != nil && log.Expires.Before(now) {
			delete(s.syncLogs, id)
			purged++
		}
	}
	return purged, nil
}

// cloneSynchronization round-trips through JSON so callers can't mutate
// stored definitions through shared maps.
func cloneSynchronization(sync *model.Synchronization) *model.Synchronization {
	raw, err := json.Marshal(sync)
	if err != nil {
		copied := *sync
		return &copied
	}
	clone := &model.Synchronization{}
	if err := json.Unmarshal(raw, clone); err != nil {
		copied := *sync
		return &copied
	}
	return clone
}

func cloneContract(contract *model.Contract) *model.Contract {
	clone := *contract
	clone.SourceLastChanged = cloneTime(contract.SourceLastChanged)
	clone.SourceLastChecked = cloneTime(contract.SourceLastChecked)
	clone.SourceLastSynced = cloneTime(contract.SourceLastSynced)
	clone.TargetLastChanged = cloneTime(contract.TargetLastChanged)
	clone.TargetLastChecked = cloneTime(contract.TargetLastChecked)
	clone.TargetLastSynced = cloneTime(contract.TargetLastSynced)
	return &clone
}

func cloneSyncLog(log *model.SynchronizationLog) *model.SynchronizationLog {
	clone := *log
	clone.ContractIDs = append([]uuid.UUID(nil), log.ContractIDs...)
	clone.ContractLogIDs = append([]uuid.UUID(nil), log.ContractLogIDs...)
	clone.Expires = cloneTime(log.Expires)
	return &clone
}

func cloneContractLog(log *model.ContractLog) *model.ContractLog {
	clone := *log
	clone.Source = cloneMap(log.Source)
	clone.Target = cloneMap(log.Target)
	clone.Expires = cloneTime(log.Expires)
	return &clone
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return m
	}
	var clone map[string]any
	if err := json.Unmarshal(raw, &clone); err != nil {
		return m
	}
	return clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}
