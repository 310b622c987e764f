package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/openbridge/objectsync/internal/logic"
	"github.com/openbridge/objectsync/internal/mapping"
	"github.com/openbridge/objectsync/internal/model"
	"github.com/openbridge/objectsync/internal/rules"
	"github.com/openbridge/objectsync/internal/sources"
	"github.com/openbridge/objectsync/internal/store"
	"github.com/openbridge/objectsync/internal/targets"
)

// Outcome describes what processing one source record did.
type Outcome struct {
	// Result holds the counter deltas for this record
	Result model.RunResult

	// Contract is the contract this record resolved to; nil for records
	// that were invalid or filtered out before contract resolution
	Contract *model.Contract

	// ContractLogID is the audit record created for this object, when one
	// was
	ContractLogID uuid.UUID

	// Action is what happened to the object: a target write action, or
	// "skip", "filtered", "invalid"
	Action string
}

// Record outcomes that never reach the target.
const (
	actionSkip     = "skip"
	actionFiltered = "filtered"
	actionInvalid  = "invalid"
	actionTest     = "test"
)

// ObjectProcessor turns one fetched source record into contract state and,
// when the object changed, a target write.
type ObjectProcessor struct {
	contracts store.ContractStore
	logs      store.LogStore
	targets   targets.Registry
	rules     *rules.Engine
	mapper    *mapping.Engine
	enricher  *sources.Enricher
	logTTL    time.Duration
}

// NewObjectProcessor creates a processor writing through the given stores
// and target registry. A zero logTTL disables audit log expiry.
func NewObjectProcessor(
	stores *store.Stores,
	targetRegistry targets.Registry,
	ruleEngine *rules.Engine,
	enricher *sources.Enricher,
	logTTL time.Duration,
) *ObjectProcessor {
	return &ObjectProcessor{
		contracts: stores.Contracts,
		logs:      stores.Logs,
		targets:   targetRegistry,
		rules:     ruleEngine,
		mapper:    mapping.NewEngine(),
		enricher:  enricher,
		logTTL:    logTTL,
	}
}

// Process runs one record through condition filtering, contract resolution
// and contract synchronization.
//
// A record without a resolvable origin id aborts the whole run: continuing
// would make every such record look like a brand new object on each run.
func (p *ObjectProcessor) Process(
	ctx context.Context,
	sync *model.Synchronization,
	syncLog *model.SynchronizationLog,
	record any,
	isTest bool,
	force bool,
) (*Outcome, error) {
	data, ok := record.(map[string]any)
	if !ok {
		slog.Debug("Skipping non-object record",
			"synchronization", sync.ID,
			"type", fmt.Sprintf("%T", record))
		return &Outcome{Result: model.RunResult{Invalid: 1}, Action: actionInvalid}, nil
	}

	admitted, err := logic.Evaluate(sync.Conditions, logic.EscapeKeys(data))
	if err != nil {
		return nil, &Error{
			Err:             err,
			Message:         fmt.Sprintf("invalid conditions on synchronization %s: %v", sync.ID, err),
			ConditionType:   ConditionDataValid,
			ConditionReason: conditionReasonConfigurationInvalid,
		}
	}
	if !admitted {
		return &Outcome{Result: model.RunResult{Skipped: 1}, Action: actionFiltered}, nil
	}

	cfg, err := sources.DecodeConfig(sync)
	if err != nil {
		return nil, &Error{
			Err:             err,
			Message:         err.Error(),
			ConditionType:   ConditionSourceAvailable,
			ConditionReason: conditionReasonConfigurationInvalid,
		}
	}

	originID := originIDFromRecord(data, cfg.IDPosition)
	if originID == "" {
		return nil, &Error{
			Err:             fmt.Errorf("no value at %q", cfg.IDPosition),
			Message:         fmt.Sprintf("record without origin id at %q, aborting run", cfg.IDPosition),
			ConditionType:   ConditionDataValid,
			ConditionReason: conditionReasonOriginIDMissing,
		}
	}

	contract, err := p.resolveContract(ctx, sync, originID)
	if err != nil {
		return nil, err
	}

	return p.syncContract(ctx, sync, syncLog, contract, cfg, data, isTest, force)
}

// resolveContract finds the contract for the origin id, creating it on
// first sight.
func (p *ObjectProcessor) resolveContract(
	ctx context.Context, sync *model.Synchronization, originID string,
) (*model.Contract, error) {
	contract, err := p.contracts.FindByOrigin(ctx, sync.ID, originID)
	if err == nil {
		return contract, nil
	}
	if !errors.Is(err, store.ErrContractNotFound) {
		return nil, storageError(err)
	}

	now := time.Now().UTC()
	contract = &model.Contract{
		ID:                uuid.New(),
		SynchronizationID: sync.ID,
		OriginID:          originID,
		Created:           now,
		Updated:           now,
	}
	if err := p.contracts.Create(ctx, contract); err != nil {
		// Two runs racing on the same origin: take the winner's contract.
		if errors.Is(err, store.ErrDuplicateContract) {
			existing, findErr := p.contracts.FindByOrigin(ctx, sync.ID, originID)
			if findErr != nil {
				return nil, storageError(findErr)
			}
			return existing, nil
		}
		return nil, storageError(err)
	}
	return contract, nil
}

// originIDFromRecord resolves the dot path to the record's source-side
// identity and renders it as a string.
func originIDFromRecord(record map[string]any, path string) string {
	var current any = record
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = node[segment]
		if !ok {
			return ""
		}
	}
	return cast.ToString(current)
}

func storageError(err error) *Error {
	return &Error{
		Err:             err,
		Message:         err.Error(),
		ConditionType:   ConditionSyncSuccessful,
		ConditionReason: conditionReasonStorageFailed,
	}
}
