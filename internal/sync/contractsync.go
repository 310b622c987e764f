package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openbridge/objectsync/internal/hashing"
	"github.com/openbridge/objectsync/internal/model"
	"github.com/openbridge/objectsync/internal/sources"
	"github.com/openbridge/objectsync/internal/targets"
)

// syncContract brings one contract in line with the record fetched from
// the source.
//
// The change-detection hash is computed over the hash-mapped record, not
// the target payload. The two mappings serve different purposes: the hash
// mapping strips volatile fields so irrelevant churn doesn't trigger
// writes, while the target mapping shapes what the target receives.
func (p *ObjectProcessor) syncContract(
	ctx context.Context,
	sync *model.Synchronization,
	syncLog *model.SynchronizationLog,
	contract *model.Contract,
	cfg *sources.Config,
	record map[string]any,
	isTest bool,
	force bool,
) (*Outcome, error) {
	now := time.Now().UTC()

	enriched, err := p.enrich(ctx, cfg, record)
	if err != nil {
		return nil, &Error{
			Err:             err,
			Message:         fmt.Sprintf("enrichment failed for origin %s: %v", contract.OriginID, err),
			ConditionType:   ConditionSourceAvailable,
			ConditionReason: conditionReasonFetchFailed,
		}
	}

	originHash, err := p.originHash(sync, enriched)
	if err != nil {
		return nil, &Error{
			Err:             err,
			Message:         fmt.Sprintf("failed to hash origin %s: %v", contract.OriginID, err),
			ConditionType:   ConditionDataValid,
			ConditionReason: conditionReasonMappingFailed,
		}
	}

	contract.SourceLastChecked = &now
	sourceChanged := originHash != contract.OriginHash
	if sourceChanged {
		contract.OriginHash = originHash
		contract.SourceLastChanged = &now
	}

	action := targets.ActionUpdate
	if contract.TargetID == "" {
		action = targets.ActionCreate
	}

	if p.canSkip(sync, contract, sourceChanged, force, action) {
		contract.Updated = now
		if err := p.contracts.Update(ctx, contract); err != nil {
			return nil, storageError(err)
		}
		return &Outcome{
			Result:   model.RunResult{Skipped: 1},
			Contract: contract,
			Action:   actionSkip,
		}, nil
	}

	payload, err := p.targetPayload(sync, enriched)
	if err != nil {
		return nil, &Error{
			Err:             err,
			Message:         fmt.Sprintf("target mapping failed for origin %s: %v", contract.OriginID, err),
			ConditionType:   ConditionDataValid,
			ConditionReason: conditionReasonMappingFailed,
		}
	}

	payload, errResp, err := p.rules.ProcessRules(ctx, sync.Actions, payload, model.RuleTimingBefore, action)
	if err != nil {
		return nil, &Error{
			Err:             err,
			Message:         err.Error(),
			ConditionType:   ConditionDataValid,
			ConditionReason: conditionReasonConfigurationInvalid,
		}
	}
	if errResp != nil {
		return nil, &Error{
			Err:             fmt.Errorf("%s", errResp.String()),
			Message:         errResp.String(),
			ConditionType:   ConditionDataValid,
			ConditionReason: conditionReasonRuleRejected,
		}
	}

	targetHash, err := hashing.Object(payload)
	if err != nil {
		return nil, &Error{
			Err:             err,
			Message:         fmt.Sprintf("failed to hash target payload for origin %s: %v", contract.OriginID, err),
			ConditionType:   ConditionDataValid,
			ConditionReason: conditionReasonMappingFailed,
		}
	}

	if isTest {
		return p.finishTestRun(ctx, sync, syncLog, contract, enriched, payload, action, now)
	}

	handler, err := p.targets.CreateHandler(sync.TargetType)
	if err != nil {
		return nil, &Error{
			Err:             err,
			Message:         err.Error(),
			ConditionType:   ConditionSyncSuccessful,
			ConditionReason: conditionReasonHandlerCreation,
		}
	}

	var result *targets.Result
	switch action {
	case targets.ActionCreate:
		result, err = handler.CreateObject(ctx, sync, payload)
	default:
		result, err = handler.UpdateObject(ctx, sync, contract, payload)
	}
	if err != nil {
		return nil, &Error{
			Err:             err,
			Message:         fmt.Sprintf("target %s failed for origin %s: %v", action, contract.OriginID, err),
			ConditionType:   ConditionSyncSuccessful,
			ConditionReason: conditionReasonDispatchFailed,
		}
	}

	if action == targets.ActionCreate {
		contract.TargetID = result.TargetID
	}
	if targetHash != contract.TargetHash {
		contract.TargetHash = targetHash
		contract.TargetLastChanged = &now
	}
	contract.TargetLastChecked = &now
	contract.TargetLastSynced = &now
	contract.SourceLastSynced = &now
	contract.Updated = now

	if err := p.contracts.Update(ctx, contract); err != nil {
		return nil, storageError(err)
	}

	logID, err := p.writeContractLog(ctx, sync, syncLog, contract, enriched, payload, result.Action, now)
	if err != nil {
		return nil, err
	}

	if _, errResp, err := p.rules.ProcessRules(ctx, sync.Actions, payload, model.RuleTimingAfter, action); err != nil {
		return nil, &Error{
			Err:             err,
			Message:         err.Error(),
			ConditionType:   ConditionDataValid,
			ConditionReason: conditionReasonConfigurationInvalid,
		}
	} else if errResp != nil {
		return nil, &Error{
			Err:             fmt.Errorf("%s", errResp.String()),
			Message:         errResp.String(),
			ConditionType:   ConditionDataValid,
			ConditionReason: conditionReasonRuleRejected,
		}
	}

	outcome := &Outcome{Contract: contract, ContractLogID: logID, Action: result.Action}
	if action == targets.ActionCreate {
		outcome.Result.Created = 1
	} else {
		outcome.Result.Updated = 1
	}
	return outcome, nil
}

// enrich applies the configured sub-fetches, when any.
func (p *ObjectProcessor) enrich(
	ctx context.Context, cfg *sources.Config, record map[string]any,
) (map[string]any, error) {
	if p.enricher == nil || len(cfg.ExtraDataConfigs) == 0 {
		return record, nil
	}
	return p.enricher.Enrich(ctx, cfg, record)
}

// originHash computes the change-detection hash over the hash-mapped
// record. A broken hash mapping falls back to the raw record so a mapping
// mistake degrades to extra writes instead of lost updates.
func (p *ObjectProcessor) originHash(sync *model.Synchronization, record map[string]any) (string, error) {
	hashInput := any(record)
	if sync.SourceHashMapping != nil {
		mapped, err := p.mapper.Map(sync.SourceHashMapping, record, false)
		if err != nil {
			slog.Warn("Hash mapping failed, hashing raw record",
				"synchronization", sync.ID,
				"error", err)
		} else {
			hashInput = mapped
		}
	}
	return hashing.Object(hashInput)
}

// canSkip implements the unchanged-object fast path. An object is skipped
// only when its hash matched, it was dispatched before, and neither the
// synchronization definition nor the target mapping changed since that
// dispatch.
func (p *ObjectProcessor) canSkip(
	sync *model.Synchronization,
	contract *model.Contract,
	sourceChanged bool,
	force bool,
	action string,
) bool {
	if force || sourceChanged {
		return false
	}
	if action != targets.ActionUpdate || contract.TargetHash == "" {
		return false
	}
	if contract.SourceLastSynced == nil || contract.TargetLastSynced == nil {
		return false
	}
	if sync.UpdatedAt.After(*contract.SourceLastSynced) {
		return false
	}
	if sync.SourceTargetMapping != nil && sync.SourceTargetMapping.UpdatedAt.After(*contract.TargetLastSynced) {
		return false
	}
	return true
}

// targetPayload shapes the record for the target. No mapping means the
// record is dispatched as-is.
func (p *ObjectProcessor) targetPayload(sync *model.Synchronization, record map[string]any) (map[string]any, error) {
	if sync.SourceTargetMapping == nil {
		return record, nil
	}

	mapped, err := p.mapper.Map(sync.SourceTargetMapping, record, false)
	if err != nil {
		return nil, err
	}
	payload, ok := mapped.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("target mapping produced %T, expected an object", mapped)
	}
	return payload, nil
}

// finishTestRun records what would have happened without touching the
// target. The contract keeps its checked timestamps but is not marked
// synced, so the next real run still dispatches.
func (p *ObjectProcessor) finishTestRun(
	ctx context.Context,
	sync *model.Synchronization,
	syncLog *model.SynchronizationLog,
	contract *model.Contract,
	enriched map[string]any,
	payload map[string]any,
	action string,
	now time.Time,
) (*Outcome, error) {
	contract.Updated = now
	if err := p.contracts.Update(ctx, contract); err != nil {
		return nil, storageError(err)
	}

	logID, err := p.writeContractLog(ctx, sync, syncLog, contract, enriched, payload, actionTest, now)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Contract: contract, ContractLogID: logID, Action: actionTest}
	if action == targets.ActionCreate {
		outcome.Result.Created = 1
	} else {
		outcome.Result.Updated = 1
	}
	return outcome, nil
}

func (p *ObjectProcessor) writeContractLog(
	ctx context.Context,
	sync *model.Synchronization,
	syncLog *model.SynchronizationLog,
	contract *model.Contract,
	source map[string]any,
	target map[string]any,
	targetResult string,
	now time.Time,
) (uuid.UUID, error) {
	log := &model.ContractLog{
		ID:                   uuid.New(),
		SynchronizationID:    sync.ID,
		SynchronizationLogID: syncLog.ID,
		ContractID:           contract.ID,
		Source:               source,
		Target:               target,
		TargetResult:         targetResult,
		Test:                 syncLog.Test,
		Force:                syncLog.Force,
		Created:              now,
	}
	if p.logTTL > 0 {
		expires := now.Add(p.logTTL)
		log.Expires = &expires
	}

	if err := p.logs.CreateContractLog(ctx, log); err != nil {
		return uuid.Nil, storageError(err)
	}
	return log.ID, nil
}
