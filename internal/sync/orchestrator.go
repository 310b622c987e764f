package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/openbridge/objectsync/internal/model"
	otelutil "github.com/openbridge/objectsync/internal/otel"
	"github.com/openbridge/objectsync/internal/rules"
	"github.com/openbridge/objectsync/internal/sources"
	"github.com/openbridge/objectsync/internal/store"
	"github.com/openbridge/objectsync/internal/targets"
)

// messageSuccess is recorded on run logs of completed runs.
const messageSuccess = "Success"

// Metrics receives per-run measurements. Implementations must tolerate
// concurrent calls.
type Metrics interface {
	RecordRun(ctx context.Context, syncID string, duration time.Duration, result model.RunResult, success bool)
}

// RunOptions modify how a run executes.
type RunOptions struct {
	// Test runs read-only: records are fetched, mapped and logged but the
	// target is never written and contracts are not marked synced
	Test bool

	// Force dispatches every record regardless of hash equality
	Force bool
}

// Orchestrator executes synchronization runs end to end: fetch, per-object
// processing, orphan reconciliation, audit logging and follow-up runs.
type Orchestrator struct {
	stores    *store.Stores
	sources   sources.HandlerFactory
	targets   targets.Registry
	processor *ObjectProcessor
	metrics   Metrics
	tracer    trace.Tracer
	logTTL    time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics attaches run metrics.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracerProvider attaches run tracing. Every run, including follow-up
// runs, gets its own span.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		if tp != nil {
			o.tracer = tp.Tracer("github.com/openbridge/objectsync/internal/sync")
		}
	}
}

// WithLogRetention sets how long run and contract logs are kept. Zero
// disables expiry.
func WithLogRetention(ttl time.Duration) Option {
	return func(o *Orchestrator) { o.logTTL = ttl }
}

// WithRuleEngine replaces the default rule engine.
func WithRuleEngine(engine *rules.Engine) Option {
	return func(o *Orchestrator) {
		o.processor.rules = engine
	}
}

// WithEnricher attaches the per-record enrichment fetcher.
func WithEnricher(enricher *sources.Enricher) Option {
	return func(o *Orchestrator) {
		o.processor.enricher = enricher
	}
}

// NewOrchestrator wires the run pipeline together.
func NewOrchestrator(
	stores *store.Stores,
	sourceFactory sources.HandlerFactory,
	targetRegistry targets.Registry,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		stores:    stores,
		sources:   sourceFactory,
		targets:   targetRegistry,
		processor: NewObjectProcessor(stores, targetRegistry, rules.NewEngine(), nil, 0),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.processor.logTTL = o.logTTL
	return o
}

// Run executes one synchronization run and returns its finalized run log.
//
// A rate-limited fetch is not a failure: the records fetched so far are
// processed, the page cursor is persisted, the run log is finalized, and
// the rate-limit error is returned so the caller can schedule a resume.
func (o *Orchestrator) Run(ctx context.Context, syncID string, opts RunOptions) (*model.SynchronizationLog, error) {
	return o.run(ctx, syncID, opts, map[string]bool{})
}

func (o *Orchestrator) run(
	ctx context.Context, syncID string, opts RunOptions, visited map[string]bool,
) (*model.SynchronizationLog, error) {
	if visited[syncID] {
		slog.Warn("Follow-up cycle detected, not running again", "synchronization", syncID)
		return nil, nil
	}
	visited[syncID] = true

	ctx, span := otelutil.StartSpan(ctx, o.tracer, "sync.run",
		trace.WithAttributes(
			otelutil.AttrSynchronizationID.String(syncID),
			otelutil.AttrRunTest.Bool(opts.Test),
			otelutil.AttrRunForce.Bool(opts.Force),
		))
	defer span.End()

	sync, err := o.stores.Synchronizations.Get(ctx, syncID)
	if err != nil {
		otelutil.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		otelutil.AttrSourceType.String(sync.SourceType),
		otelutil.AttrTargetType.String(sync.TargetType),
	)

	started := time.Now()
	syncLog := &model.SynchronizationLog{
		ID:                uuid.New(),
		SynchronizationID: sync.ID,
		Test:              opts.Test,
		Force:             opts.Force,
		Created:           started.UTC(),
	}
	if o.logTTL > 0 {
		expires := started.UTC().Add(o.logTTL)
		syncLog.Expires = &expires
	}
	if err := o.stores.Logs.CreateSyncLog(ctx, syncLog); err != nil {
		otelutil.RecordError(span, err)
		return nil, storageError(err)
	}

	slog.Info("Starting synchronization run",
		"synchronization", sync.ID,
		"test", opts.Test,
		"force", opts.Force)

	result, deferred, runErr := o.execute(ctx, sync, syncLog, opts)
	span.SetAttributes(otelutil.AttrResultCount.Int(result.Found))

	syncLog.Result = result
	syncLog.ExecutionTime = time.Since(started).Milliseconds()
	switch {
	case runErr != nil:
		syncLog.Message = runErr.Error()
	case deferred != nil:
		syncLog.Message = deferred.Error()
	default:
		syncLog.Message = messageSuccess
	}
	if err := o.stores.Logs.UpdateSyncLog(ctx, syncLog); err != nil {
		slog.Error("Failed to finalize run log",
			"synchronization", sync.ID,
			"log", syncLog.ID,
			"error", err)
	}

	if o.metrics != nil {
		o.metrics.RecordRun(ctx, sync.ID, time.Since(started), result, runErr == nil)
	}

	if runErr != nil {
		otelutil.RecordError(span, runErr)
		slog.Error("Synchronization run failed",
			"synchronization", sync.ID,
			"error", runErr)
		return syncLog, runErr
	}

	slog.Info("Synchronization run finished",
		"synchronization", sync.ID,
		"found", result.Found,
		"created", result.Created,
		"updated", result.Updated,
		"deleted", result.Deleted,
		"skipped", result.Skipped,
		"invalid", result.Invalid,
		"durationMs", syncLog.ExecutionTime)

	if deferred != nil {
		// Resume from the persisted cursor on the next run; follow-ups
		// wait for a complete run.
		return syncLog, deferred
	}

	for _, followUp := range sync.FollowUps {
		if _, err := o.run(ctx, followUp, opts, visited); err != nil {
			return syncLog, fmt.Errorf("follow-up %s: %w", followUp, err)
		}
	}
	return syncLog, nil
}

// execute performs the fetch and processing phases. deferred carries the
// rate-limit error of an interrupted fetch, distinct from a fatal run
// error: partial results are still processed and logged before the caller
// re-raises it.
func (o *Orchestrator) execute(
	ctx context.Context,
	sync *model.Synchronization,
	syncLog *model.SynchronizationLog,
	opts RunOptions,
) (result model.RunResult, deferred error, fatal error) {
	if sync.SourceID == "" {
		return result, nil, &Error{
			Err:             errors.New("sourceId is empty"),
			Message:         fmt.Sprintf("synchronization %s has no source id", sync.ID),
			ConditionType:   ConditionSourceAvailable,
			ConditionReason: conditionReasonConfigurationInvalid,
		}
	}

	handler, err := o.sources.CreateHandler(sync.SourceType)
	if err != nil {
		return result, nil, &Error{
			Err:             err,
			Message:         err.Error(),
			ConditionType:   ConditionSourceAvailable,
			ConditionReason: conditionReasonHandlerCreation,
		}
	}
	if err := handler.Validate(sync); err != nil {
		return result, nil, &Error{
			Err:             err,
			Message:         err.Error(),
			ConditionType:   ConditionSourceAvailable,
			ConditionReason: conditionReasonConfigurationInvalid,
		}
	}

	targetHandler, err := o.targets.CreateHandler(sync.TargetType)
	if err != nil {
		return result, nil, &Error{
			Err:             err,
			Message:         err.Error(),
			ConditionType:   ConditionSyncSuccessful,
			ConditionReason: conditionReasonHandlerCreation,
		}
	}

	resumed := sync.CurrentPage > 1

	records, fetchErr := handler.FetchAll(ctx, sync, opts.Test)
	if fetchErr != nil {
		if !errors.Is(fetchErr, sources.ErrRateLimited) {
			return result, nil, &Error{
				Err:             fetchErr,
				Message:         fmt.Sprintf("fetch failed for synchronization %s: %v", sync.ID, fetchErr),
				ConditionType:   ConditionSourceAvailable,
				ConditionReason: conditionReasonFetchFailed,
			}
		}
		deferred = fetchErr
		slog.Warn("Source rate limited, processing partial results",
			"synchronization", sync.ID,
			"resumePage", sync.CurrentPage,
			"records", len(records))
	}

	// Persist the in-memory cursor the source handler left behind.
	if !opts.Test {
		if err := o.stores.Synchronizations.SetCurrentPage(ctx, sync.ID, sync.CurrentPage); err != nil {
			return result, deferred, storageError(err)
		}
	}

	result.Found = len(records)

	seen := make(map[uuid.UUID]bool)
	keepTargetIDs := make([]string, 0, len(records))
	for _, record := range records {
		outcome, err := o.processor.Process(ctx, sync, syncLog, record, opts.Test, opts.Force)
		if err != nil {
			return result, deferred, err
		}

		result.Add(outcome.Result)
		if outcome.Contract != nil {
			if !seen[outcome.Contract.ID] {
				seen[outcome.Contract.ID] = true
				syncLog.ContractIDs = append(syncLog.ContractIDs, outcome.Contract.ID)
			}
			if outcome.Contract.TargetID != "" {
				keepTargetIDs = append(keepTargetIDs, outcome.Contract.TargetID)
			}
		}
		if outcome.ContractLogID != uuid.Nil {
			syncLog.ContractLogIDs = append(syncLog.ContractLogIDs, outcome.ContractLogID)
		}
	}

	// Orphan reconciliation needs the complete source picture: test runs
	// never delete, rate-limited partial runs would mistake every unfetched
	// object for a removed one, and a resumed run only saw the pages after
	// the cursor.
	if !opts.Test && deferred == nil && !resumed {
		deleted, err := o.reconcileOrphans(ctx, sync, syncLog, targetHandler, seen, keepTargetIDs)
		result.Deleted += deleted
		if err != nil {
			return result, deferred, err
		}
	}

	return result, deferred, nil
}

// reconcileOrphans removes target objects whose source counterpart no
// longer appears in the fetched set, then lets the target handler clean up
// objects that have no contract at all.
func (o *Orchestrator) reconcileOrphans(
	ctx context.Context,
	sync *model.Synchronization,
	syncLog *model.SynchronizationLog,
	targetHandler targets.Handler,
	seen map[uuid.UUID]bool,
	keepTargetIDs []string,
) (int, error) {
	contracts, err := o.stores.Contracts.ListBySynchronization(ctx, sync.ID)
	if err != nil {
		return 0, storageError(err)
	}

	deleted := 0
	now := time.Now().UTC()
	for _, contract := range contracts {
		if seen[contract.ID] {
			continue
		}

		if contract.TargetID == "" {
			// Source object gone before anything reached the target.
			if err := o.stores.Contracts.Delete(ctx, contract.ID); err != nil &&
				!errors.Is(err, store.ErrContractNotFound) {
				return deleted, storageError(err)
			}
			continue
		}

		result, err := targetHandler.DeleteObject(ctx, sync, contract)
		if err != nil {
			return deleted, &Error{
				Err:             err,
				Message:         fmt.Sprintf("target delete failed for contract %s: %v", contract.ID, err),
				ConditionType:   ConditionSyncSuccessful,
				ConditionReason: conditionReasonDispatchFailed,
			}
		}

		logID, logErr := o.processor.writeContractLog(
			ctx, sync, syncLog, contract, nil, nil, result.Action, now)
		if logErr != nil {
			return deleted, logErr
		}
		syncLog.ContractIDs = append(syncLog.ContractIDs, contract.ID)
		syncLog.ContractLogIDs = append(syncLog.ContractLogIDs, logID)

		if err := o.stores.Contracts.Delete(ctx, contract.ID); err != nil &&
			!errors.Is(err, store.ErrContractNotFound) {
			return deleted, storageError(err)
		}
		deleted++
	}

	swept, err := targetHandler.DeleteInvalidObjects(ctx, sync, keepTargetIDs)
	deleted += swept
	if err != nil {
		return deleted, &Error{
			Err:             err,
			Message:         fmt.Sprintf("orphan cleanup failed for synchronization %s: %v", sync.ID, err),
			ConditionType:   ConditionSyncSuccessful,
			ConditionReason: conditionReasonDispatchFailed,
		}
	}
	return deleted, nil
}
