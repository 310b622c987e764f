// Package sync implements the synchronization engine: it fetches records
// from a source, decides per object whether anything changed, maps and
// dispatches changed objects to the target, and reconciles objects that
// disappeared from the source.
package sync

// Condition types attached to structured run errors. Operators use them to
// tell configuration problems apart from transient source or target
// failures.
const (
	// ConditionSourceAvailable indicates whether the source is available
	// and accessible
	ConditionSourceAvailable = "SourceAvailable"

	// ConditionDataValid indicates whether the fetched records are usable
	ConditionDataValid = "DataValid"

	// ConditionSyncSuccessful indicates whether the run completed
	ConditionSyncSuccessful = "SyncSuccessful"
)

// Condition reasons for structured run errors.
const (
	conditionReasonConfigurationInvalid = "ConfigurationInvalid"
	conditionReasonHandlerCreation      = "HandlerCreationFailed"
	conditionReasonFetchFailed          = "FetchFailed"
	conditionReasonOriginIDMissing      = "OriginIdMissing"
	conditionReasonMappingFailed        = "MappingFailed"
	conditionReasonRuleRejected         = "RuleRejected"
	conditionReasonDispatchFailed       = "DispatchFailed"
	conditionReasonStorageFailed        = "StorageFailed"
)

// Error is a structured run error carrying condition information.
type Error struct {
	Err             error
	Message         string
	ConditionType   string
	ConditionReason string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
