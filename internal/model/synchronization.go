// Package model defines the persistent shapes used by the synchronization
// engine: synchronization definitions, per-object contracts and audit logs.
package model

import (
	"encoding/json"
	"time"
)

// Source types understood by the source handler factory.
const (
	// SourceTypeAPI is a generic JSON HTTP API source
	SourceTypeAPI = "api"

	// SourceTypeJSONAPI is a JSON:API flavoured HTTP source
	SourceTypeJSONAPI = "json-api"

	// SourceTypeXML is an XML-over-HTTP source
	SourceTypeXML = "xml"

	// SourceTypeSOAP is a SOAP endpoint source
	SourceTypeSOAP = "soap"

	// SourceTypeFile is a local JSON document source, used to replay
	// captured payloads
	SourceTypeFile = "file"

	// SourceTypeDatabase is a SQL query source
	SourceTypeDatabase = "database"

	// SourceTypeRegister is the internal object register source
	SourceTypeRegister = "register"
)

// Target types understood by the target handler registry.
const (
	// TargetTypeAPI writes objects to an HTTP API
	TargetTypeAPI = "api"

	// TargetTypeRegister writes objects to the internal object register
	TargetTypeRegister = "register"
)

// Rule timings relative to the target write.
const (
	RuleTimingBefore = "before"
	RuleTimingAfter  = "after"
)

// Synchronization is a long-lived definition describing how objects flow
// from one source to one target.
type Synchronization struct {
	// ID is the identifier for this synchronization
	ID string `json:"id" yaml:"id"`

	// Name is a human readable label
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// SourceID identifies the external source instance
	SourceID string `json:"sourceId" yaml:"sourceId"`

	// SourceType selects the source handler (api, json-api, xml, soap,
	// file, register)
	SourceType string `json:"sourceType" yaml:"sourceType"`

	// SourceConfig is the free-form source configuration map. Known keys
	// are documented on sources.Config.
	SourceConfig map[string]any `json:"sourceConfig,omitempty" yaml:"sourceConfig,omitempty"`

	// TargetID identifies the target instance
	TargetID string `json:"targetId" yaml:"targetId"`

	// TargetType selects the target handler (api, register)
	TargetType string `json:"targetType" yaml:"targetType"`

	// TargetConfig is the free-form target configuration map
	TargetConfig map[string]any `json:"targetConfig,omitempty" yaml:"targetConfig,omitempty"`

	// SourceTargetMapping transforms a source record into the payload sent
	// to the target. Nil means the record is sent as-is.
	SourceTargetMapping *Mapping `json:"sourceTargetMapping,omitempty" yaml:"sourceTargetMapping,omitempty"`

	// SourceHashMapping strips volatile fields before the change-detection
	// hash is computed. It is intentionally distinct from
	// SourceTargetMapping and the two are never collapsed.
	SourceHashMapping *Mapping `json:"sourceHashMapping,omitempty" yaml:"sourceHashMapping,omitempty"`

	// Conditions is a boolean-logic tree gating whether a record
	// participates at all. An empty tree admits every record.
	Conditions map[string]any `json:"conditions,omitempty" yaml:"conditions,omitempty"`

	// Actions are the ordered rules invoked around target writes
	Actions []Rule `json:"actions,omitempty" yaml:"actions,omitempty"`

	// FollowUps are synchronization ids run after this one completes
	FollowUps []string `json:"followUps,omitempty" yaml:"followUps,omitempty"`

	// CurrentPage is the pagination cursor used to resume after a
	// rate-limited run. 0 and 1 both mean "start from the first page".
	CurrentPage int `json:"currentPage,omitempty" yaml:"currentPage,omitempty"`

	// UpdatedAt is bumped on configuration edits; the contract sync
	// compares it against contract timestamps to force reprocessing
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// Mapping is a declarative record transformation: target path to source
// path-or-template entries, followed by unsets and a cast pipeline.
type Mapping struct {
	// Mapping maps target dot-paths to a source dot-path or, when the
	// value does not resolve as a path, a template string rendered
	// against the input record
	Mapping map[string]string `json:"mapping,omitempty" yaml:"mapping,omitempty"`

	// Unset lists output paths removed after mapping
	Unset []string `json:"unset,omitempty" yaml:"unset,omitempty"`

	// Cast maps output paths to one or more cast operators applied in
	// sequence
	Cast map[string]CastList `json:"cast,omitempty" yaml:"cast,omitempty"`

	// PassThrough starts the output as a copy of the input instead of an
	// empty map
	PassThrough bool `json:"passThrough,omitempty" yaml:"passThrough,omitempty"`

	// UpdatedAt is bumped on mapping edits
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// CastList is a sequence of cast operators. It unmarshals from either a
// single string or a list of strings.
type CastList []string

// UnmarshalJSON accepts "int" as well as ["string","unsetIfEmpty"].
func (c *CastList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*c = CastList{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*c = CastList(list)
	return nil
}

// UnmarshalYAML accepts the same scalar-or-list forms from YAML configs.
func (c *CastList) UnmarshalYAML(unmarshal func(any) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		*c = CastList{single}
		return nil
	}
	var list []string
	if err := unmarshal(&list); err != nil {
		return err
	}
	*c = CastList(list)
	return nil
}

// Rule is an ordered, condition-gated hook executed before or after a
// target write.
type Rule struct {
	// Name is a human readable label used in logs
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Action scopes the rule to a write action (create, update, delete);
	// empty matches every action
	Action string `json:"action,omitempty" yaml:"action,omitempty"`

	// Timing is "before" or "after" the target write
	Timing string `json:"timing" yaml:"timing"`

	// Conditions gates the rule per record; empty always applies
	Conditions map[string]any `json:"conditions,omitempty" yaml:"conditions,omitempty"`

	// Type selects the rule handler
	Type string `json:"type" yaml:"type"`

	// Configuration is handler-specific
	Configuration map[string]any `json:"configuration,omitempty" yaml:"configuration,omitempty"`

	// Order sorts rules within a timing; ties keep definition order
	Order int `json:"order,omitempty" yaml:"order,omitempty"`
}

// ExtraDataConfig describes a per-record enrichment sub-fetch.
type ExtraDataConfig struct {
	// DynamicEndpointLocation is a dot path inside the record holding the
	// endpoint to call. Mutually exclusive with StaticEndpoint.
	DynamicEndpointLocation string `json:"dynamicEndpointLocation,omitempty" yaml:"dynamicEndpointLocation,omitempty"`

	// StaticEndpoint is an endpoint template; {{originId}} and
	// {{subObjectId}} placeholders are substituted from the record
	StaticEndpoint string `json:"staticEndpoint,omitempty" yaml:"staticEndpoint,omitempty"`

	// EndpointIDLocation overrides where the origin id is read from for
	// the {{originId}} placeholder
	EndpointIDLocation string `json:"endpointIdLocation,omitempty" yaml:"endpointIdLocation,omitempty"`

	// SubObjectID is a dot path resolving the {{subObjectId}} placeholder
	SubObjectID string `json:"subObjectId,omitempty" yaml:"subObjectId,omitempty"`

	// UnsetConfigKey removes a key from the record after enrichment
	UnsetConfigKey string `json:"unsetConfigKey,omitempty" yaml:"unsetConfigKey,omitempty"`

	// ExtraDataConfigPerResult applies a nested enrichment to every item
	// of a fetched list
	ExtraDataConfigPerResult *ExtraDataConfig `json:"extraDataConfigPerResult,omitempty" yaml:"extraDataConfigPerResult,omitempty"`

	// ResultsLocation is a dot path into the sub-fetch response selecting
	// the data to attach
	ResultsLocation string `json:"resultsLocation,omitempty" yaml:"resultsLocation,omitempty"`

	// KeyToSetExtraData attaches the fetched data under this key; empty
	// defaults to the endpoint string
	KeyToSetExtraData string `json:"keyToSetExtraData,omitempty" yaml:"keyToSetExtraData,omitempty"`

	// MergeExtraData merges fetched map data into the record instead of
	// attaching it under a key
	MergeExtraData bool `json:"mergeExtraData,omitempty" yaml:"mergeExtraData,omitempty"`
}
