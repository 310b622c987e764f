package sources

import (
	"encoding/json"
	"fmt"

	"github.com/openbridge/objectsync/internal/model"
)

// ResultsPositionRoot marks the whole response body as one record.
const ResultsPositionRoot = "_root"

// defaultPageParameter is the query parameter used for pagination when the
// configuration does not name one.
const defaultPageParameter = "page"

// Config is the typed view over a synchronization's free-form source
// configuration map.
type Config struct {
	// Endpoint is the base URL records are fetched from
	Endpoint string `json:"endpoint,omitempty"`

	// Headers are sent with every request
	Headers map[string]string `json:"headers,omitempty"`

	// Query parameters are sent with every request
	Query map[string]string `json:"query,omitempty"`

	// ResultsPosition is the dot path to the record list inside a
	// response; the ResultsPositionRoot sentinel selects the whole body
	ResultsPosition string `json:"resultsPosition,omitempty"`

	// IDPosition is the dot path to a record's origin id; defaults to "id"
	IDPosition string `json:"idPosition,omitempty"`

	// UsesPagination toggles the page query parameter; nil means enabled
	UsesPagination *bool `json:"usesPagination,omitempty"`

	// PaginationQuery names the page query parameter; defaults to "page"
	PaginationQuery string `json:"paginationQuery,omitempty"`

	// RateLimited marks sources that throttle; their runs resume from the
	// persisted page cursor after a rate-limit abort
	RateLimited bool `json:"rateLimited,omitempty"`

	// ExtraDataConfigs are per-record enrichment sub-fetches applied in
	// order
	ExtraDataConfigs []model.ExtraDataConfig `json:"extraDataConfigs,omitempty"`

	// Path is the document path for file sources
	Path string `json:"path,omitempty"`

	// Register is the register identifier for register sources
	Register string `json:"register,omitempty"`

	// SQL is the query run by database sources; each row becomes a record
	SQL string `json:"sql,omitempty"`
}

// DecodeConfig extracts the typed source configuration from the free-form
// map.
func DecodeConfig(sync *model.Synchronization) (*Config, error) {
	raw, err := json.Marshal(sync.SourceConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize source config: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("invalid source config: %w", err)
	}

	if cfg.IDPosition == "" {
		cfg.IDPosition = "id"
	}
	if cfg.PaginationQuery == "" {
		cfg.PaginationQuery = defaultPageParameter
	}
	return cfg, nil
}

// Paginates reports whether the page query parameter is sent.
func (c *Config) Paginates() bool {
	return c.UsesPagination == nil || *c.UsesPagination
}
