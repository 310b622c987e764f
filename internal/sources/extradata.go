package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"

	"github.com/openbridge/objectsync/internal/httpclient"
	"github.com/openbridge/objectsync/internal/model"
)

// Placeholders substituted into static extra-data endpoint templates.
const (
	placeholderOriginID    = "{{originId}}"
	placeholderSubObjectID = "{{subObjectId}}"
)

// Enricher performs the per-record extra-data sub-fetches configured on a
// source.
type Enricher struct {
	client httpclient.Client
}

// NewEnricher creates a new extra-data enricher.
func NewEnricher(client httpclient.Client) *Enricher {
	return &Enricher{client: client}
}

// Enrich applies every configured extra-data fetch to the record and
// returns the enriched copy. The input record is not modified.
func (e *Enricher) Enrich(ctx context.Context, cfg *Config, record map[string]any) (map[string]any, error) {
	if len(cfg.ExtraDataConfigs) == 0 {
		return record, nil
	}

	enriched := copyRecord(record)
	for i := range cfg.ExtraDataConfigs {
		var err error
		enriched, err = e.enrichOne(ctx, cfg, &cfg.ExtraDataConfigs[i], enriched)
		if err != nil {
			return nil, fmt.Errorf("extra data config %d: %w", i, err)
		}
	}
	return enriched, nil
}

// enrichOne applies a single extra-data config: resolve the endpoint,
// fetch, optionally recurse per result item, then attach or merge.
func (e *Enricher) enrichOne(
	ctx context.Context,
	cfg *Config,
	edc *model.ExtraDataConfig,
	record map[string]any,
) (map[string]any, error) {
	endpoint, ok := resolveEndpoint(cfg, edc, record)
	if !ok {
		// A record without the dynamic endpoint simply has no extra data.
		slog.Debug("Skipping extra data fetch, endpoint not resolvable",
			"dynamicLocation", edc.DynamicEndpointLocation)
		return record, nil
	}

	body, err := e.client.Do(ctx, httpclient.Request{
		URL:     absoluteEndpoint(cfg.Endpoint, endpoint),
		Headers: cfg.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}

	extra, err := extractExtraData(body, edc.ResultsLocation)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}

	if edc.ExtraDataConfigPerResult != nil {
		extra, err = e.enrichPerResult(ctx, cfg, edc.ExtraDataConfigPerResult, extra)
		if err != nil {
			return nil, err
		}
	}

	out := copyRecord(record)
	if edc.UnsetConfigKey != "" {
		delete(out, edc.UnsetConfigKey)
	}

	if edc.MergeExtraData {
		merged, ok := extra.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot merge non-object extra data (%T) into record", extra)
		}
		for k, v := range merged {
			out[k] = v
		}
		return out, nil
	}

	key := edc.KeyToSetExtraData
	if key == "" {
		key = endpoint
	}
	out[key] = extra
	return out, nil
}

// enrichPerResult applies a nested config to every item of a fetched list.
func (e *Enricher) enrichPerResult(
	ctx context.Context,
	cfg *Config,
	nested *model.ExtraDataConfig,
	extra any,
) (any, error) {
	items, ok := extra.([]any)
	if !ok {
		return nil, fmt.Errorf("extraDataConfigPerResult requires a list result, got %T", extra)
	}

	out := make([]any, len(items))
	for i, item := range items {
		record, ok := item.(map[string]any)
		if !ok {
			out[i] = item
			continue
		}
		enriched, err := e.enrichOne(ctx, cfg, nested, record)
		if err != nil {
			return nil, fmt.Errorf("result item %d: %w", i, err)
		}
		out[i] = enriched
	}
	return out, nil
}

// resolveEndpoint determines the sub-fetch endpoint for a record. The
// second return is false when no endpoint can be resolved for this record.
func resolveEndpoint(cfg *Config, edc *model.ExtraDataConfig, record map[string]any) (string, bool) {
	if edc.DynamicEndpointLocation != "" {
		value, ok := lookupRecordPath(record, edc.DynamicEndpointLocation)
		if !ok {
			return "", false
		}
		endpoint, err := cast.ToStringE(value)
		if err != nil || endpoint == "" {
			return "", false
		}
		return endpoint, true
	}

	if edc.StaticEndpoint == "" {
		return "", false
	}

	endpoint := edc.StaticEndpoint
	if strings.Contains(endpoint, placeholderOriginID) {
		idPath := edc.EndpointIDLocation
		if idPath == "" {
			idPath = cfg.IDPosition
		}
		value, ok := lookupRecordPath(record, idPath)
		if !ok {
			return "", false
		}
		endpoint = strings.ReplaceAll(endpoint, placeholderOriginID, cast.ToString(value))
	}
	if strings.Contains(endpoint, placeholderSubObjectID) {
		value, ok := lookupRecordPath(record, edc.SubObjectID)
		if !ok {
			return "", false
		}
		endpoint = strings.ReplaceAll(endpoint, placeholderSubObjectID, cast.ToString(value))
	}
	return endpoint, true
}

// absoluteEndpoint joins a relative endpoint onto the source base URL.
func absoluteEndpoint(base, endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(endpoint, "/")
}

// extractExtraData selects the data to attach from the sub-fetch response.
func extractExtraData(body []byte, resultsLocation string) (any, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("extra data response is not valid JSON")
	}

	if resultsLocation != "" {
		result := gjson.GetBytes(body, resultsLocation)
		if !result.Exists() {
			return nil, fmt.Errorf("results location %q not found in extra data response", resultsLocation)
		}
		return result.Value(), nil
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode extra data response: %w", err)
	}
	return decoded, nil
}

// lookupRecordPath resolves a dot path inside a record.
func lookupRecordPath(record map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var current any = record
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func copyRecord(record map[string]any) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = v
	}
	return out
}
