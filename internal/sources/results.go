package sources

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Fallback record-list keys tried when no results position is configured.
var defaultResultsPositions = []string{"results", "items", "data"}

// extractRecords locates the record list inside a JSON response body.
//
// With a configured position, the value at that path is used: lists are
// returned element-wise, a single object is wrapped in a one-element list.
// The ResultsPositionRoot sentinel wraps the whole body as one record.
// Without a position, well-known list keys are tried before falling back
// to the body itself.
func extractRecords(body []byte, resultsPosition string) ([]any, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("response is not valid JSON")
	}

	if resultsPosition == ResultsPositionRoot {
		record, err := decodeBody(body)
		if err != nil {
			return nil, err
		}
		return []any{record}, nil
	}

	if resultsPosition != "" {
		result := gjson.GetBytes(body, resultsPosition)
		if !result.Exists() {
			return nil, fmt.Errorf("results position %q not found in response", resultsPosition)
		}
		return resultToRecords(result), nil
	}

	parsed := gjson.ParseBytes(body)
	if parsed.IsArray() {
		return resultToRecords(parsed), nil
	}

	for _, key := range defaultResultsPositions {
		if candidate := parsed.Get(key); candidate.Exists() && candidate.IsArray() {
			return resultToRecords(candidate), nil
		}
	}

	// The whole response is one record.
	record, err := decodeBody(body)
	if err != nil {
		return nil, err
	}
	return []any{record}, nil
}

func resultToRecords(result gjson.Result) []any {
	if result.IsArray() {
		raw := result.Array()
		records := make([]any, len(raw))
		for i, item := range raw {
			records[i] = item.Value()
		}
		return records
	}
	return []any{result.Value()}
}

func decodeBody(body []byte) (any, error) {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return decoded, nil
}
