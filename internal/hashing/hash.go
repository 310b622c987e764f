// Package hashing computes stable content hashes over records for change
// detection. Records are serialized to canonical JSON (object keys sorted,
// no insignificant whitespace) before hashing, so two structurally equal
// records always produce the same hash.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Object returns the SHA-256 hex digest of the canonical serialization of v.
func Object(v any) (string, error) {
	var builder strings.Builder
	if err := writeCanonical(&builder, v); err != nil {
		return "", err
	}
	digest := sha256.Sum256([]byte(builder.String()))
	return hex.EncodeToString(digest[:]), nil
}

func writeCanonical(builder *strings.Builder, v any) error {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		builder.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				builder.WriteByte(',')
			}
			if err := writeScalar(builder, k); err != nil {
				return err
			}
			builder.WriteByte(':')
			if err := writeCanonical(builder, t[k]); err != nil {
				return err
			}
		}
		builder.WriteByte('}')
		return nil
	case []any:
		builder.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				builder.WriteByte(',')
			}
			if err := writeCanonical(builder, item); err != nil {
				return err
			}
		}
		builder.WriteByte(']')
		return nil
	default:
		return writeScalar(builder, v)
	}
}

func writeScalar(builder *strings.Builder, v any) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize value for hashing: %w", err)
	}
	builder.Write(encoded)
	return nil
}
