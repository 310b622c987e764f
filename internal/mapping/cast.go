package mapping

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/openbridge/objectsync/internal/model"
)

// Parameterized cast prefixes.
const (
	castUnsetIfValue   = "unsetIfValue=="
	castSetNullIfValue = "setNullIfValue=="
	castCountValue     = "countValue:"
)

// applyCasts runs the cast pipeline over output. Each path may carry
// several operators applied in sequence; unknown operator names are
// no-ops. Operators that unset their key stop the pipeline for that path.
func applyCasts(casts map[string]model.CastList, output map[string]any) error {
	// Sorted iteration keeps behavior deterministic when one cast writes
	// a path another cast reads.
	paths := make([]string, 0, len(casts))
	for path := range casts {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		segments := parsePath(path)
		for _, op := range casts[path] {
			value, ok := getPath(output, segments)
			if !ok {
				break
			}
			removed, err := applyCast(op, path, segments, value, output)
			if err != nil {
				return fmt.Errorf("cast %q on %q: %w", op, path, err)
			}
			if removed {
				break
			}
		}
	}
	return nil
}

// applyCast applies one operator. It returns true when the key was unset.
func applyCast(op, path string, segments []string, value any, output map[string]any) (bool, error) {
	switch {
	case op == "string":
		setPath(output, segments, cast.ToString(value))
	case op == "int":
		n, err := cast.ToIntE(value)
		if err != nil {
			return false, err
		}
		setPath(output, segments, n)
	case op == "float":
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return false, err
		}
		setPath(output, segments, f)
	case op == "bool":
		b, err := cast.ToBoolE(value)
		if err != nil {
			return false, err
		}
		setPath(output, segments, b)
	case op == "array":
		decoded, err := decodeArray(value)
		if err != nil {
			return false, err
		}
		setPath(output, segments, decoded)
	case op == "split":
		parts := strings.Split(cast.ToString(value), ",")
		list := make([]any, len(parts))
		for i, p := range parts {
			list[i] = strings.TrimSpace(p)
		}
		setPath(output, segments, list)
	case op == "coordinates":
		coords, err := parseCoordinates(value)
		if err != nil {
			return false, err
		}
		setPath(output, segments, coords)
	case op == "toYesNo":
		b, err := cast.ToBoolE(value)
		if err == nil && b {
			setPath(output, segments, "yes")
		} else {
			setPath(output, segments, "no")
		}
	case op == "unsetIfNull":
		if value == nil {
			deletePath(output, segments)
			return true, nil
		}
	case op == "unsetIfFalse":
		if b, err := cast.ToBoolE(value); err == nil && !b {
			deletePath(output, segments)
			return true, nil
		}
	case op == "unsetIfEmpty":
		if s, ok := value.(string); ok && s == "" {
			deletePath(output, segments)
			return true, nil
		}
	case op == "unsetIfArrayEmpty":
		if list, ok := value.([]any); ok && len(list) == 0 {
			deletePath(output, segments)
			return true, nil
		}
	case op == "unsetIfArrayKeysNull":
		if list, ok := value.([]any); ok && allNil(list) {
			deletePath(output, segments)
			return true, nil
		}
	case strings.HasPrefix(op, castUnsetIfValue):
		if cast.ToString(value) == strings.TrimPrefix(op, castUnsetIfValue) {
			deletePath(output, segments)
			return true, nil
		}
	case strings.HasPrefix(op, castSetNullIfValue):
		if cast.ToString(value) == strings.TrimPrefix(op, castSetNullIfValue) {
			setPath(output, segments, nil)
		}
	case strings.HasPrefix(op, castCountValue):
		countPath := strings.TrimPrefix(op, castCountValue)
		if countPath == "" {
			return false, fmt.Errorf("countValue requires a target path")
		}
		list, ok := value.([]any)
		if !ok {
			return false, fmt.Errorf("countValue requires a list, got %T", value)
		}
		setPath(output, parsePath(countPath), len(list))
	default:
		// Unknown cast names are no-ops.
	}
	return false, nil
}

// decodeArray JSON-decodes a string value; lists pass through unchanged.
func decodeArray(value any) (any, error) {
	switch t := value.(type) {
	case []any:
		return t, nil
	case string:
		var decoded any
		if err := json.Unmarshal([]byte(t), &decoded); err != nil {
			return nil, fmt.Errorf("not a JSON value: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("cannot decode %T as array", value)
	}
}

// parseCoordinates accepts "lat,long" strings and {lat,long} or
// {latitude,longitude} JSON objects, returning a structured pair.
func parseCoordinates(value any) (map[string]any, error) {
	switch t := value.(type) {
	case string:
		trimmed := strings.TrimSpace(t)
		if strings.HasPrefix(trimmed, "{") {
			var obj map[string]any
			if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
				return nil, fmt.Errorf("invalid coordinates object: %w", err)
			}
			return coordinatesFromObject(obj)
		}
		parts := strings.Split(trimmed, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("expected \"lat,long\", got %q", t)
		}
		lat, err := cast.ToFloat64E(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid latitude: %w", err)
		}
		long, err := cast.ToFloat64E(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid longitude: %w", err)
		}
		return map[string]any{"latitude": lat, "longitude": long}, nil
	case map[string]any:
		return coordinatesFromObject(t)
	default:
		return nil, fmt.Errorf("cannot parse %T as coordinates", value)
	}
}

func coordinatesFromObject(obj map[string]any) (map[string]any, error) {
	latRaw, ok := obj["lat"]
	if !ok {
		latRaw, ok = obj["latitude"]
	}
	if !ok {
		return nil, fmt.Errorf("coordinates object is missing lat/latitude")
	}
	longRaw, ok := obj["long"]
	if !ok {
		longRaw, ok = obj["longitude"]
	}
	if !ok {
		return nil, fmt.Errorf("coordinates object is missing long/longitude")
	}

	lat, err := cast.ToFloat64E(latRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude: %w", err)
	}
	long, err := cast.ToFloat64E(longRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude: %w", err)
	}
	return map[string]any{"latitude": lat, "longitude": long}, nil
}

func allNil(list []any) bool {
	for _, item := range list {
		if item != nil {
			return false
		}
	}
	return len(list) > 0
}
