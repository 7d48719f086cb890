package jsonrpc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// LookupPath walks a decoded JSON value along a dot-path. Segments index
// objects by key and arrays by number; "items[0].name" is also accepted.
func LookupPath(v any, path string) (any, bool) {
	if path == "" {
		return v, true
	}
	current := v
	for _, part := range strings.Split(path, ".") {
		key, indexes, err := splitSegment(part)
		if err != nil {
			return nil, false
		}
		if key != "" {
			var ok bool
			if current, ok = step(current, key); !ok {
				return nil, false
			}
		}
		for _, idx := range indexes {
			arr, ok := current.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, false
			}
			current = arr[idx]
		}
	}
	return current, true
}

func step(current any, key string) (any, bool) {
	switch v := current.(type) {
	case map[string]any:
		next, ok := v[key]
		return next, ok
	case []any:
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(v) {
			return nil, false
		}
		return v[idx], true
	default:
		return nil, false
	}
}

// splitSegment separates "key[1][2]" into "key" and [1 2].
func splitSegment(part string) (string, []int, error) {
	open := strings.Index(part, "[")
	if open < 0 {
		return part, nil, nil
	}
	key, rest := part[:open], part[open:]
	var indexes []int
	for rest != "" {
		end := strings.Index(rest, "]")
		if !strings.HasPrefix(rest, "[") || end < 0 {
			return "", nil, fmt.Errorf("invalid array index %q", part)
		}
		n, err := strconv.Atoi(rest[1:end])
		if err != nil {
			return "", nil, fmt.Errorf("invalid array index %q", part)
		}
		indexes = append(indexes, n)
		rest = rest[end+1:]
	}
	return key, indexes, nil
}

// FirstString returns the first non-blank string found at any of paths.
func FirstString(v any, paths ...string) (string, bool) {
	for _, p := range paths {
		if s, ok := lookupString(v, p); ok {
			return s, true
		}
	}
	return "", false
}

func lookupString(v any, path string) (string, bool) {
	got, ok := LookupPath(v, path)
	if !ok {
		return "", false
	}
	s, ok := got.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return strings.TrimSpace(s), true
}

// FirstBool returns the first boolean found at any of paths.
func FirstBool(v any, paths ...string) (bool, bool) {
	for _, p := range paths {
		got, ok := LookupPath(v, p)
		if !ok {
			continue
		}
		if b, ok := got.(bool); ok {
			return b, true
		}
	}
	return false, false
}

// DecodeAny unmarshals raw into a generic value; empty input yields nil.
func DecodeAny(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return v, nil
}
