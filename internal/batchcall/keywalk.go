package batchcall

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// FirstKey walks a decoded JSON value (objects, arrays, scalars) and returns
// the dotted path of the first object key for which match is true. Array
// elements contribute their index to the path. Object keys are visited in
// sorted order so the result is deterministic.
func FirstKey(v any, match func(key string) bool) (string, bool) {
	return walkKeys(v, "", match)
}

func walkKeys(v any, prefix string, match func(string) bool) (string, bool) {
	switch node := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			path := joinPath(prefix, k)
			if match(k) {
				return path, true
			}
			if p, ok := walkKeys(node[k], path, match); ok {
				return p, true
			}
		}
	case []any:
		for i, item := range node {
			if p, ok := walkKeys(item, joinPath(prefix, strconv.Itoa(i)), match); ok {
				return p, true
			}
		}
	}
	return "", false
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// HasWhitespace is the FirstKey predicate for vendor-safe key names.
func HasWhitespace(key string) bool {
	return strings.IndexFunc(key, unicode.IsSpace) >= 0
}
