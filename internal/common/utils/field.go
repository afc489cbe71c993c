package utils

import "strings"

// LookupPath resolves a dot-separated path like "form.owner.id" inside nested
// map data. The second return value reports whether every segment of the path
// existed.
func LookupPath(data map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}

	segments := strings.Split(path, ".")
	var current interface{} = data

	for _, segment := range segments {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		value, exists := node[segment]
		if !exists {
			return nil, false
		}
		current = value
	}

	return current, true
}

// SetPath writes value at a dot-separated path, creating intermediate maps as
// needed. Returns false when an intermediate segment exists but is not a map.
func SetPath(data map[string]interface{}, path string, value interface{}) bool {
	if path == "" {
		return false
	}

	segments := strings.Split(path, ".")
	current := data

	for i, segment := range segments {
		if i == len(segments)-1 {
			current[segment] = value
			return true
		}

		next, exists := current[segment]
		if !exists {
			child := make(map[string]interface{})
			current[segment] = child
			current = child
			continue
		}

		child, ok := next.(map[string]interface{})
		if !ok {
			return false
		}
		current = child
	}

	return false
}
