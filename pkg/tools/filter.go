package tools

import "github.com/bmatcuk/doublestar/v4"

// Permitted reports whether a tool name passes the config-level filters:
// a non-empty allowed list admits only matching names, and the disabled
// list rejects matches regardless.
func Permitted(name string, allowed, disabled []string) bool {
	for _, pattern := range disabled {
		if matchPattern(pattern, name) {
			return false
		}
	}
	if len(allowed) == 0 {
		return true
	}
	for _, pattern := range allowed {
		if matchPattern(pattern, name) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, value string) bool {
	matched, err := doublestar.Match(pattern, value)
	if err != nil {
		// Invalid pattern: fall back to exact comparison
		return pattern == value
	}
	return matched
}
