package manifest

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ExcludeMatcher tests paths against a fixed set of exclude glob patterns,
// supporting `*`, `?`, `**`, and literal path-prefix matches.
type ExcludeMatcher struct {
	patterns []string
}

// NewExcludeMatcher validates and compiles a set of exclude patterns.
func NewExcludeMatcher(patterns []string) (*ExcludeMatcher, error) {
	for _, pattern := range patterns {
		if _, err := doublestar.Match(pattern, "a"); err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}
	return &ExcludeMatcher{patterns: append([]string(nil), patterns...)}, nil
}

// Match reports whether path should be excluded: either because it matches
// one of the glob patterns directly, or because one of the patterns names a
// literal prefix of the path (excluding a directory excludes everything
// beneath it).
func (m *ExcludeMatcher) Match(path string) bool {
	for _, pattern := range m.patterns {
		if matched, _ := doublestar.Match(pattern, path); matched {
			return true
		}
		if !strings.ContainsAny(pattern, "*?[") {
			if path == pattern || strings.HasPrefix(path, pattern+"/") {
				return true
			}
		}
	}
	return false
}
