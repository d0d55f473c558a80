package watcher

import (
	"fmt"
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultFilterCacheSize bounds the number of match decisions a Filter
// remembers.
const DefaultFilterCacheSize = 4096

// Filter decides which directories are registered. The expression must
// match the whole directory path, not a substring of it.
//
// A nil *Filter matches every path.
type Filter struct {
	expr    string
	pattern *regexp.Regexp
	cache   *lru.Cache[string, bool]
}

// NewFilter compiles expr. An empty expression returns a nil filter,
// which accepts every directory.
func NewFilter(expr string) (*Filter, error) {
	if expr == "" {
		return nil, nil
	}

	pattern, err := regexp.Compile(`^(?:` + expr + `)$`)
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expr, err)
	}
	cache, err := lru.New[string, bool](DefaultFilterCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create filter cache: %w", err)
	}

	return &Filter{expr: expr, pattern: pattern, cache: cache}, nil
}

// Match reports whether path is eligible for registration.
func (f *Filter) Match(path string) bool {
	if f == nil {
		return true
	}
	if ok, hit := f.cache.Get(path); hit {
		return ok
	}
	ok := f.pattern.MatchString(path)
	f.cache.Add(path, ok)
	return ok
}

// String returns the expression the filter was compiled from.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}
