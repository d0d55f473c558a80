package watcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFilter_EmptyMatchesEverything(t *testing.T) {
	// Given: no filter expression
	f, err := NewFilter("")

	// Then: the nil filter accepts any path
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.True(t, f.Match("/anything/at/all"))
	assert.Equal(t, "", f.String())
}

func TestNewFilter_InvalidExpression(t *testing.T) {
	_, err := NewFilter("([unclosed")
	assert.Error(t, err)
}

func TestFilter_WholeStringMatch(t *testing.T) {
	tests := []struct {
		name string
		expr string
		path string
		want bool
	}{
		{"exact", "/var/log", "/var/log", true},
		{"prefix only is not enough", "/var", "/var/log", false},
		{"suffix only is not enough", "log", "/var/log", false},
		{"wildcard suffix", "/var/log(/.*)?", "/var/log/nginx", true},
		{"alternation is anchored as a whole", "/a|/b", "/a/b", false},
		{"alternation matches either", "/a|/b", "/b", true},
		{"log directories", `.*\.log$`, "/data/app.log", true},
		{"non log directory", `.*\.log$`, "/data/app", false},
		{"case insensitive flag", "(?i)/DATA", "/data", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilter(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Match(tt.path))
			assert.Equal(t, tt.expr, f.String())
		})
	}
}

func TestFilter_CachedDecisionsAreStable(t *testing.T) {
	// Given: a filter that has already decided on two paths
	f, err := NewFilter("/keep(/.*)?")
	require.NoError(t, err)
	require.True(t, f.Match("/keep/a"))
	require.False(t, f.Match("/drop/a"))

	// Then: repeated lookups are served from the cache with the same result
	assert.True(t, f.Match("/keep/a"))
	assert.False(t, f.Match("/drop/a"))
	assert.Equal(t, 2, f.cache.Len())
}
