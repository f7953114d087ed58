package bundle

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApprovedDomainsSortedNonEmpty(t *testing.T) {
	domains, err := ApprovedDomains()
	require.NoError(t, err)
	require.NotEmpty(t, domains)
	assert.True(t, sort.StringsAreSorted(domains))
	assert.Contains(t, domains, "trk.example")
	assert.Contains(t, domains, "doubleclick.net")
}

func TestCookieCategoriesOrdered(t *testing.T) {
	pairs, err := CookieCategories()
	require.NoError(t, err)
	require.NotEmpty(t, pairs)
	// necessary 模式在前，避免被更宽的模式抢先匹配
	assert.Equal(t, "session", pairs[0].Pattern)
	assert.Equal(t, "necessary", pairs[0].Category)

	seen := map[string]bool{}
	for _, p := range pairs {
		assert.NotEmpty(t, p.Pattern)
		assert.NotEmpty(t, p.Category)
		seen[p.Category] = true
	}
	assert.True(t, seen["necessary"])
	assert.True(t, seen["advertising"])
}

func TestDefaultCategoriesMinimalFallback(t *testing.T) {
	pairs := DefaultCategories()
	require.NotEmpty(t, pairs)
	assert.Equal(t, "necessary", pairs[0].Category)
}
