package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuiltinFacets(t *testing.T) {
	assert.Equal(t, Profile{DeleteCookies: true, ClearCache: true, DeleteLocalStorage: true, DeleteSessionStorage: true, DeleteIndexedDB: true}, Get(KeyStrict))
	assert.Equal(t, Profile{DeleteCookies: true, ClearCache: true}, Get(KeyBalanced))
	assert.Equal(t, Profile{}, Get(KeyRelaxed))
	assert.Equal(t, Get(KeyStrict), Get(KeyParanoid))
}

func TestGetUnknownKeyFallsBackToBalanced(t *testing.T) {
	assert.Equal(t, Get(KeyBalanced), Get("nonsense"))
	assert.Equal(t, Get(KeyBalanced), Get(""))
	// custom_pro 没有内置面值，基础同样取 balanced
	assert.Equal(t, Get(KeyBalanced), Get(KeyCustom))
}

func TestValid(t *testing.T) {
	for _, key := range []string{KeyStrict, KeyBalanced, KeyRelaxed, KeyParanoid, KeyCustom} {
		assert.True(t, Valid(key), key)
	}
	assert.False(t, Valid("nonsense"))
	assert.False(t, Valid(""))
}

func TestMergeAppliesOnlySetOverrides(t *testing.T) {
	yes := true
	no := false
	base := Get(KeyBalanced)

	merged := Merge(base, Override{ClearCache: &no, DeleteIndexedDB: &yes})
	assert.True(t, merged.DeleteCookies) // 未覆盖，沿用基础
	assert.False(t, merged.ClearCache)
	assert.True(t, merged.DeleteIndexedDB)
	assert.False(t, merged.DeleteLocalStorage)

	// 空覆盖不改变任何面
	assert.Equal(t, base, Merge(base, Override{}))
}
