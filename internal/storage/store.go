package storage

import (
	"context"
	"encoding/json"
)

// Store 异步键值状态存储（按键集读写，带变更通知订阅）。
// 所有持久实体归它所有；各处理组件只做 read-modify-write，不持有权威内存状态。
type Store interface {
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)
	Set(ctx context.Context, values map[string]any) error
	Remove(ctx context.Context, keys ...string) error
	// OnChange 注册变更监听器，任何写入方触发的变更都会回调受影响的键集
	OnChange(fn func(keys []string))
}

// 状态键（与原始数据布局一一对应）
const (
	KeyBlockedTrackers      = "blockedTrackers"
	KeyPendingTrackers      = "pendingTrackers"
	KeySiteStats            = "siteStats"
	KeyPendingCookies       = "pendingCookies"
	KeyTotalCookiesDeleted  = "totalCookiesDeleted"
	KeyPendingCache         = "pendingCache"
	KeyTotalCacheCleared    = "totalCacheCleared"
	KeyDeletionHistory      = "deletionHistory"
	KeyDailyCookieClears    = "dailyCookieClears"
	KeyDailyCacheClears     = "dailyCacheClears"
	KeyActiveProfile        = "activeProfile"
	KeyProfileSource        = "profileSource"
	KeyCustomProConfig      = "customProConfig"
	KeyAdaptiveProfiles     = "adaptiveProfiles"
	KeyTrustedSites         = "trustedSites"
	KeyCookieWhitelist      = "cookieWhitelist"
	KeyCookieCategoryCounts = "cookieCategoryCounts"
	KeyTabURLs              = "tabUrls"
	KeyPauseCleanup         = "pauseCleanup"
	KeyAutoCookieDeletion   = "autoCookieDeletionEnabled"
	KeyTrackerBlocking      = "trackerBlockingEnabled"
	KeyLastCleanup          = "lastCleanup"
)

// GetJSON 读取单个键并反序列化到 out，返回键是否存在
func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	m, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	raw, ok := m[key]
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

// GetBool 读取布尔键，缺失时返回默认值
func GetBool(ctx context.Context, s Store, key string, def bool) bool {
	var v bool
	ok, err := GetJSON(ctx, s, key, &v)
	if err != nil || !ok {
		return def
	}
	return v
}

// GetString 读取字符串键，缺失时返回默认值
func GetString(ctx context.Context, s Store, key string, def string) string {
	var v string
	ok, err := GetJSON(ctx, s, key, &v)
	if err != nil || !ok {
		return def
	}
	return v
}

// GetFloat 读取数值键，缺失时返回默认值
func GetFloat(ctx context.Context, s Store, key string, def float64) float64 {
	var v float64
	ok, err := GetJSON(ctx, s, key, &v)
	if err != nil || !ok {
		return def
	}
	return v
}
