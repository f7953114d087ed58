package cleanup

import (
	"context"

	"cleantrail/internal/browser"
	"cleantrail/internal/storage"
	"cleantrail/pkg/model"
)

// ManualClear 立即执行一次全局 Cookie+缓存清理，在配置体系之外。
// 返回完成状态描述。
func (o *Orchestrator) ManualClear(ctx context.Context) (string, error) {
	var beforeUsage float64
	if o.usage != nil {
		if u, err := o.usage.Usage(ctx, ""); err == nil {
			beforeUsage = u
		}
	}
	allCookies, err := o.cookies.GetAll(ctx, "")
	if err != nil {
		o.log.Err(err, "读取全部 Cookie 失败")
	}
	beforeCookies := len(allCookies)

	scope := browser.ClearScope{Global: true}
	if err := o.clearer.Clear(ctx, scope, browser.ClearTypes{Cookies: true, Cache: true}); err != nil {
		o.log.Err(err, "手动全局清理失败")
		return "", err
	}

	var afterUsage float64
	if o.usage != nil {
		if u, err := o.usage.Usage(ctx, ""); err == nil {
			afterUsage = u
		}
	}
	clearedMB := roundMB(maxFloat(0, beforeUsage-afterUsage))

	now := isoNow()
	totalCookies := storage.GetFloat(ctx, o.store, storage.KeyTotalCookiesDeleted, 0)
	totalCache := storage.GetFloat(ctx, o.store, storage.KeyTotalCacheCleared, 0)
	if err := o.store.Set(ctx, map[string]any{
		storage.KeyLastCleanup:         now,
		storage.KeyPendingCookies:      0,
		storage.KeyPendingCache:        0,
		storage.KeyTotalCookiesDeleted: totalCookies + float64(beforeCookies),
		storage.KeyTotalCacheCleared:   totalCache + clearedMB,
	}); err != nil {
		o.log.Err(err, "持久化手动清理结果失败")
	}
	o.appendHistory(ctx, model.DeletionHistoryEntry{
		Hostname:        model.ManualCleanupHostname,
		Time:            now,
		CookiesDeleted:  beforeCookies,
		CacheCleared:    true,
		CacheEstimateMB: clearedMB,
	})
	o.requestRecompute()
	return "Manual cleanup complete", nil
}

// ReportFingerprint 记录一次指纹探测事件。
// 探测器本身是外部协作者，这里只消费其输出。
func (o *Orchestrator) ReportFingerprint(ctx context.Context, hostname string) {
	o.RecordSiteStat(ctx, hostname, "fingerprints", 1)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
