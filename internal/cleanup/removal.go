package cleanup

import (
	"context"
	"time"

	"github.com/google/uuid"

	"cleantrail/internal/browser"
	"cleantrail/internal/storage"
	"cleantrail/pkg/model"
	"cleantrail/pkg/profile"
)

// historyLimit 清理历史最多保留的条目数
const historyLimit = 20

// HandleRemoval 处理标签页关闭：按当前生效配置执行
// Cookie/缓存/页面存储清理，并记录清理历史与每日计数。
func (o *Orchestrator) HandleRemoval(ctx context.Context, tab model.TabID) {
	rawURL, ok := o.takeTabURL(ctx, tab)
	if !ok {
		return
	}
	if storage.GetBool(ctx, o.store, storage.KeyPauseCleanup, false) {
		return
	}
	hostname, ok := httpHostname(rawURL)
	if !ok {
		return
	}

	skipCookies := o.cookieWhitelisted(ctx, hostname)
	skipCache := o.cacheTrusted(ctx, hostname)
	if skipCookies && skipCache {
		return
	}

	prof := o.resolveProfile(ctx)

	// 页面存储只能在页面自身执行环境中清除，委托脚本注入协作者
	if prof.DeleteLocalStorage || prof.DeleteSessionStorage || prof.DeleteIndexedDB {
		args := browser.CleanupArgs{
			DeleteLocalStorage:   prof.DeleteLocalStorage,
			DeleteSessionStorage: prof.DeleteSessionStorage,
			DeleteIndexedDB:      prof.DeleteIndexedDB,
		}
		if err := o.injector.Execute(ctx, tab, args); err != nil {
			o.log.Err(err, "页面存储清理注入失败", "tab", string(tab))
		}
	}

	if prof.DeleteCookies && !skipCookies {
		siteCookies, err := o.siteCookies(ctx, hostname)
		if err != nil {
			o.log.Err(err, "读取站点 Cookie 失败", "host", hostname)
		} else {
			deleted := o.deleteSiteCookies(ctx, hostname, siteCookies)
			o.accumulateCookieTotals(ctx, deleted)
			o.appendHistory(ctx, model.DeletionHistoryEntry{
				Hostname:       hostname,
				Time:           isoNow(),
				CookiesDeleted: deleted,
			})
			o.tallyDaily(ctx, storage.KeyDailyCookieClears, float64(deleted))
			if err := o.store.Set(ctx, map[string]any{storage.KeyPendingCookies: 0}); err != nil {
				o.log.Err(err, "重置待处理 Cookie 计数失败")
			}
		}
	}

	if prof.ClearCache && !skipCache {
		clearedMB := storage.GetFloat(ctx, o.store, storage.KeyPendingCache, 0)
		scope := browser.ClearScope{Origins: []string{"https://" + hostname, "http://" + hostname}}
		if err := o.clearer.Clear(ctx, scope, browser.ClearTypes{Cache: true}); err != nil {
			o.log.Err(err, "站点缓存清理失败", "host", hostname)
		} else {
			total := storage.GetFloat(ctx, o.store, storage.KeyTotalCacheCleared, 0)
			if err := o.store.Set(ctx, map[string]any{
				storage.KeyPendingCache:      0,
				storage.KeyTotalCacheCleared: total + clearedMB,
			}); err != nil {
				o.log.Err(err, "累计缓存清理量失败")
			}
			o.appendHistory(ctx, model.DeletionHistoryEntry{
				Hostname:        hostname,
				Time:            isoNow(),
				CacheCleared:    true,
				CacheEstimateMB: clearedMB,
			})
			o.tallyDaily(ctx, storage.KeyDailyCacheClears, clearedMB)
		}
	}

	o.requestRecompute()
}

// takeTabURL 取出并移除标签页的记录地址；关闭后地址不再可得
func (o *Orchestrator) takeTabURL(ctx context.Context, tab model.TabID) (string, bool) {
	tabURLs := map[string]string{}
	if _, err := storage.GetJSON(ctx, o.store, storage.KeyTabURLs, &tabURLs); err != nil {
		o.log.Err(err, "读取标签页地址映射失败")
		return "", false
	}
	rawURL, ok := tabURLs[string(tab)]
	if !ok {
		return "", false
	}
	delete(tabURLs, string(tab))
	if err := o.store.Set(ctx, map[string]any{storage.KeyTabURLs: tabURLs}); err != nil {
		o.log.Err(err, "持久化标签页地址映射失败")
	}
	return rawURL, true
}

// resolveProfile 解析当前生效的清理配置；
// 自定义配置在基础配置上按覆盖项合并
func (o *Orchestrator) resolveProfile(ctx context.Context) profile.Profile {
	key := storage.GetString(ctx, o.store, storage.KeyActiveProfile, profile.KeyBalanced)
	prof := profile.Get(key)
	if key == profile.KeyCustom {
		var override profile.Override
		if ok, err := storage.GetJSON(ctx, o.store, storage.KeyCustomProConfig, &override); err == nil && ok {
			prof = profile.Merge(prof, override)
		}
	}
	return prof
}

// deleteSiteCookies 删除站点 Cookie，排除单独白名单项与 necessary 类别。
// necessary 是硬编码的安全例外，任何配置都不覆盖。
func (o *Orchestrator) deleteSiteCookies(ctx context.Context, hostname string, siteCookies []model.Cookie) int {
	var whitelist []string
	_, _ = storage.GetJSON(ctx, o.store, storage.KeyCookieWhitelist, &whitelist)
	wl := make(map[string]struct{}, len(whitelist))
	for _, k := range whitelist {
		wl[k] = struct{}{}
	}

	deleted := 0
	for _, c := range siteCookies {
		key := model.StripDot(c.Domain) + "|" + c.Name
		if _, ok := wl[key]; ok {
			continue
		}
		if _, ok := wl[model.StripDot(c.Domain)]; ok {
			continue
		}
		if Category(o.categories, c.Name) == CategoryNecessary {
			continue
		}
		if err := o.cookies.Remove(ctx, c.URL(), c.Name); err != nil {
			o.log.Err(err, "删除 Cookie 失败", "host", hostname, "name", c.Name)
			continue
		}
		deleted++
		o.tallyCategory(ctx, Category(o.categories, c.Name))
	}
	return deleted
}

// accumulateCookieTotals 累计删除的 Cookie 总数
func (o *Orchestrator) accumulateCookieTotals(ctx context.Context, deleted int) {
	if deleted == 0 {
		return
	}
	total := storage.GetFloat(ctx, o.store, storage.KeyTotalCookiesDeleted, 0)
	if err := o.store.Set(ctx, map[string]any{storage.KeyTotalCookiesDeleted: total + float64(deleted)}); err != nil {
		o.log.Err(err, "累计 Cookie 删除总数失败")
	}
}

// tallyCategory 累计删除 Cookie 的类别计数
func (o *Orchestrator) tallyCategory(ctx context.Context, category string) {
	counts := map[string]int64{}
	if _, err := storage.GetJSON(ctx, o.store, storage.KeyCookieCategoryCounts, &counts); err != nil {
		return
	}
	counts[category]++
	if err := o.store.Set(ctx, map[string]any{storage.KeyCookieCategoryCounts: counts}); err != nil {
		o.log.Err(err, "累计 Cookie 类别计数失败")
	}
}

// appendHistory 前插一条清理历史并截断到上限
func (o *Orchestrator) appendHistory(ctx context.Context, entry model.DeletionHistoryEntry) {
	entry.ID = uuid.New().String()
	var history []model.DeletionHistoryEntry
	if _, err := storage.GetJSON(ctx, o.store, storage.KeyDeletionHistory, &history); err != nil {
		o.log.Err(err, "读取清理历史失败")
		return
	}
	history = append([]model.DeletionHistoryEntry{entry}, history...)
	if len(history) > historyLimit {
		history = history[:historyLimit]
	}
	if err := o.store.Set(ctx, map[string]any{storage.KeyDeletionHistory: history}); err != nil {
		o.log.Err(err, "持久化清理历史失败")
	}
}

// tallyDaily 按 ISO 日期键累计每日清理量
func (o *Orchestrator) tallyDaily(ctx context.Context, key string, amount float64) {
	daily := map[string]float64{}
	if _, err := storage.GetJSON(ctx, o.store, key, &daily); err != nil {
		return
	}
	day := time.Now().UTC().Format("2006-01-02")
	daily[day] += amount
	if err := o.store.Set(ctx, map[string]any{key: daily}); err != nil {
		o.log.Err(err, "累计每日清理量失败", "key", key)
	}
}
