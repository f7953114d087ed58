package cleanup

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"cleantrail/internal/browser"
	"cleantrail/internal/bundle"
	"cleantrail/internal/logger"
	"cleantrail/internal/storage"
	"cleantrail/pkg/model"
)

// Orchestrator 会话清理编排器。
// 由标签页导航与关闭两类外部事件驱动；所有权威状态在存储中，
// 这里只保留每主机名的上次观测计数作为参考缓存。
type Orchestrator struct {
	store    storage.Store
	cookies  browser.CookieStore
	clearer  browser.DataClearer
	injector browser.ScriptInjector
	usage    browser.UsageEstimator
	log      logger.Logger

	categories []bundle.CategoryPair

	recompute      func()
	profileChanged func(model.ProfileEvent)

	mu                sync.Mutex
	lastCookieCount   map[string]int
	lastCacheEstimate map[string]float64
}

// Deps 编排器依赖的协作者集合
type Deps struct {
	Store    storage.Store
	Cookies  browser.CookieStore
	Clearer  browser.DataClearer
	Injector browser.ScriptInjector
	Usage    browser.UsageEstimator
	Log      logger.Logger
}

// New 创建清理编排器
func New(deps Deps, categories []bundle.CategoryPair) *Orchestrator {
	if deps.Log == nil {
		deps.Log = logger.NewNoopLogger()
	}
	if len(categories) == 0 {
		categories = bundle.DefaultCategories()
	}
	return &Orchestrator{
		store:             deps.Store,
		cookies:           deps.Cookies,
		clearer:           deps.Clearer,
		injector:          deps.Injector,
		usage:             deps.Usage,
		log:               deps.Log,
		categories:        categories,
		lastCookieCount:   make(map[string]int),
		lastCacheEstimate: make(map[string]float64),
	}
}

// SetRecompute 设置评分重算请求回调
func (o *Orchestrator) SetRecompute(fn func()) { o.recompute = fn }

// SetProfileChanged 设置清理配置变更广播回调
func (o *Orchestrator) SetProfileChanged(fn func(model.ProfileEvent)) { o.profileChanged = fn }

func (o *Orchestrator) requestRecompute() {
	if o.recompute != nil {
		o.recompute()
	}
}

// HandleNavigation 处理标签页导航：记录标签页地址映射，
// 记录正增量的 Cookie/缓存信号，运行自适应配置选择，
// 并在开启时对活动标签页做即时 Cookie 清理。
func (o *Orchestrator) HandleNavigation(ctx context.Context, tab model.TabID, rawURL string, active bool) {
	hostname, ok := httpHostname(rawURL)
	if !ok {
		return
	}

	o.rememberTabURL(ctx, tab, rawURL)
	siteCookies := o.recordCookieDelta(ctx, hostname)
	o.recordCacheDelta(ctx, hostname)

	// 手动选择的配置具有粘性，只有 auto 来源才允许自适应覆盖
	if storage.GetString(ctx, o.store, storage.KeyProfileSource, "") != "manual" {
		o.AdaptProfile(ctx, hostname)
	}

	o.immediateCookieCleanup(ctx, hostname, active, siteCookies)

	o.requestRecompute()
}

// rememberTabURL 持久化标签页到地址的映射，供关闭时使用
func (o *Orchestrator) rememberTabURL(ctx context.Context, tab model.TabID, rawURL string) {
	tabURLs := map[string]string{}
	if _, err := storage.GetJSON(ctx, o.store, storage.KeyTabURLs, &tabURLs); err != nil {
		o.log.Err(err, "读取标签页地址映射失败")
		return
	}
	tabURLs[string(tab)] = rawURL
	if err := o.store.Set(ctx, map[string]any{storage.KeyTabURLs: tabURLs}); err != nil {
		o.log.Err(err, "持久化标签页地址映射失败")
	}
}

// recordCookieDelta 记录该站点 Cookie 数量的正增量并更新待处理计数
func (o *Orchestrator) recordCookieDelta(ctx context.Context, hostname string) []model.Cookie {
	siteCookies, err := o.siteCookies(ctx, hostname)
	if err != nil {
		o.log.Err(err, "读取站点 Cookie 失败", "host", hostname)
		return nil
	}

	o.mu.Lock()
	newCookies := len(siteCookies) - o.lastCookieCount[hostname]
	o.lastCookieCount[hostname] = len(siteCookies)
	o.mu.Unlock()

	// 减少不算新增使用，不能产生负的统计贡献
	if newCookies > 0 {
		o.RecordSiteStat(ctx, hostname, "cookies", float64(newCookies))
	}
	if err := o.store.Set(ctx, map[string]any{storage.KeyPendingCookies: len(siteCookies)}); err != nil {
		o.log.Err(err, "持久化待处理 Cookie 计数失败")
	}
	return siteCookies
}

// recordCacheDelta 记录该站点存储估算量的正增量并更新待处理估算
func (o *Orchestrator) recordCacheDelta(ctx context.Context, hostname string) {
	if o.usage == nil {
		return
	}
	usageBytes, err := o.usage.Usage(ctx, "https://"+hostname)
	if err != nil {
		o.log.Err(err, "站点存储估算失败", "host", hostname)
		return
	}
	pendingMB := roundMB(usageBytes)
	if err := o.store.Set(ctx, map[string]any{storage.KeyPendingCache: pendingMB}); err != nil {
		o.log.Err(err, "持久化待处理缓存估算失败")
	}

	o.mu.Lock()
	newMB := pendingMB - o.lastCacheEstimate[hostname]
	o.lastCacheEstimate[hostname] = pendingMB
	o.mu.Unlock()

	if newMB > 0 {
		o.RecordSiteStat(ctx, hostname, "cache", newMB)
	}
}

// immediateCookieCleanup 导航时的即时 Cookie 清理，
// 与关闭时的完整配置驱动清理相互独立（保留原行为，不去重）。
func (o *Orchestrator) immediateCookieCleanup(ctx context.Context, hostname string, active bool, siteCookies []model.Cookie) {
	if !active {
		return
	}
	if storage.GetBool(ctx, o.store, storage.KeyPauseCleanup, false) {
		return
	}
	skipCookies := o.cookieWhitelisted(ctx, hostname)
	skipCache := o.cacheTrusted(ctx, hostname)
	if skipCookies && skipCache {
		return
	}
	if !storage.GetBool(ctx, o.store, storage.KeyAutoCookieDeletion, false) || skipCookies {
		return
	}

	prof := o.resolveProfile(ctx)
	deleted := o.deleteSiteCookies(ctx, hostname, siteCookies)
	o.accumulateCookieTotals(ctx, deleted)
	o.appendHistory(ctx, model.DeletionHistoryEntry{
		Hostname:       hostname,
		Time:           isoNow(),
		CookiesDeleted: deleted,
		CacheCleared:   prof.ClearCache,
	})
	if err := o.store.Set(ctx, map[string]any{storage.KeyPendingCookies: 0}); err != nil {
		o.log.Err(err, "重置待处理 Cookie 计数失败")
	}
	// 已删除的不再计入站点信号
	o.RecordSiteStat(ctx, hostname, "cookies", float64(-deleted))
}

// RecordSiteStat 对站点统计的某个字段累加增量，写入时不做衰减
func (o *Orchestrator) RecordSiteStat(ctx context.Context, hostname, field string, delta float64) {
	siteStats := map[string]model.SiteStat{}
	if _, err := storage.GetJSON(ctx, o.store, storage.KeySiteStats, &siteStats); err != nil {
		o.log.Err(err, "读取站点统计失败")
		return
	}
	s := siteStats[hostname]
	switch field {
	case "cookies":
		s.Cookies += delta
	case "cache":
		s.Cache += delta
	case "trackers":
		s.Trackers += delta
	case "fingerprints":
		s.Fingerprints += delta
	default:
		return
	}
	s.LastSeen = time.Now().UnixMilli()
	siteStats[hostname] = s
	if err := o.store.Set(ctx, map[string]any{storage.KeySiteStats: siteStats}); err != nil {
		o.log.Err(err, "持久化站点统计失败")
		return
	}
	o.requestRecompute()
}

// siteCookies 返回严格属于该主机名的 Cookie
func (o *Orchestrator) siteCookies(ctx context.Context, hostname string) ([]model.Cookie, error) {
	all, err := o.cookies.GetAll(ctx, hostname)
	if err != nil {
		return nil, err
	}
	out := make([]model.Cookie, 0, len(all))
	for _, c := range all {
		if model.StripDot(c.Domain) == hostname {
			out = append(out, c)
		}
	}
	return out, nil
}

// cookieWhitelisted 判断主机名是否在 Cookie 白名单中
// （存在以 host| 开头的条目或条目等于 host）
func (o *Orchestrator) cookieWhitelisted(ctx context.Context, hostname string) bool {
	var whitelist []string
	if _, err := storage.GetJSON(ctx, o.store, storage.KeyCookieWhitelist, &whitelist); err != nil {
		return false
	}
	for _, k := range whitelist {
		if k == hostname || strings.HasPrefix(k, hostname+"|") {
			return true
		}
	}
	return false
}

// cacheTrusted 判断主机名是否被标记为受信任站点
func (o *Orchestrator) cacheTrusted(ctx context.Context, hostname string) bool {
	trusted := map[string]bool{}
	if _, err := storage.GetJSON(ctx, o.store, storage.KeyTrustedSites, &trusted); err != nil {
		return false
	}
	return trusted[hostname]
}

func httpHostname(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Hostname() == "" {
		return "", false
	}
	return u.Hostname(), true
}

func roundMB(bytes float64) float64 {
	mb := bytes / 1024 / 1024
	return float64(int64(mb*100+0.5)) / 100
}

func isoNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}
