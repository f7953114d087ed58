package cleanup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleantrail/internal/browser"
	"cleantrail/internal/bundle"
	"cleantrail/internal/storage"
	"cleantrail/pkg/model"
	"cleantrail/pkg/profile"
)

type fakeCookies struct {
	cookies []model.Cookie
	removed []string // "url|name"
}

func (f *fakeCookies) GetAll(ctx context.Context, domain string) ([]model.Cookie, error) {
	return f.cookies, nil
}

func (f *fakeCookies) Remove(ctx context.Context, url, name string) error {
	f.removed = append(f.removed, url+"|"+name)
	return nil
}

type clearCall struct {
	scope browser.ClearScope
	types browser.ClearTypes
}

type fakeClearer struct {
	calls []clearCall
}

func (f *fakeClearer) Clear(ctx context.Context, scope browser.ClearScope, types browser.ClearTypes) error {
	f.calls = append(f.calls, clearCall{scope: scope, types: types})
	return nil
}

type injectCall struct {
	tab  model.TabID
	args browser.CleanupArgs
}

type fakeInjector struct {
	calls []injectCall
}

func (f *fakeInjector) Execute(ctx context.Context, tab model.TabID, args browser.CleanupArgs) error {
	f.calls = append(f.calls, injectCall{tab: tab, args: args})
	return nil
}

type fakeUsage struct {
	bytes float64
}

func (f *fakeUsage) Usage(ctx context.Context, origin string) (float64, error) {
	return f.bytes, nil
}

type fixture struct {
	store    *storage.MemoryStore
	cookies  *fakeCookies
	clearer  *fakeClearer
	injector *fakeInjector
	usage    *fakeUsage
	o        *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    storage.NewMemoryStore(),
		cookies:  &fakeCookies{},
		clearer:  &fakeClearer{},
		injector: &fakeInjector{},
		usage:    &fakeUsage{},
	}
	pairs, err := bundle.CookieCategories()
	require.NoError(t, err)
	f.o = New(Deps{
		Store:    f.store,
		Cookies:  f.cookies,
		Clearer:  f.clearer,
		Injector: f.injector,
		Usage:    f.usage,
	}, pairs)
	return f
}

func (f *fixture) set(t *testing.T, values map[string]any) {
	t.Helper()
	require.NoError(t, f.store.Set(context.Background(), values))
}

func (f *fixture) navigate(tab model.TabID, rawURL string) {
	f.o.HandleNavigation(context.Background(), tab, rawURL, true)
}

func (f *fixture) remove(tab model.TabID) {
	f.o.HandleRemoval(context.Background(), tab)
}

func (f *fixture) history(t *testing.T) []model.DeletionHistoryEntry {
	t.Helper()
	var h []model.DeletionHistoryEntry
	_, err := storage.GetJSON(context.Background(), f.store, storage.KeyDeletionHistory, &h)
	require.NoError(t, err)
	return h
}

func TestCategoryFirstMatchWins(t *testing.T) {
	pairs := []bundle.CategoryPair{
		{Pattern: "session", Category: "necessary"},
		{Pattern: "ses", Category: "analytics"},
		{Pattern: "track", Category: "analytics"},
	}
	// "sessionid" 同时命中两个模式，靠前的生效
	assert.Equal(t, "necessary", Category(pairs, "sessionid"))
	assert.Equal(t, "analytics", Category(pairs, "sestoken"))
	assert.Equal(t, "analytics", Category(pairs, "TRACKING_ID")) // 大小写不敏感
	assert.Equal(t, CategoryUncategorized, Category(pairs, "whatever"))
}

func TestRemovalDeletesCookiesUnderBalancedProfile(t *testing.T) {
	f := newFixture(t)
	// 关闭自适应选择，保持缺省 balanced 配置
	f.set(t, map[string]any{storage.KeyAdaptiveProfiles: false})
	f.cookies.cookies = []model.Cookie{
		{Name: "ad_id", Domain: "shop.example"},
		{Name: "pref", Domain: ".shop.example"},
		{Name: "other", Domain: "unrelated.example"}, // 非本站，不在批次内
	}
	f.navigate("t1", "https://shop.example/cart")
	f.cookies.removed = nil // 导航时的即时清理默认关闭，这里应为空
	require.Empty(t, f.cookies.removed)

	f.remove("t1")

	assert.Len(t, f.cookies.removed, 2)
	// balanced 同时清缓存
	require.Len(t, f.clearer.calls, 1)
	assert.True(t, f.clearer.calls[0].types.Cache)
	assert.Contains(t, f.clearer.calls[0].scope.Origins, "https://shop.example")
	// balanced 不触碰页面存储
	assert.Empty(t, f.injector.calls)

	h := f.history(t)
	require.NotEmpty(t, h)
	assert.Equal(t, "shop.example", h[0].Hostname)
	assert.NotEmpty(t, h[0].ID)
}

func TestNecessaryAndWhitelistedCookiesNeverDeleted(t *testing.T) {
	for _, key := range []string{profile.KeyStrict, profile.KeyBalanced, profile.KeyParanoid, profile.KeyCustom} {
		t.Run(key, func(t *testing.T) {
			f := newFixture(t)
			f.set(t, map[string]any{
				storage.KeyActiveProfile:   key,
				storage.KeyProfileSource:   profile.SourceManual,
				storage.KeyCookieWhitelist: []string{"shop.example|keepme", "whitelisted.example"},
			})
			f.cookies.cookies = []model.Cookie{
				{Name: "sessionid", Domain: "shop.example"}, // necessary 类别
				{Name: "keepme", Domain: "shop.example"},    // 单独白名单
				{Name: "ad_id", Domain: "shop.example"},
			}
			f.navigate("t1", "https://shop.example/")
			f.cookies.removed = nil
			f.remove("t1")

			require.Len(t, f.cookies.removed, 1)
			assert.Contains(t, f.cookies.removed[0], "ad_id")
		})
	}
}

func TestRelaxedProfileOnTrustedSiteHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	f.set(t, map[string]any{
		storage.KeyTrustedSites: map[string]bool{"docs.example": true},
	})
	f.cookies.cookies = []model.Cookie{{Name: "ad_id", Domain: "docs.example"}}
	f.navigate("t1", "https://docs.example/")
	// 受信任站点自适应选择 relaxed
	assert.Equal(t, profile.KeyRelaxed, storage.GetString(context.Background(), f.store, storage.KeyActiveProfile, ""))

	f.cookies.removed = nil
	f.clearer.calls = nil
	f.remove("t1")

	assert.Empty(t, f.cookies.removed)
	assert.Empty(t, f.clearer.calls)
	assert.Empty(t, f.injector.calls)
	assert.Empty(t, f.history(t))
}

func TestOnionHostGetsParanoidFullCleanup(t *testing.T) {
	f := newFixture(t)
	f.cookies.cookies = []model.Cookie{{Name: "ad_id", Domain: "abc123.onion"}}
	f.navigate("t1", "http://abc123.onion/")
	assert.Equal(t, profile.KeyParanoid, storage.GetString(context.Background(), f.store, storage.KeyActiveProfile, ""))
	assert.Equal(t, profile.SourceAuto, storage.GetString(context.Background(), f.store, storage.KeyProfileSource, ""))

	f.remove("t1")

	// paranoid：Cookie、缓存与三类页面存储全部清理
	assert.NotEmpty(t, f.cookies.removed)
	require.Len(t, f.clearer.calls, 1)
	require.Len(t, f.injector.calls, 1)
	args := f.injector.calls[0].args
	assert.True(t, args.DeleteLocalStorage)
	assert.True(t, args.DeleteSessionStorage)
	assert.True(t, args.DeleteIndexedDB)
}

func TestManualProfileSelectionIsSticky(t *testing.T) {
	f := newFixture(t)
	f.o.SetProfile(context.Background(), profile.KeyRelaxed, profile.SourceManual)

	// 普通站点本会触发 strict，但 manual 来源抑制自适应
	f.navigate("t1", "https://shop.example/")

	assert.Equal(t, profile.KeyRelaxed, storage.GetString(context.Background(), f.store, storage.KeyActiveProfile, ""))
	assert.Equal(t, profile.SourceManual, storage.GetString(context.Background(), f.store, storage.KeyProfileSource, ""))
}

func TestSetProfileUnknownKeyFallsBackToBalanced(t *testing.T) {
	f := newFixture(t)
	var events []model.ProfileEvent
	f.o.SetProfileChanged(func(ev model.ProfileEvent) { events = append(events, ev) })

	f.o.SetProfile(context.Background(), "does-not-exist", profile.SourceManual)

	assert.Equal(t, profile.KeyBalanced, storage.GetString(context.Background(), f.store, storage.KeyActiveProfile, ""))
	require.Len(t, events, 1)
	assert.Equal(t, profile.KeyBalanced, events[0].Profile)
}

func TestCustomProfileMergesOverrides(t *testing.T) {
	f := newFixture(t)
	yes := true
	no := false
	f.set(t, map[string]any{
		storage.KeyActiveProfile: profile.KeyCustom,
		storage.KeyProfileSource: profile.SourceManual,
		storage.KeyCustomProConfig: profile.Override{
			ClearCache:         &no,
			DeleteLocalStorage: &yes,
		},
	})
	f.cookies.cookies = []model.Cookie{{Name: "ad_id", Domain: "shop.example"}}
	f.navigate("t1", "https://shop.example/")
	f.cookies.removed = nil
	f.clearer.calls = nil
	f.remove("t1")

	// 基础 balanced + 覆盖：Cookie 删、缓存不清、localStorage 清
	assert.NotEmpty(t, f.cookies.removed)
	assert.Empty(t, f.clearer.calls)
	require.Len(t, f.injector.calls, 1)
	assert.True(t, f.injector.calls[0].args.DeleteLocalStorage)
	assert.False(t, f.injector.calls[0].args.DeleteSessionStorage)
}

func TestPauseCleanupSuppressesRemoval(t *testing.T) {
	f := newFixture(t)
	f.cookies.cookies = []model.Cookie{{Name: "ad_id", Domain: "shop.example"}}
	f.navigate("t1", "https://shop.example/")
	f.set(t, map[string]any{storage.KeyPauseCleanup: true})
	f.cookies.removed = nil
	f.remove("t1")

	assert.Empty(t, f.cookies.removed)
	assert.Empty(t, f.clearer.calls)
	assert.Empty(t, f.history(t))
}

func TestRemovalWithoutRecordedURLIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.cookies.cookies = []model.Cookie{{Name: "ad_id", Domain: "shop.example"}}
	f.remove("never-seen")

	assert.Empty(t, f.cookies.removed)
	assert.Empty(t, f.clearer.calls)
}

func TestRemovalConsumesTabURL(t *testing.T) {
	f := newFixture(t)
	f.cookies.cookies = []model.Cookie{{Name: "ad_id", Domain: "shop.example"}}
	f.navigate("t1", "https://shop.example/")
	f.remove("t1")
	require.NotEmpty(t, f.cookies.removed)

	// 同一标签页再次关闭不应重复清理
	f.cookies.removed = nil
	f.remove("t1")
	assert.Empty(t, f.cookies.removed)
}

func TestNavigationRecordsOnlyPositiveDeltas(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.cookies.cookies = []model.Cookie{
		{Name: "a", Domain: "shop.example"},
		{Name: "b", Domain: "shop.example"},
		{Name: "c", Domain: "shop.example"},
	}
	f.navigate("t1", "https://shop.example/")

	stats := map[string]model.SiteStat{}
	_, err := storage.GetJSON(ctx, f.store, storage.KeySiteStats, &stats)
	require.NoError(t, err)
	assert.InDelta(t, 3, stats["shop.example"].Cookies, 1e-9)
	assert.NotZero(t, stats["shop.example"].LastSeen)

	// 数量下降不产生负贡献
	f.cookies.cookies = f.cookies.cookies[:1]
	f.navigate("t1", "https://shop.example/")
	stats = map[string]model.SiteStat{}
	_, err = storage.GetJSON(ctx, f.store, storage.KeySiteStats, &stats)
	require.NoError(t, err)
	assert.InDelta(t, 3, stats["shop.example"].Cookies, 1e-9)

	// 待处理计数反映当前观测值
	assert.InDelta(t, 1, storage.GetFloat(ctx, f.store, storage.KeyPendingCookies, -1), 1e-9)
}

func TestNavigationRecordsCacheEstimate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.usage.bytes = 3 * 1024 * 1024 // 3MB
	f.navigate("t1", "https://shop.example/")

	assert.InDelta(t, 3, storage.GetFloat(ctx, f.store, storage.KeyPendingCache, -1), 1e-9)
	stats := map[string]model.SiteStat{}
	_, err := storage.GetJSON(ctx, f.store, storage.KeySiteStats, &stats)
	require.NoError(t, err)
	assert.InDelta(t, 3, stats["shop.example"].Cache, 1e-9)
}

func TestNavigationIgnoresNonHTTPSchemes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.navigate("t1", "chrome://settings")
	f.navigate("t2", "about:blank")

	tabURLs := map[string]string{}
	found, err := storage.GetJSON(ctx, f.store, storage.KeyTabURLs, &tabURLs)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestImmediateCleanupWhenAutoDeletionEnabled(t *testing.T) {
	f := newFixture(t)
	f.set(t, map[string]any{storage.KeyAutoCookieDeletion: true})
	f.cookies.cookies = []model.Cookie{
		{Name: "sessionid", Domain: "shop.example"},
		{Name: "ad_id", Domain: "shop.example"},
	}
	f.navigate("t1", "https://shop.example/")

	require.Len(t, f.cookies.removed, 1)
	assert.Contains(t, f.cookies.removed[0], "ad_id")
	h := f.history(t)
	require.Len(t, h, 1)
	assert.Equal(t, 1, h[0].CookiesDeleted)
	assert.Zero(t, storage.GetFloat(context.Background(), f.store, storage.KeyPendingCookies, -1))
}

func TestImmediateCleanupSkipsInactiveTab(t *testing.T) {
	f := newFixture(t)
	f.set(t, map[string]any{storage.KeyAutoCookieDeletion: true})
	f.cookies.cookies = []model.Cookie{{Name: "ad_id", Domain: "shop.example"}}
	f.o.HandleNavigation(context.Background(), "t1", "https://shop.example/", false)

	assert.Empty(t, f.cookies.removed)
}

func TestHistoryCappedAtLimitNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < historyLimit+5; i++ {
		f.o.appendHistory(ctx, model.DeletionHistoryEntry{
			Hostname:       "shop.example",
			Time:           isoNow(),
			CookiesDeleted: i,
		})
	}
	h := f.history(t)
	require.Len(t, h, historyLimit)
	// 前插：最新条目在头部
	assert.Equal(t, historyLimit+4, h[0].CookiesDeleted)
	assert.Equal(t, 5, h[historyLimit-1].CookiesDeleted)
}

func TestDailyTalliesKeyedByISODay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.cookies.cookies = []model.Cookie{{Name: "ad_id", Domain: "shop.example"}}
	f.navigate("t1", "https://shop.example/")
	f.remove("t1")

	daily := map[string]float64{}
	_, err := storage.GetJSON(ctx, f.store, storage.KeyDailyCookieClears, &daily)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	for day, n := range daily {
		assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, day)
		assert.InDelta(t, 1, n, 1e-9)
	}
}

func TestCookieCategoryCountsTallied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.cookies.cookies = []model.Cookie{
		{Name: "_fbp", Domain: "shop.example"},
		{Name: "random_junk", Domain: "shop.example"},
	}
	f.navigate("t1", "https://shop.example/")
	f.remove("t1")

	counts := map[string]int64{}
	_, err := storage.GetJSON(ctx, f.store, storage.KeyCookieCategoryCounts, &counts)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["advertising"])
	assert.Equal(t, int64(1), counts[CategoryUncategorized])
}

func TestManualClearGlobalScope(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.cookies.cookies = []model.Cookie{
		{Name: "a", Domain: "x.example"},
		{Name: "b", Domain: "y.example"},
	}
	f.usage.bytes = 10 * 1024 * 1024
	f.set(t, map[string]any{
		storage.KeyPendingCookies: 5,
		storage.KeyPendingCache:   2.5,
	})

	status, err := f.o.ManualClear(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Manual cleanup complete", status)

	require.Len(t, f.clearer.calls, 1)
	assert.True(t, f.clearer.calls[0].scope.Global)
	assert.True(t, f.clearer.calls[0].types.Cookies)
	assert.True(t, f.clearer.calls[0].types.Cache)

	assert.Zero(t, storage.GetFloat(ctx, f.store, storage.KeyPendingCookies, -1))
	assert.Zero(t, storage.GetFloat(ctx, f.store, storage.KeyPendingCache, -1))
	assert.InDelta(t, 2, storage.GetFloat(ctx, f.store, storage.KeyTotalCookiesDeleted, 0), 1e-9)
	assert.NotEmpty(t, storage.GetString(ctx, f.store, storage.KeyLastCleanup, ""))

	h := f.history(t)
	require.Len(t, h, 1)
	assert.Equal(t, model.ManualCleanupHostname, h[0].Hostname)
	assert.Equal(t, 2, h[0].CookiesDeleted)
	assert.True(t, h[0].CacheCleared)
}

func TestReportFingerprintAccumulates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.o.ReportFingerprint(ctx, "shady.example")
	f.o.ReportFingerprint(ctx, "shady.example")

	stats := map[string]model.SiteStat{}
	_, err := storage.GetJSON(ctx, f.store, storage.KeySiteStats, &stats)
	require.NoError(t, err)
	assert.InDelta(t, 2, stats["shady.example"].Fingerprints, 1e-9)
}

func TestRoundMB(t *testing.T) {
	assert.InDelta(t, 1.5, roundMB(1.5*1024*1024), 1e-9)
	assert.InDelta(t, 0.01, roundMB(10486), 1e-9)
	assert.Zero(t, roundMB(0))
}
