package rules

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"cleantrail/internal/browser"
	"cleantrail/internal/logger"
	"cleantrail/internal/storage"
	"cleantrail/pkg/model"
)

// Options 规则集管理器配置
type Options struct {
	IDBase      int   // 保留规则ID区间起始值
	IDRange     int   // 保留区间大小
	TimeSavedMS int64 // 每次拦截的固定节省时间增量
}

// 资源类型与原始规则条目保持一致
var blockedResourceTypes = []string{"script", "xmlhttprequest", "sub_frame", "image", "stylesheet"}

// Manager 规则集管理器：把已审核跟踪器域名列表转换为规则引擎条目，
// 维护当前强制拦截的域名集，并把命中事件转换为跟踪器统计更新。
type Manager struct {
	engine browser.RuleEngine
	store  storage.Store
	log    logger.Logger
	opts   Options

	// 评分重算请求（由评分发布器做防抖合并）
	recompute func()

	mu       sync.Mutex
	enforced map[string]model.RuleID // 域名 -> 已安装规则ID，仅为镜像缓存
}

// NewManager 创建规则集管理器
func NewManager(engine browser.RuleEngine, store storage.Store, log logger.Logger, opts Options) *Manager {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if opts.IDBase <= 0 {
		opts.IDBase = 100000
	}
	if opts.IDRange <= 0 {
		opts.IDRange = 10000
	}
	if opts.TimeSavedMS <= 0 {
		opts.TimeSavedMS = 50
	}
	return &Manager{
		engine:   engine,
		store:    store,
		log:      log,
		opts:     opts,
		enforced: make(map[string]model.RuleID),
	}
}

// SetRecompute 设置评分重算请求回调
func (m *Manager) SetRecompute(fn func()) { m.recompute = fn }

// Reconcile 根据已审核域名列表协调规则引擎中的规则集。
// 映射确定（基值+列表序号），列表不变时第二次调用不产生引擎调用。
// 空列表会拆除保留区间内的全部规则。安装失败只记录日志并保持强制集不变。
func (m *Manager) Reconcile(ctx context.Context, approved []string) {
	domains := append([]string(nil), approved...)
	sort.Strings(domains)

	want := make(map[string]model.RuleID, len(domains))
	for i, d := range domains {
		if i >= m.opts.IDRange {
			m.log.Warn("已审核域名超出保留规则区间，忽略多余部分", "count", len(domains), "range", m.opts.IDRange)
			break
		}
		want[d] = model.RuleID(m.opts.IDBase + i)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(want) == 0 {
		m.teardownLocked(ctx)
		return
	}

	if sameRuleSet(m.enforced, want) {
		return
	}

	var add []model.BlockRule
	for _, d := range domains {
		id, ok := want[d]
		if !ok {
			continue
		}
		add = append(add, model.BlockRule{
			ID:            id,
			Priority:      1,
			URLFilter:     "||" + d + "^",
			ResourceTypes: blockedResourceTypes,
		})
	}
	var remove []model.RuleID
	for d, id := range m.enforced {
		if _, ok := want[d]; !ok {
			remove = append(remove, id)
		}
	}

	if err := m.engine.UpdateRules(ctx, add, remove); err != nil {
		m.log.Err(err, "安装拦截规则失败，保持原强制集不变", "add", len(add), "remove", len(remove))
		return
	}
	m.enforced = want
	m.log.Info("规则集协调完成", "enforced", len(want))
}

// teardownLocked 移除保留区间内全部规则并清空强制集，调用方需持锁
func (m *Manager) teardownLocked(ctx context.Context) {
	removeIDs := make([]model.RuleID, 0, m.opts.IDRange)
	for i := 0; i < m.opts.IDRange; i++ {
		removeIDs = append(removeIDs, model.RuleID(m.opts.IDBase+i))
	}
	if err := m.engine.UpdateRules(ctx, nil, removeIDs); err != nil {
		m.log.Err(err, "拆除拦截规则失败")
	}
	m.enforced = make(map[string]model.RuleID)
}

// SetEnabled 切换跟踪器拦截。关闭时拆除全部规则并清空缓存；
// 开启时从内置域名列表重新协调，而不是恢复旧状态。
func (m *Manager) SetEnabled(ctx context.Context, enabled bool, approved []string) {
	if err := m.store.Set(ctx, map[string]any{storage.KeyTrackerBlocking: enabled}); err != nil {
		m.log.Err(err, "持久化拦截开关失败")
	}
	if !enabled {
		m.mu.Lock()
		m.teardownLocked(ctx)
		m.mu.Unlock()
		return
	}
	m.Reconcile(ctx, approved)
}

// Enforced 返回当前强制拦截域名集的快照
func (m *Manager) Enforced() map[string]model.RuleID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.RuleID, len(m.enforced))
	for d, id := range m.enforced {
		out[d] = id
	}
	return out
}

// HandleMatch 处理一次规则命中（或观察到的请求）。
// 待定记录无论是否强制拦截都更新；已拦截记录仅在域名处于强制集时更新。
// 每次都重新读取存储中的旧值，避免突发流量下丢失更新。
func (m *Manager) HandleMatch(ctx context.Context, match model.RuleMatch) {
	host := hostnameOf(match.URL)
	if host == "" {
		return
	}
	domain := RegistrableDomain(host)
	now := time.Now().UnixMilli()

	m.updatePending(ctx, domain, match.Categories, now)

	m.mu.Lock()
	_, isEnforced := m.enforced[domain]
	m.mu.Unlock()
	if isEnforced {
		m.updateBlocked(ctx, domain, now)
	}

	if m.recompute != nil {
		m.recompute()
	}
}

func (m *Manager) updatePending(ctx context.Context, domain string, categories []string, now int64) {
	pending := map[string]model.PendingTrackerRecord{}
	if _, err := storage.GetJSON(ctx, m.store, storage.KeyPendingTrackers, &pending); err != nil {
		m.log.Err(err, "读取待定跟踪器记录失败")
		return
	}
	rec := pending[domain]
	if rec.FirstSeen == 0 {
		rec.FirstSeen = now
	}
	rec.Count++
	rec.LastSeen = now
	if len(categories) == 0 {
		categories = []string{"tracking"}
	}
	rec.Categories = unionSorted(rec.Categories, categories)
	pending[domain] = rec
	if err := m.store.Set(ctx, map[string]any{storage.KeyPendingTrackers: pending}); err != nil {
		m.log.Err(err, "持久化待定跟踪器记录失败")
	}
}

func (m *Manager) updateBlocked(ctx context.Context, domain string, now int64) {
	blocked := map[string]model.TrackerRecord{}
	if _, err := storage.GetJSON(ctx, m.store, storage.KeyBlockedTrackers, &blocked); err != nil {
		m.log.Err(err, "读取已拦截跟踪器记录失败")
		return
	}
	rec := blocked[domain]
	if rec.FirstBlocked == 0 {
		rec.FirstBlocked = now
	}
	rec.Count++
	rec.LastSeen = now
	rec.TotalTimeSavedMs += m.opts.TimeSavedMS
	blocked[domain] = rec
	if err := m.store.Set(ctx, map[string]any{storage.KeyBlockedTrackers: blocked}); err != nil {
		m.log.Err(err, "持久化已拦截跟踪器记录失败")
	}
}

// RegistrableDomain 取主机名最后两段作为可注册域名。
// 对多段公共后缀（如 co.uk）并不准确，保留为已知近似。
func RegistrableDomain(host string) string {
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

func hostnameOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func sameRuleSet(a, b map[string]model.RuleID) bool {
	if len(a) != len(b) {
		return false
	}
	for d, id := range a {
		if b[d] != id {
			return false
		}
	}
	return true
}

func unionSorted(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
