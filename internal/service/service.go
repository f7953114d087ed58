package service

import (
	"context"
	"time"

	"cleantrail/internal/browser"
	"cleantrail/internal/bundle"
	"cleantrail/internal/cleanup"
	"cleantrail/internal/config"
	"cleantrail/internal/logger"
	"cleantrail/internal/rules"
	"cleantrail/internal/score"
	"cleantrail/internal/storage"
	"cleantrail/pkg/model"
	"cleantrail/pkg/profile"
)

// Collaborators 引擎依赖的浏览器侧协作者
type Collaborators struct {
	Engine    browser.RuleEngine
	Cookies   browser.CookieStore
	Clearer   browser.DataClearer
	Injector  browser.ScriptInjector
	Usage     browser.UsageEstimator
	Tabs      browser.TabEvents
	Indicator browser.Indicator
}

// Svc 隐私保护引擎服务层：注册各事件类别的处理器，
// 把规则集管理器、评分发布器与清理编排器接到协作者上。
type Svc struct {
	store    storage.Store
	log      logger.Logger
	cfg      *config.Config
	approved []string

	rules     *rules.Manager
	publisher *score.Publisher
	cleaner   *cleanup.Orchestrator
}

// New 创建服务层实例并完成事件处理器注册
func New(store storage.Store, collab Collaborators, cfg *config.Config, l logger.Logger) *Svc {
	if l == nil {
		l = logger.NewNoopLogger()
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	approved, err := bundle.ApprovedDomains()
	if err != nil {
		l.Err(err, "加载已审核域名包失败，使用空列表")
		approved = nil
	}
	categories, err := bundle.CookieCategories()
	if err != nil {
		l.Err(err, "加载 Cookie 类别包失败，使用默认映射")
	}

	policy := score.DefaultPolicy()
	if cfg.Score.HalfLifeHours > 0 {
		policy.HalfLife = time.Duration(cfg.Score.HalfLifeHours) * time.Hour
	}
	if cfg.Score.DebounceMS > 0 {
		policy.Debounce = time.Duration(cfg.Score.DebounceMS) * time.Millisecond
	}

	s := &Svc{
		store:    store,
		log:      l,
		cfg:      cfg,
		approved: approved,
	}
	s.publisher = score.NewPublisher(store, collab.Indicator, l, policy)
	s.rules = rules.NewManager(collab.Engine, store, l, rules.Options{
		IDBase:      cfg.Rules.IDBase,
		IDRange:     cfg.Rules.IDRange,
		TimeSavedMS: cfg.Rules.TimeSavedMS,
	})
	s.rules.SetRecompute(s.publisher.Request)
	s.cleaner = cleanup.New(cleanup.Deps{
		Store:    store,
		Cookies:  collab.Cookies,
		Clearer:  collab.Clearer,
		Injector: collab.Injector,
		Usage:    collab.Usage,
		Log:      l,
	}, categories)
	s.cleaner.SetRecompute(s.publisher.Request)

	// 各事件类别的显式处理器注册
	if collab.Engine != nil {
		collab.Engine.OnMatch(func(m model.RuleMatch) {
			s.rules.HandleMatch(context.Background(), m)
		})
	}
	if collab.Tabs != nil {
		collab.Tabs.OnUpdated(func(tab model.TabID, url string, active bool) {
			s.cleaner.HandleNavigation(context.Background(), tab, url, active)
		})
		collab.Tabs.OnRemoved(func(tab model.TabID) {
			s.cleaner.HandleRemoval(context.Background(), tab)
		})
	}
	return s
}

// Start 初始化引擎：按持久化开关协调规则集并发布首个评分
func (s *Svc) Start(ctx context.Context) error {
	if storage.GetBool(ctx, s.store, storage.KeyTrackerBlocking, true) {
		s.rules.Reconcile(ctx, s.approved)
	}
	s.publisher.Request()
	s.log.Info("隐私保护引擎已启动", "approvedDomains", len(s.approved))
	return nil
}

// Stop 停止引擎（在飞清理任务不取消，运行到自然结束）
func (s *Svc) Stop() error {
	s.log.Info("隐私保护引擎已停止")
	return nil
}

// GetPrivacyScore 同步计算并返回当前隐私评分
func (s *Svc) GetPrivacyScore(ctx context.Context) (model.ScoreEvent, error) {
	return s.publisher.Snapshot(ctx)
}

// SetTrackerBlocking 切换跟踪器拦截开关
func (s *Svc) SetTrackerBlocking(ctx context.Context, enabled bool) error {
	s.rules.SetEnabled(ctx, enabled, s.approved)
	return nil
}

// ManualClear 立即执行全局 Cookie+缓存清理并返回完成状态
func (s *Svc) ManualClear(ctx context.Context) (string, error) {
	return s.cleaner.ManualClear(ctx)
}

// GetTrackerStats 返回已拦截与待定跟踪器统计
func (s *Svc) GetTrackerStats(ctx context.Context) (model.TrackerStats, error) {
	stats := model.TrackerStats{
		Blocked: map[string]model.TrackerRecord{},
		Pending: map[string]model.PendingTrackerRecord{},
	}
	if _, err := storage.GetJSON(ctx, s.store, storage.KeyBlockedTrackers, &stats.Blocked); err != nil {
		return stats, err
	}
	if _, err := storage.GetJSON(ctx, s.store, storage.KeyPendingTrackers, &stats.Pending); err != nil {
		return stats, err
	}
	return stats, nil
}

// GetDeletionHistory 返回清理历史（新在前）
func (s *Svc) GetDeletionHistory(ctx context.Context) ([]model.DeletionHistoryEntry, error) {
	var history []model.DeletionHistoryEntry
	if _, err := storage.GetJSON(ctx, s.store, storage.KeyDeletionHistory, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// SetProfile 手动选择清理配置（粘滞，抑制自适应覆盖）
func (s *Svc) SetProfile(ctx context.Context, key string) error {
	s.cleaner.SetProfile(ctx, key, profile.SourceManual)
	return nil
}

// ReportFingerprint 记录外部指纹探测器上报的事件
func (s *Svc) ReportFingerprint(ctx context.Context, hostname string) {
	s.cleaner.ReportFingerprint(ctx, hostname)
}

// SubscribeScore 订阅评分推送事件
func (s *Svc) SubscribeScore(fn func(model.ScoreEvent)) {
	s.publisher.Subscribe(fn)
}

// SubscribeProfile 订阅清理配置变更事件
func (s *Svc) SubscribeProfile(fn func(model.ProfileEvent)) {
	s.cleaner.SetProfileChanged(fn)
}
