package score

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/bep/debounce"

	"cleantrail/internal/browser"
	"cleantrail/internal/logger"
	"cleantrail/internal/storage"
	"cleantrail/pkg/model"
)

// interestingKeys 命中时触发评分重算的状态键集合
var interestingKeys = map[string]struct{}{
	storage.KeySiteStats:           {},
	storage.KeyPendingCookies:      {},
	storage.KeyTotalCookiesDeleted: {},
	storage.KeyPendingCache:        {},
	storage.KeyTotalCacheCleared:   {},
	storage.KeyPendingTrackers:     {},
	storage.KeyBlockedTrackers:     {},
}

// Publisher 防抖的评分发布器。
// 多次触发在窗口内合并为一次重算；触发时重新读取全部依赖键，
// 不使用调度时捕获的值。
type Publisher struct {
	store     storage.Store
	log       logger.Logger
	policy    Policy
	indicator browser.Indicator

	debounced func(fn func())

	mu        sync.Mutex
	listeners []func(model.ScoreEvent)
}

// NewPublisher 创建评分发布器并订阅存储变更
func NewPublisher(store storage.Store, indicator browser.Indicator, log logger.Logger, policy Policy) *Publisher {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	d := policy.Debounce
	if d <= 0 {
		d = 250 * time.Millisecond
	}
	p := &Publisher{
		store:     store,
		log:       log,
		policy:    policy,
		indicator: indicator,
		debounced: debounce.New(d),
	}
	// 任何写入方改动关心的键都触发重算，生产者与评分消费者解耦
	store.OnChange(p.handleStoreChange)
	return p
}

// Subscribe 注册评分事件监听器
func (p *Publisher) Subscribe(fn func(model.ScoreEvent)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Request 请求一次防抖的评分重算与发布
func (p *Publisher) Request() {
	p.debounced(p.publish)
}

// handleStoreChange 存储变更回调，过滤出关心的键
func (p *Publisher) handleStoreChange(keys []string) {
	for _, k := range keys {
		if _, ok := interestingKeys[k]; ok {
			p.Request()
			return
		}
	}
}

// publish 重算并发布：更新指示器，广播结构化事件
func (p *Publisher) publish() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	ev, err := p.Snapshot(ctx)
	if err != nil {
		p.log.Err(err, "评分重算失败")
		return
	}
	if p.indicator != nil {
		p.indicator.SetBadge(ev.Letter, Color(ev.Letter))
	}
	p.mu.Lock()
	ls := p.listeners
	p.mu.Unlock()
	for _, fn := range ls {
		fn(ev)
	}
}

// Snapshot 同步读取依赖键并计算当前评分事件
func (p *Publisher) Snapshot(ctx context.Context) (model.ScoreEvent, error) {
	siteStats := map[string]model.SiteStat{}
	if _, err := storage.GetJSON(ctx, p.store, storage.KeySiteStats, &siteStats); err != nil {
		return model.ScoreEvent{}, err
	}
	pendingTrackers := map[string]model.PendingTrackerRecord{}
	_, _ = storage.GetJSON(ctx, p.store, storage.KeyPendingTrackers, &pendingTrackers)
	blockedTrackers := map[string]model.TrackerRecord{}
	_, _ = storage.GetJSON(ctx, p.store, storage.KeyBlockedTrackers, &blockedTrackers)

	agg := Aggregate(siteStats, time.Now(), p.policy.HalfLife)
	raw := p.policy.Grade(agg)
	return model.ScoreEvent{
		RawScore:  int(math.Round(raw)),
		Letter:    p.policy.Letter(raw),
		Cookies:   model.PendingCount{Pending: int64(storage.GetFloat(ctx, p.store, storage.KeyPendingCookies, 0))},
		Cache:     model.PendingAmount{Pending: storage.GetFloat(ctx, p.store, storage.KeyPendingCache, 0)},
		Trackers:  model.TrackerCounts{Pending: len(pendingTrackers), Blocked: len(blockedTrackers)},
		Aggregate: agg,
	}, nil
}
