package browser

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/runtime"
	cdpstorage "github.com/mafredri/cdp/protocol/storage"
	"github.com/mafredri/cdp/protocol/target"
	"github.com/mafredri/cdp/rpcc"

	"cleantrail/internal/logger"
	"cleantrail/pkg/errx"
	"cleantrail/pkg/model"
)

// Manager 基于 DevTools 协议的浏览器协作者实现。
// 同时充当规则引擎、Cookie 存储、站点数据清理、脚本注入、
// 标签页事件与存储估算的后端。
type Manager struct {
	devtoolsURL string
	log         logger.Logger

	conn   *rpcc.Conn
	client *cdp.Client
	ctx    context.Context
	cancel context.CancelFunc
	pool   *workerPool

	mu        sync.Mutex
	installed map[model.RuleID]string // 规则ID -> 域名过滤模式
	onMatch   []func(model.RuleMatch)
	onUpdated []func(tab model.TabID, url string, active bool)
	onRemoved []func(tab model.TabID)
	reqURLs   map[network.RequestID]reqInfo
}

type reqInfo struct {
	url string
	tab model.TabID
}

// NewManager 创建 CDP 浏览器管理器
func NewManager(devtoolsURL string, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &Manager{
		devtoolsURL: devtoolsURL,
		log:         log,
		installed:   make(map[model.RuleID]string),
		reqURLs:     make(map[network.RequestID]reqInfo),
	}
}

// Attach 连接 DevTools 端点并启动事件消费
func (m *Manager) Attach(ctx context.Context, concurrency int) error {
	cctx, cancel := context.WithCancel(context.Background())
	m.ctx = cctx
	m.cancel = cancel

	dt := devtool.New(m.devtoolsURL)
	targets, err := dt.List(ctx)
	if err != nil {
		cancel()
		return errx.Wrap(errx.CodeNotAttached, err, "list devtools targets")
	}
	var sel *devtool.Target
	for i := range targets {
		if targets[i].Type == devtool.Page {
			sel = targets[i]
			break
		}
	}
	if sel == nil {
		cancel()
		return errx.New(errx.CodeNotAttached, "no page target")
	}
	conn, err := rpcc.DialContext(cctx, sel.WebSocketDebuggerURL)
	if err != nil {
		cancel()
		return errx.Wrap(errx.CodeNotAttached, err, "dial devtools")
	}
	m.conn = conn
	m.client = cdp.NewClient(conn)

	if err := m.client.Network.Enable(cctx, nil); err != nil {
		return errx.Wrap(errx.CodeNotAttached, err, "enable network domain")
	}
	if err := m.client.Target.SetDiscoverTargets(cctx, target.NewSetDiscoverTargetsArgs(true)); err != nil {
		m.log.Err(err, "开启目标发现失败，标签页事件不可用")
	}

	m.pool = newWorkerPool(concurrency, m.log)
	m.pool.start(cctx)
	go m.consumeRequests()
	go m.consumeFailures()
	go m.consumeTargets()
	return nil
}

// Detach 断开连接并停止事件消费
func (m *Manager) Detach() error {
	if m.pool != nil {
		m.pool.stop()
	}
	if m.cancel != nil {
		m.cancel()
	}
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}

// UpdateRules 应用规则增删并一次性下发完整拦截模式列表。
// 下发失败时不修改已安装记录，调用方的强制集保持不变。
func (m *Manager) UpdateRules(ctx context.Context, add []model.BlockRule, removeIDs []model.RuleID) error {
	if m.client == nil {
		return errx.New(errx.CodeNotAttached, "not attached")
	}
	m.mu.Lock()
	next := make(map[model.RuleID]string, len(m.installed)+len(add))
	for id, p := range m.installed {
		next[id] = p
	}
	for _, id := range removeIDs {
		delete(next, id)
	}
	for _, r := range add {
		next[r.ID] = blockPattern(r.URLFilter)
	}
	patterns := make([]string, 0, len(next))
	for _, p := range next {
		patterns = append(patterns, p)
	}
	m.mu.Unlock()

	if err := m.client.Network.SetBlockedURLs(ctx, network.NewSetBlockedURLsArgs(patterns)); err != nil {
		return errx.Wrap(errx.CodeEngineFailed, err, "set blocked urls")
	}
	m.mu.Lock()
	m.installed = next
	m.mu.Unlock()
	return nil
}

// blockPattern 把 ||domain^ 形式的过滤器转成拦截通配模式
func blockPattern(urlFilter string) string {
	d := strings.TrimPrefix(urlFilter, "||")
	d = strings.TrimSuffix(d, "^")
	return "*" + d + "*"
}

// OnMatch 注册规则命中监听器
func (m *Manager) OnMatch(fn func(model.RuleMatch)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMatch = append(m.onMatch, fn)
}

// OnUpdated 注册标签页导航监听器
func (m *Manager) OnUpdated(fn func(tab model.TabID, url string, active bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdated = append(m.onUpdated, fn)
}

// OnRemoved 注册标签页关闭监听器
func (m *Manager) OnRemoved(fn func(tab model.TabID)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRemoved = append(m.onRemoved, fn)
}

// consumeRequests 记录请求ID到地址的映射，供拦截事件还原地址
func (m *Manager) consumeRequests() {
	rs, err := m.client.Network.RequestWillBeSent(m.ctx)
	if err != nil {
		m.log.Err(err, "订阅请求事件失败")
		return
	}
	defer rs.Close()
	for {
		ev, err := rs.Recv()
		if err != nil {
			return
		}
		m.mu.Lock()
		m.reqURLs[ev.RequestID] = reqInfo{url: ev.Request.URL}
		// 映射只需覆盖在途请求，防止无界增长
		if len(m.reqURLs) > 4096 {
			m.reqURLs = make(map[network.RequestID]reqInfo)
		}
		m.mu.Unlock()
	}
}

// consumeFailures 把因拦截而失败的加载转换为规则命中事件
func (m *Manager) consumeFailures() {
	lf, err := m.client.Network.LoadingFailed(m.ctx)
	if err != nil {
		m.log.Err(err, "订阅加载失败事件失败")
		return
	}
	defer lf.Close()
	for {
		ev, err := lf.Recv()
		if err != nil {
			return
		}
		if ev.BlockedReason != network.BlockedReasonInspector {
			continue
		}
		m.mu.Lock()
		info, ok := m.reqURLs[ev.RequestID]
		if ok {
			delete(m.reqURLs, ev.RequestID)
		}
		fns := m.onMatch
		m.mu.Unlock()
		if !ok || info.url == "" {
			continue
		}
		match := model.RuleMatch{URL: info.url, TabID: info.tab, Categories: []string{"tracking"}}
		m.pool.submit(func() {
			for _, fn := range fns {
				fn(match)
			}
		})
	}
}

// consumeTargets 把目标生命周期事件转换为标签页事件
func (m *Manager) consumeTargets() {
	changed, err := m.client.Target.TargetInfoChanged(m.ctx)
	if err != nil {
		m.log.Err(err, "订阅目标变更事件失败")
		return
	}
	destroyed, err := m.client.Target.TargetDestroyed(m.ctx)
	if err != nil {
		m.log.Err(err, "订阅目标销毁事件失败")
		return
	}
	go func() {
		defer changed.Close()
		for {
			ev, err := changed.Recv()
			if err != nil {
				return
			}
			if ev.TargetInfo.Type != "page" || ev.TargetInfo.URL == "" {
				continue
			}
			tab := model.TabID(ev.TargetInfo.TargetID)
			url := ev.TargetInfo.URL
			m.mu.Lock()
			fns := m.onUpdated
			m.mu.Unlock()
			m.pool.submit(func() {
				for _, fn := range fns {
					fn(tab, url, true)
				}
			})
		}
	}()
	defer destroyed.Close()
	for {
		ev, err := destroyed.Recv()
		if err != nil {
			return
		}
		tab := model.TabID(ev.TargetID)
		m.mu.Lock()
		fns := m.onRemoved
		m.mu.Unlock()
		m.pool.submit(func() {
			for _, fn := range fns {
				fn(tab)
			}
		})
	}
}

// GetAll 返回指定域名下的全部 Cookie，域名为空时返回所有
func (m *Manager) GetAll(ctx context.Context, domain string) ([]model.Cookie, error) {
	if m.client == nil {
		return nil, errx.New(errx.CodeNotAttached, "not attached")
	}
	reply, err := m.client.Network.GetAllCookies(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Cookie, 0, len(reply.Cookies))
	for _, c := range reply.Cookies {
		if domain != "" && !strings.HasSuffix(model.StripDot(c.Domain), domain) {
			continue
		}
		out = append(out, model.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
			Secure: c.Secure,
		})
	}
	return out, nil
}

// Remove 按地址与名称删除单个 Cookie
func (m *Manager) Remove(ctx context.Context, url, name string) error {
	if m.client == nil {
		return errx.New(errx.CodeNotAttached, "not attached")
	}
	args := network.NewDeleteCookiesArgs(name)
	args.URL = &url
	return m.client.Network.DeleteCookies(ctx, args)
}

// Clear 清理站点数据：按源清理走 Storage 域，全局清理走 Network 域
func (m *Manager) Clear(ctx context.Context, scope ClearScope, types ClearTypes) error {
	if m.client == nil {
		return errx.New(errx.CodeNotAttached, "not attached")
	}
	if scope.Global {
		if types.Cache {
			if err := m.client.Network.ClearBrowserCache(ctx); err != nil {
				return err
			}
		}
		if types.Cookies {
			if err := m.client.Network.ClearBrowserCookies(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	var st []string
	if types.Cache {
		st = append(st, "cache_storage")
	}
	if types.Cookies {
		st = append(st, "cookies")
	}
	for _, origin := range scope.Origins {
		args := cdpstorage.NewClearDataForOriginArgs(origin, strings.Join(st, ","))
		if err := m.client.Storage.ClearDataForOrigin(ctx, args); err != nil {
			return err
		}
	}
	return nil
}

// Usage 返回指定源的存储占用估算（字节），源为空时统计全局
func (m *Manager) Usage(ctx context.Context, origin string) (float64, error) {
	if m.client == nil {
		return 0, errx.New(errx.CodeNotAttached, "not attached")
	}
	args := cdpstorage.NewGetUsageAndQuotaArgs(origin)
	reply, err := m.client.Storage.GetUsageAndQuota(ctx, args)
	if err != nil {
		return 0, err
	}
	return reply.Usage, nil
}

// cleanupScript 在页面上下文中执行的存储清理脚本
const cleanupScript = `(function(opts){
  try {
    if (opts.deleteLocalStorage) localStorage.clear();
    if (opts.deleteSessionStorage) sessionStorage.clear();
    if (opts.deleteIndexedDB && indexedDB.databases) {
      indexedDB.databases().then(function(dbs){
        dbs.forEach(function(db){ indexedDB.deleteDatabase(db.name); });
      });
    }
    return true;
  } catch (e) { return false; }
})`

// Execute 对指定标签页执行页面上下文存储清理
func (m *Manager) Execute(ctx context.Context, tab model.TabID, args CleanupArgs) error {
	dt := devtool.New(m.devtoolsURL)
	targets, err := dt.List(ctx)
	if err != nil {
		return errx.Wrap(errx.CodeNotAttached, err, "list devtools targets")
	}
	var sel *devtool.Target
	for i := range targets {
		if string(targets[i].ID) == string(tab) {
			sel = targets[i]
			break
		}
	}
	if sel == nil {
		return errx.New(errx.CodeNotAttached, "tab target not found")
	}
	conn, err := rpcc.DialContext(ctx, sel.WebSocketDebuggerURL)
	if err != nil {
		return errx.Wrap(errx.CodeNotAttached, err, "dial tab target")
	}
	defer conn.Close()
	client := cdp.NewClient(conn)

	payload, err := json.Marshal(args)
	if err != nil {
		return err
	}
	expr := cleanupScript + "(" + string(payload) + ")"
	_, err = client.Runtime.Evaluate(ctx, runtime.NewEvaluateArgs(expr))
	return err
}
