// Package browser 定义隐私引擎依赖的浏览器侧协作者接口。
// 生产实现基于 CDP（见 manager.go），测试使用注入的伪实现。
package browser

import (
	"context"

	"cleantrail/pkg/model"
)

// RuleEngine 声明式网络规则引擎：安装/移除拦截规则并上报命中事件
type RuleEngine interface {
	// UpdateRules 原子地应用一批新增与移除；失败时不得留下部分安装的未知状态
	UpdateRules(ctx context.Context, add []model.BlockRule, removeIDs []model.RuleID) error
	// OnMatch 注册规则命中（或观察到的请求）监听器
	OnMatch(fn func(model.RuleMatch))
}

// CookieStore 浏览器 Cookie 存储
type CookieStore interface {
	// GetAll 返回指定域名下的全部 Cookie
	GetAll(ctx context.Context, domain string) ([]model.Cookie, error)
	// Remove 按地址与名称删除单个 Cookie
	Remove(ctx context.Context, url, name string) error
}

// ClearScope 站点数据清理范围
type ClearScope struct {
	Origins []string // 为空且 Global 为真时表示全局
	Global  bool
}

// ClearTypes 站点数据清理类型
type ClearTypes struct {
	Cookies bool
	Cache   bool
}

// DataClearer 站点数据清理接口（缓存/Cookie，按源或全局）
type DataClearer interface {
	Clear(ctx context.Context, scope ClearScope, types ClearTypes) error
}

// CleanupArgs 页面上下文存储清理参数
type CleanupArgs struct {
	DeleteLocalStorage   bool `json:"deleteLocalStorage"`
	DeleteSessionStorage bool `json:"deleteSessionStorage"`
	DeleteIndexedDB      bool `json:"deleteIndexedDB"`
}

// ScriptInjector 页面上下文脚本注入。
// localStorage/sessionStorage/indexedDB 只能在页面自身执行环境中清除。
type ScriptInjector interface {
	Execute(ctx context.Context, tab model.TabID, args CleanupArgs) error
}

// TabEvents 标签页生命周期事件。同一标签页保证导航先于关闭。
type TabEvents interface {
	OnUpdated(fn func(tab model.TabID, url string, active bool))
	OnRemoved(fn func(tab model.TabID))
}

// UsageEstimator 站点存储占用估算（字节）
type UsageEstimator interface {
	Usage(ctx context.Context, origin string) (float64, error)
}

// Indicator 紧凑可视指示器（等级字母与颜色）
type Indicator interface {
	SetBadge(text, color string)
}
