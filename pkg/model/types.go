package model

// TabID 浏览器标签页ID
type TabID string

// RuleID 网络拦截规则ID
type RuleID int

// TrackerRecord 已拦截跟踪器记录（按可注册域名聚合）
type TrackerRecord struct {
	Count            int64  `json:"count"`            // 拦截次数
	FirstBlocked     int64  `json:"firstBlocked"`     // 首次拦截时间戳（毫秒，仅设置一次）
	LastSeen         int64  `json:"lastSeen"`         // 最近出现时间戳（毫秒，单调不减）
	TotalTimeSavedMs int64  `json:"totalTimeSavedMs"` // 累计节省时间（毫秒，固定增量）
	Category         string `json:"category,omitempty"`
}

// PendingTrackerRecord 观察到但未必强制拦截的跟踪器记录
type PendingTrackerRecord struct {
	Count      int64    `json:"count"`
	FirstSeen  int64    `json:"firstSeen"`
	LastSeen   int64    `json:"lastSeen"`
	Categories []string `json:"categories"` // 观察到的类别标签并集
}

// SiteStat 按主机名累计的原始信号（写入时不做衰减）
type SiteStat struct {
	Cookies      float64 `json:"cookies"`
	Cache        float64 `json:"cache"`
	Trackers     float64 `json:"trackers"`
	Fingerprints float64 `json:"fingerprints"`
	LastSeen     int64   `json:"lastSeen"` // 最近更新时间戳（毫秒）
}

// AggregateStats 衰减加权后的四项聚合值
type AggregateStats struct {
	Cookies      float64 `json:"cookies"`
	Cache        float64 `json:"cache"`
	Trackers     float64 `json:"trackers"`
	Fingerprints float64 `json:"fingerprints"`
}

// ScoreEvent 隐私评分推送事件
type ScoreEvent struct {
	RawScore  int            `json:"rawScore"`
	Letter    string         `json:"letter"`
	Cookies   PendingCount   `json:"cookies"`
	Cache     PendingAmount  `json:"cache"`
	Trackers  TrackerCounts  `json:"trackers"`
	Aggregate AggregateStats `json:"aggregate"`
}

// PendingCount 待处理数量
type PendingCount struct {
	Pending int64 `json:"pending"`
}

// PendingAmount 待处理估算量（MB）
type PendingAmount struct {
	Pending float64 `json:"pending"`
}

// TrackerCounts 跟踪器域名计数
type TrackerCounts struct {
	Pending int `json:"pending"` // 观察到的域名数
	Blocked int `json:"blocked"` // 已拦截的域名数
}

// Cookie 浏览器 Cookie
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
	Secure bool   `json:"secure"`
}

// URL 构造传给 Cookie 删除接口的地址
func (c Cookie) URL() string {
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	path := c.Path
	if path == "" {
		path = "/"
	}
	return scheme + "://" + StripDot(c.Domain) + path
}

// StripDot 去掉 Cookie 域名的前导点
func StripDot(domain string) string {
	if len(domain) > 0 && domain[0] == '.' {
		return domain[1:]
	}
	return domain
}

// DeletionHistoryEntry 清理历史条目（新在前，最多保留20条）
type DeletionHistoryEntry struct {
	ID              string  `json:"id"`
	Hostname        string  `json:"hostname"` // 主机名，手动全局清理时为固定标记
	Time            string  `json:"time"`     // ISO 时间
	CookiesDeleted  int     `json:"cookiesDeleted"`
	CacheCleared    bool    `json:"cacheCleared"`
	CacheEstimateMB float64 `json:"cacheEstimateMB,omitempty"`
}

// ManualCleanupHostname 手动全局清理在历史条目中使用的主机名标记
const ManualCleanupHostname = "Manual cleanup"

// RuleMatch 网络规则命中事件
type RuleMatch struct {
	URL        string   `json:"url"`
	RuleID     RuleID   `json:"ruleId"`
	TabID      TabID    `json:"tabId"`
	Categories []string `json:"categories"`
}

// BlockRule 声明式拦截规则（交给网络规则引擎安装）
type BlockRule struct {
	ID            RuleID   `json:"id"`
	Priority      int      `json:"priority"`
	URLFilter     string   `json:"urlFilter"`
	ResourceTypes []string `json:"resourceTypes"`
}

// TrackerStats 跟踪器统计（供界面查询）
type TrackerStats struct {
	Blocked map[string]TrackerRecord        `json:"blockedTrackers"`
	Pending map[string]PendingTrackerRecord `json:"pendingTrackers"`
}

// ProfileEvent 清理配置变更推送事件
type ProfileEvent struct {
	Profile string `json:"profile"`
	Source  string `json:"source"`
}
