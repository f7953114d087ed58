package score

import (
	"math"
	"time"

	"cleantrail/pkg/model"
)

// Policy 评分策略常量：权重、阈值与半衰期都是配置而非散落的魔法数
type Policy struct {
	HalfLife time.Duration // 衰减半衰期

	CookieWeight      float64
	CacheWeight       float64
	TrackerWeight     float64
	FingerprintWeight float64

	// 字母等级阈值，比较为严格大于
	APlus float64
	A     float64
	B     float64
	C     float64

	Debounce time.Duration // 发布防抖窗口
}

// DefaultPolicy 返回默认评分策略
func DefaultPolicy() Policy {
	return Policy{
		HalfLife:          24 * time.Hour,
		CookieWeight:      0.05,
		CacheWeight:       0.01,
		TrackerWeight:     0.02,
		FingerprintWeight: 0.5,
		APlus:             90,
		A:                 80,
		B:                 70,
		C:                 60,
		Debounce:          250 * time.Millisecond,
	}
}

// Aggregate 对站点统计做时间衰减加权求和。
// lastSeen 为零的站点视为从未观察到，排除在外；衰减只在读取时应用。
func Aggregate(siteStats map[string]model.SiteStat, now time.Time, halfLife time.Duration) model.AggregateStats {
	var agg model.AggregateStats
	nowMs := now.UnixMilli()
	hl := float64(halfLife.Milliseconds())
	for _, s := range siteStats {
		if s.LastSeen == 0 {
			continue
		}
		age := float64(nowMs - s.LastSeen)
		if age < 0 {
			age = 0
		}
		weight := math.Exp(-age / hl)
		agg.Cookies += s.Cookies * weight
		agg.Cache += s.Cache * weight
		agg.Trackers += s.Trackers * weight
		agg.Fingerprints += s.Fingerprints * weight
	}
	return agg
}

// Grade 从聚合值计算评分，固定落在 [0,100]
func (p Policy) Grade(agg model.AggregateStats) float64 {
	score := 100.0
	score -= agg.Cookies * p.CookieWeight
	score -= agg.Cache * p.CacheWeight
	score -= agg.Trackers * p.TrackerWeight
	score -= agg.Fingerprints * p.FingerprintWeight
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Letter 把评分映射为字母等级，阈值为严格大于
func (p Policy) Letter(score float64) string {
	switch {
	case score > p.APlus:
		return "A+"
	case score > p.A:
		return "A"
	case score > p.B:
		return "B"
	case score > p.C:
		return "C"
	default:
		return "D"
	}
}

// badgeColors 等级对应的指示器颜色
var badgeColors = map[string]string{
	"A+": "#2ecc71",
	"A":  "#27ae60",
	"B":  "#f1c40f",
	"C":  "#e67e22",
	"D":  "#e74c3c",
}

// Color 返回等级对应的指示器颜色
func Color(letter string) string {
	if c, ok := badgeColors[letter]; ok {
		return c
	}
	return "#000000"
}
