package score

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleantrail/pkg/model"
)

func TestGradeAllZeroIsPerfect(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 100.0, p.Grade(model.AggregateStats{}))
}

func TestGradeClampedToRange(t *testing.T) {
	p := DefaultPolicy()
	// 超大输入不会产生负分
	score := p.Grade(model.AggregateStats{Cookies: 1e6, Cache: 1e6, Trackers: 1e6, Fingerprints: 1e6})
	assert.Equal(t, 0.0, score)

	for _, agg := range []model.AggregateStats{
		{},
		{Cookies: 10},
		{Cookies: 100, Cache: 500, Trackers: 50, Fingerprints: 3},
		{Fingerprints: 1000},
	} {
		s := p.Grade(agg)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 100.0)
	}
}

func TestGradeWeights(t *testing.T) {
	p := DefaultPolicy()
	assert.InDelta(t, 99.5, p.Grade(model.AggregateStats{Cookies: 10}), 1e-9)
	assert.InDelta(t, 99.0, p.Grade(model.AggregateStats{Cache: 100}), 1e-9)
	assert.InDelta(t, 99.8, p.Grade(model.AggregateStats{Trackers: 10}), 1e-9)
	assert.InDelta(t, 99.5, p.Grade(model.AggregateStats{Fingerprints: 1}), 1e-9)
}

func TestLetterBoundariesAreStrict(t *testing.T) {
	p := DefaultPolicy()
	// 比较为严格大于：恰好 90 属于 A 而非 A+
	assert.Equal(t, "A", p.Letter(90.0))
	assert.Equal(t, "A+", p.Letter(90.0001))
	assert.Equal(t, "A", p.Letter(80.0001))
	assert.Equal(t, "B", p.Letter(80.0))
	assert.Equal(t, "B", p.Letter(70.0001))
	assert.Equal(t, "C", p.Letter(70.0))
	assert.Equal(t, "C", p.Letter(60.0001))
	assert.Equal(t, "D", p.Letter(60.0))
	assert.Equal(t, "D", p.Letter(0))
	assert.Equal(t, "A+", p.Letter(100))
}

func TestAggregateDecay(t *testing.T) {
	now := time.Now()
	halfLife := 24 * time.Hour

	// lastSeen = now：完整贡献
	stats := map[string]model.SiteStat{
		"fresh.example": {Cookies: 10, Cache: 4, Trackers: 2, Fingerprints: 1, LastSeen: now.UnixMilli()},
	}
	agg := Aggregate(stats, now, halfLife)
	assert.InDelta(t, 10, agg.Cookies, 1e-6)
	assert.InDelta(t, 4, agg.Cache, 1e-6)
	assert.InDelta(t, 2, agg.Trackers, 1e-6)
	assert.InDelta(t, 1, agg.Fingerprints, 1e-6)

	// lastSeen = now - halfLife：权重 e^-1
	stats = map[string]model.SiteStat{
		"stale.example": {Cookies: 10, LastSeen: now.Add(-halfLife).UnixMilli()},
	}
	agg = Aggregate(stats, now, halfLife)
	assert.InDelta(t, 10*0.36787944117144233, agg.Cookies, 1e-6) // e^-1
}

func TestAggregateDecayExactHalf(t *testing.T) {
	// weight = exp(-age/halfLife)，在 age = halfLife*ln2 时恰为一半
	now := time.Now()
	halfLife := 24 * time.Hour
	age := time.Duration(float64(halfLife) * 0.6931471805599453)
	stats := map[string]model.SiteStat{
		"half.example": {Cookies: 10, LastSeen: now.Add(-age).UnixMilli()},
	}
	agg := Aggregate(stats, now, halfLife)
	assert.InDelta(t, 5, agg.Cookies, 1e-3)
}

func TestAggregateExcludesNeverSeen(t *testing.T) {
	now := time.Now()
	stats := map[string]model.SiteStat{
		"never.example": {Cookies: 100, Cache: 100, Trackers: 100, Fingerprints: 100, LastSeen: 0},
	}
	agg := Aggregate(stats, now, 24*time.Hour)
	assert.Zero(t, agg.Cookies)
	assert.Zero(t, agg.Cache)
	assert.Zero(t, agg.Trackers)
	assert.Zero(t, agg.Fingerprints)
}

func TestAggregateFutureLastSeenNotAmplified(t *testing.T) {
	// 时钟偏差导致的未来时间戳按零年龄处理
	now := time.Now()
	stats := map[string]model.SiteStat{
		"future.example": {Cookies: 10, LastSeen: now.Add(time.Hour).UnixMilli()},
	}
	agg := Aggregate(stats, now, 24*time.Hour)
	require.InDelta(t, 10, agg.Cookies, 1e-6)
}

func TestColor(t *testing.T) {
	assert.Equal(t, "#2ecc71", Color("A+"))
	assert.Equal(t, "#e74c3c", Color("D"))
	assert.Equal(t, "#000000", Color("unknown"))
}
