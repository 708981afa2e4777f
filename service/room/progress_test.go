package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"CoReader/module/reading/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memProgressStore 记录每次 $max upsert 后的水位（模拟幂等落库）
type memProgressStore struct {
	mu       sync.Mutex
	percents map[string]float64 // bookID/profileID -> 水位
	calls    int
	failN    int // 前 failN 次调用返回错误（测重试）
}

func newMemProgressStore() *memProgressStore {
	return &memProgressStore{percents: make(map[string]float64)}
}

func (s *memProgressStore) UpsertProgressMax(_ context.Context, p *model.ProgressRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failN {
		return assert.AnError
	}
	k := p.BookID + "/" + p.ProfileID
	if p.Percent > s.percents[k] {
		s.percents[k] = p.Percent
	}
	return nil
}

func (s *memProgressStore) percentOf(bookID, profileID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.percents[bookID+"/"+profileID]
}

func (s *memProgressStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// 上报序列 [10,5,40,30,55]：水位走 10,10,40,40,55，回退的两次被拒
func TestAggregatorMonotonicHighWater(t *testing.T) {
	clk := newFakeClock()
	st := newMemProgressStore()
	agg := NewAggregator(st, 100*time.Millisecond, clk.Now)
	defer agg.Close()

	seq := []float64{10, 5, 40, 30, 55}
	wantAccept := []bool{true, false, true, false, true}
	wantMark := []float64{10, 10, 40, 40, 55}

	for i, pct := range seq {
		clk.Advance(time.Second) // 每次都出窗口，接受即落库
		got := agg.Report("b1", "p1", pct, "loc")
		assert.Equal(t, wantAccept[i], got, "report %v", pct)
		percent, _, ok := agg.Snapshot("b1", "p1")
		require.True(t, ok)
		assert.Equal(t, wantMark[i], percent)
	}

	agg.Close()
	// 被拒的上报不落库：库里只见过 10/40/55，最终水位 55
	assert.Equal(t, 55.0, st.percentOf("b1", "p1"))
	assert.Equal(t, 3, st.callCount())
}

func TestAggregatorThrottlesFlush(t *testing.T) {
	clk := newFakeClock()
	st := newMemProgressStore()
	agg := NewAggregator(st, time.Minute, clk.Now)

	clk.Advance(2 * time.Minute)
	require.True(t, agg.Report("b1", "p1", 10, "c1")) // 出窗口，立即落库
	// 窗口内的前进只抬内存水位
	clk.Advance(time.Second)
	require.True(t, agg.Report("b1", "p1", 20, "c2"))
	clk.Advance(time.Second)
	require.True(t, agg.Report("b1", "p1", 30, "c3"))

	percent, loc, ok := agg.Snapshot("b1", "p1")
	require.True(t, ok)
	assert.Equal(t, 30.0, percent)
	assert.Equal(t, "c3", loc)

	// 关停冲掉 dirty 水位：库里最终是 30，但窗口内没有逐条写
	agg.Close()
	assert.Equal(t, 30.0, st.percentOf("b1", "p1"))
	assert.LessOrEqual(t, st.callCount(), 2)
}

func TestAggregatorRejectsOutOfRange(t *testing.T) {
	agg := NewAggregator(nil, time.Second, nil)
	defer agg.Close()
	assert.False(t, agg.Report("b1", "p1", -1, ""))
	assert.False(t, agg.Report("b1", "p1", 100.5, ""))
	_, _, ok := agg.Snapshot("b1", "p1")
	assert.False(t, ok)
}

func TestAggregatorSeedNeverLowersMark(t *testing.T) {
	clk := newFakeClock()
	agg := NewAggregator(nil, time.Minute, clk.Now)
	defer agg.Close()

	agg.Seed("b1", "p1", 40, "c4")
	percent, _, ok := agg.Snapshot("b1", "p1")
	require.True(t, ok)
	assert.Equal(t, 40.0, percent)

	// 库里读到的旧值不会把内存水位拉低
	agg.Seed("b1", "p1", 25, "c2")
	percent, _, _ = agg.Snapshot("b1", "p1")
	assert.Equal(t, 40.0, percent)

	// seed 之后 ≤ 水位的上报照样拒
	assert.False(t, agg.Report("b1", "p1", 40, "c4"))
	assert.True(t, agg.Report("b1", "p1", 41, "c5"))
}

func TestAggregatorRetriesPersist(t *testing.T) {
	clk := newFakeClock()
	st := newMemProgressStore()
	st.failN = 1 // 第一次写失败，重试后成功
	agg := NewAggregator(st, 100*time.Millisecond, clk.Now)

	clk.Advance(time.Second)
	require.True(t, agg.Report("b1", "p1", 10, "c1"))
	agg.Close()

	assert.Equal(t, 10.0, st.percentOf("b1", "p1"))
	assert.GreaterOrEqual(t, st.callCount(), 2)
}

func TestAggregatorSnapshotBook(t *testing.T) {
	agg := NewAggregator(nil, time.Minute, nil)
	defer agg.Close()
	agg.Seed("b1", "p1", 10, "")
	agg.Seed("b1", "p2", 20, "")
	agg.Seed("b2", "p3", 99, "")

	got := agg.SnapshotBook("b1")
	assert.Equal(t, map[string]float64{"p1": 10, "p2": 20}, got)
}
