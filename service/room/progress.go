package room

import (
	"context"
	"sync"
	"time"

	"CoReader/logger"
	"CoReader/module/reading/model"
)

// ProgressStore 落库面：$max upsert，天然幂等，可安全重试
type ProgressStore interface {
	UpsertProgressMax(ctx context.Context, p *model.ProgressRecord) error
}

type markKey struct {
	bookID    string
	profileID string
}

type mark struct {
	percent   float64
	location  string
	dirty     bool      // 有未落库的前进
	lastFlush time.Time // 节流窗口起点
}

// Aggregator 每 (书, 读者) 的最远进度水位。
// 只进不退：position ≤ 当前水位的上报直接忽略（不落库、不广播）。
// 落库按窗口节流；广播由调用方在 Accepted 时立即发——进度是持续覆盖的
// UI 提示，不是审计日志。水位表归本组件独占，别的组件不直接改。
type Aggregator struct {
	mu    sync.Mutex
	marks map[markKey]*mark

	store      ProgressStore
	flushEvery time.Duration
	clock      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewAggregator(store ProgressStore, flushEvery time.Duration, clock func() time.Time) *Aggregator {
	if clock == nil {
		clock = time.Now
	}
	if flushEvery <= 0 {
		flushEvery = 2 * time.Second
	}
	a := &Aggregator{
		marks:      make(map[markKey]*mark),
		store:      store,
		flushEvery: flushEvery,
		clock:      clock,
		stopCh:     make(chan struct{}),
	}
	a.wg.Add(1)
	go a.flushLoop()
	return a
}

// Report 返回是否接受。接受时窗口内只更新内存水位、推迟落库；
// 窗口已过则立刻异步落库并重置窗口。
func (a *Aggregator) Report(bookID, profileID string, percent float64, location string) bool {
	if percent < 0 || percent > 100 {
		return false
	}
	now := a.clock()
	k := markKey{bookID: bookID, profileID: profileID}

	a.mu.Lock()
	m, ok := a.marks[k]
	if !ok {
		m = &mark{}
		a.marks[k] = m
	}
	if ok && percent <= m.percent {
		a.mu.Unlock()
		return false
	}
	m.percent = percent
	m.location = location

	var flushNow bool
	if now.Sub(m.lastFlush) >= a.flushEvery {
		m.lastFlush = now
		m.dirty = false
		flushNow = true
	} else {
		m.dirty = true
	}
	rec := &model.ProgressRecord{
		BookID: bookID, ProfileID: profileID,
		Percent: percent, Location: location, UpdateTime: now,
	}
	a.mu.Unlock()

	if flushNow {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.persist(rec)
		}()
	}
	return true
}

// Snapshot 重连回放读内存水位，不读可能落后一个窗口的库值
func (a *Aggregator) Snapshot(bookID, profileID string) (percent float64, location string, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, found := a.marks[markKey{bookID: bookID, profileID: profileID}]
	if !found {
		return 0, "", false
	}
	return m.percent, m.location, true
}

// SnapshotBook 一本书下所有内存水位（roster 装饰用）
func (a *Aggregator) SnapshotBook(bookID string) map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]float64)
	for k, m := range a.marks {
		if k.bookID == bookID {
			out[k.profileID] = m.percent
		}
	}
	return out
}

// Seed 进程启动/首次 join 时把库里的水位灌进来，防止重启后水位回退
func (a *Aggregator) Seed(bookID, profileID string, percent float64, location string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	k := markKey{bookID: bookID, profileID: profileID}
	if m, ok := a.marks[k]; ok && m.percent >= percent {
		return
	}
	a.marks[k] = &mark{percent: percent, location: location, lastFlush: a.clock()}
}

func (a *Aggregator) flushLoop() {
	defer a.wg.Done()
	t := time.NewTicker(a.flushEvery / 2)
	defer t.Stop()
	for {
		select {
		case <-a.stopCh:
			a.flushPending(true)
			return
		case <-t.C:
			a.flushPending(false)
		}
	}
}

// flushPending 把窗口已过的 dirty 水位落库；force=true 全落（关停用）
func (a *Aggregator) flushPending(force bool) {
	now := a.clock()
	var recs []*model.ProgressRecord

	a.mu.Lock()
	for k, m := range a.marks {
		if !m.dirty {
			continue
		}
		if !force && now.Sub(m.lastFlush) < a.flushEvery {
			continue
		}
		m.dirty = false
		m.lastFlush = now
		recs = append(recs, &model.ProgressRecord{
			BookID: k.bookID, ProfileID: k.profileID,
			Percent: m.percent, Location: m.location, UpdateTime: now,
		})
	}
	a.mu.Unlock()

	for _, rec := range recs {
		a.persist(rec)
	}
}

// persist 有界重试 + 退避；$max 幂等所以重试安全。最终失败只告警，
// 下一次前进会带着更高的水位再来。
func (a *Aggregator) persist(rec *model.ProgressRecord) {
	if a.store == nil {
		return
	}
	backoff := 100 * time.Millisecond
	for attempt := 0; attempt < 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := a.store.UpsertProgressMax(ctx, rec)
		cancel()
		if err == nil {
			return
		}
		logger.Warnf("[progress] persist attempt=%d book=%s profile=%s err=%v",
			attempt+1, rec.BookID, rec.ProfileID, err)
		select {
		case <-a.stopCh:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// Close 停循环并把剩余水位冲掉
func (a *Aggregator) Close() {
	a.stopOnce.Do(func() { close(a.stopCh) })
	a.wg.Wait()
}
