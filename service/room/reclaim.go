package room

import (
	"context"
	"sync"
	"time"

	"CoReader/global/config"
	"CoReader/logger"
	"CoReader/service/storage"
)

type pendKey struct {
	sessionID string
	profileID string
}

type pendEntry struct {
	connID string
	lostAt time.Time
	grace  time.Duration // 断线时刻的配置快照，升级 phase 不影响已挂起的条目
}

// Reclaimer 断线回收。传输层断开不立刻退座：留一个宽限窗给客户端重连，
// 窗内重连名额原样接回；窗过了才真正 Leave + 广播 user-left。
type Reclaimer struct {
	mu      sync.Mutex
	pending map[pendKey]*pendEntry

	srv   *Server
	clock func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewReclaimer(srv *Server, sweepEvery time.Duration, clock func() time.Time) *Reclaimer {
	if clock == nil {
		clock = time.Now
	}
	if sweepEvery <= 0 {
		sweepEvery = time.Second
	}
	r := &Reclaimer{
		pending: make(map[pendKey]*pendEntry),
		srv:     srv,
		clock:   clock,
		stopCh:  make(chan struct{}),
	}
	go r.sweeper(sweepEvery)
	return r
}

// MarkLost 传输层断开的入口。connID 对不上权威连接（重连已接管）就什么都不做。
func (r *Reclaimer) MarkLost(cl *Client) {
	if cl.SessionID == "" || cl.ProfileID == "" {
		// 还没 join 就断了，没占名额
		cl.SetState(StateReclaimed)
		return
	}
	if !r.srv.Reg().MarkDisconnected(cl.SessionID, cl.ProfileID, cl.ConnID) {
		return
	}
	k := pendKey{sessionID: cl.SessionID, profileID: cl.ProfileID}
	r.mu.Lock()
	r.pending[k] = &pendEntry{
		connID: cl.ConnID,
		lostAt: r.clock(),
		grace:  config.Quota().GraceWindow,
	}
	r.mu.Unlock()
	logger.Infof("[reclaim] transport lost session=%s profile=%s conn=%s, grace armed",
		cl.SessionID, cl.ProfileID, cl.ConnID)
}

// Cancel 宽限期内重连成功：撤销挂起的回收
func (r *Reclaimer) Cancel(sessionID, profileID string) {
	k := pendKey{sessionID: sessionID, profileID: profileID}
	r.mu.Lock()
	if _, ok := r.pending[k]; ok {
		delete(r.pending, k)
		logger.Infof("[reclaim] reconnect within grace session=%s profile=%s", sessionID, profileID)
	}
	r.mu.Unlock()
}

func (r *Reclaimer) sweeper(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-t.C:
			r.SweepOnce()
		}
	}
}

// SweepOnce 到期条目进入 ReclaimPending → 执行回收。导出给单测驱动。
func (r *Reclaimer) SweepOnce() {
	now := r.clock()
	type due struct {
		key   pendKey
		entry *pendEntry
	}
	var expired []due

	r.mu.Lock()
	for k, e := range r.pending {
		if now.Sub(e.lostAt) >= e.grace {
			expired = append(expired, due{key: k, entry: e})
			delete(r.pending, k)
		}
	}
	r.mu.Unlock()

	for _, d := range expired {
		r.reclaim(d.key, d.entry)
	}
}

// reclaim Leave + 镜像下线 + 广播，user-left 对每个剩余参与者恰好一次
func (r *Reclaimer) reclaim(k pendKey, e *pendEntry) {
	left, remaining := r.srv.Reg().Leave(k.sessionID, k.profileID, e.connID)
	if !left {
		// 扫描间隙里重连了，或者已被显式 leave
		return
	}
	if storage.Ready() {
		if err := storage.PresenceOffline(k.sessionID, k.profileID); err != nil {
			logger.Warnf("[reclaim] presence offline mirror: %v", err)
		}
	}
	r.srv.PersistCount(context.Background(), k.sessionID, remaining)
	n := r.srv.Router().Publish(k.sessionID, FrameUserLeft, UserLeftPayload{ProfileID: k.profileID}, k.profileID)
	logger.Infof("[reclaim] slot reclaimed session=%s profile=%s notified=%d remaining=%d",
		k.sessionID, k.profileID, n, remaining)
}

func (r *Reclaimer) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}
