package room

import (
	"sync"
	"time"

	"CoReader/global/config"
	"CoReader/tools/errs"
)

// Participant 已加入 session 的读者（内存态）
type Participant struct {
	ProfileID   string
	DisplayName string
	Color       string

	JoinedAt   time.Time
	LastActive time.Time // join/注解/进度都会刷新；超时后 roster 不再展示
}

// roomState 一个 session 的全部可变状态。所有检查与写入都在 mu 里完成，
// 两个并发 join 不可能把最后一个名额发出去两次。
type roomState struct {
	mu        sync.Mutex
	sessionID string
	bookID    string

	conns map[string]*Client      // profileID -> 权威连接（每对至多一条）
	parts map[string]*Participant // profileID -> 参与者
	order []string                // join 顺序，roster 按这个排

	// 配额计数器：ws 路径的 check+incr 在持锁状态下一步完成。
	// seed 值来自持久层，在进 room 锁之前读好（见 handler）。
	highlightCnt map[string]int // profileID -> 本书高亮数
	commentCnt   map[string]int // highlightID -> 顶层评论数
	replyCnt     map[string]int // commentID -> 直接回复数
}

// Registry 全进程唯一的 session→roster 权威映射。
// 显式构造、显式注入，不做包级全局。
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*roomState
	clock func() time.Time // 可注入时钟（单测用）
}

func NewRegistry(clock func() time.Time) *Registry {
	if clock == nil {
		clock = time.Now
	}
	return &Registry{rooms: make(map[string]*roomState), clock: clock}
}

func (r *Registry) room(sessionID, bookID string) *roomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm := r.rooms[sessionID]
	if rm == nil {
		rm = &roomState{
			sessionID:    sessionID,
			bookID:       bookID,
			conns:        make(map[string]*Client),
			parts:        make(map[string]*Participant),
			highlightCnt: make(map[string]int),
			commentCnt:   make(map[string]int),
			replyCnt:     make(map[string]int),
		}
		r.rooms[sessionID] = rm
	}
	return rm
}

func (r *Registry) get(sessionID string) *roomState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[sessionID]
}

// JoinResult Join 成功的返回：roster 只发给新加入的连接，
// user-joined 由调用方广播给其他人。
type JoinResult struct {
	Reconnected bool
	Count       int
	You         ParticipantView
	Others      []ParticipantView
}

// Join 原子的 check-and-increment：读人数、过配额谓词、入座，一锁到底。
// 已在座的 profile 重连时替换权威连接，名额不变。
func (r *Registry) Join(sessionID, bookID string, cl *Client, p *Participant, seedHighlights int) (*JoinResult, error) {
	rm := r.room(sessionID, bookID)
	rm.mu.Lock()
	defer rm.mu.Unlock()

	now := r.clock()
	res := &JoinResult{}

	if existing, ok := rm.parts[p.ProfileID]; ok {
		// 重连竞态：最新连接成为权威，旧连接直接关掉
		if old := rm.conns[p.ProfileID]; old != nil && old != cl {
			old.SetState(StateReclaimed)
			old.Close()
		}
		rm.conns[p.ProfileID] = cl
		existing.LastActive = now
		res.Reconnected = true
		res.You = viewOf(existing)
	} else {
		if !CanJoin(config.Quota(), len(rm.parts)) {
			return nil, errs.ErrSessionFull
		}
		p.JoinedAt = now
		p.LastActive = now
		rm.parts[p.ProfileID] = p
		rm.conns[p.ProfileID] = cl
		rm.order = append(rm.order, p.ProfileID)
		if _, seeded := rm.highlightCnt[p.ProfileID]; !seeded {
			rm.highlightCnt[p.ProfileID] = seedHighlights
		}
		res.You = viewOf(p)
	}

	cl.SessionID = sessionID
	cl.ProfileID = p.ProfileID
	cl.joinedAt = now
	cl.SetState(StateJoined)

	res.Count = len(rm.parts)
	for _, pid := range rm.order {
		if pid == p.ProfileID {
			continue
		}
		if other, ok := rm.parts[pid]; ok {
			res.Others = append(res.Others, viewOf(other))
		}
	}
	return res, nil
}

func viewOf(p *Participant) ParticipantView {
	return ParticipantView{ProfileID: p.ProfileID, DisplayName: p.DisplayName, Color: p.Color}
}

// Leave 幂等：人不在、或者 connID 对不上权威连接（重连已经接管名额）都是 no-op。
// 返回是否真的离开了，以及剩余人数。
func (r *Registry) Leave(sessionID, profileID, connID string) (left bool, remaining int) {
	rm := r.get(sessionID)
	if rm == nil {
		return false, 0
	}
	rm.mu.Lock()

	if _, ok := rm.parts[profileID]; !ok {
		remaining = len(rm.parts)
		rm.mu.Unlock()
		return false, remaining
	}
	if cur := rm.conns[profileID]; cur != nil && connID != "" && cur.ConnID != connID {
		// 旧连接的 leave 撞上了已重连的参与者
		remaining = len(rm.parts)
		rm.mu.Unlock()
		return false, remaining
	}

	delete(rm.parts, profileID)
	delete(rm.conns, profileID)
	for i, pid := range rm.order {
		if pid == profileID {
			rm.order = append(rm.order[:i], rm.order[i+1:]...)
			break
		}
	}
	remaining = len(rm.parts)
	rm.mu.Unlock()

	if remaining == 0 {
		// 空房回收内存；session 文档保持 active，由过期流程置 inactive
		r.mu.Lock()
		if cur := r.rooms[sessionID]; cur == rm {
			rm.mu.Lock()
			if len(rm.parts) == 0 {
				delete(r.rooms, sessionID)
			}
			rm.mu.Unlock()
		}
		r.mu.Unlock()
	}
	return true, remaining
}

// Roster join 顺序返回当前活跃参与者；超过 session 超时没动静的不展示
func (r *Registry) Roster(sessionID string) []ParticipantView {
	rm := r.get(sessionID)
	if rm == nil {
		return nil
	}
	timeout := config.Quota().SessionTimeout
	now := r.clock()

	rm.mu.Lock()
	defer rm.mu.Unlock()
	out := make([]ParticipantView, 0, len(rm.order))
	for _, pid := range rm.order {
		p, ok := rm.parts[pid]
		if !ok {
			continue
		}
		if now.Sub(p.LastActive) > timeout {
			continue
		}
		out = append(out, viewOf(p))
	}
	return out
}

// Count 在座人数（含断线宽限期内的，名额还占着）
func (r *Registry) Count(sessionID string) int {
	rm := r.get(sessionID)
	if rm == nil {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.parts)
}

// Recipients 当前可投递的连接快照；断线中的跳过（至多一次、不补发）
func (r *Registry) Recipients(sessionID, excludeProfile string) []*Client {
	rm := r.get(sessionID)
	if rm == nil {
		return nil
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	out := make([]*Client, 0, len(rm.conns))
	for pid, cl := range rm.conns {
		if pid == excludeProfile || cl == nil {
			continue
		}
		if cl.State() != StateJoined {
			continue
		}
		out = append(out, cl)
	}
	return out
}

// Sessions 当前有人的 session 列表（limits-updated 全量广播用）
func (r *Registry) Sessions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rooms))
	for sid := range r.rooms {
		out = append(out, sid)
	}
	return out
}

func (r *Registry) TouchActivity(sessionID, profileID string) {
	rm := r.get(sessionID)
	if rm == nil {
		return
	}
	now := r.clock()
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if p, ok := rm.parts[profileID]; ok {
		p.LastActive = now
	}
}

// MarkDisconnected 传输层断开：connID 对得上权威连接才标记，
// 返回是否需要进入 reclaim 流程
func (r *Registry) MarkDisconnected(sessionID, profileID, connID string) bool {
	rm := r.get(sessionID)
	if rm == nil {
		return false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	cur, ok := rm.conns[profileID]
	if !ok || cur == nil || cur.ConnID != connID {
		return false
	}
	cur.SetState(StateDisconnected)
	return true
}

// ---- 配额计数器：检查+自增一锁完成 ----

// TryAddHighlight ws 路径的高亮配额。seed 在 join 时已经灌好。
func (r *Registry) TryAddHighlight(sessionID, profileID string) error {
	rm := r.get(sessionID)
	if rm == nil {
		return errs.ErrNotFound.WithDetail("session " + sessionID)
	}
	q := config.Quota()
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if !CanCreateHighlight(q, rm.highlightCnt[profileID]) {
		return errs.ErrHighlightLimit
	}
	rm.highlightCnt[profileID]++
	return nil
}

// TryAddComment 顶层评论配额。seed 是持锁前从持久层读的计数，
// 只在本进程还没见过这条高亮时采用——恢复点重新校验就落在这一步。
func (r *Registry) TryAddComment(sessionID, highlightID string, seed int) error {
	rm := r.get(sessionID)
	if rm == nil {
		return errs.ErrNotFound.WithDetail("session " + sessionID)
	}
	q := config.Quota()
	rm.mu.Lock()
	defer rm.mu.Unlock()
	cnt, seen := rm.commentCnt[highlightID]
	if !seen {
		cnt = seed
	}
	if !CanCreateComment(q, cnt) {
		return errs.ErrCommentLimit
	}
	rm.commentCnt[highlightID] = cnt + 1
	return nil
}

// TryAddReply 回复深度 + 每评论回复数，两个谓词一锁过
func (r *Registry) TryAddReply(sessionID, parentID string, parentDepth, seed int) error {
	rm := r.get(sessionID)
	if rm == nil {
		return errs.ErrNotFound.WithDetail("session " + sessionID)
	}
	q := config.Quota()
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if !CanCreateReply(q, parentDepth) {
		return errs.ErrReplyDepth
	}
	cnt, seen := rm.replyCnt[parentID]
	if !seen {
		cnt = seed
	}
	if !CanAddReplyUnder(q, cnt) {
		return errs.ErrReplyLimit
	}
	rm.replyCnt[parentID] = cnt + 1
	return nil
}
