package room

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"CoReader/global/config"
	"CoReader/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(connID string) *Client {
	return NewClient(connID, nil, 64, 1000, 1000)
}

func joinOne(t *testing.T, reg *Registry, sessionID, profileID string) *Client {
	t.Helper()
	cl := newTestClient("conn-" + profileID)
	_, err := reg.Join(sessionID, "book-1", cl, &Participant{ProfileID: profileID, DisplayName: profileID}, 0)
	require.NoError(t, err)
	return cl
}

func TestJoinAdmitsUpToQuota(t *testing.T) {
	require.NoError(t, config.LoadQuota("testing")) // 4 slots
	reg := NewRegistry(nil)

	for i := 0; i < 4; i++ {
		joinOne(t, reg, "s1", fmt.Sprintf("p%d", i))
	}
	assert.Equal(t, 4, reg.Count("s1"))

	cl := newTestClient("conn-extra")
	_, err := reg.Join("s1", "book-1", cl, &Participant{ProfileID: "p-extra"}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrSessionFull)
}

// N 个并发 join 抢 K 个空位：恰好放进 K 个，拒掉 N-K 个
func TestConcurrentJoinsNeverOverAdmit(t *testing.T) {
	require.NoError(t, config.LoadQuota("testing")) // K = 4
	reg := NewRegistry(nil)

	const n = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted, rejected := 0, 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cl := newTestClient(fmt.Sprintf("conn-%d", i))
			_, err := reg.Join("s1", "book-1", cl,
				&Participant{ProfileID: fmt.Sprintf("p%d", i)}, 0)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				admitted++
			} else {
				rejected++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, admitted)
	assert.Equal(t, n-4, rejected)
	assert.Equal(t, 4, reg.Count("s1"))
	assert.Len(t, reg.Roster("s1"), 4, "participant_count == |roster|")
}

func TestLeaveIsIdempotent(t *testing.T) {
	require.NoError(t, config.LoadQuota("testing"))
	reg := NewRegistry(nil)
	cl := joinOne(t, reg, "s1", "p1")
	joinOne(t, reg, "s1", "p2")

	left, remaining := reg.Leave("s1", "p1", cl.ConnID)
	assert.True(t, left)
	assert.Equal(t, 1, remaining)

	// 再 leave 一次、leave 不存在的人，都是 no-op
	left, remaining = reg.Leave("s1", "p1", cl.ConnID)
	assert.False(t, left)
	assert.Equal(t, 1, remaining)
	left, _ = reg.Leave("s1", "nobody", "")
	assert.False(t, left)
}

func TestReconnectKeepsSlotAndReplacesConn(t *testing.T) {
	require.NoError(t, config.LoadQuota("testing"))
	reg := NewRegistry(nil)
	old := joinOne(t, reg, "s1", "p1")

	// 同一档案带新连接进来：人数不变，旧连接出局
	fresh := newTestClient("conn-fresh")
	res, err := reg.Join("s1", "book-1", fresh, &Participant{ProfileID: "p1"}, 0)
	require.NoError(t, err)
	assert.True(t, res.Reconnected)
	assert.Equal(t, 1, reg.Count("s1"))
	assert.Equal(t, StateReclaimed, old.State())

	// 旧连接的 leave 不能把重连后的名额拿走
	left, remaining := reg.Leave("s1", "p1", old.ConnID)
	assert.False(t, left)
	assert.Equal(t, 1, remaining)
}

func TestRosterExcludesIdleParticipants(t *testing.T) {
	require.NoError(t, config.LoadQuota("testing")) // SessionTimeout = 1m
	clk := newFakeClock()
	reg := NewRegistry(clk.Now)
	joinOne(t, reg, "s1", "p1")
	joinOne(t, reg, "s1", "p2")

	clk.Advance(30 * time.Second)
	reg.TouchActivity("s1", "p2")
	clk.Advance(45 * time.Second) // p1 静默 75s、p2 静默 45s

	roster := reg.Roster("s1")
	require.Len(t, roster, 1)
	assert.Equal(t, "p2", roster[0].ProfileID)
	// 名额还占着：只是 roster 不展示
	assert.Equal(t, 2, reg.Count("s1"))
}

func TestTryAddHighlightAtomicQuota(t *testing.T) {
	require.NoError(t, config.LoadQuota("testing")) // 10 per book
	reg := NewRegistry(nil)
	cl := newTestClient("c1")
	// seed 8：模拟之前的 session 里已经画了 8 条
	_, err := reg.Join("s1", "book-1", cl, &Participant{ProfileID: "p1"}, 8)
	require.NoError(t, err)

	require.NoError(t, reg.TryAddHighlight("s1", "p1"))
	require.NoError(t, reg.TryAddHighlight("s1", "p1"))
	err = reg.TryAddHighlight("s1", "p1")
	assert.ErrorIs(t, err, errs.ErrHighlightLimit)
}

func TestTryAddCommentSeedAndLimit(t *testing.T) {
	require.NoError(t, config.LoadQuota("testing")) // 5 per highlight
	reg := NewRegistry(nil)
	cl := newTestClient("c1")
	_, err := reg.Join("s1", "book-1", cl, &Participant{ProfileID: "p1"}, 0)
	require.NoError(t, err)

	// 库里已有 3 条，seed 只在第一次生效
	require.NoError(t, reg.TryAddComment("s1", "h1", 3))
	require.NoError(t, reg.TryAddComment("s1", "h1", 0)) // seed 被忽略，内存计数 4→5
	err = reg.TryAddComment("s1", "h1", 0)
	assert.ErrorIs(t, err, errs.ErrCommentLimit)
}

func TestTryAddReplyDepthAndFanLimit(t *testing.T) {
	require.NoError(t, config.LoadQuota("testing")) // depth 2, 3 replies per comment
	reg := NewRegistry(nil)
	cl := newTestClient("c1")
	_, err := reg.Join("s1", "book-1", cl, &Participant{ProfileID: "p1"}, 0)
	require.NoError(t, err)

	// depth 阶梯：parentDepth 0、1 可回，2 拒
	require.NoError(t, reg.TryAddReply("s1", "c-top", 0, 0))
	require.NoError(t, reg.TryAddReply("s1", "c-d1", 1, 0))
	err = reg.TryAddReply("s1", "c-d2", 2, 0)
	assert.ErrorIs(t, err, errs.ErrReplyDepth)

	// 单条评论下的回复数
	require.NoError(t, reg.TryAddReply("s1", "c-top", 0, 0))
	require.NoError(t, reg.TryAddReply("s1", "c-top", 0, 0))
	err = reg.TryAddReply("s1", "c-top", 0, 0)
	assert.ErrorIs(t, err, errs.ErrReplyLimit)
}
