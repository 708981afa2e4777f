package room

import (
	"testing"
	"time"

	"CoReader/global/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, clk *fakeClock) *Server {
	t.Helper()
	require.NoError(t, config.LoadQuota("testing")) // GraceWindow = 2s
	s := NewServer(nil, Options{Clock: clk.Now, SweepEvery: time.Hour})
	t.Cleanup(s.Close)
	return s
}

func TestReclaimAfterGraceWindow(t *testing.T) {
	clk := newFakeClock()
	s := newTestServer(t, clk)

	lost := joinOne(t, s.Reg(), "s1", "p1")
	peer := joinOne(t, s.Reg(), "s1", "p2")
	drainFrames(t, peer)

	s.Rec().MarkLost(lost)
	assert.Equal(t, StateDisconnected, lost.State())
	// 窗内还占着名额
	assert.Equal(t, 2, s.Reg().Count("s1"))

	// 宽限期没过：扫了也不回收
	clk.Advance(time.Second)
	s.Rec().SweepOnce()
	assert.Equal(t, 2, s.Reg().Count("s1"))

	clk.Advance(2 * time.Second)
	s.Rec().SweepOnce()
	assert.Equal(t, 1, s.Reg().Count("s1"))

	// 剩下的人恰好收到一条 user-left
	frames := drainFrames(t, peer)
	require.Len(t, frames, 1)
	assert.Equal(t, FrameUserLeft, frames[0].Type)

	// 再扫一遍是 no-op
	s.Rec().SweepOnce()
	assert.Empty(t, drainFrames(t, peer))
}

func TestReconnectWithinGraceKeepsSlot(t *testing.T) {
	clk := newFakeClock()
	s := newTestServer(t, clk)

	lost := joinOne(t, s.Reg(), "s1", "p1")
	peer := joinOne(t, s.Reg(), "s1", "p2")

	s.Rec().MarkLost(lost)
	clk.Advance(time.Second)

	// 窗内重连：换权威连接 + 撤销挂起的回收
	fresh := newTestClient("conn-fresh")
	res, err := s.Reg().Join("s1", "b1", fresh, &Participant{ProfileID: "p1"}, 0)
	require.NoError(t, err)
	assert.True(t, res.Reconnected)
	s.Rec().Cancel("s1", "p1")

	clk.Advance(time.Hour)
	s.Rec().SweepOnce()
	assert.Equal(t, 2, s.Reg().Count("s1"))

	drainFrames(t, peer)
	// 旧连接最终关闭也不会触发第二次离场
	s.Rec().MarkLost(lost)
	clk.Advance(time.Hour)
	s.Rec().SweepOnce()
	assert.Equal(t, 2, s.Reg().Count("s1"))
	assert.Empty(t, drainFrames(t, peer))
}

func TestMarkLostBeforeJoinIsNoop(t *testing.T) {
	clk := newFakeClock()
	s := newTestServer(t, clk)

	cl := newTestClient("conn-early") // 从没 join 过
	s.Rec().MarkLost(cl)
	assert.Equal(t, StateReclaimed, cl.State())

	clk.Advance(time.Hour)
	s.Rec().SweepOnce()
	assert.Empty(t, s.Reg().Sessions())
}

// 扫描间隙里显式 leave 了：回收变 no-op，不会发第二条 user-left
func TestReclaimSkipsExplicitlyLeft(t *testing.T) {
	clk := newFakeClock()
	s := newTestServer(t, clk)

	lost := joinOne(t, s.Reg(), "s1", "p1")
	peer := joinOne(t, s.Reg(), "s1", "p2")
	s.Rec().MarkLost(lost)

	left, _ := s.Reg().Leave("s1", "p1", lost.ConnID)
	require.True(t, left)
	drainFrames(t, peer)

	clk.Advance(time.Hour)
	s.Rec().SweepOnce()
	assert.Empty(t, drainFrames(t, peer))
}
