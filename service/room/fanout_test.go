package room

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"CoReader/global/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainFrames(t *testing.T, cl *Client) []*Frame {
	t.Helper()
	var out []*Frame
	for {
		select {
		case raw := <-cl.Send:
			f, err := ParseFrame(raw)
			require.NoError(t, err)
			out = append(out, f)
		default:
			return out
		}
	}
}

func TestPublishExcludesOriginator(t *testing.T) {
	require.NoError(t, config.LoadQuota("testing"))
	reg := NewRegistry(nil)
	r := NewRouter(reg, 1, 16)
	defer r.Close()

	a := joinOne(t, reg, "s1", "pa")
	b := joinOne(t, reg, "s1", "pb")
	c := joinOne(t, reg, "s1", "pc")

	n := r.Publish("s1", FrameUserLeft, UserLeftPayload{ProfileID: "pa"}, "pa")
	assert.Equal(t, 2, n)
	assert.Empty(t, drainFrames(t, a))
	assert.Len(t, drainFrames(t, b), 1)
	assert.Len(t, drainFrames(t, c), 1)

	// 空串 = 全员广播
	n = r.Publish("s1", FrameLimitsUpdated, BuildLimitsPayload(config.Quota()), "")
	assert.Equal(t, 3, n)
}

func TestPublishSkipsDisconnected(t *testing.T) {
	require.NoError(t, config.LoadQuota("testing"))
	reg := NewRegistry(nil)
	r := NewRouter(reg, 1, 16)
	defer r.Close()

	joinOne(t, reg, "s1", "pa")
	b := joinOne(t, reg, "s1", "pb")
	require.True(t, reg.MarkDisconnected("s1", "pb", b.ConnID))

	// 断线中的连接不投递：至多一次、不补发
	n := r.Publish("s1", FrameUserLeft, UserLeftPayload{ProfileID: "x"}, "")
	assert.Equal(t, 1, n)
	assert.Empty(t, drainFrames(t, b))
}

// 同一发布方连发多帧，每个接收方按发布顺序收到（每接收方 FIFO）
func TestPublishPerRecipientFIFO(t *testing.T) {
	require.NoError(t, config.LoadQuota("testing"))
	reg := NewRegistry(nil)
	r := NewRouter(reg, 1, 16)
	defer r.Close()

	joinOne(t, reg, "s1", "pa")
	b := joinOne(t, reg, "s1", "pb")

	for i := 0; i < 5; i++ {
		r.Publish("s1", FrameProgressUpdated,
			ProgressUpdatedPayload{ProfileID: "pa", Percent: float64(i)}, "pa")
	}

	frames := drainFrames(t, b)
	require.Len(t, frames, 5)
	for i, f := range frames {
		var p ProgressUpdatedPayload
		require.NoError(t, json.Unmarshal(f.Data, &p))
		assert.Equal(t, float64(i), p.Percent)
	}
}

func TestReplayKeepsOrderForSingleConn(t *testing.T) {
	require.NoError(t, config.LoadQuota("testing"))
	reg := NewRegistry(nil)
	r := NewRouter(reg, 4, 16) // 多 worker 也不能打乱单连接的顺序
	defer r.Close()

	cl := joinOne(t, reg, "s1", "pa")
	var payloads [][]byte
	for i := 0; i < 8; i++ {
		payloads = append(payloads,
			MarshalFrame(FrameHighlightAdded, HighlightView{HighlightID: string(rune('a' + i))}))
	}
	r.Replay(cl, payloads)

	// 回放走后台池，同步等队列出完
	assert.Eventually(t, func() bool { return len(cl.Send) == 8 }, time.Second, 5*time.Millisecond)

	frames := drainFrames(t, cl)
	require.Len(t, frames, 8)
	for i, f := range frames {
		var v HighlightView
		require.NoError(t, json.Unmarshal(f.Data, &v))
		assert.Equal(t, string(rune('a'+i)), v.HighlightID)
	}
}

// 关停和投递赛跑不允许 panic；Close 幂等
func TestFanoutDeliverDuringCloseIsSafe(t *testing.T) {
	f := NewFanout(2, 4)
	cl := newTestClient("conn-race")
	payloads := [][]byte{MarshalFrame(FrameUserLeft, UserLeftPayload{ProfileID: "p"})}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				f.Deliver(cl, payloads)
			}
		}()
	}
	f.Close()
	f.Close()
	wg.Wait()

	// 关停后的投递直接丢弃
	f.Deliver(cl, payloads)
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	require.NoError(t, config.LoadQuota("testing"))
	reg := NewRegistry(nil)
	r := NewRouter(reg, 1, 16)
	defer r.Close()

	// 队列只有 2 格的慢客户端
	slow := NewClient("conn-slow", nil, 2, 1000, 1000)
	_, err := reg.Join("s1", "b1", slow, &Participant{ProfileID: "slow"}, 0)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		r.Publish("s1", FrameUserLeft, UserLeftPayload{ProfileID: "x"}, "")
	}
	// 溢出的帧直接丢，入队计数只算成功的
	assert.Len(t, drainFrames(t, slow), 2)
}
