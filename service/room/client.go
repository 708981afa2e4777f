package room

import (
	"sync"
	"sync/atomic"
	"time"

	"CoReader/logger"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// 连接状态机：Connecting → Joined → Disconnected → ReclaimPending → Reclaimed
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateJoined
	StateDisconnected
	StateReclaimPending
	StateReclaimed
)

const (
	writeDeadline = 5 * time.Second
	pingEvery     = 30 * time.Second
	readDeadline  = 75 * time.Second // ping 周期的 2.5 倍
)

// Client 一条 WebSocket 连接。写全部走 Send 队列，由唯一的 writePump
// 协程按入队顺序落到 socket 上——这就是"每接收方 FIFO"的实现点。
type Client struct {
	ConnID    string // 雪花ID，本进程内唯一
	SessionID string // join 成功后填
	ProfileID string
	Name      string
	Color     string

	WS   *websocket.Conn
	Send chan []byte

	state atomic.Int32
	lim   *rate.Limiter // 入站帧限速

	joinedAt  time.Time
	closeOnce sync.Once
	done      chan struct{}
}

func NewClient(connID string, ws *websocket.Conn, sendQueueSize int, r float64, burst int) *Client {
	c := &Client{
		ConnID: connID,
		WS:     ws,
		Send:   make(chan []byte, sendQueueSize),
		lim:    rate.NewLimiter(rate.Limit(r), burst),
		done:   make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))
	return c
}

func (c *Client) State() ConnState     { return ConnState(c.state.Load()) }
func (c *Client) SetState(s ConnState) { c.state.Store(int32(s)) }

// Allow 入站帧限速；超限的帧丢弃并回一条 rate_limited error
func (c *Client) Allow() bool { return c.lim.Allow() }

// Enqueue 非阻塞入队。慢客户端：队列满直接丢（至多一次、尽力而为）
func (c *Client) Enqueue(payload []byte) bool {
	if payload == nil {
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		logger.Warnf("[room] send queue full, drop frame conn=%s profile=%s", c.ConnID, c.ProfileID)
		return false
	}
}

// WritePump 唯一写协程：Send 队列 + 心跳。退出时关 socket。
func (c *Client) WritePump() {
	t := time.NewTicker(pingEvery)
	defer func() {
		t.Stop()
		_ = c.WS.Close()
	}()
	for {
		select {
		case <-c.done:
			return
		case payload, ok := <-c.Send:
			if !ok {
				return
			}
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.WS.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug("[room] write failed, pump exits")
				return
			}
		case <-t.C:
			if err := c.WS.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

// Close 幂等：停写协程并关 socket
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.WS != nil {
			_ = c.WS.Close()
		}
	})
}
