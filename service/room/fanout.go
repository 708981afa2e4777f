package room

import "sync"

// Router 事件扇出。语义：对每个当前在线的接收方至多一次、尽力而为，
// 不重试也不补发——断线的人靠下次 join 的全量回放对齐。
//
// 每接收方 FIFO 的保证点有两个：Publish 在调用方协程里同步入队
// （发布顺序 == 入队顺序），每个连接唯一的 writePump 按队列顺序写。
// 跨接收方不承诺任何顺序。
type Router struct {
	reg    *Registry
	replay *Fanout
}

func NewRouter(reg *Registry, replayWorkers, replayQueue int) *Router {
	return &Router{
		reg:    reg,
		replay: NewFanout(replayWorkers, replayQueue),
	}
}

// Publish 向 session 里除 excludeProfile 外的所有在线连接投递一帧，
// 返回成功入队的接收方数量。excludeProfile 传空串则全员广播。
func (r *Router) Publish(sessionID, frameType string, data any, excludeProfile string) int {
	conns := r.reg.Recipients(sessionID, excludeProfile)
	if len(conns) == 0 {
		return 0
	}
	payload := MarshalFrame(frameType, data)
	if payload == nil {
		return 0
	}
	n := 0
	for _, c := range conns {
		if c.Enqueue(payload) {
			n++
		}
	}
	return n
}

// Replay join 回放：一批帧按序发给单个连接，走后台工作池。
// job 粒度是"一个连接 + 它的有序帧列表"，所以池子多个 worker
// 也不会打乱单个接收方看到的顺序。
func (r *Router) Replay(cl *Client, payloads [][]byte) {
	r.replay.Deliver(cl, payloads)
}

func (r *Router) Close() { r.replay.Close() }

// ---- 工作池 ----

type fanoutJob struct {
	conn     *Client
	payloads [][]byte
}

// jobs 永不 close：关停只发 done 信号，Deliver 撞上 Close 也不会
// 往已关闭的 channel 里写
type Fanout struct {
	jobs      chan fanoutJob
	done      chan struct{}
	closeOnce sync.Once
}

func NewFanout(workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 2
	}
	if queue <= 0 {
		queue = 256
	}
	f := &Fanout{jobs: make(chan fanoutJob, queue), done: make(chan struct{})}
	for i := 0; i < workers; i++ {
		go func() {
			for {
				select {
				case <-f.done:
					return
				case job := <-f.jobs:
					for _, p := range job.payloads {
						// 慢客户端：跳过，不阻塞池子
						if !job.conn.Enqueue(p) {
							break
						}
					}
				}
			}
		}()
	}
	return f
}

func (f *Fanout) Deliver(conn *Client, payloads [][]byte) {
	if conn == nil || len(payloads) == 0 {
		return
	}
	select {
	case <-f.done:
		// 已关停：丢弃
	case f.jobs <- fanoutJob{conn: conn, payloads: payloads}:
	default:
		// 回放队列满：丢弃整组，客户端可走 REST 拉全量
	}
}

func (f *Fanout) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
