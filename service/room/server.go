package room

import (
	"context"
	"net"
	"net/http"
	"time"

	"CoReader/global/config"
	"CoReader/logger"
	"CoReader/module/reading/model"
	"CoReader/tools/errs"
	"CoReader/tools/ids"
	"CoReader/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Store 核心对持久层的全部依赖面；*store.Repo 实现它，单测给内存假实现
type Store interface {
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	SetParticipantCount(ctx context.Context, sessionID string, n int) error
	TouchSession(ctx context.Context, sessionID string) error

	GetProfile(ctx context.Context, profileID string) (*model.Profile, error)
	InsertProfile(ctx context.Context, p *model.Profile) error
	TouchProfile(ctx context.Context, profileID string) error

	InsertHighlight(ctx context.Context, h *model.Highlight) error
	GetHighlight(ctx context.Context, highlightID string) (*model.Highlight, error)
	ListHighlightsByBook(ctx context.Context, bookID string) ([]model.Highlight, error)
	CountHighlights(ctx context.Context, bookID, profileID string) (int64, error)

	InsertComment(ctx context.Context, c *model.Comment) error
	GetComment(ctx context.Context, commentID string) (*model.Comment, error)
	ListCommentsByHighlight(ctx context.Context, highlightID string) ([]model.Comment, error)
	CountTopComments(ctx context.Context, highlightID string) (int64, error)
	CountReplies(ctx context.Context, parentID string) (int64, error)

	UpsertProgressMax(ctx context.Context, p *model.ProgressRecord) error
	ListProgressByBook(ctx context.Context, bookID string) ([]model.ProgressRecord, error)
}

type Options struct {
	SendQueueSize int
	ReplayWorkers int
	ReplayQueue   int
	SweepEvery    time.Duration    // reclaim 扫描周期
	Clock         func() time.Time // 可注入时钟（单测用）；nil => time.Now
}

func (o *Options) norm() {
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = 64
	}
	if o.ReplayWorkers <= 0 {
		o.ReplayWorkers = 2
	}
	if o.ReplayQueue <= 0 {
		o.ReplayQueue = 256
	}
	if o.SweepEvery <= 0 {
		o.SweepEvery = time.Second
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Server 把 registry / router / aggregator / reclaimer / dispatcher 拢在一起。
// 生命周期显式：main 里 NewServer，进程退出 Close。
type Server struct {
	reg    *Registry
	router *Router
	agg    *Aggregator
	rec    *Reclaimer
	disp   *Dispatcher
	st     Store
	clock  func() time.Time
}

func NewServer(st Store, opt Options) *Server {
	opt.norm()
	s := &Server{
		st:    st,
		clock: opt.Clock,
	}
	s.reg = NewRegistry(opt.Clock)
	s.router = NewRouter(s.reg, opt.ReplayWorkers, opt.ReplayQueue)
	s.agg = NewAggregator(st, config.Quota().ProgressFlushEvery, opt.Clock)
	s.rec = NewReclaimer(s, opt.SweepEvery, opt.Clock)
	s.disp = NewDispatcher()
	return s
}

func (s *Server) Reg() *Registry    { return s.reg }
func (s *Server) Router() *Router   { return s.router }
func (s *Server) Agg() *Aggregator  { return s.agg }
func (s *Server) Rec() *Reclaimer   { return s.rec }
func (s *Server) Disp() *Dispatcher { return s.disp }
func (s *Server) St() Store         { return s.st }
func (s *Server) Now() time.Time    { return s.clock() }

func (s *Server) Close() {
	s.rec.Close()
	s.agg.Close()
	s.router.Close()
}

// HandleWS WebSocket 入口：升级、起写协程、读循环走 dispatcher。
// 读循环只读不写；所有出站都进 Send 队列。
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[ws] upgrade failed: %v", err)
		return
	}

	q := config.Quota()
	cl := NewClient(ids.GenerateString(), ws, 64, q.MessageRate, q.MessageBurst)
	go cl.WritePump()

	ws.SetReadLimit(1 << 20) // 1MB
	_ = ws.SetReadDeadline(time.Now().Add(readDeadline))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readDeadline))
	})

	defer func() {
		safe.Recover("ws read loop")
		s.rec.MarkLost(cl)
		cl.Close()
	}()

	ctx := &Ctx{S: s}
	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[ws] peer closed conn=%s", cl.ConnID)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[ws] read timeout conn=%s", cl.ConnID)
			} else {
				logger.Infof("[ws] read err conn=%s err=%v", cl.ConnID, rerr)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		_ = ws.SetReadDeadline(time.Now().Add(readDeadline))

		// 入站限速：超限帧丢弃，只告知发起方
		if !cl.Allow() {
			cl.Enqueue(BuildErrorFrame(errs.ErrRateLimited))
			continue
		}

		f, perr := ParseFrame(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[ws] bad frame conn=%s err=%v sample=%q", cl.ConnID, perr, sample)
			cl.Enqueue(BuildErrorFrame(errs.ErrValidation.WithDetail("malformed frame")))
			continue
		}

		if herr := s.disp.Dispatch(ctx, f, cl); herr != nil {
			// 错误在操作边界收敛成一条 error 帧，连接保持
			logger.Infof("[ws] handler err conn=%s type=%s err=%v", cl.ConnID, f.Type, herr)
			cl.Enqueue(BuildErrorFrame(herr))
		}
	}
}

// PersistCount 把 registry 的权威人数镜像到库里；失败只告警不阻塞
func (s *Server) PersistCount(ctx context.Context, sessionID string, n int) {
	if s.st == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.st.SetParticipantCount(cctx, sessionID, n); err != nil {
		logger.Warnf("[room] persist participant count session=%s: %v", sessionID, err)
	}
}

// ApplyPhase 原子替换配额快照并向所有在用 session 广播 limits-updated
func (s *Server) ApplyPhase(name string) (*config.QuotaConfig, error) {
	q, err := config.UpgradePhase(name)
	if err != nil {
		return nil, err
	}
	payload := BuildLimitsPayload(q)
	for _, sid := range s.reg.Sessions() {
		s.router.Publish(sid, FrameLimitsUpdated, payload, "")
	}
	logger.Infof("[room] quota phase upgraded to %q", name)
	return q, nil
}
