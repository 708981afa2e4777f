package reading

import (
	"net/http"
	"time"

	"CoReader/global/config"
	"CoReader/logger"
	"CoReader/module/reading/model"
	"CoReader/module/reading/store"
	"CoReader/service/room"
	"CoReader/service/storage"
	"CoReader/tools/errs"
	"CoReader/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// API 同步请求/响应面：首屏加载和降级轮询的客户端走这里，
// 实时路径走 /ws。写操作的配额检查在这条路径上用持久层计数。
type API struct {
	Repo *store.Repo
	Srv  *room.Server
}

func NewAPI(repo *store.Repo, srv *room.Server) *API {
	return &API{Repo: repo, Srv: srv}
}

func fail(c *gin.Context, err error) {
	ce := errs.AsCode(err)
	if ce == nil {
		logger.Errorf("[api] internal: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"kind": "internal"}})
		return
	}
	status := http.StatusBadRequest
	switch {
	case errs.IsQuota(err):
		status = http.StatusTooManyRequests
	case ce.Is(errs.ErrNotFound):
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": gin.H{"kind": ce.Kind(), "msg": ce.Msg, "detail": ce.Detail}})
}

type createBookReq struct {
	Title    string `json:"title" binding:"required"`
	Author   string `json:"author"`
	Chapters int32  `json:"chapters" binding:"required,min=1"`
	SpineRef string `json:"spineRef"`
}

// HandlerCreateBook 导入一本书：建 Book，同时建它的共读 session
func (a *API) HandlerCreateBook(c *gin.Context) {
	var req createBookReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrValidation.WithDetail(err.Error()))
		return
	}
	b := &model.Book{
		BookID:   uuid.NewString(),
		Title:    req.Title,
		Author:   req.Author,
		Chapters: req.Chapters,
		SpineRef: req.SpineRef,
	}
	if err := a.Repo.InsertBook(c.Request.Context(), b); err != nil {
		fail(c, err)
		return
	}
	sess := &model.Session{
		SessionID: uuid.NewString(),
		BookID:    b.BookID,
		Title:     b.Title,
		Active:    true,
	}
	if err := a.Repo.InsertSession(c.Request.Context(), sess); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"book": b, "session": sessionView(sess)})
}

func sessionView(s *model.Session) gin.H {
	return gin.H{
		"sessionId":        s.SessionID,
		"bookId":           s.BookID,
		"title":            s.Title,
		"participantCount": s.ParticipantCount,
		"lastActivity":     s.LastActivity,
		"active":           s.Active,
	}
}

func (a *API) HandlerListBooks(c *gin.Context) {
	bs, err := a.Repo.ListBooks(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"books": bs})
}

// HandlerGetBook 书 + 它的在读 session（书籍页进房入口）
func (a *API) HandlerGetBook(c *gin.Context) {
	ctx := c.Request.Context()
	b, err := a.Repo.GetBook(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	out := gin.H{"book": b}
	if sess, serr := a.Repo.GetSessionByBook(ctx, b.BookID); serr == nil {
		out["session"] = sessionView(sess)
	}
	c.JSON(http.StatusOK, out)
}

// HandlerGetSession session + 当前 roster（内存权威值）
func (a *API) HandlerGetSession(c *gin.Context) {
	sess, err := a.Repo.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	roster := a.Srv.Reg().Roster(sess.SessionID)
	pcts := a.Srv.Agg().SnapshotBook(sess.BookID)
	for i := range roster {
		roster[i].Percent = pcts[roster[i].ProfileID]
	}
	c.JSON(http.StatusOK, gin.H{"session": sessionView(sess), "roster": roster})
}

// HandlerListHighlights 降级轮询端的全量注解
func (a *API) HandlerListHighlights(c *gin.Context) {
	sess, err := a.Repo.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	hs, err := a.Repo.ListHighlightsByBook(c.Request.Context(), sess.BookID)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]room.HighlightView, 0, len(hs))
	for i := range hs {
		out = append(out, room.ViewOfHighlight(&hs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"highlights": out})
}

func (a *API) HandlerListComments(c *gin.Context) {
	cs, err := a.Repo.ListCommentsByHighlight(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]room.CommentView, 0, len(cs))
	for i := range cs {
		out = append(out, room.ViewOfComment(&cs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"comments": out})
}

type createHighlightReq struct {
	BookID    string  `json:"bookId" binding:"required"`
	ProfileID string  `json:"profileId" binding:"required"`
	Anchor    string  `json:"anchor" binding:"required"`
	Position  float64 `json:"position"`
	Chapter   int32   `json:"chapter"`
	Excerpt   string  `json:"excerpt"`
	Color     string  `json:"color"`
}

// HandlerCreateHighlight 轮询端建高亮。配额用持久层计数；
// 和 ws 路径的内存计数可能短暂偏差，以各自路径内的原子性为准。
func (a *API) HandlerCreateHighlight(c *gin.Context) {
	var req createHighlightReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrValidation.WithDetail(err.Error()))
		return
	}
	ctx := c.Request.Context()
	q := config.Quota()
	cnt, err := a.Repo.CountHighlights(ctx, req.BookID, req.ProfileID)
	if err != nil {
		fail(c, err)
		return
	}
	if !room.CanCreateHighlight(q, int(cnt)) {
		fail(c, errs.ErrHighlightLimit)
		return
	}
	hl := &model.Highlight{
		HighlightID: ids.GenerateString(),
		BookID:      req.BookID,
		ProfileID:   req.ProfileID,
		Anchor:      req.Anchor,
		Position:    req.Position,
		Chapter:     req.Chapter,
		Excerpt:     req.Excerpt,
		Color:       req.Color,
		CreateTime:  time.Now(),
	}
	if err := a.Repo.InsertHighlight(ctx, hl); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"highlight": room.ViewOfHighlight(hl)})
}

type createCommentReq struct {
	HighlightID string `json:"highlightId" binding:"required"`
	ProfileID   string `json:"profileId" binding:"required"`
	ParentID    string `json:"parentId"`
	Text        string `json:"text" binding:"required"`
}

func (a *API) HandlerCreateComment(c *gin.Context) {
	var req createCommentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrValidation.WithDetail(err.Error()))
		return
	}
	ctx := c.Request.Context()
	q := config.Quota()
	if !room.CommentLengthOK(q, len(req.Text)) {
		fail(c, errs.ErrValidation.WithDetail("comment length"))
		return
	}
	if _, err := a.Repo.GetHighlight(ctx, req.HighlightID); err != nil {
		fail(c, err)
		return
	}
	depth := int32(0)
	if req.ParentID != "" {
		parent, err := a.Repo.GetComment(ctx, req.ParentID)
		if err != nil {
			fail(c, err)
			return
		}
		if !room.CanCreateReply(q, int(parent.Depth)) {
			fail(c, errs.ErrReplyDepth)
			return
		}
		rc, err := a.Repo.CountReplies(ctx, req.ParentID)
		if err != nil {
			fail(c, err)
			return
		}
		if !room.CanAddReplyUnder(q, int(rc)) {
			fail(c, errs.ErrReplyLimit)
			return
		}
		depth = parent.Depth + 1
	} else {
		cc, err := a.Repo.CountTopComments(ctx, req.HighlightID)
		if err != nil {
			fail(c, err)
			return
		}
		if !room.CanCreateComment(q, int(cc)) {
			fail(c, errs.ErrCommentLimit)
			return
		}
	}
	cm := &model.Comment{
		CommentID:   ids.GenerateString(),
		HighlightID: req.HighlightID,
		ParentID:    req.ParentID,
		ProfileID:   req.ProfileID,
		Body:        req.Text,
		Depth:       depth,
		CreateTime:  time.Now(),
	}
	if err := a.Repo.InsertComment(ctx, cm); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"comment": room.ViewOfComment(cm)})
}

type reportProgressReq struct {
	BookID    string  `json:"bookId" binding:"required"`
	ProfileID string  `json:"profileId" binding:"required"`
	Percent   float64 `json:"percent" binding:"min=0,max=100"`
	Location  string  `json:"location"`
}

// HandlerReportProgress 轮询端进度上报，和 ws 路径共用同一个 aggregator
func (a *API) HandlerReportProgress(c *gin.Context) {
	var req reportProgressReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrValidation.WithDetail(err.Error()))
		return
	}
	accepted := a.Srv.Agg().Report(req.BookID, req.ProfileID, req.Percent, req.Location)
	c.JSON(http.StatusOK, gin.H{"accepted": accepted})
}

func (a *API) HandlerGetProfile(c *gin.Context) {
	ctx := c.Request.Context()
	p, err := a.Repo.GetProfile(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	out := gin.H{
		"profileId":   p.ProfileID,
		"bookId":      p.BookID,
		"displayName": p.DisplayName,
		"color":       p.Color,
	}
	// 最远进度一并带出，省客户端一次往返；没有记录就不带
	if rec, perr := a.Repo.GetProgress(ctx, p.BookID, p.ProfileID); perr == nil {
		out["percent"] = rec.Percent
		out["location"] = rec.Location
	}
	c.JSON(http.StatusOK, out)
}

// HandlerPresence 运维/轮询端查 redis 镜像；权威 roster 走 GET session
func (a *API) HandlerPresence(c *gin.Context) {
	if !storage.Ready() {
		fail(c, errs.ErrNotFound.WithDetail("presence mirror disabled"))
		return
	}
	name, online, err := storage.PresenceLookup(c.Param("id"), c.Param("profileId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"online": online, "displayName": name})
}

// HandlerExpireSession 管理入口：手工下线一个 session（历史注解保留）
func (a *API) HandlerExpireSession(c *gin.Context) {
	if err := a.Repo.MarkInactive(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": c.Param("id"), "active": false})
}

type phaseReq struct {
	Phase string `json:"phase" binding:"required"`
}

// HandlerPhaseUpgrade 配额 phase 升级入口。有 redis 走 Pub/Sub
// （生效点在订阅者），没有就进程内直接换快照。
func (a *API) HandlerPhaseUpgrade(c *gin.Context) {
	var req phaseReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrValidation.WithDetail(err.Error()))
		return
	}
	if storage.Ready() {
		if err := storage.PublishLimits(req.Phase); err != nil {
			logger.Warnf("[api] publish limits, falling back to local apply: %v", err)
		} else {
			c.JSON(http.StatusAccepted, gin.H{"phase": req.Phase})
			return
		}
	}
	q, err := a.Srv.ApplyPhase(req.Phase)
	if err != nil {
		fail(c, errs.ErrValidation.WithDetail(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"limits": room.BuildLimitsPayload(q)})
}
