package handlers

import (
	"context"
	"encoding/json"
	"time"

	"CoReader/global/config"
	"CoReader/logger"
	"CoReader/module/reading/model"
	"CoReader/service/room"
	"CoReader/service/storage"
	"CoReader/tools/errs"
	"CoReader/tools/names"
	"CoReader/tools/safe"

	"github.com/google/uuid"
)

const opTimeout = 5 * time.Second

type JoinHandler struct{}

func NewJoinHandler() room.Handler { return &JoinHandler{} }

func (h *JoinHandler) Type() string { return room.FrameJoinSession }

// Handle join 流程：取 session → 配档案 → 原子入座 → roster 回发起方 →
// 注解全量回放 → user-joined 广播给其他人。
// 配额判定（CanJoin）和入座在 registry 锁内一步完成，这里只做准备工作。
func (h *JoinHandler) Handle(ctx *room.Ctx, f *room.Frame, cl *room.Client) error {
	var p room.JoinPayload
	if err := json.Unmarshal(f.Data, &p); err != nil || p.SessionID == "" {
		return errs.ErrValidation.WithDetail("join-session payload")
	}
	s := ctx.S

	cctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	sess, err := s.St().GetSession(cctx, p.SessionID)
	if err != nil {
		return err
	}
	if !sess.Active {
		return errs.ErrNotFound.WithDetail("session expired")
	}

	prof := h.resolveProfile(cctx, s, sess.BookID, p.ProfileID)

	// 高亮配额 seed：持锁前读库，registry 锁内用它做 check+incr
	seed64, err := s.St().CountHighlights(cctx, sess.BookID, prof.ProfileID)
	if err != nil {
		logger.Warnf("[join] seed highlight count: %v", err)
	}

	part := &room.Participant{
		ProfileID:   prof.ProfileID,
		DisplayName: prof.DisplayName,
		Color:       prof.Color,
	}
	res, err := s.Reg().Join(p.SessionID, sess.BookID, cl, part, int(seed64))
	if err != nil {
		return err // session_full，只报给发起方
	}
	cl.Name = prof.DisplayName
	cl.Color = prof.Color
	s.Rec().Cancel(p.SessionID, prof.ProfileID)

	// 镜像与落库都是尽力而为，不挡住入座
	q := config.Quota()
	if storage.Ready() {
		if err := storage.PresenceOnline(p.SessionID, prof.ProfileID, prof.DisplayName, q.SessionTimeout); err != nil {
			logger.Warnf("[join] presence mirror: %v", err)
		}
	}
	count := res.Count
	safe.Go(func() {
		pctx, pcancel := context.WithTimeout(context.Background(), opTimeout)
		defer pcancel()
		s.PersistCount(pctx, p.SessionID, count)
		_ = s.St().TouchSession(pctx, p.SessionID)
	})

	// 进度水位：库里的灌一遍（重启后不回退），再用内存水位装饰 roster
	if recs, err := s.St().ListProgressByBook(cctx, sess.BookID); err == nil {
		for i := range recs {
			s.Agg().Seed(sess.BookID, recs[i].ProfileID, recs[i].Percent, recs[i].Location)
		}
	}
	pcts := s.Agg().SnapshotBook(sess.BookID)

	you := res.You
	you.Percent = pcts[you.ProfileID]
	others := make([]room.ParticipantView, 0, len(res.Others))
	for _, o := range res.Others {
		o.Percent = pcts[o.ProfileID]
		others = append(others, o)
	}

	// roster 只发给新加入的连接
	cl.Enqueue(room.MarshalFrame(room.FrameSessionRoster, room.RosterPayload{
		SessionID:         p.SessionID,
		You:               you,
		Participants:      others,
		ReconnectAttempts: q.ReconnectAttempts,
		ReconnectDelayMS:  q.ReconnectDelayMS,
	}))

	// 注解全量回放：断线期间错过的事件全靠这一步对齐
	h.replayAnnotations(cctx, s, cl, sess.BookID)

	// 重连不重复宣告，别人视角里这个人从没离开过
	if !res.Reconnected {
		s.Router().Publish(p.SessionID, room.FrameUserJoined, you, prof.ProfileID)
	}
	logger.Infof("[join] session=%s profile=%s reconnect=%v count=%d",
		p.SessionID, prof.ProfileID, res.Reconnected, res.Count)
	return nil
}

// resolveProfile 已知档案复用并刷新 last_used；没有或查不到就新建
func (h *JoinHandler) resolveProfile(ctx context.Context, s *room.Server, bookID, profileID string) *model.Profile {
	if profileID != "" {
		prof, err := s.St().GetProfile(ctx, profileID)
		if err == nil {
			if terr := s.St().TouchProfile(ctx, profileID); terr != nil {
				logger.Warnf("[join] touch profile: %v", terr)
			}
			return prof
		}
		logger.Infof("[join] profile %s unknown, issuing a new one", profileID)
	}
	name, color := names.Generate()
	now := time.Now()
	prof := &model.Profile{
		ProfileID:   uuid.NewString(),
		BookID:      bookID,
		DisplayName: name,
		Color:       color,
		CreateTime:  now,
		LastUsed:    now,
	}
	if err := s.St().InsertProfile(ctx, prof); err != nil {
		// 档案落库失败不挡 join，下次重连拿不到就再发一个新的
		logger.Warnf("[join] insert profile: %v", err)
	}
	return prof
}

// replayAnnotations 把这本书的高亮和评论按创建顺序打包，走回放工作池发给单个连接
func (h *JoinHandler) replayAnnotations(ctx context.Context, s *room.Server, cl *room.Client, bookID string) {
	hs, err := s.St().ListHighlightsByBook(ctx, bookID)
	if err != nil {
		logger.Warnf("[join] replay highlights: %v", err)
		return
	}
	var frames [][]byte
	for i := range hs {
		frames = append(frames, room.MarshalFrame(room.FrameHighlightAdded, room.ViewOfHighlight(&hs[i])))
		cs, cerr := s.St().ListCommentsByHighlight(ctx, hs[i].HighlightID)
		if cerr != nil {
			logger.Warnf("[join] replay comments highlight=%s: %v", hs[i].HighlightID, cerr)
			continue
		}
		for j := range cs {
			frames = append(frames, room.MarshalFrame(room.FrameCommentAdded, room.ViewOfComment(&cs[j])))
		}
	}
	if len(frames) > 0 {
		s.Router().Replay(cl, frames)
	}
}
