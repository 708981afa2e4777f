package handlers

import (
	"context"
	"encoding/json"

	"CoReader/logger"
	"CoReader/module/reading/model"
	"CoReader/service/room"
	"CoReader/tools/errs"
	"CoReader/tools/ids"
	"CoReader/tools/names"
)

type HighlightHandler struct{}

func NewHighlightHandler() room.Handler { return &HighlightHandler{} }

func (h *HighlightHandler) Type() string { return room.FrameCreateHighlight }

// Handle create-highlight：配额 check+incr 原子过 → 落库 → 广播。
// 广播一定发生在写完成（或被明确标记为尽力而为）之后——不会出现
// 一部分人看得见、一部分人看不见的半可见状态。
func (h *HighlightHandler) Handle(ctx *room.Ctx, f *room.Frame, cl *room.Client) error {
	if cl.State() != room.StateJoined || cl.SessionID == "" {
		return errs.ErrValidation.WithDetail("join a session first")
	}
	var p room.HighlightPayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return errs.ErrValidation.WithDetail("create-highlight payload")
	}
	if p.Anchor == "" || p.BookID == "" {
		return errs.ErrValidation.WithDetail("anchor and bookId are required")
	}
	if p.Color != "" && !names.ValidColor(p.Color) {
		return errs.ErrValidation.WithDetail("color")
	}
	s := ctx.S

	// 原子配额：registry 锁内读计数、过谓词、自增，一步完成
	if err := s.Reg().TryAddHighlight(cl.SessionID, cl.ProfileID); err != nil {
		return err
	}

	color := p.Color
	if color == "" {
		color = cl.Color
	}
	hl := &model.Highlight{
		HighlightID: ids.GenerateString(),
		BookID:      p.BookID,
		SessionID:   cl.SessionID,
		ProfileID:   cl.ProfileID,
		Anchor:      p.Anchor,
		Position:    p.Position,
		Chapter:     p.Chapter,
		Excerpt:     p.Excerpt,
		Color:       color,
		CreateTime:  s.Now(),
	}

	cctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := s.St().InsertHighlight(cctx, hl); err != nil {
		// 注解写失败不阻塞：照常广播，但告知发起方可能没存住
		logger.Warnf("[highlight] insert failed id=%s: %v", hl.HighlightID, err)
		cl.Enqueue(room.BuildErrorFrame(errs.ErrPersistence.WithDetail("highlight may not be saved")))
	}

	view := room.ViewOfHighlight(hl)
	s.Reg().TouchActivity(cl.SessionID, cl.ProfileID)
	s.Router().Publish(cl.SessionID, room.FrameHighlightAdded, view, cl.ProfileID)
	// 发起方单独拿 confirmed，里面是服务端生成的权威 id
	cl.Enqueue(room.MarshalFrame(room.FrameHighlightConfirmed, view))
	return nil
}
