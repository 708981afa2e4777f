package handlers

import (
	"context"
	"encoding/json"

	"CoReader/global/config"
	"CoReader/logger"
	"CoReader/module/reading/model"
	"CoReader/service/room"
	"CoReader/tools/errs"
	"CoReader/tools/ids"
)

type CommentHandler struct{}

func NewCommentHandler() room.Handler { return &CommentHandler{} }

func (h *CommentHandler) Type() string { return room.FrameCreateComment }

// Handle create-comment：顶层评论走每高亮计数，回复走深度 + 每评论回复数。
// 持久层计数（seed）在进锁前读好；锁内以本进程见过的计数为准重新校验。
func (h *CommentHandler) Handle(ctx *room.Ctx, f *room.Frame, cl *room.Client) error {
	if cl.State() != room.StateJoined || cl.SessionID == "" {
		return errs.ErrValidation.WithDetail("join a session first")
	}
	var p room.CommentPayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return errs.ErrValidation.WithDetail("create-comment payload")
	}
	if p.HighlightID == "" {
		return errs.ErrValidation.WithDetail("highlightId is required")
	}
	q := config.Quota()
	if !room.CommentLengthOK(q, len(p.Text)) {
		return errs.ErrValidation.WithDetail("comment length")
	}
	s := ctx.S

	cctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	hl, err := s.St().GetHighlight(cctx, p.HighlightID)
	if err != nil {
		return err
	}

	depth := int32(0)
	if p.ParentID != "" {
		parent, perr := s.St().GetComment(cctx, p.ParentID)
		if perr != nil {
			return perr
		}
		if parent.HighlightID != hl.HighlightID {
			return errs.ErrValidation.WithDetail("parent belongs to another highlight")
		}
		depth = parent.Depth + 1

		seed, serr := s.St().CountReplies(cctx, p.ParentID)
		if serr != nil {
			logger.Warnf("[comment] seed reply count: %v", serr)
		}
		if err := s.Reg().TryAddReply(cl.SessionID, p.ParentID, int(parent.Depth), int(seed)); err != nil {
			return err
		}
	} else {
		seed, serr := s.St().CountTopComments(cctx, p.HighlightID)
		if serr != nil {
			logger.Warnf("[comment] seed comment count: %v", serr)
		}
		if err := s.Reg().TryAddComment(cl.SessionID, p.HighlightID, int(seed)); err != nil {
			return err
		}
	}

	cm := &model.Comment{
		CommentID:   ids.GenerateString(),
		HighlightID: p.HighlightID,
		ParentID:    p.ParentID,
		ProfileID:   cl.ProfileID,
		Body:        p.Text,
		Depth:       depth,
		CreateTime:  s.Now(),
	}
	if err := s.St().InsertComment(cctx, cm); err != nil {
		logger.Warnf("[comment] insert failed id=%s: %v", cm.CommentID, err)
		cl.Enqueue(room.BuildErrorFrame(errs.ErrPersistence.WithDetail("comment may not be saved")))
	}

	view := room.ViewOfComment(cm)
	s.Reg().TouchActivity(cl.SessionID, cl.ProfileID)
	s.Router().Publish(cl.SessionID, room.FrameCommentAdded, view, cl.ProfileID)
	cl.Enqueue(room.MarshalFrame(room.FrameCommentConfirmed, view))
	return nil
}
