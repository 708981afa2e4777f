package handlers

import (
	"encoding/json"

	"CoReader/service/room"
	"CoReader/tools/errs"
)

type ProgressHandler struct{}

func NewProgressHandler() room.Handler { return &ProgressHandler{} }

func (h *ProgressHandler) Type() string { return room.FrameUpdateProgress }

// Handle update-progress："最远进度"语义在 aggregator 里：
// 不前进的上报直接吞掉（不落库、不广播），前进的立即广播、延迟落库。
func (h *ProgressHandler) Handle(ctx *room.Ctx, f *room.Frame, cl *room.Client) error {
	if cl.State() != room.StateJoined || cl.SessionID == "" {
		return errs.ErrValidation.WithDetail("join a session first")
	}
	var p room.ProgressPayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return errs.ErrValidation.WithDetail("update-progress payload")
	}
	if p.BookID == "" {
		return errs.ErrValidation.WithDetail("bookId is required")
	}
	if p.Percent < 0 || p.Percent > 100 {
		return errs.ErrValidation.WithDetail("percent out of range")
	}
	s := ctx.S

	if !s.Agg().Report(p.BookID, cl.ProfileID, p.Percent, p.Location) {
		// 没有前进：Ignored，不是错误
		return nil
	}
	s.Reg().TouchActivity(cl.SessionID, cl.ProfileID)
	s.Router().Publish(cl.SessionID, room.FrameProgressUpdated, room.ProgressUpdatedPayload{
		ProfileID: cl.ProfileID,
		Percent:   p.Percent,
		Location:  p.Location,
	}, cl.ProfileID)
	return nil
}
