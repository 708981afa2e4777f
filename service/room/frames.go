package room

import (
	"encoding/json"
	"time"

	"CoReader/global/config"
	"CoReader/module/reading/model"
	"CoReader/tools/errs"

	"github.com/pkg/errors"
)

// 入站帧类型（客户端 → 服务端）
const (
	FrameJoinSession     = "join-session"
	FrameCreateHighlight = "create-highlight"
	FrameCreateComment   = "create-comment"
	FrameUpdateProgress  = "update-progress"
)

// 出站帧类型（服务端 → 客户端）
const (
	FrameUserJoined         = "user-joined"
	FrameUserLeft           = "user-left"
	FrameSessionRoster      = "session-roster"
	FrameHighlightAdded     = "highlight-added"
	FrameHighlightConfirmed = "highlight-confirmed"
	FrameCommentAdded       = "comment-added"
	FrameCommentConfirmed   = "comment-confirmed"
	FrameProgressUpdated    = "user-progress-updated"
	FrameLimitsUpdated      = "limits-updated"
	FrameError              = "error"
)

// Frame 线上帧：type + 原始 data，业务 payload 二次解码
type Frame struct {
	Type string          `json:"type"`
	Ts   int64           `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func ParseFrame(raw []byte) (*Frame, error) {
	f := &Frame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, errors.Wrap(err, "unmarshal frame failed")
	}
	if f.Type == "" {
		return nil, errors.New("frame missing type")
	}
	return f, nil
}

// MarshalFrame 编一帧；payload 编不出来属于编程错误，返回 nil 由调用方丢弃
func MarshalFrame(frameType string, data any) []byte {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil
		}
		raw = b
	}
	out, err := json.Marshal(&Frame{Type: frameType, Ts: time.Now().UnixMilli(), Data: raw})
	if err != nil {
		return nil
	}
	return out
}

// ---- 入站 payload ----

type JoinPayload struct {
	SessionID string `json:"sessionId"`
	ProfileID string `json:"profileId,omitempty"` // 本地记住的档案，重连复用
}

type HighlightPayload struct {
	BookID   string  `json:"bookId"`
	Anchor   string  `json:"anchor"` // 渲染库定位串，不解释
	Position float64 `json:"position,omitempty"`
	Chapter  int32   `json:"chapter"`
	Excerpt  string  `json:"excerpt"`
	Color    string  `json:"color"`
}

type CommentPayload struct {
	HighlightID string `json:"highlightId"`
	ParentID    string `json:"parentId,omitempty"` // 有值则是回复
	Text        string `json:"text"`
}

type ProgressPayload struct {
	BookID   string  `json:"bookId"`
	Percent  float64 `json:"percent"`
	Location string  `json:"location,omitempty"`
}

// ---- 出站 payload ----

// ParticipantView roster/join 事件里的参与者视图
type ParticipantView struct {
	ProfileID   string  `json:"profileId"`
	DisplayName string  `json:"displayName"`
	Color       string  `json:"color"`
	Percent     float64 `json:"percent"`
}

type RosterPayload struct {
	SessionID    string            `json:"sessionId"`
	You          ParticipantView   `json:"you"`
	Participants []ParticipantView `json:"participants"`
	// 客户端重连参数随 roster 下发，改配置不用发版
	ReconnectAttempts int `json:"reconnectAttempts"`
	ReconnectDelayMS  int `json:"reconnectDelayMs"`
}

type UserLeftPayload struct {
	ProfileID string `json:"profileId"`
}

type ProgressUpdatedPayload struct {
	ProfileID string  `json:"profileId"`
	Percent   float64 `json:"percent"`
	Location  string  `json:"location,omitempty"`
}

type LimitsPayload struct {
	Phase                   string `json:"phase"`
	MaxConcurrentPerSession int    `json:"maxConcurrentPerSession"`
	MaxHighlightsPerBook    int    `json:"maxHighlightsPerBook"`
	MaxCommentsPerHighlight int    `json:"maxCommentsPerHighlight"`
	MaxRepliesPerComment    int    `json:"maxRepliesPerComment"`
	MaxReplyDepth           int    `json:"maxReplyDepth"`
	MaxCommentLen           int    `json:"maxCommentLen"`
}

func BuildLimitsPayload(q *config.QuotaConfig) LimitsPayload {
	return LimitsPayload{
		Phase:                   q.Phase,
		MaxConcurrentPerSession: q.MaxConcurrentPerSession,
		MaxHighlightsPerBook:    q.MaxHighlightsPerBook,
		MaxCommentsPerHighlight: q.MaxCommentsPerHighlight,
		MaxRepliesPerComment:    q.MaxRepliesPerComment,
		MaxReplyDepth:           q.MaxReplyDepth,
		MaxCommentLen:           q.MaxCommentLen,
	}
}

// HighlightView highlight-added / highlight-confirmed 的载荷，
// 两者字段相同：confirmed 只发给发起方，带的是服务端生成的权威 id
type HighlightView struct {
	HighlightID string  `json:"highlightId"`
	BookID      string  `json:"bookId"`
	ProfileID   string  `json:"profileId"`
	Anchor      string  `json:"anchor"`
	Position    float64 `json:"position,omitempty"`
	Chapter     int32   `json:"chapter"`
	Excerpt     string  `json:"excerpt"`
	Color       string  `json:"color"`
	CreatedAt   int64   `json:"createdAt"`
}

func ViewOfHighlight(h *model.Highlight) HighlightView {
	return HighlightView{
		HighlightID: h.HighlightID,
		BookID:      h.BookID,
		ProfileID:   h.ProfileID,
		Anchor:      h.Anchor,
		Position:    h.Position,
		Chapter:     h.Chapter,
		Excerpt:     h.Excerpt,
		Color:       h.Color,
		CreatedAt:   h.CreateTime.UnixMilli(),
	}
}

type CommentView struct {
	CommentID   string `json:"commentId"`
	HighlightID string `json:"highlightId"`
	ParentID    string `json:"parentId,omitempty"`
	ProfileID   string `json:"profileId"`
	Body        string `json:"body"`
	Depth       int32  `json:"depth"`
	CreatedAt   int64  `json:"createdAt"`
}

func ViewOfComment(c *model.Comment) CommentView {
	return CommentView{
		CommentID:   c.CommentID,
		HighlightID: c.HighlightID,
		ParentID:    c.ParentID,
		ProfileID:   c.ProfileID,
		Body:        c.Body,
		Depth:       c.Depth,
		CreatedAt:   c.CreateTime.UnixMilli(),
	}
}

type ErrorPayload struct {
	Kind   string `json:"kind"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

// BuildErrorFrame 所有错误都在操作边界收敛成一条 error 帧，进程不会因此崩
func BuildErrorFrame(err error) []byte {
	ce := errs.AsCode(err)
	if ce == nil {
		ce = errs.NewCodeError(0, "internal error")
	}
	return MarshalFrame(FrameError, ErrorPayload{Kind: ce.Kind(), Msg: ce.Msg, Detail: ce.Detail})
}
