package model

import "time"

// Comment 挂在高亮下的讨论；Reply 复用同一结构，ParentID 指向父评论。
// 不变式：Depth ≤ 配额上限；回复的 Depth 恒等于 parent.Depth + 1。
type Comment struct {
	CommentID   string `bson:"comment_id"`          // PK（雪花ID）
	HighlightID string `bson:"highlight_id"`        // 所属高亮
	ParentID    string `bson:"parent_id,omitempty"` // 空=顶层评论
	ProfileID   string `bson:"profile_id"`          // 作者

	Body  string `bson:"body"`
	Depth int32  `bson:"depth"` // 0=顶层

	CreateTime time.Time `bson:"create_time"`
	UpdateTime time.Time `bson:"update_time"`
}
