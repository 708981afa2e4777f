package model

import "time"

// Session 表示一本书的共读上下文。
// 一条记录对应一本书的一个在读 session；到期只置 Active=false，不物理删除。
type Session struct {
	SessionID string `bson:"session_id"` // PK（uuid）
	BookID    string `bson:"book_id"`    // 所属书籍ID

	// —— 展示信息 ——
	Title string `bson:"title"` // 书名快照（建 session 时从 ingest 带过来）

	// —— 在线状态 ——
	ParticipantCount int32     `bson:"participant_count"` // 当前在线人数（0 ≤ n ≤ 配额上限）
	LastActivity     time.Time `bson:"last_activity"`     // 最近一次 join/注解/进度活动
	Active           bool      `bson:"active"`            // 过期后置 false

	CreateTime time.Time `bson:"create_time"`
	UpdateTime time.Time `bson:"update_time"`
}
