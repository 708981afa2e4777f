package model

import "time"

// Highlight 锚定在书内某个位置范围上的高亮注解。
// 创建后不可变（删除不在本模块建模）；归属创建它的读者。
type Highlight struct {
	HighlightID string `bson:"highlight_id"` // PK（雪花ID，服务端生成）
	BookID      string `bson:"book_id"`
	SessionID   string `bson:"session_id"` // 创建时所在的 session
	ProfileID   string `bson:"profile_id"` // 创建者

	// —— 锚点 ——
	// Anchor 是渲染库给出的不透明定位串（CFI），核心不解释其内容
	Anchor   string  `bson:"anchor"`
	Position float64 `bson:"position,omitempty"` // 线性位置（0~100，可选）
	Chapter  int32   `bson:"chapter"`            // 章节索引

	// —— 展示 ——
	Excerpt string `bson:"excerpt"` // 选中文本摘录
	Color   string `bson:"color"`   // 调色板颜色

	CreateTime time.Time `bson:"create_time"`
}
