package model

import "time"

// Book 一本已导入的书。导入/格式转换由外部 converter 完成，
// 这里只存元数据；正文定位全部走渲染库给的 CFI 串。
type Book struct {
	BookID string `bson:"book_id"` // PK（uuid）
	Title  string `bson:"title"`
	Author string `bson:"author"`

	Chapters int32  `bson:"chapters"`  // 章节数（渲染库解析结果）
	SpineRef string `bson:"spine_ref"` // 渲染库侧的资源引用，核心不解释

	CreateTime time.Time `bson:"create_time"`
}
