package model

import "time"

// ProgressRecord 每 (书, 读者) 一条：到达过的最远阅读位置。
// Percent 单调不减（"最远进度"语义，不是 last-write-wins）；唯一键 (book_id, profile_id)。
type ProgressRecord struct {
	BookID    string `bson:"book_id"`
	ProfileID string `bson:"profile_id"`

	Percent  float64 `bson:"percent"`  // 0~100，只增不减
	Location string  `bson:"location"` // 最远位置对应的定位串（CFI）

	UpdateTime time.Time `bson:"update_time"`
}
