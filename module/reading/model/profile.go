package model

import "time"

// Profile 匿名读者档案，作用域是一本书（不是一次 session）。
// 同一浏览器重连同一本书时复用；超过 TTL 未使用由后台清理。
type Profile struct {
	ProfileID string `bson:"profile_id"` // PK（uuid）
	BookID    string `bson:"book_id"`    // 档案归属的书

	DisplayName string `bson:"display_name"` // 随机生成：形容词+动物
	Color       string `bson:"color"`        // 头像/光标颜色

	CreateTime time.Time `bson:"create_time"`
	LastUsed   time.Time `bson:"last_used"` // 每次 join 刷新，TTL 清理依据
}
