package room

import "CoReader/global/config"

// 纯谓词：拿当前计数 + 配额快照做判断，不碰任何状态。
// 检查和随后的写入合成一个原子单元是调用方的责任（registry 持锁做）。

func CanJoin(q *config.QuotaConfig, count int) bool {
	return count < q.MaxConcurrentPerSession
}

func CanCreateHighlight(q *config.QuotaConfig, userHighlightCount int) bool {
	return userHighlightCount < q.MaxHighlightsPerBook
}

func CanCreateComment(q *config.QuotaConfig, highlightCommentCount int) bool {
	return highlightCommentCount < q.MaxCommentsPerHighlight
}

func CanCreateReply(q *config.QuotaConfig, parentDepth int) bool {
	return parentDepth < q.MaxReplyDepth
}

func CanAddReplyUnder(q *config.QuotaConfig, parentReplyCount int) bool {
	return parentReplyCount < q.MaxRepliesPerComment
}

func CommentLengthOK(q *config.QuotaConfig, length int) bool {
	return length >= q.MinCommentLen && length <= q.MaxCommentLen
}
