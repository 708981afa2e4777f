package errs

import (
	"errors"
	"strconv"
)

// CodeError 业务错误：code + msg (+ detail)，贯穿 ws 帧与 REST 响应
type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) Error() string {
	s := strconv.Itoa(e.Code) + " " + e.Msg
	if e.Detail != "" {
		s += ": " + e.Detail
	}
	return s
}

// WithDetail 返回带补充信息的副本，原错误保持可比较
func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

// Is 让 errors.Is 按 code 匹配（detail 不参与）
func (e *CodeError) Is(target error) bool {
	var t *CodeError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// Kind ws error 帧里的机器可读原因
func (e *CodeError) Kind() string {
	if k, ok := kinds[e.Code]; ok {
		return k
	}
	return "internal"
}

// 配额类错误（session 满、注解/评论/回复超限、限流）对客户端永不致命
const (
	codeSessionFull    = 1001
	codeHighlightLimit = 1002
	codeCommentLimit   = 1003
	codeReplyDepth     = 1004
	codeReplyLimit     = 1005
	codeRateLimited    = 1006

	codeValidation  = 1100
	codeNotFound    = 1200
	codePersistence = 1300
)

var (
	ErrSessionFull    = NewCodeError(codeSessionFull, "session is full")
	ErrHighlightLimit = NewCodeError(codeHighlightLimit, "highlight limit reached")
	ErrCommentLimit   = NewCodeError(codeCommentLimit, "comment limit reached")
	ErrReplyDepth     = NewCodeError(codeReplyDepth, "reply depth limit reached")
	ErrReplyLimit     = NewCodeError(codeReplyLimit, "reply limit reached")
	ErrRateLimited    = NewCodeError(codeRateLimited, "too many messages")

	ErrValidation  = NewCodeError(codeValidation, "validation failed")
	ErrNotFound    = NewCodeError(codeNotFound, "not found")
	ErrPersistence = NewCodeError(codePersistence, "persistence failed")
)

var kinds = map[int]string{
	codeSessionFull:    "session_full",
	codeHighlightLimit: "highlight_limit",
	codeCommentLimit:   "comment_limit",
	codeReplyDepth:     "reply_depth",
	codeReplyLimit:     "reply_limit",
	codeRateLimited:    "rate_limited",
	codeValidation:     "validation",
	codeNotFound:       "not_found",
	codePersistence:    "persistence",
}

// IsQuota 是否为配额类错误（只通知发起方，不重试）
func IsQuota(err error) bool {
	var ce *CodeError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code >= codeSessionFull && ce.Code <= codeRateLimited
}

// AsCode 从 error 链中提取 CodeError；失败返回 nil
func AsCode(err error) *CodeError {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}
