package config

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// QuotaConfig 一份只读快照：所有上限集中在这里，运行期整体替换，不做字段级修改
type QuotaConfig struct {
	Phase string // 快照名（环境名或 phase 名）

	MaxConcurrentPerSession int // 每个共读 session 的同时在线人数
	MaxHighlightsPerBook    int // 每人每本书的高亮数
	MaxCommentsPerHighlight int // 每条高亮下的评论数
	MaxRepliesPerComment    int // 每条评论下的直接回复数
	MaxReplyDepth           int // 回复嵌套深度（0=顶层评论）

	MinCommentLen int
	MaxCommentLen int

	MessageRate  float64 // 每连接入站帧限速（帧/秒）
	MessageBurst int

	SessionTimeout     time.Duration // 超过该时长无活动的参与者不再出现在 roster 里
	GraceWindow        time.Duration // 断线后保留配额名额的宽限期
	ProgressFlushEvery time.Duration // 进度落库节流窗口
	ProfileTTL         time.Duration // 匿名档案的持久化 TTL

	ReconnectAttempts int // 下发给客户端的重连参数
	ReconnectDelayMS  int
}

// 预置快照：环境选择一次，phase 升级整体替换
var phases = map[string]QuotaConfig{
	"development": {
		Phase:                   "development",
		MaxConcurrentPerSession: 8,
		MaxHighlightsPerBook:    200,
		MaxCommentsPerHighlight: 50,
		MaxRepliesPerComment:    20,
		MaxReplyDepth:           4,
		MinCommentLen:           1,
		MaxCommentLen:           2000,
		MessageRate:             50,
		MessageBurst:            100,
		SessionTimeout:          30 * time.Minute,
		GraceWindow:             30 * time.Second,
		ProgressFlushEvery:      2 * time.Second,
		ProfileTTL:              30 * 24 * time.Hour,
		ReconnectAttempts:       10,
		ReconnectDelayMS:        1000,
	},
	"testing": {
		Phase:                   "testing",
		MaxConcurrentPerSession: 4,
		MaxHighlightsPerBook:    10,
		MaxCommentsPerHighlight: 5,
		MaxRepliesPerComment:    3,
		MaxReplyDepth:           2,
		MinCommentLen:           1,
		MaxCommentLen:           280,
		MessageRate:             100,
		MessageBurst:            200,
		SessionTimeout:          time.Minute,
		GraceWindow:             2 * time.Second,
		ProgressFlushEvery:      100 * time.Millisecond,
		ProfileTTL:              time.Hour,
		ReconnectAttempts:       3,
		ReconnectDelayMS:        100,
	},
	"production": {
		Phase:                   "production",
		MaxConcurrentPerSession: 12,
		MaxHighlightsPerBook:    500,
		MaxCommentsPerHighlight: 100,
		MaxRepliesPerComment:    30,
		MaxReplyDepth:           3,
		MinCommentLen:           1,
		MaxCommentLen:           4000,
		MessageRate:             20,
		MessageBurst:            40,
		SessionTimeout:          60 * time.Minute,
		GraceWindow:             30 * time.Second,
		ProgressFlushEvery:      2 * time.Second,
		ProfileTTL:              90 * 24 * time.Hour,
		ReconnectAttempts:       10,
		ReconnectDelayMS:        2000,
	},
}

var (
	current atomic.Pointer[QuotaConfig]
	// phases 会被 RegisterPhase（灰度注册）和 Pub/Sub 驱动的
	// UpgradePhase 并发访问，读写都走这把锁
	phasesMu sync.RWMutex
)

func init() {
	// 进程启动前的兜底，LoadQuota 会覆盖
	c := phases["development"]
	current.Store(&c)
}

func lookupPhase(name string) (QuotaConfig, bool) {
	phasesMu.RLock()
	defer phasesMu.RUnlock()
	c, ok := phases[name]
	return c, ok
}

// LoadQuota 进程启动时按环境选择快照；未知环境报错
func LoadQuota(env string) error {
	c, ok := lookupPhase(env)
	if !ok {
		return errors.Errorf("unknown quota environment %q", env)
	}
	current.Store(&c)
	return nil
}

// Quota 返回当前快照。调用方应取一次引用用到底，不要多次 Load 混用
func Quota() *QuotaConfig {
	return current.Load()
}

// UpgradePhase 整体替换快照，原子生效；返回新快照供广播 limits-updated
func UpgradePhase(name string) (*QuotaConfig, error) {
	c, ok := lookupPhase(name)
	if !ok {
		return nil, errors.Errorf("unknown quota phase %q", name)
	}
	current.Store(&c)
	return &c, nil
}

// RegisterPhase 预注册一个命名 phase（测试/灰度用）
func RegisterPhase(name string, c QuotaConfig) {
	c.Phase = name
	phasesMu.Lock()
	phases[name] = c
	phasesMu.Unlock()
}
