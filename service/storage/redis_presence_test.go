package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// init 失败必须保持未就绪：join/reclaim 靠 Ready() 跳过镜像调用
func TestInitRedisFailureLeavesNotReady(t *testing.T) {
	// 端口 1 连不上，ping 必失败
	err := InitRedis(Config{Addr: "127.0.0.1:1"})
	require.Error(t, err)
	assert.False(t, Ready(), "失败的 init 之后不能报告就绪")

	// 降级态下每个入口都拒绝而不是挂在死连接上
	assert.Error(t, PresenceOnline("s1", "p1", "name", 0))
	assert.Error(t, PresenceOffline("s1", "p1"))
	_, _, lerr := PresenceLookup("s1", "p1")
	assert.Error(t, lerr)
	assert.Error(t, PublishLimits("production"))
	assert.Error(t, SubscribeLimits(nil, func(string) {}))
}
