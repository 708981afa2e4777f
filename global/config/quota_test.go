package config

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadQuotaByEnv(t *testing.T) {
	require.NoError(t, LoadQuota("testing"))
	assert.Equal(t, "testing", Quota().Phase)
	assert.Equal(t, 4, Quota().MaxConcurrentPerSession)

	require.NoError(t, LoadQuota("production"))
	assert.Equal(t, 12, Quota().MaxConcurrentPerSession)

	assert.Error(t, LoadQuota("staging"), "未注册的环境要报错")
}

func TestUpgradePhaseIsAtomicSwap(t *testing.T) {
	require.NoError(t, LoadQuota("testing"))
	old := Quota()

	q, err := UpgradePhase("production")
	require.NoError(t, err)
	assert.Equal(t, "production", q.Phase)
	assert.Same(t, q, Quota())
	// 老快照还是完整的旧值：在途操作拿着旧引用跑完没问题
	assert.Equal(t, "testing", old.Phase)
	assert.Equal(t, 4, old.MaxConcurrentPerSession)

	_, err = UpgradePhase("nope")
	assert.Error(t, err)
	assert.Equal(t, "production", Quota().Phase, "失败的升级不能动当前快照")
}

func TestRegisterPhase(t *testing.T) {
	RegisterPhase("beta-rollout", QuotaConfig{
		MaxConcurrentPerSession: 6,
		GraceWindow:             10 * time.Second,
	})
	q, err := UpgradePhase("beta-rollout")
	require.NoError(t, err)
	assert.Equal(t, "beta-rollout", q.Phase)
	assert.Equal(t, 6, q.MaxConcurrentPerSession)
}

// 灰度注册和 Pub/Sub 驱动的升级可以并发发生，phase 表不竞态
func TestRegisterPhaseConcurrentWithUpgrade(t *testing.T) {
	require.NoError(t, LoadQuota("testing"))
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			RegisterPhase("canary", QuotaConfig{MaxConcurrentPerSession: i + 1})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, _ = UpgradePhase("canary")
			_, _ = UpgradePhase("testing")
		}
	}()
	wg.Wait()
	require.NoError(t, LoadQuota("testing"))
}

// 并发读 + 升级不竞态（atomic.Pointer 语义冒烟）
func TestQuotaConcurrentAccess(t *testing.T) {
	require.NoError(t, LoadQuota("testing"))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q := Quota()
				_ = q.MaxConcurrentPerSession
			}
		}()
	}
	for i := 0; i < 20; i++ {
		_, _ = UpgradePhase("production")
		_, _ = UpgradePhase("testing")
	}
	wg.Wait()
}
