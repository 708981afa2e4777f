package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

var (
	rdb *redis.Client
	ctx = context.Background()
)

// InitRedis 只有 ping 通了才置就绪；失败时 rdb 保持 nil，
// 让 Ready() 如实报告降级状态
func InitRedis(c Config) error {
	cli := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return err
	}
	rdb = cli
	return nil
}

// Ready reports whether redis was initialized. The mirror is best-effort:
// callers skip it when redis is absent (tests, dev without docker).
func Ready() bool { return rdb != nil }

// presence key: coread:presence:<session>:<profile>
// Value: display name, TTL controls the online validity period.
// 权威 roster 在内存 registry；这里只是给运维/轮询端看的镜像
func presenceKey(sessionID, profileID string) string {
	return "coread:presence:" + sessionID + ":" + profileID
}

// PresenceOnline sets the reader as online in the session and renews the TTL.
func PresenceOnline(sessionID, profileID, displayName string, ttl time.Duration) error {
	if rdb == nil {
		return fmt.Errorf("redis not initialized")
	}
	return rdb.Set(ctx, presenceKey(sessionID, profileID), displayName, ttl).Err()
}

// PresenceOffline actively sets the reader offline (deletes the key).
func PresenceOffline(sessionID, profileID string) error {
	if rdb == nil {
		return fmt.Errorf("redis not initialized")
	}
	return rdb.Del(ctx, presenceKey(sessionID, profileID)).Err()
}

// PresenceLookup checks whether the reader is online in the session.
func PresenceLookup(sessionID, profileID string) (displayName string, online bool, err error) {
	if rdb == nil {
		return "", false, fmt.Errorf("redis not initialized")
	}
	val, err := rdb.Get(ctx, presenceKey(sessionID, profileID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}
