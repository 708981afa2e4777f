package storage

import (
	"context"
	"fmt"

	"CoReader/logger"
)

// 配额 phase 升级通过 Pub/Sub 通知：单进程内也走这条路，
// 这样升级入口（REST/后台脚本）和生效点（订阅者）保持解耦
const limitsChannel = "coread:limits"

// PublishLimits announces a quota phase upgrade.
func PublishLimits(phase string) error {
	if rdb == nil {
		return fmt.Errorf("redis not initialized")
	}
	return rdb.Publish(ctx, limitsChannel, phase).Err()
}

// SubscribeLimits delivers phase names to fn until cctx is cancelled.
func SubscribeLimits(cctx context.Context, fn func(phase string)) error {
	if rdb == nil {
		return fmt.Errorf("redis not initialized")
	}
	sub := rdb.Subscribe(cctx, limitsChannel)
	go func() {
		defer func() {
			if err := sub.Close(); err != nil {
				logger.Warnf("[limits] close subscription: %v", err)
			}
		}()
		ch := sub.Channel()
		for {
			select {
			case <-cctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				fn(msg.Payload)
			}
		}
	}()
	return nil
}
