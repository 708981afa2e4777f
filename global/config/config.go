package config

import (
	"context"
	"os"

	"CoReader/data/database/mgo/mongoutil"
	"CoReader/logger"
	"CoReader/service/storage"
	"CoReader/tools/ids"
)

// Env APP_ENV 选择器，进程启动解析一次
func Env() string {
	if e := os.Getenv("APP_ENV"); e != "" {
		return e
	}
	return "development"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func ConfigIds() {
	logger.Infof("配置id生成")
	ids.SetNodeID(100)
}

// ConfigRedis presence 镜像和 limits Pub/Sub 用；连不上只降级不退出
func ConfigRedis() {
	cfg := storage.Config{
		Addr:     getenv("REDIS_ADDR", "127.0.0.1:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	}
	if err := storage.InitRedis(cfg); err != nil {
		logger.Warnf("redis unavailable, presence mirror disabled: %v", err)
	}
}

// ConfigMgo 持久层是硬依赖，起不来就让 main 退出
func ConfigMgo(ctx context.Context) (*mongoutil.Client, error) {
	cfg := &mongoutil.Config{
		Uri:         getenv("MONGO_URI", "mongodb://localhost:27017"),
		Database:    getenv("MONGO_DB", "coreader"),
		Username:    os.Getenv("MONGO_USER"),
		Password:    os.Getenv("MONGO_PASSWORD"),
		MaxPoolSize: 20,
		MaxRetry:    3,
	}
	return mongoutil.NewMongoDB(ctx, cfg)
}
