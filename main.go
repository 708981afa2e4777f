package main

import (
	"context"
	"log"
	"os"
	"time"

	"CoReader/global/config"
	"CoReader/logger"
	mid "CoReader/middleware"
	"CoReader/module/reading"
	"CoReader/module/reading/store"
	"CoReader/service/room"
	"CoReader/service/room/handlers"
	"CoReader/service/storage"
	"CoReader/tools/safe"

	"github.com/gin-gonic/gin"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer logger.Sync()

	// 1) 基础设施
	config.ConfigIds()
	if err := config.LoadQuota(config.Env()); err != nil {
		log.Fatal(err)
	}
	config.ConfigRedis()

	mcli, err := config.ConfigMgo(ctx)
	if err != nil {
		log.Fatalf("mongo init failed: %v", err)
	}
	defer func() { _ = mcli.Close(context.Background()) }()

	repo := store.New(mcli.GetDB())
	if err := repo.EnsureIndexes(ctx); err != nil {
		log.Fatalf("ensure indexes failed: %v", err)
	}

	// 2) 共读核心
	srv := room.NewServer(repo, room.Options{})
	defer srv.Close()
	handlers.RegisterAll(srv)

	// 3) 配额 phase 升级：订阅 Pub/Sub，生效点统一在这里
	if storage.Ready() {
		if err := storage.SubscribeLimits(ctx, func(phase string) {
			if _, aerr := srv.ApplyPhase(phase); aerr != nil {
				logger.Warnf("[main] apply phase %q: %v", phase, aerr)
			}
		}); err != nil {
			logger.Warnf("[main] subscribe limits: %v", err)
		}
	}

	// 4) 后台清扫：过期档案 + 闲置 session
	safe.Go(func() {
		t := time.NewTicker(time.Hour)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				q := config.Quota()
				sctx, scancel := context.WithTimeout(ctx, 30*time.Second)
				if n, perr := repo.PurgeExpiredProfiles(sctx, q.ProfileTTL); perr != nil {
					logger.Warnf("[sweep] purge profiles: %v", perr)
				} else if n > 0 {
					logger.Infof("[sweep] purged %d expired profiles", n)
				}
				if n, serr := repo.MarkIdleSessionsInactive(sctx, 24*time.Hour); serr != nil {
					logger.Warnf("[sweep] expire sessions: %v", serr)
				} else if n > 0 {
					logger.Infof("[sweep] marked %d sessions inactive", n)
				}
				scancel()
			}
		}
	})

	// 5) HTTP + WebSocket
	api := reading.NewAPI(repo, srv)

	r := gin.New()
	r.Use(gin.Recovery(), mid.Cors())

	r.GET("/ws/read", srv.HandleWS)

	r.POST("/api/books", api.HandlerCreateBook)
	r.GET("/api/books", api.HandlerListBooks)
	r.GET("/api/books/:id", api.HandlerGetBook)
	r.GET("/api/sessions/:id", api.HandlerGetSession)
	r.GET("/api/sessions/:id/presence/:profileId", api.HandlerPresence)
	r.GET("/api/sessions/:id/highlights", api.HandlerListHighlights)
	r.GET("/api/highlights/:id/comments", api.HandlerListComments)
	r.POST("/api/highlights", api.HandlerCreateHighlight)
	r.POST("/api/comments", api.HandlerCreateComment)
	r.POST("/api/progress", api.HandlerReportProgress)
	r.GET("/api/profiles/:id", api.HandlerGetProfile)
	r.POST("/api/admin/phase", api.HandlerPhaseUpgrade)
	r.POST("/api/admin/sessions/:id/expire", api.HandlerExpireSession)

	addr := ":8080"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	logger.Infof("[HTTP] Listening on %s env=%s", addr, config.Env())
	if err := r.Run(addr); err != nil {
		log.Fatalf("HTTP server failed: %v", err)
	}
}
