package main

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	handlers "FarmLink/internal/handler"
	"FarmLink/internal/models"
	"FarmLink/internal/service"
	"FarmLink/pkg/cache"
	"FarmLink/pkg/config"
	"FarmLink/pkg/logger"
	"FarmLink/pkg/routing"
	"FarmLink/pkg/scheduler"
	"FarmLink/pkg/util"
	"FarmLink/pkg/websocket"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := config.GlobalConfig

	logger.Init(cfg.Log)
	defer logger.Sync()

	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := util.InitDatabase(cfg.DBDriver, cfg.DSN, cfg.Mode != "release")
	if err != nil {
		logger.Error("数据库连接失败", zap.Error(err))
		log.Fatalf("init database: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	appCache, err := cache.NewCache(cache.Config{
		Type: cfg.CacheType,
		Redis: cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
	})
	if err != nil {
		log.Fatalf("init cache: %v", err)
	}
	defer appCache.Close()

	router := routing.NewClient(routing.Config{
		BaseURL: cfg.OSRMBaseURL,
		APIKey:  cfg.RoutingAPIKey,
	})

	// Hub 与协调服务互相依赖：Hub 需要事件处理器，
	// 协调服务需要 Hub 做广播，先建 Hub 再注入 sink
	hub := websocket.NewHub(websocket.DefaultConfig(), nil)
	defer hub.Close()

	opts := service.DefaultOptions()
	opts.DelayAlertMinutes = cfg.DelayAlertMinutes
	coordinator := service.NewCoordinator(db, router, hub, appCache, opts)
	hub.SetSink(coordinator)

	// 定时清扫僵尸在线状态
	cr := scheduler.NewCron(time.Local)
	if _, err := cr.AddWithCtx("@every 1m", coordinator.SweepStale); err != nil {
		logger.Warn("注册清扫任务失败", zap.Error(err))
	}
	cr.Start()
	defer cr.Stop()

	engine := gin.New()
	engine.Use(gin.Recovery())

	handlers.NewHandlers(db, coordinator).Register(engine)
	websocket.RegisterRoutes(engine, websocket.NewHandler(hub))

	logger.Info("服务启动", zap.String("addr", cfg.Addr))
	if err := engine.Run(cfg.Addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
