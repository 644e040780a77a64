package config

import (
	"log"
	"os"

	"FarmLink/pkg/logger"
	"FarmLink/pkg/util"
)

// config/config.go
type Config struct {
	DBDriver          string `env:"DB_DRIVER"`
	DSN               string `env:"DSN"`
	Log               logger.LogConfig
	Addr              string `env:"ADDR"`
	Mode              string `env:"MODE"`
	APIPrefix         string `env:"API_PREFIX"`
	AuthSecret        string `env:"AUTH_SECRET"`
	OSRMBaseURL       string `env:"OSRM_BASE_URL"`
	RoutingAPIKey     string `env:"ROUTING_API_KEY"`
	CacheType         string `env:"CACHE_TYPE"`
	RedisAddr         string `env:"REDIS_ADDR"`
	RedisPassword     string `env:"REDIS_PASSWORD"`
	RedisDB           int    `env:"REDIS_DB"`
	RateLimit         string `env:"RATE_LIMIT"`
	DelayAlertMinutes int    `env:"DELAY_ALERT_MINUTES"`
}

var GlobalConfig *Config

func Load() error {
	// 1. 根据环境加载 .env 文件
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development" // 默认使用开发环境
	}
	err := util.LoadEnv(env)
	if err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	// 2. 加载全局配置
	GlobalConfig = &Config{
		DBDriver:      util.GetEnv("DB_DRIVER"),
		DSN:           util.GetEnv("DSN"),
		Addr:          util.GetEnvDefault("ADDR", ":8080"),
		Mode:          util.GetEnv("MODE"),
		APIPrefix:     util.GetEnvDefault("API_PREFIX", "/api"),
		AuthSecret:    util.GetEnv("AUTH_SECRET"),
		OSRMBaseURL:   util.GetEnvDefault("OSRM_BASE_URL", "https://router.project-osrm.org"),
		RoutingAPIKey: util.GetEnv("ROUTING_API_KEY"),
		CacheType:     util.GetEnvDefault("CACHE_TYPE", "local"),
		RedisAddr:     util.GetEnv("REDIS_ADDR"),
		RedisPassword: util.GetEnv("REDIS_PASSWORD"),
		RedisDB:       int(util.GetIntEnv("REDIS_DB")),
		RateLimit:     util.GetEnvDefault("RATE_LIMIT", "30-M"),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		DelayAlertMinutes: int(util.GetIntEnv("DELAY_ALERT_MINUTES")),
	}
	if GlobalConfig.DelayAlertMinutes <= 0 {
		GlobalConfig.DelayAlertMinutes = 30
	}
	return nil
}
