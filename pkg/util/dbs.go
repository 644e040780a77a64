package util

import (
	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func createDatabaseInstance(cfg *gorm.Config, driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	case "pg":
		return gorm.Open(postgres.Open(dsn), cfg)
	}
	if dsn == "" {
		dsn = "file::memory:"
	}
	return gorm.Open(sqlite.Open(dsn), cfg)
}

// InitDatabase 根据驱动与 DSN 建立数据库连接
func InitDatabase(driver, dsn string, debug bool) (*gorm.DB, error) {
	cfg := &gorm.Config{}
	if debug {
		cfg.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	} else {
		cfg.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
	}
	return createDatabaseInstance(cfg, driver, dsn)
}
