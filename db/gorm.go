package db

import (
	"fmt"
	"log"
	"time"

	"TaskHub/config"
	"TaskHub/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormDB 是 GORM 数据库连接实例
// 与 DB (*sql.DB) 并存：认证相关的表用 GORM，任务表用裸 SQL。
var GormDB *gorm.DB

// ConnectGormDB 建立 GORM 数据库连接
func ConnectGormDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	GormDB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to connect database with GORM: %w", err)
	}

	sqlDB, err := GormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// 连接池参数
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Println("Successfully connected to the database with GORM.")
	return nil
}

// CloseGormDB 关闭 GORM 数据库连接
func CloseGormDB() error {
	if GormDB == nil {
		return nil
	}
	sqlDB, err := GormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// MigrateAuthModels 迁移认证相关的数据表
// 唯一索引（phone / wechat_openid / wechat_unionid）由模型标签声明，
// 账号创建竞争依赖这些约束收敛。
func MigrateAuthModels() error {
	if GormDB == nil {
		return fmt.Errorf("GORM database not initialized")
	}
	err := GormDB.AutoMigrate(
		&model.User{},
		&model.VerificationCode{},
		&model.OAuthState{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto migrate auth models: %w", err)
	}
	log.Println("Auth models migrated successfully with GORM.")
	return nil
}
