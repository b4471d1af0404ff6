package app

import (
	"context"
	"database/sql"
	"fmt"

	"laundry-go-app/backend/internal/config"
	"laundry-go-app/backend/internal/domain/audit"
	"laundry-go-app/backend/internal/domain/laundry"
	"laundry-go-app/backend/internal/domain/slowop"
	"laundry-go-app/backend/internal/domain/syncqueue"
	"laundry-go-app/backend/internal/infra/client"

	"gorm.io/gorm"
)

// AppConfig 汇总进程启动所需的全部配置。
type AppConfig struct {
	Storage config.StorageConfig
	Server  config.ServerConfig
}

// Resources 持有进程级共享资源：配置、ORM 句柄与底层连接池。
type Resources struct {
	Config AppConfig
	DB     *gorm.DB
	SQL    *sql.DB
}

// Bootstrap 加载环境配置、打开嵌入式存储并执行 schema 迁移。
func Bootstrap(ctx context.Context) (*Resources, error) {
	config.LoadEnvFiles()

	storageCfg := config.LoadStorageConfig()
	serverCfg := config.LoadServerConfig()

	db, sqlDB, err := client.NewSQLite(client.SQLiteOptions{Path: storageCfg.DBPath})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(
		&laundry.Customer{},
		&laundry.Service{},
		&laundry.Order{},
		&laundry.Track{},
		&laundry.Worker{},
		&audit.LogEntry{},
		&syncqueue.Entry{},
		&slowop.Record{},
	); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Resources{
		Config: AppConfig{
			Storage: storageCfg,
			Server:  serverCfg,
		},
		DB:  db,
		SQL: sqlDB,
	}, nil
}

// Close 释放底层连接池。
func (r *Resources) Close() error {
	if r == nil {
		return nil
	}
	if r.SQL != nil {
		if err := r.SQL.Close(); err != nil {
			return err
		}
	}
	return nil
}

// DBConn 返回 ORM 句柄，资源未初始化时返回 nil。
func (r *Resources) DBConn() *gorm.DB {
	if r == nil {
		return nil
	}
	return r.DB
}
