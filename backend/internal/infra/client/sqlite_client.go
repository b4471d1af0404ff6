package client

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	sqliteDriver "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	// busyTimeoutMillis 是写锁等待上限。门店端常有标签打印等后台写入，
	// 监控查询不应立刻因 SQLITE_BUSY 失败。
	busyTimeoutMillis = 5000
)

// SQLiteOptions 描述打开嵌入式存储所需的参数。
type SQLiteOptions struct {
	// Path 是数据库主文件路径，目录不存在时会自动创建。
	Path string
	// MaxOpenConns 控制连接池上限，0 表示使用默认值。
	MaxOpenConns int
}

// NewSQLite 打开 WAL 模式的 SQLite 数据库并返回 GORM 实例与底层 *sql.DB。
// 外键约束保持关闭：完整性审计依赖能够观察到孤儿行，而不是让引擎拒绝写入。
func NewSQLite(opts SQLiteOptions) (*gorm.DB, *sql.DB, error) {
	if opts.Path == "" {
		return nil, nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		opts.Path, busyTimeoutMillis)

	gormDB, err := gorm.Open(sqliteDriver.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("get sql db: %w", err)
	}

	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 4
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return gormDB, sqlDB, nil
}
