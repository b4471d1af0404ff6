package dbhealth

import (
	"path/filepath"
	"strings"
	"testing"

	audit "laundry-go-app/backend/internal/domain/audit"
	laundry "laundry-go-app/backend/internal/domain/laundry"
	slowop "laundry-go-app/backend/internal/domain/slowop"
	syncqueue "laundry-go-app/backend/internal/domain/syncqueue"
	"laundry-go-app/backend/internal/infra/storagefs"
	"laundry-go-app/backend/internal/repository"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testActor = Actor{ID: 1, Username: "admin", IPAddress: "127.0.0.1", UserAgent: "test"}

// openMemDB 打开共享缓存的内存库并迁移全部表。单连接，避免内存库上的锁竞争。
func openMemDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return openDB(t, "file:"+name+"?mode=memory&cache=shared")
}

// openFileDB 在临时目录建一个真实的 SQLite 文件库，维护与备份用例需要可拷贝的文件。
func openFileDB(t *testing.T) (*gorm.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "health.db")
	return openDB(t, path), path
}

func openDB(t *testing.T, dsn string) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(
		&laundry.Customer{},
		&laundry.Service{},
		&laundry.Order{},
		&laundry.Track{},
		&laundry.Worker{},
		&audit.LogEntry{},
		&syncqueue.Entry{},
		&slowop.Record{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

// newTestService 以测试默认值构造健康服务，未设置的目录字段落到临时目录。
func newTestService(t *testing.T, db *gorm.DB, cfg Config) (*Service, *repository.AuditLogRepository) {
	t.Helper()

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(t.TempDir(), "health.db")
	}
	if cfg.BackupDir == "" {
		cfg.BackupDir = filepath.Join(t.TempDir(), "backups")
	}
	if cfg.MigrationsDir == "" {
		cfg.MigrationsDir = filepath.Join(t.TempDir(), "migrations")
	}

	auditRepo := repository.NewAuditLogRepository(db)
	syncRepo := repository.NewSyncQueueRepository(db)
	slowRepo := repository.NewSlowOpRepository(db)

	svc := NewService(cfg, zap.NewNop().Sugar(), db, storagefs.NewOSStorage(),
		auditRepo, syncRepo, slowRepo)
	return svc, auditRepo
}
