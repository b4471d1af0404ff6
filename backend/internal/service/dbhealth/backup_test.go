package dbhealth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	audit "laundry-go-app/backend/internal/domain/audit"
	laundry "laundry-go-app/backend/internal/domain/laundry"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestCreateBackupCopiesConsistentSnapshot(t *testing.T) {
	db, path := openFileDB(t)
	backupDir := filepath.Join(t.TempDir(), "backups")
	svc, auditRepo := newTestService(t, db, Config{DBPath: path, BackupDir: backupDir})

	customer := laundry.Customer{Name: "Backup Case", Phone: "13900000001", CreatedAt: time.Now()}
	if err := db.Create(&customer).Error; err != nil {
		t.Fatalf("seed customer: %v", err)
	}

	record, err := svc.CreateBackup(context.Background(), testActor)
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}
	if record.SizeBytes <= 0 {
		t.Fatalf("backup size = %d, want > 0", record.SizeBytes)
	}
	if !strings.HasPrefix(record.FileName, "health-") || !strings.HasSuffix(record.FileName, ".db") {
		t.Fatalf("backup file name = %q, want health-<timestamp>-<suffix>.db", record.FileName)
	}

	target := filepath.Join(backupDir, record.FileName)
	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat backup file: %v", err)
	}
	if info.Size() != record.SizeBytes {
		t.Fatalf("reported size %d != file size %d", record.SizeBytes, info.Size())
	}

	// 备份文件必须是可直接打开的一致快照。
	copied, err := gorm.Open(sqlite.Open(target), &gorm.Config{})
	if err != nil {
		t.Fatalf("open backup copy: %v", err)
	}
	var count int64
	if err := copied.Model(&laundry.Customer{}).Count(&count).Error; err != nil {
		t.Fatalf("count rows in backup: %v", err)
	}
	if count != 1 {
		t.Fatalf("backup row count = %d, want 1", count)
	}

	auditCount, err := auditRepo.CountByAction(context.Background(), audit.ActionBackup)
	if err != nil {
		t.Fatalf("count audit rows: %v", err)
	}
	if auditCount != 1 {
		t.Fatalf("backup must write exactly one audit row, got %d", auditCount)
	}
}

func TestCreateBackupRejectedWhileMaintenanceRuns(t *testing.T) {
	db, path := openFileDB(t)
	svc, _ := newTestService(t, db, Config{DBPath: path})

	svc.maintMu.Lock()
	defer svc.maintMu.Unlock()

	if _, err := svc.CreateBackup(context.Background(), testActor); !errors.Is(err, ErrMaintenanceBusy) {
		t.Fatalf("backup during maintenance should fail with ErrMaintenanceBusy, got %v", err)
	}
}

func TestBackupFileNamesDoNotCollide(t *testing.T) {
	at := time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC)
	first := backupFileName("/data/laundry-ops.db", at)
	second := backupFileName("/data/laundry-ops.db", at)

	if first == second {
		t.Fatalf("same-second backups must get distinct names, both were %q", first)
	}
	if !strings.HasPrefix(first, "laundry-ops-20260827-103000-") {
		t.Fatalf("file name = %q, want timestamped prefix", first)
	}
}
