package dbhealth

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	audit "laundry-go-app/backend/internal/domain/audit"
	"laundry-go-app/backend/internal/infra/metrics"

	"github.com/google/uuid"
)

// BackupRecord 描述一次备份产出的物理文件，创建后不可变。
type BackupRecord struct {
	FileName  string    `json:"file_name"`
	SizeBytes int64     `json:"size_bytes"`
	SizeHuman string    `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateBackup 把主存储文件复制到带时间戳的备份路径并记录体积。
// WAL 模式下裸拷贝只有在先做 checkpoint 的前提下才是一致的，所以这里
// 固定执行 checkpoint-before-copy，并与维护操作共用互斥锁：备份绝不能
// 和 vacuum/checkpoint 并发拷贝同一个文件。
func (s *Service) CreateBackup(ctx context.Context, actor Actor) (BackupRecord, error) {
	if !s.maintMu.TryLock() {
		s.auditBackup(ctx, actor, BackupRecord{}, ErrMaintenanceBusy)
		return BackupRecord{}, ErrMaintenanceBusy
	}
	defer s.maintMu.Unlock()

	if err := s.fs.MkdirAll(s.cfg.BackupDir); err != nil {
		wrapped := fmt.Errorf("create backup dir: %w", err)
		s.auditBackup(ctx, actor, BackupRecord{}, wrapped)
		return BackupRecord{}, wrapped
	}

	// 先把 WAL 合并进主文件，保证随后的文件拷贝是一个一致的快照。
	if err := s.execMaintenance(ctx, maintenanceStatements[ActionCheckpoint]); err != nil {
		wrapped := fmt.Errorf("checkpoint before backup: %w", err)
		s.auditBackup(ctx, actor, BackupRecord{}, wrapped)
		return BackupRecord{}, wrapped
	}

	now := s.now()
	fileName := backupFileName(s.cfg.DBPath, now)
	target := filepath.Join(s.cfg.BackupDir, fileName)

	if _, err := s.fs.CopyFile(s.cfg.DBPath, target); err != nil {
		wrapped := fmt.Errorf("copy database file: %w", err)
		s.auditBackup(ctx, actor, BackupRecord{FileName: fileName}, wrapped)
		return BackupRecord{}, wrapped
	}

	info, err := s.fs.Stat(target)
	if err != nil {
		wrapped := fmt.Errorf("stat backup file: %w", err)
		s.auditBackup(ctx, actor, BackupRecord{FileName: fileName}, wrapped)
		return BackupRecord{}, wrapped
	}

	record := BackupRecord{
		FileName:  fileName,
		SizeBytes: info.SizeBytes,
		SizeHuman: formatBytes(info.SizeBytes),
		CreatedAt: now,
	}

	s.logger.Infow("backup created", "file", fileName, "size_bytes", record.SizeBytes, "actor", actor.Username)
	s.auditBackup(ctx, actor, record, nil)
	metrics.RecordBackupSize(record.SizeBytes)
	return record, nil
}

// backupFileName 生成带时间戳与随机后缀的备份文件名，时间戳保证可读排序，
// 随机段防止同秒内的并发命名冲突。
func backupFileName(dbPath string, at time.Time) string {
	base := strings.TrimSuffix(filepath.Base(dbPath), filepath.Ext(dbPath))
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("%s-%s-%s.db", base, at.Format("20060102-150405"), suffix)
}

// auditBackup 将备份结果写入审计日志。
func (s *Service) auditBackup(ctx context.Context, actor Actor, record BackupRecord, execErr error) {
	details := map[string]any{
		"file_name":  record.FileName,
		"size_bytes": record.SizeBytes,
	}
	entityType := "database"
	if execErr != nil {
		details["status"] = "failed"
		details["error"] = execErr.Error()
		entityType = audit.EntityTypeIncident
	} else {
		details["status"] = "completed"
	}
	s.writeAudit(ctx, actor, audit.ActionBackup, entityType, record.FileName, details)
}
