package repository

import (
	"context"
	"time"

	syncqueue "laundry-go-app/backend/internal/domain/syncqueue"

	"gorm.io/gorm"
)

// SyncQueueRepository 负责离线同步队列的计数与状态查询。
type SyncQueueRepository struct {
	db *gorm.DB
}

// NewSyncQueueRepository 构造同步队列仓储，复用主数据库连接。
func NewSyncQueueRepository(db *gorm.DB) *SyncQueueRepository {
	if db == nil {
		return nil
	}
	return &SyncQueueRepository{db: db}
}

// PendingCount 统计某一方向上尚未同步成功的条目数。
func (r *SyncQueueRepository) PendingCount(ctx context.Context, direction string) (int64, error) {
	if r == nil || r.db == nil {
		return 0, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&syncqueue.Entry{}).
		Where("direction = ? AND status = ?", direction, syncqueue.StatusPending).
		Count(&count).Error
	return count, err
}

// LastSuccessfulSync 返回最近一次同步成功的时间，从未成功过时返回 nil。
func (r *SyncQueueRepository) LastSuccessfulSync(ctx context.Context) (*time.Time, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	var entry syncqueue.Entry
	err := r.db.WithContext(ctx).
		Where("status = ? AND synced_at IS NOT NULL", syncqueue.StatusSynced).
		Order("synced_at DESC").
		First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return entry.SyncedAt, nil
}

// Enqueue 追加一条待同步操作。业务写路径与测试夹具共用。
func (r *SyncQueueRepository) Enqueue(ctx context.Context, entry *syncqueue.Entry) error {
	if r == nil || r.db == nil {
		return nil
	}
	if entry.Status == "" {
		entry.Status = syncqueue.StatusPending
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// MarkSynced 将条目置为已同步并记录完成时间。
func (r *SyncQueueRepository) MarkSynced(ctx context.Context, id uint, at time.Time) error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&syncqueue.Entry{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": syncqueue.StatusSynced, "synced_at": at}).Error
}
