package repository

import (
	"context"
	"time"

	slowop "laundry-go-app/backend/internal/domain/slowop"

	"gorm.io/gorm"
)

// SlowOpRepository 负责慢操作样本的写入与窗口读取。
type SlowOpRepository struct {
	db *gorm.DB
}

// NewSlowOpRepository 构造慢操作仓储，复用主数据库连接。
func NewSlowOpRepository(db *gorm.DB) *SlowOpRepository {
	if db == nil {
		return nil
	}
	return &SlowOpRepository{db: db}
}

// Append 追加一条慢操作样本。
func (r *SlowOpRepository) Append(ctx context.Context, record *slowop.Record) error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx).Create(record).Error
}

// Range 读取某一时间点之后的样本，按发生时间升序。
func (r *SlowOpRepository) Range(ctx context.Context, since time.Time) ([]slowop.Record, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	var records []slowop.Record
	err := r.db.WithContext(ctx).
		Where("occurred_at >= ?", since).
		Order("occurred_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// PruneBefore 清理早于指定时间的样本，控制表规模。
func (r *SlowOpRepository) PruneBefore(ctx context.Context, boundary time.Time) error {
	if r == nil || r.db == nil {
		return nil
	}
	if boundary.IsZero() {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("occurred_at < ?", boundary).
		Delete(&slowop.Record{}).Error
}
