package repository

import (
	"context"

	audit "laundry-go-app/backend/internal/domain/audit"

	"gorm.io/gorm"
)

// AuditLogRepository 负责审计日志的追加与事故行查询。表只追加，不提供更新或删除。
type AuditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository 构造审计日志仓储，复用主数据库连接。
func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	if db == nil {
		return nil
	}
	return &AuditLogRepository{db: db}
}

// Create 追加一条审计记录。
func (r *AuditLogRepository) Create(ctx context.Context, entry *audit.LogEntry) error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// RecentIncidents 返回与错误/故障相关的最近审计行，按时间倒序。
// 匹配规则：动作本身是事故类动作、实体被标记为 incident，或 details 里带失败状态。
func (r *AuditLogRepository) RecentIncidents(ctx context.Context, limit int) ([]audit.LogEntry, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	var entries []audit.LogEntry
	err := r.db.WithContext(ctx).
		Where("entity_type = ?", audit.EntityTypeIncident).
		Or("action = ?", audit.ActionCircuitOpened).
		Or("action LIKE ?", "%error%").
		Or("action LIKE ?", "%fail%").
		Or("details LIKE ?", `%"status":"failed"%`).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// CountByAction 统计某一动作的审计行数，测试与汇总面板使用。
func (r *AuditLogRepository) CountByAction(ctx context.Context, action string) (int64, error) {
	if r == nil || r.db == nil {
		return 0, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&audit.LogEntry{}).
		Where("action = ?", action).
		Count(&count).Error
	return count, err
}
