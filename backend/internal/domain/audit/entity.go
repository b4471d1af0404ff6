package audit

import (
	"time"

	"gorm.io/datatypes"
)

// 审计动作常量。维护、备份与审计本身都落到同一张 audit_logs 表。
const (
	ActionMaintenance     = "database_maintenance"
	ActionBackup          = "database_backup"
	ActionIntegrityAudit  = "integrity_audit"
	ActionDashboardAccess = "dashboard_access"
	ActionCircuitOpened   = "circuit_breaker_opened"
)

// EntityTypeIncident 标记与故障相关的审计行，/incidents 端点按此过滤。
const EntityTypeIncident = "incident"

// LogEntry 映射 audit_logs 表，一行记录一次管理操作。只追加，从不更新或删除。
type LogEntry struct {
	ID             uint           `gorm:"column:id;primaryKey"`
	ActorID        uint           `gorm:"column:actor_id;index:ix_audit_actor"`
	ActorName      string         `gorm:"column:actor_name;size:128"`
	FranchiseScope string         `gorm:"column:franchise_scope;size:64"`
	Action         string         `gorm:"column:action;size:64;index:ix_audit_action"`
	EntityType     string         `gorm:"column:entity_type;size:64"`
	EntityID       string         `gorm:"column:entity_id;size:64"`
	Details        datatypes.JSON `gorm:"column:details"`
	IPAddress      string         `gorm:"column:ip_address;size:64"`
	UserAgent      string         `gorm:"column:user_agent;size:255"`
	CreatedAt      time.Time      `gorm:"column:created_at;index:ix_audit_created"`
}

// TableName 返回审计日志表的名称。
func (LogEntry) TableName() string {
	return "audit_logs"
}
