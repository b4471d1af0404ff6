package slowop

import "time"

// Record 映射 slow_ops 表，一次超过慢操作阈值的数据库操作样本。
// 性能热力图从这张表聚合，探针与维护执行器负责写入。
type Record struct {
	ID             uint      `gorm:"column:id;primaryKey"`
	Operation      string    `gorm:"column:operation;size:128"`
	DurationMillis int64     `gorm:"column:duration_ms"`
	Severity       string    `gorm:"column:severity;size:16"`
	OccurredAt     time.Time `gorm:"column:occurred_at;index:ix_slowop_occurred"`
}

// TableName 返回慢操作样本表的名称。
func (Record) TableName() string {
	return "slow_ops"
}
