package syncqueue

import (
	"time"

	"gorm.io/datatypes"
)

// 队列方向：门店端上传到中心工厂，或从中心下载回门店。
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

// 条目状态。pending 表示尚未同步成功。
const (
	StatusPending = "pending"
	StatusSynced  = "synced"
	StatusFailed  = "failed"
)

// Entry 映射 sync_queue 表，离线优先复制通道中的一条待同步操作。
type Entry struct {
	ID        uint           `gorm:"column:id;primaryKey"`
	Direction string         `gorm:"column:direction;size:16;index:ix_sync_direction"`
	Status    string         `gorm:"column:status;size:16;index:ix_sync_status"`
	Resource  string         `gorm:"column:resource;size:64"`
	Payload   datatypes.JSON `gorm:"column:payload"`
	Attempts  int            `gorm:"column:attempts"`
	CreatedAt time.Time      `gorm:"column:created_at"`
	SyncedAt  *time.Time     `gorm:"column:synced_at"`
}

// TableName 返回同步队列表的名称。
func (Entry) TableName() string {
	return "sync_queue"
}
