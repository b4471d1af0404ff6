package dbhealth

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// quotaDegradedPercent 之上的配额占用会把顶层状态压为 degraded。
const quotaDegradedPercent = 90.0

// ResourceSnapshot 是进程与宿主机资源的即时采样，不持久化。
type ResourceSnapshot struct {
	CPUPercent      float64   `json:"cpu_percent"`
	ProcessRSSMB    float64   `json:"process_rss_mb"`
	MemoryUsedMB    float64   `json:"memory_used_mb"`
	MemoryTotalMB   float64   `json:"memory_total_mb"`
	DiskFreeMB      float64   `json:"disk_free_mb"`
	DiskUsedPercent float64   `json:"disk_used_percent"`
	Goroutines      int       `json:"goroutines"`
	UptimeSeconds   int64     `json:"uptime_seconds"`
	SampledAt       time.Time `json:"sampled_at"`
	Degraded        bool      `json:"degraded"`
	Error           string    `json:"error,omitempty"`
}

// StorageSnapshot 是数据库文件族的磁盘占用快照。
type StorageSnapshot struct {
	DatabaseSizeBytes int64     `json:"database_size_bytes"`
	WalSizeBytes      int64     `json:"wal_size_bytes"`
	ShmSizeBytes      int64     `json:"shm_size_bytes"`
	TotalSizeBytes    int64     `json:"total_size_bytes"`
	DatabaseSize      string    `json:"database_size"`
	WalSize           string    `json:"wal_size"`
	TotalSize         string    `json:"total_size"`
	QuotaBytes        int64     `json:"quota_bytes"`
	QuotaUsagePercent float64   `json:"quota_usage_percent"`
	MeasuredAt        time.Time `json:"measured_at"`
}

// GetResourceMetrics 采样进程 CPU、内存、宿主磁盘与运行时长。
// 采样必须足够廉价以支撑高频轮询；任何一项失败只降级该项并打标记。
func (s *Service) GetResourceMetrics() ResourceSnapshot {
	snapshot := ResourceSnapshot{
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		SampledAt:     s.now(),
	}

	// interval 传 0：与上次采样点比较，避免阻塞等待。
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snapshot.CPUPercent = percents[0]
	} else if err != nil {
		snapshot.Degraded = true
		snapshot.Error = err.Error()
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		snapshot.MemoryUsedMB = float64(vm.Used) / 1024 / 1024
		snapshot.MemoryTotalMB = float64(vm.Total) / 1024 / 1024
	} else {
		snapshot.Degraded = true
		snapshot.Error = err.Error()
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil && info != nil {
			snapshot.ProcessRSSMB = float64(info.RSS) / 1024 / 1024
		}
	}

	if usage, err := disk.Usage(filepath.Dir(s.cfg.DBPath)); err == nil {
		snapshot.DiskFreeMB = float64(usage.Free) / 1024 / 1024
		snapshot.DiskUsedPercent = usage.UsedPercent
	} else {
		snapshot.Degraded = true
		snapshot.Error = err.Error()
	}

	return snapshot
}

// GetStorageMetrics 测量主文件、WAL 与共享内存文件的体积并换算配额占用。
// 文件不存在（例如刚做完 checkpoint 后的 -wal）按 0 处理。
func (s *Service) GetStorageMetrics() StorageSnapshot {
	snapshot := StorageSnapshot{
		QuotaBytes: s.cfg.QuotaBytes,
		MeasuredAt: s.now(),
	}

	snapshot.DatabaseSizeBytes = s.fileSize(s.cfg.DBPath)
	snapshot.WalSizeBytes = s.fileSize(s.cfg.DBPath + "-wal")
	snapshot.ShmSizeBytes = s.fileSize(s.cfg.DBPath + "-shm")
	snapshot.TotalSizeBytes = snapshot.DatabaseSizeBytes + snapshot.WalSizeBytes + snapshot.ShmSizeBytes

	snapshot.DatabaseSize = formatBytes(snapshot.DatabaseSizeBytes)
	snapshot.WalSize = formatBytes(snapshot.WalSizeBytes)
	snapshot.TotalSize = formatBytes(snapshot.TotalSizeBytes)

	if snapshot.QuotaBytes > 0 {
		snapshot.QuotaUsagePercent = float64(snapshot.TotalSizeBytes) / float64(snapshot.QuotaBytes) * 100
	}
	return snapshot
}

// fileSize 返回文件字节数，不存在或不可达时返回 0。
func (s *Service) fileSize(path string) int64 {
	info, err := s.fs.Stat(path)
	if err != nil {
		return 0
	}
	return info.SizeBytes
}

// formatBytes 输出人类可读的体积文本。
func formatBytes(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
