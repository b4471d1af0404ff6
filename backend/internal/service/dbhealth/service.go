package dbhealth

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	audit "laundry-go-app/backend/internal/domain/audit"
	slowop "laundry-go-app/backend/internal/domain/slowop"
	appLogger "laundry-go-app/backend/internal/infra/logger"
	"laundry-go-app/backend/internal/infra/storagefs"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 汇总状态值。offline 仅由熔断器打开触发，degraded 表示可用但有隐患。
const (
	StatusOnline   = "online"
	StatusDegraded = "degraded"
	StatusOffline  = "offline"
)

// Config 汇总健康服务的全部阈值与路径，由 config.StorageConfig 换算而来。
type Config struct {
	DBPath           string
	BackupDir        string
	MigrationsDir    string
	QuotaBytes       int64
	BreakerThreshold int
	LatencyCeiling   time.Duration
	HistoryCapacity  int
	SlowOpThreshold  time.Duration
	SyncStalledAfter time.Duration
}

// Actor 描述触发管理操作的调用者，用于审计归因。
type Actor struct {
	ID             uint
	Username       string
	FranchiseScope string
	IPAddress      string
	UserAgent      string
}

// AuditRepository 抽象健康服务需要的审计日志操作。
type AuditRepository interface {
	Create(ctx context.Context, entry *audit.LogEntry) error
	RecentIncidents(ctx context.Context, limit int) ([]audit.LogEntry, error)
}

// SyncQueueRepository 抽象同步队列的积压查询。
type SyncQueueRepository interface {
	PendingCount(ctx context.Context, direction string) (int64, error)
	LastSuccessfulSync(ctx context.Context) (*time.Time, error)
}

// SlowOpRepository 抽象慢操作样本的读写。
type SlowOpRepository interface {
	Append(ctx context.Context, record *slowop.Record) error
	Range(ctx context.Context, since time.Time) ([]slowop.Record, error)
	PruneBefore(ctx context.Context, boundary time.Time) error
}

// slowOpRetention 之外的样本在写入新样本时顺带清理，热力图只看 24 小时，
// 多留几天便于排障。
const slowOpRetention = 7 * 24 * time.Hour

// Service 是数据库健康与自监控子系统的唯一入口。
// 熔断器与延迟历史是仅有的跨请求可变状态，全部由本实例持有并用互斥锁保护。
type Service struct {
	cfg    Config
	logger *zap.SugaredLogger
	db     *gorm.DB
	fs     storagefs.Storage

	audits   AuditRepository
	syncRepo SyncQueueRepository
	slowOps  SlowOpRepository

	breaker *CircuitBreaker
	history *latencyHistory

	// maintMu 串行化 vacuum/analyze/checkpoint 与备份：这些操作会阻塞底层
	// 存储，并发执行会拷贝到中间状态。
	maintMu sync.Mutex

	startedAt time.Time
	now       func() time.Time
}

// NewService 创建健康服务实例，logger 为空时使用全局日志。
func NewService(cfg Config, logger *zap.SugaredLogger, db *gorm.DB, fs storagefs.Storage,
	audits AuditRepository, syncRepo SyncQueueRepository, slowOps SlowOpRepository) *Service {

	if logger == nil {
		logger = appLogger.S().With("component", "service.dbhealth")
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 3
	}
	if cfg.LatencyCeiling <= 0 {
		cfg.LatencyCeiling = 2 * time.Second
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = 60
	}
	if cfg.SlowOpThreshold <= 0 {
		cfg.SlowOpThreshold = 250 * time.Millisecond
	}
	if cfg.SyncStalledAfter <= 0 {
		cfg.SyncStalledAfter = 6 * time.Hour
	}
	if fs == nil {
		fs = storagefs.NewOSStorage()
	}

	return &Service{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		fs:        fs,
		audits:    audits,
		syncRepo:  syncRepo,
		slowOps:   slowOps,
		breaker:   newCircuitBreaker(cfg.BreakerThreshold),
		history:   newLatencyHistory(cfg.HistoryCapacity),
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// HealthSummary 是仪表盘轮询的顶层状态对象。
type HealthSummary struct {
	Status         string             `json:"status"`
	GeneratedAt    time.Time          `json:"generated_at"`
	CircuitBreaker BreakerStatus      `json:"circuit_breaker"`
	Storage        StorageSnapshot    `json:"storage"`
	Sync           SyncHealthSnapshot `json:"sync"`
	Resources      ResourceSnapshot   `json:"resources"`
}

// GetHealthSummary 组合熔断器、存储、同步与资源采集器为一个红绿灯视图。
// 单个采集器失败只会降级对应分区，不会让整个汇总失败。
func (s *Service) GetHealthSummary(ctx context.Context) HealthSummary {
	summary := HealthSummary{
		GeneratedAt:    s.now(),
		CircuitBreaker: s.breaker.Status(),
		Storage:        s.GetStorageMetrics(),
		Sync:           s.GetSyncHealth(ctx),
		Resources:      s.GetResourceMetrics(),
	}
	summary.Status = s.overallStatus(summary)
	return summary
}

// DatabaseStats 是 /stats 返回的组合载荷。
type DatabaseStats struct {
	Status      string             `json:"status"`
	GeneratedAt time.Time          `json:"generated_at"`
	Latency     LatencyBenchmark   `json:"latency"`
	Storage     StorageSnapshot    `json:"storage"`
	Tables      []TableVital       `json:"tables"`
	Sync        SyncHealthSnapshot `json:"sync"`
	Resources   ResourceSnapshot   `json:"resources"`
}

// GetDatabaseStats 执行一次延迟基准并组合所有采集器，顶层 status 在熔断器
// 打开时为 offline。
func (s *Service) GetDatabaseStats(ctx context.Context) DatabaseStats {
	stats := DatabaseStats{
		GeneratedAt: s.now(),
		Latency:     s.BenchmarkLatency(ctx),
		Storage:     s.GetStorageMetrics(),
		Tables:      s.GetTableVitals(ctx),
		Sync:        s.GetSyncHealth(ctx),
		Resources:   s.GetResourceMetrics(),
	}

	switch {
	case stats.Latency.CircuitOpen:
		stats.Status = StatusOffline
	case stats.Sync.QueueHealth != QueueHealthy || stats.Storage.QuotaUsagePercent >= quotaDegradedPercent:
		stats.Status = StatusDegraded
	default:
		stats.Status = StatusOnline
	}
	return stats
}

// IncidentReport 是 /incidents 的返回结构。
type IncidentReport struct {
	CircuitBreaker  BreakerStatus    `json:"circuit_breaker"`
	RecentIncidents []audit.LogEntry `json:"recent_incidents"`
}

// GetIncidents 返回当前熔断器状态与最近的故障相关审计行。
func (s *Service) GetIncidents(ctx context.Context) (IncidentReport, error) {
	report := IncidentReport{
		CircuitBreaker:  s.breaker.Status(),
		RecentIncidents: []audit.LogEntry{},
	}

	entries, err := s.audits.RecentIncidents(ctx, 20)
	if err != nil {
		return report, err
	}
	if entries != nil {
		report.RecentIncidents = entries
	}
	return report, nil
}

// RecordDashboardAccess 记录一次监控面板打开事件。
func (s *Service) RecordDashboardAccess(ctx context.Context, actor Actor) {
	s.writeAudit(ctx, actor, audit.ActionDashboardAccess, "dashboard", "", map[string]any{
		"opened_at": s.now().UTC().Format(time.RFC3339),
	})
}

// overallStatus 由各分区推导顶层状态，熔断器打开直接判定为 offline。
func (s *Service) overallStatus(summary HealthSummary) string {
	if summary.CircuitBreaker.Open {
		return StatusOffline
	}
	if summary.Sync.QueueHealth == QueueStalled ||
		summary.Storage.QuotaUsagePercent >= quotaDegradedPercent ||
		summary.Resources.Degraded {
		return StatusDegraded
	}
	if summary.Sync.QueueHealth == QueueDegraded {
		return StatusDegraded
	}
	return StatusOnline
}

// writeAudit 尽力写入一条审计记录。审计失败只打日志，不影响主流程返回。
func (s *Service) writeAudit(ctx context.Context, actor Actor, action, entityType, entityID string, details map[string]any) {
	if s.audits == nil {
		return
	}

	var payload datatypes.JSON
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			payload = datatypes.JSON(raw)
		}
	}

	entry := &audit.LogEntry{
		ActorID:        actor.ID,
		ActorName:      actor.Username,
		FranchiseScope: actor.FranchiseScope,
		Action:         action,
		EntityType:     entityType,
		EntityID:       entityID,
		Details:        payload,
		IPAddress:      actor.IPAddress,
		UserAgent:      actor.UserAgent,
		CreatedAt:      s.now(),
	}
	if err := s.audits.Create(ctx, entry); err != nil {
		s.logger.Warnw("write audit log failed", "action", action, "error", err)
	}
}

// recordSlowOp 将超过阈值的操作写入慢操作表，写入失败不向上传播。
func (s *Service) recordSlowOp(ctx context.Context, operation string, elapsed time.Duration) {
	if s.slowOps == nil || elapsed < s.cfg.SlowOpThreshold {
		return
	}
	record := &slowop.Record{
		Operation:      operation,
		DurationMillis: elapsed.Milliseconds(),
		Severity:       s.severityFor(elapsed),
		OccurredAt:     s.now(),
	}
	if err := s.slowOps.Append(ctx, record); err != nil {
		s.logger.Warnw("append slow op failed", "operation", operation, "error", err)
		return
	}
	if err := s.slowOps.PruneBefore(ctx, s.now().Add(-slowOpRetention)); err != nil {
		s.logger.Warnw("prune slow ops failed", "error", err)
	}
}
