package dbhealth

import (
	"context"
	"errors"
	"fmt"
	"time"

	audit "laundry-go-app/backend/internal/domain/audit"
	"laundry-go-app/backend/internal/infra/metrics"
)

// Action 是维护操作的封闭枚举。端点可被任何管理员触达，绝不接受调用方
// 提供的 SQL 片段——这是安全不变量，而不是风格偏好。
type Action string

const (
	// ActionVacuum 重建主文件以回收碎片空间。
	ActionVacuum Action = "vacuum"
	// ActionAnalyze 刷新查询计划器的统计信息。
	ActionAnalyze Action = "analyze"
	// ActionCheckpoint 将 WAL 合并进主文件并截断日志。
	ActionCheckpoint Action = "checkpoint"
	// ActionResetCircuit 手动复位熔断器，完全不触碰存储。
	ActionResetCircuit Action = "resetCircuit"
)

var (
	// ErrUnknownAction 表示动作不在封闭集合内，在触达存储前就被拒绝。
	ErrUnknownAction = errors.New("unknown maintenance action")
	// ErrMaintenanceBusy 表示已有维护或备份操作在执行。
	ErrMaintenanceBusy = errors.New("another maintenance operation is in progress")
)

// maintenanceStatements 将动作映射到唯一的一条维护语句。
var maintenanceStatements = map[Action]string{
	ActionVacuum:     "VACUUM",
	ActionAnalyze:    "ANALYZE",
	ActionCheckpoint: "PRAGMA wal_checkpoint(TRUNCATE)",
}

// ParseAction 校验并归一化维护动作，未知值返回 ErrUnknownAction。
func ParseAction(raw string) (Action, error) {
	action := Action(raw)
	switch action {
	case ActionVacuum, ActionAnalyze, ActionCheckpoint, ActionResetCircuit:
		return action, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, raw)
}

// MaintenanceLogEntry 是一次维护执行的结果记录，无论成败都会进审计日志。
type MaintenanceLogEntry struct {
	Action              Action    `json:"action"`
	TriggeredBy         string    `json:"triggered_by"`
	ExecutionTimeMillis int64     `json:"execution_time_ms"`
	ResultSummary       string    `json:"result_summary"`
	SizeBeforeBytes     *int64    `json:"size_before_bytes,omitempty"`
	NewSizeBytes        *int64    `json:"new_size_bytes,omitempty"`
	Success             bool      `json:"success"`
	ExecutedAt          time.Time `json:"executed_at"`
}

// RunMaintenance 执行封闭集合内的一个维护动作。
// vacuum/checkpoint 会在执行期间阻塞存储，因此与其它维护及备份互斥：
// 已有操作在跑时直接拒绝，而不是排队。
func (s *Service) RunMaintenance(ctx context.Context, action Action, actor Actor) (MaintenanceLogEntry, error) {
	entry := MaintenanceLogEntry{
		Action:      action,
		TriggeredBy: actor.Username,
		ExecutedAt:  s.now(),
	}

	if _, err := ParseAction(string(action)); err != nil {
		// 校验失败不产生审计记录：什么都没有执行。
		return entry, err
	}

	// 复位熔断器不触碰存储，也不参与维护互斥。
	if action == ActionResetCircuit {
		wasOpen := s.breaker.Reset()
		metrics.SetCircuitOpen(false)
		entry.Success = true
		if wasOpen {
			entry.ResultSummary = "circuit breaker reset (was open)"
		} else {
			entry.ResultSummary = "circuit breaker reset (already closed)"
		}
		s.auditMaintenance(ctx, actor, entry, nil)
		metrics.RecordMaintenance(string(action), "success")
		return entry, nil
	}

	if !s.maintMu.TryLock() {
		entry.ResultSummary = ErrMaintenanceBusy.Error()
		s.auditMaintenance(ctx, actor, entry, ErrMaintenanceBusy)
		metrics.RecordMaintenance(string(action), "rejected")
		return entry, ErrMaintenanceBusy
	}
	defer s.maintMu.Unlock()

	sizeBefore := s.fileSize(s.cfg.DBPath)
	entry.SizeBeforeBytes = &sizeBefore

	start := s.now()
	err := s.execMaintenance(ctx, maintenanceStatements[action])
	elapsed := time.Since(start)
	entry.ExecutionTimeMillis = elapsed.Milliseconds()

	sizeAfter := s.fileSize(s.cfg.DBPath)
	entry.NewSizeBytes = &sizeAfter

	s.recordSlowOp(ctx, "maintenance:"+string(action), elapsed)

	if err != nil {
		entry.ResultSummary = fmt.Sprintf("%s failed: %v", action, err)
		s.logger.Errorw("maintenance failed", "action", action, "actor", actor.Username, "error", err)
		s.auditMaintenance(ctx, actor, entry, err)
		metrics.RecordMaintenance(string(action), "failure")
		return entry, fmt.Errorf("run %s: %w", action, err)
	}

	entry.Success = true
	entry.ResultSummary = fmt.Sprintf("%s completed in %dms, %s -> %s",
		action, entry.ExecutionTimeMillis, formatBytes(sizeBefore), formatBytes(sizeAfter))
	s.logger.Infow("maintenance completed",
		"action", action, "actor", actor.Username,
		"elapsed_ms", entry.ExecutionTimeMillis,
		"size_before", sizeBefore, "size_after", sizeAfter)
	s.auditMaintenance(ctx, actor, entry, nil)
	metrics.RecordMaintenance(string(action), "success")
	return entry, nil
}

// execMaintenance 在专用连接上执行单条维护语句，避免经过连接池里可能
// 持有事务的连接。
func (s *Service) execMaintenance(ctx context.Context, statement string) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}

	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, statement); err != nil {
		return err
	}
	return nil
}

// auditMaintenance 将维护结果写入审计日志，失败结果带上错误信息。
func (s *Service) auditMaintenance(ctx context.Context, actor Actor, entry MaintenanceLogEntry, execErr error) {
	details := map[string]any{
		"action":            string(entry.Action),
		"execution_time_ms": entry.ExecutionTimeMillis,
		"result_summary":    entry.ResultSummary,
	}
	if entry.SizeBeforeBytes != nil {
		details["size_before_bytes"] = *entry.SizeBeforeBytes
	}
	if entry.NewSizeBytes != nil {
		details["new_size_bytes"] = *entry.NewSizeBytes
	}
	if execErr != nil {
		details["status"] = "failed"
		details["error"] = execErr.Error()
	} else {
		details["status"] = "completed"
	}

	entityType := "database"
	if execErr != nil {
		entityType = audit.EntityTypeIncident
	}
	s.writeAudit(ctx, actor, audit.ActionMaintenance, entityType, string(entry.Action), details)
}
