package dbhealth

import (
	"context"
	"sync"
	"time"

	audit "laundry-go-app/backend/internal/domain/audit"
	"laundry-go-app/backend/internal/infra/metrics"
)

// LatencySample 是一次探针采样，入缓冲后不再修改。
type LatencySample struct {
	TimestampMillis int64   `json:"timestamp_ms"`
	DurationMillis  float64 `json:"duration_ms"`
	Success         bool    `json:"success"`
}

// LatencyBenchmark 是 benchmarkLatency 的返回值。
type LatencyBenchmark struct {
	CurrentMillis       float64 `json:"current_ms"`
	CircuitOpen         bool    `json:"circuit_open"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
}

// BreakerStatus 描述熔断器的可观测状态。
type BreakerStatus struct {
	Open                bool       `json:"open"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastOpenedAt        *time.Time `json:"last_opened_at,omitempty"`
}

// CircuitBreaker 跟踪探针的连续失败并在越过阈值后打开。
// 状态机只有 Closed/Open 两态：达到阈值进入 Open，下一次成功或手动复位回到 Closed。
type CircuitBreaker struct {
	mu                  sync.Mutex
	threshold           int
	consecutiveFailures int
	open                bool
	lastOpenedAt        *time.Time
}

func newCircuitBreaker(threshold int) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	return &CircuitBreaker{threshold: threshold}
}

// RecordSuccess 清零失败计数；若熔断器处于打开状态则关闭（恢复路径）。
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.open = false
}

// RecordFailure 累加失败计数，越过阈值时打开熔断器。
// 返回值表示本次失败是否触发了 Closed -> Open 的迁移。
func (b *CircuitBreaker) RecordFailure(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	if !b.open && b.consecutiveFailures >= b.threshold {
		b.open = true
		opened := now
		b.lastOpenedAt = &opened
		return true
	}
	return false
}

// Reset 无条件清零计数并关闭熔断器，返回复位前是否处于打开状态。
func (b *CircuitBreaker) Reset() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	wasOpen := b.open
	b.consecutiveFailures = 0
	b.open = false
	return wasOpen
}

// Status 返回当前状态的副本。
func (b *CircuitBreaker) Status() BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStatus{
		Open:                b.open,
		ConsecutiveFailures: b.consecutiveFailures,
		LastOpenedAt:        b.lastOpenedAt,
	}
}

// latencyHistory 是固定容量的探针样本环形缓冲，满后淘汰最旧样本。
type latencyHistory struct {
	mu       sync.Mutex
	samples  []LatencySample
	capacity int
}

func newLatencyHistory(capacity int) *latencyHistory {
	if capacity <= 0 {
		capacity = 60
	}
	return &latencyHistory{
		samples:  make([]LatencySample, 0, capacity),
		capacity: capacity,
	}
}

// Append 追加一个样本，超出容量时按 FIFO 淘汰。
func (h *latencyHistory) Append(sample LatencySample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.samples) >= h.capacity {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, sample)
}

// Snapshot 返回按时间升序的样本副本。
func (h *latencyHistory) Snapshot() []LatencySample {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]LatencySample, len(h.samples))
	copy(out, h.samples)
	return out
}

// BenchmarkLatency 对存储发起一次廉价往返并驱动熔断器状态。
// 熔断器打开时探针照常执行，否则永远探测不到恢复；无论成败，样本都会进入
// 历史缓冲，让历史反映探针的真实行为。
func (s *Service) BenchmarkLatency(ctx context.Context) LatencyBenchmark {
	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.LatencyCeiling)
	defer cancel()

	start := s.now()
	var one int
	err := s.db.WithContext(probeCtx).Raw("SELECT 1").Scan(&one).Error
	elapsed := time.Since(start)

	// 超过硬上限的成功查询同样视为失败：存储已经慢到不可用。
	success := err == nil && elapsed <= s.cfg.LatencyCeiling

	s.history.Append(LatencySample{
		TimestampMillis: start.UnixMilli(),
		DurationMillis:  float64(elapsed.Microseconds()) / 1000.0,
		Success:         success,
	})
	metrics.ObserveProbe(elapsed, success)

	if success {
		s.breaker.RecordSuccess()
		s.recordSlowOp(ctx, "latency_probe", elapsed)
	} else {
		if opened := s.breaker.RecordFailure(s.now()); opened {
			s.logger.Errorw("circuit breaker opened",
				"consecutive_failures", s.breaker.Status().ConsecutiveFailures,
				"elapsed", elapsed, "error", err)
			s.writeAudit(ctx, Actor{Username: "system"}, audit.ActionCircuitOpened,
				audit.EntityTypeIncident, "", map[string]any{
					"status":     "failed",
					"elapsed_ms": elapsed.Milliseconds(),
					"error":      errString(err),
				})
		} else {
			s.logger.Warnw("latency probe failed", "elapsed", elapsed, "error", err)
		}
	}

	status := s.breaker.Status()
	metrics.SetCircuitOpen(status.Open)

	return LatencyBenchmark{
		CurrentMillis:       float64(elapsed.Microseconds()) / 1000.0,
		CircuitOpen:         status.Open,
		ConsecutiveFailures: status.ConsecutiveFailures,
	}
}

// LatencyHistory 返回时间升序的采样历史，供前端绘图。
func (s *Service) LatencyHistory() []LatencySample {
	return s.history.Snapshot()
}

// BreakerStatus 暴露熔断器当前状态。
func (s *Service) BreakerStatus() BreakerStatus {
	return s.breaker.Status()
}

func errString(err error) string {
	if err == nil {
		return "latency above ceiling"
	}
	return err.Error()
}
