package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registerOnce      sync.Once
	probeDuration     prometheus.Histogram
	probeFailures     prometheus.Counter
	circuitOpenGauge  prometheus.Gauge
	maintenanceRuns   *prometheus.CounterVec
	backupSizeGauge   prometheus.Gauge
	latencyBuckets    = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}
	namespaceMetrics  = "laundryops"
	subsystemDBHealth = "dbhealth"
)

// MustRegister 初始化 Prometheus 指标并注册 Go 运行时采样器，需在应用启动阶段调用一次。
func MustRegister() {
	registerOnce.Do(func() {
		probeDuration = registerHistogram(
			prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespaceMetrics,
				Subsystem: subsystemDBHealth,
				Name:      "probe_duration_seconds",
				Help:      "延迟探针单次往返耗时。",
				Buckets:   latencyBuckets,
			}),
		)
		probeFailures = registerCounter(
			prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespaceMetrics,
				Subsystem: subsystemDBHealth,
				Name:      "probe_failures_total",
				Help:      "延迟探针失败次数，含超时与查询报错。",
			}),
		)
		circuitOpenGauge = registerGauge(
			prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespaceMetrics,
				Subsystem: subsystemDBHealth,
				Name:      "circuit_open",
				Help:      "熔断器状态，1 表示打开。",
			}),
		)
		maintenanceRuns = registerCounterVec(
			prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespaceMetrics,
				Subsystem: subsystemDBHealth,
				Name:      "maintenance_runs_total",
				Help:      "维护操作执行次数，按动作与结果统计。",
			}, []string{"action", "result"}),
		)
		backupSizeGauge = registerGauge(
			prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespaceMetrics,
				Subsystem: subsystemDBHealth,
				Name:      "last_backup_size_bytes",
				Help:      "最近一次备份文件的字节数。",
			}),
		)

		registerRuntimeCollectors()
	})
}

// ObserveProbe 记录探针耗时与结果。
func ObserveProbe(duration time.Duration, success bool) {
	if probeDuration == nil || probeFailures == nil {
		return
	}
	probeDuration.Observe(duration.Seconds())
	if !success {
		probeFailures.Inc()
	}
}

// SetCircuitOpen 同步熔断器状态到指标。
func SetCircuitOpen(open bool) {
	if circuitOpenGauge == nil {
		return
	}
	if open {
		circuitOpenGauge.Set(1)
	} else {
		circuitOpenGauge.Set(0)
	}
}

// RecordMaintenance 记录一次维护操作的动作与结果分布。
func RecordMaintenance(action, result string) {
	if maintenanceRuns == nil {
		return
	}
	maintenanceRuns.WithLabelValues(normalizeLabel(action, "unknown"), normalizeLabel(result, "unknown")).Inc()
}

// RecordBackupSize 记录最近一次备份的体积。
func RecordBackupSize(sizeBytes int64) {
	if backupSizeGauge == nil || sizeBytes < 0 {
		return
	}
	backupSizeGauge.Set(float64(sizeBytes))
}

func normalizeLabel(value string, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func registerCounter(c prometheus.Counter) prometheus.Counter {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func registerCounterVec(vec *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		panic(err)
	}
	return vec
}

func registerHistogram(h prometheus.Histogram) prometheus.Histogram {
	if err := prometheus.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing
			}
		}
		panic(err)
	}
	return h
}

func registerGauge(g prometheus.Gauge) prometheus.Gauge {
	if err := prometheus.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing
			}
		}
		panic(err)
	}
	return g
}

func registerRuntimeCollectors() {
	if err := prometheus.Register(collectors.NewGoCollector()); err != nil {
		if !isAlreadyRegistered(err) {
			panic(err)
		}
	}
	if err := prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		if !isAlreadyRegistered(err) {
			panic(err)
		}
	}
}

func isAlreadyRegistered(err error) bool {
	_, ok := err.(prometheus.AlreadyRegisteredError)
	return ok
}
