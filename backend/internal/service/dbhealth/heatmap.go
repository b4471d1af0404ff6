package dbhealth

import (
	"context"
	"sort"
	"time"
)

// 热力图严重度分级，以慢操作阈值的倍数划分。
const (
	SeverityWarn     = "warn"
	SeveritySlow     = "slow"
	SeverityCritical = "critical"
)

const heatmapWindow = 24 * time.Hour

// HeatmapCell 是热力图网格中的一个格子：一个小时桶内某一严重度的聚合。
type HeatmapCell struct {
	BucketStart time.Time `json:"bucket_start"`
	Severity    string    `json:"severity"`
	Count       int       `json:"count"`
	AvgMillis   float64   `json:"avg_ms"`
	MaxMillis   int64     `json:"max_ms"`
}

// Heatmap 是 /performance 的返回结构。
type Heatmap struct {
	WindowHours  int           `json:"window_hours"`
	GeneratedAt  time.Time     `json:"generated_at"`
	TotalSamples int           `json:"total_samples"`
	Cells        []HeatmapCell `json:"cells"`
}

// GetPerformanceHeatmap 把最近 24 小时的慢操作样本聚合成 时间桶 x 严重度 网格。
// 纯读取聚合，不产生任何阻塞操作。
func (s *Service) GetPerformanceHeatmap(ctx context.Context) (Heatmap, error) {
	now := s.now()
	heatmap := Heatmap{
		WindowHours: int(heatmapWindow.Hours()),
		GeneratedAt: now,
		Cells:       []HeatmapCell{},
	}
	if s.slowOps == nil {
		return heatmap, nil
	}

	records, err := s.slowOps.Range(ctx, now.Add(-heatmapWindow))
	if err != nil {
		return heatmap, err
	}

	type cellKey struct {
		bucket   int64
		severity string
	}
	type cellAgg struct {
		count int
		sum   int64
		max   int64
	}

	cells := make(map[cellKey]*cellAgg)
	for _, record := range records {
		key := cellKey{
			bucket:   record.OccurredAt.Truncate(time.Hour).Unix(),
			severity: record.Severity,
		}
		agg, ok := cells[key]
		if !ok {
			agg = &cellAgg{}
			cells[key] = agg
		}
		agg.count++
		agg.sum += record.DurationMillis
		if record.DurationMillis > agg.max {
			agg.max = record.DurationMillis
		}
		heatmap.TotalSamples++
	}

	for key, agg := range cells {
		heatmap.Cells = append(heatmap.Cells, HeatmapCell{
			BucketStart: time.Unix(key.bucket, 0).UTC(),
			Severity:    key.severity,
			Count:       agg.count,
			AvgMillis:   float64(agg.sum) / float64(agg.count),
			MaxMillis:   agg.max,
		})
	}

	sort.Slice(heatmap.Cells, func(i, j int) bool {
		a, b := heatmap.Cells[i], heatmap.Cells[j]
		if !a.BucketStart.Equal(b.BucketStart) {
			return a.BucketStart.Before(b.BucketStart)
		}
		return severityRank(a.Severity) < severityRank(b.Severity)
	})
	return heatmap, nil
}

// severityFor 按慢操作阈值的倍数划分严重度。
func (s *Service) severityFor(elapsed time.Duration) string {
	switch {
	case elapsed >= 4*s.cfg.SlowOpThreshold:
		return SeverityCritical
	case elapsed >= 2*s.cfg.SlowOpThreshold:
		return SeveritySlow
	default:
		return SeverityWarn
	}
}

func severityRank(severity string) int {
	switch severity {
	case SeverityWarn:
		return 0
	case SeveritySlow:
		return 1
	case SeverityCritical:
		return 2
	default:
		return 3
	}
}
