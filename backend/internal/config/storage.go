package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultDBRelPath     = "data/laundry-ops.db"
	defaultBackupRelDir  = "data/backups"
	defaultMigrationsDir = "migrations"

	defaultQuotaMB         = 512
	defaultBreakerTrips    = 3
	defaultLatencyCeiling  = 2 * time.Second
	defaultHistorySize     = 60
	defaultSlowOpThreshold = 250 * time.Millisecond
	defaultSyncStalled     = 6 * time.Hour
)

// StorageConfig 汇总健康监控子系统涉及的存储路径与阈值。
// 所有字段均可通过环境变量覆盖，缺省值面向单店部署的默认体量。
type StorageConfig struct {
	// DBPath 是 SQLite 主文件的绝对路径，-wal/-shm 由此派生。
	DBPath string
	// BackupDir 是备份文件的落盘目录。
	BackupDir string
	// MigrationsDir 存放已应用的 schema 迁移 SQL 文件。
	MigrationsDir string
	// QuotaBytes 是存储配额上限，配额使用率以此为分母。
	QuotaBytes int64
	// BreakerThreshold 表示连续失败多少次后熔断器打开。
	BreakerThreshold int
	// LatencyCeiling 是探针的硬超时上限，超过即记为失败样本。
	LatencyCeiling time.Duration
	// HistoryCapacity 是延迟历史环形缓冲的容量。
	HistoryCapacity int
	// SlowOpThreshold 超过该耗时的操作会进入慢操作热力图。
	SlowOpThreshold time.Duration
	// SyncStalledAfter 是同步积压被判定为 stalled 的时间窗口。
	SyncStalledAfter time.Duration
}

// ServerConfig 描述 HTTP 服务自身的运行参数。
type ServerConfig struct {
	Port      string
	JWTSecret string
}

// LoadStorageConfig 从环境变量解析存储配置，缺失时回退默认值。
func LoadStorageConfig() StorageConfig {
	cfg := StorageConfig{
		DBPath:           normalisePath(defaultDBRelPath),
		BackupDir:        normalisePath(defaultBackupRelDir),
		MigrationsDir:    normalisePath(defaultMigrationsDir),
		QuotaBytes:       defaultQuotaMB * 1024 * 1024,
		BreakerThreshold: defaultBreakerTrips,
		LatencyCeiling:   defaultLatencyCeiling,
		HistoryCapacity:  defaultHistorySize,
		SlowOpThreshold:  defaultSlowOpThreshold,
		SyncStalledAfter: defaultSyncStalled,
	}

	if raw := strings.TrimSpace(os.Getenv("LAUNDRY_SQLITE_PATH")); raw != "" {
		cfg.DBPath = normalisePath(raw)
	}
	if raw := strings.TrimSpace(os.Getenv("DB_BACKUP_DIR")); raw != "" {
		cfg.BackupDir = normalisePath(raw)
	}
	if raw := strings.TrimSpace(os.Getenv("DB_MIGRATIONS_DIR")); raw != "" {
		cfg.MigrationsDir = normalisePath(raw)
	}
	if parsed, ok := envPositiveInt("DB_QUOTA_MB"); ok {
		cfg.QuotaBytes = int64(parsed) * 1024 * 1024
	}
	if parsed, ok := envPositiveInt("DB_BREAKER_THRESHOLD"); ok {
		cfg.BreakerThreshold = parsed
	}
	if parsed, ok := envPositiveInt("DB_LATENCY_CEILING_MS"); ok {
		cfg.LatencyCeiling = time.Duration(parsed) * time.Millisecond
	}
	if parsed, ok := envPositiveInt("DB_LATENCY_HISTORY_SIZE"); ok {
		cfg.HistoryCapacity = parsed
	}
	if parsed, ok := envPositiveInt("DB_SLOW_OP_MS"); ok {
		cfg.SlowOpThreshold = time.Duration(parsed) * time.Millisecond
	}
	if parsed, ok := envPositiveInt("SYNC_STALLED_AFTER_MINUTES"); ok {
		cfg.SyncStalledAfter = time.Duration(parsed) * time.Minute
	}

	return cfg
}

// LoadServerConfig 读取 HTTP 服务配置。JWT 密钥为空时由上层决定是否拒绝启动。
func LoadServerConfig() ServerConfig {
	cfg := ServerConfig{
		Port:      "8080",
		JWTSecret: strings.TrimSpace(os.Getenv("JWT_SECRET")),
	}
	if raw := strings.TrimSpace(os.Getenv("PORT")); raw != "" {
		cfg.Port = raw
	}
	return cfg
}

// envPositiveInt 解析大于 0 的整数环境变量，解析失败视为未设置。
func envPositiveInt(key string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, false
	}
	return parsed, true
}

// normalisePath 将路径展开为绝对路径，兼容 ~ 前缀与相对路径。
func normalisePath(raw string) string {
	if raw == "" {
		return raw
	}
	if strings.HasPrefix(raw, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			raw = filepath.Join(home, strings.TrimPrefix(raw, "~"))
		}
	}
	if filepath.IsAbs(raw) {
		return raw
	}
	if abs, err := filepath.Abs(raw); err == nil {
		return abs
	}
	return raw
}
