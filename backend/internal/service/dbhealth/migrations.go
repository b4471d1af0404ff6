package dbhealth

import (
	"context"
	"os"
	"sort"
	"strings"
	"time"
)

const (
	migrationListLimit   = 10
	migrationPreviewSize = 240
)

// MigrationFile 描述一份已应用的 schema 迁移文件。
type MigrationFile struct {
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size_bytes"`
	AppliedAt time.Time `json:"applied_at"`
	Preview   string    `json:"preview"`
}

// ListMigrations 列出迁移目录下的 SQL 文件，按应用时间倒序，最多返回 10 份，
// 每份附带开头的内容预览。目录不存在视为空列表而不是错误。
func (s *Service) ListMigrations(ctx context.Context) ([]MigrationFile, error) {
	files, err := s.fs.ListDir(s.cfg.MigrationsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []MigrationFile{}, nil
		}
		return nil, err
	}

	migrations := make([]MigrationFile, 0, len(files))
	for _, file := range files {
		if !strings.HasSuffix(strings.ToLower(file.Name), ".sql") {
			continue
		}
		preview, err := s.fs.ReadPreview(file.Path, migrationPreviewSize)
		if err != nil {
			s.logger.Warnw("read migration preview failed", "file", file.Name, "error", err)
		}
		migrations = append(migrations, MigrationFile{
			Name:      file.Name,
			SizeBytes: file.SizeBytes,
			AppliedAt: file.ModTime,
			Preview:   preview,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].AppliedAt.After(migrations[j].AppliedAt)
	})
	if len(migrations) > migrationListLimit {
		migrations = migrations[:migrationListLimit]
	}
	return migrations, nil
}
