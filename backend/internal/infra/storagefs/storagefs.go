package storagefs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"
)

// FileInfo 是文件系统适配层返回的精简元信息。
type FileInfo struct {
	Name      string
	Path      string
	SizeBytes int64
	ModTime   time.Time
}

// Storage 抽象备份与迁移清单依赖的文件系统操作，便于在测试中替换实现。
type Storage interface {
	Stat(path string) (FileInfo, error)
	MkdirAll(dir string) error
	CopyFile(src, dst string) (int64, error)
	ListDir(dir string) ([]FileInfo, error)
	ReadPreview(path string, limit int) (string, error)
}

// OSStorage 是基于本地磁盘的默认实现。
type OSStorage struct{}

// NewOSStorage 返回直接操作本地文件系统的适配器。
func NewOSStorage() OSStorage {
	return OSStorage{}
}

// Stat 返回单个文件的元信息。
func (OSStorage) Stat(path string) (FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Name:      info.Name(),
		Path:      path,
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
	}, nil
}

// MkdirAll 确保目录存在。
func (OSStorage) MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// CopyFile 将 src 复制到 dst 并返回写入的字节数。目标文件已存在时会被截断。
func (OSStorage) CopyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create target: %w", err)
	}

	written, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return 0, fmt.Errorf("copy: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("close target: %w", err)
	}
	return written, nil
}

// ListDir 返回目录下的普通文件列表，子目录被忽略。
func (OSStorage) ListDir(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:      entry.Name(),
			Path:      filepath.Join(dir, entry.Name()),
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		})
	}
	return files, nil
}

// ReadPreview 读取文件开头最多 limit 字节并返回合法的 UTF-8 文本。
func (OSStorage) ReadPreview(path string, limit int) (string, error) {
	if limit <= 0 {
		return "", nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, limit)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	buf = buf[:n]

	// 截断可能落在多字节字符中间，逐字节回退到合法边界。
	for len(buf) > 0 && !utf8.Valid(buf) {
		buf = buf[:len(buf)-1]
	}
	return string(buf), nil
}
