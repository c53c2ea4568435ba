// Package storage 保存上传的图片，支持本地磁盘与 MinIO 两种后端。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	BackendLocal = "local"
	BackendMinIO = "minio"
)

var ErrInvalidObjectName = errors.New("invalid object name")

// Storage 保存上传文件并返回可公开访问的 URL。
type Storage interface {
	Save(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, objectName string) error
}

// ObjectName 生成 “日期-uuid.扩展名” 形式的对象名。
func ObjectName(now time.Time, originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	return fmt.Sprintf("%s-%s%s", now.Format("20060102"), uuid.New().String(), ext)
}

// LocalStorage 把文件写入磁盘目录，并通过静态路由对外提供。
type LocalStorage struct {
	dir     string
	urlPath string
}

// NewLocalStorage creates a LocalStorage rooted at dir.
func NewLocalStorage(dir, urlPath string) *LocalStorage {
	urlPath = "/" + strings.Trim(strings.TrimSpace(urlPath), "/")
	return &LocalStorage{dir: dir, urlPath: urlPath}
}

// Dir 返回存储目录。
func (s *LocalStorage) Dir() string {
	return s.dir
}

// URLPath 返回静态访问前缀。
func (s *LocalStorage) URLPath() string {
	return s.urlPath
}

// Save 实现 Storage。
func (s *LocalStorage) Save(_ context.Context, objectName string, r io.Reader, _ int64, _ string) (string, error) {
	name, err := cleanObjectName(objectName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	target := filepath.Join(s.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(target)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path.Join(s.urlPath, name), nil
}

// Delete 实现 Storage，文件不存在时视为成功。
func (s *LocalStorage) Delete(_ context.Context, objectName string) error {
	name, err := cleanObjectName(objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(name))); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// cleanObjectName 拒绝绝对路径与跳出根目录的名称。
func cleanObjectName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || strings.HasPrefix(trimmed, "/") || strings.Contains(trimmed, "\\") {
		return "", ErrInvalidObjectName
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidObjectName
	}
	return cleaned, nil
}
