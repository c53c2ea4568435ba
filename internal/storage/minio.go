package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOOptions 描述 MinIO 连接参数。
type MinIOOptions struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	Region        string
	PublicBaseURL string
}

// MinIOStorage 把上传文件写入 MinIO/S3 兼容存储。
type MinIOStorage struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewMinIOStorage 建立客户端，并在桶不存在时创建。
func NewMinIOStorage(ctx context.Context, opts MinIOOptions) (*MinIOStorage, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", opts.Bucket, err)
		}
		log.Printf("[storage] created bucket %s", opts.Bucket)
	}

	return &MinIOStorage{
		client:  client,
		bucket:  opts.Bucket,
		baseURL: publicBaseURL(opts),
	}, nil
}

// Save 实现 Storage。
func (s *MinIOStorage) Save(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) (string, error) {
	name, err := cleanObjectName(objectName)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = s.client.PutObject(ctx, s.bucket, name, r, size, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"uploaded-at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload %s to minio: %w", name, err)
	}
	return s.baseURL + "/" + name, nil
}

// Delete 实现 Storage。
func (s *MinIOStorage) Delete(ctx context.Context, objectName string) error {
	name, err := cleanObjectName(objectName)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s from minio: %w", name, err)
	}
	return nil
}

// publicBaseURL 优先使用配置的公开地址，否则拼接 endpoint 与桶名。
func publicBaseURL(opts MinIOOptions) string {
	if base := strings.TrimRight(strings.TrimSpace(opts.PublicBaseURL), "/"); base != "" {
		return base
	}
	scheme := "http"
	if opts.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, strings.Trim(opts.Endpoint, "/"), opts.Bucket)
}
