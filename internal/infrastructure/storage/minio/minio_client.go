package minio

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/openeeap/nmtrl/internal/platform/training/checkpoint"
	"github.com/openeeap/nmtrl/pkg/errors"
)

// contentType 检查点对象的内容类型
const contentType = "application/zstd"

// MinIOConfig MinIO 配置
type MinIOConfig struct {
	Endpoint        string        // 服务端点
	AccessKeyID     string        // 访问密钥ID
	SecretAccessKey string        // 访问密钥
	Bucket          string        // 存储桶名称
	UseSSL          bool          // 是否使用SSL
	Region          string        // 区域
	Timeout         time.Duration // 超时时间
}

// Store MinIO 检查点存储
type Store struct {
	client *minio.Client
	config *MinIOConfig
}

// NewStore 创建 MinIO 存储，检查连接并确保存储桶存在
func NewStore(ctx context.Context, config *MinIOConfig) (*Store, error) {
	if config == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidParameter, "config cannot be nil")
	}
	if config.Endpoint == "" {
		return nil, errors.NewValidationError(errors.CodeInvalidParameter, "endpoint cannot be empty")
	}
	if config.Bucket == "" {
		return nil, errors.NewValidationError(errors.CodeInvalidParameter, "bucket name cannot be empty")
	}

	// 设置默认值
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	// 创建客户端
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, errors.WrapFromCode(err, errors.ErrSinkConnect, "minio")
	}

	s := &Store{client: client, config: config}

	// 测试连接并创建存储桶
	ctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureBucket 存储桶不存在时创建
func (s *Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.config.Bucket)
	if err != nil {
		return errors.WrapFromCode(err, errors.ErrSinkConnect, "minio")
	}
	if exists {
		return nil
	}
	err = s.client.MakeBucket(ctx, s.config.Bucket, minio.MakeBucketOptions{Region: s.config.Region})
	if err != nil {
		return errors.WrapStorageError(err, errors.ErrStorageUploadFailed.Code, "failed to create bucket")
	}
	return nil
}

// Put 上传检查点对象。S3 的单对象写入是原子的，失败时旧对象保持不变
func (s *Store) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	if name == "" {
		return errors.NewValidationError(errors.CodeInvalidParameter, "object name cannot be empty")
	}
	_, err := s.client.PutObject(ctx, s.config.Bucket, name, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return errors.WrapFromCode(err, errors.ErrStorageUploadFailed, name)
	}
	return nil
}

// Get 获取检查点对象
func (s *Store) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	object, err := s.client.GetObject(ctx, s.config.Bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.WrapFromCode(err, errors.ErrStorageDownloadFailed, name)
	}

	// GetObject 是惰性的，通过 Stat 确认对象存在
	if _, err := object.Stat(); err != nil {
		object.Close()
		if isNotFound(err) {
			return nil, errors.NewFromCodef(errors.ErrStorageFileNotFound, name)
		}
		return nil, errors.WrapFromCode(err, errors.ErrStorageDownloadFailed, name)
	}
	return object, nil
}

// List 列出以 prefix 开头的对象
func (s *Store) List(ctx context.Context, prefix string) ([]checkpoint.ObjectInfo, error) {
	opts := minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}

	var out []checkpoint.ObjectInfo
	for object := range s.client.ListObjects(ctx, s.config.Bucket, opts) {
		if object.Err != nil {
			return nil, errors.WrapFromCode(object.Err, errors.ErrStorageDownloadFailed, prefix)
		}
		if object.Key == "" || strings.HasSuffix(object.Key, "/") {
			continue
		}
		out = append(out, checkpoint.ObjectInfo{
			Name:    object.Key,
			Size:    object.Size,
			ModTime: object.LastModified,
		})
	}
	return out, nil
}

// Ping 健康检查
func (s *Store) Ping(ctx context.Context) error {
	// 通过检查存储桶来检查连接状态
	if _, err := s.client.BucketExists(ctx, s.config.Bucket); err != nil {
		return errors.WrapFromCode(err, errors.ErrSinkConnect, "minio")
	}
	return nil
}

// GetEndpoint 获取端点
func (s *Store) GetEndpoint() string {
	return s.config.Endpoint
}

// isNotFound 判断是否为对象不存在错误
func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
}

//Personal.AI order the ending
