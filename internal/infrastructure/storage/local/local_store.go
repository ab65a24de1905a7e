// Package local stores checkpoint objects on the local filesystem.
package local

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openeeap/nmtrl/internal/platform/training/checkpoint"
	"github.com/openeeap/nmtrl/pkg/errors"
)

// Store 本地文件存储
type Store struct {
	basePath string
}

// NewStore 创建本地存储，目录不存在时自动创建
func NewStore(basePath string) (*Store, error) {
	if basePath == "" {
		return nil, errors.NewValidationError(errors.CodeInvalidParameter, "base path cannot be empty")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, errors.WrapStorageError(err, errors.ErrStorageUploadFailed.Code, "failed to create checkpoint directory")
	}
	return &Store{basePath: basePath}, nil
}

// Put 写入对象。先写临时文件再原子重命名，已存在的同名文件在成功前不会被修改
func (s *Store) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WrapFromCode(err, errors.ErrStorageUploadFailed, name)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return errors.WrapFromCode(err, errors.ErrStorageUploadFailed, name)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	written, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return errors.WrapFromCode(err, errors.ErrStorageUploadFailed, name)
	}
	if size >= 0 && written != size {
		cleanup()
		return errors.NewFromCodef(errors.ErrStorageUploadFailed, name).
			WithDetails("expected_bytes", size).
			WithDetails("written_bytes", written)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return errors.WrapFromCode(err, errors.ErrStorageUploadFailed, name)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.WrapFromCode(err, errors.ErrStorageUploadFailed, name)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.WrapFromCode(err, errors.ErrStorageUploadFailed, name)
	}
	return nil
}

// Get 读取对象
func (s *Store) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.NewFromCodef(errors.ErrStorageFileNotFound, name)
	}
	if err != nil {
		return nil, errors.WrapFromCode(err, errors.ErrStorageDownloadFailed, name)
	}
	return f, nil
}

// List 列出以 prefix 开头的对象，按名称排序
func (s *Store) List(ctx context.Context, prefix string) ([]checkpoint.ObjectInfo, error) {
	var out []checkpoint.ObjectInfo
	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, checkpoint.ObjectInfo{Name: name, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, errors.WrapFromCode(err, errors.ErrStorageDownloadFailed, s.basePath)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// BasePath 返回根目录
func (s *Store) BasePath() string {
	return s.basePath
}

// resolve maps an object name to a path inside the base directory.
func (s *Store) resolve(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if name == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.ValidationErrorf("invalid object name %q", name)
	}
	return filepath.Join(s.basePath, clean), nil
}

//Personal.AI order the ending
