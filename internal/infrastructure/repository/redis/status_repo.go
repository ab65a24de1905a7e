package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	json "github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"

	"github.com/openeeap/nmtrl/internal/domain/run"
	"github.com/openeeap/nmtrl/pkg/config"
	"github.com/openeeap/nmtrl/pkg/errors"
)

// statusRepo Redis 运行状态仓储实现
type statusRepo struct {
	client     goredis.UniversalClient
	keyPrefix  string
	ttl        time.Duration
	maxRetries int
	retryDelay time.Duration
}

// StatusOptions 状态仓储选项
type StatusOptions struct {
	KeyPrefix  string        // 键前缀
	TTL        time.Duration // 最后一次更新后的过期时间，0 表示永不过期
	MaxRetries int           // 最大重试次数
}

// NewStatusRepository 根据配置创建 Redis 运行状态仓储，并检查连通性
func NewStatusRepository(ctx context.Context, cfg *config.RedisConfig) (run.StatusRepository, func() error, error) {
	if cfg == nil {
		return nil, nil, errors.ValidationError("redis config cannot be nil")
	}

	// 设置默认值
	poolSize := cfg.PoolSize
	if poolSize == 0 {
		poolSize = 10
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 5 * time.Second
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 3 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 3 * time.Second
	}

	// 创建 Redis 客户端
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     poolSize,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	// 测试连接
	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, errors.WrapFromCode(err, errors.ErrSinkConnect, "redis "+cfg.Addr)
	}

	repo := NewStatusRepositoryFromClient(client, StatusOptions{KeyPrefix: cfg.KeyPrefix, TTL: cfg.TTL})
	return repo, client.Close, nil
}

// NewStatusRepositoryFromClient 基于已有客户端创建运行状态仓储
func NewStatusRepositoryFromClient(client goredis.UniversalClient, opts StatusOptions) run.StatusRepository {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "nmtrl"
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &statusRepo{
		client:     client,
		keyPrefix:  opts.KeyPrefix,
		ttl:        opts.TTL,
		maxRetries: opts.MaxRetries,
		retryDelay: 100 * time.Millisecond,
	}
}

// statusKey 构建单个运行的状态键
func (r *statusRepo) statusKey(runID string) string {
	return fmt.Sprintf("%s:run:%s:status", r.keyPrefix, runID)
}

// indexKey 构建运行索引集合的键
func (r *statusRepo) indexKey() string {
	return r.keyPrefix + ":runs"
}

// Save 保存运行状态，并把运行 ID 加入索引
func (r *statusRepo) Save(ctx context.Context, status *run.Status) error {
	if status == nil || status.RunID == "" {
		return errors.ValidationError("status must carry a run id")
	}

	data, err := json.Marshal(status)
	if err != nil {
		return errors.WrapInternalError(err, errors.CodeInternalError, "failed to serialize run status")
	}

	// 重试机制
	var lastErr error
	for i := 0; i < r.maxRetries; i++ {
		_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, r.statusKey(status.RunID), data, r.ttl)
			pipe.SAdd(ctx, r.indexKey(), status.RunID)
			return nil
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if !r.sleep(ctx, i) {
			break
		}
	}
	return errors.WrapDatabaseError(lastErr, errors.CodeDatabaseError, "failed to save run status after retries")
}

// Get 获取运行状态
func (r *statusRepo) Get(ctx context.Context, runID string) (*run.Status, error) {
	if runID == "" {
		return nil, errors.ValidationError("run id cannot be empty")
	}

	var lastErr error
	for i := 0; i < r.maxRetries; i++ {
		data, err := r.client.Get(ctx, r.statusKey(runID)).Bytes()
		if err != nil {
			if err == goredis.Nil {
				return nil, errors.NotFoundError("run " + runID)
			}
			lastErr = err
			if !r.sleep(ctx, i) {
				break
			}
			continue
		}

		// 反序列化
		var status run.Status
		if err := json.Unmarshal(data, &status); err != nil {
			return nil, errors.WrapInternalError(err, errors.CodeInternalError, "failed to deserialize run status")
		}
		return &status, nil
	}
	return nil, errors.WrapDatabaseError(lastErr, errors.CodeDatabaseError, "failed to get run status after retries")
}

// List 返回已知运行的 ID，按字典序排序
func (r *statusRepo) List(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, errors.WrapDatabaseError(err, errors.CodeDatabaseError, "failed to list runs")
	}
	sort.Strings(ids)
	return ids, nil
}

// sleep 按重试次数线性退避，上下文取消时返回 false
func (r *statusRepo) sleep(ctx context.Context, attempt int) bool {
	timer := time.NewTimer(r.retryDelay * time.Duration(attempt+1))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

//Personal.AI order the ending
