package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/openeeap/nmtrl/internal/domain/run"
	"github.com/openeeap/nmtrl/pkg/errors"
	"github.com/openeeap/nmtrl/pkg/types"
)

// StatusRepoTestSuite 在 Redis 容器上验证运行状态仓储
type StatusRepoTestSuite struct {
	suite.Suite
	ctx       context.Context
	container *tcredis.RedisContainer
	client    *goredis.Client
	repo      run.StatusRepository
}

func TestStatusRepoSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	suite.Run(t, new(StatusRepoTestSuite))
}

// SetupSuite 启动 Redis 容器
func (s *StatusRepoTestSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := tcredis.Run(s.ctx, "redis:7-alpine")
	s.Require().NoError(err, "Failed to start Redis container")
	s.container = container

	uri, err := container.ConnectionString(s.ctx)
	s.Require().NoError(err)
	opts, err := goredis.ParseURL(uri)
	s.Require().NoError(err)

	s.client = goredis.NewClient(opts)
	s.repo = NewStatusRepositoryFromClient(s.client, StatusOptions{KeyPrefix: "test", TTL: time.Hour})
}

// TearDownSuite 停止容器
func (s *StatusRepoTestSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

// SetupTest 清理测试数据
func (s *StatusRepoTestSuite) SetupTest() {
	s.Require().NoError(s.client.FlushDB(s.ctx).Err())
}

func (s *StatusRepoTestSuite) TestSaveAndGet() {
	status := &run.Status{}
	status.Apply(&run.Started{RunID: "r1", Pairs: []string{"de-en"}, Epochs: 3, Time: time.Now().UTC()})
	status.Apply(&run.Validation{RunID: "r1", BLEU: 21.5, PPL: 7.25})

	s.Require().NoError(s.repo.Save(s.ctx, status))

	got, err := s.repo.Get(s.ctx, "r1")
	s.Require().NoError(err)
	s.Equal(types.RunStatusRunning, got.State)
	s.Equal([]string{"de-en"}, got.Pairs)
	s.Equal(21.5, got.BestBLEU)
	s.Require().NotNil(got.LastValidation)
	s.Equal(7.25, got.LastValidation.PPL)

	ttl, err := s.client.TTL(s.ctx, "test:run:r1:status").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

func (s *StatusRepoTestSuite) TestGetMissing() {
	_, err := s.repo.Get(s.ctx, "nope")
	s.Require().Error(err)
	s.True(errors.IsType(err, errors.ErrorTypeNotFound))
}

func (s *StatusRepoTestSuite) TestList() {
	for _, id := range []string{"r2", "r1", "r3"} {
		s.Require().NoError(s.repo.Save(s.ctx, &run.Status{RunID: id}))
	}
	// saving twice keeps one index entry
	s.Require().NoError(s.repo.Save(s.ctx, &run.Status{RunID: "r1"}))

	ids, err := s.repo.List(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"r1", "r2", "r3"}, ids)
}

func (s *StatusRepoTestSuite) TestSaveRejectsAnonymousStatus() {
	s.Error(s.repo.Save(s.ctx, &run.Status{}))
}

func (s *StatusRepoTestSuite) TestRecorderWritesThrough() {
	rec := run.NewStatusRecorder("redis", s.repo, 0)
	s.Require().NoError(rec.Observe(s.ctx, &run.Started{RunID: "r9", Epochs: 1}))
	s.Require().NoError(rec.Observe(s.ctx, &run.Finished{RunID: "r9", State: types.RunStatusFailed, Error: "disk full"}))

	got, err := s.repo.Get(s.ctx, "r9")
	s.Require().NoError(err)
	s.Equal(types.RunStatusFailed, got.State)
	s.Equal("disk full", got.Error)
}
