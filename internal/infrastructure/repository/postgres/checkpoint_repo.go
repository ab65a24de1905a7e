package postgres

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openeeap/nmtrl/internal/domain/run"
	"github.com/openeeap/nmtrl/internal/observability/logging"
	"github.com/openeeap/nmtrl/pkg/config"
	"github.com/openeeap/nmtrl/pkg/errors"
	"github.com/openeeap/nmtrl/pkg/types"
)

// CheckpointModel 检查点数据库模型
type CheckpointModel struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)"`
	RunID      string    `gorm:"type:varchar(64);not null;index:idx_checkpoints_run_created,priority:1"`
	Name       string    `gorm:"type:varchar(255);not null"`
	Policy     string    `gorm:"type:varchar(20);not null"`
	Epoch      float64   `gorm:"not null"`
	Iteration  int       `gorm:"not null"`
	BLEU       float64   `gorm:"column:bleu;not null;index"`
	PPL        float64   `gorm:"column:ppl;not null"`
	Size       int64     `gorm:"not null;default:0"`
	Written    bool      `gorm:"not null;default:false;index"`
	Best       bool      `gorm:"not null;default:false"`
	DurationMS int64     `gorm:"column:duration_ms;not null;default:0"`
	CreatedAt  time.Time `gorm:"not null;index:idx_checkpoints_run_created,priority:2"`
}

// TableName 指定表名
func (CheckpointModel) TableName() string {
	return "checkpoints"
}

// checkpointRepo 检查点台账 PostgreSQL 实现
type checkpointRepo struct {
	db *gorm.DB
}

// Open 根据配置连接 PostgreSQL 并设置连接池
func Open(cfg *config.DatabaseConfig, logger logging.Logger) (*gorm.DB, error) {
	if cfg == nil {
		return nil, errors.ValidationError("database config cannot be nil")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logging.NewGormLogger(logger, cfg.LogMode),
	})
	if err != nil {
		return nil, errors.WrapFromCode(err, errors.ErrSinkConnect, "postgres")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.WrapDatabaseError(err, errors.CodeDatabaseError, "failed to get sql.DB")
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// NewCheckpointLedger 创建检查点台账并迁移表结构
func NewCheckpointLedger(db *gorm.DB) (run.CheckpointLedger, error) {
	if db == nil {
		return nil, errors.ValidationError("database connection cannot be nil")
	}

	// 自动迁移表结构
	if err := db.AutoMigrate(&CheckpointModel{}); err != nil {
		return nil, errors.WrapDatabaseError(err, errors.CodeDatabaseError, "failed to migrate checkpoint table")
	}
	return &checkpointRepo{db: db}, nil
}

// Record 记录一个保存点，相同 ID 重复写入时覆盖
func (r *checkpointRepo) Record(ctx context.Context, rec *run.CheckpointRecord) error {
	if rec == nil || rec.ID == "" {
		return errors.ValidationError("checkpoint record must carry an id")
	}

	m := toModel(rec)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(m).Error
	if err != nil {
		return errors.WrapDatabaseError(err, errors.CodeDatabaseError, "failed to record checkpoint")
	}
	return nil
}

// ListByRun 按创建时间列出一次运行的保存点
func (r *checkpointRepo) ListByRun(ctx context.Context, runID string) ([]*run.CheckpointRecord, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, errors.ValidationError("run id cannot be empty")
	}

	var models []CheckpointModel
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.WrapDatabaseError(err, errors.CodeDatabaseError, "failed to list checkpoints")
	}

	out := make([]*run.CheckpointRecord, 0, len(models))
	for i := range models {
		out = append(out, toEntity(&models[i]))
	}
	return out, nil
}

// Best 返回一次运行中已写入且 BLEU 最高的保存点，分数相同时取最新的
func (r *checkpointRepo) Best(ctx context.Context, runID string) (*run.CheckpointRecord, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, errors.ValidationError("run id cannot be empty")
	}

	var m CheckpointModel
	err := r.db.WithContext(ctx).
		Where("run_id = ? AND written = ?", runID, true).
		Order("bleu DESC").
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundError("checkpoint for run " + runID)
		}
		return nil, errors.WrapDatabaseError(err, errors.CodeDatabaseError, "failed to get best checkpoint")
	}
	return toEntity(&m), nil
}

// toModel 将领域记录转换为数据库模型
func toModel(rec *run.CheckpointRecord) *CheckpointModel {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return &CheckpointModel{
		ID:         rec.ID,
		RunID:      rec.RunID,
		Name:       rec.Name,
		Policy:     string(rec.Policy),
		Epoch:      rec.Epoch,
		Iteration:  rec.Iteration,
		BLEU:       rec.BLEU,
		PPL:        rec.PPL,
		Size:       rec.Size,
		Written:    rec.Written,
		Best:       rec.Best,
		DurationMS: rec.Duration.Milliseconds(),
		CreatedAt:  created.UTC(),
	}
}

// toEntity 将数据库模型转换为领域记录
func toEntity(m *CheckpointModel) *run.CheckpointRecord {
	return &run.CheckpointRecord{
		ID:        m.ID,
		RunID:     m.RunID,
		Name:      m.Name,
		Policy:    types.CheckpointPolicy(m.Policy),
		Epoch:     m.Epoch,
		Iteration: m.Iteration,
		BLEU:      m.BLEU,
		PPL:       m.PPL,
		Size:      m.Size,
		Written:   m.Written,
		Best:      m.Best,
		Duration:  time.Duration(m.DurationMS) * time.Millisecond,
		CreatedAt: m.CreatedAt,
	}
}

//Personal.AI order the ending
