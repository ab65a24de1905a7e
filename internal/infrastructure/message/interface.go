package message

import (
	"context"
	"time"

	json "github.com/goccy/go-json"

	"github.com/openeeap/nmtrl/internal/domain/run"
	"github.com/openeeap/nmtrl/pkg/errors"
)

// Publisher 训练事件发布接口
// 抽象事件流操作，支持多种消息系统实现
type Publisher interface {
	// Publish 发布一条训练事件
	Publish(ctx context.Context, ev run.Event) error

	// Close 关闭发布者并释放连接
	Close() error
}

// Envelope 训练事件的线上格式
type Envelope struct {
	Kind    run.EventKind   `json:"kind"`              // 事件类型
	RunID   string          `json:"run_id"`            // 运行 ID
	Time    time.Time       `json:"time"`              // 发布时间
	Payload json.RawMessage `json:"payload,omitempty"` // 事件内容
}

// Header 键
const (
	HeaderEventKind = "nmtrl-event-kind"
	HeaderRunID     = "nmtrl-run-id"
)

// NewEnvelope 序列化事件并包装为信封
func NewEnvelope(ev run.Event, now time.Time) (*Envelope, error) {
	if ev == nil {
		return nil, errors.ValidationError("event cannot be nil")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.WrapFromCode(err, errors.ErrSinkPublish, string(ev.Kind()))
	}
	return &Envelope{Kind: ev.Kind(), RunID: ev.Run(), Time: now.UTC(), Payload: payload}, nil
}

// Decode 解析信封中的事件
func (e *Envelope) Decode() (run.Event, error) {
	var ev run.Event
	switch e.Kind {
	case run.EventStarted:
		ev = &run.Started{}
	case run.EventProgress:
		ev = &run.Progress{}
	case run.EventValidation:
		ev = &run.Validation{}
	case run.EventCheckpoint:
		ev = &run.CheckpointRecord{}
	case run.EventFinished:
		ev = &run.Finished{}
	default:
		return nil, errors.ValidationErrorf("unknown event kind %q", e.Kind)
	}
	if err := json.Unmarshal(e.Payload, ev); err != nil {
		return nil, errors.ValidationErrorf("malformed %s event: %v", e.Kind, err)
	}
	return ev, nil
}

//Personal.AI order the ending
