package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/IBM/sarama"
	json "github.com/goccy/go-json"
	"go.opentelemetry.io/otel"

	"github.com/openeeap/nmtrl/internal/domain/run"
	"github.com/openeeap/nmtrl/internal/infrastructure/message"
	"github.com/openeeap/nmtrl/internal/observability/logging"
	"github.com/openeeap/nmtrl/pkg/config"
	"github.com/openeeap/nmtrl/pkg/errors"
)

// EventPublisher 把训练事件写入 Kafka 主题
// 以运行 ID 作为消息键，保证同一运行的事件落在同一分区并保持顺序
type EventPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   logging.Logger
	now      func() time.Time

	mu     sync.Mutex
	closed bool
}

// NewSaramaConfig 根据配置构建 Sarama 生产者配置
func NewSaramaConfig(cfg *config.KafkaConfig) (*sarama.Config, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	if sc.ClientID == "" {
		sc.ClientID = "nmtrl"
	}
	sc.Net.DialTimeout = timeout
	sc.Net.ReadTimeout = timeout
	sc.Net.WriteTimeout = timeout

	// 设置版本
	if cfg.Version != "" {
		version, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, errors.ValidationErrorf("invalid kafka version %q: %v", cfg.Version, err)
		}
		sc.Version = version
	}

	// 同步生产者要求返回成功与失败
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.RequiredAcks)
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Retry.Max = maxRetries
	sc.Producer.Retry.Backoff = 100 * time.Millisecond
	sc.Producer.Timeout = timeout
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	return sc, nil
}

// NewEventPublisher 连接 Kafka 并创建事件发布者
func NewEventPublisher(cfg *config.KafkaConfig, logger logging.Logger) (*EventPublisher, error) {
	if cfg == nil {
		return nil, errors.ValidationError("kafka config cannot be nil")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.ValidationError("brokers cannot be empty")
	}
	if cfg.Topic == "" {
		return nil, errors.ValidationError("topic cannot be empty")
	}

	sc, err := NewSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}

	// 创建同步生产者
	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, errors.WrapFromCode(err, errors.ErrSinkConnect, "kafka")
	}
	return NewEventPublisherWithProducer(producer, cfg.Topic, logger), nil
}

// NewEventPublisherWithProducer 基于已有生产者创建事件发布者
func NewEventPublisherWithProducer(producer sarama.SyncProducer, topic string, logger logging.Logger) *EventPublisher {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &EventPublisher{producer: producer, topic: topic, logger: logger, now: time.Now}
}

// Name 实现 run.Observer
func (p *EventPublisher) Name() string { return "kafka" }

// Observe 实现 run.Observer
func (p *EventPublisher) Observe(ctx context.Context, ev run.Event) error {
	return p.Publish(ctx, ev)
}

// Publish 发布一条训练事件，并把追踪上下文写入消息头
func (p *EventPublisher) Publish(ctx context.Context, ev run.Event) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return errors.InternalError("kafka publisher is closed")
	}

	env, err := message.NewEnvelope(ev, p.now())
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return errors.WrapFromCode(err, errors.ErrSinkPublish, string(ev.Kind()))
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(env.RunID),
		Value:     sarama.ByteEncoder(body),
		Timestamp: env.Time,
		Headers: []sarama.RecordHeader{
			{Key: []byte(message.HeaderEventKind), Value: []byte(env.Kind)},
			{Key: []byte(message.HeaderRunID), Value: []byte(env.RunID)},
		},
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: msg})

	// 发送消息
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return errors.WrapFromCode(err, errors.ErrSinkPublish, string(ev.Kind()))
	}
	p.logger.WithContext(ctx).Debug("Event published",
		logging.String("kind", string(env.Kind)),
		logging.Int("partition", int(partition)),
		logging.Int64("offset", offset))
	return nil
}

// Close 关闭生产者
func (p *EventPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.producer.Close()
}

// headerCarrier 让 OpenTelemetry 传播器读写 Kafka 消息头
type headerCarrier struct {
	msg *sarama.ProducerMessage
}

// Get 实现 propagation.TextMapCarrier
func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set 实现 propagation.TextMapCarrier
func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if string(h.Key) == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

// Keys 实现 propagation.TextMapCarrier
func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, string(h.Key))
	}
	return keys
}

//Personal.AI order the ending
