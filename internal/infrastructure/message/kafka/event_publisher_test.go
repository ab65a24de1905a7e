package kafka

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/openeeap/nmtrl/internal/domain/run"
	"github.com/openeeap/nmtrl/internal/infrastructure/message"
	"github.com/openeeap/nmtrl/pkg/config"
	"github.com/openeeap/nmtrl/pkg/errors"
	"github.com/openeeap/nmtrl/pkg/types"
)

func header(msg *sarama.ProducerMessage, key string) string {
	return headerCarrier{msg: msg}.Get(key)
}

func TestEventPublisher_Publish(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	sc := mocks.NewTestConfig()
	sc.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, sc)

	var sent *sarama.ProducerMessage
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		sent = msg
		return nil
	})

	pub := NewEventPublisherWithProducer(producer, "nmtrl.events", nil)
	pub.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	traceID, _ := oteltrace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := oteltrace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := oteltrace.ContextWithSpanContext(context.Background(), oteltrace.NewSpanContext(oteltrace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: oteltrace.FlagsSampled,
	}))

	ev := &run.Validation{RunID: "r1", Epoch: 1, BLEU: 21.5, PPL: 7.5}
	require.NoError(t, pub.Observe(ctx, ev))
	require.NotNil(t, sent)

	assert.Equal(t, "nmtrl.events", sent.Topic)
	key, err := sent.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "r1", string(key))
	assert.Equal(t, string(run.EventValidation), header(sent, message.HeaderEventKind))
	assert.Equal(t, "r1", header(sent, message.HeaderRunID))
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", header(sent, "traceparent"))

	body, err := sent.Value.Encode()
	require.NoError(t, err)
	var env message.Envelope
	require.NoError(t, json.Unmarshal(body, &env))
	assert.Equal(t, run.EventValidation, env.Kind)
	decoded, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, 21.5, decoded.(*run.Validation).BLEU)

	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close())
	assert.Error(t, pub.Publish(ctx, ev))
}

func TestEventPublisher_SendFailure(t *testing.T) {
	sc := mocks.NewTestConfig()
	sc.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, sc)
	producer.ExpectSendMessageAndFail(stderrors.New("broker down"))

	pub := NewEventPublisherWithProducer(producer, "nmtrl.events", nil)
	err := pub.Publish(context.Background(), &run.Finished{RunID: "r1", State: types.RunStatusFailed})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSinkPublish.Code))
	require.NoError(t, pub.Close())
}

func TestNewSaramaConfig(t *testing.T) {
	sc, err := NewSaramaConfig(&config.KafkaConfig{Version: "3.6.0", RequiredAcks: -1})
	require.NoError(t, err)
	assert.Equal(t, sarama.WaitForAll, sc.Producer.RequiredAcks)
	assert.True(t, sc.Producer.Return.Successes)
	assert.Equal(t, "nmtrl", sc.ClientID)
	assert.Equal(t, 3, sc.Producer.Retry.Max)

	_, err = NewSaramaConfig(&config.KafkaConfig{Version: "not-a-version"})
	assert.Error(t, err)

	_, err = NewEventPublisher(&config.KafkaConfig{Topic: "t"}, nil)
	assert.Error(t, err)
	_, err = NewEventPublisher(&config.KafkaConfig{Brokers: []string{"localhost:9092"}}, nil)
	assert.Error(t, err)
}

func TestEnvelope_DecodeUnknownKind(t *testing.T) {
	_, err := (&message.Envelope{Kind: "nope"}).Decode()
	assert.Error(t, err)
}
