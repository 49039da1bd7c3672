package database

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/amazon-product-tracker/internal/metrics"
)

type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1234567890-0")
	}
	return cmd
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, event *OutboxEvent, err error) error {
	args := m.Called(ctx, event, err)
	return args.Error(0)
}

func newRunEvent(runID string) *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: AggregateRun,
		AggregateID:   runID,
		EventType:     EventRunArchived,
		Payload:       json.RawMessage(`{"run_id":"` + runID + `","products":2}`),
		TargetStream:  DefaultRunStream,
		CreatedAt:     time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC),
	}
}

func newTestRelay(r *MockRedisClient, o *MockOutboxRepository, m *metrics.Metrics) *Relay {
	return NewRelay(o, r, RelayConfig{BatchSize: 10, PollInterval: time.Hour}, discard(), m)
}

func TestRelay_ProcessEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes and marks processed", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		reg := metrics.New(prometheus.NewRegistry())
		relay := newTestRelay(mockRedis, mockOutbox, reg)

		events := []*OutboxEvent{newRunEvent("run-1"), newRunEvent("run-2")}
		mockOutbox.On("GetPending", ctx, 10).Return(events, nil)
		for _, event := range events {
			mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
				return args.Stream == event.TargetStream &&
					args.Values.(map[string]any)["type"] == event.EventType &&
					args.Values.(map[string]any)["aggregate_id"] == event.AggregateID
			})).Return(nil)
			mockOutbox.On("MarkProcessed", ctx, event.ID).Return(nil)
		}

		n, err := relay.processEvents(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
		assert.Equal(t, 2.0, testutil.ToFloat64(reg.EventsPublishedTotal.WithLabelValues(EventRunArchived, "success")))
	})

	t.Run("marks failed on publish error", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		reg := metrics.New(prometheus.NewRegistry())
		relay := newTestRelay(mockRedis, mockOutbox, reg)

		event := newRunEvent("run-1")
		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockRedis.On("XAdd", ctx, mock.Anything).Return(errors.New("redis connection failed"))
		mockOutbox.On("MarkFailed", ctx, event, mock.MatchedBy(func(err error) bool {
			return err.Error() == "failed to publish to redis: redis connection failed"
		})).Return(nil)

		n, err := relay.processEvents(ctx)
		assert.NoError(t, err)
		assert.Zero(t, n)

		mockOutbox.AssertExpectations(t)
		mockOutbox.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
		assert.Equal(t, 1.0, testutil.ToFloat64(reg.EventsPublishedTotal.WithLabelValues(EventRunArchived, "failure")))
	})

	t.Run("empty batch", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockRedis, mockOutbox, nil)

		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{}, nil)

		n, err := relay.processEvents(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
	})

	t.Run("continues after individual failure", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockRedis, mockOutbox, nil)

		events := []*OutboxEvent{newRunEvent("run-1"), newRunEvent("run-2")}
		mockOutbox.On("GetPending", ctx, 10).Return(events, nil)

		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return args.Values.(map[string]any)["aggregate_id"] == "run-1"
		})).Return(errors.New("redis error"))
		mockOutbox.On("MarkFailed", ctx, events[0], mock.Anything).Return(nil)

		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return args.Values.(map[string]any)["aggregate_id"] == "run-2"
		})).Return(nil)
		mockOutbox.On("MarkProcessed", ctx, events[1].ID).Return(nil)

		n, err := relay.processEvents(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("invalid payload is never published", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockRedis, mockOutbox, nil)

		event := newRunEvent("run-1")
		event.Payload = json.RawMessage(`{broken`)
		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockOutbox.On("MarkFailed", ctx, event, mock.Anything).Return(nil)

		_, err := relay.processEvents(ctx)
		require.NoError(t, err)
		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("returns fetch errors", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockRedis, mockOutbox, nil)

		mockOutbox.On("GetPending", ctx, 10).Return(nil, errors.New("db gone"))

		_, err := relay.processEvents(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db gone")
	})
}

func TestRelay_StreamEnvelope(t *testing.T) {
	ctx := context.Background()
	mockRedis := new(MockRedisClient)
	mockOutbox := new(MockOutboxRepository)
	relay := newTestRelay(mockRedis, mockOutbox, nil)

	event := newRunEvent("run-7")
	event.RetryCount = 2

	var captured *redis.XAddArgs
	mockRedis.On("XAdd", ctx, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(1).(*redis.XAddArgs)
	}).Return(nil)

	require.NoError(t, relay.publish(ctx, event))
	require.NotNil(t, captured)

	assert.Equal(t, DefaultRunStream, captured.Stream)
	assert.Equal(t, event.ID.String(), captured.Values.(map[string]any)["original_id"])
	assert.Equal(t, AggregateRun, captured.Values.(map[string]any)["aggregate_type"])
	assert.Equal(t, "1741953600000000000", captured.Values.(map[string]any)["timestamp"])

	var envelope streamEnvelope
	require.NoError(t, json.Unmarshal([]byte(captured.Values.(map[string]any)["data"].(string)), &envelope))
	assert.Equal(t, EventRunArchived, envelope.Type)
	assert.Equal(t, "run-7", envelope.AggregateID)
	assert.Equal(t, "2025-03-14T12:00:00Z", envelope.Timestamp)
	assert.Equal(t, "amazon-product-tracker", envelope.Metadata.Source)
	assert.Equal(t, 2, envelope.Metadata.RetryCount)
	assert.JSONEq(t, `{"run_id":"run-7","products":2}`, string(envelope.Payload))
}

func TestRelay_StartStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mockRedis := new(MockRedisClient)
	mockOutbox := new(MockOutboxRepository)
	relay := newTestRelay(mockRedis, mockOutbox, nil)

	mockOutbox.On("GetPending", mock.Anything, 10).Run(func(mock.Arguments) {
		cancel()
	}).Return([]*OutboxEvent{}, nil).Once()

	err := relay.Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	mockOutbox.AssertExpectations(t)
}
