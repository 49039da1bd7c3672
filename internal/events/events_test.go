package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/amazon-product-tracker/internal/metrics"
	"github.com/maltedev/amazon-product-tracker/internal/models"
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

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTerminal(t *testing.T) {
	assert.True(t, TypeStopped.Terminal())
	assert.True(t, TypeFinished.Terminal())
	assert.True(t, TypeError.Terminal())
	assert.False(t, TypeLog.Terminal())
	assert.False(t, TypeProgress.Terminal())
	assert.False(t, TypePartial.Terminal())
}

func TestConstructorsCopyRecords(t *testing.T) {
	rec := models.ProductRecord{ASIN: "B000000001", Title: "first"}
	partial := Partial("job", rec)
	rec.Title = "changed"
	assert.Equal(t, "first", partial.Record.Title)

	records := []models.ProductRecord{{ASIN: "B000000001"}}
	finished := Finished("job", records)
	records[0].ASIN = "B000000002"
	assert.Equal(t, "B000000001", finished.Records[0].ASIN)
	assert.Equal(t, 100, finished.Progress)

	failed := Failed("job", errors.New("boom"))
	assert.Equal(t, TypeError, failed.Type)
	assert.Equal(t, "boom", failed.Error)
}

func TestStreamDeliversInOrder(t *testing.T) {
	s := NewStream(2)

	var got []Type
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		Dispatch(context.Background(), s.Events(), discard(), HandlerFunc(func(ctx context.Context, e Event) error {
			got = append(got, e.Type)
			return nil
		}))
	}()

	s.Emit(Log("job", "info", "starting"))
	s.Emit(Progress("job", 50))
	s.Emit(Partial("job", models.ProductRecord{ASIN: "B000000001"}))
	s.Emit(Finished("job", nil))
	s.Close()
	wg.Wait()

	assert.Equal(t, []Type{TypeLog, TypeProgress, TypePartial, TypeFinished}, got)
}

func TestStreamEmitAfterClose(t *testing.T) {
	s := NewStream(1)
	s.Close()
	s.Close()

	assert.NotPanics(t, func() { s.Emit(Stopped("job")) })
	_, ok := <-s.Events()
	assert.False(t, ok)
}

func TestDispatchContinuesAfterHandlerError(t *testing.T) {
	s := NewStream(3)
	s.Emit(Log("job", "info", "a"))
	s.Emit(Log("job", "info", "b"))
	s.Close()

	calls := 0
	failing := HandlerFunc(func(ctx context.Context, e Event) error { return errors.New("down") })
	counting := HandlerFunc(func(ctx context.Context, e Event) error {
		calls++
		return nil
	})

	Dispatch(context.Background(), s.Events(), discard(), failing, counting)
	assert.Equal(t, 2, calls)
}

func TestDispatchDrainsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewStream(2)
	s.Emit(Log("job", "info", "a"))
	s.Emit(Stopped("job"))
	s.Close()

	calls := 0
	Dispatch(ctx, s.Events(), discard(), HandlerFunc(func(ctx context.Context, e Event) error {
		calls++
		return nil
	}))
	assert.Zero(t, calls)
}

func TestRedisPublisher(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes event to stream", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		reg := prometheus.NewRegistry()
		m := metrics.New(reg)
		p := NewRedisPublisher(mockRedis, RedisPublisherConfig{MaxLen: 1000}, discard(), m)

		rec := models.ProductRecord{ASIN: "B000000001", Title: "Mouse"}
		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			if args.Stream != DefaultStream || !args.Approx || args.MaxLen != 1000 {
				return false
			}
			values := args.Values.(map[string]interface{})
			if values["type"] != "partial" || values["job_id"] != "job-1" {
				return false
			}
			var decoded Event
			if err := json.Unmarshal([]byte(values["data"].(string)), &decoded); err != nil {
				return false
			}
			return decoded.Record != nil && decoded.Record.ASIN == "B000000001"
		})).Return(nil).Once()

		err := p.Handle(ctx, Partial("job-1", rec))
		require.NoError(t, err)
		mockRedis.AssertExpectations(t)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublishedTotal.WithLabelValues("partial", "success")))
	})

	t.Run("redis failure is returned and counted", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		reg := prometheus.NewRegistry()
		m := metrics.New(reg)
		p := NewRedisPublisher(mockRedis, RedisPublisherConfig{Stream: "custom"}, discard(), m)

		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return args.Stream == "custom" && args.MaxLen == 0
		})).Return(errors.New("connection refused")).Once()

		err := p.Handle(ctx, Stopped("job-1"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
		assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublishedTotal.WithLabelValues("stopped", "failure")))
	})

	t.Run("progress can be skipped", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		p := NewRedisPublisher(mockRedis, RedisPublisherConfig{SkipProgress: true}, discard(), nil)

		require.NoError(t, p.Handle(ctx, Progress("job-1", 10)))
		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
	})
}
