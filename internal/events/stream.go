package events

import (
	"context"
	"log/slog"
	"sync"
)

// Emitter receives events from a job. Implementations must be safe to call
// from the job's worker goroutine while being read elsewhere.
type Emitter interface {
	Emit(Event)
}

type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

// Handler consumes events on the reading side of a Stream.
type Handler interface {
	Handle(ctx context.Context, e Event) error
}

type HandlerFunc func(ctx context.Context, e Event) error

func (f HandlerFunc) Handle(ctx context.Context, e Event) error { return f(ctx, e) }

// Stream decouples the producing job from its consumers with a buffered
// channel. Emit blocks when the buffer is full so no event is lost. Only
// the producer may call Close.
type Stream struct {
	ch     chan Event
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

func NewStream(buffer int) *Stream {
	if buffer < 0 {
		buffer = 0
	}
	return &Stream{ch: make(chan Event, buffer)}
}

func (s *Stream) Emit(e Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	s.ch <- e
}

func (s *Stream) Events() <-chan Event {
	return s.ch
}

func (s *Stream) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// Dispatch drains events into every handler until the channel is closed.
// Handler errors are logged and do not stop delivery to other handlers.
// Once ctx is done the remaining events are drained without handling so the
// producer never blocks.
func Dispatch(ctx context.Context, events <-chan Event, logger *slog.Logger, handlers ...Handler) {
	for e := range events {
		if ctx.Err() != nil {
			continue
		}
		for _, h := range handlers {
			if err := h.Handle(ctx, e); err != nil {
				logger.Warn("event handler failed", "job_id", e.JobID, "type", e.Type, "error", err)
			}
		}
	}
}

// LogHandler writes every event as a structured log line.
func LogHandler(logger *slog.Logger) Handler {
	logger = logger.With("component", "events")
	return HandlerFunc(func(ctx context.Context, e Event) error {
		attrs := []any{"job_id", e.JobID, "type", e.Type}
		switch e.Type {
		case TypeLog:
			logger.Info(e.Message, attrs...)
		case TypeProgress:
			logger.Debug("progress", append(attrs, "percent", e.Progress)...)
		case TypePartial:
			logger.Info("record accepted", append(attrs, "asin", e.Record.ASIN)...)
		case TypeFinished:
			logger.Info("job finished", append(attrs, "records", len(e.Records))...)
		case TypeStopped:
			logger.Info("job stopped", attrs...)
		case TypeError:
			logger.Error("job failed", append(attrs, "error", e.Error)...)
		}
		return nil
	})
}
