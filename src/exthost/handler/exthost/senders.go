package exthost

import (
	"context"
	"reflect"
	"sync"

	exthosterrors "github.com/uber/exthost-broker/src/exthost/internal/errors"
	"go.uber.org/zap"
)

// latestSender pushes snapshots to the extension host from its own goroutine. Only the most recent pending
// snapshot is sent, and a snapshot equal to the last one delivered is skipped.
type latestSender[T any] struct {
	name   string
	send   func(ctx context.Context, v T) error
	logger *zap.SugaredLogger

	mu      sync.Mutex
	pending T
	has     bool
	wake    chan struct{}
}

func newLatestSender[T any](name string, logger *zap.SugaredLogger, send func(ctx context.Context, v T) error) *latestSender[T] {
	return &latestSender[T]{
		name:   name,
		send:   send,
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// offer replaces the pending snapshot with v. It never blocks.
func (s *latestSender[T]) offer(v T) {
	s.mu.Lock()
	s.pending, s.has = v, true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *latestSender[T]) take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.pending, s.has
	var zero T
	s.pending, s.has = zero, false
	return v, ok
}

func (s *latestSender[T]) run(ctx context.Context) {
	var (
		last      T
		delivered bool
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}

		v, ok := s.take()
		if !ok || (delivered && reflect.DeepEqual(last, v)) {
			continue
		}
		if err := s.send(ctx, v); err != nil {
			if exthosterrors.IsConnectionReplaced(err) || ctx.Err() != nil {
				return
			}
			s.logger.Warnw("pushing to extension host failed", zap.String("data", s.name), zap.Error(err))
			continue
		}
		last, delivered = v, true
	}
}

// queueSender pushes every offered value, in order, from its own goroutine.
type queueSender[T any] struct {
	name   string
	send   func(ctx context.Context, v T) error
	logger *zap.SugaredLogger

	mu    sync.Mutex
	queue []T
	wake  chan struct{}
}

func newQueueSender[T any](name string, logger *zap.SugaredLogger, send func(ctx context.Context, v T) error) *queueSender[T] {
	return &queueSender[T]{
		name:   name,
		send:   send,
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// offer appends v to the queue. It never blocks.
func (s *queueSender[T]) offer(v T) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *queueSender[T]) drain() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue
	s.queue = nil
	return q
}

func (s *queueSender[T]) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}

		for _, v := range s.drain() {
			if err := s.send(ctx, v); err != nil {
				if exthosterrors.IsConnectionReplaced(err) || ctx.Err() != nil {
					return
				}
				s.logger.Warnw("pushing to extension host failed", zap.String("data", s.name), zap.Error(err))
			}
		}
	}
}
