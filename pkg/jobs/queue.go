// Package jobs implements the in-process queue behind the notification
// dispatcher: buffered fan-out to a worker pool with bounded retry.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Envelope wraps one queued notification with its delivery bookkeeping.
type Envelope[T any] struct {
	ID       string
	Kind     string
	Payload  T
	Attempt  int
	Enqueued time.Time
}

// HandlerFunc delivers one envelope. A returned error schedules a retry
// until MaxAttempts is exhausted.
type HandlerFunc[T any] func(context.Context, Envelope[T]) error

// Options tunes the delivery worker pool.
type Options struct {
	Workers     int
	Buffer      int
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      *zap.Logger
}

// Queue fans envelopes out to a fixed pool of delivery workers. It is
// deliberately in-process; a lost notification is recoverable from the
// session record, so durability is not worth an external broker here.
type Queue[T any] struct {
	name   string
	handle HandlerFunc[T]
	opts   Options

	inbox   chan Envelope[T]
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// New builds a queue; zero option values fall back to defaults.
func New[T any](name string, handle HandlerFunc[T], opts Options) *Queue[T] {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Buffer <= 0 {
		opts.Buffer = opts.Workers * 4
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Queue[T]{
		name:   name,
		handle: handle,
		opts:   opts,
		inbox:  make(chan Envelope[T], opts.Buffer),
	}
}

// Start launches the workers. Calling Start twice is a no-op.
func (q *Queue[T]) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.run()
	}
	q.running = true
	q.opts.Logger.Info("delivery queue started",
		zap.String("queue", q.name),
		zap.Int("workers", q.opts.Workers))
}

// Stop cancels the workers and waits for them to exit.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.opts.Logger.Info("delivery queue stopped", zap.String("queue", q.name))
}

// Enqueue hands an envelope to the pool, blocking while the buffer is
// full. Fails when the queue is not running.
func (q *Queue[T]) Enqueue(e Envelope[T]) error {
	q.mu.Lock()
	ctx, running := q.ctx, q.running
	q.mu.Unlock()

	if !running {
		return fmt.Errorf("queue %s is not running", q.name)
	}
	if e.Enqueued.IsZero() {
		e.Enqueued = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	case q.inbox <- e:
		return nil
	}
}

func (q *Queue[T]) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case e := <-q.inbox:
			e.Attempt++
			if err := q.handle(q.ctx, e); err != nil {
				q.retry(e, err)
			}
		}
	}
}

func (q *Queue[T]) retry(e Envelope[T], cause error) {
	if e.Attempt >= q.opts.MaxAttempts {
		q.opts.Logger.Error("delivery abandoned",
			zap.String("queue", q.name),
			zap.String("id", e.ID),
			zap.String("kind", e.Kind),
			zap.Int("attempts", e.Attempt),
			zap.Error(cause))
		return
	}
	q.opts.Logger.Warn("delivery failed, will retry",
		zap.String("queue", q.name),
		zap.String("id", e.ID),
		zap.String("kind", e.Kind),
		zap.Int("attempt", e.Attempt),
		zap.Error(cause))

	go func() {
		timer := time.NewTimer(q.opts.RetryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
		case <-timer.C:
			if err := q.Enqueue(e); err != nil {
				q.opts.Logger.Error("failed to requeue delivery",
					zap.String("queue", q.name),
					zap.String("id", e.ID),
					zap.Error(err))
			}
		}
	}()
}
