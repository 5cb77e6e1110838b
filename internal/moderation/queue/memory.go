package queue

import (
	"context"
	"sync"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
)

// Memory is a process-local queue with the same redelivery rules as Redis.
// Tasks are lost on exit, use it for dry runs and tests.
type Memory struct {
	opts options

	mu      sync.Mutex
	pending []*Delivery
	dead    []*Delivery
	// wake has capacity one and signals that pending grew
	wake chan struct{}
}

// NewMemory creates an empty in-memory queue.
func NewMemory(opts ...Option) *Memory {
	return &Memory{
		opts: buildOptions("queue_memory", opts),
		wake: make(chan struct{}, 1),
	}
}

func (q *Memory) push(d *Delivery) {
	q.mu.Lock()
	q.pending = append(q.pending, d)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Publish implements Queue.
func (q *Memory) Publish(_ context.Context, task *model.ModerationTask) error {
	if err := task.Validate(); err != nil {
		return errors.Wrap(err, "publish")
	}

	q.push(&Delivery{Task: task})
	publishCount.WithLabelValues("memory").Inc()
	return nil
}

// DeadLetter implements DeadLetterer.
func (q *Memory) DeadLetter(_ context.Context, task *model.ModerationTask, reason error) error {
	d := &Delivery{Task: task}
	if reason != nil {
		d.LastError = reason.Error()
	}

	q.mu.Lock()
	q.dead = append(q.dead, d)
	q.mu.Unlock()
	return nil
}

func (q *Memory) pop(ctx context.Context) (*Delivery, error) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			d := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			remaining := len(q.pending)
			q.mu.Unlock()

			// pass the signal on to another idle worker
			if remaining > 0 {
				select {
				case q.wake <- struct{}{}:
				default:
				}
			}
			return d, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		}
	}
}

// Run implements Consumer. It returns nil once ctx is done.
func (q *Memory) Run(ctx context.Context, handler Handler) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.opts.workers; i++ {
		g.Go(func() error {
			for {
				d, err := q.pop(gctx)
				if err != nil {
					return nil //nolint:nilerr // ctx done
				}

				q.process(gctx, d, handler)
			}
		})
	}

	return g.Wait()
}

func (q *Memory) process(ctx context.Context, d *Delivery, handler Handler) {
	herr := safeHandle(ctx, handler, d.Task)
	if herr != nil && ctx.Err() != nil {
		// shutting down, keep the task for the next run
		q.push(d)
		return
	}

	result := decide(d, herr, q.opts.maxDeliveries)
	deliveryCount.WithLabelValues("memory", string(result)).Inc()

	switch result {
	case outcomeRetry:
		q.opts.logger.Warn("task failed, redeliver",
			zap.String("comment_id", d.Task.CommentID),
			zap.Int("attempts", d.Attempts),
			zap.Error(herr))
		q.push(d)
	case outcomeDead:
		q.opts.logger.Error("task dead-lettered",
			zap.String("comment_id", d.Task.CommentID),
			zap.Int("attempts", d.Attempts),
			zap.Error(herr))
		q.mu.Lock()
		q.dead = append(q.dead, d)
		q.mu.Unlock()
	}
}

// Stats implements Inspector. Tasks being handled are not tracked.
func (q *Memory) Stats(context.Context) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Pending: int64(len(q.pending)), Dead: int64(len(q.dead))}, nil
}

// Len returns the number of tasks waiting.
func (q *Memory) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// DeadLetters implements Inspector. limit <= 0 returns all.
func (q *Memory) DeadLetters(_ context.Context, limit int64) ([]*Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	dead := q.dead
	if limit > 0 && int64(len(dead)) > limit {
		dead = dead[:limit]
	}
	return append([]*Delivery(nil), dead...), nil
}
