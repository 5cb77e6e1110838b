package queue

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v6"
	"github.com/Laisky/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
	rlibs "github.com/Laisky/laisky-blog-moderation/library/db/redis"
)

// Redis is a reliable list queue: workers move a task from the pending list
// into a processing list and only remove it after the handler returns, so a
// crashed worker's task survives until Recover.
type Redis struct {
	db   *rlibs.DB
	opts options
}

// NewRedis creates a queue on db.
func NewRedis(db *rlibs.DB, opts ...Option) *Redis {
	return &Redis{
		db:   db,
		opts: buildOptions("queue_redis", opts),
	}
}

// Publish implements Queue.
func (q *Redis) Publish(ctx context.Context, task *model.ModerationTask) error {
	if err := task.Validate(); err != nil {
		return errors.Wrap(err, "publish")
	}
	if err := q.db.AddModerationTask(ctx, task); err != nil {
		return errors.Wrapf(err, "publish task for comment %s", task.CommentID)
	}

	publishCount.WithLabelValues("redis").Inc()
	return nil
}

// DeadLetter implements DeadLetterer.
func (q *Redis) DeadLetter(ctx context.Context, task *model.ModerationTask, reason error) error {
	d := &rlibs.ModerationDelivery{Task: task, EnqueuedAt: gutils.Clock.GetUTCNow()}
	if reason != nil {
		d.LastError = reason.Error()
	}

	return q.db.DeadLetterModerationTask(ctx, "", d)
}

// Recover moves tasks orphaned in the processing list back to pending.
// Call it before Run, while no other worker process is consuming.
func (q *Redis) Recover(ctx context.Context) (int, error) {
	n, err := q.db.RecoverModerationTasks(ctx)
	if err != nil {
		return n, errors.Wrap(err, "recover tasks")
	}
	if n > 0 {
		q.opts.logger.Info("recovered unacknowledged tasks", zap.Int("n", n))
	}

	return n, nil
}

// DeadLetters lists up to limit dead-lettered tasks.
func (q *Redis) DeadLetters(ctx context.Context, limit int64) ([]*Delivery, error) {
	raws, err := q.db.DeadModerationTasks(ctx, limit)
	if err != nil {
		return nil, err
	}

	deliveries := make([]*Delivery, 0, len(raws))
	for _, d := range raws {
		deliveries = append(deliveries, &Delivery{Task: d.Task, Attempts: d.Attempts, LastError: d.LastError})
	}
	return deliveries, nil
}

// Stats implements Inspector.
func (q *Redis) Stats(ctx context.Context) (Stats, error) {
	pending, processing, dead, err := q.db.ModerationQueueLens(ctx)
	if err != nil {
		return Stats{}, errors.Wrap(err, "queue lengths")
	}

	return Stats{Pending: pending, Processing: processing, Dead: dead}, nil
}

// Run implements Consumer. It returns nil once ctx is done.
func (q *Redis) Run(ctx context.Context, handler Handler) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.opts.workers; i++ {
		g.Go(func() error {
			q.work(gctx, handler)
			return nil
		})
	}

	return g.Wait()
}

func (q *Redis) work(ctx context.Context, handler Handler) {
	for ctx.Err() == nil {
		raw, d, err := q.db.ClaimModerationTask(ctx, q.opts.blockTimeout)
		switch {
		case err == nil:
			q.process(ctx, raw, d, handler)
		case errors.Is(err, rlibs.ErrNoTask), ctx.Err() != nil:
		case raw != "":
			// claimed but undecodable, nothing can ever handle it
			q.opts.logger.Error("drop corrupt task", zap.String("raw", raw), zap.Error(err))
			if derr := q.db.DeadLetterModerationTask(context.WithoutCancel(ctx), raw,
				&rlibs.ModerationDelivery{LastError: err.Error(), EnqueuedAt: gutils.Clock.GetUTCNow()}); derr != nil {
				q.opts.logger.Error("dead-letter corrupt task", zap.Error(derr))
			}
		default:
			q.opts.logger.Warn("claim task", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(q.opts.blockTimeout):
			}
		}
	}
}

func (q *Redis) process(ctx context.Context, raw string, rd *rlibs.ModerationDelivery, handler Handler) {
	herr := safeHandle(ctx, handler, rd.Task)
	if herr != nil && ctx.Err() != nil {
		// shutting down, Recover puts the task back on the next start
		return
	}

	d := &Delivery{Task: rd.Task, Attempts: rd.Attempts, LastError: rd.LastError}
	result := decide(d, herr, q.opts.maxDeliveries)
	rd.Attempts, rd.LastError = d.Attempts, d.LastError
	deliveryCount.WithLabelValues("redis", string(result)).Inc()

	// bookkeeping must finish even when shutdown starts right now
	bgCtx := context.WithoutCancel(ctx)
	var err error
	switch result {
	case outcomeAck:
		err = q.db.AckModerationTask(bgCtx, raw)
	case outcomeRetry:
		q.opts.logger.Warn("task failed, redeliver",
			zap.String("comment_id", rd.Task.CommentID),
			zap.Int("attempts", rd.Attempts),
			zap.Error(herr))
		err = q.db.RetryModerationTask(bgCtx, raw, rd)
	case outcomeDead:
		q.opts.logger.Error("task dead-lettered",
			zap.String("comment_id", rd.Task.CommentID),
			zap.Int("attempts", rd.Attempts),
			zap.Error(herr))
		err = q.db.DeadLetterModerationTask(bgCtx, raw, rd)
	}
	if err != nil {
		q.opts.logger.Error("settle task",
			zap.String("comment_id", rd.Task.CommentID),
			zap.String("outcome", string(result)),
			zap.Error(err))
	}
}
