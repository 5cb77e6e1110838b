package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Laisky/errors/v2"
	gredis "github.com/Laisky/go-redis/v2"
	gutils "github.com/Laisky/go-utils/v6"
	"github.com/redis/go-redis/v9"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
)

// ErrNoTask is returned by ClaimModerationTask when nothing arrived before the timeout
var ErrNoTask = errors.New("no moderation task available")

// AddModerationTask adds a new moderation task to the pending queue.
//
// The pending list is never trimmed, every pushed task stays until a worker claims it.
func (db *DB) AddModerationTask(ctx context.Context, task *model.ModerationTask) error {
	payload, err := json.Marshal(&ModerationDelivery{
		Task:       task,
		EnqueuedAt: gutils.Clock.GetUTCNow(),
	})
	if err != nil {
		return errors.Wrap(err, "marshal delivery")
	}

	if err = db.rdb.RPush(ctx, KeyModerationPending, payload).Err(); err != nil {
		return errors.Wrap(err, "rpush")
	}

	return nil
}

// ClaimModerationTask atomically moves the oldest pending task into the processing list.
//
// raw is the exact list element, it must be passed back to Ack/Retry/DeadLetter.
func (db *DB) ClaimModerationTask(ctx context.Context, timeout time.Duration) (
	raw string, delivery *ModerationDelivery, err error) {
	raw, err = db.rdb.BLMove(ctx, KeyModerationPending, KeyModerationProcessing,
		"LEFT", "RIGHT", timeout).Result()
	if err != nil {
		if gredis.IsNil(err) {
			return "", nil, ErrNoTask
		}
		return "", nil, errors.Wrap(err, "blmove")
	}

	delivery = new(ModerationDelivery)
	if err = json.Unmarshal([]byte(raw), delivery); err != nil {
		return raw, nil, errors.Wrap(err, "unmarshal delivery")
	}
	if err = delivery.Task.Validate(); err != nil {
		return raw, nil, errors.Wrap(err, "invalid delivery")
	}

	return raw, delivery, nil
}

// AckModerationTask removes a finished task from the processing list
func (db *DB) AckModerationTask(ctx context.Context, raw string) error {
	if err := db.rdb.LRem(ctx, KeyModerationProcessing, 1, raw).Err(); err != nil {
		return errors.Wrap(err, "lrem")
	}

	return nil
}

// RetryModerationTask moves a claimed task back to pending with its attempt count bumped
func (db *DB) RetryModerationTask(ctx context.Context, raw string, delivery *ModerationDelivery) error {
	return db.moveClaimed(ctx, raw, delivery, KeyModerationPending)
}

// DeadLetterModerationTask moves a claimed task into the dead-letter list.
// raw may be empty for tasks that were never claimed.
func (db *DB) DeadLetterModerationTask(ctx context.Context, raw string, delivery *ModerationDelivery) error {
	return db.moveClaimed(ctx, raw, delivery, KeyModerationDead)
}

func (db *DB) moveClaimed(ctx context.Context, raw string, delivery *ModerationDelivery, dst string) error {
	payload, err := json.Marshal(delivery)
	if err != nil {
		return errors.Wrap(err, "marshal delivery")
	}

	if _, err = db.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if raw != "" {
			pipe.LRem(ctx, KeyModerationProcessing, 1, raw)
		}
		pipe.RPush(ctx, dst, payload)
		return nil
	}); err != nil {
		return errors.Wrapf(err, "move task to %s", dst)
	}

	return nil
}

// RecoverModerationTasks moves every task left in processing back to pending.
// Only call it when no worker is running, e.g. at startup.
func (db *DB) RecoverModerationTasks(ctx context.Context) (n int, err error) {
	for {
		_, err = db.rdb.LMove(ctx, KeyModerationProcessing, KeyModerationPending, "LEFT", "LEFT").Result()
		if err != nil {
			if gredis.IsNil(err) {
				return n, nil
			}
			return n, errors.Wrap(err, "lmove")
		}
		n++
	}
}

// ModerationQueueLens returns the lengths of the pending, processing and dead lists
func (db *DB) ModerationQueueLens(ctx context.Context) (pending, processing, dead int64, err error) {
	pipe := db.rdb.Pipeline()
	p := pipe.LLen(ctx, KeyModerationPending)
	r := pipe.LLen(ctx, KeyModerationProcessing)
	d := pipe.LLen(ctx, KeyModerationDead)
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, 0, 0, errors.Wrap(err, "llen")
	}

	return p.Val(), r.Val(), d.Val(), nil
}

// DeadModerationTasks lists up to limit dead-lettered deliveries, oldest first
func (db *DB) DeadModerationTasks(ctx context.Context, limit int64) ([]*ModerationDelivery, error) {
	raws, err := db.rdb.LRange(ctx, KeyModerationDead, 0, limit-1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "lrange")
	}

	deliveries := make([]*ModerationDelivery, 0, len(raws))
	for _, raw := range raws {
		d := new(ModerationDelivery)
		if err = json.Unmarshal([]byte(raw), d); err != nil {
			return nil, errors.Wrap(err, "unmarshal dead delivery")
		}
		deliveries = append(deliveries, d)
	}

	return deliveries, nil
}
