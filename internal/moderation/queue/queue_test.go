package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/workflow"
	rlibs "github.com/Laisky/laisky-blog-moderation/library/db/redis"
)

type recorder struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(task *model.ModerationTask, call int) error
}

func newRecorder(fn func(task *model.ModerationTask, call int) error) *recorder {
	return &recorder{calls: make(map[string]int), fn: fn}
}

func (r *recorder) handle(_ context.Context, task *model.ModerationTask) error {
	r.mu.Lock()
	r.calls[task.CommentID]++
	call := r.calls[task.CommentID]
	r.mu.Unlock()

	if r.fn == nil {
		return nil
	}
	return r.fn(task, call)
}

func (r *recorder) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

func runConsumer(t *testing.T, c Consumer, h Handler) (stop func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, h) }()

	return func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("consumer did not stop")
		}
	}
}

func invalidTransition() error {
	return errors.Wrap(&workflow.InvalidTransitionError{
		Transition: workflow.TransitionAccept,
		From:       workflow.StateSpam,
	}, "apply forced accept")
}

func TestDecide(t *testing.T) {
	d := &Delivery{}
	require.Equal(t, outcomeAck, decide(d, nil, 3))
	require.Zero(t, d.Attempts)

	require.Equal(t, outcomeRetry, decide(d, errors.New("timeout"), 3))
	require.Equal(t, outcomeRetry, decide(d, errors.New("timeout"), 3))
	require.Equal(t, outcomeDead, decide(d, errors.New("timeout"), 3))
	require.Equal(t, 3, d.Attempts)
	require.Equal(t, "timeout", d.LastError)

	require.Equal(t, outcomeDead, decide(&Delivery{}, invalidTransition(), 3))
	require.Equal(t, outcomeDead, decide(&Delivery{}, errors.Wrap(ErrPermanent, "bad payload"), 3))
}

func TestMemoryDelivers(t *testing.T) {
	q := NewMemory(WithWorkers(3))
	rec := newRecorder(nil)
	stop := runConsumer(t, q, rec.handle)
	defer stop()

	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		require.NoError(t, q.Publish(context.Background(), &model.ModerationTask{CommentID: id}))
	}

	require.Eventually(t, func() bool {
		return rec.count("c1") == 1 && rec.count("c2") == 1 &&
			rec.count("c3") == 1 && rec.count("c4") == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.Zero(t, q.Len())
}

func TestMemoryRedeliversFailures(t *testing.T) {
	q := NewMemory(WithWorkers(1), WithMaxDeliveries(3))
	rec := newRecorder(func(task *model.ModerationTask, call int) error {
		switch task.CommentID {
		case "flaky":
			if call < 2 {
				return errors.New("classifier timeout")
			}
			return nil
		case "broken":
			return errors.New("always down")
		case "invalid":
			return invalidTransition()
		case "panics":
			panic("boom")
		}
		return nil
	})
	stop := runConsumer(t, q, rec.handle)
	defer stop()

	for _, id := range []string{"flaky", "broken", "invalid", "panics"} {
		require.NoError(t, q.Publish(context.Background(), &model.ModerationTask{CommentID: id}))
	}

	require.Eventually(t, func() bool {
		stats, err := q.Stats(context.Background())
		return err == nil && stats.Dead == 3
	}, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, 2, rec.count("flaky"))
	require.Equal(t, 3, rec.count("broken"))
	require.Equal(t, 1, rec.count("invalid"), "invalid transitions are not retried")
	require.Equal(t, 3, rec.count("panics"))

	deliveries, err := q.DeadLetters(context.Background(), 0)
	require.NoError(t, err)
	dead := map[string]*Delivery{}
	for _, d := range deliveries {
		dead[d.Task.CommentID] = d
	}
	require.Equal(t, 3, dead["broken"].Attempts)
	require.Equal(t, "always down", dead["broken"].LastError)
	require.Equal(t, 1, dead["invalid"].Attempts)
	require.Contains(t, dead["panics"].LastError, "boom")
}

func TestMemoryPublishValidates(t *testing.T) {
	q := NewMemory()
	require.Error(t, q.Publish(context.Background(), &model.ModerationTask{}))
	require.Error(t, q.Publish(context.Background(), nil))

	require.NoError(t, q.DeadLetter(context.Background(), &model.ModerationTask{CommentID: "c1"}, errors.New("too many hops")))
	dead, err := q.DeadLetters(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	require.Equal(t, "too many hops", dead[0].LastError)
}

func newRedisQueue(t *testing.T, opts ...Option) (*Redis, *rlibs.DB) {
	t.Helper()

	srv := miniredis.RunT(t)
	db := rlibs.NewDB(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = db.Close() })

	opts = append([]Option{WithBlockTimeout(50 * time.Millisecond)}, opts...)
	return NewRedis(db, opts...), db
}

func TestRedisDeliversAndAcks(t *testing.T) {
	q, db := newRedisQueue(t, WithWorkers(2))
	rec := newRecorder(nil)

	ctx := context.Background()
	task := &model.ModerationTask{
		CommentID: "c1",
		ReviewURL: "https://blog.laisky.com/admin/comment/review/c1",
		Context:   model.AuthorContext{UserIP: "1.2.3.4"},
	}
	require.NoError(t, q.Publish(ctx, task))
	require.NoError(t, q.Publish(ctx, &model.ModerationTask{CommentID: "c2"}))

	var got atomic.Value
	stop := runConsumer(t, q, func(ctx context.Context, tk *model.ModerationTask) error {
		if tk.CommentID == "c1" {
			got.Store(tk)
		}
		return rec.handle(ctx, tk)
	})

	require.Eventually(t, func() bool {
		return rec.count("c1") == 1 && rec.count("c2") == 1
	}, 2*time.Second, 5*time.Millisecond)
	stop()

	require.True(t, task.SamePayload(got.Load().(*model.ModerationTask)))

	pending, processing, dead, err := db.ModerationQueueLens(ctx)
	require.NoError(t, err)
	require.Zero(t, pending+processing+dead)
}

func TestRedisRetryAndDeadLetter(t *testing.T) {
	q, _ := newRedisQueue(t, WithWorkers(1), WithMaxDeliveries(2))
	rec := newRecorder(func(task *model.ModerationTask, call int) error {
		switch task.CommentID {
		case "broken":
			return errors.New("always down")
		case "invalid":
			return invalidTransition()
		}
		return nil
	})

	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, &model.ModerationTask{CommentID: "broken"}))
	require.NoError(t, q.Publish(ctx, &model.ModerationTask{CommentID: "invalid"}))

	stop := runConsumer(t, q, rec.handle)
	require.Eventually(t, func() bool {
		dead, err := q.DeadLetters(ctx, 10)
		return err == nil && len(dead) == 2
	}, 2*time.Second, 5*time.Millisecond)
	stop()

	require.Equal(t, 2, rec.count("broken"))
	require.Equal(t, 1, rec.count("invalid"))

	require.NoError(t, q.DeadLetter(ctx, &model.ModerationTask{CommentID: "looping"}, errors.New("too many hops")))
	dead, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 3)
	require.Equal(t, "looping", dead[2].Task.CommentID)
	require.Equal(t, "too many hops", dead[2].LastError)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, Stats{Dead: 3}, stats)
}

func TestRedisRecover(t *testing.T) {
	q, db := newRedisQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, &model.ModerationTask{CommentID: "c1"}))
	// simulate a worker that claimed the task and died
	_, _, err := db.ClaimModerationTask(ctx, 50*time.Millisecond)
	require.NoError(t, err)

	n, err := q.Recover(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rec := newRecorder(nil)
	stop := runConsumer(t, q, rec.handle)
	defer stop()
	require.Eventually(t, func() bool { return rec.count("c1") == 1 }, 2*time.Second, 5*time.Millisecond)
}
