// Package queue carries moderation tasks between the submitter and the workers
// with at-least-once delivery.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/workflow"
	"github.com/Laisky/laisky-blog-moderation/library/log"
)

// Handler processes one delivery. A nil return acknowledges the task,
// an error makes the queue deliver it again.
type Handler func(ctx context.Context, task *model.ModerationTask) error

// Queue publishes tasks.
type Queue interface {
	Publish(ctx context.Context, task *model.ModerationTask) error
}

// DeadLetterer takes a task out of circulation.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, task *model.ModerationTask, reason error) error
}

// Consumer delivers tasks to handler until ctx is done.
type Consumer interface {
	Run(ctx context.Context, handler Handler) error
}

// Stats is a snapshot of queue depth.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Dead       int64 `json:"dead"`
}

// Inspector exposes queue depth and dead letters for operators.
type Inspector interface {
	Stats(ctx context.Context) (Stats, error)
	DeadLetters(ctx context.Context, limit int64) ([]*Delivery, error)
}

// Delivery is a task with its delivery bookkeeping.
type Delivery struct {
	Task      *model.ModerationTask
	Attempts  int
	LastError string
}

// ErrPermanent marks handler errors that retrying cannot fix.
var ErrPermanent = errors.New("permanent failure")

// isPermanent reports whether err must skip redelivery.
func isPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) ||
		errors.Is(err, workflow.ErrInvalidTransition)
}

const (
	defaultWorkers       = 4
	defaultMaxDeliveries = 5
	defaultBlockTimeout  = time.Second
)

type options struct {
	workers       int
	maxDeliveries int
	blockTimeout  time.Duration
	logger        logSDK.Logger
}

// Option configures a queue.
type Option func(*options)

// WithWorkers sets the number of concurrent handlers.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithMaxDeliveries sets how many failed runs a task gets before it is dead-lettered.
func WithMaxDeliveries(n int) Option {
	return func(o *options) {
		o.maxDeliveries = n
	}
}

// WithBlockTimeout sets how long a worker waits for a task before re-checking ctx.
func WithBlockTimeout(d time.Duration) Option {
	return func(o *options) {
		o.blockTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger logSDK.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(name string, opts []Option) options {
	o := options{
		workers:       defaultWorkers,
		maxDeliveries: defaultMaxDeliveries,
		blockTimeout:  defaultBlockTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.workers <= 0 {
		o.workers = defaultWorkers
	}
	if o.maxDeliveries <= 0 {
		o.maxDeliveries = defaultMaxDeliveries
	}
	if o.blockTimeout <= 0 {
		o.blockTimeout = defaultBlockTimeout
	}
	if o.logger == nil {
		o.logger = log.Logger.Named(name)
	}

	return o
}

type outcome string

const (
	outcomeAck   outcome = "ack"
	outcomeRetry outcome = "retry"
	outcomeDead  outcome = "dead"
)

// decide bumps the attempt count of a failed delivery and picks retry or dead letter.
func decide(d *Delivery, herr error, maxDeliveries int) outcome {
	if herr == nil {
		return outcomeAck
	}

	d.Attempts++
	d.LastError = herr.Error()
	if isPermanent(herr) || d.Attempts >= maxDeliveries {
		return outcomeDead
	}
	return outcomeRetry
}

// safeHandle turns a handler panic into an error so the worker survives.
func safeHandle(ctx context.Context, handler Handler, task *model.ModerationTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("handler panic: %s", fmt.Sprint(r))
		}
	}()

	return handler(ctx, task)
}
