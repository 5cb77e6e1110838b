// Package moderation drives submitted comments through spam classification to
// human review.
//
// The Coordinator is the queue handler. Each delivery of a task does one
// step: classify and requeue, or notify the admins, or nothing. Concurrent
// deliveries of the same task are serialized by a per-comment lock and, as a
// second line, by compare-and-set saves in the store.
package moderation

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/lock"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/notify"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/queue"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/spam"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/store"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/workflow"
	"github.com/Laisky/laisky-blog-moderation/library/log"
)

// NotificationSubject is the subject of every review notification and email.
const NotificationSubject = "New comment posted"

const (
	branchMissing      = "missing"
	branchClassify     = "classify"
	branchNotify       = "notify"
	branchTerminal     = "terminal"
	branchConflict     = "conflict"
	branchRequeueLimit = "requeue_limit"
	branchFailed       = "failed"
)

// TransitionForScore maps a classifier score to the first transition to apply.
func TransitionForScore(score int) string {
	switch score {
	case model.ScoreBlatantSpam:
		return workflow.TransitionRejectSpam
	case model.ScoreHam:
		return workflow.TransitionAcceptHam
	default:
		return workflow.TransitionAccept
	}
}

// CoordinatorConfig holds the collaborators of a Coordinator.
type CoordinatorConfig struct {
	Store      store.CommentStore
	Classifier spam.Classifier
	Gateway    notify.Gateway
	Queue      queue.Queue
	// Locker defaults to an in-process keyed lock
	Locker lock.Locker
	// Photos is optional, without it notifications carry no attachment link
	Photos notify.PhotoLinker
	// AdminEmail is both sender and recipient of review emails
	AdminEmail string
	// MaxRequeues bounds self-requeues per task, 0 means unbounded
	MaxRequeues int
	Logger      logSDK.Logger
}

// Coordinator handles one moderation task delivery at a time per comment.
type Coordinator struct {
	store       store.CommentStore
	machine     *workflow.Machine
	classifier  spam.Classifier
	gateway     notify.Gateway
	queue       queue.Queue
	locker      lock.Locker
	photos      notify.PhotoLinker
	adminEmail  string
	maxRequeues int
	logger      logSDK.Logger
}

// NewCoordinator validates cfg and builds a Coordinator.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("comment store is required")
	case cfg.Classifier == nil:
		return nil, errors.New("spam classifier is required")
	case cfg.Gateway == nil:
		return nil, errors.New("notification gateway is required")
	case cfg.Queue == nil:
		return nil, errors.New("task queue is required")
	case cfg.AdminEmail == "":
		return nil, errors.New("admin email is required")
	case cfg.MaxRequeues < 0:
		return nil, errors.Errorf("max requeues must not be negative, got %d", cfg.MaxRequeues)
	}

	if cfg.Locker == nil {
		cfg.Locker = lock.NewKeyed()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Logger.Named("moderation_coordinator")
	}

	return &Coordinator{
		store:       cfg.Store,
		machine:     workflow.NewCommentMachine(),
		classifier:  cfg.Classifier,
		gateway:     cfg.Gateway,
		queue:       cfg.Queue,
		locker:      cfg.Locker,
		photos:      cfg.Photos,
		adminEmail:  cfg.AdminEmail,
		maxRequeues: cfg.MaxRequeues,
		logger:      cfg.Logger,
	}, nil
}

// Handle processes one delivery of task. It is safe to run again for the same task.
//
// Classifier, store and queue failures are returned so the queue redelivers.
// Notification failures are only logged. An invalid transition is returned
// wrapped and matches workflow.ErrInvalidTransition.
func (c *Coordinator) Handle(ctx context.Context, task *model.ModerationTask) (err error) {
	startAt := time.Now()
	branch := branchFailed
	defer func() {
		branchCount.WithLabelValues(branch).Inc()
		handleDuration.WithLabelValues(branch).Observe(time.Since(startAt).Seconds())
	}()

	if err = task.Validate(); err != nil {
		return errors.Wrapf(queue.ErrPermanent, "%s", err.Error())
	}
	logger := c.logger.With(zap.String("comment_id", task.CommentID), zap.Int("hops", task.Hops))

	unlock, err := c.locker.Lock(ctx, task.CommentID)
	if err != nil {
		return errors.Wrapf(err, "lock comment %s", task.CommentID)
	}
	defer unlock()

	comment, err := c.store.Get(ctx, task.CommentID)
	if err != nil {
		if errors.Is(err, store.ErrCommentNotFound) {
			branch = branchMissing
			logger.Debug("comment not found, skip")
			return nil
		}
		return errors.Wrapf(err, "load comment %s", task.CommentID)
	}

	switch {
	case c.machine.CanApply(comment, workflow.TransitionAccept):
		branch, err = c.classify(ctx, logger, comment, task)
	case c.machine.CanApply(comment, workflow.TransitionPublish),
		c.machine.CanApply(comment, workflow.TransitionPublishHam):
		branch, err = c.notifyAdmins(ctx, logger, comment, task)
	default:
		branch = branchTerminal
		logger.Debug("comment already past automated moderation",
			zap.String("state", string(comment.State)))
	}
	if err != nil {
		branch = branchFailed
	}

	return err
}

// classify scores the comment, applies the mapped and the forced accept
// transitions, persists and requeues.
func (c *Coordinator) classify(ctx context.Context, logger logSDK.Logger,
	comment *model.Comment, task *model.ModerationTask) (string, error) {
	from := comment.State

	score, err := c.classifier.Score(ctx, comment, task.Context)
	if err != nil {
		return branchFailed, errors.Wrapf(err, "classify comment %s", comment.ID)
	}

	transition := TransitionForScore(score)
	if err = c.machine.Apply(comment, transition); err != nil {
		return branchFailed, errors.Wrapf(err, "apply %s to comment %s", transition, comment.ID)
	}
	if err = c.machine.Apply(comment, workflow.TransitionAccept); err != nil {
		return branchFailed, errors.Wrapf(err, "apply forced accept to comment %s", comment.ID)
	}
	comment.SetSpamScore(score)
	transitionCount.WithLabelValues(transition).Inc()

	if err = c.store.Save(ctx, comment, from); err != nil {
		if errors.Is(err, store.ErrStateConflict) || errors.Is(err, store.ErrCommentNotFound) {
			logger.Warn("comment changed concurrently, drop this delivery", zap.Error(err))
			return branchConflict, nil
		}
		return branchFailed, errors.Wrapf(err, "save comment %s", comment.ID)
	}

	logger.Info("comment classified",
		zap.Int("score", score),
		zap.String("transition", transition),
		zap.String("from", string(from)),
		zap.String("to", string(comment.State)))

	next := task.Continuation()
	if c.maxRequeues > 0 && next.Hops > c.maxRequeues {
		reason := errors.Errorf("comment %s exceeded %d requeues in state %s",
			comment.ID, c.maxRequeues, comment.State)
		logger.Error("requeue limit reached", zap.Error(reason))
		if dl, ok := c.queue.(queue.DeadLetterer); ok {
			if err = dl.DeadLetter(ctx, next, reason); err != nil {
				logger.Error("dead-letter task", zap.Error(err))
			}
		}
		return branchRequeueLimit, nil
	}

	if err = c.queue.Publish(ctx, next); err != nil {
		// the comment already advanced, a redelivery of this task continues from there
		return branchFailed, errors.Wrapf(err, "requeue comment %s", comment.ID)
	}

	return branchClassify, nil
}

// notifyAdmins hands the comment to a human. Delivery failures are logged, not returned.
func (c *Coordinator) notifyAdmins(ctx context.Context, logger logSDK.Logger,
	comment *model.Comment, task *model.ModerationTask) (string, error) {
	photoURL := c.photoURL(ctx, logger, comment)

	if err := c.gateway.NotifyAdmins(ctx, &notify.AdminNotification{
		Subject:   NotificationSubject,
		Comment:   comment,
		ReviewURL: task.ReviewURL,
		PhotoURL:  photoURL,
	}); err != nil {
		notifyFailureCount.WithLabelValues("admin").Inc()
		logger.Error("notify admins", zap.Error(err))
	}

	if err := c.gateway.SendEmail(ctx, &notify.Email{
		Subject:  NotificationSubject,
		Template: notify.TemplateCommentNotification,
		To:       c.adminEmail,
		Payload: map[string]any{
			"comment":    comment,
			"review_url": task.ReviewURL,
			"photo_url":  photoURL,
		},
	}); err != nil {
		notifyFailureCount.WithLabelValues("email").Inc()
		logger.Error("send review email", zap.Error(err))
	}

	if err := c.store.Save(ctx, comment, comment.State); err != nil {
		if errors.Is(err, store.ErrStateConflict) || errors.Is(err, store.ErrCommentNotFound) {
			logger.Warn("comment changed while notifying", zap.Error(err))
			return branchConflict, nil
		}
		return branchFailed, errors.Wrapf(err, "save comment %s", comment.ID)
	}

	logger.Info("comment handed to admins", zap.String("state", string(comment.State)))
	return branchNotify, nil
}

func (c *Coordinator) photoURL(ctx context.Context, logger logSDK.Logger, comment *model.Comment) string {
	if c.photos == nil || comment.PhotoFilename == "" {
		return ""
	}

	u, err := c.photos.PhotoURL(ctx, comment.PhotoFilename)
	if err != nil {
		logger.Warn("link comment photo", zap.Error(err))
		return ""
	}
	return u
}
