package moderation

import (
	"context"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/lock"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/store"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/workflow"
	"github.com/Laisky/laisky-blog-moderation/library/log"
)

// ReviewableStates are the states in which a comment waits for an admin decision.
var ReviewableStates = []workflow.State{workflow.StateReady, workflow.StateHamReady}

// Reviewer applies admin decisions to comments handed over by the Coordinator.
type Reviewer struct {
	store   store.CommentStore
	machine *workflow.Machine
	locker  lock.Locker
	logger  logSDK.Logger
}

// NewReviewer creates a Reviewer. It must share the Coordinator's locker.
func NewReviewer(st store.CommentStore, locker lock.Locker, logger logSDK.Logger) *Reviewer {
	if locker == nil {
		locker = lock.NewKeyed()
	}
	if logger == nil {
		logger = log.Logger.Named("moderation_reviewer")
	}

	return &Reviewer{
		store:   st,
		machine: workflow.NewCommentMachine(),
		locker:  locker,
		logger:  logger,
	}
}

// reviewTransition picks the transition for an accept or reject decision, "" when none applies.
func (r *Reviewer) reviewTransition(c *model.Comment, accept bool) string {
	candidates := []string{workflow.TransitionReject}
	if accept {
		candidates = []string{workflow.TransitionPublish, workflow.TransitionPublishHam}
	}

	for _, name := range candidates {
		if r.machine.CanApply(c, name) {
			return name
		}
	}
	return ""
}

// Review publishes (accept) or rejects the comment.
func (r *Reviewer) Review(ctx context.Context, id string, accept bool) (*model.Comment, error) {
	unlock, err := r.locker.Lock(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "lock comment %s", id)
	}
	defer unlock()

	comment, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "load comment %s", id)
	}

	transition := r.reviewTransition(comment, accept)
	if transition == "" {
		return nil, errors.Wrapf(ErrNotReviewable, "comment %s is %s", id, comment.State)
	}

	from := comment.State
	if err = r.machine.Apply(comment, transition); err != nil {
		return nil, errors.Wrapf(err, "apply %s to comment %s", transition, id)
	}
	if err = r.store.Save(ctx, comment, from); err != nil {
		return nil, errors.Wrapf(err, "save comment %s", id)
	}

	reviewCount.WithLabelValues(transition).Inc()
	r.logger.Info("comment reviewed",
		zap.String("comment_id", id),
		zap.String("transition", transition),
		zap.String("state", string(comment.State)))
	return comment, nil
}

// Get returns a comment by id.
func (r *Reviewer) Get(ctx context.Context, id string) (*model.Comment, error) {
	comment, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "load comment %s", id)
	}
	return comment, nil
}

// Enabled lists the transitions currently applicable to the comment.
func (r *Reviewer) Enabled(c *model.Comment) []string {
	return r.machine.Enabled(c)
}

// Pending lists comments waiting for review, oldest first.
func (r *Reviewer) Pending(ctx context.Context, limit int) ([]*model.Comment, error) {
	comments, err := r.store.ListByStates(ctx, ReviewableStates, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list pending comments")
	}
	return comments, nil
}
