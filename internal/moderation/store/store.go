// Package store persists comments under moderation.
//
// Every implementation saves with compare-and-set on the comment state: Save
// only succeeds when the stored state still equals the state the caller read.
// Together with the per-comment lock this keeps two concurrent deliveries of
// the same task from both applying a transition.
package store

import (
	"context"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/workflow"
)

// CommentStore is the durable comment repository used by moderation.
type CommentStore interface {
	// Create assigns an id and timestamps, then inserts the comment.
	Create(ctx context.Context, c *model.Comment) error
	// Get returns ErrCommentNotFound when the comment does not exist.
	Get(ctx context.Context, id string) (*model.Comment, error)
	// Save writes c if the stored state still equals expected, otherwise ErrStateConflict.
	Save(ctx context.Context, c *model.Comment, expected workflow.State) error
	// ListByStates returns comments in any of states, oldest first.
	ListByStates(ctx context.Context, states []workflow.State, limit int) ([]*model.Comment, error)
}

const defaultListLimit = 100

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > defaultListLimit*10 {
		return defaultListLimit
	}
	return limit
}
