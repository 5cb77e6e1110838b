package moderation

import "github.com/Laisky/errors/v2"

var (
	// ErrInvalidComment is returned by Submit when the input fails validation
	ErrInvalidComment = errors.New("invalid comment")
	// ErrNotReviewable means no review decision applies in the comment's current state
	ErrNotReviewable = errors.New("comment is not awaiting review")
)
