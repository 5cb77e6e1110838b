// Package spam scores comments against an external reputation service.
package spam

import (
	"context"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
)

// Classifier scores a comment: model.ScoreClean, model.ScoreHam or model.ScoreBlatantSpam.
//
// Transport failures are returned as errors, callers must not treat them as a score.
type Classifier interface {
	Score(ctx context.Context, c *model.Comment, authorCtx model.AuthorContext) (int, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, c *model.Comment, authorCtx model.AuthorContext) (int, error)

// Score implements Classifier.
func (f ClassifierFunc) Score(ctx context.Context, c *model.Comment, authorCtx model.AuthorContext) (int, error) {
	return f(ctx, c, authorCtx)
}

// Static always returns the same score. Used in dry-run mode.
type Static int

// Score implements Classifier.
func (s Static) Score(context.Context, *model.Comment, model.AuthorContext) (int, error) {
	return int(s), nil
}
