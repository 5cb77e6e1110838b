package moderation

import (
	"context"
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/queue"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/store"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/workflow"
	"github.com/Laisky/laisky-blog-moderation/library/log"
)

const (
	// ReviewPath is the admin route a review URL points at, followed by the comment id
	ReviewPath = "/admin/comment/review/"

	maxAuthorRunes  = 255
	maxCommentRunes = 5000
)

// SubmitRequest is a new comment as received from the blog.
type SubmitRequest struct {
	PostName      string
	Author        string
	Email         string
	Text          string
	PhotoFilename string
	Context       model.AuthorContext
}

// Submitter creates comments and starts their moderation.
type Submitter struct {
	store         store.CommentStore
	queue         queue.Queue
	reviewBaseURL string
	initial       workflow.State
	logger        logSDK.Logger
}

// NewSubmitter creates a Submitter. reviewBaseURL must be absolute, e.g. https://blog.laisky.com.
func NewSubmitter(st store.CommentStore, q queue.Queue, reviewBaseURL string, logger logSDK.Logger) (*Submitter, error) {
	if st == nil || q == nil {
		return nil, errors.New("store and queue are required")
	}

	u, err := url.Parse(reviewBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("review base url must be absolute, got %q", reviewBaseURL)
	}
	if logger == nil {
		logger = log.Logger.Named("moderation_submitter")
	}

	return &Submitter{
		store:         st,
		queue:         q,
		reviewBaseURL: strings.TrimRight(reviewBaseURL, "/"),
		initial:       workflow.NewCommentMachine().Initial(),
		logger:        logger,
	}, nil
}

// ReviewURL is the absolute admin URL for reviewing comment id.
func (s *Submitter) ReviewURL(id string) string {
	return s.reviewBaseURL + ReviewPath + url.PathEscape(id)
}

func (req *SubmitRequest) normalize() error {
	req.PostName = strings.TrimSpace(req.PostName)
	req.Author = strings.TrimSpace(req.Author)
	req.Email = strings.TrimSpace(req.Email)
	req.Text = strings.TrimSpace(req.Text)

	switch {
	case req.PostName == "":
		return errors.Wrap(ErrInvalidComment, "post is required")
	case req.Author == "":
		return errors.Wrap(ErrInvalidComment, "author is required")
	case utf8.RuneCountInString(req.Author) > maxAuthorRunes:
		return errors.Wrapf(ErrInvalidComment, "author longer than %d characters", maxAuthorRunes)
	case req.Text == "":
		return errors.Wrap(ErrInvalidComment, "text is required")
	case utf8.RuneCountInString(req.Text) > maxCommentRunes:
		return errors.Wrapf(ErrInvalidComment, "text longer than %d characters", maxCommentRunes)
	}

	addr, err := mail.ParseAddress(req.Email)
	if err != nil {
		return errors.Wrapf(ErrInvalidComment, "invalid email %q", req.Email)
	}
	req.Email = addr.Address

	return nil
}

// Submit persists the comment in the initial state and publishes exactly one task for it.
//
// When publishing fails the comment is returned along with the error; it stays
// submitted and can be re-driven with Resubmit.
func (s *Submitter) Submit(ctx context.Context, req *SubmitRequest) (*model.Comment, error) {
	if req == nil {
		return nil, errors.Wrap(ErrInvalidComment, "empty request")
	}
	if err := req.normalize(); err != nil {
		return nil, err
	}

	comment := &model.Comment{
		PostName:      req.PostName,
		Author:        req.Author,
		Email:         req.Email,
		Text:          req.Text,
		State:         s.initial,
		AuthorContext: req.Context,
		PhotoFilename: req.PhotoFilename,
	}
	if err := s.store.Create(ctx, comment); err != nil {
		return nil, errors.Wrap(err, "create comment")
	}
	submitCount.Inc()

	if err := s.publish(ctx, comment); err != nil {
		return comment, err
	}

	s.logger.Info("comment submitted",
		zap.String("comment_id", comment.ID),
		zap.String("post", comment.PostName))
	return comment, nil
}

// Resubmit publishes a fresh task for a comment still in the initial state,
// e.g. after Submit failed to publish.
func (s *Submitter) Resubmit(ctx context.Context, id string) error {
	comment, err := s.store.Get(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "load comment %s", id)
	}
	if comment.State != s.initial {
		return errors.Wrapf(store.ErrStateConflict, "comment %s is %s, only %s comments can be resubmitted",
			id, comment.State, s.initial)
	}

	return s.publish(ctx, comment)
}

func (s *Submitter) publish(ctx context.Context, comment *model.Comment) error {
	task := &model.ModerationTask{
		CommentID: comment.ID,
		ReviewURL: s.ReviewURL(comment.ID),
		Context:   comment.AuthorContext,
	}
	if err := s.queue.Publish(ctx, task); err != nil {
		return errors.Wrapf(err, "publish moderation task for comment %s", comment.ID)
	}

	return nil
}
