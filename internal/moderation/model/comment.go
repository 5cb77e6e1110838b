// Package model defines comments under moderation and the task that drives them.
package model

import (
	"time"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/workflow"
)

// Score levels returned by spam classifiers.
const (
	// ScoreClean means the classifier found nothing suspicious.
	ScoreClean = 0
	// ScoreHam is the verdict routed through the accept_ham transition.
	ScoreHam = 1
	// ScoreBlatantSpam means the comment can be discarded without review.
	ScoreBlatantSpam = 2
)

// Comment is a user submitted comment under moderation.
type Comment struct {
	// ID is assigned by the store at creation
	ID string `json:"id"`
	// PostName is the blog post the comment was left on
	PostName string `json:"post_name"`
	Author   string `json:"author"`
	Email    string `json:"-"`
	Text     string `json:"text"`
	// State is the comment's place in the moderation workflow
	State workflow.State `json:"state"`
	// SpamScore is the latest classification result, nil until classified
	SpamScore *int `json:"spam_score,omitempty"`
	// AuthorContext is captured once at submission time
	AuthorContext AuthorContext `json:"author_context"`
	// PhotoFilename references an uploaded attachment, moderation never touches it
	PhotoFilename string    `json:"photo_filename,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CurrentState implements workflow.Subject.
func (c *Comment) CurrentState() workflow.State {
	return c.State
}

// SetState implements workflow.Subject.
func (c *Comment) SetState(st workflow.State) {
	c.State = st
}

// SetSpamScore records a classification result.
func (c *Comment) SetSpamScore(score int) {
	c.SpamScore = &score
}

// Clone returns a deep copy, so stores never share pointers with callers.
func (c *Comment) Clone() *Comment {
	if c == nil {
		return nil
	}

	cp := *c
	if c.SpamScore != nil {
		score := *c.SpamScore
		cp.SpamScore = &score
	}
	return &cp
}

// AuthorContext is the request snapshot taken when the comment was submitted.
type AuthorContext struct {
	UserIP    string `json:"user_ip"`
	UserAgent string `json:"user_agent"`
	Referrer  string `json:"referrer"`
	// Permalink is the page the comment was posted from
	Permalink string `json:"permalink"`
}
