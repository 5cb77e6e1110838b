package model

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"
)

// ModerationTask drives one step of a comment's review.
// It is published once at submission and republished by the coordinator
// until the comment reaches a decision point.
type ModerationTask struct {
	CommentID string        `json:"comment_id"`
	ReviewURL string        `json:"review_url"`
	Context   AuthorContext `json:"context"`
	// Hops counts coordinator self-requeues. It is delivery metadata, not payload.
	Hops int `json:"hops,omitempty"`
}

// Continuation returns the task to republish for the next processing step.
func (t *ModerationTask) Continuation() *ModerationTask {
	next := *t
	next.Hops++
	return &next
}

// SamePayload reports whether both tasks reference the same comment with the same context.
func (t *ModerationTask) SamePayload(other *ModerationTask) bool {
	if t == nil || other == nil {
		return t == other
	}

	return t.CommentID == other.CommentID &&
		t.ReviewURL == other.ReviewURL &&
		t.Context == other.Context
}

// Validate checks the fields every consumer depends on.
func (t *ModerationTask) Validate() error {
	if t == nil {
		return errors.New("nil moderation task")
	}
	if t.CommentID == "" {
		return errors.New("moderation task without comment id")
	}

	return nil
}

// Marshal encodes the task for transport.
func (t *ModerationTask) Marshal() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, errors.Wrap(err, "marshal moderation task")
	}

	return data, nil
}

// UnmarshalTask decodes a task produced by Marshal.
func UnmarshalTask(data []byte) (*ModerationTask, error) {
	task := new(ModerationTask)
	if err := json.Unmarshal(data, task); err != nil {
		return nil, errors.Wrap(err, "unmarshal moderation task")
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}
