package web

import (
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/queue"
)

const (
	actionAccept = "accept"
	actionReject = "reject"

	defaultPendingLimit = 50
	deadLetterPeek      = 20
)

type submitCommentRequest struct {
	PostName      string `json:"post_name" binding:"required"`
	Author        string `json:"author" binding:"required"`
	Email         string `json:"email" binding:"required"`
	Text          string `json:"text" binding:"required"`
	PhotoFilename string `json:"photo_filename"`
	// author context, as seen by the blog when the comment was posted
	UserIP    string `json:"user_ip"`
	UserAgent string `json:"user_agent"`
	Referrer  string `json:"referrer"`
	Permalink string `json:"permalink"`
}

type reviewRequest struct {
	Action string `json:"action" binding:"required,oneof=accept reject"`
}

type commentResponse struct {
	Comment            *model.Comment `json:"comment"`
	EnabledTransitions []string       `json:"enabled_transitions"`
	ReviewURL          string         `json:"review_url,omitempty"`
}

type pendingResponse struct {
	Comments []*model.Comment `json:"comments"`
}

type queueResponse struct {
	Stats       queue.Stats       `json:"stats"`
	DeadLetters []*deadLetterItem `json:"dead_letters"`
}

type deadLetterItem struct {
	CommentID string `json:"comment_id"`
	Hops      int    `json:"hops"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error"`
}

type errorResponse struct {
	Error string `json:"error"`
}
