package web

import (
	"net/http"
	"strconv"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/store"
)

func abortWithError(ctx *gin.Context, status int, msg string) {
	ctx.AbortWithStatusJSON(status, errorResponse{Error: msg})
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, store.ErrCommentNotFound):
		return http.StatusNotFound
	case errors.Is(err, moderation.ErrNotReviewable),
		errors.Is(err, store.ErrStateConflict):
		return http.StatusConflict
	case errors.Is(err, moderation.ErrInvalidComment):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(ctx *gin.Context, err error, msg string) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		gmw.GetLogger(ctx).Error(msg, zap.Error(err))
		abortWithError(ctx, status, msg)
		return
	}

	abortWithError(ctx, status, err.Error())
}

func (s *Server) submitComment(ctx *gin.Context) {
	req := new(submitCommentRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		abortWithError(ctx, http.StatusBadRequest, err.Error())
		return
	}

	userIP := req.UserIP
	if userIP == "" {
		userIP = ctx.ClientIP()
	}
	if s.cfg.Throttle != nil && !s.cfg.Throttle.Allow(userIP) {
		abortWithError(ctx, http.StatusTooManyRequests, "too many comments, slow down")
		return
	}

	comment, err := s.cfg.Submitter.Submit(ctx.Request.Context(), &moderation.SubmitRequest{
		PostName:      req.PostName,
		Author:        req.Author,
		Email:         req.Email,
		Text:          req.Text,
		PhotoFilename: req.PhotoFilename,
		Context: model.AuthorContext{
			UserIP:    userIP,
			UserAgent: req.UserAgent,
			Referrer:  req.Referrer,
			Permalink: req.Permalink,
		},
	})
	if err != nil {
		if comment != nil {
			// stored but not queued, the caller may resubmit by id
			gmw.GetLogger(ctx).Error("comment stored but not queued",
				zap.String("comment_id", comment.ID), zap.Error(err))
			ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, commentResponse{Comment: comment})
			return
		}

		respondError(ctx, err, "submit comment")
		return
	}

	ctx.JSON(http.StatusAccepted, commentResponse{
		Comment:   comment,
		ReviewURL: s.cfg.Submitter.ReviewURL(comment.ID),
	})
}

func (s *Server) getReview(ctx *gin.Context) {
	comment, err := s.cfg.Reviewer.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err, "load comment")
		return
	}

	ctx.JSON(http.StatusOK, commentResponse{
		Comment:            comment,
		EnabledTransitions: s.cfg.Reviewer.Enabled(comment),
	})
}

func (s *Server) postReview(ctx *gin.Context) {
	req := new(reviewRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		abortWithError(ctx, http.StatusBadRequest, err.Error())
		return
	}

	id := ctx.Param("id")
	comment, err := s.cfg.Reviewer.Review(ctx.Request.Context(), id, req.Action == actionAccept)
	if err != nil {
		respondError(ctx, err, "review comment")
		return
	}

	gmw.GetLogger(ctx).Info("comment reviewed by admin",
		zap.String("admin", adminName(ctx)),
		zap.String("comment_id", id),
		zap.String("action", req.Action))
	ctx.JSON(http.StatusOK, commentResponse{Comment: comment})
}

func (s *Server) listPending(ctx *gin.Context) {
	limit := defaultPendingLimit
	if v := ctx.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			abortWithError(ctx, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	comments, err := s.cfg.Reviewer.Pending(ctx.Request.Context(), limit)
	if err != nil {
		respondError(ctx, err, "list pending comments")
		return
	}
	if comments == nil {
		comments = []*model.Comment{}
	}

	ctx.JSON(http.StatusOK, pendingResponse{Comments: comments})
}

func (s *Server) resubmit(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := s.cfg.Submitter.Resubmit(ctx.Request.Context(), id); err != nil {
		respondError(ctx, err, "resubmit comment")
		return
	}

	ctx.Status(http.StatusAccepted)
}

func (s *Server) queueStats(ctx *gin.Context) {
	if s.cfg.Queue == nil {
		abortWithError(ctx, http.StatusNotFound, "queue inspection is not available")
		return
	}

	stats, err := s.cfg.Queue.Stats(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err, "queue stats")
		return
	}
	dead, err := s.cfg.Queue.DeadLetters(ctx.Request.Context(), deadLetterPeek)
	if err != nil {
		respondError(ctx, err, "list dead letters")
		return
	}

	resp := queueResponse{Stats: stats, DeadLetters: make([]*deadLetterItem, 0, len(dead))}
	for _, d := range dead {
		resp.DeadLetters = append(resp.DeadLetters, &deadLetterItem{
			CommentID: d.Task.CommentID,
			Hops:      d.Task.Hops,
			Attempts:  d.Attempts,
			LastError: d.LastError,
		})
	}
	ctx.JSON(http.StatusOK, resp)
}
