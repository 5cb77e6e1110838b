package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/lock"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/queue"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/store"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/workflow"
	"github.com/Laisky/laisky-blog-moderation/library/jwt"
	"github.com/Laisky/laisky-blog-moderation/library/throttle"
)

var (
	ginModeOnce sync.Once
)

func setupGinTestMode() {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.TestMode)
	})
}

type testEnv struct {
	store  *store.Memory
	queue  *queue.Memory
	server *Server
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	setupGinTestMode()

	st := store.NewMemory(nil)
	q := queue.NewMemory()
	sub, err := moderation.NewSubmitter(st, q, "https://blog.laisky.com", nil)
	require.NoError(t, err)

	j, err := jwt.New([]byte("0123456789abcdef-moderation"))
	require.NoError(t, err)
	token, err := j.Sign("laisky", time.Hour)
	require.NoError(t, err)

	srv, err := NewServer(Config{
		Reviewer:  moderation.NewReviewer(st, lock.NewKeyed(), nil),
		Submitter: sub,
		Queue:     q,
		JWT:       j,
		Debug:     true,
	})
	require.NoError(t, err)

	return &testEnv{store: st, queue: q, server: srv, token: token}
}

func (e *testEnv) seed(t *testing.T, state workflow.State) *model.Comment {
	t.Helper()
	c := &model.Comment{
		PostName: "go-generics",
		Author:   "alice",
		Email:    "alice@example.com",
		Text:     "nice post",
		State:    state,
	}
	require.NoError(t, e.store.Create(context.Background(), c))
	return c
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)

	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "hello, world", w.Body.String())

	w = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "go_goroutines")
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t)
	c := env.seed(t, workflow.StateReady)
	path := "/admin/comment/review/" + c.ID

	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer forged")
	w = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// review links opened from chat carry the token in the query
	w = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path+"?token="+env.token, nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestSubmitComment(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/comments", submitCommentRequest{
		PostName:  "go-generics",
		Author:    "alice",
		Email:     "alice@example.com",
		Text:      "nice post",
		UserIP:    "203.0.113.7",
		UserAgent: "curl/8.0",
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	resp := decode[commentResponse](t, w)
	require.NotEmpty(t, resp.Comment.ID)
	require.Equal(t, workflow.StateSubmitted, resp.Comment.State)
	require.Equal(t, "https://blog.laisky.com/admin/comment/review/"+resp.Comment.ID, resp.ReviewURL)
	require.NotContains(t, w.Body.String(), "alice@example.com")
	require.Equal(t, 1, env.queue.Len())

	stored, err := env.store.Get(context.Background(), resp.Comment.ID)
	require.NoError(t, err)
	require.Equal(t, "203.0.113.7", stored.AuthorContext.UserIP)
}

func TestSubmitCommentValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/comments", map[string]string{"author": "alice"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/comments", submitCommentRequest{
		PostName: "go-generics",
		Author:   "alice",
		Email:    "not-an-email",
		Text:     "nice post",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, decode[errorResponse](t, w).Error, "invalid email")
	require.Zero(t, env.queue.Len())
}

func TestReviewFlow(t *testing.T) {
	env := newTestEnv(t)
	c := env.seed(t, workflow.StateHamReady)
	path := "/admin/comment/review/" + c.ID

	w := env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[commentResponse](t, w)
	require.Equal(t, workflow.StateHamReady, got.Comment.State)
	require.Equal(t, []string{workflow.TransitionPublishHam, workflow.TransitionReject}, got.EnabledTransitions)

	w = env.do(t, http.MethodPost, path, reviewRequest{Action: "maybe"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, path, reviewRequest{Action: actionAccept})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, workflow.StatePublishedHam, decode[commentResponse](t, w).Comment.State)

	// second decision on a published comment conflicts
	w = env.do(t, http.MethodPost, path, reviewRequest{Action: actionReject})
	require.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, "/admin/comment/review/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListPending(t *testing.T) {
	env := newTestEnv(t)
	ready := env.seed(t, workflow.StateReady)
	env.seed(t, workflow.StateSubmitted)

	w := env.do(t, http.MethodGet, "/admin/pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[pendingResponse](t, w)
	require.Len(t, resp.Comments, 1)
	require.Equal(t, ready.ID, resp.Comments[0].ID)

	w = env.do(t, http.MethodGet, "/admin/pending?limit=-1", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResubmitAndQueue(t *testing.T) {
	env := newTestEnv(t)
	submitted := env.seed(t, workflow.StateSubmitted)
	ready := env.seed(t, workflow.StateReady)

	w := env.do(t, http.MethodPost, "/admin/resubmit/"+submitted.ID, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	w = env.do(t, http.MethodPost, "/admin/resubmit/"+ready.ID, nil)
	require.Equal(t, http.StatusConflict, w.Code)

	require.NoError(t, env.queue.DeadLetter(context.Background(),
		&model.ModerationTask{CommentID: ready.ID, Hops: 9}, assert.AnError))

	w = env.do(t, http.MethodGet, "/admin/queue", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[queueResponse](t, w)
	require.Equal(t, queue.Stats{Pending: 1, Dead: 1}, resp.Stats)
	require.Len(t, resp.DeadLetters, 1)
	require.Equal(t, ready.ID, resp.DeadLetters[0].CommentID)
	require.Equal(t, 9, resp.DeadLetters[0].Hops)
	require.Equal(t, assert.AnError.Error(), resp.DeadLetters[0].LastError)
}

func TestAllowCORS(t *testing.T) {
	setupGinTestMode()
	t.Parallel()

	tests := []struct {
		name           string
		method         string
		origin         string
		expectedStatus int
		expectedOrigin string
	}{
		{"no origin", http.MethodGet, "", http.StatusOK, ""},
		{"subdomain", http.MethodGet, "https://blog.laisky.com", http.StatusOK, "https://blog.laisky.com"},
		{"main domain", http.MethodGet, "https://laisky.com", http.StatusOK, "https://laisky.com"},
		{"preflight allowed", http.MethodOptions, "https://blog.laisky.com", http.StatusNoContent, "https://blog.laisky.com"},
		{"preflight denied", http.MethodOptions, "https://evil.com", http.StatusForbidden, ""},
		{"suffix trick", http.MethodGet, "https://laisky.com.evil.com", http.StatusOK, ""},
		{"lookalike", http.MethodGet, "https://notlaisky.com", http.StatusOK, ""},
		{"case insensitive", http.MethodGet, "https://Blog.LAISKY.COM", http.StatusOK, "https://Blog.LAISKY.COM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := gin.New()
			router.Use(allowCORS)
			router.Any("/test", func(c *gin.Context) {
				c.String(http.StatusOK, "OK")
			})

			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.expectedOrigin != "" {
				assert.True(t, strings.Contains(w.Header().Get("Vary"), "Origin"))
			}
		})
	}
}

func TestStatusOf(t *testing.T) {
	require.Equal(t, http.StatusNotFound, statusOf(store.ErrCommentNotFound))
	require.Equal(t, http.StatusConflict, statusOf(moderation.ErrNotReviewable))
	require.Equal(t, http.StatusConflict, statusOf(store.ErrStateConflict))
	require.Equal(t, http.StatusBadRequest, statusOf(moderation.ErrInvalidComment))
	require.Equal(t, http.StatusInternalServerError, statusOf(assert.AnError))
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(Config{})
	require.Error(t, err)
}

func TestSubmitThrottled(t *testing.T) {
	env := newTestEnv(t)
	limiter, err := throttle.New(throttle.Config{
		TotalNPerSec:   1,
		TotalBurst:     100,
		EachKeyNPerSec: 1,
		EachKeyBurst:   1,
	})
	require.NoError(t, err)
	env.server.cfg.Throttle = limiter

	body := submitCommentRequest{
		PostName: "go-generics",
		Author:   "alice",
		Email:    "alice@example.com",
		Text:     "nice post",
		UserIP:   "203.0.113.7",
	}
	w := env.do(t, http.MethodPost, "/api/comments", body)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/comments", body)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, 1, env.queue.Len())

	body.UserIP = "198.51.100.1"
	w = env.do(t, http.MethodPost, "/api/comments", body)
	require.Equal(t, http.StatusAccepted, w.Code)
}
