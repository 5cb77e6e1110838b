package spam

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
	"github.com/Laisky/laisky-blog-moderation/library/db/sql/kv"
	"github.com/Laisky/laisky-blog-moderation/library/db/sqlite"
)

func testComment() (*model.Comment, model.AuthorContext) {
	authorCtx := model.AuthorContext{
		UserIP:    "1.2.3.4",
		UserAgent: "curl/8",
		Referrer:  "https://blog.laisky.com/p/hello/",
		Permalink: "https://blog.laisky.com/p/hello/",
	}
	return &model.Comment{
		ID:            "c1",
		Author:        "laisky",
		Email:         "laisky@laisky.com",
		Text:          "great post",
		AuthorContext: authorCtx,
	}, authorCtx
}

func newTestAkismet(t *testing.T, handler http.HandlerFunc) *Akismet {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a, err := NewAkismet(AkismetConfig{
		Key:      "key",
		BlogURL:  "https://blog.laisky.com",
		IsTest:   true,
		Endpoint: srv.URL,
	})
	require.NoError(t, err)
	a.cli.RetryWaitMin = time.Millisecond
	a.cli.RetryWaitMax = time.Millisecond
	return a
}

func TestAkismetVerdicts(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		header map[string]string
		want   int
	}{
		{name: "clean", body: "false", want: model.ScoreClean},
		{name: "spam", body: "true", want: model.ScoreHam},
		{name: "blatant", body: "true", header: map[string]string{headerProTip: "discard"}, want: model.ScoreBlatantSpam},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var form url.Values
			a := newTestAkismet(t, func(w http.ResponseWriter, r *http.Request) {
				_ = r.ParseForm()
				form = r.PostForm

				for k, v := range tc.header {
					w.Header().Set(k, v)
				}
				_, _ = w.Write([]byte(tc.body))
			})

			c, authorCtx := testComment()
			got, err := a.Score(context.Background(), c, authorCtx)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)

			require.Equal(t, "https://blog.laisky.com", form.Get("blog"))
			require.Equal(t, "great post", form.Get("comment_content"))
			require.Equal(t, "1.2.3.4", form.Get("user_ip"))
			require.Equal(t, "true", form.Get("is_test"))
		})
	}
}

func TestAkismetErrors(t *testing.T) {
	a := newTestAkismet(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerDebugHelp, "We were unable to parse your blog URI")
		_, _ = w.Write([]byte("invalid"))
	})
	c, authorCtx := testComment()
	_, err := a.Score(context.Background(), c, authorCtx)
	require.ErrorIs(t, err, ErrClassifierRejected)

	a = newTestAkismet(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("maybe"))
	})
	_, err = a.Score(context.Background(), c, authorCtx)
	require.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestAkismetRetriesServerErrors(t *testing.T) {
	var calls int32
	a := newTestAkismet(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("false"))
	})

	c, authorCtx := testComment()
	got, err := a.Score(context.Background(), c, authorCtx)
	require.NoError(t, err)
	require.Equal(t, model.ScoreClean, got)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestNewAkismetValidates(t *testing.T) {
	_, err := NewAkismet(AkismetConfig{BlogURL: "https://blog.laisky.com"})
	require.Error(t, err)
	_, err = NewAkismet(AkismetConfig{Key: "k"})
	require.Error(t, err)
}

func TestCachedClassifier(t *testing.T) {
	var calls int32
	next := ClassifierFunc(func(context.Context, *model.Comment, model.AuthorContext) (int, error) {
		atomic.AddInt32(&calls, 1)
		return model.ScoreHam, nil
	})

	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer rdb.Close()

	gdb, err := sqlite.Open(filepath.Join(t.TempDir(), "verdicts.db"))
	require.NoError(t, err)
	store, err := kv.NewKv(gdb)
	require.NoError(t, err)

	for name, vc := range map[string]VerdictCache{
		"lru":   NewLRUVerdictCache(16, time.Minute),
		"redis": NewRedisVerdictCache(rdb, time.Minute),
		"kv":    NewKVVerdictCache(store, time.Minute),
	} {
		t.Run(name, func(t *testing.T) {
			atomic.StoreInt32(&calls, 0)
			cached := NewCached(next, vc, nil)
			c, authorCtx := testComment()

			for i := 0; i < 3; i++ {
				got, err := cached.Score(context.Background(), c, authorCtx)
				require.NoError(t, err)
				require.Equal(t, model.ScoreHam, got)
			}
			require.Equal(t, int32(1), atomic.LoadInt32(&calls))

			edited := c.Clone()
			edited.Text = "buy cheap watches"
			_, err := cached.Score(context.Background(), edited, authorCtx)
			require.NoError(t, err)
			require.Equal(t, int32(2), atomic.LoadInt32(&calls))
		})
	}
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	var calls int32
	next := ClassifierFunc(func(context.Context, *model.Comment, model.AuthorContext) (int, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return 0, ErrUnexpectedResponse
		}
		return model.ScoreClean, nil
	})

	cached := NewCached(next, NewLRUVerdictCache(16, time.Minute), nil)
	c, authorCtx := testComment()

	_, err := cached.Score(context.Background(), c, authorCtx)
	require.ErrorIs(t, err, ErrUnexpectedResponse)

	got, err := cached.Score(context.Background(), c, authorCtx)
	require.NoError(t, err)
	require.Equal(t, model.ScoreClean, got)
}

func TestStatic(t *testing.T) {
	c, authorCtx := testComment()
	got, err := Static(model.ScoreBlatantSpam).Score(context.Background(), c, authorCtx)
	require.NoError(t, err)
	require.Equal(t, model.ScoreBlatantSpam, got)
}

func TestKVVerdictCacheCapsTTL(t *testing.T) {
	gdb, err := sqlite.Open(filepath.Join(t.TempDir(), "verdicts.db"))
	require.NoError(t, err)
	store, err := kv.NewKv(gdb)
	require.NoError(t, err)

	vc := NewKVVerdictCache(store, 365*24*time.Hour)
	require.Equal(t, kv.MaxTTL, vc.ttl)

	_, ok, err := vc.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, vc.Set(context.Background(), "c1/abc", model.ScoreBlatantSpam))
	score, ok, err := vc.Get(context.Background(), "c1/abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.ScoreBlatantSpam, score)
}
