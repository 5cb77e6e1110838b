package spam

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
	"github.com/Laisky/laisky-blog-moderation/library/log"
)

const (
	headerProTip    = "X-akismet-pro-tip"
	headerDebugHelp = "X-akismet-debug-help"
	maxResponseBody = 4 << 10
)

// AkismetConfig configures the Akismet client.
type AkismetConfig struct {
	// Key is the Akismet API key, it is also the endpoint subdomain
	Key string
	// BlogURL identifies the site the comments belong to
	BlogURL string
	// IsTest marks requests as test traffic, Akismet will not learn from them
	IsTest bool
	// Timeout bounds one HTTP attempt, default 10s
	Timeout time.Duration
	// QPS limits requests per second, 0 disables limiting
	QPS float64
	// Endpoint overrides https://<key>.rest.akismet.com/1.1/comment-check
	Endpoint string
	Logger   logSDK.Logger
}

// Akismet is a Classifier backed by the Akismet comment-check API.
type Akismet struct {
	cfg      AkismetConfig
	endpoint string
	cli      *retryablehttp.Client
	limiter  *rate.Limiter
	logger   logSDK.Logger
}

// leveledLogger downgrades retry noise to debug.
type leveledLogger struct {
	logger logSDK.Logger
}

func (l leveledLogger) Error(msg string, kv ...any) { l.logger.Warn(msg, zap.Any("kv", kv)) }
func (l leveledLogger) Warn(msg string, kv ...any)  { l.logger.Warn(msg, zap.Any("kv", kv)) }
func (l leveledLogger) Info(msg string, kv ...any)  { l.logger.Debug(msg, zap.Any("kv", kv)) }
func (l leveledLogger) Debug(msg string, kv ...any) { l.logger.Debug(msg, zap.Any("kv", kv)) }

const (
	// DefaultAkismetTimeout bounds one HTTP attempt when AkismetConfig.Timeout is unset
	DefaultAkismetTimeout = 10 * time.Second

	akismetRetryMax     = 2
	akismetRetryWaitMin = 200 * time.Millisecond
	akismetRetryWaitMax = 2 * time.Second
)

// AkismetWorstCase is the longest one Score call may spend on the network
// with a per-attempt timeout, retries and backoff included.
func AkismetWorstCase(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		timeout = DefaultAkismetTimeout
	}
	return time.Duration(akismetRetryMax+1)*timeout + time.Duration(akismetRetryMax)*akismetRetryWaitMax
}

// NewAkismet creates an Akismet classifier.
func NewAkismet(cfg AkismetConfig) (*Akismet, error) {
	if cfg.Key == "" {
		return nil, errors.New("akismet key is required")
	}
	if cfg.BlogURL == "" {
		return nil, errors.New("akismet blog url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultAkismetTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Logger.Named("akismet")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://" + cfg.Key + ".rest.akismet.com/1.1/comment-check"
	}

	cli := retryablehttp.NewClient()
	cli.RetryMax = akismetRetryMax
	cli.RetryWaitMin = akismetRetryWaitMin
	cli.RetryWaitMax = akismetRetryWaitMax
	cli.HTTPClient.Timeout = cfg.Timeout
	cli.Logger = retryablehttp.LeveledLogger(leveledLogger{cfg.Logger})

	a := &Akismet{
		cfg:      cfg,
		endpoint: endpoint,
		cli:      cli,
		logger:   cfg.Logger,
	}
	if cfg.QPS > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.QPS), 1)
	}

	return a, nil
}

func (a *Akismet) form(c *model.Comment, authorCtx model.AuthorContext) url.Values {
	form := url.Values{}
	form.Set("blog", a.cfg.BlogURL)
	form.Set("comment_type", "comment")
	form.Set("comment_author", c.Author)
	form.Set("comment_author_email", c.Email)
	form.Set("comment_content", c.Text)
	form.Set("blog_lang", "en")
	form.Set("blog_charset", "UTF-8")
	form.Set("user_ip", authorCtx.UserIP)
	form.Set("user_agent", authorCtx.UserAgent)
	form.Set("referrer", authorCtx.Referrer)
	form.Set("permalink", authorCtx.Permalink)
	if !c.CreatedAt.IsZero() {
		form.Set("comment_date_gmt", c.CreatedAt.UTC().Format(time.RFC3339))
	}
	if a.cfg.IsTest {
		form.Set("is_test", "true")
	}

	return form
}

// Score implements Classifier.
func (a *Akismet) Score(ctx context.Context, c *model.Comment, authorCtx model.AuthorContext) (int, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return 0, errors.Wrap(err, "wait for akismet quota")
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, a.endpoint,
		strings.NewReader(a.form(c, authorCtx).Encode()))
	if err != nil {
		return 0, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.cli.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "request akismet")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, errors.Wrap(err, "read akismet response")
	}

	score, err := parseVerdict(resp.StatusCode, resp.Header, string(body))
	if err != nil {
		return 0, err
	}

	a.logger.Debug("comment classified",
		zap.String("comment_id", c.ID),
		zap.Int("score", score))
	return score, nil
}

// parseVerdict maps an Akismet answer to a score.
func parseVerdict(status int, header http.Header, body string) (int, error) {
	if help := header.Get(headerDebugHelp); help != "" {
		return 0, errors.Wrapf(ErrClassifierRejected, "%s", help)
	}
	if status != http.StatusOK {
		return 0, errors.Wrapf(ErrUnexpectedResponse, "status %d", status)
	}

	switch strings.TrimSpace(body) {
	case "true":
		if header.Get(headerProTip) == "discard" {
			return model.ScoreBlatantSpam, nil
		}
		return model.ScoreHam, nil
	case "false":
		return model.ScoreClean, nil
	default:
		return 0, errors.Wrapf(ErrUnexpectedResponse, "body %q", body)
	}
}
