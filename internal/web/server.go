// Package web is the admin HTTP server: review decisions, the comment intake
// for the blog backend, health and metrics.
package web

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/queue"
	"github.com/Laisky/laisky-blog-moderation/library/jwt"
	"github.com/Laisky/laisky-blog-moderation/library/log"
	"github.com/Laisky/laisky-blog-moderation/library/throttle"
)

const shutdownTimeout = 10 * time.Second

// Config holds the services behind the admin routes.
type Config struct {
	Reviewer  *moderation.Reviewer
	Submitter *moderation.Submitter
	// Queue is optional, without it /admin/queue answers 404
	Queue  queue.Inspector
	JWT    *jwt.JWT
	// Throttle is optional, it limits intake per author IP
	Throttle *throttle.Throttle
	Debug    bool
	Logger   logSDK.Logger
}

// Server is the admin HTTP server.
type Server struct {
	cfg    Config
	engine *gin.Engine
	logger logSDK.Logger
}

// NewServer builds the router.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Reviewer == nil || cfg.Submitter == nil {
		return nil, errors.New("reviewer and submitter are required")
	}
	if cfg.JWT == nil {
		return nil, errors.New("jwt is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Logger.Named("web")
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:    cfg,
		engine: gin.New(),
		logger: cfg.Logger,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.engine.Use(
		gin.Recovery(),
		gmw.NewLoggerMiddleware(
			gmw.WithLogger(s.logger.Named("gin")),
		),
		allowCORS,
	)

	s.engine.Any("/health", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "hello, world")
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api", s.authMiddleware)
	api.POST("/comments", s.submitComment)

	admin := s.engine.Group("/admin", s.authMiddleware)
	admin.GET("/comment/review/:id", s.getReview)
	admin.POST("/comment/review/:id", s.postReview)
	admin.GET("/pending", s.listPending)
	admin.POST("/resubmit/:id", s.resubmit)
	admin.GET("/queue", s.queueStats)
}

// Handler returns the router, for tests and custom listeners.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening on http", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server exit")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}

	s.logger.Info("http server stopped")
	return nil
}

func allowCORS(ctx *gin.Context) {
	origin := ctx.Request.Header.Get("Origin")
	allowedOrigin := ""

	if origin != "" {
		parsedOriginURL, err := url.Parse(origin)
		if err == nil {
			host := strings.ToLower(parsedOriginURL.Hostname())
			// Allow *.laisky.com and laisky.com
			if strings.HasSuffix(host, ".laisky.com") || host == "laisky.com" {
				allowedOrigin = origin
			}
		}
	}

	if allowedOrigin != "" {
		ctx.Header("Access-Control-Allow-Origin", allowedOrigin)
		ctx.Header("Access-Control-Allow-Credentials", "true")
		ctx.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		ctx.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin")
		ctx.Header("Access-Control-Max-Age", "86400")
		ctx.Header("Vary", "Origin")

		if ctx.Request.Method == http.MethodOptions {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}
	} else if origin != "" && ctx.Request.Method == http.MethodOptions {
		// deny preflight from other origins
		ctx.AbortWithStatus(http.StatusForbidden)
		return
	}

	ctx.Next()
}
