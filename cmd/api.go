package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Laisky/laisky-blog-moderation/internal/global"
	"github.com/Laisky/laisky-blog-moderation/internal/web"
	"github.com/Laisky/laisky-blog-moderation/library/jwt"
	"github.com/Laisky/laisky-blog-moderation/library/log"
	"github.com/Laisky/laisky-blog-moderation/library/throttle"
)

var apiCMD = &cobra.Command{
	Use:   "api",
	Short: "api",
	Long:  `intake and review API for the moderation pipeline`,
	Args:  gcmd.NoExtraArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if err := initialize(ctx, cmd); err != nil {
			log.Logger.Panic("init", zap.Error(err))
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		if err := runAPI(ctx); err != nil {
			log.Logger.Panic("run api", zap.Error(err))
		}
	},
}

func runAPI(ctx context.Context) error {
	svc, err := global.SetupServices(ctx)
	if err != nil {
		return errors.Wrap(err, "setup services")
	}
	defer svc.Close(context.Background())

	signer, err := jwt.New([]byte(gconfig.Shared.GetString("settings.web.secret")))
	if err != nil {
		return errors.Wrap(err, "new jwt")
	}

	limiter, err := setupThrottle()
	if err != nil {
		return errors.Wrap(err, "setup throttle")
	}

	srv, err := web.NewServer(web.Config{
		Reviewer:  svc.Reviewer,
		Submitter: svc.Submitter,
		Queue:     svc.Inspector,
		JWT:       signer,
		Throttle:  limiter,
		Debug:     gconfig.Shared.GetBool("debug"),
		Logger:    log.Logger.Named("web"),
	})
	if err != nil {
		return errors.Wrap(err, "new server")
	}

	// an in-memory queue is only reachable from this process
	withWorker := gconfig.Shared.GetBool("worker") ||
		gconfig.Shared.GetString("settings.moderation.queue") != global.BackendRedis

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, gconfig.Shared.GetString("listen"))
	})
	if withWorker {
		g.Go(func() error {
			return runWorker(gctx, svc)
		})
	}

	return g.Wait()
}

// setupThrottle returns nil unless settings.web.throttle.per_ip_qps is set.
func setupThrottle() (*throttle.Throttle, error) {
	perIP := gconfig.Shared.GetInt("settings.web.throttle.per_ip_qps")
	if perIP <= 0 {
		return nil, nil
	}

	cfg := throttle.Config{
		TotalNPerSec:   gconfig.Shared.GetInt("settings.web.throttle.total_qps"),
		TotalBurst:     gconfig.Shared.GetInt("settings.web.throttle.total_burst"),
		EachKeyNPerSec: perIP,
		EachKeyBurst:   gconfig.Shared.GetInt("settings.web.throttle.per_ip_burst"),
	}
	if cfg.TotalNPerSec <= 0 {
		cfg.TotalNPerSec = perIP * 100
	}
	if cfg.TotalBurst < cfg.TotalNPerSec {
		cfg.TotalBurst = cfg.TotalNPerSec
	}
	if cfg.EachKeyBurst < perIP {
		cfg.EachKeyBurst = perIP
	}

	return throttle.New(cfg)
}

func init() {
	apiCMD.Flags().Bool("worker", false, "also consume moderation tasks in this process")
	rootCMD.AddCommand(apiCMD)
}
