package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/Laisky/errors/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Laisky/laisky-blog-moderation/internal/global"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/queue"
	"github.com/Laisky/laisky-blog-moderation/library/log"
)

// verdictPurgeInterval is how often expired SQL verdicts are deleted
var verdictPurgeInterval = time.Hour

var workerCMD = &cobra.Command{
	Use:   "worker",
	Short: "worker",
	Long:  `consume moderation tasks until interrupted`,
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

		svc, err := global.SetupServices(ctx)
		if err != nil {
			log.Logger.Panic("setup services", zap.Error(err))
		}
		defer svc.Close(context.Background())

		if err := runWorker(ctx, svc); err != nil {
			log.Logger.Panic("run worker", zap.Error(err))
		}
	},
}

// runWorker requeues tasks orphaned by a previous crash, then consumes until ctx is done.
func runWorker(ctx context.Context, svc *global.Services) error {
	if rq, ok := svc.Consumer.(*queue.Redis); ok {
		n, err := rq.Recover(ctx)
		if err != nil {
			return errors.Wrap(err, "recover in-flight tasks")
		}
		if n > 0 {
			log.Logger.Info("requeued in-flight tasks", zap.Int("n", n))
		}
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	if svc.Verdicts != nil {
		g.Go(func() error {
			svc.Verdicts.PurgeEvery(gctx, verdictPurgeInterval, func(n int64, err error) {
				if err != nil {
					log.Logger.Warn("purge expired verdicts", zap.Error(err))
				} else if n > 0 {
					log.Logger.Debug("purged expired verdicts", zap.Int64("n", n))
				}
			})
			return nil
		})
	}
	g.Go(func() error {
		// the purge loop ends with the consumer
		defer stop()

		log.Logger.Info("moderation worker started")
		err := svc.Consumer.Run(gctx, svc.Coordinator.Handle)
		if err != nil && !errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "consume tasks")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Logger.Info("moderation worker stopped")
	return nil
}

func init() {
	rootCMD.AddCommand(workerCMD)
}
