package cmd

import (
	"context"

	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/Laisky/laisky-blog-moderation/internal/global"
	"github.com/Laisky/laisky-blog-moderation/library/log"
)

var migrateCMD = &cobra.Command{
	Use:   "migrate",
	Short: "migrate",
	Long:  `create the comment table or mongo indexes of the configured store`,
	Args:  gcmd.NoExtraArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if err := initialize(ctx, cmd); err != nil {
			log.Logger.Panic("init", zap.Error(err))
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		// opening a store migrates its schema
		_, closeStore, err := global.SetupStore(ctx)
		if err != nil {
			log.Logger.Panic("migrate", zap.Error(err))
		}
		if err := closeStore(ctx); err != nil {
			log.Logger.Warn("close store", zap.Error(err))
		}

		log.Logger.Info("migrated comment store")
	},
}

func init() {
	rootCMD.AddCommand(migrateCMD)
}
