package cmd

import (
	"context"
	"fmt"

	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/Laisky/laisky-blog-moderation/library/log"
)

var checkConfigCMD = &cobra.Command{
	Use:   "check-config",
	Short: "check-config",
	Long:  `load and validate the settings file without connecting to anything`,
	Args:  gcmd.NoExtraArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := initialize(context.Background(), cmd); err != nil {
			log.Logger.Panic("invalid configuration", zap.Error(err))
		}

		fmt.Println("configuration ok")
	},
}

func init() {
	rootCMD.AddCommand(checkConfigCMD)
}
