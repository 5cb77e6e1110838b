package cmd

import (
	"context"
	"fmt"
	"os"

	errors "github.com/Laisky/errors/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Laisky/laisky-blog-moderation/cmd/tui"
	"github.com/Laisky/laisky-blog-moderation/internal/global"
)

var tuiCMD = &cobra.Command{
	Use:   "tui",
	Short: "Launch the review console",
	Long: `Launch an interactive review console for comments awaiting an admin decision.

It connects to the configured comment store and queue, lists comments in
ready and ham_ready, and publishes or rejects them.

Keyboard shortcuts:
  ↑/↓ or j/k  Navigate comments
  Enter       Show the full comment
  a           Accept (publish)
  r           Reject
  R           Refresh
  Esc         Go back
  q           Quit`,
	Args: gcmd.NoExtraArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := initialize(context.Background(), cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading settings: %v\n", err)
			os.Exit(1)
		}

		limit, _ := cmd.Flags().GetInt("limit")
		if err := runTUI(cmd.Context(), limit); err != nil {
			fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	tuiCMD.Flags().Int("limit", 0, "max comments listed at once")
	rootCMD.AddCommand(tuiCMD)
}

// runTUI starts the interactive review console and returns any start/run error.
func runTUI(ctx context.Context, limit int) error {
	if ctx == nil {
		ctx = context.Background()
	}

	svc, err := global.SetupServices(ctx)
	if err != nil {
		return errors.Wrap(err, "setup services")
	}
	defer svc.Close(context.Background())

	p := tea.NewProgram(
		tui.NewModel(svc.Reviewer, svc.Inspector, limit),
		tea.WithAltScreen(),       // Use alternate screen buffer
		tea.WithMouseCellMotion(), // Enable mouse support
	)

	_, err = p.Run()
	return errors.WithStack(err)
}
