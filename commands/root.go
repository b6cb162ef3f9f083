package commands

import (
	"github.com/spf13/cobra"
)

var version = "dev"

// NewRootCmd builds the clubbot command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clubbot",
		Short: "Reading club bot: article queue, quotes ledger and paragraph duels",
		Long: `clubbot runs the reading club behind a Telegram bot webhook.

Members submit article links into a publication queue, earn quotes for
taking part and compete in timed paragraph duels. State lives in memory
and is snapshotted to the configured storage backend.`,
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
	}
	root.AddCommand(newServeCmd(), newSnapshotCmd())
	return root
}

// Execute runs the root command. Called by main.main().
func Execute() error {
	root := NewRootCmd()
	root.SilenceUsage = true
	return root.Execute()
}

func SetVersion(v string) {
	version = v
}
