// Package cli implements the charla command line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/jmvargas/charla/internal/logging"
)

// Execute runs the root command.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "charla",
		Short:         "Two-party chat with a live conversation list",
		Long:          "charla manages direct conversations and keeps a sorted, live-updating conversation list.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	cmd.PersistentFlags().String("config", "", "Path to config file")
	cmd.PersistentFlags().String("user", "", "Act as this user (overrides configured session)")
	cmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			logging.Init(logging.Config{Level: level, Format: "console"})
		}
	}

	cmd.AddCommand(
		newRegisterCmd(),
		newContactsCmd(),
		newSendCmd(),
		newListCmd(),
		newOpenCmd(),
		newServeCmd(),
	)

	return cmd
}
