// Package cli implements the odyssey command tree.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-finance/internal/app"
)

// NewRootCommand assembles the odyssey command tree. Running it without a
// subcommand serves the HTTP API.
func NewRootCommand() *cobra.Command {
	return newRootCommand(app.LoadConfig, defaultJobsFactory)
}

func newRootCommand(loadConfig func() (*app.Config, error), factory jobsFactory) *cobra.Command {
	serveCmd := newServeCommand(loadConfig)
	root := &cobra.Command{
		Use:           "odyssey",
		Short:         "Odyssey finance engine: invoices, quotations, expenses and reports",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          serveCmd.RunE,
	}
	root.AddCommand(serveCmd, newMigrateCommand(loadConfig), newJobsCommand(loadConfig, factory))
	return root
}

// Execute runs the command tree until ctx is cancelled.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
