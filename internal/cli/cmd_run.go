package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/feedforge/forger/internal/pipeline"
)

func newRunCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	var recipeName string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch all sources, dedup against the cache, and write output feeds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(getApp)
			if err != nil {
				return err
			}

			runner := pipeline.NewRunner(app.cfg, app.store)
			report, runErr := runner.Run(cmd.Context(), recipeName)

			for _, warning := range report.Warnings {
				fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
			}
			if getOutput() == OutputJSON {
				if err := writeJSON(os.Stdout, report); err != nil {
					return err
				}
			} else {
				writeRunReportTable(os.Stdout, report)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&recipeName, "recipe", "", "Run a single recipe by name")
	return cmd
}
