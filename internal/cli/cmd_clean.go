package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newCleanCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	var entryDays int
	var pageDays int

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Prune orphaned sources, stale entries, and old page cache rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(getApp)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			resp := CleanResponse{}
			resp.OrphanSources, err = app.store.PruneOrphanSources(ctx, app.cfg.SourceURLs())
			if err != nil {
				return fmt.Errorf("prune orphan sources: %w", err)
			}
			resp.StaleEntries, err = app.store.PruneStaleEntries(ctx, entryDays)
			if err != nil {
				return fmt.Errorf("prune stale entries: %w", err)
			}
			resp.StalePages, err = app.store.PrunePages(ctx, time.Duration(pageDays)*24*time.Hour)
			if err != nil {
				return fmt.Errorf("prune page cache: %w", err)
			}
			resp.RemainingEntries, err = app.store.CountEntries(ctx)
			if err != nil {
				return fmt.Errorf("count entries: %w", err)
			}

			if getOutput() == OutputJSON {
				return writeJSON(os.Stdout, resp)
			}
			writeCleanTable(os.Stdout, resp)
			return nil
		},
	}

	cmd.Flags().IntVar(&entryDays, "entry-days", 30, "Delete cached entries not seen for this many days")
	cmd.Flags().IntVar(&pageDays, "page-days", 7, "Delete cached pages older than this many days")
	return cmd
}
