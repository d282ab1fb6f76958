package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeRunReportTable(out io.Writer, rep RunReport) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECIPE\tSOURCE\tNEW\tCHANGED\tNOT_MODIFIED\tERROR")
	for _, r := range rep.Results {
		status := ""
		switch {
		case r.Skipped:
			status = "skipped: " + r.Error
		case r.Error != "":
			status = r.Error
		}
		fmt.Fprintf(
			tw,
			"%s\t%s\t%d\t%d\t%t\t%s\n",
			compactText(r.Recipe, 24),
			compactText(r.URL, 56),
			r.New,
			r.Changed,
			r.NotModified,
			compactText(oneLine(status), 70),
		)
	}
	_ = tw.Flush()
}

func writeRecipesTable(out io.Writer, infos []RecipeInfo) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSOURCES\tFILTERS\tFULFILL")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%t\n", compactText(info.Name, 32), info.Sources, info.Filters, info.Fulfill)
	}
	_ = tw.Flush()
}

func writeCleanTable(out io.Writer, resp CleanResponse) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRUNED\tCOUNT")
	fmt.Fprintf(tw, "orphan_sources\t%d\n", resp.OrphanSources)
	fmt.Fprintf(tw, "stale_entries\t%d\n", resp.StaleEntries)
	fmt.Fprintf(tw, "stale_pages\t%d\n", resp.StalePages)
	fmt.Fprintf(tw, "remaining_entries\t%d\n", resp.RemainingEntries)
	_ = tw.Flush()
}

func oneLine(v string) string {
	v = strings.ReplaceAll(v, "\n", " ")
	v = strings.ReplaceAll(v, "\r", " ")
	return strings.TrimSpace(v)
}
