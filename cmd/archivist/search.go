package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/archivist/pkg/archive"
	"mercator-hq/archivist/pkg/cli"
)

var searchFlags struct {
	table     string
	user      string
	endpoint  string
	action    string
	ipAddress string
	start     string
	end       string
	limit     int
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search verified archives",
	Long: `Search verified archives.

Only archives whose period overlaps --start/--end are opened, most recent
first, and the scan stops once --limit records have been collected. Dates
are inclusive.

Examples:
  # Actions by one user in 2024
  archivist search --table audit_logs --user 7f3c --start 2024-01-01 --end 2024-12-31

  # Export matches as CSV
  archivist search --table audit_logs --action login --format csv > logins.csv`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringVarP(&searchFlags.table, "table", "t", "", "restrict to one table")
	searchCmd.Flags().StringVar(&searchFlags.user, "user", "", "match user_uuid")
	searchCmd.Flags().StringVar(&searchFlags.endpoint, "endpoint", "", "match endpoint")
	searchCmd.Flags().StringVar(&searchFlags.action, "action", "", "match action")
	searchCmd.Flags().StringVar(&searchFlags.ipAddress, "ip", "", "match ip_address")
	searchCmd.Flags().StringVar(&searchFlags.start, "start", "", "earliest row time, inclusive (RFC3339 or YYYY-MM-DD)")
	searchCmd.Flags().StringVar(&searchFlags.end, "end", "", "latest row time, inclusive (RFC3339 or YYYY-MM-DD)")
	searchCmd.Flags().IntVarP(&searchFlags.limit, "limit", "n", 0, "maximum records to return (default from config)")
}

// buildQuery converts search flags into a query.
func buildQuery() (*archive.SearchQuery, error) {
	start, err := parseTimeFlag("start", searchFlags.start)
	if err != nil {
		return nil, err
	}
	end, err := parseTimeFlag("end", searchFlags.end)
	if err != nil {
		return nil, err
	}

	return &archive.SearchQuery{
		Table:     searchFlags.table,
		UserUUID:  searchFlags.user,
		Endpoint:  searchFlags.endpoint,
		Action:    searchFlags.action,
		IPAddress: searchFlags.ipAddress,
		StartDate: start,
		EndDate:   end,
		Limit:     searchFlags.limit,
	}, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	q, err := buildQuery()
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	result, err := a.svc.SearchArchives(ctx, q)
	if err != nil {
		return cli.NewCommandError("search", err)
	}

	if a.format == cli.FormatText {
		printSearchResult(result)
		return nil
	}
	return cli.NewFormatter(a.format).FormatTo(os.Stdout, result)
}

func printSearchResult(r *archive.SearchResult) {
	for _, row := range r.Records {
		fields := make([]string, 0, len(row))
		for _, col := range sortedKeys(row) {
			fields = append(fields, fmt.Sprintf("%s=%v", col, row[col]))
		}
		fmt.Println(strings.Join(fields, " "))
	}
	fmt.Fprintf(os.Stderr, "%d of %d matches from %d archive(s) in %s\n",
		len(r.Records), r.TotalCount, len(r.ArchivesSearched), r.SearchTime.Round(time.Millisecond))
}

func sortedKeys(row archive.Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
