package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/beamline/queueserver/internal/printer"
	"github.com/beamline/queueserver/internal/timespec"
	"github.com/beamline/queueserver/pkg/qsapi"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and clear the plan history",
}

var (
	historySince string
	historyUntil string
)

var historyGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the items in the plan history",
	Long: `Show the items in the plan history.

The history may be narrowed to a time range with --since and --until. Both
accept a duration relative to now ("1h30m") or an RFC3339 timestamp.

Examples:
  qserver history get
  qserver history get --since 1h
  qserver history get --since 2026-08-31T09:00:00Z --until 2026-08-31T17:00:00Z`,
	RunE: runHistoryGet,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all items from the plan history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return simpleCall("clear the history", func(ctx context.Context, c *qsapi.Client) error {
			return c.HistoryClear(ctx)
		}, "History cleared\n")
	},
}

func init() {
	historyGetCmd.Flags().StringVar(&historySince, "since", "", "Only show items completed after this time")
	historyGetCmd.Flags().StringVar(&historyUntil, "until", "", "Only show items completed before this time")

	historyCmd.AddCommand(historyGetCmd)
	historyCmd.AddCommand(historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}

// filterHistory keeps the items whose completion time falls within the range.
// Zero bounds are unbounded. Items without a completion time are dropped when
// any bound is set.
func filterHistory(items []*qsapi.Item, since, until time.Time) []*qsapi.Item {
	if since.IsZero() && until.IsZero() {
		return items
	}

	var kept []*qsapi.Item
	for _, item := range items {
		if item.Result == nil {
			continue
		}
		ts, ok := item.Result["time_stop"].(float64)
		if !ok {
			continue
		}
		stop := time.Unix(0, int64(ts*float64(time.Second)))
		if !since.IsZero() && stop.Before(since) {
			continue
		}
		if !until.IsZero() && stop.After(until) {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

func runHistoryGet(cmd *cobra.Command, args []string) error {
	since, until, err := timespec.ParseRange(historySince, historyUntil)
	if err != nil {
		return printer.Error("Invalid time range", err.Error(), nil)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	history, err := client.HistoryGet(context.Background())
	if err != nil {
		return requestError("fetch the history", err)
	}
	items := filterHistory(history.Items, since, until)

	if flagJSON {
		outputJSON(items)
		return nil
	}

	if len(items) == 0 {
		printer.Info("History is empty.\n")
		return nil
	}
	for i, item := range items {
		line := formatItem(item)
		if item.Result != nil {
			if exit, ok := item.Result["exit_status"].(string); ok {
				line += " [" + exit + "]"
			}
		}
		printer.Printf("%3d. %s\n", i, line)
	}
	return nil
}
