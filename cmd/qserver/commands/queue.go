package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beamline/queueserver/internal/printer"
	"github.com/beamline/queueserver/pkg/qsapi"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and control the plan queue",
}

var queueGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the items in the plan queue",
	RunE:  runQueueGet,
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all items from the plan queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return simpleCall("clear the queue", func(ctx context.Context, c *qsapi.Client) error {
			return c.QueueClear(ctx)
		}, "Queue cleared\n")
	},
}

var queueStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start execution of the plan queue",
	Long: `Start execution of the plan queue.

The worker environment must be open (see 'qserver env open'). Items are
executed in order from the front of the queue until the queue is empty
or stopped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return simpleCall("start the queue", func(ctx context.Context, c *qsapi.Client) error {
			return c.QueueStart(ctx)
		}, "Queue started\n")
	},
}

var queueStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Request the queue to stop after the current plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		return simpleCall("request queue stop", func(ctx context.Context, c *qsapi.Client) error {
			return c.QueueStop(ctx)
		}, "Queue stop requested\n")
	},
}

var queueStopCancelCmd = &cobra.Command{
	Use:   "stop-cancel",
	Short: "Cancel a pending queue stop request",
	RunE: func(cmd *cobra.Command, args []string) error {
		return simpleCall("cancel queue stop", func(ctx context.Context, c *qsapi.Client) error {
			return c.QueueStopCancel(ctx)
		}, "Queue stop cancelled\n")
	},
}

var (
	queueModeLoop           bool
	queueModeIgnoreFailures bool
	queueModeReset          bool
)

var queueModeCmd = &cobra.Command{
	Use:   "mode",
	Short: "Set the plan queue mode",
	Long: `Set the plan queue mode.

With --loop, completed items are returned to the back of the queue.
With --ignore-failures, the queue continues past failed plans.
With --reset, the mode is restored to the default.`,
	RunE: runQueueMode,
}

func init() {
	queueModeCmd.Flags().BoolVar(&queueModeLoop, "loop", false, "Enable loop mode")
	queueModeCmd.Flags().BoolVar(&queueModeIgnoreFailures, "ignore-failures", false, "Continue past failed plans")
	queueModeCmd.Flags().BoolVar(&queueModeReset, "reset", false, "Restore the default queue mode")

	queueCmd.AddCommand(queueGetCmd)
	queueCmd.AddCommand(queueClearCmd)
	queueCmd.AddCommand(queueStartCmd)
	queueCmd.AddCommand(queueStopCmd)
	queueCmd.AddCommand(queueStopCancelCmd)
	queueCmd.AddCommand(queueModeCmd)
	rootCmd.AddCommand(queueCmd)
}

// simpleCall runs a single client call and prints a success message.
func simpleCall(action string, call func(context.Context, *qsapi.Client) error, success string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := call(context.Background(), client); err != nil {
		return requestError(action, err)
	}
	printer.Success("%s", success)
	return nil
}

func runQueueGet(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	queue, err := client.QueueGet(context.Background())
	if err != nil {
		return requestError("fetch the queue", err)
	}

	if flagJSON {
		outputJSON(queue)
		return nil
	}

	if queue.RunningItem != nil {
		printer.Info("Running: %s\n", formatItem(queue.RunningItem))
	}
	if len(queue.Items) == 0 {
		printer.Info("Queue is empty.\n")
		return nil
	}
	for i, item := range queue.Items {
		printer.Printf("%3d. %s\n", i, formatItem(item))
	}
	return nil
}

func runQueueMode(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	var mode map[string]any
	if !queueModeReset {
		mode = map[string]any{}
		if cmd.Flags().Changed("loop") {
			mode["loop"] = queueModeLoop
		}
		if cmd.Flags().Changed("ignore-failures") {
			mode["ignore_failures"] = queueModeIgnoreFailures
		}
		if len(mode) == 0 {
			return printer.Error("No mode changes requested",
				"Pass --loop, --ignore-failures or --reset.", nil)
		}
	}

	if err := client.QueueModeSet(context.Background(), mode); err != nil {
		return requestError("set queue mode", err)
	}
	printer.Success("Queue mode updated\n")
	return nil
}

// formatItem renders a queue item as a single line.
func formatItem(item *qsapi.Item) string {
	s := fmt.Sprintf("[%s] %s", item.ItemType, item.Name)
	if len(item.Args) > 0 {
		if b, err := json.Marshal(item.Args); err == nil {
			s += " args=" + string(b)
		}
	}
	if len(item.Kwargs) > 0 {
		if b, err := json.Marshal(item.Kwargs); err == nil {
			s += " kwargs=" + string(b)
		}
	}
	if item.ItemUID != "" {
		s += fmt.Sprintf(" (uid: %s)", item.ItemUID)
	}
	return s
}
