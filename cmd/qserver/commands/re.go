package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/beamline/queueserver/internal/printer"
	"github.com/beamline/queueserver/pkg/qsapi"
)

var (
	rePauseImmediate bool
	reRunsOption     string
)

var reCmd = &cobra.Command{
	Use:   "re",
	Short: "Control the run engine",
}

var rePauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the currently executed plan",
	Long: `Pause the currently executed plan.

By default the plan pauses at the next checkpoint (deferred pause).
With --immediate, it pauses right away.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		option := qsapi.PauseDeferred
		if rePauseImmediate {
			option = qsapi.PauseImmediate
		}
		return simpleCall("pause the run engine", func(ctx context.Context, c *qsapi.Client) error {
			return c.REPause(ctx, option)
		}, "Pause requested\n")
	},
}

var reResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		return simpleCall("resume the run engine", func(ctx context.Context, c *qsapi.Client) error {
			return c.REResume(ctx)
		}, "Resume requested\n")
	},
}

var reStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a paused plan, marking it successful",
	RunE: func(cmd *cobra.Command, args []string) error {
		return simpleCall("stop the run engine", func(ctx context.Context, c *qsapi.Client) error {
			return c.REStop(ctx)
		}, "Stop requested\n")
	},
}

var reAbortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Abort a paused plan, marking it failed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return simpleCall("abort the run engine", func(ctx context.Context, c *qsapi.Client) error {
			return c.REAbort(ctx)
		}, "Abort requested\n")
	},
}

var reHaltCmd = &cobra.Command{
	Use:   "halt",
	Short: "Halt a paused plan without cleanup",
	RunE: func(cmd *cobra.Command, args []string) error {
		return simpleCall("halt the run engine", func(ctx context.Context, c *qsapi.Client) error {
			return c.REHalt(ctx)
		}, "Halt requested\n")
	},
}

var reRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List the runs of the currently executed plan",
	RunE:  runRERuns,
}

func init() {
	rePauseCmd.Flags().BoolVar(&rePauseImmediate, "immediate", false, "Pause immediately instead of at the next checkpoint")
	reRunsCmd.Flags().StringVar(&reRunsOption, "option", "active", "Which runs to list: active, open or closed")

	reCmd.AddCommand(rePauseCmd)
	reCmd.AddCommand(reResumeCmd)
	reCmd.AddCommand(reStopCmd)
	reCmd.AddCommand(reAbortCmd)
	reCmd.AddCommand(reHaltCmd)
	reCmd.AddCommand(reRunsCmd)
	rootCmd.AddCommand(reCmd)
}

func runRERuns(cmd *cobra.Command, args []string) error {
	option := qsapi.RunsOption(reRunsOption)
	if err := option.Validate(); err != nil {
		return printer.Error("Invalid --option value", err.Error(), nil)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	runs, err := client.RERuns(context.Background(), option)
	if err != nil {
		return requestError("fetch the run list", err)
	}

	if flagJSON {
		outputJSON(runs)
		return nil
	}

	if len(runs) == 0 {
		printer.Info("No runs.\n")
		return nil
	}
	for _, run := range runs {
		state := "open"
		if !run.IsOpen {
			state = "closed"
			if run.ExitStatus != nil {
				state = *run.ExitStatus
			}
		}
		printer.Printf("%s  %s\n", run.UID, state)
	}
	return nil
}
