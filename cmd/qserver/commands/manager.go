package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/beamline/queueserver/pkg/qsapi"
)

var managerStopSafeOff bool

var managerCmd = &cobra.Command{
	Use:   "manager",
	Short: "Control the queue server manager process",
}

var managerStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the queue server manager",
	Long: `Stop the queue server manager.

By default the manager refuses to stop unless it is idle (safe_on).
With --safe-off, it stops regardless of its current state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		option := "safe_on"
		if managerStopSafeOff {
			option = "safe_off"
		}
		return simpleCall("stop the manager", func(ctx context.Context, c *qsapi.Client) error {
			return c.ManagerStop(ctx, option)
		}, "Manager stop requested\n")
	},
}

var managerKillCmd = &cobra.Command{
	Use:    "kill",
	Short:  "Make the manager stop responding (test only)",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return simpleCall("kill the manager", func(ctx context.Context, c *qsapi.Client) error {
			return c.ManagerKill(ctx)
		}, "Manager kill requested\n")
	},
}

func init() {
	managerStopCmd.Flags().BoolVar(&managerStopSafeOff, "safe-off", false, "Stop even when the manager is not idle")

	managerCmd.AddCommand(managerStopCmd)
	managerCmd.AddCommand(managerKillCmd)
	rootCmd.AddCommand(managerCmd)
}
