package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/beamline/queueserver/internal/printer"
	"github.com/beamline/queueserver/pkg/qsapi"
)

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for the queue server to reach a state",
	Long: `Wait for the queue server to reach a state.

The status is polled until the condition is met or the timeout expires
(--timeout, default 60s).`,
}

func init() {
	waitCmd.AddCommand(&cobra.Command{
		Use:   "idle",
		Short: "Wait until the manager is idle",
		RunE:  waitCall("idle", (*qsapi.Client).WaitForIdle),
	})
	waitCmd.AddCommand(&cobra.Command{
		Use:   "idle-or-paused",
		Short: "Wait until the manager is idle or paused",
		RunE:  waitCall("idle or paused", (*qsapi.Client).WaitForIdleOrPaused),
	})
	waitCmd.AddCommand(&cobra.Command{
		Use:   "queue-done",
		Short: "Wait until queue execution has finished",
		RunE:  waitCall("queue completion", (*qsapi.Client).WaitForCompletedQueue),
	})
	waitCmd.AddCommand(&cobra.Command{
		Use:   "env-open",
		Short: "Wait until the worker environment is open",
		RunE:  waitCall("environment open", (*qsapi.Client).WaitForEnvironmentOpen),
	})
	waitCmd.AddCommand(&cobra.Command{
		Use:   "env-closed",
		Short: "Wait until the worker environment is closed",
		RunE:  waitCall("environment closed", (*qsapi.Client).WaitForEnvironmentClosed),
	})
	rootCmd.AddCommand(waitCmd)
}

// waitCall builds a RunE that polls the status until a condition is met.
func waitCall(what string, wait func(*qsapi.Client, context.Context, time.Duration) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := newClientFromConfig(cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		printer.Step("Waiting for %s...\n", what)
		if err := wait(client, context.Background(), cfg.WaitTimeout); err != nil {
			if qsapi.IsWaitTimeout(err) {
				return printer.Error("Timed out waiting for "+what,
					"The queue server did not reach the expected state in time.",
					[]string{"Increase the timeout with --timeout"})
			}
			return requestError("wait for "+what, err)
		}
		printer.Success("Condition met: %s\n", what)
		return nil
	}
}
