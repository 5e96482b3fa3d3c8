package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/beamline/queueserver/internal/printer"
	"github.com/beamline/queueserver/pkg/qsapi"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current status of the queue server",
	Long: `Show the current status of the queue server manager.

Displays the manager state, the sizes of the queue and history, and
whether the worker environment exists. Use --json for the complete
status response.`,
	RunE: runStatus,
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the queue server is reachable",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pingCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	st, err := client.Status(context.Background())
	if err != nil {
		return requestError("fetch status", err)
	}

	if flagJSON {
		outputJSON(st.Raw)
		return nil
	}

	printer.Success("Queue server is reachable\n")
	printer.Printf("Manager state:      %s\n", st.ManagerState)
	printer.Printf("Items in queue:     %d\n", st.ItemsInQueue)
	printer.Printf("Items in history:   %d\n", st.ItemsInHistory)
	printer.Printf("Environment exists: %v\n", st.WorkerEnvironmentExists)
	if st.RunningItemUID != "" {
		printer.Printf("Running item:       %s\n", st.RunningItemUID)
	}
	if st.QueueStopPending {
		printer.Warning("Queue stop is pending\n")
	}
	if st.PausePending {
		printer.Warning("Pause is pending\n")
	}
	if st.ManagerState == qsapi.ManagerStatePaused {
		printer.Info("Resume with 'qserver re resume'\n")
	}
	return nil
}
