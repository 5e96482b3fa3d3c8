package commands

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/beamline/queueserver/internal/printer"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Stream console output from the queue server",
	Long: `Stream console output from the queue server.

Over 0MQ the output is received from the info socket; over HTTP it is
polled from the console output endpoint. Press Ctrl+C to stop.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	monitor, err := client.ConsoleMonitor(ctx)
	if err != nil {
		return requestError("start the console monitor", err)
	}
	defer monitor.Close()

	printer.Step("Streaming console output (Ctrl+C to stop)...\n")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-monitor.Messages():
			if !ok {
				return nil
			}
			printer.Printf("%s", ensureNewline(msg.Msg))
		case err, ok := <-monitor.Errors():
			if !ok {
				return nil
			}
			printer.Warning("Console monitor error: %v\n", err)
		}
	}
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
