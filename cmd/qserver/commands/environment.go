package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/beamline/queueserver/internal/printer"
	"github.com/beamline/queueserver/pkg/qsapi"
)

var envWait bool

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Manage the worker environment",
}

var envOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open the worker environment",
	Long: `Open the worker environment.

The environment must be open before the queue can be started or plans
can be executed. With --wait, the command blocks until the environment
is ready.`,
	RunE: runEnvOpen,
}

var envCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the worker environment",
	RunE:  runEnvClose,
}

var envDestroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Destroy an unresponsive worker environment",
	RunE: func(cmd *cobra.Command, args []string) error {
		return simpleCall("destroy the environment", func(ctx context.Context, c *qsapi.Client) error {
			return c.EnvironmentDestroy(ctx)
		}, "Environment destroy requested\n")
	},
}

func init() {
	envOpenCmd.Flags().BoolVar(&envWait, "wait", false, "Wait until the environment is open")
	envCloseCmd.Flags().BoolVar(&envWait, "wait", false, "Wait until the environment is closed")

	envCmd.AddCommand(envOpenCmd)
	envCmd.AddCommand(envCloseCmd)
	envCmd.AddCommand(envDestroyCmd)
	rootCmd.AddCommand(envCmd)
}

func runEnvOpen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := context.Background()
	if err := client.EnvironmentOpen(ctx); err != nil {
		return requestError("open the environment", err)
	}

	if envWait {
		printer.Step("Waiting for the environment to open...\n")
		if err := client.WaitForEnvironmentOpen(ctx, cfg.WaitTimeout); err != nil {
			return requestError("open the environment", err)
		}
	}
	printer.Success("Environment open requested\n")
	return nil
}

func runEnvClose(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := context.Background()
	if err := client.EnvironmentClose(ctx); err != nil {
		return requestError("close the environment", err)
	}

	if envWait {
		printer.Step("Waiting for the environment to close...\n")
		if err := client.WaitForEnvironmentClosed(ctx, cfg.WaitTimeout); err != nil {
			return requestError("close the environment", err)
		}
	}
	printer.Success("Environment close requested\n")
	return nil
}
