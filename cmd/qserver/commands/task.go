package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/beamline/queueserver/internal/printer"
	"github.com/beamline/queueserver/pkg/qsapi"
)

var (
	scriptUpdateRE bool
	taskBackground bool
)

var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Upload scripts to the worker environment",
}

var scriptUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a script to the worker environment",
	Long: `Upload a script to the worker environment.

The script is executed in the worker namespace, making the plans and
devices it defines available for queueing. The command prints the task
UID; use 'qserver task status' and 'qserver task result' to follow it.`,
	Args: cobra.ExactArgs(1),
	RunE: runScriptUpload,
}

var functionCmd = &cobra.Command{
	Use:   "function",
	Short: "Execute functions in the worker namespace",
}

var functionExecuteCmd = &cobra.Command{
	Use:   "execute <name>",
	Short: "Execute a function in the worker namespace",
	Args:  cobra.ExactArgs(1),
	RunE:  runFunctionExecute,
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Follow background tasks",
}

var taskStatusCmd = &cobra.Command{
	Use:   "status <task-uid>",
	Short: "Show the status of a background task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskStatus,
}

var taskResultCmd = &cobra.Command{
	Use:   "result <task-uid>",
	Short: "Show the result of a background task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskResult,
}

func init() {
	scriptUploadCmd.Flags().BoolVar(&scriptUpdateRE, "update-re", false, "Allow the script to replace the run engine")
	scriptUploadCmd.Flags().BoolVar(&taskBackground, "background", false, "Run the task in a background thread")
	functionExecuteCmd.Flags().StringVar(&itemArgs, "args", "", "Positional arguments as a JSON array")
	functionExecuteCmd.Flags().StringVar(&itemKwargs, "kwargs", "", "Keyword arguments as a JSON object")
	functionExecuteCmd.Flags().BoolVar(&taskBackground, "background", false, "Run the task in a background thread")

	scriptCmd.AddCommand(scriptUploadCmd)
	functionCmd.AddCommand(functionExecuteCmd)
	taskCmd.AddCommand(taskStatusCmd)
	taskCmd.AddCommand(taskResultCmd)
	rootCmd.AddCommand(scriptCmd)
	rootCmd.AddCommand(functionCmd)
	rootCmd.AddCommand(taskCmd)
}

func runScriptUpload(cmd *cobra.Command, args []string) error {
	script, err := os.ReadFile(args[0])
	if err != nil {
		return printer.Error("Failed to read script file", err.Error(), nil)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	taskUID, err := client.ScriptUpload(context.Background(), string(script), scriptUpdateRE, taskBackground)
	if err != nil {
		return requestError("upload the script", err)
	}

	printer.Success("Script upload started\n")
	printer.Printf("Task UID: %s\n", taskUID)
	return nil
}

func runFunctionExecute(cmd *cobra.Command, args []string) error {
	item, err := buildItem(args[0], false)
	if err != nil {
		return err
	}
	item.ItemType = qsapi.ItemTypeFunction

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	taskUID, err := client.FunctionExecute(context.Background(), item, taskBackground)
	if err != nil {
		return requestError("execute the function", err)
	}

	printer.Success("Function execution started\n")
	printer.Printf("Task UID: %s\n", taskUID)
	return nil
}

func runTaskStatus(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	status, err := client.TaskStatus(context.Background(), args[0])
	if err != nil {
		return requestError("fetch the task status", err)
	}
	printer.Printf("%s\n", status)
	return nil
}

func runTaskResult(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.TaskResult(context.Background(), args[0])
	if err != nil {
		return requestError("fetch the task result", err)
	}
	outputJSON(result)
	return nil
}
