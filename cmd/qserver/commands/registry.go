package commands

import (
	"context"
	"encoding/json"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/beamline/queueserver/internal/printer"
	"github.com/beamline/queueserver/pkg/qsapi"
)

var (
	allowedCmd = &cobra.Command{
		Use:   "allowed",
		Short: "List plans and devices allowed for the current user group",
	}
	existingCmd = &cobra.Command{
		Use:   "existing",
		Short: "List all plans and devices in the worker namespace",
	}
	permissionsCmd = &cobra.Command{
		Use:   "permissions",
		Short: "Inspect and update user group permissions",
	}
)

var (
	permissionsReloadRestore bool
	permissionsSetFile       string
)

func init() {
	allowedCmd.AddCommand(&cobra.Command{
		Use:   "plans",
		Short: "List plans allowed for the current user group",
		RunE:  listCall("fetch allowed plans", (*qsapi.Client).PlansAllowed),
	})
	allowedCmd.AddCommand(&cobra.Command{
		Use:   "devices",
		Short: "List devices allowed for the current user group",
		RunE:  listCall("fetch allowed devices", (*qsapi.Client).DevicesAllowed),
	})
	existingCmd.AddCommand(&cobra.Command{
		Use:   "plans",
		Short: "List all plans in the worker namespace",
		RunE:  listCall("fetch existing plans", (*qsapi.Client).PlansExisting),
	})
	existingCmd.AddCommand(&cobra.Command{
		Use:   "devices",
		Short: "List all devices in the worker namespace",
		RunE:  listCall("fetch existing devices", (*qsapi.Client).DevicesExisting),
	})

	permissionsGetCmd := &cobra.Command{
		Use:   "get",
		Short: "Show the current user group permissions",
		RunE:  runPermissionsGet,
	}
	permissionsReloadCmd := &cobra.Command{
		Use:   "reload",
		Short: "Reload permissions from disk on the server",
		RunE:  runPermissionsReload,
	}
	permissionsSetCmd := &cobra.Command{
		Use:   "set",
		Short: "Upload new user group permissions",
		RunE:  runPermissionsSet,
	}
	permissionsReloadCmd.Flags().BoolVar(&permissionsReloadRestore, "restore", false, "Also restore plans and devices")
	permissionsSetCmd.Flags().StringVar(&permissionsSetFile, "file", "", "JSON file with the permissions (required)")
	_ = permissionsSetCmd.MarkFlagRequired("file")

	permissionsCmd.AddCommand(permissionsGetCmd)
	permissionsCmd.AddCommand(permissionsReloadCmd)
	permissionsCmd.AddCommand(permissionsSetCmd)

	rootCmd.AddCommand(allowedCmd)
	rootCmd.AddCommand(existingCmd)
	rootCmd.AddCommand(permissionsCmd)
}

// listCall builds a RunE that fetches a name→description map and prints
// the sorted names.
func listCall(action string, call func(*qsapi.Client, context.Context) (map[string]any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		items, err := call(client, context.Background())
		if err != nil {
			return requestError(action, err)
		}

		if flagJSON {
			outputJSON(items)
			return nil
		}

		names := make([]string, 0, len(items))
		for name := range items {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			printer.Println(name)
		}
		return nil
	}
}

func runPermissionsGet(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	permissions, err := client.PermissionsGet(context.Background())
	if err != nil {
		return requestError("fetch permissions", err)
	}
	outputJSON(permissions)
	return nil
}

func runPermissionsReload(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.PermissionsReload(context.Background(), permissionsReloadRestore, true); err != nil {
		return requestError("reload permissions", err)
	}
	printer.Success("Permissions reloaded\n")
	return nil
}

func runPermissionsSet(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(permissionsSetFile)
	if err != nil {
		return printer.Error("Failed to read permissions file", err.Error(), nil)
	}
	var permissions map[string]any
	if err := json.Unmarshal(data, &permissions); err != nil {
		return printer.Error("Invalid permissions file",
			"The file must contain a JSON object.", nil)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.PermissionsSet(context.Background(), permissions); err != nil {
		return requestError("set permissions", err)
	}
	printer.Success("Permissions updated\n")
	return nil
}
