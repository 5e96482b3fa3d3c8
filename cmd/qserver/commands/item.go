package commands

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/beamline/queueserver/internal/printer"
	"github.com/beamline/queueserver/internal/resolver"
	"github.com/beamline/queueserver/pkg/qsapi"
)

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Add, inspect and rearrange queue items",
}

var (
	itemArgs        string
	itemKwargs      string
	itemInstruction bool
	itemPos         string
	itemBeforeUID   string
	itemAfterUID    string
	itemUID         string
	itemDestPos     string
	itemDestBefore  string
	itemDestAfter   string
	itemReplace     bool
)

var itemAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a plan or instruction to the queue",
	Long: `Add a plan or instruction to the queue.

Positional arguments and keyword arguments of the plan are passed as JSON
via --args and --kwargs. By default the item is added to the back of the
queue; use --pos, --before-uid or --after-uid to choose a position.

Examples:
  qserver item add count --args '[["det1","det2"]]' --kwargs '{"num": 5}'
  qserver item add scan --pos front
  qserver item add queue_stop --instruction`,
	Args: cobra.ExactArgs(1),
	RunE: runItemAdd,
}

var itemGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show one queue item",
	Long: `Show one queue item.

Selects the item by --uid or by --pos (defaults to the back of the queue).
A unique UID prefix of at least 6 characters may be used instead of the
full UID.`,
	RunE: runItemGet,
}

var itemUpdateCmd = &cobra.Command{
	Use:   "update <uid> <name>",
	Short: "Update an existing queue item",
	Long: `Update an existing queue item, identified by its UID.

With --replace, the item is assigned a new UID.`,
	Args: cobra.ExactArgs(2),
	RunE: runItemUpdate,
}

var itemRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove one queue item",
	RunE:  runItemRemove,
}

var itemMoveCmd = &cobra.Command{
	Use:   "move",
	Short: "Move a queue item to a new position",
	Long: `Move a queue item to a new position.

The source is selected by --uid or --pos; the destination by --dest-pos,
--dest-before or --dest-after.

Examples:
  qserver item move --pos back --dest-pos front
  qserver item move --uid <uid> --dest-after <other-uid>`,
	RunE: runItemMove,
}

var itemExecuteCmd = &cobra.Command{
	Use:   "execute <name>",
	Short: "Execute a plan immediately, bypassing the queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runItemExecute,
}

func init() {
	for _, c := range []*cobra.Command{itemAddCmd, itemExecuteCmd} {
		c.Flags().StringVar(&itemArgs, "args", "", "Positional arguments as a JSON array")
		c.Flags().StringVar(&itemKwargs, "kwargs", "", "Keyword arguments as a JSON object")
	}
	itemAddCmd.Flags().BoolVar(&itemInstruction, "instruction", false, "Add an instruction instead of a plan")
	itemAddCmd.Flags().StringVar(&itemPos, "pos", "", "Position: front, back or an index")
	itemAddCmd.Flags().StringVar(&itemBeforeUID, "before-uid", "", "Insert before the item with this UID")
	itemAddCmd.Flags().StringVar(&itemAfterUID, "after-uid", "", "Insert after the item with this UID")

	for _, c := range []*cobra.Command{itemGetCmd, itemRemoveCmd, itemMoveCmd} {
		c.Flags().StringVar(&itemUID, "uid", "", "Select the item with this UID or unique UID prefix")
		c.Flags().StringVar(&itemPos, "pos", "", "Select the item at this position: front, back or an index")
	}
	itemMoveCmd.Flags().StringVar(&itemDestPos, "dest-pos", "", "Destination position: front, back or an index")
	itemMoveCmd.Flags().StringVar(&itemDestBefore, "dest-before", "", "Move before the item with this UID")
	itemMoveCmd.Flags().StringVar(&itemDestAfter, "dest-after", "", "Move after the item with this UID")

	itemUpdateCmd.Flags().StringVar(&itemArgs, "args", "", "Positional arguments as a JSON array")
	itemUpdateCmd.Flags().StringVar(&itemKwargs, "kwargs", "", "Keyword arguments as a JSON object")
	itemUpdateCmd.Flags().BoolVar(&itemReplace, "replace", false, "Assign a new UID to the updated item")

	itemCmd.AddCommand(itemAddCmd)
	itemCmd.AddCommand(itemGetCmd)
	itemCmd.AddCommand(itemUpdateCmd)
	itemCmd.AddCommand(itemRemoveCmd)
	itemCmd.AddCommand(itemMoveCmd)
	itemCmd.AddCommand(itemExecuteCmd)
	rootCmd.AddCommand(itemCmd)
}

// buildItem constructs a plan or instruction from the command-line flags.
func buildItem(name string, instruction bool) (*qsapi.Item, error) {
	if instruction {
		return qsapi.NewInstruction(name), nil
	}

	var args []any
	if itemArgs != "" {
		if err := json.Unmarshal([]byte(itemArgs), &args); err != nil {
			return nil, printer.Error("Invalid --args value",
				"--args must be a JSON array, e.g. '[[\"det1\"]]'.", nil)
		}
	}
	var kwargs map[string]any
	if itemKwargs != "" {
		if err := json.Unmarshal([]byte(itemKwargs), &kwargs); err != nil {
			return nil, printer.Error("Invalid --kwargs value",
				"--kwargs must be a JSON object, e.g. '{\"num\": 5}'.", nil)
		}
	}
	return qsapi.NewPlan(name, args, kwargs), nil
}

// parsePosition converts a --pos value into a Position.
func parsePosition(s string) (qsapi.Position, error) {
	switch s {
	case "front":
		return qsapi.Front(), nil
	case "back":
		return qsapi.Back(), nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return qsapi.Position{}, printer.Error("Invalid --pos value",
			"--pos must be 'front', 'back' or an integer index.", nil)
	}
	return qsapi.Index(i), nil
}

// resolveUID expands a UID prefix into the full UID of a queue item.
func resolveUID(ctx context.Context, client *qsapi.Client, prefix string) (string, error) {
	queue, err := client.QueueGet(ctx)
	if err != nil {
		return "", requestError("fetch the queue", err)
	}

	uid, err := resolver.ResolveItemUID(queue.Items, prefix)
	if err != nil {
		var ambiguous *resolver.AmbiguousError
		if errors.As(err, &ambiguous) {
			return "", printer.Error("Ambiguous item UID", resolver.FormatAmbiguousError(ambiguous), nil)
		}
		return "", printer.Error("Item not found", err.Error(),
			[]string{"Run 'qserver queue get' to list the queue items and their UIDs."})
	}
	return uid, nil
}

// selectFlags converts --uid/--pos into item selection options. UID prefixes
// are expanded against the current queue.
func selectFlags(ctx context.Context, client *qsapi.Client) ([]qsapi.SelectOption, error) {
	var sel []qsapi.SelectOption
	if itemUID != "" {
		uid, err := resolveUID(ctx, client, itemUID)
		if err != nil {
			return nil, err
		}
		sel = append(sel, qsapi.SelectUID(uid))
	}
	if itemPos != "" {
		pos, err := parsePosition(itemPos)
		if err != nil {
			return nil, err
		}
		sel = append(sel, qsapi.SelectPos(pos))
	}
	return sel, nil
}

func printItem(item *qsapi.Item) {
	if flagJSON {
		outputJSON(item)
		return
	}
	printer.Printf("%s\n", formatItem(item))
}

func runItemAdd(cmd *cobra.Command, args []string) error {
	item, err := buildItem(args[0], itemInstruction)
	if err != nil {
		return err
	}

	var opts []qsapi.AddOption
	if itemPos != "" {
		pos, err := parsePosition(itemPos)
		if err != nil {
			return err
		}
		opts = append(opts, qsapi.AtPosition(pos))
	}
	if itemBeforeUID != "" {
		opts = append(opts, qsapi.BeforeUID(itemBeforeUID))
	}
	if itemAfterUID != "" {
		opts = append(opts, qsapi.AfterUID(itemAfterUID))
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	added, err := client.ItemAdd(context.Background(), item, opts...)
	if err != nil {
		return requestError("add the item", err)
	}

	printer.Success("Item added to the queue\n")
	printItem(added)
	return nil
}

func runItemGet(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	sel, err := selectFlags(context.Background(), client)
	if err != nil {
		return err
	}

	item, err := client.ItemGet(context.Background(), sel...)
	if err != nil {
		return requestError("fetch the item", err)
	}
	printItem(item)
	return nil
}

func runItemUpdate(cmd *cobra.Command, args []string) error {
	item, err := buildItem(args[1], false)
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	uid, err := resolveUID(context.Background(), client, args[0])
	if err != nil {
		return err
	}
	item.ItemUID = uid

	updated, err := client.ItemUpdate(context.Background(), item, itemReplace)
	if err != nil {
		return requestError("update the item", err)
	}

	printer.Success("Item updated\n")
	printItem(updated)
	return nil
}

func runItemRemove(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	sel, err := selectFlags(context.Background(), client)
	if err != nil {
		return err
	}

	removed, err := client.ItemRemove(context.Background(), sel...)
	if err != nil {
		return requestError("remove the item", err)
	}

	printer.Success("Item removed from the queue\n")
	printItem(removed)
	return nil
}

func runItemMove(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := context.Background()
	sel, err := selectFlags(ctx, client)
	if err != nil {
		return err
	}
	if len(sel) != 1 {
		return printer.Error("Invalid item selection",
			"Select the item to move with exactly one of --uid or --pos.", nil)
	}

	var dest qsapi.DestOption
	switch {
	case itemDestPos != "":
		pos, err := parsePosition(itemDestPos)
		if err != nil {
			return err
		}
		dest = qsapi.DestPos(pos)
	case itemDestBefore != "":
		uid, err := resolveUID(ctx, client, itemDestBefore)
		if err != nil {
			return err
		}
		dest = qsapi.DestBefore(uid)
	case itemDestAfter != "":
		uid, err := resolveUID(ctx, client, itemDestAfter)
		if err != nil {
			return err
		}
		dest = qsapi.DestAfter(uid)
	default:
		return printer.Error("No destination given",
			"Pass one of --dest-pos, --dest-before or --dest-after.", nil)
	}

	moved, err := client.ItemMove(ctx, sel[0], dest)
	if err != nil {
		return requestError("move the item", err)
	}

	printer.Success("Item moved\n")
	printItem(moved)
	return nil
}

func runItemExecute(cmd *cobra.Command, args []string) error {
	item, err := buildItem(args[0], false)
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	started, err := client.ItemExecute(context.Background(), item)
	if err != nil {
		return requestError("execute the item", err)
	}

	printer.Success("Item started\n")
	printItem(started)
	return nil
}
