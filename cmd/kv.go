package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"reqtx/internal/bootstrap"
	"reqtx/internal/bootstrap/logging"
	"reqtx/internal/errs"
)

var kvCmd = &cobra.Command{
	Use:   "kv",
	Short: "Read and write key-value entries without going through HTTP",
}

var kvGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print the value stored under KEY",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, app *bootstrap.App) error {
		entry, err := app.KV.Get(cmd.Context(), args[0])
		if err != nil {
			return errs.Wrap(err, "get entry")
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), entry.Value); err != nil {
			return errs.Wrap(err, "write get output")
		}
		return nil
	}),
}

var kvPutCmd = &cobra.Command{
	Use:   "put KEY VALUE",
	Short: "Store VALUE under KEY",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, app *bootstrap.App) error {
		ctx := cmd.Context()
		entry, err := app.KV.Put(ctx, args[0], args[1])
		if err != nil {
			logging.Error(ctx, "put entry failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "put entry")
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "stored: %s\n", entry.Key); err != nil {
			return errs.Wrap(err, "write put output")
		}
		return nil
	}),
}

var kvDeleteCmd = &cobra.Command{
	Use:   "delete KEY",
	Short: "Delete KEY",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, app *bootstrap.App) error {
		ctx := cmd.Context()
		if err := app.KV.Delete(ctx, args[0]); err != nil {
			logging.Error(ctx, "delete entry failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "delete entry")
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted: %s\n", args[0]); err != nil {
			return errs.Wrap(err, "write delete output")
		}
		return nil
	}),
}

var kvListCmd = &cobra.Command{
	Use:   "list",
	Short: "List entries, optionally filtered by key prefix",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
		prefix, _ := cmd.Flags().GetString("prefix")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := app.KV.List(cmd.Context(), prefix, limit)
		if err != nil {
			return errs.Wrap(err, "list entries")
		}
		for _, entry := range entries {
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", entry.Key, entry.Value); err != nil {
				return errs.Wrap(err, "write list output")
			}
		}
		return nil
	}),
}

var kvHistoryCmd = &cobra.Command{
	Use:   "history KEY",
	Short: "Print the change history of KEY as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, app *bootstrap.App) error {
		limit, _ := cmd.Flags().GetInt("limit")

		events, err := app.KV.History(cmd.Context(), args[0], limit)
		if err != nil {
			return errs.Wrap(err, "list history")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(events); err != nil {
			return errs.Wrap(err, "write history output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(kvCmd)
	kvCmd.AddCommand(kvGetCmd, kvPutCmd, kvDeleteCmd, kvListCmd, kvHistoryCmd)

	kvListCmd.Flags().String("prefix", "", "Only list keys starting with this prefix")
	kvListCmd.Flags().Int("limit", 100, "Maximum number of entries")
	kvHistoryCmd.Flags().Int("limit", 0, "Maximum number of events (0 = all)")
}
