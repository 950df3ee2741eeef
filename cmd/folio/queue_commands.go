package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"folio/internal/api"
	"folio/internal/queueaccess"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the task queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearFailedCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueReleaseCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var (
		query   api.QueueQuery
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List task records in queue order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
				records, err := access.List(cmd.Context(), query)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, records)
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Type", "State", "Attempts", "Created", "Properties", "Last Error"},
					buildQueueRows(records),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&query.Types, "type", "t", nil, "Only show these task types")
	cmd.Flags().BoolVar(&query.FailedOnly, "failed", false, "Only show failed records")
	cmd.Flags().IntVar(&query.Limit, "limit", 0, "Maximum number of records")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func buildQueueRows(records []api.TaskRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			strconv.FormatInt(rec.ID, 10),
			rec.Type,
			colorState(rec.State),
			strconv.Itoa(rec.Attempts),
			relativeTime(rec.CreatedAt),
			truncate(formatProperties(rec.Properties), 60),
			truncate(rec.LastError, 50),
		})
	}
	return rows
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Summarize queue state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
				health, err := access.Health(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, health)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"State", "Count"},
					[][]string{
						{"pending", strconv.Itoa(health.Pending)},
						{"claimed", strconv.Itoa(health.Claimed)},
						{"expired claims", strconv.Itoa(health.Expired)},
						{"failed", strconv.Itoa(health.Failed)},
						{"total", strconv.Itoa(health.Total)},
					},
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [ID...]",
		Short: "Clear the failure of records so they run again (all failed when no ids)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
				n, err := access.Retry(cmd.Context(), ids)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retrying %d record(s)\n", n)
				return nil
			})
		},
	}
}

func newQueueClearFailedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-failed",
		Short: "Delete failed records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
				n, err := access.ClearFailed(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d failed record(s)\n", n)
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID...",
		Short: "Delete records (daemon must be stopped)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
				n, err := access.Remove(cmd.Context(), ids)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d record(s)\n", n)
				return nil
			})
		},
	}
}

func newQueueReleaseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "release",
		Short: "Drop every claim left by a crashed daemon (daemon must be stopped)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
				n, err := access.ReleaseClaims(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Released %d claim(s)\n", n)
				return nil
			})
		},
	}
}
