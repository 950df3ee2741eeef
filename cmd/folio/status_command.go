package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"folio/internal/api"
	"folio/internal/preflight"
	"folio/internal/queueaccess"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var (
		follow  bool
		wait    time.Duration
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pipeline status, or follow comic changes with --follow",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				if follow {
					return err
				}
				return offlineStatus(cmd, ctx)
			}
			resp, err := client.Status(cmd.Context(), time.Time{}, 0)
			if api.IsUnavailable(err) && !follow {
				return offlineStatus(cmd, ctx)
			}
			if err != nil {
				return err
			}
			if jsonOut && !follow {
				return writeJSON(cmd, resp)
			}
			renderStatus(cmd.OutOrStdout(), resp)
			if !follow {
				return nil
			}
			return followStatus(cmd, client, resp.Cursor, wait, jsonOut)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing comics as the pipeline changes them")
	cmd.Flags().DurationVar(&wait, "wait", time.Minute, "Long-poll timeout per request when following")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func followStatus(cmd *cobra.Command, client *api.Client, cursor time.Time, wait time.Duration, jsonOut bool) error {
	out := cmd.OutOrStdout()
	for {
		resp, err := client.Status(cmd.Context(), cursor, wait)
		if err != nil {
			if cmd.Context().Err() != nil {
				return nil
			}
			return err
		}
		cursor = resp.Cursor
		for _, c := range resp.Comics {
			if jsonOut {
				if err := writeJSON(cmd, c); err != nil {
					return err
				}
				continue
			}
			state := "updated"
			switch {
			case c.Deleted():
				state = failColor.Sprint("deleted")
			case !c.ProcessedAt.IsZero():
				state = passColor.Sprint("processed")
			}
			fmt.Fprintf(out, "%s  %-9s #%d %s (%d pages)\n",
				c.UpdatedAt.Local().Format(time.TimeOnly), state, c.ID, c.DisplayName(), c.PageCount)
		}
	}
}

func renderStatus(out io.Writer, resp api.StatusResponse) {
	wf := resp.Workflow
	fmt.Fprintf(out, "Dispatcher:  %s (%s)\n", runningLabel(wf.Running), wf.Owner)
	fmt.Fprintf(out, "Last cycle:  %s\n", relativeTime(wf.LastCycle))
	if wf.LastError != "" {
		fmt.Fprintf(out, "Last error:  %s\n", failColor.Sprint(wf.LastError))
	}
	fmt.Fprintf(out, "Cycles:      %d (claimed %d, submitted %d, undecodable %d, deferred %d)\n",
		wf.Stats.Cycles, wf.Stats.Claimed, wf.Stats.Submitted, wf.Stats.DecodeFailed, wf.Stats.Deferred)
	fmt.Fprintf(out, "Queue:       %d pending, %d claimed, %d failed\n", wf.Queue.Pending, wf.Queue.Claimed, wf.Queue.Failed)

	kinds := make([]string, 0, len(wf.Runtime))
	for kind := range wf.Runtime {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	if len(kinds) > 0 {
		rows := make([][]string, 0, len(kinds))
		for _, kind := range kinds {
			counts := wf.Runtime[kind]
			rows = append(rows, []string{kind, strconv.Itoa(counts.Queued), strconv.Itoa(counts.Running)})
		}
		fmt.Fprint(out, renderTable([]string{"Job", "Queued", "Running"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
	}
	renderPreflight(out, resp.Preflight)
}

func renderPreflight(out io.Writer, results []preflight.Result) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(out, "Preflight:")
	for _, r := range results {
		mark := passColor.Sprint("ok  ")
		if !r.Passed {
			mark = failColor.Sprint("FAIL")
		}
		fmt.Fprintf(out, "  %s %s: %s\n", mark, r.Name, r.Detail)
	}
}

func runningLabel(running bool) string {
	if running {
		return passColor.Sprint("running")
	}
	return failColor.Sprint("stopped")
}

// offlineStatus reports queue state straight from the database.
func offlineStatus(cmd *cobra.Command, ctx *commandContext) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Daemon:      %s\n", runningLabel(false))
	return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
		health, err := access.Health(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Queue:       %d pending, %d claimed, %d failed\n", health.Pending, health.Claimed, health.Failed)
		cfg, err := ctx.ensureConfig()
		if err != nil {
			return err
		}
		renderPreflight(out, preflight.RunAll(cfg))
		return nil
	})
}
