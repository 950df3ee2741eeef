package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"folio/internal/api"
	"folio/internal/queueaccess"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	var (
		deleteBlocked  bool
		ignoreMetadata bool
		jsonOut        bool
	)

	cmd := &cobra.Command{
		Use:   "import PATH...",
		Short: "Queue comic archives for import",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.ImportRequest{Paths: make([]string, 0, len(args))}
			for _, arg := range args {
				abs, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve %q: %w", arg, err)
				}
				req.Paths = append(req.Paths, abs)
			}
			if cmd.Flags().Changed("delete-blocked-pages") {
				req.DeleteBlockedPages = &deleteBlocked
			}
			if cmd.Flags().Changed("ignore-metadata") {
				req.IgnoreMetadata = &ignoreMetadata
			}

			return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
				records, err := access.Import(cmd.Context(), req)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, records)
				}
				out := cmd.OutOrStdout()
				for _, rec := range records {
					fmt.Fprintf(out, "Queued task %d: import %s\n", rec.ID, rec.Properties["path"])
				}
				if !access.Live() {
					fmt.Fprintln(out, "Daemon not running; tasks will run when it starts")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&deleteBlocked, "delete-blocked-pages", false, "Flag pages whose hash is blocked as deleted")
	cmd.Flags().BoolVar(&ignoreMetadata, "ignore-metadata", false, "Skip embedded ComicInfo.xml")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
