package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"folio/internal/api"
)

func newComicCommand(ctx *commandContext) *cobra.Command {
	comicCmd := &cobra.Command{
		Use:   "comic",
		Short: "Inspect a comic and queue work for it",
	}

	comicCmd.AddCommand(newComicShowCommand(ctx))
	comicCmd.AddCommand(newComicConvertCommand(ctx))
	comicCmd.AddCommand(newComicRescanCommand(ctx))
	comicCmd.AddCommand(newComicExportCommand(ctx))
	comicCmd.AddCommand(newComicDeleteCommand(ctx))

	return comicCmd
}

func newComicShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show a comic with its pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Comic(cmd.Context(), id)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				renderComic(cmd, resp)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func renderComic(cmd *cobra.Command, resp api.ComicResponse) {
	out := cmd.OutOrStdout()
	c := resp.Comic
	fmt.Fprintf(out, "%s\n", c.DisplayName())
	fmt.Fprintf(out, "  File:      %s (%s, %s)\n", c.Filename, c.ArchiveType, byteSize(c.FileSize))
	if c.Publisher != "" {
		fmt.Fprintf(out, "  Publisher: %s\n", c.Publisher)
	}
	fmt.Fprintf(out, "  Pages:     %d\n", c.PageCount)
	fmt.Fprintf(out, "  Processed: %s\n", relativeTime(c.ProcessedAt))
	fmt.Fprintf(out, "  Deleted:   %s\n", yesNo(c.Deleted()))
	if len(resp.Pending) > 0 {
		fmt.Fprintf(out, "  Pending:   %s\n", strings.Join(resp.Pending, ", "))
	}
	if len(resp.ReadingLists) > 0 {
		names := make([]string, 0, len(resp.ReadingLists))
		for _, list := range resp.ReadingLists {
			names = append(names, list.Name)
		}
		fmt.Fprintf(out, "  Lists:     %s\n", strings.Join(names, ", "))
	}
	if len(resp.Pages) == 0 {
		return
	}
	rows := make([][]string, 0, len(resp.Pages))
	for _, p := range resp.Pages {
		rows = append(rows, []string{
			strconv.Itoa(p.Index),
			p.EntryName,
			fmt.Sprintf("%dx%d", p.Width, p.Height),
			byteSize(p.FileSize),
			yesNo(p.Deleted),
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"#", "Entry", "Size", "Bytes", "Deleted"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft},
	))
}

func printQueued(cmd *cobra.Command, resp api.EnqueueResponse) {
	for _, rec := range resp.Tasks {
		fmt.Fprintf(cmd.OutOrStdout(), "Queued task %d: %s %s\n", rec.ID, rec.Type, formatProperties(rec.Properties))
	}
}

func newComicConvertCommand(ctx *commandContext) *cobra.Command {
	var (
		req         api.ConvertRequest
		renamePages bool
	)

	cmd := &cobra.Command{
		Use:   "convert ID",
		Short: "Rewrite a comic into another archive type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("rename-pages") {
				req.RenamePages = &renamePages
			}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Convert(cmd.Context(), id, req)
				if err != nil {
					return err
				}
				printQueued(cmd, resp)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&req.ArchiveType, "type", "t", "", "Target archive type (default archive.default_target)")
	cmd.Flags().BoolVar(&renamePages, "rename-pages", false, "Rename pages to zero-padded sequence numbers")
	cmd.Flags().BoolVar(&req.DeletePages, "delete-pages", false, "Drop pages flagged deleted")
	return cmd
}

func newComicRescanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rescan ID",
		Short: "Re-measure a comic whose file changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Rescan(cmd.Context(), id)
				if err != nil {
					return err
				}
				printQueued(cmd, resp)
				return nil
			})
		},
	}
}

func newComicExportCommand(ctx *commandContext) *cobra.Command {
	var (
		req         api.ExportRequest
		renamePages bool
	)

	cmd := &cobra.Command{
		Use:   "export ID",
		Short: "Write a copy of a comic with embedded metadata to the export directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("rename-pages") {
				req.RenamePages = &renamePages
			}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Export(cmd.Context(), id, req)
				if err != nil {
					return err
				}
				printQueued(cmd, resp)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&req.ArchiveType, "type", "t", "", "Archive type of the copy (default keeps the current type)")
	cmd.Flags().BoolVar(&renamePages, "rename-pages", false, "Rename pages to zero-padded sequence numbers")
	return cmd
}

func newComicDeleteCommand(ctx *commandContext) *cobra.Command {
	var hard bool

	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Soft delete a comic, or remove it and its file with --hard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Delete(cmd.Context(), id, hard)
				if err != nil {
					return err
				}
				printQueued(cmd, resp)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&hard, "hard", false, "Remove the record and the archive file")
	return cmd
}

func newCollectionCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "collection KIND NAME",
		Short: "List the comics of a series, publisher or reading_list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Collection(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				if len(resp.Comics) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No comics in %s %q\n", resp.Kind, resp.Name)
					return nil
				}
				rows := make([][]string, 0, len(resp.Comics))
				for _, c := range resp.Comics {
					rows = append(rows, []string{
						strconv.FormatInt(c.ID, 10),
						c.DisplayName(),
						c.ArchiveType,
						strconv.Itoa(c.PageCount),
						byteSize(c.FileSize),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Comic", "Type", "Pages", "Size"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
