package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/keenon/AddBiomechanics-sub000/internal/livedir"
	"github.com/keenon/AddBiomechanics-sub000/pkg/models"
)

func pathArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func (a *app) lsCommand() *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List folders and files under a path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := a.openDirectory(ctx, false)
			if err != nil {
				return err
			}
			defer d.Close()

			entry, err := d.Load(ctx, pathArg(args), recursive)
			if err != nil {
				return err
			}
			printEntry(cmd.OutOrStdout(), entry)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "list the whole subtree")
	return cmd
}

func (a *app) treeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tree [path]",
		Short: "Load a path and each child folder in parallel, then print the tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := a.openDirectory(ctx, false)
			if err != nil {
				return err
			}
			defer d.Close()

			fault := d.FaultInPath(pathArg(args))
			if err := fault.Wait(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			top := fault.Entry()
			for _, f := range top.Files {
				fmt.Fprintf(out, "%s\t%s\n", f.Key, formatSize(f.Size))
			}
			for _, folder := range top.Folders {
				fmt.Fprintln(out, folder)
				child, ok := d.GetCachedPath(folder)
				if !ok {
					continue
				}
				for _, f := range child.Files {
					rel := strings.TrimPrefix(f.Key, folder)
					fmt.Fprintf(out, "  %s\t%s\n", rel, formatSize(f.Size))
				}
			}
			return nil
		},
	}
}

func (a *app) catCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Write an object's body to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := a.openDirectory(ctx, false)
			if err != nil {
				return err
			}
			defer d.Close()

			body, err := d.DownloadFile(ctx, args[0])
			if err != nil {
				return err
			}
			defer body.Close()
			_, err = io.Copy(cmd.OutOrStdout(), body)
			return err
		},
	}
}

func (a *app) putCommand() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "put <path> [local-file]",
		Short: "Upload a local file, or --text, to a path",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(args) == 1 && !cmd.Flags().Changed("text") {
				return fmt.Errorf("either a local file or --text is required")
			}

			d, err := a.openDirectory(ctx, false)
			if err != nil {
				return err
			}
			defer d.Close()

			if len(args) == 1 {
				return d.UploadText(ctx, args[0], text)
			}

			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}

			errOut := cmd.ErrOrStderr()
			progress := func(sent, total int64) {
				fmt.Fprintf(errOut, "\r%s / %s", formatSize(sent), formatSize(total))
			}
			if err := d.UploadFile(ctx, args[0], f, info.Size(), progress); err != nil {
				return err
			}
			fmt.Fprintln(errOut)
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "upload this text instead of a file")
	return cmd
}

func (a *app) rmCommand() *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete an object, or with -r every object under a prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := a.openDirectory(ctx, false)
			if err != nil {
				return err
			}
			defer d.Close()

			if recursive {
				return d.DeleteByPrefix(ctx, args[0])
			}
			return d.Delete(ctx, args[0])
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "delete every object under the prefix")
	return cmd
}

func (a *app) urlCommand() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "url <path>",
		Short: "Print a signed download URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := a.openDirectory(ctx, false)
			if err != nil {
				return err
			}
			defer d.Close()

			u, err := d.GetSignedURL(ctx, args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "URL lifetime (default from config)")
	return cmd
}

func printEntry(out io.Writer, e livedir.PathEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	folders := append([]string(nil), e.Folders...)
	sort.Strings(folders)
	for _, folder := range folders {
		fmt.Fprintf(w, "%s\t-\t-\n", folder)
	}

	files := append([]models.FileRecord(nil), e.Files...)
	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.Key, formatSize(f.Size), formatTime(f.LastModified))
	}
}

func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
