package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"whisprd/pkg/types"
)

func newModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage local model artifacts",
	}
	cmd.AddCommand(newModelsListCmd(), newModelsDownloadCmd(), newModelsDeleteCmd())
	return cmd
}

func newModelsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registry models and their on-disk state",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := newManager()
			if err != nil {
				return err
			}
			defer m.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tDOWNLOADED\tSIZE")
			for _, st := range m.Models(cmd.Context()).Models {
				size := "-"
				downloaded := "no"
				if st.Downloaded {
					downloaded = "yes"
					size = humanize.Bytes(uint64(st.SizeBytes))
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", st.ID, st.Kind, downloaded, size)
			}
			return w.Flush()
		},
	}
}

func newModelsDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <model-id>",
		Short: "Download a model artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := newManager()
			if err != nil {
				return err
			}
			defer m.Close()

			var bar *progressbar.ProgressBar
			path, err := m.Download(cmd.Context(), args[0], func(p types.DownloadProgress) {
				if bar == nil {
					bar = progressbar.DefaultBytes(p.Total, "downloading "+p.ModelID)
				}
				_ = bar.Set64(p.Downloaded)
			})
			if bar != nil {
				_ = bar.Finish()
				fmt.Println()
			}
			if err != nil {
				return err
			}
			fmt.Printf("installed: %s\n", path)
			return nil
		},
	}
}

func newModelsDeleteCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "delete [model-id]",
		Short: "Delete a model's local artifact",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("a model id or --all is required")
			}
			m, _, err := newManager()
			if err != nil {
				return err
			}
			defer m.Close()

			var resp types.DeleteResponse
			if all {
				resp, err = m.DeleteAll()
			} else {
				resp, err = m.Delete(args[0])
			}
			if err != nil {
				return err
			}
			if !resp.Deleted {
				fmt.Println("nothing to delete")
				return nil
			}
			fmt.Printf("freed %s\n", humanize.Bytes(uint64(resp.FreedBytes)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "delete every installed model")
	return cmd
}
