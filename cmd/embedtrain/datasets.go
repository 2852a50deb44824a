package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ken/embed_trainer/internal/config"
	"github.com/ken/embed_trainer/pkg/dataset"
)

// newDatasetsCommand inspects a remote or local dataset without training
func newDatasetsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "Inspect datasets",
	}
	cmd.AddCommand(newDatasetsInspectCommand())
	return cmd
}

func newDatasetsInspectCommand() *cobra.Command {
	var (
		subset string
		split  string
		rows   int
	)

	cmd := &cobra.Command{
		Use:   "inspect <name>",
		Short: "Load a slice of a dataset and print its inferred schema and sample rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := dataset.NewAutoLoader(config.Token())

			spec := dataset.Spec{
				Name:   args[0],
				Config: subset,
				Split:  fmt.Sprintf("%s[:%d]", split, rows),
			}
			ds, err := loader.Load(cmd.Context(), spec)
			if err != nil {
				return err
			}

			fmt.Printf("dataset: %s\nschema:  %s\nrows:    %d\n\n", ds.Name, ds.Schema, ds.Len())

			table := tablewriter.NewWriter(os.Stdout)
			header := []string{"Text 1", "Text 2"}
			if ds.Schema == dataset.SchemaTriplet {
				header = append(header, "Text 3")
			}
			switch ds.Schema {
			case dataset.SchemaPairClass:
				header = append(header, "Label")
			case dataset.SchemaPairScore:
				header = append(header, "Score")
			}
			table.SetHeader(header)

			for _, r := range ds.Records {
				row := make([]string, 0, len(header))
				for _, text := range r.Texts {
					row = append(row, truncate(text, 48))
				}
				switch ds.Schema {
				case dataset.SchemaPairClass:
					row = append(row, fmt.Sprintf("%d", r.Label))
				case dataset.SchemaPairScore:
					row = append(row, fmt.Sprintf("%.3f", r.Score))
				}
				table.Append(row)
			}
			table.Render()

			return nil
		},
	}

	cmd.Flags().StringVar(&subset, "subset", "", "dataset configuration name")
	cmd.Flags().StringVar(&split, "split", "train", "split to sample from")
	cmd.Flags().IntVar(&rows, "rows", 10, "number of rows to fetch")

	return cmd
}

// truncate shortens a string to at most max runes, never splitting a
// multi-byte character
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
