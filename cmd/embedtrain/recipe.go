package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ken/embed_trainer/pkg/recipe"
)

// newRecipeCommand runs one of the built-in training recipes
func newRecipeCommand() *cobra.Command {
	var (
		offline bool
		output  string
		push    bool
	)

	cmd := &cobra.Command{
		Use:   "recipe <name>",
		Short: "Run a built-in training recipe",
		Long: "Run a built-in training recipe.\n\nAvailable recipes: " +
			strings.Join(recipe.Names(), ", "),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := recipe.Lookup(args[0])
			if err != nil {
				return fmt.Errorf("%w (available: %s)", err, strings.Join(recipe.Names(), ", "))
			}

			if output != "" {
				r.Args.OutputDir = output
			}

			backend := "hf"
			if offline {
				backend = "static"
			}
			return runRecipe(cmd.Context(), r, backend, push)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "use the deterministic offline encoder instead of the inference API")
	cmd.Flags().StringVarP(&output, "output", "o", "", "override the recipe's output directory")
	cmd.Flags().BoolVar(&push, "push", false, "push the final model to the model repository")

	return cmd
}
