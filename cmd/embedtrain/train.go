package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ken/embed_trainer/internal/config"
	"github.com/ken/embed_trainer/pkg/dataset"
	"github.com/ken/embed_trainer/pkg/model"
	"github.com/ken/embed_trainer/pkg/model/hub"
	"github.com/ken/embed_trainer/pkg/recipe"
)

// newTrainCommand runs a training configuration from a YAML file
func newTrainCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run a fine-tuning job described by a YAML configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}
			if len(cfg.Datasets.Train) == 0 {
				return fmt.Errorf("config %s defines no train datasets", configFile)
			}
			return runRecipe(cmd.Context(), recipeFromConfig(cfg), cfg.Model.Encoder, cfg.Hub.Push)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "train.yaml", "path to the training configuration file")

	return cmd
}

// recipeFromConfig converts a loaded configuration into a recipe so the
// YAML-driven and built-in paths share one composition route
func recipeFromConfig(cfg *config.Config) *recipe.Recipe {
	r := &recipe.Recipe{
		Name:       cfg.Args.RunName,
		Model:      cfg.Model.Name,
		Args:       cfg.Args,
		HubRepo:    cfg.Hub.Repo,
		AdapterDim: cfg.Model.AdapterDim,
	}
	if r.Name == "" {
		r.Name = "train"
	}
	for _, spec := range cfg.Datasets.Train {
		r.Train = append(r.Train, recipe.DatasetEntry{
			Spec: dataset.Spec{Alias: spec.Alias, Name: spec.Name, Config: spec.Config, Split: spec.Split},
			Loss: spec.Loss,
		})
	}
	for _, spec := range cfg.Datasets.Eval {
		r.Eval = append(r.Eval, recipe.DatasetEntry{
			Spec: dataset.Spec{Alias: spec.Alias, Name: spec.Name, Config: spec.Config, Split: spec.Split},
			Loss: spec.Loss,
		})
	}
	return r
}

// runRecipe composes and executes a recipe, optionally pushing the final
// model to the model repository
func runRecipe(ctx context.Context, r *recipe.Recipe, encoderBackend string, push bool) error {
	token := config.Token()

	enc, err := model.ResolveEncoder(r.Model, encoderBackend, token)
	if err != nil {
		return err
	}
	defer enc.Close()

	loader := dataset.NewAutoLoader(token)

	tr, _, err := recipe.Compose(ctx, r, enc, loader)
	if err != nil {
		return err
	}

	result, err := tr.Train(ctx)
	if err != nil {
		return err
	}
	slog.Info("run finished", "run", result.RunName, "steps", result.GlobalSteps, "output", result.OutputDir)

	if push && r.HubRepo != "" {
		client, err := hub.NewClient(token)
		if err != nil {
			return err
		}
		if err := client.CreateRepo(ctx, r.HubRepo); err != nil {
			return err
		}
		if err := client.PushModelDir(ctx, r.HubRepo, result.OutputDir); err != nil {
			return err
		}
		slog.Info("pushed model", "repo", r.HubRepo)
	}

	return nil
}
