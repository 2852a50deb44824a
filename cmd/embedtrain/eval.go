package main

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ken/embed_trainer/internal/config"
	"github.com/ken/embed_trainer/pkg/dataset"
	"github.com/ken/embed_trainer/pkg/loss"
	"github.com/ken/embed_trainer/pkg/model"
)

// newEvalCommand evaluates a saved model against the eval datasets of a
// configuration file, without training
func newEvalCommand() *cobra.Command {
	var (
		configFile string
		modelDir   string
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a saved model on the eval datasets of a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}
			if len(cfg.Datasets.Eval) == 0 {
				return fmt.Errorf("config %s defines no eval datasets", configFile)
			}

			token := config.Token()
			enc, err := model.ResolveEncoder(cfg.Model.Name, cfg.Model.Encoder, token)
			if err != nil {
				return err
			}
			defer enc.Close()

			m, err := model.Load(modelDir, enc)
			if err != nil {
				return err
			}

			loader := dataset.NewAutoLoader(token)

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Dataset", "Loss", "Avg Loss", "Records"})

			for _, spec := range cfg.Datasets.Eval {
				if spec.Loss == "" {
					continue // no metric requested for this dataset
				}

				ds, err := loader.Load(ctx, dataset.Spec{
					Alias: spec.Alias, Name: spec.Name, Config: spec.Config, Split: spec.Split,
				})
				if err != nil {
					return err
				}

				lossFn, err := loss.ForName(spec.Loss, m)
				if err != nil {
					return err
				}
				if err := lossFn.Compatible(ds.Schema); err != nil {
					return err
				}

				avg, err := evalDataset(ctx, m, lossFn, ds, cfg.Args.EvalBatchSize)
				if err != nil {
					return fmt.Errorf("eval dataset %q: %w", ds.Name, err)
				}

				table.Append([]string{ds.Name, lossFn.Name(), fmt.Sprintf("%.4f", avg), fmt.Sprintf("%d", ds.Len())})
			}

			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "train.yaml", "path to the training configuration file")
	cmd.Flags().StringVarP(&modelDir, "model-dir", "m", "", "directory holding the saved model")
	_ = cmd.MarkFlagRequired("model-dir")

	return cmd
}

// evalDataset computes the record-weighted average loss over sequential
// batches of one dataset
func evalDataset(ctx context.Context, m *model.SentenceModel, lossFn loss.Loss, ds *dataset.Dataset, batchSize int) (float64, error) {
	if batchSize < 1 {
		batchSize = 16
	}

	var weighted float64
	var total int
	for start := 0; start < ds.Len(); start += batchSize {
		end := start + batchSize
		if end > ds.Len() {
			end = ds.Len()
		}

		b, err := loss.EncodeBatch(ctx, m, ds.Schema, ds.Records[start:end])
		if err != nil {
			return 0, err
		}
		value, err := lossFn.Evaluate(b)
		if err != nil {
			return 0, err
		}

		weighted += value * float64(end-start)
		total += end - start
	}

	return weighted / float64(total), nil
}
