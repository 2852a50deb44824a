package trainer

import (
	"context"
	"fmt"

	"github.com/olekukonko/tablewriter"

	"github.com/ken/embed_trainer/pkg/dataset"
)

// EvalResult is the evaluation outcome for one dataset
type EvalResult struct {
	Dataset string
	Loss    string
	Value   float64
	Batches int
}

// runEval evaluates the model against every eval dataset that has a
// matching loss, without touching model parameters, and prints a report
// table. An empty eval collection is a no-op.
func (t *Trainer) runEval(ctx context.Context, step int) ([]EvalResult, error) {
	if len(t.eval) == 0 {
		return nil, nil
	}

	var results []EvalResult
	for _, name := range t.eval.Keys() {
		lossFn, ok := t.losses[name]
		if !ok {
			// Eval keys reuse the training key space; without a loss
			// there is no metric to report for this dataset
			t.logger.Warn("no loss for eval dataset, skipping", "dataset", name)
			continue
		}

		ds := t.eval[name]
		if err := lossFn.Compatible(ds.Schema); err != nil {
			return nil, fmt.Errorf("eval dataset %q: %w", name, err)
		}

		r, err := t.evalDataset(ctx, ds, lossFn.Name(), name)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}

	if len(results) > 0 {
		t.renderEvalTable(step, results)
	}
	return results, nil
}

// evalDataset computes the record-weighted average loss over sequential
// batches of one dataset
func (t *Trainer) evalDataset(ctx context.Context, ds *dataset.Dataset, lossName, key string) (EvalResult, error) {
	lossFn := t.losses[key]

	var weighted float64
	var total, batches int
	for start := 0; start < ds.Len(); start += t.args.EvalBatchSize {
		select {
		case <-ctx.Done():
			return EvalResult{}, ctx.Err()
		default:
		}

		end := start + t.args.EvalBatchSize
		if end > ds.Len() {
			end = ds.Len()
		}
		records := ds.Records[start:end]

		b, err := t.encodeBatch(ctx, ds.Schema, records)
		if err != nil {
			return EvalResult{}, fmt.Errorf("eval dataset %q: %w", key, err)
		}
		value, err := lossFn.Evaluate(b)
		if err != nil {
			return EvalResult{}, fmt.Errorf("eval dataset %q: %w", key, err)
		}

		weighted += value * float64(len(records))
		total += len(records)
		batches++
	}

	return EvalResult{
		Dataset: key,
		Loss:    lossName,
		Value:   weighted / float64(total),
		Batches: batches,
	}, nil
}

// renderEvalTable prints the per-dataset evaluation losses
func (t *Trainer) renderEvalTable(step int, results []EvalResult) {
	fmt.Fprintf(t.evalOut, "evaluation at step %d (run %s)\n", step, t.args.RunName)

	table := tablewriter.NewWriter(t.evalOut)
	table.SetHeader([]string{"Dataset", "Loss", "Avg Loss", "Batches"})
	for _, r := range results {
		table.Append([]string{
			r.Dataset,
			r.Loss,
			fmt.Sprintf("%.4f", r.Value),
			fmt.Sprintf("%d", r.Batches),
		})
	}
	table.Render()
}
