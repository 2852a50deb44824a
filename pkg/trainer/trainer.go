package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/ken/embed_trainer/internal/config"
	"github.com/ken/embed_trainer/pkg/checkpoint"
	"github.com/ken/embed_trainer/pkg/dataset"
	"github.com/ken/embed_trainer/pkg/loss"
	"github.com/ken/embed_trainer/pkg/model"
)

var (
	// ErrMissingLoss is returned when a training dataset has no loss
	// assigned in the loss mapping
	ErrMissingLoss = errors.New("no loss configured for training dataset")

	// ErrNoTrainDatasets is returned when the training collection is empty
	ErrNoTrainDatasets = errors.New("no training datasets configured")
)

// Trainer drives one sequential fine-tuning run: it routes every training
// dataset to its loss function, interleaves batches across datasets,
// updates the model's adapter, evaluates and checkpoints on the configured
// cadence, and persists the final model.
type Trainer struct {
	model   *model.SentenceModel
	train   dataset.Collection
	eval    dataset.Collection
	losses  map[string]loss.Loss
	args    config.TrainingArguments
	sampler Sampler

	logger  *slog.Logger
	evalOut io.Writer
}

// Option customizes a trainer
type Option func(*Trainer)

// WithLogger overrides the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(t *Trainer) { t.logger = l }
}

// WithEvalWriter redirects the evaluation report table
func WithEvalWriter(w io.Writer) Option {
	return func(t *Trainer) { t.evalOut = w }
}

// New wires a trainer from its parts and validates the configuration
// eagerly: every training dataset must have a schema-compatible loss
// before a single optimization step runs. The eval collection may be
// empty; eval keys that match no training dataset are reported but not
// fatal.
func New(m *model.SentenceModel, train dataset.Collection, losses map[string]loss.Loss,
	eval dataset.Collection, args config.TrainingArguments, opts ...Option) (*Trainer, error) {

	if m == nil {
		return nil, fmt.Errorf("model is required")
	}
	if len(train) == 0 {
		return nil, ErrNoTrainDatasets
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}

	// The completeness invariant: every training dataset name must have
	// exactly one associated loss compatible with that dataset's shape
	for _, name := range train.Keys() {
		ds := train[name]
		lossFn, ok := losses[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingLoss, name)
		}
		if err := lossFn.Compatible(ds.Schema); err != nil {
			return nil, fmt.Errorf("dataset %q: %w", name, err)
		}
	}

	sampler, err := NewSampler(args.BatchSampler)
	if err != nil {
		return nil, err
	}

	t := &Trainer{
		model:   m,
		train:   train,
		eval:    eval,
		losses:  losses,
		args:    args.WithRunName(),
		sampler: sampler,
		logger:  slog.Default(),
		evalOut: os.Stdout,
	}
	for _, opt := range opts {
		opt(t)
	}

	for _, name := range eval.Keys() {
		if _, ok := train[name]; !ok {
			t.logger.Warn("eval dataset matches no training dataset", "dataset", name)
		}
	}

	return t, nil
}

// Result summarizes a completed training run
type Result struct {
	RunName     string
	GlobalSteps int
	OutputDir   string
	Evaluations []EvalResult // from the final evaluation pass, if any
}

// epochStep is one planned optimization step: a dataset name and the
// records of its batch
type epochStep struct {
	name    string
	records []dataset.Record
}

// Train runs the full loop. It either runs to completion, saving the
// final model under the output directory, or aborts on the first error.
func (t *Trainer) Train(ctx context.Context) (*Result, error) {
	rng := rand.New(rand.NewSource(t.args.Seed))

	// Nominal step counts drive the schedule. The no-duplicates sampler
	// can emit a few extra batches; the schedule clamps at zero.
	stepsPerEpoch := 0
	for _, name := range t.train.Keys() {
		n := t.train[name].Len()
		stepsPerEpoch += (n + t.args.TrainBatchSize - 1) / t.args.TrainBatchSize
	}
	totalSteps := t.args.Epochs * stepsPerEpoch
	warmupSteps := int(t.args.WarmupRatio * float64(totalSteps))

	store, err := checkpoint.NewFileStore(t.args.OutputDir)
	if err != nil {
		return nil, err
	}

	if t.args.Precision != "fp32" {
		t.logger.Info("requested precision not supported by this backend, using fp32",
			"requested", t.args.Precision)
	}
	t.logger.Info("starting training run",
		"run", t.args.RunName,
		"model", t.model.Name(),
		"datasets", len(t.train),
		"epochs", t.args.Epochs,
		"total_steps", totalSteps,
		"warmup_steps", warmupSteps)

	result := &Result{RunName: t.args.RunName, OutputDir: t.args.OutputDir}
	globalStep := 0

	for epoch := 1; epoch <= t.args.Epochs; epoch++ {
		for _, st := range t.planEpoch(rng) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			globalStep++
			lr := learningRateAt(globalStep, totalSteps, warmupSteps, t.args.LearningRate)

			value, err := t.step(ctx, st, lr)
			if err != nil {
				return nil, fmt.Errorf("step %d (dataset %q): %w", globalStep, st.name, err)
			}

			if t.args.LoggingSteps > 0 && globalStep%t.args.LoggingSteps == 0 {
				t.logger.Info("train",
					"run", t.args.RunName,
					"epoch", epoch,
					"step", globalStep,
					"dataset", st.name,
					"loss", value,
					"lr", lr)
			}

			if t.args.EvalStrategy == config.StrategySteps && globalStep%t.args.EvalSteps == 0 {
				if result.Evaluations, err = t.runEval(ctx, globalStep); err != nil {
					return nil, err
				}
			}
			if t.args.SaveStrategy == config.StrategySteps && globalStep%t.args.SaveSteps == 0 {
				if err := t.saveCheckpoint(store, globalStep, epoch); err != nil {
					return nil, err
				}
			}
		}

		if t.args.EvalStrategy == config.StrategyEpoch {
			if result.Evaluations, err = t.runEval(ctx, globalStep); err != nil {
				return nil, err
			}
		}
		if t.args.SaveStrategy == config.StrategyEpoch {
			if err := t.saveCheckpoint(store, globalStep, epoch); err != nil {
				return nil, err
			}
		}
	}

	if err := t.model.Save(t.args.OutputDir); err != nil {
		return nil, fmt.Errorf("failed to save final model: %w", err)
	}

	result.GlobalSteps = globalStep
	t.logger.Info("training complete",
		"run", t.args.RunName,
		"steps", globalStep,
		"output", t.args.OutputDir)

	return result, nil
}

// planEpoch builds the epoch's interleaved step sequence: each dataset is
// batched by the sampler, then the batches of all datasets are shuffled
// together so the losses see a proportional mixture
func (t *Trainer) planEpoch(rng *rand.Rand) []epochStep {
	var steps []epochStep
	for _, name := range t.train.Keys() {
		for _, batch := range t.sampler.Batches(t.train[name].Records, t.args.TrainBatchSize, rng) {
			steps = append(steps, epochStep{name: name, records: batch})
		}
	}
	rng.Shuffle(len(steps), func(i, j int) {
		steps[i], steps[j] = steps[j], steps[i]
	})
	return steps
}

// step runs one optimization step: encode, loss forward, backprop through
// the adapter, parameter update
func (t *Trainer) step(ctx context.Context, st epochStep, lr float64) (float64, error) {
	schema := t.train[st.name].Schema

	b, err := t.encodeBatch(ctx, schema, st.records)
	if err != nil {
		return 0, err
	}

	lossFn := t.losses[st.name]
	value, grads, err := lossFn.Forward(b)
	if err != nil {
		return 0, err
	}

	g := t.model.NewGradients()
	for i, col := range b.Columns {
		if err := t.model.Backward(col, grads.Columns[i], g); err != nil {
			return 0, err
		}
	}
	t.model.Step(g, lr)
	if grads.Internal != nil {
		grads.Internal(lr)
	}

	return value, nil
}

// encodeBatch runs the batch's records through the model
func (t *Trainer) encodeBatch(ctx context.Context, schema dataset.Schema, records []dataset.Record) (*loss.Batch, error) {
	return loss.EncodeBatch(ctx, t.model, schema, records)
}

// saveCheckpoint writes checkpoint-<step> and applies the retention limit
func (t *Trainer) saveCheckpoint(store *checkpoint.FileStore, step, epoch int) error {
	state := checkpoint.State{
		RunName:    t.args.RunName,
		GlobalStep: step,
		Epoch:      epoch,
		CreatedAt:  time.Now(),
	}
	if err := store.Save(t.model, state); err != nil {
		return err
	}
	if err := store.Prune(t.args.SaveTotalLimit); err != nil {
		return err
	}
	t.logger.Info("saved checkpoint", "run", t.args.RunName, "step", step)
	return nil
}
