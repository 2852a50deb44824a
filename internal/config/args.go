package config

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Strategy controls when periodic work (evaluation, checkpointing) happens
type Strategy string

const (
	// StrategyNo disables the periodic action entirely
	StrategyNo Strategy = "no"

	// StrategySteps runs the action every N optimization steps
	StrategySteps Strategy = "steps"

	// StrategyEpoch runs the action at the end of every epoch
	StrategyEpoch Strategy = "epoch"
)

// SamplerStrategy selects how training batches are drawn from a dataset
type SamplerStrategy string

const (
	// SamplerRandom draws shuffled batches without further constraints
	SamplerRandom SamplerStrategy = "random"

	// SamplerNoDuplicates ensures no text appears twice within one batch,
	// which keeps in-batch negative sampling valid for ranking losses
	SamplerNoDuplicates SamplerStrategy = "no_duplicates"
)

var (
	// ErrInvalidArguments is returned when training arguments fail validation
	ErrInvalidArguments = errors.New("invalid training arguments")
)

// TrainingArguments is the immutable hyperparameter set for one training
// run. Construct it once with DefaultTrainingArguments, adjust fields, and
// call Validate before handing it to the trainer. It is not mutated during
// the run.
type TrainingArguments struct {
	// OutputDir is where checkpoints and the final model are written
	OutputDir string `yaml:"output_dir"`

	// Epochs is the number of passes over the combined training data
	Epochs int `yaml:"epochs"`

	// TrainBatchSize is the per-step training batch size
	TrainBatchSize int `yaml:"train_batch_size"`

	// EvalBatchSize is the batch size used during evaluation
	EvalBatchSize int `yaml:"eval_batch_size"`

	// LearningRate is the peak learning rate after warmup
	LearningRate float64 `yaml:"learning_rate"`

	// WarmupRatio is the fraction of total steps spent linearly ramping
	// the learning rate from zero to LearningRate
	WarmupRatio float64 `yaml:"warmup_ratio"`

	// Precision is the arithmetic precision mode. Only "fp32" is computed
	// natively; "fp16" and "bf16" are accepted and fall back to fp32.
	Precision string `yaml:"precision"`

	// BatchSampler selects the batch sampling strategy
	BatchSampler SamplerStrategy `yaml:"batch_sampler"`

	// EvalStrategy and EvalSteps control evaluation cadence
	EvalStrategy Strategy `yaml:"eval_strategy"`
	EvalSteps    int      `yaml:"eval_steps"`

	// SaveStrategy and SaveSteps control checkpoint cadence
	SaveStrategy Strategy `yaml:"save_strategy"`
	SaveSteps    int      `yaml:"save_steps"`

	// SaveTotalLimit caps how many checkpoints are retained; older
	// checkpoints are pruned first. Zero means unlimited.
	SaveTotalLimit int `yaml:"save_total_limit"`

	// LoggingSteps is the step cadence of training-progress log lines
	LoggingSteps int `yaml:"logging_steps"`

	// RunName identifies the run in logs and checkpoint state. A random
	// name is generated when left empty.
	RunName string `yaml:"run_name"`

	// Seed drives batch shuffling and sampling
	Seed int64 `yaml:"seed"`
}

// DefaultTrainingArguments returns training arguments with documented
// defaults matching a short single-epoch fine-tuning run
func DefaultTrainingArguments() TrainingArguments {
	return TrainingArguments{
		OutputDir:      "models/run",
		Epochs:         1,
		TrainBatchSize: 16,
		EvalBatchSize:  16,
		LearningRate:   2e-5,
		WarmupRatio:    0.1,
		Precision:      "fp32",
		BatchSampler:   SamplerRandom,
		EvalStrategy:   StrategyNo,
		EvalSteps:      0,
		SaveStrategy:   StrategyEpoch,
		SaveSteps:      0,
		SaveTotalLimit: 0,
		LoggingSteps:   100,
		Seed:           42,
	}
}

// WithRunName returns a copy of the arguments with RunName populated,
// generating a unique name when none was set
func (a TrainingArguments) WithRunName() TrainingArguments {
	if a.RunName == "" {
		a.RunName = "run-" + uuid.NewString()[:8]
	}
	return a
}

// Validate checks all fields eagerly so that misconfiguration fails before
// any dataset is loaded or any optimization step runs
func (a TrainingArguments) Validate() error {
	if a.OutputDir == "" {
		return fmt.Errorf("%w: output_dir must not be empty", ErrInvalidArguments)
	}
	if a.Epochs < 1 {
		return fmt.Errorf("%w: epochs must be >= 1, got %d", ErrInvalidArguments, a.Epochs)
	}
	if a.TrainBatchSize < 2 {
		return fmt.Errorf("%w: train_batch_size must be >= 2, got %d", ErrInvalidArguments, a.TrainBatchSize)
	}
	if a.EvalBatchSize < 1 {
		return fmt.Errorf("%w: eval_batch_size must be >= 1, got %d", ErrInvalidArguments, a.EvalBatchSize)
	}
	if a.LearningRate <= 0 {
		return fmt.Errorf("%w: learning_rate must be > 0, got %g", ErrInvalidArguments, a.LearningRate)
	}
	if a.WarmupRatio < 0 || a.WarmupRatio > 1 {
		return fmt.Errorf("%w: warmup_ratio must be in [0,1], got %g", ErrInvalidArguments, a.WarmupRatio)
	}
	switch a.Precision {
	case "fp32", "fp16", "bf16":
	default:
		return fmt.Errorf("%w: unknown precision %q", ErrInvalidArguments, a.Precision)
	}
	switch a.BatchSampler {
	case SamplerRandom, SamplerNoDuplicates:
	default:
		return fmt.Errorf("%w: unknown batch_sampler %q", ErrInvalidArguments, a.BatchSampler)
	}
	if err := validateCadence("eval", a.EvalStrategy, a.EvalSteps); err != nil {
		return err
	}
	if err := validateCadence("save", a.SaveStrategy, a.SaveSteps); err != nil {
		return err
	}
	if a.SaveTotalLimit < 0 {
		return fmt.Errorf("%w: save_total_limit must be >= 0, got %d", ErrInvalidArguments, a.SaveTotalLimit)
	}
	if a.LoggingSteps < 0 {
		return fmt.Errorf("%w: logging_steps must be >= 0, got %d", ErrInvalidArguments, a.LoggingSteps)
	}
	return nil
}

func validateCadence(what string, s Strategy, steps int) error {
	switch s {
	case StrategyNo, StrategyEpoch:
		return nil
	case StrategySteps:
		if steps < 1 {
			return fmt.Errorf("%w: %s_strategy is %q but %s_steps is %d", ErrInvalidArguments, what, s, what, steps)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown %s_strategy %q", ErrInvalidArguments, what, s)
	}
}
