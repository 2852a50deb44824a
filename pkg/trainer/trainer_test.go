package trainer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ken/embed_trainer/internal/config"
	"github.com/ken/embed_trainer/pkg/checkpoint"
	"github.com/ken/embed_trainer/pkg/dataset"
	"github.com/ken/embed_trainer/pkg/loss"
	"github.com/ken/embed_trainer/pkg/model"
	"github.com/ken/embed_trainer/pkg/model/encoders"
)

func newTestModel(t *testing.T) *model.SentenceModel {
	t.Helper()
	enc, err := encoders.NewStatic(nil, 8)
	if err != nil {
		t.Fatalf("Failed to create encoder: %v", err)
	}
	m, err := model.New(enc, 0)
	if err != nil {
		t.Fatalf("Failed to create model: %v", err)
	}
	return m
}

func pairDataset(t *testing.T, name string, n int) *dataset.Dataset {
	t.Helper()
	records := make([]dataset.Record, n)
	for i := range records {
		records[i] = dataset.Record{Texts: []string{
			fmt.Sprintf("%s question %d", name, i),
			fmt.Sprintf("%s answer %d", name, i),
		}}
	}
	ds, err := dataset.New(name, dataset.SchemaPair, records)
	if err != nil {
		t.Fatalf("Failed to build dataset: %v", err)
	}
	return ds
}

func scoreDataset(t *testing.T, name string, n int) *dataset.Dataset {
	t.Helper()
	records := make([]dataset.Record, n)
	for i := range records {
		records[i] = dataset.Record{
			Texts: []string{
				fmt.Sprintf("%s left %d", name, i),
				fmt.Sprintf("%s right %d", name, i),
			},
			Score: float64(i) / float64(n),
		}
	}
	ds, err := dataset.New(name, dataset.SchemaPairScore, records)
	if err != nil {
		t.Fatalf("Failed to build dataset: %v", err)
	}
	return ds
}

func quietArgs(t *testing.T) config.TrainingArguments {
	t.Helper()
	args := config.DefaultTrainingArguments()
	args.OutputDir = t.TempDir()
	args.TrainBatchSize = 4
	args.EvalBatchSize = 4
	args.SaveStrategy = config.StrategyNo
	args.LoggingSteps = 0
	return args
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRequiresLossForEveryTrainDataset(t *testing.T) {
	m := newTestModel(t)
	train := dataset.Collection{
		"A": pairDataset(t, "A", 4),
		"B": pairDataset(t, "B", 4),
	}
	losses := map[string]loss.Loss{
		"A": loss.NewMultipleNegativesRanking(m),
	}

	_, err := New(m, train, losses, nil, quietArgs(t), WithLogger(quietLogger()))
	if !errors.Is(err, ErrMissingLoss) {
		t.Fatalf("Expected ErrMissingLoss, got %v", err)
	}
}

func TestNewRejectsIncompatibleRouting(t *testing.T) {
	m := newTestModel(t)
	train := dataset.Collection{
		"stsb": scoreDataset(t, "stsb", 4),
	}
	losses := map[string]loss.Loss{
		"stsb": loss.NewMultipleNegativesRanking(m), // wrong: scored pairs need cosent
	}

	_, err := New(m, train, losses, nil, quietArgs(t), WithLogger(quietLogger()))
	if !errors.Is(err, loss.ErrIncompatibleSchema) {
		t.Fatalf("Expected ErrIncompatibleSchema, got %v", err)
	}
}

func TestNewRejectsEmptyTrainCollection(t *testing.T) {
	m := newTestModel(t)
	_, err := New(m, dataset.Collection{}, nil, nil, quietArgs(t), WithLogger(quietLogger()))
	if !errors.Is(err, ErrNoTrainDatasets) {
		t.Fatalf("Expected ErrNoTrainDatasets, got %v", err)
	}
}

func TestTrainCompletesAndSavesModel(t *testing.T) {
	m := newTestModel(t)
	train := dataset.Collection{
		"pairs":  pairDataset(t, "pairs", 8),
		"scored": scoreDataset(t, "scored", 6),
	}
	losses := map[string]loss.Loss{
		"pairs":  loss.NewMultipleNegativesRanking(m),
		"scored": loss.NewCoSENT(m),
	}
	args := quietArgs(t)

	tr, err := New(m, train, losses, nil, args, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Failed to build trainer: %v", err)
	}

	result, err := tr.Train(context.Background())
	if err != nil {
		t.Fatalf("Training failed: %v", err)
	}

	// 8 pairs and 6 scored records at batch size 4 is 2+2 steps
	if result.GlobalSteps != 4 {
		t.Errorf("Expected 4 optimization steps, got %d", result.GlobalSteps)
	}
	if result.RunName == "" {
		t.Error("Expected a run name on the result")
	}
	if len(result.Evaluations) != 0 {
		t.Errorf("Expected no evaluations without eval datasets, got %d", len(result.Evaluations))
	}

	// The final model artifact is in the output directory
	for _, file := range []string{"model_config.json", "adapter_weights.bin", "adapter_bias.bin"} {
		if _, err := os.Stat(filepath.Join(args.OutputDir, file)); err != nil {
			t.Errorf("Missing model file %s: %v", file, err)
		}
	}

	// And it loads back
	if _, err := model.Load(args.OutputDir, mustStatic(t, 8)); err != nil {
		t.Errorf("Failed to load the saved model: %v", err)
	}
}

func mustStatic(t *testing.T, dim int) *encoders.Static {
	t.Helper()
	enc, err := encoders.NewStatic(nil, dim)
	if err != nil {
		t.Fatalf("Failed to create encoder: %v", err)
	}
	return enc
}

func TestTrainCheckpointRetention(t *testing.T) {
	m := newTestModel(t)
	train := dataset.Collection{"pairs": pairDataset(t, "pairs", 16)}
	losses := map[string]loss.Loss{"pairs": loss.NewMultipleNegativesRanking(m)}

	args := quietArgs(t)
	args.SaveStrategy = config.StrategySteps
	args.SaveSteps = 1
	args.SaveTotalLimit = 2

	tr, err := New(m, train, losses, nil, args, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Failed to build trainer: %v", err)
	}
	result, err := tr.Train(context.Background())
	if err != nil {
		t.Fatalf("Training failed: %v", err)
	}
	if result.GlobalSteps != 4 {
		t.Fatalf("Expected 4 steps, got %d", result.GlobalSteps)
	}

	store, err := checkpoint.NewFileStore(args.OutputDir)
	if err != nil {
		t.Fatalf("Failed to open checkpoint store: %v", err)
	}
	steps, err := store.Steps()
	if err != nil {
		t.Fatalf("Failed to list checkpoints: %v", err)
	}

	// Saved after every step but limited to the two most recent
	if len(steps) != 2 || steps[0] != 3 || steps[1] != 4 {
		t.Errorf("Expected checkpoints [3 4], got %v", steps)
	}

	// The retained checkpoint carries the trainer state
	_, state, err := store.Load(4, mustStatic(t, 8))
	if err != nil {
		t.Fatalf("Failed to load checkpoint: %v", err)
	}
	if state.GlobalStep != 4 || state.RunName != result.RunName {
		t.Errorf("Unexpected checkpoint state: %+v", state)
	}
}

func TestTrainEvaluatesOnEpoch(t *testing.T) {
	m := newTestModel(t)
	train := dataset.Collection{"pairs": pairDataset(t, "pairs", 8)}
	eval := dataset.Collection{
		"pairs":    pairDataset(t, "pairs-held-out", 4),
		"orphaned": pairDataset(t, "orphaned", 4), // no loss: skipped, not fatal
	}
	losses := map[string]loss.Loss{"pairs": loss.NewMultipleNegativesRanking(m)}

	args := quietArgs(t)
	args.EvalStrategy = config.StrategyEpoch

	var report bytes.Buffer
	tr, err := New(m, train, losses, eval, args, WithLogger(quietLogger()), WithEvalWriter(&report))
	if err != nil {
		t.Fatalf("Failed to build trainer: %v", err)
	}

	result, err := tr.Train(context.Background())
	if err != nil {
		t.Fatalf("Training failed: %v", err)
	}

	if len(result.Evaluations) != 1 {
		t.Fatalf("Expected 1 evaluation result, got %d", len(result.Evaluations))
	}
	ev := result.Evaluations[0]
	if ev.Dataset != "pairs" || ev.Loss != "mnr" || ev.Batches != 1 {
		t.Errorf("Unexpected evaluation result: %+v", ev)
	}
	if !bytes.Contains(report.Bytes(), []byte("pairs")) {
		t.Error("Expected the evaluation table to mention the dataset")
	}
}

func TestTrainHonorsCancellation(t *testing.T) {
	m := newTestModel(t)
	train := dataset.Collection{"pairs": pairDataset(t, "pairs", 8)}
	losses := map[string]loss.Loss{"pairs": loss.NewMultipleNegativesRanking(m)}

	tr, err := New(m, train, losses, nil, quietArgs(t), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Failed to build trainer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := tr.Train(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestTrainIsDeterministicUnderFixedSeed(t *testing.T) {
	run := func() *model.SentenceModel {
		m := newTestModel(t)
		train := dataset.Collection{
			"pairs":  pairDataset(t, "pairs", 8),
			"scored": scoreDataset(t, "scored", 6),
		}
		losses := map[string]loss.Loss{
			"pairs":  loss.NewMultipleNegativesRanking(m),
			"scored": loss.NewCoSENT(m),
		}
		args := quietArgs(t)
		args.LearningRate = 0.01

		tr, err := New(m, train, losses, nil, args, WithLogger(quietLogger()))
		if err != nil {
			t.Fatalf("Failed to build trainer: %v", err)
		}
		if _, err := tr.Train(context.Background()); err != nil {
			t.Fatalf("Training failed: %v", err)
		}
		return m
	}

	a := run()
	b := run()

	wa, wb := a.WeightsSnapshot(), b.WeightsSnapshot()
	ra, ca := wa.Dims()
	for i := 0; i < ra; i++ {
		for j := 0; j < ca; j++ {
			if wa.At(i, j) != wb.At(i, j) {
				t.Fatalf("Runs diverged at weight (%d,%d): %v vs %v", i, j, wa.At(i, j), wb.At(i, j))
			}
		}
	}
}
