package recipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ken/embed_trainer/internal/config"
	"github.com/ken/embed_trainer/pkg/dataset"
	"github.com/ken/embed_trainer/pkg/loss"
	"github.com/ken/embed_trainer/pkg/model/encoders"
	"github.com/ken/embed_trainer/pkg/trainer"
)

// fakeLoader serves synthetic records shaped after the spec's subset name,
// standing in for the remote dataset repository
type fakeLoader struct {
	loads int
}

func (l *fakeLoader) Load(_ context.Context, spec dataset.Spec) (*dataset.Dataset, error) {
	l.loads++

	schema := dataset.SchemaPair
	switch {
	case spec.Config == "triplet":
		schema = dataset.SchemaTriplet
	case spec.Config == "pair-class":
		schema = dataset.SchemaPairClass
	case spec.Config == "pair-score" || strings.Contains(spec.Name, "stsb"):
		schema = dataset.SchemaPairScore
	}

	records := make([]dataset.Record, 8)
	for i := range records {
		r := dataset.Record{Texts: []string{
			fmt.Sprintf("%s text a %d", spec.Key(), i),
			fmt.Sprintf("%s text b %d", spec.Key(), i),
		}}
		switch schema {
		case dataset.SchemaTriplet:
			r.Texts = append(r.Texts, fmt.Sprintf("%s text c %d", spec.Key(), i))
		case dataset.SchemaPairClass:
			r.Label = i % 3
		case dataset.SchemaPairScore:
			r.Score = float64(i) / 8
		}
		records[i] = r
	}

	return dataset.New(spec.Key(), schema, records)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuiltInRecipesValidate(t *testing.T) {
	all := All()
	if len(all) != 2 {
		t.Fatalf("Expected 2 built-in recipes, got %d", len(all))
	}
	for _, r := range all {
		if err := r.Validate(); err != nil {
			t.Errorf("Recipe %s failed validation: %v", r.Name, err)
		}
	}
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"mix-basic", "mix-tuned"} {
		r, err := Lookup(name)
		if err != nil {
			t.Errorf("Failed to look up %q: %v", name, err)
			continue
		}
		if r.Name != name {
			t.Errorf("Lookup(%q) returned recipe %q", name, r.Name)
		}
	}

	if _, err := Lookup("mix-imaginary"); !errors.Is(err, ErrUnknownRecipe) {
		t.Errorf("Expected ErrUnknownRecipe, got %v", err)
	}

	names := Names()
	if len(names) != 2 || names[0] != "mix-basic" || names[1] != "mix-tuned" {
		t.Errorf("Unexpected recipe names: %v", names)
	}
}

func TestValidateCatchesBrokenRecipes(t *testing.T) {
	base := func() *Recipe {
		r := MixBasic()
		return r
	}

	r := base()
	r.Model = ""
	if err := r.Validate(); err == nil {
		t.Error("Expected an error for a recipe without a model")
	}

	r = base()
	r.Train = nil
	if err := r.Validate(); err == nil {
		t.Error("Expected an error for a recipe without train datasets")
	}

	r = base()
	r.Train = append(r.Train, r.Train[0])
	if err := r.Validate(); err == nil {
		t.Error("Expected an error for duplicate train dataset keys")
	}

	r = base()
	r.Train[0].Loss = "contrastive"
	if err := r.Validate(); !errors.Is(err, loss.ErrUnknownLoss) {
		t.Errorf("Expected ErrUnknownLoss, got %v", err)
	}

	r = base()
	r.Train[0].Loss = ""
	if err := r.Validate(); err == nil {
		t.Error("Expected an error for a train dataset without a loss")
	}
}

func TestComposeAndTrain(t *testing.T) {
	r := MixBasic()
	r.Args.OutputDir = t.TempDir()
	r.Args.TrainBatchSize = 4
	r.Args.SaveStrategy = config.StrategyNo
	r.Args.LoggingSteps = 0
	r.AdapterDim = 8

	enc, err := encoders.NewStatic(nil, 16)
	if err != nil {
		t.Fatalf("Failed to create encoder: %v", err)
	}

	loader := &fakeLoader{}
	tr, m, err := Compose(context.Background(), r, enc, loader, trainer.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Failed to compose recipe: %v", err)
	}
	if m == nil {
		t.Fatal("Compose returned no model")
	}
	if m.Dimension() != 8 {
		t.Errorf("Expected adapter dimension 8, got %d", m.Dimension())
	}
	if loader.loads != len(r.Train)+len(r.Eval) {
		t.Errorf("Expected %d dataset loads, got %d", len(r.Train)+len(r.Eval), loader.loads)
	}

	// The composed trainer runs the whole mixture end to end: all four
	// record shapes routed through their losses
	result, err := tr.Train(context.Background())
	if err != nil {
		t.Fatalf("Training failed: %v", err)
	}

	// 7 train datasets of 8 records each at batch size 4
	if result.GlobalSteps != 14 {
		t.Errorf("Expected 14 steps, got %d", result.GlobalSteps)
	}
}

func TestComposeRejectsInvalidRecipe(t *testing.T) {
	r := MixBasic()
	r.Train[0].Loss = "cosent" // all-nli pair subset cannot feed a scored loss

	enc, err := encoders.NewStatic(nil, 16)
	if err != nil {
		t.Fatalf("Failed to create encoder: %v", err)
	}

	_, _, err = Compose(context.Background(), r, enc, &fakeLoader{}, trainer.WithLogger(quietLogger()))
	if !errors.Is(err, loss.ErrIncompatibleSchema) {
		t.Errorf("Expected ErrIncompatibleSchema from trainer construction, got %v", err)
	}
}
