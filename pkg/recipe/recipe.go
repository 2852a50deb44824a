package recipe

import (
	"context"
	"errors"
	"fmt"

	"github.com/ken/embed_trainer/internal/config"
	"github.com/ken/embed_trainer/pkg/dataset"
	"github.com/ken/embed_trainer/pkg/loss"
	"github.com/ken/embed_trainer/pkg/model"
	"github.com/ken/embed_trainer/pkg/model/encoders"
	"github.com/ken/embed_trainer/pkg/trainer"
)

var (
	// ErrUnknownRecipe is returned when no built-in recipe has the name
	ErrUnknownRecipe = errors.New("unknown recipe")
)

// DatasetEntry is one dataset of a recipe: where to load it from and
// which loss it trains under
type DatasetEntry struct {
	Spec dataset.Spec
	Loss string // empty for eval-only entries without a metric
}

// Recipe is a complete declarative training run: a model, a train and
// eval dataset mixture with per-dataset loss routing, and the training
// arguments. Recipes are plain data; Compose turns one into a runnable
// trainer.
type Recipe struct {
	Name    string
	Model   string
	Train   []DatasetEntry
	Eval    []DatasetEntry
	Args    config.TrainingArguments
	HubRepo string // push target when non-empty

	// AdapterDim is the trainable adapter's output dimension; zero keeps
	// the base encoder dimension
	AdapterDim int
}

// Validate checks the recipe's internal consistency: every train entry
// must name a known loss
func (r *Recipe) Validate() error {
	if r.Model == "" {
		return fmt.Errorf("recipe %s: model is required", r.Name)
	}
	if len(r.Train) == 0 {
		return fmt.Errorf("recipe %s: no train datasets", r.Name)
	}
	seen := make(map[string]bool, len(r.Train))
	for _, e := range r.Train {
		key := e.Spec.Key()
		if seen[key] {
			return fmt.Errorf("recipe %s: duplicate train dataset key %q", r.Name, key)
		}
		seen[key] = true
		switch e.Loss {
		case "mnr", "softmax", "cosent":
		case "":
			return fmt.Errorf("recipe %s: train dataset %q has no loss", r.Name, key)
		default:
			return fmt.Errorf("recipe %s: train dataset %q: %w: %q", r.Name, key, loss.ErrUnknownLoss, e.Loss)
		}
	}
	return r.Args.Validate()
}

// Lookup returns a built-in recipe by name
func Lookup(name string) (*Recipe, error) {
	for _, r := range All() {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRecipe, name)
}

// Names lists the built-in recipe names
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, r := range all {
		names[i] = r.Name
	}
	return names
}

// Compose wires a recipe into a runnable trainer: it loads every dataset,
// builds the sentence model on the given encoder, constructs one loss
// instance per loss kind (shared across the datasets routed to it, the
// way a single ranking loss serves several pair datasets), and validates
// the dataset/loss routing. All inputs arrive as parameters so tests can
// substitute fake loaders and offline encoders.
func Compose(ctx context.Context, r *Recipe, enc encoders.Encoder, loader dataset.Loader,
	opts ...trainer.Option) (*trainer.Trainer, *model.SentenceModel, error) {

	if err := r.Validate(); err != nil {
		return nil, nil, err
	}

	trainSpecs := make([]dataset.Spec, len(r.Train))
	for i, e := range r.Train {
		trainSpecs[i] = e.Spec
	}
	trainSets, err := dataset.LoadAll(ctx, loader, trainSpecs)
	if err != nil {
		return nil, nil, fmt.Errorf("recipe %s: %w", r.Name, err)
	}

	evalSpecs := make([]dataset.Spec, len(r.Eval))
	for i, e := range r.Eval {
		evalSpecs[i] = e.Spec
	}
	evalSets, err := dataset.LoadAll(ctx, loader, evalSpecs)
	if err != nil {
		return nil, nil, fmt.Errorf("recipe %s: %w", r.Name, err)
	}

	m, err := model.New(enc, r.AdapterDim)
	if err != nil {
		return nil, nil, fmt.Errorf("recipe %s: %w", r.Name, err)
	}

	// One loss object per kind, shared by every dataset routed to it
	shared := make(map[string]loss.Loss, 3)
	losses := make(map[string]loss.Loss, len(r.Train))
	for _, e := range r.Train {
		lossFn, ok := shared[e.Loss]
		if !ok {
			lossFn, err = loss.ForName(e.Loss, m)
			if err != nil {
				return nil, nil, fmt.Errorf("recipe %s: %w", r.Name, err)
			}
			shared[e.Loss] = lossFn
		}
		losses[e.Spec.Key()] = lossFn
	}

	tr, err := trainer.New(m, trainSets, losses, evalSets, r.Args, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("recipe %s: %w", r.Name, err)
	}

	return tr, m, nil
}
