package loss

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ken/embed_trainer/pkg/dataset"
	"github.com/ken/embed_trainer/pkg/model"
)

var (
	// ErrIncompatibleSchema is returned when a loss is bound to a dataset
	// whose record shape it cannot consume
	ErrIncompatibleSchema = errors.New("loss is incompatible with dataset schema")

	// ErrUnknownLoss is returned for unrecognized loss names
	ErrUnknownLoss = errors.New("unknown loss function")
)

// Batch is one encoded training batch: the per-column activations of the
// sentence model plus the labels or scores the schema carries
type Batch struct {
	Schema  dataset.Schema
	Columns []*model.Activations
	Labels  []int
	Scores  []float64
}

// Size returns the number of records in the batch
func (b *Batch) Size() int {
	if len(b.Columns) == 0 {
		return 0
	}
	return b.Columns[0].Len()
}

// Gradients is the output of a loss forward pass: gradients with respect
// to the normalized embeddings of each batch column, plus an optional
// update of loss-internal parameters (e.g. a classifier head)
type Gradients struct {
	// Columns is aligned with Batch.Columns
	Columns []*mat.Dense

	// Internal applies the pending update to loss-internal parameters at
	// the given learning rate; nil when the loss has no parameters of its
	// own
	Internal func(lr float64)
}

// Loss is a strategy object bound to a sentence model. Implementations
// hold a reference to the model but no mutable model state; constructing a
// loss never changes the model.
type Loss interface {
	// Name returns the loss identifier used in loss mappings
	Name() string

	// Compatible reports whether records of the given schema can feed
	// this loss
	Compatible(schema dataset.Schema) error

	// Forward computes the loss value and embedding gradients for a batch
	Forward(b *Batch) (float64, *Gradients, error)

	// Evaluate computes the loss value only, for evaluation passes
	Evaluate(b *Batch) (float64, error)
}

// ForName constructs a loss by its mapping name ("mnr", "softmax",
// "cosent") bound to the given model
func ForName(name string, m *model.SentenceModel) (Loss, error) {
	switch name {
	case "mnr":
		return NewMultipleNegativesRanking(m), nil
	case "softmax":
		return NewSoftmaxClassifier(m, DefaultNumLabels), nil
	case "cosent":
		return NewCoSENT(m), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownLoss, name)
	}
}

// incompatible builds the schema-mismatch configuration error
func incompatible(lossName string, schema dataset.Schema) error {
	return fmt.Errorf("%w: %s cannot consume %q records", ErrIncompatibleSchema, lossName, schema)
}

// checkBatch validates the batch against the loss's accepted schemas and
// the structural expectations of the schema itself. This is the fail-fast
// guard against a mis-routed dataset reaching the numeric code.
func checkBatch(lossName string, b *Batch, accepted ...dataset.Schema) error {
	ok := false
	for _, s := range accepted {
		if b.Schema == s {
			ok = true
			break
		}
	}
	if !ok {
		return incompatible(lossName, b.Schema)
	}

	if len(b.Columns) != b.Schema.TextArity() {
		return fmt.Errorf("%w: %q batch has %d text columns, schema expects %d",
			ErrIncompatibleSchema, b.Schema, len(b.Columns), b.Schema.TextArity())
	}

	n := b.Size()
	if n == 0 {
		return fmt.Errorf("%s: empty batch", lossName)
	}
	for i, col := range b.Columns {
		if col.Len() != n {
			return fmt.Errorf("%s: column %d has %d rows, expected %d", lossName, i, col.Len(), n)
		}
	}

	if b.Schema == dataset.SchemaPairClass && len(b.Labels) != n {
		return fmt.Errorf("%w: pair-class batch has %d labels for %d records",
			ErrIncompatibleSchema, len(b.Labels), n)
	}
	if b.Schema == dataset.SchemaPairScore && len(b.Scores) != n {
		return fmt.Errorf("%w: pair-score batch has %d scores for %d records",
			ErrIncompatibleSchema, len(b.Scores), n)
	}

	return nil
}

// rowSoftmax computes a numerically stable softmax over one score row,
// returning the probabilities and the log-sum-exp
func rowSoftmax(scores []float64) (probs []float64, lse float64) {
	max := scores[0]
	for _, s := range scores[1:] {
		if s > max {
			max = s
		}
	}
	probs = make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		e := math.Exp(s - max)
		probs[i] = e
		sum += e
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, max + math.Log(sum)
}
