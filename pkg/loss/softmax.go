package loss

import (
	"fmt"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/ken/embed_trainer/pkg/dataset"
	"github.com/ken/embed_trainer/pkg/model"
)

// DefaultNumLabels matches the three-way entailment labeling of the NLI
// datasets (entailment / neutral / contradiction)
const DefaultNumLabels = 3

// classifierInitSeed makes the classifier head initialization
// deterministic across runs
const classifierInitSeed = 7

// SoftmaxClassifier is a classification loss for pairs with a categorical
// label. The two embeddings u and v are combined into (u, v, |u-v|)
// features and fed through a linear classifier head owned by the loss; the
// head is optimized jointly with the adapter.
type SoftmaxClassifier struct {
	model     *model.SentenceModel
	numLabels int

	mu      sync.Mutex
	weights *mat.Dense // numLabels x 3*dim, lazily initialized
	bias    []float64
}

// NewSoftmaxClassifier creates the loss bound to a model
func NewSoftmaxClassifier(m *model.SentenceModel, numLabels int) *SoftmaxClassifier {
	if numLabels < 2 {
		numLabels = DefaultNumLabels
	}
	return &SoftmaxClassifier{model: m, numLabels: numLabels}
}

// Name returns the loss identifier
func (l *SoftmaxClassifier) Name() string {
	return "softmax"
}

// Compatible accepts only pairs with a categorical label
func (l *SoftmaxClassifier) Compatible(schema dataset.Schema) error {
	if schema == dataset.SchemaPairClass {
		return nil
	}
	return incompatible(l.Name(), schema)
}

// head returns the classifier parameters, initializing them on first use
// once the embedding dimension is known
func (l *SoftmaxClassifier) head(dim int) (*mat.Dense, []float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.weights == nil {
		r := rand.New(rand.NewSource(classifierInitSeed))
		data := make([]float64, l.numLabels*3*dim)
		for i := range data {
			data[i] = (r.Float64()*2 - 1) * 0.01
		}
		l.weights = mat.NewDense(l.numLabels, 3*dim, data)
		l.bias = make([]float64, l.numLabels)
	}
	return l.weights, l.bias
}

// Forward computes the loss and embedding gradients for a batch
func (l *SoftmaxClassifier) Forward(b *Batch) (float64, *Gradients, error) {
	return l.compute(b, true)
}

// Evaluate computes the loss value only
func (l *SoftmaxClassifier) Evaluate(b *Batch) (float64, error) {
	value, _, err := l.compute(b, false)
	return value, err
}

func (l *SoftmaxClassifier) compute(b *Batch, withGrads bool) (float64, *Gradients, error) {
	if err := checkBatch(l.Name(), b, dataset.SchemaPairClass); err != nil {
		return 0, nil, err
	}

	u := b.Columns[0].Embeddings
	v := b.Columns[1].Embeddings
	n, dim := u.Dims()

	for i, label := range b.Labels {
		if label < 0 || label >= l.numLabels {
			return 0, nil, fmt.Errorf("%w: record %d has label %d outside [0,%d)",
				ErrIncompatibleSchema, i, label, l.numLabels)
		}
	}

	weights, bias := l.head(dim)

	// Features: (u, v, |u - v|) per record
	features := mat.NewDense(n, 3*dim, nil)
	signs := mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		uRow := u.RawRowView(i)
		vRow := v.RawRowView(i)
		fRow := features.RawRowView(i)
		sRow := signs.RawRowView(i)
		for j := 0; j < dim; j++ {
			fRow[j] = uRow[j]
			fRow[dim+j] = vRow[j]
			diff := uRow[j] - vRow[j]
			if diff >= 0 {
				fRow[2*dim+j] = diff
				sRow[j] = 1
			} else {
				fRow[2*dim+j] = -diff
				sRow[j] = -1
			}
		}
	}

	// Logits = features . weightsᵀ + bias
	logits := mat.NewDense(n, l.numLabels, nil)
	logits.Mul(features, weights.T())
	for i := 0; i < n; i++ {
		row := logits.RawRowView(i)
		for j := range row {
			row[j] += bias[j]
		}
	}

	// Cross entropy over the labels
	var total float64
	dLogits := mat.NewDense(n, l.numLabels, nil)
	for i := 0; i < n; i++ {
		row := logits.RawRowView(i)
		probs, lse := rowSoftmax(row)
		total += lse - row[b.Labels[i]]

		if withGrads {
			dRow := dLogits.RawRowView(i)
			for j := range probs {
				dRow[j] = probs[j] / float64(n)
			}
			dRow[b.Labels[i]] -= 1.0 / float64(n)
		}
	}
	value := total / float64(n)

	if !withGrads {
		return value, nil, nil
	}

	// Classifier head gradients
	var dWeights mat.Dense
	dWeights.Mul(dLogits.T(), features)
	dBias := make([]float64, l.numLabels)
	for i := 0; i < n; i++ {
		row := dLogits.RawRowView(i)
		for j := range row {
			dBias[j] += row[j]
		}
	}

	// Feature gradients back to the two embedding columns
	dFeatures := mat.NewDense(n, 3*dim, nil)
	dFeatures.Mul(dLogits, weights)

	dU := mat.NewDense(n, dim, nil)
	dV := mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		dfRow := dFeatures.RawRowView(i)
		sRow := signs.RawRowView(i)
		dURow := dU.RawRowView(i)
		dVRow := dV.RawRowView(i)
		for j := 0; j < dim; j++ {
			absGrad := dfRow[2*dim+j] * sRow[j]
			dURow[j] = dfRow[j] + absGrad
			dVRow[j] = dfRow[dim+j] - absGrad
		}
	}

	grads := &Gradients{
		Columns: []*mat.Dense{dU, dV},
		Internal: func(lr float64) {
			l.mu.Lock()
			defer l.mu.Unlock()
			var scaled mat.Dense
			scaled.Scale(lr, &dWeights)
			l.weights.Sub(l.weights, &scaled)
			for j := range l.bias {
				l.bias[j] -= lr * dBias[j]
			}
		},
	}

	return value, grads, nil
}
