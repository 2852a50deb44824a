package loss

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ken/embed_trainer/pkg/core/distance"
	"github.com/ken/embed_trainer/pkg/dataset"
	"github.com/ken/embed_trainer/pkg/model"
)

// CoSENT is a regression-style ranking loss for pairs with a continuous
// similarity score. Every pair whose gold score is lower than another
// pair's must also have a lower predicted cosine similarity; violations
// are penalized with a temperature-scaled log-sum-exp.
type CoSENT struct {
	model  *model.SentenceModel
	scale  float64
	metric distance.Metric
}

// NewCoSENT creates the loss bound to a model
func NewCoSENT(m *model.SentenceModel) *CoSENT {
	return &CoSENT{
		model:  m,
		scale:  DefaultSimilarityScale,
		metric: &distance.CosineSimilarity{},
	}
}

// Name returns the loss identifier
func (l *CoSENT) Name() string {
	return "cosent"
}

// Compatible accepts only pairs carrying a numeric score
func (l *CoSENT) Compatible(schema dataset.Schema) error {
	if schema == dataset.SchemaPairScore {
		return nil
	}
	return incompatible(l.Name(), schema)
}

// Forward computes the loss and embedding gradients for a batch
func (l *CoSENT) Forward(b *Batch) (float64, *Gradients, error) {
	return l.compute(b, true)
}

// Evaluate computes the loss value only
func (l *CoSENT) Evaluate(b *Batch) (float64, error) {
	value, _, err := l.compute(b, false)
	return value, err
}

func (l *CoSENT) compute(b *Batch, withGrads bool) (float64, *Gradients, error) {
	if err := checkBatch(l.Name(), b, dataset.SchemaPairScore); err != nil {
		return 0, nil, err
	}

	u := b.Columns[0].Embeddings
	v := b.Columns[1].Embeddings
	n, dim := u.Dims()

	// Predicted similarity per pair
	cosines := make([]float64, n)
	for i := 0; i < n; i++ {
		c, err := l.metric.Similarity(u.RawRowView(i), v.RawRowView(i))
		if err != nil {
			return 0, nil, err
		}
		cosines[i] = c
	}

	// Collect the margin terms scale*(cos_i - cos_j) for every ordered
	// pair where gold score_i < score_j
	type ordered struct{ low, high int }
	var pairs []ordered
	maxTerm := 0.0 // the implicit 1 in log(1 + sum) contributes exp(0)
	terms := make([]float64, 0, n*n/2)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if b.Scores[i] < b.Scores[j] {
				t := l.scale * (cosines[i] - cosines[j])
				pairs = append(pairs, ordered{low: i, high: j})
				terms = append(terms, t)
				if t > maxTerm {
					maxTerm = t
				}
			}
		}
	}

	// All gold scores equal: nothing to rank, loss is log(1) = 0
	if len(pairs) == 0 {
		if !withGrads {
			return 0, nil, nil
		}
		return 0, &Gradients{Columns: []*mat.Dense{
			mat.NewDense(n, dim, nil),
			mat.NewDense(n, dim, nil),
		}}, nil
	}

	// loss = log(1 + sum exp(terms)), computed stably
	sum := math.Exp(-maxTerm)
	for _, t := range terms {
		sum += math.Exp(t - maxTerm)
	}
	value := maxTerm + math.Log(sum)

	if !withGrads {
		return value, nil, nil
	}

	// d(loss)/d(cos_k) = scale * (sum of weights where k is the low side
	// minus sum where k is the high side)
	dCos := make([]float64, n)
	for idx, p := range pairs {
		w := math.Exp(terms[idx]-maxTerm) / sum
		dCos[p.low] += l.scale * w
		dCos[p.high] -= l.scale * w
	}

	dU := mat.NewDense(n, dim, nil)
	dV := mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		vRow := v.RawRowView(i)
		uRow := u.RawRowView(i)
		dURow := dU.RawRowView(i)
		dVRow := dV.RawRowView(i)
		for j := 0; j < dim; j++ {
			dURow[j] = dCos[i] * vRow[j]
			dVRow[j] = dCos[i] * uRow[j]
		}
	}

	return value, &Gradients{Columns: []*mat.Dense{dU, dV}}, nil
}
