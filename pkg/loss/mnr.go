package loss

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ken/embed_trainer/pkg/dataset"
	"github.com/ken/embed_trainer/pkg/model"
)

// DefaultSimilarityScale is the temperature applied to cosine similarities
// before the softmax, matching the common value for in-batch negative
// ranking losses
const DefaultSimilarityScale = 20.0

// MultipleNegativesRanking is a ranking loss over pairs or triplets. For
// each anchor, its paired positive must score higher than every other text
// in the batch (the in-batch negatives); triplet batches contribute their
// explicit negatives to the candidate pool as well.
type MultipleNegativesRanking struct {
	model *model.SentenceModel
	scale float64
}

// NewMultipleNegativesRanking creates the loss bound to a model
func NewMultipleNegativesRanking(m *model.SentenceModel) *MultipleNegativesRanking {
	return &MultipleNegativesRanking{model: m, scale: DefaultSimilarityScale}
}

// Name returns the loss identifier
func (l *MultipleNegativesRanking) Name() string {
	return "mnr"
}

// Compatible accepts plain pairs and triplets; records carrying explicit
// labels or scores belong to the classification and regression losses
func (l *MultipleNegativesRanking) Compatible(schema dataset.Schema) error {
	switch schema {
	case dataset.SchemaPair, dataset.SchemaTriplet:
		return nil
	}
	return incompatible(l.Name(), schema)
}

// Forward computes the loss and embedding gradients for a batch
func (l *MultipleNegativesRanking) Forward(b *Batch) (float64, *Gradients, error) {
	return l.compute(b, true)
}

// Evaluate computes the loss value only
func (l *MultipleNegativesRanking) Evaluate(b *Batch) (float64, error) {
	value, _, err := l.compute(b, false)
	return value, err
}

func (l *MultipleNegativesRanking) compute(b *Batch, withGrads bool) (float64, *Gradients, error) {
	if err := checkBatch(l.Name(), b, dataset.SchemaPair, dataset.SchemaTriplet); err != nil {
		return 0, nil, err
	}

	anchors := b.Columns[0].Embeddings
	n, dim := anchors.Dims()

	// Candidate pool: every positive, plus every explicit negative for
	// triplet batches
	numCandidates := n
	if b.Schema == dataset.SchemaTriplet {
		numCandidates = 2 * n
	}
	candidates := mat.NewDense(numCandidates, dim, nil)
	candidates.Slice(0, n, 0, dim).(*mat.Dense).Copy(b.Columns[1].Embeddings)
	if b.Schema == dataset.SchemaTriplet {
		candidates.Slice(n, 2*n, 0, dim).(*mat.Dense).Copy(b.Columns[2].Embeddings)
	}

	// Scores: scale * (anchors . candidatesᵀ); embeddings are normalized,
	// so the dot product is the cosine similarity
	scores := mat.NewDense(n, numCandidates, nil)
	scores.Mul(anchors, candidates.T())
	scores.Scale(l.scale, scores)

	// Cross entropy with the matching positive as the target class
	var total float64
	dScores := mat.NewDense(n, numCandidates, nil)
	for i := 0; i < n; i++ {
		row := scores.RawRowView(i)
		probs, lse := rowSoftmax(row)
		total += lse - row[i]

		if withGrads {
			dRow := dScores.RawRowView(i)
			for j := range probs {
				dRow[j] = probs[j] * l.scale / float64(n)
			}
			dRow[i] -= l.scale / float64(n)
		}
	}
	value := total / float64(n)

	if !withGrads {
		return value, nil, nil
	}

	// dAnchors = dScores . candidates; dCandidates = dScoresᵀ . anchors
	dAnchors := mat.NewDense(n, dim, nil)
	dAnchors.Mul(dScores, candidates)

	dCandidates := mat.NewDense(numCandidates, dim, nil)
	dCandidates.Mul(dScores.T(), anchors)

	grads := &Gradients{Columns: make([]*mat.Dense, len(b.Columns))}
	grads.Columns[0] = dAnchors
	grads.Columns[1] = mat.DenseCopyOf(dCandidates.Slice(0, n, 0, dim))
	if b.Schema == dataset.SchemaTriplet {
		grads.Columns[2] = mat.DenseCopyOf(dCandidates.Slice(n, 2*n, 0, dim))
	}

	return value, grads, nil
}
