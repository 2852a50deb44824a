package loss

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ken/embed_trainer/pkg/dataset"
	"github.com/ken/embed_trainer/pkg/model"
	"github.com/ken/embed_trainer/pkg/model/encoders"
)

// nudge shifts a single adapter weight by delta, using the model's own
// update rule so tests need no access to the raw parameters
func nudge(m *model.SentenceModel, row, col int, delta float64) {
	g := m.NewGradients()
	g.Weights.Set(row, col, -delta)
	m.Step(g, 1.0)
}

// TestAdapterGradients compares the analytic adapter gradients of every
// loss against central finite differences through the full pipeline,
// normalization included
func TestAdapterGradients(t *testing.T) {
	cases := []struct {
		name    string
		schema  dataset.Schema
		records []dataset.Record
		build   func(m *model.SentenceModel) Loss
	}{
		{
			name:   "mnr pair",
			schema: dataset.SchemaPair,
			records: []dataset.Record{
				{Texts: []string{"how do plants make food", "photosynthesis converts light to sugar"}},
				{Texts: []string{"capital of france", "paris is the capital of france"}},
				{Texts: []string{"boiling point of water", "water boils at 100 degrees celsius"}},
			},
			build: func(m *model.SentenceModel) Loss { return NewMultipleNegativesRanking(m) },
		},
		{
			name:   "mnr triplet",
			schema: dataset.SchemaTriplet,
			records: []dataset.Record{
				{Texts: []string{"a cat sleeps", "the cat is asleep", "a dog barks"}},
				{Texts: []string{"it is raining", "rain is falling", "the sun is out"}},
			},
			build: func(m *model.SentenceModel) Loss { return NewMultipleNegativesRanking(m) },
		},
		{
			name:   "cosent",
			schema: dataset.SchemaPairScore,
			records: []dataset.Record{
				{Texts: []string{"a man is singing", "a person sings"}, Score: 0.9},
				{Texts: []string{"a man is singing", "a child plays piano"}, Score: 0.4},
				{Texts: []string{"a man is singing", "the market closed early"}, Score: 0.05},
			},
			build: func(m *model.SentenceModel) Loss { return NewCoSENT(m) },
		},
		{
			name:   "softmax",
			schema: dataset.SchemaPairClass,
			records: []dataset.Record{
				{Texts: []string{"he bought a car", "he owns a vehicle"}, Label: 0},
				{Texts: []string{"he bought a car", "he might drive somewhere"}, Label: 1},
				{Texts: []string{"he bought a car", "he has never owned a car"}, Label: 2},
			},
			build: func(m *model.SentenceModel) Loss { return NewSoftmaxClassifier(m, DefaultNumLabels) },
		},
	}

	const eps = 1e-5
	probes := [][2]int{{0, 0}, {2, 3}, {5, 1}}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enc, err := encoders.NewStatic(nil, 6)
			require.NoError(t, err)
			m, err := model.New(enc, 0)
			require.NoError(t, err)

			lossFn := tc.build(m)
			ctx := context.Background()

			b, err := EncodeBatch(ctx, m, tc.schema, tc.records)
			require.NoError(t, err)

			_, grads, err := lossFn.Forward(b)
			require.NoError(t, err)

			analytic := m.NewGradients()
			for i, col := range b.Columns {
				require.NoError(t, m.Backward(col, grads.Columns[i], analytic))
			}

			value := func() float64 {
				batch, err := EncodeBatch(ctx, m, tc.schema, tc.records)
				require.NoError(t, err)
				v, err := lossFn.Evaluate(batch)
				require.NoError(t, err)
				return v
			}

			for _, p := range probes {
				row, col := p[0], p[1]

				nudge(m, row, col, eps)
				plus := value()
				nudge(m, row, col, -2*eps)
				minus := value()
				nudge(m, row, col, eps) // restore

				numeric := (plus - minus) / (2 * eps)
				require.InDelta(t, numeric, analytic.Weights.At(row, col), 1e-4,
					"weight (%d,%d)", row, col)
			}
		})
	}
}
