package loss

import (
	"context"
	"fmt"

	"github.com/ken/embed_trainer/pkg/dataset"
	"github.com/ken/embed_trainer/pkg/model"
)

// EncodeBatch validates a slice of records against the schema and runs
// every text column through the model, producing the batch a loss
// consumes. The per-record validation here is the last line of defense
// against a shape mismatch reaching the numeric code.
func EncodeBatch(ctx context.Context, m *model.SentenceModel, schema dataset.Schema, records []dataset.Record) (*Batch, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("cannot encode an empty batch")
	}
	for i, r := range records {
		if err := r.Validate(schema); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}

	arity := schema.TextArity()
	b := &Batch{
		Schema:  schema,
		Columns: make([]*model.Activations, arity),
	}

	for c := 0; c < arity; c++ {
		texts := make([]string, len(records))
		for i, r := range records {
			texts[i] = r.Texts[c]
		}
		acts, err := m.EncodeBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		b.Columns[c] = acts
	}

	switch schema {
	case dataset.SchemaPairClass:
		b.Labels = make([]int, len(records))
		for i, r := range records {
			b.Labels[i] = r.Label
		}
	case dataset.SchemaPairScore:
		b.Scores = make([]float64, len(records))
		for i, r := range records {
			b.Scores[i] = r.Score
		}
	}

	return b, nil
}
