package encoders

import (
	"context"
	"fmt"
	"math"
	"math/rand"
)

// Static implements the Encoder interface with deterministic pseudo-random
// embeddings derived from the text content. It needs no network access and
// is used for offline runs and tests. Similar texts do not embed close to
// each other; only determinism and unit length are guaranteed.
type Static struct {
	config    *Config
	dimension int
}

// NewStatic creates a new deterministic offline encoder
func NewStatic(config *Config, dimension int) (*Static, error) {
	if config == nil {
		config = NewConfig("static")
	}
	if dimension < 1 {
		return nil, fmt.Errorf("dimension must be >= 1, got %d", dimension)
	}

	return &Static{
		config:    config,
		dimension: dimension,
	}, nil
}

// Embed converts input text into a deterministic unit vector
func (m *Static) Embed(_ context.Context, text string) ([]float32, error) {
	vector := make([]float32, m.dimension)

	// Seed a generator from the text so the same text always maps to the
	// same vector
	seed := int64(1)
	for _, c := range text {
		seed = seed*31 + int64(c)
	}
	r := rand.New(rand.NewSource(seed))

	for i := range vector {
		vector[i] = float32(r.Float64()*2 - 1)
	}

	// Normalize the vector
	norm := float32(0)
	for _, v := range vector {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))

	if norm > 0 {
		for i := range vector {
			vector[i] /= norm
		}
	}

	return vector, nil
}

// EmbedBatch converts multiple texts into vector embeddings
func (m *Static) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := m.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text at index %d: %w", i, err)
		}
		results[i] = vector
	}
	return results, nil
}

// Dimension returns the dimension of the vectors produced by this encoder
func (m *Static) Dimension() int {
	return m.dimension
}

// Name returns the name of the model
func (m *Static) Name() string {
	return m.config.ModelName
}

// Close releases resources used by the encoder
func (m *Static) Close() error {
	return nil
}
