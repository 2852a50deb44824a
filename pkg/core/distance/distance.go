package distance

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ken/embed_trainer/pkg/core/vector"
)

// MetricType represents the type of similarity metric
type MetricType string

const (
	// Cosine similarity metric (dot product of directions, in [-1, 1])
	Cosine MetricType = "cosine"

	// DotProduct similarity metric (unbounded inner product)
	DotProduct MetricType = "dotproduct"
)

// Metric is an interface for similarity calculations between embeddings
type Metric interface {
	// Similarity calculates the similarity between two vectors; larger
	// means more similar
	Similarity(a, b []float64) (float64, error)

	// Name returns the name of the metric
	Name() MetricType
}

// GetMetric returns a similarity metric implementation by name
func GetMetric(metric MetricType) (Metric, error) {
	switch metric {
	case Cosine:
		return &CosineSimilarity{}, nil
	case DotProduct:
		return &DotProductSimilarity{}, nil
	default:
		return nil, errors.New("unknown similarity metric")
	}
}

// CosineSimilarity implements the cosine similarity metric
type CosineSimilarity struct{}

func (d *CosineSimilarity) Similarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, vector.ErrInvalidDimension
	}

	dot := floats.Dot(a, b)
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)

	// Handle zero vectors
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	similarity := dot / (normA * normB)

	// Clamp to [-1, 1] to handle floating-point errors
	return math.Max(-1.0, math.Min(1.0, similarity)), nil
}

func (d *CosineSimilarity) Name() MetricType {
	return Cosine
}

// DotProductSimilarity implements the dot product similarity metric
type DotProductSimilarity struct{}

func (d *DotProductSimilarity) Similarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, vector.ErrInvalidDimension
	}
	return floats.Dot(a, b), nil
}

func (d *DotProductSimilarity) Name() MetricType {
	return DotProduct
}
