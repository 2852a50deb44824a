package encoders

import "context"

// Encoder defines the interface for all base text encoders. Encoders are
// frozen during fine-tuning; only the adapter head on top of them is
// trained.
type Encoder interface {
	// Embed converts input text into a vector embedding
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts into vector embeddings
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimension of the vectors produced by this
	// encoder, or 0 if it is not yet known
	Dimension() int

	// Name returns the name of the underlying model
	Name() string

	// Close releases resources used by the encoder
	Close() error
}

// Config holds configuration for base encoders
type Config struct {
	ModelName string
	MaxLength int
	BatchSize int
}

// NewConfig creates a new encoder configuration with default values
func NewConfig(modelName string) *Config {
	return &Config{
		ModelName: modelName,
		MaxLength: 256,
		BatchSize: 32,
	}
}
