package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/ken/embed_trainer/pkg/core/vector"
	"github.com/ken/embed_trainer/pkg/model/encoders"
)

const (
	configFileName  = "model_config.json"
	weightsFileName = "adapter_weights.bin"
	biasFileName    = "adapter_bias.bin"
)

var (
	// ErrUnknownDimension is returned when the base encoder cannot report
	// its output dimension
	ErrUnknownDimension = errors.New("could not determine encoder dimension")
)

// SentenceModel is a sentence-embedding model: a frozen base encoder
// composed with a trainable linear adapter head. Training mutates only the
// adapter weights; the final embedding is the L2-normalized adapter output.
type SentenceModel struct {
	encoder encoders.Encoder
	inDim   int
	outDim  int

	weights *mat.Dense // outDim x inDim
	bias    []float64  // outDim
}

// modelConfig is the persisted model metadata
type modelConfig struct {
	EncoderName string `json:"encoder_name"`
	InputDim    int    `json:"input_dim"`
	OutputDim   int    `json:"output_dim"`
}

// New creates a sentence model on top of the given base encoder. The
// adapter is initialized to (a truncated) identity so that an untrained
// model reproduces the base embeddings. adapterDim of 0 keeps the encoder
// dimension.
func New(encoder encoders.Encoder, adapterDim int) (*SentenceModel, error) {
	inDim := encoder.Dimension()
	if inDim < 1 {
		return nil, fmt.Errorf("%w for model %q", ErrUnknownDimension, encoder.Name())
	}

	outDim := adapterDim
	if outDim == 0 {
		outDim = inDim
	}
	if outDim < 1 {
		return nil, fmt.Errorf("adapter dimension must be >= 1, got %d", outDim)
	}

	weights := mat.NewDense(outDim, inDim, nil)
	for i := 0; i < outDim && i < inDim; i++ {
		weights.Set(i, i, 1.0)
	}

	return &SentenceModel{
		encoder: encoder,
		inDim:   inDim,
		outDim:  outDim,
		weights: weights,
		bias:    make([]float64, outDim),
	}, nil
}

// Name returns the name of the underlying base encoder
func (m *SentenceModel) Name() string {
	return m.encoder.Name()
}

// Dimension returns the output dimension of the model
func (m *SentenceModel) Dimension() int {
	return m.outDim
}

// Activations holds everything computed while encoding one column of texts
// in a batch, kept around so gradients can be propagated back through the
// adapter
type Activations struct {
	Texts      []string
	Inputs     *mat.Dense // n x inDim base embeddings
	Projected  *mat.Dense // n x outDim adapter outputs before normalization
	Embeddings *mat.Dense // n x outDim normalized embeddings
	Norms      []float64  // per-row norms of Projected
}

// Len returns the number of encoded texts
func (a *Activations) Len() int {
	return len(a.Texts)
}

// Embedding returns the normalized embedding of row i
func (a *Activations) Embedding(i int) []float64 {
	return a.Embeddings.RawRowView(i)
}

// EncodeBatch runs the frozen base encoder and the adapter over a column
// of texts, recording the intermediate activations
func (m *SentenceModel) EncodeBatch(ctx context.Context, texts []string) (*Activations, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("cannot encode an empty batch")
	}

	base, err := m.encoder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("base encoder failed: %w", err)
	}

	n := len(texts)
	inputs := mat.NewDense(n, m.inDim, nil)
	for i, row := range base {
		if len(row) != m.inDim {
			return nil, fmt.Errorf("%w: expected %d, got %d", vector.ErrInvalidDimension, m.inDim, len(row))
		}
		for j, v := range row {
			inputs.Set(i, j, float64(v))
		}
	}

	// Projected = Inputs * Wᵀ + bias
	projected := mat.NewDense(n, m.outDim, nil)
	projected.Mul(inputs, m.weights.T())
	for i := 0; i < n; i++ {
		row := projected.RawRowView(i)
		for j := range row {
			row[j] += m.bias[j]
		}
	}

	embeddings := mat.NewDense(n, m.outDim, nil)
	norms := make([]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, m.outDim)
		copy(row, projected.RawRowView(i))
		norms[i] = vector.Normalize(row)
		embeddings.SetRow(i, row)
	}

	return &Activations{
		Texts:      texts,
		Inputs:     inputs,
		Projected:  projected,
		Embeddings: embeddings,
		Norms:      norms,
	}, nil
}

// Gradients accumulates adapter parameter gradients across the columns of
// a batch
type Gradients struct {
	Weights *mat.Dense // outDim x inDim
	Bias    []float64  // outDim
}

// NewGradients returns a zeroed gradient accumulator matching the model
func (m *SentenceModel) NewGradients() *Gradients {
	return &Gradients{
		Weights: mat.NewDense(m.outDim, m.inDim, nil),
		Bias:    make([]float64, m.outDim),
	}
}

// Backward propagates a gradient with respect to the normalized embeddings
// (n x outDim) back through the normalization and the linear adapter,
// accumulating into g
func (m *SentenceModel) Backward(acts *Activations, dEmbeddings *mat.Dense, g *Gradients) error {
	n, cols := dEmbeddings.Dims()
	if n != acts.Len() || cols != m.outDim {
		return fmt.Errorf("%w: gradient is %dx%d, want %dx%d", vector.ErrInvalidDimension, n, cols, acts.Len(), m.outDim)
	}

	// Through normalization: for e = u/|u|,
	// dL/du = (dL/de - (e . dL/de) e) / |u|
	dProjected := mat.NewDense(n, m.outDim, nil)
	for i := 0; i < n; i++ {
		if acts.Norms[i] == 0 {
			continue
		}
		e := acts.Embeddings.RawRowView(i)
		d := dEmbeddings.RawRowView(i)
		dot, err := vector.Dot(e, d)
		if err != nil {
			return err
		}
		row := dProjected.RawRowView(i)
		for j := range row {
			row[j] = (d[j] - dot*e[j]) / acts.Norms[i]
		}
	}

	// Through the linear layer: dW = dUᵀ X, db = column sums of dU
	var dW mat.Dense
	dW.Mul(dProjected.T(), acts.Inputs)
	g.Weights.Add(g.Weights, &dW)
	for i := 0; i < n; i++ {
		row := dProjected.RawRowView(i)
		for j := range row {
			g.Bias[j] += row[j]
		}
	}

	return nil
}

// Step applies one SGD update with the given learning rate
func (m *SentenceModel) Step(g *Gradients, lr float64) {
	var scaled mat.Dense
	scaled.Scale(lr, g.Weights)
	m.weights.Sub(m.weights, &scaled)
	for j := range m.bias {
		m.bias[j] -= lr * g.Bias[j]
	}
}

// WeightsSnapshot returns a copy of the current adapter weight matrix
func (m *SentenceModel) WeightsSnapshot() *mat.Dense {
	return mat.DenseCopyOf(m.weights)
}

// Save persists the model (adapter weights plus metadata) to a directory
func (m *SentenceModel) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	cfg := modelConfig{
		EncoderName: m.encoder.Name(),
		InputDim:    m.inDim,
		OutputDim:   m.outDim,
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal model config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, configFileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write model config: %w", err)
	}

	w, err := vector.NewMatrix(m.outDim, m.inDim, mat.DenseCopyOf(m.weights).RawMatrix().Data)
	if err != nil {
		return fmt.Errorf("failed to snapshot weights: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, weightsFileName), w.Encode(), 0644); err != nil {
		return fmt.Errorf("failed to write adapter weights: %w", err)
	}

	biasCopy := make([]float64, len(m.bias))
	copy(biasCopy, m.bias)
	b, err := vector.NewMatrix(1, m.outDim, biasCopy)
	if err != nil {
		return fmt.Errorf("failed to snapshot bias: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, biasFileName), b.Encode(), 0644); err != nil {
		return fmt.Errorf("failed to write adapter bias: %w", err)
	}

	return nil
}

// Load restores a saved model from a directory, reattaching it to the
// given base encoder
func Load(dir string, encoder encoders.Encoder) (*SentenceModel, error) {
	data, err := os.ReadFile(filepath.Join(dir, configFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read model config: %w", err)
	}
	var cfg modelConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse model config: %w", err)
	}

	wBytes, err := os.ReadFile(filepath.Join(dir, weightsFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read adapter weights: %w", err)
	}
	w, err := vector.Decode(wBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to decode adapter weights: %w", err)
	}
	if w.Rows != cfg.OutputDim || w.Cols != cfg.InputDim {
		return nil, fmt.Errorf("adapter weights are %dx%d, config says %dx%d", w.Rows, w.Cols, cfg.OutputDim, cfg.InputDim)
	}

	bBytes, err := os.ReadFile(filepath.Join(dir, biasFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read adapter bias: %w", err)
	}
	b, err := vector.Decode(bBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to decode adapter bias: %w", err)
	}
	if b.Rows != 1 || b.Cols != cfg.OutputDim {
		return nil, fmt.Errorf("adapter bias is %dx%d, config says 1x%d", b.Rows, b.Cols, cfg.OutputDim)
	}

	if dim := encoder.Dimension(); dim != 0 && dim != cfg.InputDim {
		return nil, fmt.Errorf("encoder %q produces %d-dimensional embeddings, model expects %d", encoder.Name(), dim, cfg.InputDim)
	}

	return &SentenceModel{
		encoder: encoder,
		inDim:   cfg.InputDim,
		outDim:  cfg.OutputDim,
		weights: mat.NewDense(cfg.OutputDim, cfg.InputDim, w.Data),
		bias:    b.Data,
	}, nil
}
