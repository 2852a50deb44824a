package encoders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultInferenceURL is the feature-extraction endpoint of the Hugging
// Face inference API
const DefaultInferenceURL = "https://api-inference.huggingface.co/pipeline/feature-extraction"

// maxParallelRequests bounds concurrent inference calls per batch
const maxParallelRequests = 4

// HuggingFace implements the Encoder interface against the Hugging Face
// inference API. The remote model stays frozen; this encoder only reads
// embeddings from it.
type HuggingFace struct {
	config     *Config
	baseURL    string
	token      string
	httpClient *http.Client

	mu        sync.Mutex
	dimension int // discovered from the first response
}

// HuggingFaceOption customizes a HuggingFace encoder
type HuggingFaceOption func(*HuggingFace)

// WithBaseURL overrides the inference API endpoint
func WithBaseURL(url string) HuggingFaceOption {
	return func(m *HuggingFace) { m.baseURL = url }
}

// WithToken sets the API access token
func WithToken(token string) HuggingFaceOption {
	return func(m *HuggingFace) { m.token = token }
}

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(c *http.Client) HuggingFaceOption {
	return func(m *HuggingFace) { m.httpClient = c }
}

// NewHuggingFace creates a new encoder backed by the inference API
func NewHuggingFace(config *Config, opts ...HuggingFaceOption) (*HuggingFace, error) {
	if config == nil {
		config = NewConfig("sentence-transformers/all-MiniLM-L6-v2")
	}
	if config.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}

	m := &HuggingFace{
		config:  config,
		baseURL: DefaultInferenceURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

type inferenceRequest struct {
	Inputs  []string         `json:"inputs"`
	Options inferenceOptions `json:"options"`
}

type inferenceOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// Embed converts input text into a vector embedding
func (m *HuggingFace) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.embedChunk(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch converts multiple texts into vector embeddings. Texts are
// split into chunks of the configured batch size and fetched in parallel.
func (m *HuggingFace) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	chunkSize := m.config.BatchSize
	if chunkSize < 1 {
		chunkSize = 32
	}

	results := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelRequests)

	for start := 0; start < len(texts); start += chunkSize {
		start := start
		end := start + chunkSize
		if end > len(texts) {
			end = len(texts)
		}

		g.Go(func() error {
			vectors, err := m.embedChunk(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("failed to embed texts [%d:%d]: %w", start, end, err)
			}
			copy(results[start:end], vectors)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// embedChunk performs one inference API call
func (m *HuggingFace) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(inferenceRequest{
		Inputs:  texts,
		Options: inferenceOptions{WaitForModel: true},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := m.baseURL + "/" + m.config.ModelName
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("inference API returned status %d: %s", resp.StatusCode, string(msg))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("failed to decode embeddings: %w", err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range vectors {
		if m.dimension == 0 {
			m.dimension = len(v)
		}
		if len(v) != m.dimension {
			return nil, fmt.Errorf("inconsistent embedding dimension: expected %d, got %d", m.dimension, len(v))
		}
	}

	return vectors, nil
}

// Dimension returns the dimension of the vectors produced by this encoder.
// The dimension is discovered from the first API response; before that a
// one-off probe request is made.
func (m *HuggingFace) Dimension() int {
	m.mu.Lock()
	dim := m.dimension
	m.mu.Unlock()
	if dim != 0 {
		return dim
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if _, err := m.Embed(ctx, "dimension probe"); err != nil {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dimension
}

// Name returns the name of the model
func (m *HuggingFace) Name() string {
	return m.config.ModelName
}

// Close releases resources used by the encoder
func (m *HuggingFace) Close() error {
	m.httpClient.CloseIdleConnections()
	return nil
}
