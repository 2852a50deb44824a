package hub

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// DefaultBaseURL is the model repository API endpoint
const DefaultBaseURL = "https://huggingface.co"

// Client uploads trained models to a remote model repository
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option customizes a hub client
type Option func(*Client)

// WithBaseURL overrides the repository API endpoint
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient creates a new hub client. A token is required for uploads.
func NewClient(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("an access token is required to push models")
	}

	c := &Client{
		baseURL: DefaultBaseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

type createRepoRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// CreateRepo creates the model repository if it does not exist yet.
// An already-existing repository is not an error.
func (c *Client) CreateRepo(ctx context.Context, repo string) error {
	body, err := json.Marshal(createRepoRequest{Name: repo, Type: "model"})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/repos/create", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("repo creation request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusConflict:
		return nil
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("repo creation returned status %d: %s", resp.StatusCode, string(msg))
	}
}

// commit API payload lines (newline-delimited JSON)
type commitLine struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

type commitHeader struct {
	Summary string `json:"summary"`
}

type commitFile struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// PushModelDir uploads every regular file in dir to the repository as a
// single commit on the main branch
func (c *Client) PushModelDir(ctx context.Context, repo, dir string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	if err := enc.Encode(commitLine{Key: "header", Value: commitHeader{Summary: "Upload fine-tuned model"}}); err != nil {
		return fmt.Errorf("failed to encode commit header: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read model directory: %w", err)
	}

	uploaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		line := commitLine{Key: "file", Value: commitFile{
			Path:     entry.Name(),
			Content:  base64.StdEncoding.EncodeToString(data),
			Encoding: "base64",
		}}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to encode file entry: %w", err)
		}
		uploaded++
	}

	if uploaded == 0 {
		return fmt.Errorf("model directory %s contains no files to upload", dir)
	}

	url := fmt.Sprintf("%s/api/models/%s/commit/main", c.baseURL, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("commit request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("commit returned status %d: %s", resp.StatusCode, string(msg))
	}

	return nil
}
