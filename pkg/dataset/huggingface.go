package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultRowsURL is the dataset repository rows API endpoint
const DefaultRowsURL = "https://datasets-server.huggingface.co"

const (
	// rowsPageSize is the maximum page length the rows API serves
	rowsPageSize = 100

	// maxParallelPages bounds concurrent page fetches per dataset
	maxParallelPages = 4
)

// HubLoader loads datasets from the remote dataset repository through its
// paged rows API
type HubLoader struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// HubOption customizes a HubLoader
type HubOption func(*HubLoader)

// WithBaseURL overrides the rows API endpoint
func WithBaseURL(url string) HubOption {
	return func(l *HubLoader) { l.baseURL = url }
}

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(c *http.Client) HubOption {
	return func(l *HubLoader) { l.httpClient = c }
}

// NewHubLoader creates a loader against the dataset repository
func NewHubLoader(token string, opts ...HubOption) *HubLoader {
	l := &HubLoader{
		baseURL: DefaultRowsURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// rowsResponse mirrors the rows API payload
type rowsResponse struct {
	Features []struct {
		Name string `json:"name"`
	} `json:"features"`
	Rows []struct {
		Row map[string]interface{} `json:"row"`
	} `json:"rows"`
	NumRowsTotal int `json:"num_rows_total"`
}

// Load fetches the requested slice of a dataset split, inferring the
// record schema from the dataset's column names
func (l *HubLoader) Load(ctx context.Context, spec Spec) (*Dataset, error) {
	split, err := ParseSplit(spec.Split)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", spec.Name, err)
	}

	// The first page tells us the columns and the total row count
	first, err := l.fetchPage(ctx, spec, split.Name, split.Start, rowsPageSize)
	if err != nil {
		return nil, err
	}

	columns := make([]string, 0, len(first.Features))
	for _, f := range first.Features {
		columns = append(columns, f.Name)
	}
	cm, err := inferColumns(columns)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", spec.Name, err)
	}

	start, end := split.Clamp(first.NumRowsTotal)
	if end <= start {
		return nil, fmt.Errorf("dataset %s: split %s selects no rows (total %d)",
			spec.Name, split.String(), first.NumRowsTotal)
	}
	total := end - start

	pages := make([]*rowsResponse, (total+rowsPageSize-1)/rowsPageSize)
	pages[0] = first

	// Remaining pages are independent; fetch them in parallel
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelPages)
	for p := 1; p < len(pages); p++ {
		p := p
		g.Go(func() error {
			offset := start + p*rowsPageSize
			length := rowsPageSize
			if offset+length > end {
				length = end - offset
			}
			page, err := l.fetchPage(gctx, spec, split.Name, offset, length)
			if err != nil {
				return err
			}
			pages[p] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]Record, 0, total)
	for _, page := range pages {
		for _, row := range page.Rows {
			if len(records) == total {
				break
			}
			r, err := convertRow(row.Row, cm)
			if err != nil {
				return nil, fmt.Errorf("dataset %s, row %d: %w", spec.Name, start+len(records), err)
			}
			records = append(records, r)
		}
	}

	return New(spec.Key(), cm.schema, records)
}

// fetchPage performs one rows API call
func (l *HubLoader) fetchPage(ctx context.Context, spec Spec, split string, offset, length int) (*rowsResponse, error) {
	params := url.Values{}
	params.Set("dataset", spec.Name)
	if spec.Config != "" {
		params.Set("config", spec.Config)
	} else {
		params.Set("config", "default")
	}
	params.Set("split", split)
	params.Set("offset", fmt.Sprintf("%d", offset))
	params.Set("length", fmt.Sprintf("%d", length))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/rows?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if l.token != "" {
		req.Header.Set("Authorization", "Bearer "+l.token)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rows request for %s failed: %w", spec.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rows API returned status %d for %s: %s", resp.StatusCode, spec.Name, string(msg))
	}

	var page rowsResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode rows for %s: %w", spec.Name, err)
	}

	return &page, nil
}
