package dataset

import (
	"context"
	"strings"
)

// Spec identifies one dataset to load: a repository name (or local JSONL
// path), an optional configuration name, and a split expression
type Spec struct {
	// Alias is the key the dataset is registered under; defaults to Name
	Alias string

	// Name is the dataset repository identifier or a local .jsonl path
	Name string

	// Config is the dataset configuration (subset) name, if any
	Config string

	// Split is a split expression such as "train[:10000]"
	Split string
}

// Key returns the collection key for this spec
func (s Spec) Key() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Name
}

// Loader resolves dataset specs into datasets. Implementations exist for
// the remote dataset repository and for local JSONL files; tests substitute
// fakes.
type Loader interface {
	Load(ctx context.Context, spec Spec) (*Dataset, error)
}

// AutoLoader routes each spec to the JSONL loader for local paths and to
// the hub loader for everything else
type AutoLoader struct {
	Hub   *HubLoader
	Local *JSONLLoader
}

// NewAutoLoader builds the default loader stack
func NewAutoLoader(token string) *AutoLoader {
	return &AutoLoader{
		Hub:   NewHubLoader(token),
		Local: &JSONLLoader{},
	}
}

// Load resolves the spec with the appropriate backend
func (l *AutoLoader) Load(ctx context.Context, spec Spec) (*Dataset, error) {
	if strings.HasSuffix(spec.Name, ".jsonl") {
		return l.Local.Load(ctx, spec)
	}
	return l.Hub.Load(ctx, spec)
}

// LoadAll resolves a list of specs into a collection keyed by spec key
func LoadAll(ctx context.Context, loader Loader, specs []Spec) (Collection, error) {
	if len(specs) == 0 {
		return Collection{}, nil
	}
	c := make(Collection, len(specs))
	for _, spec := range specs {
		ds, err := loader.Load(ctx, spec)
		if err != nil {
			return nil, err
		}
		c[spec.Key()] = ds
	}
	return c, nil
}
