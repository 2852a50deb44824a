package dataset

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrSchemaMismatch is returned when a record's shape does not match
	// the schema of the dataset it belongs to
	ErrSchemaMismatch = errors.New("record does not match dataset schema")

	// ErrEmptyDataset is returned when a dataset is created without records
	ErrEmptyDataset = errors.New("dataset has no records")
)

// Schema describes the label shape of a dataset's records
type Schema string

const (
	// SchemaPair holds two related texts with no explicit label
	SchemaPair Schema = "pair"

	// SchemaPairClass holds two texts with a categorical class label
	SchemaPairClass Schema = "pair-class"

	// SchemaPairScore holds two texts with a continuous similarity score
	SchemaPairScore Schema = "pair-score"

	// SchemaTriplet holds anchor, positive and negative texts
	SchemaTriplet Schema = "triplet"
)

// TextArity returns how many text spans a record of this schema carries
func (s Schema) TextArity() int {
	if s == SchemaTriplet {
		return 3
	}
	return 2
}

// Valid reports whether the schema is one of the known shapes
func (s Schema) Valid() bool {
	switch s {
	case SchemaPair, SchemaPairClass, SchemaPairScore, SchemaTriplet:
		return true
	}
	return false
}

// Record is one labeled training example. Texts holds two entries for the
// pair schemas and three (anchor, positive, negative) for triplets. Label
// is set for pair-class records, Score for pair-score records.
type Record struct {
	Texts []string
	Label int
	Score float64
}

// Validate checks that the record matches the given schema
func (r Record) Validate(s Schema) error {
	if !s.Valid() {
		return fmt.Errorf("%w: unknown schema %q", ErrSchemaMismatch, s)
	}
	if len(r.Texts) != s.TextArity() {
		return fmt.Errorf("%w: schema %q expects %d texts, record has %d",
			ErrSchemaMismatch, s, s.TextArity(), len(r.Texts))
	}
	for i, text := range r.Texts {
		if text == "" {
			return fmt.Errorf("%w: schema %q has empty text at position %d", ErrSchemaMismatch, s, i)
		}
	}
	return nil
}

// Dataset is a named collection of labeled records sharing one schema
type Dataset struct {
	Name    string
	Schema  Schema
	Records []Record
}

// New creates a dataset, validating every record against the schema so
// that shape mismatches surface at load time rather than mid-training
func New(name string, schema Schema, records []Record) (*Dataset, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDataset, name)
	}
	for i, r := range records {
		if err := r.Validate(schema); err != nil {
			return nil, fmt.Errorf("dataset %s, record %d: %w", name, i, err)
		}
	}
	return &Dataset{Name: name, Schema: schema, Records: records}, nil
}

// Len returns the number of records
func (d *Dataset) Len() int {
	return len(d.Records)
}

// Collection maps dataset names to datasets. The train and eval dataset
// groups are independent collections sharing a key space.
type Collection map[string]*Dataset

// Keys returns the dataset names in sorted order
func (c Collection) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
