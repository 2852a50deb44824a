package dataset

import (
	"errors"
	"testing"
)

func TestInferColumns(t *testing.T) {
	cases := []struct {
		name    string
		columns []string
		schema  Schema
	}{
		{"triplet", []string{"anchor", "positive", "negative"}, SchemaTriplet},
		{"anchor pair", []string{"anchor", "positive"}, SchemaPair},
		{"nli", []string{"premise", "hypothesis", "label"}, SchemaPairClass},
		{"sts score", []string{"sentence1", "sentence2", "score"}, SchemaPairScore},
		{"sts similarity_score", []string{"sentence1", "sentence2", "similarity_score"}, SchemaPairScore},
		{"sentence pair with label", []string{"sentence1", "sentence2", "label"}, SchemaPairClass},
		{"bare sentence pair", []string{"sentence1", "sentence2"}, SchemaPair},
		{"retrieval query", []string{"query", "answer"}, SchemaPair},
		{"retrieval question", []string{"question", "answer"}, SchemaPair},
		{"extra columns ignored", []string{"anchor", "positive", "id", "lang"}, SchemaPair},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cm, err := inferColumns(tc.columns)
			if err != nil {
				t.Fatalf("Failed to infer columns %v: %v", tc.columns, err)
			}
			if cm.schema != tc.schema {
				t.Errorf("Expected schema %q, got %q", tc.schema, cm.schema)
			}
		})
	}

	if _, err := inferColumns([]string{"text", "title"}); !errors.Is(err, ErrUnknownColumns) {
		t.Errorf("Expected ErrUnknownColumns, got %v", err)
	}
}

func TestConvertRow(t *testing.T) {
	cm, err := inferColumns([]string{"premise", "hypothesis", "label"})
	if err != nil {
		t.Fatalf("Failed to infer columns: %v", err)
	}

	// JSON numbers decode as float64; the converter must accept both
	r, err := convertRow(map[string]interface{}{
		"premise":    "a man eats",
		"hypothesis": "a person is eating",
		"label":      float64(0),
	}, cm)
	if err != nil {
		t.Fatalf("Failed to convert row: %v", err)
	}
	if r.Texts[0] != "a man eats" || r.Texts[1] != "a person is eating" || r.Label != 0 {
		t.Errorf("Unexpected record: %+v", r)
	}

	if _, err := convertRow(map[string]interface{}{
		"premise":    "a man eats",
		"hypothesis": 42,
		"label":      float64(1),
	}, cm); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Expected ErrSchemaMismatch for a non-string text, got %v", err)
	}

	scored, err := inferColumns([]string{"sentence1", "sentence2", "score"})
	if err != nil {
		t.Fatalf("Failed to infer columns: %v", err)
	}
	r, err = convertRow(map[string]interface{}{
		"sentence1": "a", "sentence2": "b", "score": 0.82,
	}, scored)
	if err != nil {
		t.Fatalf("Failed to convert scored row: %v", err)
	}
	if r.Score != 0.82 {
		t.Errorf("Expected score 0.82, got %f", r.Score)
	}
}
