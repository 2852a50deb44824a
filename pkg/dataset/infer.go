package dataset

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnknownColumns is returned when a dataset's columns match none of
	// the recognized record shapes
	ErrUnknownColumns = errors.New("cannot infer dataset schema from columns")
)

// columnMap describes how raw row columns feed a Record
type columnMap struct {
	schema Schema
	texts  []string // column names, in record text order
	label  string
	score  string
}

// inferColumns maps a dataset's column names to one of the known record
// shapes. Extra columns are ignored; recognition covers the column
// conventions of the common sentence-embedding training sets.
func inferColumns(columns []string) (*columnMap, error) {
	has := make(map[string]bool, len(columns))
	for _, c := range columns {
		has[c] = true
	}

	switch {
	case has["anchor"] && has["positive"] && has["negative"]:
		return &columnMap{schema: SchemaTriplet, texts: []string{"anchor", "positive", "negative"}}, nil
	case has["anchor"] && has["positive"]:
		return &columnMap{schema: SchemaPair, texts: []string{"anchor", "positive"}}, nil
	case has["premise"] && has["hypothesis"] && has["label"]:
		return &columnMap{schema: SchemaPairClass, texts: []string{"premise", "hypothesis"}, label: "label"}, nil
	case has["sentence1"] && has["sentence2"]:
		cm := &columnMap{texts: []string{"sentence1", "sentence2"}}
		switch {
		case has["score"]:
			cm.schema, cm.score = SchemaPairScore, "score"
		case has["similarity_score"]:
			cm.schema, cm.score = SchemaPairScore, "similarity_score"
		case has["label"]:
			cm.schema, cm.label = SchemaPairClass, "label"
		default:
			cm.schema = SchemaPair
		}
		return cm, nil
	case has["query"] && has["answer"]:
		return &columnMap{schema: SchemaPair, texts: []string{"query", "answer"}}, nil
	case has["question"] && has["answer"]:
		return &columnMap{schema: SchemaPair, texts: []string{"question", "answer"}}, nil
	}

	sorted := append([]string(nil), columns...)
	sort.Strings(sorted)
	return nil, fmt.Errorf("%w: %v", ErrUnknownColumns, sorted)
}

// convertRow builds a Record from one raw row according to the column map
func convertRow(row map[string]interface{}, cm *columnMap) (Record, error) {
	r := Record{Texts: make([]string, 0, len(cm.texts))}

	for _, col := range cm.texts {
		v, ok := row[col].(string)
		if !ok {
			return Record{}, fmt.Errorf("%w: column %q is not a string (%T)", ErrSchemaMismatch, col, row[col])
		}
		r.Texts = append(r.Texts, v)
	}

	if cm.label != "" {
		switch v := row[cm.label].(type) {
		case float64:
			r.Label = int(v)
		case int:
			r.Label = v
		default:
			return Record{}, fmt.Errorf("%w: column %q is not an integer label (%T)", ErrSchemaMismatch, cm.label, row[cm.label])
		}
	}

	if cm.score != "" {
		switch v := row[cm.score].(type) {
		case float64:
			r.Score = v
		case int:
			r.Score = float64(v)
		default:
			return Record{}, fmt.Errorf("%w: column %q is not a numeric score (%T)", ErrSchemaMismatch, cm.score, row[cm.score])
		}
	}

	return r, nil
}
