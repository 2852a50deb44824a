package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// JSONLLoader loads datasets from local files with one JSON object per
// line. The schema is inferred from the keys of the first record, and the
// split expression's range is applied to the line sequence.
type JSONLLoader struct{}

// Load reads the requested slice of a JSONL file
func (l *JSONLLoader) Load(_ context.Context, spec Spec) (*Dataset, error) {
	split, err := ParseSplit(spec.Split)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", spec.Name, err)
	}

	f, err := os.Open(spec.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer f.Close()

	var cm *columnMap
	var records []Record
	line := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		if line < split.Start {
			line++
			continue
		}
		if split.End != -1 && line >= split.End {
			break
		}
		line++

		var row map[string]interface{}
		if err := json.Unmarshal(text, &row); err != nil {
			return nil, fmt.Errorf("dataset %s, line %d: %w", spec.Name, line, err)
		}

		if cm == nil {
			columns := make([]string, 0, len(row))
			for k := range row {
				columns = append(columns, k)
			}
			cm, err = inferColumns(columns)
			if err != nil {
				return nil, fmt.Errorf("dataset %s: %w", spec.Name, err)
			}
		}

		r, err := convertRow(row, cm)
		if err != nil {
			return nil, fmt.Errorf("dataset %s, line %d: %w", spec.Name, line, err)
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset file: %w", err)
	}

	if cm == nil {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDataset, spec.Name)
	}

	return New(spec.Key(), cm.schema, records)
}
