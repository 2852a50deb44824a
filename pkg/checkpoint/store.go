package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ken/embed_trainer/pkg/model"
	"github.com/ken/embed_trainer/pkg/model/encoders"
)

var (
	// ErrCheckpointNotFound is returned when the requested step has no
	// saved checkpoint
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)

const (
	checkpointPrefix = "checkpoint-"
	stateFileName    = "trainer_state.json"
)

// State is the training progress snapshot stored with each checkpoint
type State struct {
	RunName    string    `json:"run_name"`
	GlobalStep int       `json:"global_step"`
	Epoch      int       `json:"epoch"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists model checkpoints during a training run
type Store interface {
	// Save writes the model and state as checkpoint-<step>
	Save(m *model.SentenceModel, state State) error

	// Steps returns the saved checkpoint steps in ascending order
	Steps() ([]int, error)

	// Prune deletes the oldest checkpoints until at most limit remain.
	// A limit of zero or less keeps everything.
	Prune(limit int) error

	// Load restores the model and state of a checkpoint
	Load(step int, encoder encoders.Encoder) (*model.SentenceModel, State, error)
}

// FileStore is a directory-backed checkpoint store. Each checkpoint lives
// in its own checkpoint-<step> subdirectory of the base directory.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a checkpoint store rooted at baseDir
func NewFileStore(baseDir string) (*FileStore, error) {
	// Ensure the directory exists
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return &FileStore{baseDir: baseDir}, nil
}

// Dir returns the directory a given step is (or would be) stored in
func (s *FileStore) Dir(step int) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s%d", checkpointPrefix, step))
}

// Save writes the model and state as checkpoint-<step>
func (s *FileStore) Save(m *model.SentenceModel, state State) error {
	dir := s.Dir(state.GlobalStep)
	if err := m.Save(dir); err != nil {
		return fmt.Errorf("failed to save checkpoint model: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal trainer state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, stateFileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write trainer state: %w", err)
	}

	return nil
}

// Steps returns the saved checkpoint steps in ascending order
func (s *FileStore) Steps() ([]int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var steps []int
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), checkpointPrefix) {
			continue
		}
		step, err := strconv.Atoi(strings.TrimPrefix(entry.Name(), checkpointPrefix))
		if err != nil {
			continue // not one of ours
		}
		steps = append(steps, step)
	}

	sort.Ints(steps)
	return steps, nil
}

// Prune deletes the oldest checkpoints until at most limit remain
func (s *FileStore) Prune(limit int) error {
	if limit <= 0 {
		return nil
	}

	steps, err := s.Steps()
	if err != nil {
		return err
	}

	for len(steps) > limit {
		if err := os.RemoveAll(s.Dir(steps[0])); err != nil {
			return fmt.Errorf("failed to prune checkpoint %d: %w", steps[0], err)
		}
		steps = steps[1:]
	}

	return nil
}

// Load restores the model and state of a checkpoint
func (s *FileStore) Load(step int, encoder encoders.Encoder) (*model.SentenceModel, State, error) {
	dir := s.Dir(step)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, State{}, fmt.Errorf("%w: step %d", ErrCheckpointNotFound, step)
	}

	m, err := model.Load(dir, encoder)
	if err != nil {
		return nil, State{}, fmt.Errorf("failed to load checkpoint model: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, stateFileName))
	if err != nil {
		return nil, State{}, fmt.Errorf("failed to read trainer state: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, State{}, fmt.Errorf("failed to parse trainer state: %w", err)
	}

	return m, state, nil
}
