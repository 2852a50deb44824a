package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents a full training-run configuration
type Config struct {
	Model    ModelConfig       `yaml:"model"`
	Datasets DatasetsConfig    `yaml:"datasets"`
	Args     TrainingArguments `yaml:"args"`
	Hub      HubConfig         `yaml:"hub"`
}

// ModelConfig identifies the pretrained model to fine-tune
type ModelConfig struct {
	// Name is the model identifier resolved against the model repository,
	// e.g. "sentence-transformers/all-MiniLM-L6-v2"
	Name string `yaml:"name"`

	// Encoder selects the base encoder backend ("hf" or "static")
	Encoder string `yaml:"encoder"`

	// AdapterDim is the output dimension of the trainable adapter head.
	// Zero means "same as the base encoder dimension".
	AdapterDim int `yaml:"adapter_dim"`
}

// DatasetsConfig holds the named train and eval dataset specifications
type DatasetsConfig struct {
	Train []DatasetSpec `yaml:"train"`
	Eval  []DatasetSpec `yaml:"eval"`
}

// DatasetSpec describes one remote (or local) dataset to load
type DatasetSpec struct {
	// Alias is the key the dataset is registered under. Defaults to Name.
	Alias string `yaml:"alias"`

	// Name is the dataset identifier on the dataset repository, or a local
	// path ending in .jsonl
	Name string `yaml:"name"`

	// Config is the optional dataset configuration name (e.g. "pair")
	Config string `yaml:"config"`

	// Split is a split expression such as "train[:10000]" or "validation"
	Split string `yaml:"split"`

	// Loss names the loss function for this dataset ("mnr", "softmax",
	// "cosent"). Required for train datasets, optional for eval datasets.
	Loss string `yaml:"loss"`
}

// HubConfig controls the optional model upload after training
type HubConfig struct {
	Push bool   `yaml:"push"`
	Repo string `yaml:"repo"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Name:    "sentence-transformers/all-MiniLM-L6-v2",
			Encoder: "hf",
		},
		Args: DefaultTrainingArguments(),
	}
}

// LoadConfig loads the configuration from a file.
// Environment variables are loaded from a .env file first when present,
// so HF_TOKEN can live next to the config file.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	// Start with default config
	config := DefaultConfig()

	// Resolve absolute path
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	// Check if the file exists
	_, err = os.Stat(absPath)
	if os.IsNotExist(err) {
		return config, nil // Return default config if file doesn't exist
	}

	// Read the file
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to a file
func SaveConfig(config *Config, path string) error {
	// Convert config to YAML
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Token returns the repository access token from the environment, if any
func Token() string {
	return os.Getenv("HF_TOKEN")
}
