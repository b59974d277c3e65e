package sentiment

import (
	"os"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// Config collects every knob of a training run. It is passed into
// constructors explicitly; nothing in this package reads process globals.
type Config struct {
	Seed          int64   `yaml:"seed"`
	BatchSize     int     `yaml:"batch_size"`
	Epochs        int     `yaml:"epochs"`
	HiddenDim     int     `yaml:"hidden_dim"`
	Layers        int     `yaml:"layers"`
	Bidirectional bool    `yaml:"bidirectional"`
	Dropout       float64 `yaml:"dropout"`
	LearningRate  float64 `yaml:"learning_rate"`
	GradClip      float64 `yaml:"grad_clip"`
	MaxLen        int     `yaml:"max_len"`
}

// DefaultConfig returns the standard run configuration: a 2-layer
// bidirectional GRU of width 256 with 0.5 dropout, batch size 128, 2 epochs.
func DefaultConfig() Config {
	return Config{
		Seed:          1234,
		BatchSize:     128,
		Epochs:        2,
		HiddenDim:     256,
		Layers:        2,
		Bidirectional: true,
		Dropout:       0.5,
		LearningRate:  0.001,
		GradClip:      5.0,
		MaxLen:        512,
	}
}

// LoadConfig reads a YAML file over the defaults, so a config file only
// needs to name the values it changes.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "reading config file")
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parsing config file")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c Config) Validate() error {
	if c.BatchSize < 1 {
		return errors.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.Epochs < 1 {
		return errors.Errorf("epoch count must be positive, got %d", c.Epochs)
	}
	if c.HiddenDim < 1 {
		return errors.Errorf("hidden dim must be positive, got %d", c.HiddenDim)
	}
	if c.Layers < 1 {
		return errors.Errorf("layer count must be positive, got %d", c.Layers)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return errors.Errorf("dropout must be in [0, 1), got %v", c.Dropout)
	}
	if c.LearningRate <= 0 {
		return errors.Errorf("learning rate must be positive, got %v", c.LearningRate)
	}
	if c.MaxLen < 3 {
		return errors.Errorf("max length must leave room for content between the markers, got %d", c.MaxLen)
	}
	return nil
}
