package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"gopkg.in/yaml.v3"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	ImageDir        string  `yaml:"image_dir"`
	ImageSize       int     `yaml:"image_size"`
	HiddenUnits     int     `yaml:"hidden_units"`
	NumClasses      int     `yaml:"num_classes"`
	Epochs          int     `yaml:"epochs"`
	BatchSize       int     `yaml:"batch_size"`
	ValidationSplit float64 `yaml:"validation_split"`
	LearningRate    float64 `yaml:"learning_rate"`
	Seed            int64   `yaml:"seed"`
	NumWorkers      int     `yaml:"num_workers"`
	Checkpoint      string  `yaml:"checkpoint"`
}

// Overrides captures CLI or environment supplied values.
type Overrides struct {
	ImageDir   string
	ImageSize  int
	Epochs     int
	BatchSize  int
	NumWorkers int
	Seed       int64
	Checkpoint string
}

// Default returns the configuration of the stock passport classifier.
func Default() *Config {
	return &Config{
		ImageSize:       150,
		HiddenUnits:     100,
		NumClasses:      2,
		Epochs:          50,
		BatchSize:       512,
		ValidationSplit: 0.1,
		LearningRate:    0.001,
	}
}

// Load reads a Config from YAML layered over Default.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.ImageDir != "" {
		c.ImageDir = o.ImageDir
	}
	if o.ImageSize > 0 {
		c.ImageSize = o.ImageSize
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.NumWorkers > 0 {
		c.NumWorkers = o.NumWorkers
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.Checkpoint != "" {
		c.Checkpoint = o.Checkpoint
	}
}

// Validate verifies the config is runnable and fills derived defaults.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.ImageDir == "" {
		return errors.New("image_dir must be set")
	}
	info, err := os.Stat(c.ImageDir)
	if err != nil {
		return fmt.Errorf("image_dir: %w", err)
	}
	if !info.IsDir() && !strings.EqualFold(filepath.Ext(c.ImageDir), ".tar") {
		return fmt.Errorf("image_dir %s is neither a directory nor a .tar archive", c.ImageDir)
	}
	if c.ImageSize <= 0 {
		return fmt.Errorf("image_size must be > 0 (got %d)", c.ImageSize)
	}
	if c.HiddenUnits <= 0 {
		return fmt.Errorf("hidden_units must be > 0 (got %d)", c.HiddenUnits)
	}
	if c.NumClasses != 2 {
		return fmt.Errorf("num_classes must be 2 (got %d)", c.NumClasses)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.ValidationSplit < 0 || c.ValidationSplit >= 1 {
		return fmt.Errorf("validation_split must be in [0,1) (got %g)", c.ValidationSplit)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be > 0 (got %g)", c.LearningRate)
	}
	if c.NumWorkers <= 0 {
		c.NumWorkers = defaultWorkers()
	}
	return nil
}

func defaultWorkers() int {
	if n := cpuid.CPU.LogicalCores; n > 0 {
		return n
	}
	return 1
}
