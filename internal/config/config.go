// Package config holds the runtime knobs of the LeNet pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/lenet/internal/optim"
	"github.com/born-ml/lenet/internal/store"
)

// Config captures the runtime knobs for a pipeline run.
type Config struct {
	DataDir     string `yaml:"data_dir"`
	TrainDB     string `yaml:"train_db"`
	TestDB      string `yaml:"test_db"`
	DBType      string `yaml:"db_type"`
	OutputDir   string `yaml:"output_dir"`
	TrainBatch  int    `yaml:"train_batch"`
	TestBatch   int    `yaml:"test_batch"`
	Epochs      int    `yaml:"epochs"`
	StepsPerEp  int    `yaml:"steps_per_epoch"`
	TestIters   int    `yaml:"test_iters"`
	LogEvery    int    `yaml:"log_every"`
	Workers     int    `yaml:"workers"`
	Seed        uint64 `yaml:"seed"`
	InferIndex  int    `yaml:"infer_index"`
	Optimizer   SGD    `yaml:"optimizer"`
	SkipExport  bool   `yaml:"skip_export"`
	SkipInfer   bool   `yaml:"skip_infer"`
	ProbeDevice bool   `yaml:"probe_device"`
}

// SGD holds the optimizer section.
type SGD struct {
	BaseLR   float32 `yaml:"base_lr"`
	Policy   string  `yaml:"policy"`
	Gamma    float32 `yaml:"gamma"`
	StepSize int64   `yaml:"stepsize"`
	Power    float32 `yaml:"power"`
	Momentum float32 `yaml:"momentum"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	DataDir    string
	TrainDB    string
	TestDB     string
	OutputDir  string
	TrainBatch int
	TestBatch  int
	Epochs     int
	StepsPerEp int
	TestIters  int
	LogEvery   int
	Workers    int
	Seed       uint64
	BaseLR     float64
	Momentum   float64
}

// Default returns the configuration of the reference MNIST run.
func Default() *Config {
	return &Config{
		DataDir:     ".",
		TrainDB:     "mnist-train-nchw-leveldb",
		TestDB:      "mnist-test-nchw-leveldb",
		DBType:      store.TypeLevelDB,
		OutputDir:   ".",
		TrainBatch:  64,
		TestBatch:   100,
		Epochs:      1,
		StepsPerEp:  937,
		TestIters:   100,
		LogEvery:    100,
		Seed:        1,
		ProbeDevice: true,
		Optimizer: SGD{
			BaseLR:   0.01,
			Policy:   string(optim.PolicyStep),
			Gamma:    0.999,
			StepSize: 1,
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	//nolint:gosec // G304: config path comes from the command line
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.TrainDB != "" {
		c.TrainDB = o.TrainDB
	}
	if o.TestDB != "" {
		c.TestDB = o.TestDB
	}
	if o.OutputDir != "" {
		c.OutputDir = o.OutputDir
	}
	if o.TrainBatch > 0 {
		c.TrainBatch = o.TrainBatch
	}
	if o.TestBatch > 0 {
		c.TestBatch = o.TestBatch
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.StepsPerEp > 0 {
		c.StepsPerEp = o.StepsPerEp
	}
	if o.TestIters > 0 {
		c.TestIters = o.TestIters
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
	if o.Workers > 0 {
		c.Workers = o.Workers
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.BaseLR > 0 {
		c.Optimizer.BaseLR = float32(o.BaseLR)
	}
	if o.Momentum > 0 {
		c.Optimizer.Momentum = float32(o.Momentum)
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.TrainDB == "" || c.TestDB == "" {
		return errors.New("train_db and test_db must be set")
	}
	if c.DBType != store.TypeLevelDB {
		return fmt.Errorf("%w: %q", store.ErrUnsupportedType, c.DBType)
	}
	if c.TrainBatch <= 0 {
		return fmt.Errorf("train_batch must be > 0 (got %d)", c.TrainBatch)
	}
	if c.TestBatch <= 0 {
		return fmt.Errorf("test_batch must be > 0 (got %d)", c.TestBatch)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.StepsPerEp <= 0 {
		return fmt.Errorf("steps_per_epoch must be > 0 (got %d)", c.StepsPerEp)
	}
	if c.TestIters <= 0 {
		return fmt.Errorf("test_iters must be > 0 (got %d)", c.TestIters)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0 (got %d)", c.Workers)
	}
	if c.InferIndex < 0 {
		return fmt.Errorf("infer_index must be >= 0 (got %d)", c.InferIndex)
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 100
	}
	if _, err := optim.ParsePolicy(c.Optimizer.Policy); err != nil {
		return fmt.Errorf("optimizer.policy: %w", err)
	}
	if err := c.SGD().Validate(); err != nil {
		return fmt.Errorf("optimizer: %w", err)
	}
	return nil
}

// SGD returns the optimizer settings.
func (c *Config) SGD() optim.SGDConfig {
	return optim.SGDConfig{
		BaseLR:   c.Optimizer.BaseLR,
		Policy:   optim.Policy(c.Optimizer.Policy),
		Gamma:    c.Optimizer.Gamma,
		StepSize: c.Optimizer.StepSize,
		Power:    c.Optimizer.Power,
		Momentum: c.Optimizer.Momentum,
	}
}

// TrainDBPath returns the training store path.
func (c *Config) TrainDBPath() string { return c.resolve(c.TrainDB) }

// TestDBPath returns the test store path.
func (c *Config) TestDBPath() string { return c.resolve(c.TestDB) }

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) || c.DataDir == "" {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// TotalSteps returns the number of training steps of the run.
func (c *Config) TotalSteps() int {
	return c.Epochs * c.StepsPerEp
}
