// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package config holds the hyperparameters and file locations of a chest X-ray training run.
//
// A Config can be loaded from a YAML file, and it is mirrored into the hyperparameters of a context.Context, so
// individual values can also be overridden from the command line with commandline.ParseContextSettings.
package config

import (
	"os"
	"path/filepath"

	"github.com/gomlx/chestxray/pkg/dataset"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// MinImageSize is the smallest image that survives four unpadded 3x3 convolutions, each followed by a 2x2
// max-pooling.
const MinImageSize = 46

// Config of a training run.
type Config struct {
	// DataDir holds the train, val and test splits.
	DataDir string `yaml:"data_dir"`

	// OutputDir is where checkpoints and plots are written. Relative artifact paths below are relative to it.
	OutputDir string `yaml:"output_dir"`

	ImageSize     int     `yaml:"image_size"`
	BatchSize     int     `yaml:"batch_size"`
	EvalBatchSize int     `yaml:"eval_batch_size"`
	Epochs        int     `yaml:"epochs"`
	LearningRate  float64 `yaml:"learning_rate"`
	Seed          int64   `yaml:"seed"`

	// EarlyStopPatience is the number of epochs without validation loss improvement before training stops.
	EarlyStopPatience int `yaml:"early_stop_patience"`

	// PlateauPatience is the number of epochs without validation loss improvement before the learning rate
	// is multiplied by PlateauFactor, down to MinLearningRate.
	PlateauPatience int     `yaml:"plateau_patience"`
	PlateauFactor   float64 `yaml:"plateau_factor"`
	MinLearningRate float64 `yaml:"min_learning_rate"`

	Augment dataset.Augmentation `yaml:"augment"`

	// ParallelLoading decodes training batches in parallel. Batch order is then no longer reproducible.
	ParallelLoading bool `yaml:"parallel_loading"`

	BestModelDir  string `yaml:"best_model_dir"`
	FinalModelDir string `yaml:"final_model_dir"`
	HistoryPlot   string `yaml:"history_plot"`
	HistoryCSV    string `yaml:"history_csv"`
	SamplePlot    string `yaml:"sample_plot"`

	// NumSamples is the number of test images drawn in SamplePlot.
	NumSamples int `yaml:"num_samples"`
}

// Default returns a new Config with the default values.
func Default() *Config {
	return &Config{
		DataDir:           "chest_xray",
		OutputDir:         ".",
		ImageSize:         dataset.DefaultImageSize,
		BatchSize:         32,
		EvalBatchSize:     32,
		Epochs:            10,
		LearningRate:      0.001,
		Seed:              42,
		EarlyStopPatience: 3,
		PlateauPatience:   2,
		PlateauFactor:     0.5,
		MinLearningRate:   1e-7,
		Augment:           dataset.DefaultAugmentation,
		BestModelDir:      "best_model",
		FinalModelDir:     "xray_pneumonia_model",
		HistoryPlot:       "training_history.png",
		HistoryCSV:        "training_history.csv",
		SamplePlot:        "predictions_sample.png",
		NumSamples:        8,
	}
}

// Load reads the YAML file at filePath over the default values. Fields missing from the file keep their defaults.
// If filePath is empty, it returns Default().
func Load(filePath string) (*Config, error) {
	cfg := Default()
	if filePath == "" {
		return cfg, nil
	}
	contents, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading configuration file %q", filePath)
	}
	if err = yaml.Unmarshal(contents, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing configuration file %q", filePath)
	}
	if err = cfg.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "configuration file %q", filePath)
	}
	return cfg, nil
}

// Save writes the configuration as YAML to filePath.
func (c *Config) Save(filePath string) error {
	contents, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encoding configuration")
	}
	return errors.Wrapf(os.WriteFile(filePath, contents, 0644), "writing configuration to %q", filePath)
}

// Validate checks that the values are usable.
func (c *Config) Validate() error {
	switch {
	case c.DataDir == "":
		return errors.New("data_dir must be set")
	case c.ImageSize < MinImageSize:
		return errors.Errorf("image_size must be >= %d, got %d", MinImageSize, c.ImageSize)
	case c.BatchSize <= 0:
		return errors.Errorf("batch_size must be > 0, got %d", c.BatchSize)
	case c.EvalBatchSize <= 0:
		return errors.Errorf("eval_batch_size must be > 0, got %d", c.EvalBatchSize)
	case c.Epochs <= 0:
		return errors.Errorf("epochs must be > 0, got %d", c.Epochs)
	case c.LearningRate <= 0:
		return errors.Errorf("learning_rate must be > 0, got %g", c.LearningRate)
	case c.EarlyStopPatience <= 0 || c.PlateauPatience <= 0:
		return errors.Errorf("patience values must be > 0, got early_stop_patience=%d, plateau_patience=%d",
			c.EarlyStopPatience, c.PlateauPatience)
	case c.PlateauFactor <= 0 || c.PlateauFactor >= 1:
		return errors.Errorf("plateau_factor must be in (0, 1), got %g", c.PlateauFactor)
	case c.MinLearningRate < 0:
		return errors.Errorf("min_learning_rate must be >= 0, got %g", c.MinLearningRate)
	}
	return c.Augment.Validate()
}

// Path returns the artifact path p joined to OutputDir, unless p is absolute.
func (c *Config) Path(p string) string {
	if filepath.IsAbs(p) || c.OutputDir == "" {
		return p
	}
	return filepath.Join(c.OutputDir, p)
}

// SplitDir returns the directory of the given split ("train", "val" or "test").
func (c *Config) SplitDir(split string) string {
	return filepath.Join(c.DataDir, split)
}
