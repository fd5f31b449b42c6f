// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 150, cfg.ImageSize)
	assert.Equal(t, 32, cfg.BatchSize)
	assert.Equal(t, 10, cfg.Epochs)
	assert.Equal(t, 0.001, cfg.LearningRate)
	assert.Equal(t, "best_model", cfg.BestModelDir)
	assert.Equal(t, "xray_pneumonia_model", cfg.FinalModelDir)

	// Default returns independent copies.
	cfg.BatchSize = 1
	assert.Equal(t, 32, Default().BatchSize)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(filePath, []byte(`
data_dir: /data/xrays
epochs: 3
augment:
  rotation_range: 5
  horizontal_flip: false
`), 0644))

	cfg, err := Load(filePath)
	require.NoError(t, err)
	assert.Equal(t, "/data/xrays", cfg.DataDir)
	assert.Equal(t, 3, cfg.Epochs)
	assert.Equal(t, 5.0, cfg.Augment.RotationRange)
	assert.False(t, cfg.Augment.HorizontalFlip)
	// Untouched values keep their defaults.
	assert.Equal(t, 32, cfg.BatchSize)
	assert.Equal(t, 0.1, cfg.Augment.ZoomRange)

	t.Run("round trip", func(t *testing.T) {
		savedPath := filepath.Join(dir, "saved.yaml")
		require.NoError(t, cfg.Save(savedPath))
		reloaded, err := Load(savedPath)
		require.NoError(t, err)
		assert.Equal(t, cfg, reloaded)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "missing.yaml"))
		require.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		badPath := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(badPath, []byte("plateau_factor: 2\n"), 0644))
		_, err := Load(badPath)
		require.ErrorContains(t, err, "plateau_factor")
	})
}

func TestValidate(t *testing.T) {
	for name, mutate := range map[string]func(c *Config){
		"small image":    func(c *Config) { c.ImageSize = 40 },
		"batch size":     func(c *Config) { c.BatchSize = 0 },
		"epochs":         func(c *Config) { c.Epochs = -1 },
		"learning rate":  func(c *Config) { c.LearningRate = 0 },
		"patience":       func(c *Config) { c.EarlyStopPatience = 0 },
		"augment zoom":   func(c *Config) { c.Augment.ZoomRange = 1 },
		"empty data dir": func(c *Config) { c.DataDir = "" },
	} {
		cfg := Default()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}

func TestContextRoundTrip(t *testing.T) {
	cfg := Default()
	ctx := cfg.CreateContext()
	assert.Equal(t, 0.001, context.GetParamOr(ctx, optimizers.ParamLearningRate, 0.0))

	_, err := commandline.ParseContextSettings(ctx, "num_epochs=4;batch_size=8;augment_flip=false;seed=7")
	require.NoError(t, err)
	updated := cfg.FromContext(ctx)
	assert.Equal(t, 4, updated.Epochs)
	assert.Equal(t, 8, updated.BatchSize)
	assert.Equal(t, int64(7), updated.Seed)
	assert.False(t, updated.Augment.HorizontalFlip)
	// Original is untouched.
	assert.Equal(t, 10, cfg.Epochs)
}

func TestPath(t *testing.T) {
	cfg := Default()
	cfg.OutputDir = "/runs/a"
	assert.Equal(t, "/runs/a/best_model", cfg.Path(cfg.BestModelDir))
	assert.Equal(t, "/abs/x.png", cfg.Path("/abs/x.png"))
	assert.Equal(t, filepath.Join("chest_xray", "val"), cfg.SplitDir("val"))
}
