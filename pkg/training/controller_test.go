// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package training

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/gomlx/chestxray/pkg/config"
	"github.com/gomlx/chestxray/pkg/dataset"
	"github.com/gomlx/chestxray/pkg/model"
	"github.com/gomlx/compute"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/backends/simplego"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

const testImageSize = 46

// writeSplit creates dir/{NORMAL,PNEUMONIA} with numPerClass noisy images each: NORMAL images are dark,
// PNEUMONIA ones bright.
func writeSplit(t *testing.T, dir string, numPerClass int, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for classIdx, class := range []string{"NORMAL", "PNEUMONIA"} {
		classDir := filepath.Join(dir, class)
		require.NoError(t, os.MkdirAll(classDir, 0755))
		for ii := range numPerClass {
			img := image.NewGray(image.Rect(0, 0, testImageSize, testImageSize))
			for y := range testImageSize {
				for x := range testImageSize {
					img.SetGray(x, y, color.Gray{Y: uint8(40 + 150*classIdx + rng.Intn(60))})
				}
			}
			require.NoError(t, imaging.Save(img, filepath.Join(classDir, fmt.Sprintf("img_%02d.png", ii))))
		}
	}
}

func newTestConfig(t *testing.T) *config.Config {
	root := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(root, "data")
	cfg.OutputDir = filepath.Join(root, "out")
	cfg.ImageSize = testImageSize
	cfg.BatchSize = 4
	cfg.EvalBatchSize = 4
	cfg.Epochs = 2
	writeSplit(t, cfg.SplitDir(dataset.TrainSplit), 4, 1)
	writeSplit(t, cfg.SplitDir(dataset.ValidationSplit), 2, 2)
	return cfg
}

func loadTestDatasets(t *testing.T, cfg *config.Config) (trainDS, valDS *dataset.Dataset) {
	var err error
	trainDS, err = dataset.Load("train", cfg.SplitDir(dataset.TrainSplit), dataset.Options{
		BatchSize: cfg.BatchSize, ImageSize: cfg.ImageSize, Shuffle: true, Augment: &cfg.Augment, Seed: cfg.Seed})
	require.NoError(t, err)
	valDS, err = dataset.Load("val", cfg.SplitDir(dataset.ValidationSplit), dataset.Options{
		BatchSize: cfg.EvalBatchSize, ImageSize: cfg.ImageSize})
	require.NoError(t, err)
	return
}

// newConvBackend returns the default backend, skipping the test if it can't compute the gradient of
// max-pooling, needed to train model.XRayTopology.
func newConvBackend(t *testing.T) backends.Backend {
	backend, err := backends.New()
	require.NoError(t, err)
	if !backend.Capabilities().Operations[compute.OpTypeSelectAndScatterMax] {
		t.Skipf("backend %q doesn't implement the max-pooling gradient (%s)",
			backend.Name(), compute.OpTypeSelectAndScatterMax)
	}
	return backend
}

// linearTopology is a logistic regression over the pixels: it trains on any backend.
var linearTopology = []model.Layer{model.Flatten(), model.Dense(1, activations.TypeSigmoid)}

func TestController(t *testing.T) {
	backend := newConvBackend(t)
	cfg := newTestConfig(t)
	trainDS, valDS := loadTestDatasets(t, cfg)

	ctx := cfg.CreateContext()
	c, err := NewController(backend, ctx, cfg)
	require.NoError(t, err)
	c.WithOutput(io.Discard)

	history, err := c.Fit(trainDS, valDS)
	require.NoError(t, err)
	require.Equal(t, 2, history.Len())
	assert.False(t, history.StoppedEarly)
	assert.Equal(t, -1, history.RestoredEpoch)
	for ii, r := range history.Epochs {
		assert.Equal(t, ii+1, r.Epoch)
		assert.Greater(t, r.TrainLoss, 0.0)
		assert.GreaterOrEqual(t, r.ValAccuracy, 0.0)
		assert.LessOrEqual(t, r.ValAccuracy, 1.0)
		assert.InDelta(t, cfg.LearningRate, r.LearningRate, 1e-9)
	}
	// The first epoch always improves on "no model".
	assert.True(t, history.Epochs[0].Checkpointed)
	assert.GreaterOrEqual(t, history.BestValAccuracy, history.Epochs[0].ValAccuracy)

	// Learning rate can be changed in between epochs.
	require.NoError(t, c.SetLearningRate(1e-4))
	lr, err := c.LearningRate()
	require.NoError(t, err)
	assert.InDelta(t, 1e-4, lr, 1e-9)

	// Predictions follow the dataset order.
	probs, labels, err := c.Predict(valDS)
	require.NoError(t, err)
	assert.Equal(t, valDS.Labels(), labels)
	require.Len(t, probs, valDS.Len())

	var out bytes.Buffer
	c.WithOutput(&out)
	result, testProbs, err := c.Test(valDS)
	require.NoError(t, err)
	assert.Equal(t, probs, testProbs)
	assert.Equal(t, valDS.Len(), result.Count)
	assert.Contains(t, out.String(), fmt.Sprintf("Test Accuracy: %.4f\n", result.Accuracy))
	assert.Contains(t, out.String(), fmt.Sprintf("Test AUC: %.4f\n", result.AUC))

	// Best and final models can be loaded back.
	require.NoError(t, c.SaveFinal())
	for _, dir := range []string{cfg.BestModelDir, cfg.FinalModelDir} {
		loadedCtx := context.New()
		_, err := checkpoints.Load(loadedCtx).Dir(cfg.Path(dir)).Done()
		require.NoError(t, err, "loading %s", dir)
	}

	// A new run starts from scratch: the best model directory is cleaned up.
	stale := filepath.Join(cfg.Path(cfg.BestModelDir), "stale-file")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0644))
	_, err = NewBestCheckpoint(context.New(), cfg.Path(cfg.BestModelDir))
	require.NoError(t, err)
	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

// fitWithValidationLosses trains linearTopology with the validation loss of each epoch replaced by valLosses.
// It returns the controller, and a snapshot of the model weights at the end of each epoch trained.
func fitWithValidationLosses(t *testing.T, cfg *config.Config, valLosses []float64) (
	c *Controller, history *History, snapshots []*Snapshot, out string) {
	backend, err := backends.NewWithConfig(simplego.BackendName)
	require.NoError(t, err)
	trainDS, valDS := loadTestDatasets(t, cfg)
	ctx := cfg.CreateContext()
	c, err = NewControllerWithTopology(backend, ctx, cfg, linearTopology)
	require.NoError(t, err)
	var buf bytes.Buffer
	c.WithOutput(&buf)
	c.validate = func(ds train.Dataset) (EvalResult, error) {
		epoch := len(snapshots)
		require.Less(t, epoch, len(valLosses), "training didn't stop")
		snap, err := TakeSnapshot(ctx, c.modelCtx.Scope())
		if err != nil {
			return EvalResult{}, err
		}
		snapshots = append(snapshots, snap)
		result, err := c.Evaluate(ds)
		result.Loss = valLosses[epoch]
		return result, err
	}
	history, err = c.Fit(trainDS, valDS)
	require.NoError(t, err)
	return c, history, snapshots, buf.String()
}

func TestFitEarlyStoppingAndPlateau(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Epochs = 10
	cfg.EarlyStopPatience = 2
	cfg.PlateauPatience = 1
	cfg.PlateauFactor = 0.5
	// Validation loss only improves in the first epoch.
	c, history, snapshots, out := fitWithValidationLosses(t, cfg, []float64{0.5, 0.6, 0.7, 0.8, 0.9})

	require.Equal(t, 3, history.Len())
	assert.True(t, history.StoppedEarly)
	assert.Equal(t, 0, history.RestoredEpoch)
	assert.True(t, history.Restored())
	assert.Contains(t, out, "Early stopping at epoch 3: restored weights of epoch 1.\n")

	// The learning rate is halved after each epoch without improvement, and the next epoch records it.
	assert.InDelta(t, cfg.LearningRate, history.Epochs[0].LearningRate, 1e-9)
	assert.InDelta(t, cfg.LearningRate, history.Epochs[1].LearningRate, 1e-9)
	assert.InDelta(t, cfg.LearningRate/2, history.Epochs[2].LearningRate, 1e-9)
	lr, err := c.LearningRate()
	require.NoError(t, err)
	assert.InDelta(t, cfg.LearningRate/4, lr, 1e-9)

	// Weights are back to those at the end of the first epoch.
	require.Len(t, snapshots, 3)
	restored, err := TakeSnapshot(c.Context(), c.modelCtx.Scope())
	require.NoError(t, err)
	require.Equal(t, snapshots[0].Len(), restored.Len())
	var changed bool
	for name, want := range snapshots[0].values {
		got, found := restored.values[name]
		require.True(t, found, "variable %q", name)
		assert.Equal(t, want.Value(), got.Value(), "variable %q", name)
		if !assert.ObjectsAreEqual(want.Value(), snapshots[2].values[name].Value()) {
			changed = true
		}
	}
	assert.True(t, changed, "training after the first epoch should have changed the weights")
}

func TestFitStopsWithoutValidLoss(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Epochs = 10
	cfg.EarlyStopPatience = 1
	nan := math.NaN()
	c, history, snapshots, out := fitWithValidationLosses(t, cfg, []float64{nan, nan, nan})

	require.Equal(t, 2, history.Len())
	assert.True(t, history.StoppedEarly)
	assert.Equal(t, -1, history.RestoredEpoch)
	assert.False(t, history.Restored())
	assert.Contains(t, out, "Early stopping at epoch 2: no epoch improved the validation loss.\n")

	// The weights of the last epoch are kept.
	require.Len(t, snapshots, 2)
	current, err := TakeSnapshot(c.Context(), c.modelCtx.Scope())
	require.NoError(t, err)
	for name, want := range snapshots[1].values {
		assert.Equal(t, want.Value(), current.values[name].Value(), "variable %q", name)
	}
}

func TestControllerInvalidConfig(t *testing.T) {
	backend, err := backends.NewWithConfig(simplego.BackendName)
	require.NoError(t, err)
	cfg := config.Default()
	cfg.BatchSize = 0
	_, err = NewController(backend, cfg.CreateContext(), cfg)
	require.Error(t, err)

	cfg = config.Default()
	invalid := []model.Layer{model.Dense(0, activations.TypeNone)}
	_, err = NewControllerWithTopology(backend, cfg.CreateContext(), cfg, invalid)
	require.Error(t, err)
}

func TestRunInfo(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	history := &History{Epochs: []EpochRecord{{Epoch: 1, TrainLoss: 0.5, ValAccuracy: 0.75}}, RestoredEpoch: -1}
	info := NewRunInfo(cfg, history, EvalResult{Loss: 0.4, Accuracy: 0.8, AUC: 0.9, Count: 10})
	require.NotEmpty(t, info.ID)
	require.NoError(t, info.Save(dir))

	loaded, err := LoadRunInfo(dir)
	require.NoError(t, err)
	assert.Equal(t, info.ID, loaded.ID)
	assert.Equal(t, cfg, loaded.Config)
	assert.Equal(t, history.Epochs, loaded.History.Epochs)
	assert.Equal(t, 0.9, loaded.Test.AUC)

	other := NewRunInfo(cfg, history, EvalResult{})
	assert.NotEqual(t, info.ID, other.ID)
}
