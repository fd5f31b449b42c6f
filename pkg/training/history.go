// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package training

// EpochRecord holds the metrics of one training epoch.
type EpochRecord struct {
	Epoch         int     `dataframe:"epoch" yaml:"epoch"`
	TrainLoss     float64 `dataframe:"loss" yaml:"loss"`
	TrainAccuracy float64 `dataframe:"accuracy" yaml:"accuracy"`
	ValLoss       float64 `dataframe:"val_loss" yaml:"val_loss"`
	ValAccuracy   float64 `dataframe:"val_accuracy" yaml:"val_accuracy"`
	ValAUC        float64 `dataframe:"val_auc" yaml:"val_auc"`

	// LearningRate used during the epoch.
	LearningRate float64 `dataframe:"learning_rate" yaml:"learning_rate"`

	// Checkpointed is set if the epoch improved the validation accuracy and the best model was saved.
	Checkpointed bool `dataframe:"checkpointed" yaml:"checkpointed"`
}

// History of a training run.
type History struct {
	Epochs []EpochRecord `yaml:"epochs"`

	// StoppedEarly is set if training stopped before the configured number of epochs. The weights of
	// RestoredEpoch (0-based) were then restored, or RestoredEpoch is -1 if no epoch had a valid validation loss.
	StoppedEarly  bool `yaml:"stopped_early"`
	RestoredEpoch int  `yaml:"restored_epoch"`

	// BestValAccuracy is the validation accuracy of the saved best model.
	BestValAccuracy float64 `yaml:"best_val_accuracy"`
}

// Restored returns whether training stopped early and restored the weights of an earlier epoch.
func (h *History) Restored() bool { return h.StoppedEarly && h.RestoredEpoch >= 0 }

// Len returns the number of epochs trained.
func (h *History) Len() int { return len(h.Epochs) }

// Series returns one value per epoch extracted with fn, e.g. the validation loss.
func (h *History) Series(fn func(r EpochRecord) float64) []float64 {
	values := make([]float64, len(h.Epochs))
	for ii, r := range h.Epochs {
		values[ii] = fn(r)
	}
	return values
}
