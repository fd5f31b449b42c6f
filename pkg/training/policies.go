// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package training

import "math"

// EarlyStopping stops training when the monitored value (lower is better) does not improve for Patience epochs.
type EarlyStopping struct {
	Patience int

	best      float64
	bestEpoch int
	wait      int
}

// NewEarlyStopping returns an EarlyStopping with no best value yet.
func NewEarlyStopping(patience int) *EarlyStopping {
	return &EarlyStopping{Patience: patience, best: math.Inf(1), bestEpoch: -1}
}

// Update records the value of the monitored quantity at the end of epoch (0-based).
// It returns whether value is a new best, and whether training should stop.
func (es *EarlyStopping) Update(epoch int, value float64) (improved, stop bool) {
	es.wait++
	if value < es.best {
		es.best = value
		es.bestEpoch = epoch
		es.wait = 0
		return true, false
	}
	return false, es.wait >= es.Patience && epoch > 0
}

// Best returns the best value seen and the epoch it was seen at, -1 if none yet.
func (es *EarlyStopping) Best() (value float64, epoch int) { return es.best, es.bestEpoch }

// PlateauMinDelta is the minimum decrease of the monitored value that counts as an improvement for PlateauDecay.
const PlateauMinDelta = 1e-4

// PlateauDecay multiplies the learning rate by Factor, not going below MinLearningRate, when the monitored value
// (lower is better) does not improve for Patience epochs.
type PlateauDecay struct {
	Patience        int
	Factor          float64
	MinLearningRate float64

	best float64
	wait int
}

// NewPlateauDecay returns a PlateauDecay with no best value yet.
func NewPlateauDecay(patience int, factor, minLearningRate float64) *PlateauDecay {
	return &PlateauDecay{Patience: patience, Factor: factor, MinLearningRate: minLearningRate, best: math.Inf(1)}
}

// Update records the monitored value at the end of an epoch trained with learningRate.
// It returns the learning rate to use next, and whether it was reduced.
func (pd *PlateauDecay) Update(value, learningRate float64) (newLearningRate float64, reduced bool) {
	if value < pd.best-PlateauMinDelta {
		pd.best = value
		pd.wait = 0
		return learningRate, false
	}
	pd.wait++
	if pd.wait < pd.Patience || learningRate <= pd.MinLearningRate {
		return learningRate, false
	}
	pd.wait = 0
	return math.Max(learningRate*pd.Factor, pd.MinLearningRate), true
}

// BestMetric tracks the maximum of a monitored value (higher is better), e.g. validation accuracy.
type BestMetric struct {
	best float64
}

// NewBestMetric returns a BestMetric with no best value yet.
func NewBestMetric() *BestMetric {
	return &BestMetric{best: math.Inf(-1)}
}

// Update returns whether value is strictly better than all previous values.
func (bm *BestMetric) Update(value float64) bool {
	if value > bm.best {
		bm.best = value
		return true
	}
	return false
}

// Best returns the best value seen, -Inf if none yet.
func (bm *BestMetric) Best() float64 { return bm.best }
