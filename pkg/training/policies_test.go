// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package training

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEarlyStopping(t *testing.T) {
	es := NewEarlyStopping(3)
	_, bestEpoch := es.Best()
	assert.Equal(t, -1, bestEpoch)

	losses := []float64{0.9, 0.7, 0.8, 0.75, 0.71, 0.6}
	var stopAt = -1
	for epoch, loss := range losses {
		improved, stop := es.Update(epoch, loss)
		switch epoch {
		case 0, 1:
			assert.True(t, improved, "epoch %d", epoch)
		default:
			assert.False(t, improved, "epoch %d", epoch)
		}
		if stop {
			stopAt = epoch
			break
		}
	}
	// Three epochs (2, 3, 4) without improving on 0.7.
	assert.Equal(t, 4, stopAt)
	best, bestEpoch := es.Best()
	assert.Equal(t, 0.7, best)
	assert.Equal(t, 1, bestEpoch)
}

func TestEarlyStoppingEqualIsNotImprovement(t *testing.T) {
	es := NewEarlyStopping(1)
	improved, stop := es.Update(0, 0.5)
	assert.True(t, improved)
	assert.False(t, stop)
	improved, stop = es.Update(1, 0.5)
	assert.False(t, improved)
	assert.True(t, stop)
}

func TestPlateauDecay(t *testing.T) {
	pd := NewPlateauDecay(2, 0.5, 1e-7)
	lr := 1e-3
	var reduced bool

	lr, reduced = pd.Update(1.0, lr)
	assert.False(t, reduced)
	// Improvement smaller than PlateauMinDelta does not count.
	lr, reduced = pd.Update(1.0-PlateauMinDelta/2, lr)
	assert.False(t, reduced)
	lr, reduced = pd.Update(1.0, lr)
	assert.True(t, reduced)
	assert.InDelta(t, 5e-4, lr, 1e-12)

	// The wait counter restarts after a reduction.
	lr, reduced = pd.Update(1.0, lr)
	assert.False(t, reduced)
	lr, reduced = pd.Update(1.0, lr)
	assert.True(t, reduced)
	assert.InDelta(t, 2.5e-4, lr, 1e-12)

	// A real improvement resets it too.
	lr, reduced = pd.Update(0.5, lr)
	assert.False(t, reduced)
	lr, reduced = pd.Update(0.6, lr)
	assert.False(t, reduced)
	assert.InDelta(t, 2.5e-4, lr, 1e-12)
}

func TestPlateauDecayFloor(t *testing.T) {
	pd := NewPlateauDecay(1, 0.1, 1e-4)
	lr, _ := pd.Update(1, 3e-4)
	lr, reduced := pd.Update(1, lr)
	assert.True(t, reduced)
	assert.Equal(t, 1e-4, lr)

	// Already at the floor: no more reductions.
	lr, reduced = pd.Update(1, lr)
	assert.False(t, reduced)
	assert.Equal(t, 1e-4, lr)
}

func TestBestMetric(t *testing.T) {
	bm := NewBestMetric()
	assert.True(t, math.IsInf(bm.Best(), -1))
	assert.True(t, bm.Update(0.5))
	assert.False(t, bm.Update(0.5))
	assert.False(t, bm.Update(0.4))
	assert.True(t, bm.Update(0.75))
	assert.Equal(t, 0.75, bm.Best())
}
