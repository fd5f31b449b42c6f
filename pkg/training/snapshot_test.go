// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package training

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsModelVariable(t *testing.T) {
	assert.True(t, isModelVariable("/model", "/model"))
	assert.True(t, isModelVariable("/model", "/model/000_conv2d"))
	assert.False(t, isModelVariable("/model", "/model/optimizers"))
	assert.False(t, isModelVariable("/model", "/model/optimizers/x"))
	assert.False(t, isModelVariable("/model", "/models"))
	assert.False(t, isModelVariable("/model", "/AdamOptimizer/model/000_conv2d"))
}

func TestSnapshot(t *testing.T) {
	ctx := context.New()
	weights := ctx.In("model").In("dense").VariableWithValue("weights", []float32{1, 2, 3})
	lr := ctx.In("model").In("optimizers").VariableWithValue("learning_rate", float32(0.1))
	other := ctx.In("global").VariableWithValue("step", int64(7))

	_, err := TakeSnapshot(ctx, "/empty")
	require.Error(t, err)

	snap, err := TakeSnapshot(ctx, "/model")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())

	require.NoError(t, weights.SetValue(tensors.FromValue([]float32{0, 0, 0})))
	require.NoError(t, lr.SetValue(tensors.FromScalar(float32(0.05))))
	require.NoError(t, other.SetValue(tensors.FromScalar(int64(8))))

	// Restoring twice gives the same values.
	for range 2 {
		require.NoError(t, snap.Restore(ctx))
		assert.Equal(t, []float32{1, 2, 3}, tensors.MustCopyFlatData[float32](weights.MustValue()))
		assert.Equal(t, float32(0.05), tensors.ToScalar[float32](lr.MustValue()))
		assert.Equal(t, int64(8), tensors.ToScalar[int64](other.MustValue()))
	}
}
