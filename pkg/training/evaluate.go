// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package training

import (
	"io"

	"github.com/gomlx/chestxray/pkg/model"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
)

// Evaluator runs the classifier in inference mode (no dropout, batch normalization moving averages) over
// datasets.
type Evaluator struct {
	exec *context.Exec
}

// NewEvaluator creates an Evaluator for the model variables already present in modelCtx, the context scoped
// under model.Scope, of a classifier with the given topology (e.g. model.XRayTopology).
func NewEvaluator(backend backends.Backend, modelCtx *context.Context, topology []model.Layer) (*Evaluator, error) {
	exec, err := context.NewExec(backend, modelCtx.Reuse(), func(ctx *context.Context, images *Node) *Node {
		return Reshape(model.SequentialProbability(ctx, images, topology), -1)
	})
	if err != nil {
		return nil, errors.WithMessage(err, "creating evaluation graph")
	}
	return &Evaluator{exec: exec}, nil
}

// Predict resets ds and returns the probability of the positive class and the label of every example of one
// epoch, in the order they were yielded.
func (e *Evaluator) Predict(ds train.Dataset) (probs []float64, labels []int, err error) {
	ds.Reset()
	for {
		var inputs, labelsT []*tensors.Tensor
		_, inputs, labelsT, err = ds.Yield()
		if err == io.EOF {
			return probs, labels, nil
		}
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "reading dataset %q", ds.Name())
		}
		var batchProbs *tensors.Tensor
		batchProbs, err = e.exec.Exec1(inputs[0])
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "predicting batch of dataset %q", ds.Name())
		}
		var values, batchLabels []float64
		if values, err = flatFloat64(batchProbs); err == nil {
			batchLabels, err = flatFloat64(labelsT[0])
		}
		finalizeAll(batchProbs, inputs[0], labelsT[0])
		if err != nil {
			return nil, nil, err
		}
		if len(values) != len(batchLabels) {
			return nil, nil, errors.Errorf("dataset %q yielded %d labels for %d images",
				ds.Name(), len(batchLabels), len(values))
		}
		probs = append(probs, values...)
		for _, label := range batchLabels {
			labels = append(labels, int(label+0.5))
		}
	}
}

// Evaluate returns the metrics of the classifier over one epoch of ds.
func (e *Evaluator) Evaluate(ds train.Dataset) (EvalResult, error) {
	probs, labels, err := e.Predict(ds)
	if err != nil {
		return EvalResult{}, err
	}
	result, err := ComputeMetrics(probs, labels)
	return result, errors.WithMessagef(err, "evaluating dataset %q", ds.Name())
}

// flatFloat64 returns the values of a float tensor as float64.
func flatFloat64(t *tensors.Tensor) ([]float64, error) {
	switch t.DType() {
	case dtypes.Float32:
		values := tensors.MustCopyFlatData[float32](t)
		converted := make([]float64, len(values))
		for ii, v := range values {
			converted[ii] = float64(v)
		}
		return converted, nil
	case dtypes.Float64:
		return tensors.MustCopyFlatData[float64](t), nil
	}
	return nil, errors.Errorf("unsupported dtype %s for predictions", t.DType())
}

func finalizeAll(ts ...*tensors.Tensor) {
	for _, t := range ts {
		_ = t.FinalizeAll()
	}
}
