// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package model builds the convolutional network that classifies chest X-rays, from a declarative list of
// layer configurations.
package model

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/layers/batchnorm"
	"github.com/gomlx/gomlx/pkg/ml/train"
)

// Scope under which the model variables are created.
const Scope = "model"

// BuildSequential applies the layers in order to x, creating each layer's variables in its own sub-scope of ctx
// (e.g.: "/model/003_conv2d").
//
// x is shaped `[batch_size, height, width, channels]`. It panics if the topology is invalid.
func BuildSequential(ctx *context.Context, x *Node, topology []Layer) *Node {
	mustValidate(topology)
	for ii, layer := range topology {
		layerCtx := ctx.Inf("%03d_%s", ii, layer.Kind)
		switch layer.Kind {
		case KindConv2D:
			x.AssertRank(4)
			x = layers.Convolution(layerCtx, x).
				Channels(layer.Units).
				KernelSize(layer.Kernel).
				NoPadding().
				Done()
			x = activations.Apply(layer.Activation, x)
		case KindBatchNorm:
			x = batchnorm.New(layerCtx, x, -1).UseBackendInference(false).Done()
		case KindMaxPool:
			x.AssertRank(4)
			x = MaxPool(x).Window(layer.Pool).NoPadding().Done()
		case KindFlatten:
			x = Reshape(x, x.Shape().Dimensions[0], -1)
		case KindDropout:
			x = layers.DropoutStatic(layerCtx, x, layer.Rate)
		case KindDense:
			x = layers.Dense(layerCtx, x, true, layer.Units)
			x = activations.Apply(layer.Activation, x)
		default:
			exceptions.Panicf("model.BuildSequential: unknown layer kind %s", layer.Kind)
		}
	}
	return x
}

// LogitsGraph returns the pre-sigmoid output of XRayTopology for a batch of images, shaped `[batch_size, 1]`.
func LogitsGraph(ctx *context.Context, images *Node) *Node {
	return BuildSequential(ctx, images, Logits(XRayTopology))
}

// SequentialModelFn returns a train.ModelFn for a binary classifier with the given topology, which must output
// one value per example. It takes the images batch (inputs[0]) and returns the logits.
func SequentialModelFn(topology []Layer) train.ModelFn {
	logitsTopology := Logits(topology)
	return func(ctx *context.Context, spec any, inputs []*Node) []*Node {
		_ = spec
		images := inputs[0]
		images.AssertRank(4)
		logits := BuildSequential(ctx, images, logitsTopology)
		logits.AssertDims(images.Shape().Dimensions[0], 1)
		return []*Node{logits}
	}
}

// ModelGraph implements train.ModelFn for the chest X-ray classifier (XRayTopology).
func ModelGraph(ctx *context.Context, spec any, inputs []*Node) []*Node {
	return SequentialModelFn(XRayTopology)(ctx, spec, inputs)
}

var _ train.ModelFn = ModelGraph

// SequentialProbability returns the sigmoid output of a binary classifier with the given topology, shaped
// `[batch_size, 1]`.
func SequentialProbability(ctx *context.Context, images *Node, topology []Layer) *Node {
	return Sigmoid(BuildSequential(ctx, images, Logits(topology)))
}

// Probability returns the sigmoid output of the classifier, the probability of PNEUMONIA, shaped
// `[batch_size, 1]`.
func Probability(ctx *context.Context, images *Node) *Node {
	return SequentialProbability(ctx, images, XRayTopology)
}
