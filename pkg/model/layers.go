// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package model

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/pkg/errors"
)

// Kind of layer in a sequential model.
type Kind int

const (
	KindConv2D Kind = iota
	KindBatchNorm
	KindMaxPool
	KindFlatten
	KindDropout
	KindDense
)

var kindNames = [...]string{"conv2d", "batch_norm", "max_pool", "flatten", "dropout", "dense"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Layer configures one step of a sequential model. Only the fields relevant to its Kind are used.
type Layer struct {
	Kind Kind

	// Units is the number of output channels of a KindConv2D, or of output features of a KindDense.
	Units int

	// Kernel is the square kernel size of a KindConv2D. Convolutions are not padded.
	Kernel int

	// Pool is the square window (and stride) of a KindMaxPool.
	Pool int

	// Rate is the dropout rate of a KindDropout.
	Rate float64

	// Activation applied after a KindConv2D or a KindDense.
	Activation activations.Type
}

// Conv2D returns a convolution layer configuration.
func Conv2D(channels, kernel int, activation activations.Type) Layer {
	return Layer{Kind: KindConv2D, Units: channels, Kernel: kernel, Activation: activation}
}

// BatchNorm returns a batch normalization layer configuration, normalizing over the channels axis.
func BatchNorm() Layer { return Layer{Kind: KindBatchNorm} }

// MaxPooling returns a max-pooling layer configuration.
func MaxPooling(window int) Layer { return Layer{Kind: KindMaxPool, Pool: window} }

// Flatten returns a layer configuration that flattens all but the batch axis.
func Flatten() Layer { return Layer{Kind: KindFlatten} }

// Dropout returns a dropout layer configuration. Dropout is only active during training.
func Dropout(rate float64) Layer { return Layer{Kind: KindDropout, Rate: rate} }

// Dense returns a fully connected layer configuration.
func Dense(units int, activation activations.Type) Layer {
	return Layer{Kind: KindDense, Units: units, Activation: activation}
}

// ConvBlock returns the convolution, batch normalization and max-pooling layers used to build the feature
// extractor.
func ConvBlock(channels int) []Layer {
	return []Layer{Conv2D(channels, 3, activations.TypeRelu), BatchNorm(), MaxPooling(2)}
}

// XRayTopology is the chest X-ray classifier: four convolution blocks with 32, 64, 128 and 128 channels, followed
// by a dense head with dropout and a single sigmoid output.
var XRayTopology = func() []Layer {
	var topology []Layer
	for _, channels := range []int{32, 64, 128, 128} {
		topology = append(topology, ConvBlock(channels)...)
	}
	return append(topology,
		Flatten(),
		Dropout(0.5),
		Dense(512, activations.TypeRelu),
		Dropout(0.3),
		Dense(1, activations.TypeSigmoid),
	)
}()

// Validate checks that each layer has the fields its kind requires.
func Validate(topology []Layer) error {
	if len(topology) == 0 {
		return errors.New("empty topology")
	}
	for ii, layer := range topology {
		var err error
		switch layer.Kind {
		case KindConv2D:
			if layer.Units <= 0 || layer.Kernel <= 0 {
				err = errors.New("needs Units > 0 and Kernel > 0")
			}
		case KindMaxPool:
			if layer.Pool <= 0 {
				err = errors.New("needs Pool > 0")
			}
		case KindDropout:
			if layer.Rate < 0 || layer.Rate >= 1 {
				err = errors.New("needs Rate in [0, 1)")
			}
		case KindDense:
			if layer.Units <= 0 {
				err = errors.New("needs Units > 0")
			}
		case KindBatchNorm, KindFlatten:
		default:
			err = errors.New("unknown kind")
		}
		if err != nil {
			return errors.WithMessagef(err, "layer #%d (%s)", ii, layer.Kind)
		}
	}
	return nil
}

// Logits returns a copy of topology with the final sigmoid activation removed, if there is one.
// Training feeds these logits to losses.BinaryCrossentropyLogits.
func Logits(topology []Layer) []Layer {
	out := make([]Layer, len(topology))
	copy(out, topology)
	last := &out[len(out)-1]
	if last.Activation == activations.TypeSigmoid {
		last.Activation = activations.TypeNone
	}
	return out
}

// mustValidate panics if topology is invalid.
func mustValidate(topology []Layer) {
	if err := Validate(topology); err != nil {
		exceptions.Panicf("invalid model topology: %v", err)
	}
}
