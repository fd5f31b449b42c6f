// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package model

import (
	"fmt"

	"github.com/pkg/errors"
)

// LayerSummary describes the output shape and number of parameters of one layer.
type LayerSummary struct {
	Name string

	// OutputShape excludes the batch axis.
	OutputShape []int

	// Params is the number of trainable parameters; NonTrainable counts moving averages of batch normalization.
	Params, NonTrainable int
}

// Summarize computes, without building a graph, the output shape and parameter count of each layer of topology
// applied to images of imageSize x imageSize x channels.
func Summarize(topology []Layer, imageSize, channels int) ([]LayerSummary, error) {
	if err := Validate(topology); err != nil {
		return nil, err
	}
	shape := []int{imageSize, imageSize, channels}
	summaries := make([]LayerSummary, 0, len(topology))
	for ii, layer := range topology {
		s := LayerSummary{Name: fmt.Sprintf("%03d_%s", ii, layer.Kind)}
		switch layer.Kind {
		case KindConv2D:
			if len(shape) != 3 {
				return nil, errors.Errorf("layer %s needs a spatial input, got shape %v", s.Name, shape)
			}
			height, width := shape[0]-layer.Kernel+1, shape[1]-layer.Kernel+1
			if height <= 0 || width <= 0 {
				return nil, errors.Errorf("layer %s: input %v too small for kernel %d", s.Name, shape, layer.Kernel)
			}
			s.Params = layer.Kernel*layer.Kernel*shape[2]*layer.Units + layer.Units
			shape = []int{height, width, layer.Units}
		case KindBatchNorm:
			features := shape[len(shape)-1]
			s.Params = 2 * features
			s.NonTrainable = 2 * features
			shape = append([]int(nil), shape...)
		case KindMaxPool:
			if len(shape) != 3 {
				return nil, errors.Errorf("layer %s needs a spatial input, got shape %v", s.Name, shape)
			}
			height, width := shape[0]/layer.Pool, shape[1]/layer.Pool
			if height <= 0 || width <= 0 {
				return nil, errors.Errorf("layer %s: input %v too small for pooling %d", s.Name, shape, layer.Pool)
			}
			shape = []int{height, width, shape[2]}
		case KindFlatten:
			size := 1
			for _, dim := range shape {
				size *= dim
			}
			shape = []int{size}
		case KindDropout:
			shape = append([]int(nil), shape...)
		case KindDense:
			s.Params = shape[len(shape)-1]*layer.Units + layer.Units
			shape = append(append([]int(nil), shape[:len(shape)-1]...), layer.Units)
		}
		s.OutputShape = shape
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// TotalParams sums the trainable and non-trainable parameters of the summaries.
func TotalParams(summaries []LayerSummary) (trainable, nonTrainable int) {
	for _, s := range summaries {
		trainable += s.Params
		nonTrainable += s.NonTrainable
	}
	return
}
