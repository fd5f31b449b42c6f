// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/chestxray/pkg/config"
	"github.com/gomlx/chestxray/pkg/dataset"
	"github.com/gomlx/chestxray/pkg/model"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/onnx-gomlx/onnx/parser"
	"github.com/pkg/errors"
)

// Model predicts the probability of pneumonia of chest X-ray images.
type Model interface {
	// Predict returns the probability of pneumonia for img, in [0, 1].
	Predict(img image.Image) (float64, error)

	// ImageSize is the size images are resized to before being fed to the model.
	ImageSize() int

	// Close frees the resources of the model.
	Close() error
}

// ErrModelNotFound is returned (wrapped) by Load when the model path doesn't exist.
var ErrModelNotFound = errors.New("model not found")

// IsModelNotFound returns whether err was caused by a missing model.
func IsModelNotFound(err error) bool {
	return errors.Is(err, ErrModelNotFound)
}

// Load the model at modelPath: a checkpoint directory saved by training, or an ONNX file ("*.onnx").
func Load(backend backends.Backend, modelPath string) (Model, error) {
	info, err := os.Stat(modelPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(ErrModelNotFound, "%s", modelPath)
		}
		return nil, errors.Wrapf(err, "checking model %q", modelPath)
	}
	if info.IsDir() {
		return LoadCheckpoint(backend, modelPath)
	}
	if strings.ToLower(filepath.Ext(modelPath)) == ".onnx" {
		return LoadONNX(backend, modelPath)
	}
	return nil, errors.Errorf("model %q is neither a checkpoint directory nor an .onnx file", modelPath)
}

// execModel runs an inference graph that takes a batch of images and returns the probabilities.
type execModel struct {
	exec      *context.Exec
	imageSize int
	onClose   func() error
}

func (m *execModel) ImageSize() int { return m.imageSize }

func (m *execModel) Predict(img image.Image) (float64, error) {
	input, err := dataset.ToTensor(dtypes.Float32, dataset.Preprocess(img, m.imageSize))
	if err != nil {
		return 0, err
	}
	defer func() { _ = input.FinalizeAll() }()
	output, err := m.exec.Exec1(input)
	if err != nil {
		return 0, errors.WithMessage(err, "running model")
	}
	defer func() { _ = output.FinalizeAll() }()
	if output.Size() != 1 {
		return 0, errors.Errorf("model returned %s, expected a single score", output.Shape())
	}
	return float64(tensors.MustCopyFlatData[float32](output)[0]), nil
}

func (m *execModel) Close() error {
	if m.onClose != nil {
		return m.onClose()
	}
	return nil
}

// LoadCheckpoint loads the model saved by training in checkpointDir.
func LoadCheckpoint(backend backends.Backend, checkpointDir string) (Model, error) {
	ctx := context.New()
	if _, err := checkpoints.Load(ctx).Dir(checkpointDir).Done(); err != nil {
		return nil, errors.WithMessagef(err, "loading model checkpoint %q", checkpointDir)
	}
	imageSize := context.GetParamOr(ctx, config.ParamImageSize, dataset.DefaultImageSize)
	ctx = ctx.Reuse()
	exec, err := context.NewExec(backend, ctx.In(model.Scope), func(ctx *context.Context, images *Node) *Node {
		return model.Probability(ctx, images)
	})
	if err != nil {
		return nil, errors.WithMessage(err, "creating inference graph")
	}
	return &execModel{exec: exec, imageSize: imageSize}, nil
}

// LoadONNX loads a model exported to ONNX. It must take one input shaped `[batch, 150, 150, 3]` with values in
// [0, 1], and output the probability of pneumonia shaped `[batch, 1]`.
func LoadONNX(backend backends.Backend, onnxPath string) (Model, error) {
	onnxModel, err := parser.ParseFile(onnxPath)
	if err != nil {
		return nil, errors.WithMessagef(err, "reading ONNX model %q", onnxPath)
	}
	inputNames, _ := onnxModel.Inputs()
	outputNames, _ := onnxModel.Outputs()
	if len(inputNames) != 1 || len(outputNames) == 0 {
		_ = onnxModel.Close()
		return nil, errors.Errorf("ONNX model %q has inputs %v and outputs %v, expected a single images input",
			onnxPath, inputNames, outputNames)
	}
	ctx := context.New()
	if err = onnxModel.VariablesToContext(ctx); err != nil {
		_ = onnxModel.Close()
		return nil, errors.WithMessagef(err, "loading variables of ONNX model %q", onnxPath)
	}
	exec, err := context.NewExec(backend, ctx, func(ctx *context.Context, images *Node) *Node {
		outputs := onnxModel.CallGraph(ctx, images.Graph(), map[string]*Node{inputNames[0]: images})
		return ConvertDType(outputs[0], dtypes.Float32)
	})
	if err != nil {
		_ = onnxModel.Close()
		return nil, errors.WithMessage(err, "creating ONNX inference graph")
	}
	closeFn := func() error {
		return errors.Wrapf(onnxModel.Close(), "closing ONNX model %q", onnxPath)
	}
	return &execModel{exec: exec, imageSize: dataset.DefaultImageSize, onClose: closeFn}, nil
}
