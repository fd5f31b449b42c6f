// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package config

import (
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
)

// Context hyperparameter keys mirroring Config fields.
const (
	ParamImageSize         = "image_size"
	ParamBatchSize         = "batch_size"
	ParamEvalBatchSize     = "eval_batch_size"
	ParamNumEpochs         = "num_epochs"
	ParamSeed              = "seed"
	ParamEarlyStopPatience = "early_stop_patience"
	ParamPlateauPatience   = "plateau_patience"
	ParamPlateauFactor     = "plateau_factor"
	ParamMinLearningRate   = "min_learning_rate"
	ParamParallelLoading   = "parallel_loading"

	ParamAugmentRotation    = "augment_rotation"
	ParamAugmentWidthShift  = "augment_width_shift"
	ParamAugmentHeightShift = "augment_height_shift"
	ParamAugmentShear       = "augment_shear"
	ParamAugmentZoom        = "augment_zoom"
	ParamAugmentFlip        = "augment_flip"
)

// ContextParams returns the hyperparameters of the configuration, keyed by the Param* constants.
//
// The learning rate uses optimizers.ParamLearningRate, so the optimizer picks it up directly.
func (c *Config) ContextParams() map[string]any {
	return map[string]any{
		ParamImageSize:               c.ImageSize,
		ParamBatchSize:               c.BatchSize,
		ParamEvalBatchSize:           c.EvalBatchSize,
		ParamNumEpochs:               c.Epochs,
		ParamSeed:                    int(c.Seed),
		optimizers.ParamLearningRate: c.LearningRate,
		ParamEarlyStopPatience:       c.EarlyStopPatience,
		ParamPlateauPatience:         c.PlateauPatience,
		ParamPlateauFactor:           c.PlateauFactor,
		ParamMinLearningRate:         c.MinLearningRate,
		ParamParallelLoading:         c.ParallelLoading,
		ParamAugmentRotation:         c.Augment.RotationRange,
		ParamAugmentWidthShift:       c.Augment.WidthShiftRange,
		ParamAugmentHeightShift:      c.Augment.HeightShiftRange,
		ParamAugmentShear:            c.Augment.ShearRange,
		ParamAugmentZoom:             c.Augment.ZoomRange,
		ParamAugmentFlip:             c.Augment.HorizontalFlip,
	}
}

// ApplyToContext sets the hyperparameters of the configuration in ctx.
func (c *Config) ApplyToContext(ctx *context.Context) {
	ctx.SetParams(c.ContextParams())
}

// CreateContext returns a new context with the hyperparameters of the configuration.
func (c *Config) CreateContext() *context.Context {
	ctx := context.New()
	c.ApplyToContext(ctx)
	return ctx
}

// FromContext returns a copy of the configuration with the values of the hyperparameters in ctx, which may
// have been changed with commandline.ParseContextSettings.
func (c *Config) FromContext(ctx *context.Context) *Config {
	updated := *c
	updated.ImageSize = context.GetParamOr(ctx, ParamImageSize, c.ImageSize)
	updated.BatchSize = context.GetParamOr(ctx, ParamBatchSize, c.BatchSize)
	updated.EvalBatchSize = context.GetParamOr(ctx, ParamEvalBatchSize, c.EvalBatchSize)
	updated.Epochs = context.GetParamOr(ctx, ParamNumEpochs, c.Epochs)
	updated.Seed = int64(context.GetParamOr(ctx, ParamSeed, int(c.Seed)))
	updated.LearningRate = context.GetParamOr(ctx, optimizers.ParamLearningRate, c.LearningRate)
	updated.EarlyStopPatience = context.GetParamOr(ctx, ParamEarlyStopPatience, c.EarlyStopPatience)
	updated.PlateauPatience = context.GetParamOr(ctx, ParamPlateauPatience, c.PlateauPatience)
	updated.PlateauFactor = context.GetParamOr(ctx, ParamPlateauFactor, c.PlateauFactor)
	updated.MinLearningRate = context.GetParamOr(ctx, ParamMinLearningRate, c.MinLearningRate)
	updated.ParallelLoading = context.GetParamOr(ctx, ParamParallelLoading, c.ParallelLoading)
	updated.Augment.RotationRange = context.GetParamOr(ctx, ParamAugmentRotation, c.Augment.RotationRange)
	updated.Augment.WidthShiftRange = context.GetParamOr(ctx, ParamAugmentWidthShift, c.Augment.WidthShiftRange)
	updated.Augment.HeightShiftRange = context.GetParamOr(ctx, ParamAugmentHeightShift, c.Augment.HeightShiftRange)
	updated.Augment.ShearRange = context.GetParamOr(ctx, ParamAugmentShear, c.Augment.ShearRange)
	updated.Augment.ZoomRange = context.GetParamOr(ctx, ParamAugmentZoom, c.Augment.ZoomRange)
	updated.Augment.HorizontalFlip = context.GetParamOr(ctx, ParamAugmentFlip, c.Augment.HorizontalFlip)
	return &updated
}
