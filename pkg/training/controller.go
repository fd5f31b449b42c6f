// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package training fits the chest X-ray classifier, one epoch at a time, applying early stopping, learning
// rate decay on plateaus and best-model checkpointing based on the validation metrics.
package training

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/gomlx/chestxray/pkg/config"
	"github.com/gomlx/chestxray/pkg/model"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/ml/train/metrics"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"
)

// Controller trains the classifier defined in package model.
type Controller struct {
	cfg      *config.Config
	backend  backends.Backend
	topology []model.Layer

	// ctx is the root context, saved by checkpoints; modelCtx is scoped under model.Scope.
	ctx, modelCtx *context.Context

	trainer     *train.Trainer
	loop        *train.Loop
	accuracy    *metrics.MeanMetric
	stepLosses  []float64
	evaluator   *Evaluator
	out         io.Writer
	stopEarly   *EarlyStopping
	plateau     *PlateauDecay
	best        *BestCheckpoint
	bestWeights *Snapshot

	// validate evaluates the validation dataset at the end of each epoch, defaults to Evaluate.
	validate func(ds train.Dataset) (EvalResult, error)
}

// NewController creates the trainer for the classifier. Its variables are created in ctx under model.Scope,
// and ctx's hyperparameters (see config.Config.ApplyToContext) are used.
//
// The random number generator of ctx is seeded with cfg.Seed.
func NewController(backend backends.Backend, ctx *context.Context, cfg *config.Config) (*Controller, error) {
	return NewControllerWithTopology(backend, ctx, cfg, model.XRayTopology)
}

// NewControllerWithTopology is like NewController, but trains a classifier with the given topology, which must
// output one value per example. See model.Validate.
func NewControllerWithTopology(backend backends.Backend, ctx *context.Context, cfg *config.Config,
	topology []model.Layer) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := model.Validate(topology); err != nil {
		return nil, errors.WithMessage(err, "invalid model topology")
	}
	c := &Controller{
		cfg:       cfg,
		backend:   backend,
		topology:  topology,
		ctx:       ctx,
		modelCtx:  ctx.In(model.Scope),
		out:       os.Stdout,
		accuracy:  metrics.NewMeanBinaryLogitsAccuracy("Mean Accuracy", "#acc"),
		stopEarly: NewEarlyStopping(cfg.EarlyStopPatience),
		plateau:   NewPlateauDecay(cfg.PlateauPatience, cfg.PlateauFactor, cfg.MinLearningRate),
	}
	if err := ctx.SetRNGStateFromSeed(cfg.Seed); err != nil {
		return nil, errors.WithMessage(err, "seeding the random number generator")
	}
	c.validate = c.Evaluate
	c.trainer = train.NewTrainer(backend, c.modelCtx, model.SequentialModelFn(topology),
		losses.BinaryCrossentropyLogits,
		optimizers.Adam().LearningRate(cfg.LearningRate).Done(),
		[]metrics.Interface{c.accuracy}, // trainMetrics
		nil)                             // evalMetrics
	c.loop = train.NewLoop(c.trainer)
	c.loop.OnStep("collect batch loss", 0, func(_ *train.Loop, stepMetrics []*tensors.Tensor) error {
		c.stepLosses = append(c.stepLosses, shapes.ConvertTo[float64](stepMetrics[0].Value()))
		return nil
	})
	return c, nil
}

// WithProgressBar attaches a command-line progress bar to the training loop.
func (c *Controller) WithProgressBar() *Controller {
	commandline.AttachProgressBar(c.loop)
	return c
}

// WithOutput sets where the per-epoch summaries and the test results are printed. Default is os.Stdout.
func (c *Controller) WithOutput(w io.Writer) *Controller {
	c.out = w
	return c
}

// Context returns the root context holding the model variables.
func (c *Controller) Context() *context.Context { return c.ctx }

// Fit trains for up to cfg.Epochs epochs over trainDS, evaluating on valDS after each epoch.
//
// After each epoch, in this order:
//
//   - The model is saved to cfg.BestModelDir if the validation accuracy improved.
//   - The learning rate is reduced if the validation loss has not improved for cfg.PlateauPatience epochs.
//   - Training stops if the validation loss has not improved for cfg.EarlyStopPatience epochs, and the weights
//     of the epoch with the lowest validation loss are restored. If no epoch ever had a valid (non-NaN) loss,
//     the current weights are kept.
func (c *Controller) Fit(trainDS, valDS train.Dataset) (*History, error) {
	var err error
	c.best, err = NewBestCheckpoint(c.ctx, c.cfg.Path(c.cfg.BestModelDir))
	if err != nil {
		return nil, err
	}
	history := &History{RestoredEpoch: -1}
	for epoch := range c.cfg.Epochs {
		var record EpochRecord
		record, err = c.trainEpoch(epoch, trainDS)
		if err != nil {
			return history, err
		}
		var valResult EvalResult
		valResult, err = c.validate(valDS)
		if err != nil {
			return history, errors.WithMessagef(err, "validation after epoch %d", epoch+1)
		}
		record.ValLoss, record.ValAccuracy, record.ValAUC = valResult.Loss, valResult.Accuracy, valResult.AUC

		record.Checkpointed, err = c.best.Update(valResult.Accuracy)
		if err != nil {
			return history, err
		}
		if newLR, reduced := c.plateau.Update(valResult.Loss, record.LearningRate); reduced {
			if err = c.SetLearningRate(newLR); err != nil {
				return history, err
			}
			klog.V(1).Infof("epoch %d: reducing learning rate to %g", epoch+1, newLR)
		}
		improved, stop := c.stopEarly.Update(epoch, valResult.Loss)
		if improved {
			if c.bestWeights, err = TakeSnapshot(c.ctx, c.modelCtx.Scope()); err != nil {
				return history, err
			}
		}
		history.Epochs = append(history.Epochs, record)
		c.printEpoch(record)

		if stop {
			history.StoppedEarly = true
			if c.bestWeights == nil {
				_, _ = fmt.Fprintf(c.out, "Early stopping at epoch %d: no epoch improved the validation loss.\n",
					epoch+1)
				break
			}
			_, bestEpoch := c.stopEarly.Best()
			if err = c.bestWeights.Restore(c.ctx); err != nil {
				return history, errors.WithMessage(err, "restoring best weights")
			}
			history.RestoredEpoch = bestEpoch
			_, _ = fmt.Fprintf(c.out, "Early stopping at epoch %d: restored weights of epoch %d.\n",
				epoch+1, bestEpoch+1)
			break
		}
	}
	history.BestValAccuracy = c.best.Best()
	return history, nil
}

// trainEpoch runs one pass over trainDS, returning the mean training loss, accuracy and learning rate used.
func (c *Controller) trainEpoch(epoch int, trainDS train.Dataset) (EpochRecord, error) {
	record := EpochRecord{Epoch: epoch + 1}
	var err error
	if epoch > 0 {
		if record.LearningRate, err = c.LearningRate(); err != nil {
			return record, err
		}
	} else {
		record.LearningRate = c.cfg.LearningRate
	}
	c.stepLosses = c.stepLosses[:0]
	lastMetrics, err := c.loop.RunEpochs(trainDS, 1)
	if err != nil {
		return record, errors.WithMessagef(err, "training epoch %d", epoch+1)
	}
	if len(c.stepLosses) == 0 {
		return record, errors.Errorf("training dataset %q is empty", trainDS.Name())
	}
	record.TrainLoss = stat.Mean(c.stepLosses, nil)
	for ii, m := range c.trainer.TrainMetrics() {
		if m == metrics.Interface(c.accuracy) {
			record.TrainAccuracy = shapes.ConvertTo[float64](lastMetrics[ii].Value())
		}
	}
	return record, nil
}

// Evaluate returns the loss, accuracy and AUC of the current model over one epoch of ds.
func (c *Controller) Evaluate(ds train.Dataset) (EvalResult, error) {
	if err := c.createEvaluator(); err != nil {
		return EvalResult{}, err
	}
	return c.evaluator.Evaluate(ds)
}

// Predict returns the probability of PNEUMONIA and the label of every example of one epoch of ds.
func (c *Controller) Predict(ds train.Dataset) (probs []float64, labels []int, err error) {
	if err = c.createEvaluator(); err != nil {
		return
	}
	return c.evaluator.Predict(ds)
}

// createEvaluator creates the evaluation graph on first use: it needs the variables created by training.
func (c *Controller) createEvaluator() (err error) {
	if c.evaluator == nil {
		c.evaluator, err = NewEvaluator(c.backend, c.modelCtx, c.topology)
	}
	return
}

// Test evaluates the model on testDS and prints the test accuracy and AUC.
// It also returns the predicted probabilities, in the order testDS yields its examples.
func (c *Controller) Test(testDS train.Dataset) (result EvalResult, probs []float64, err error) {
	var labels []int
	probs, labels, err = c.Predict(testDS)
	if err == nil {
		result, err = ComputeMetrics(probs, labels)
	}
	if err != nil {
		return result, nil, errors.WithMessage(err, "test evaluation")
	}
	_, _ = fmt.Fprintf(c.out, "\nTest Accuracy: %.4f\n", result.Accuracy)
	_, _ = fmt.Fprintf(c.out, "Test AUC: %.4f\n", result.AUC)
	return result, probs, nil
}

// SaveFinal saves the current model to cfg.FinalModelDir.
func (c *Controller) SaveFinal() error {
	return SaveModel(c.ctx, c.cfg.Path(c.cfg.FinalModelDir))
}

// learningRateVar returns the optimizer's learning rate variable, created with the first training step.
func (c *Controller) learningRateVar() (*context.Variable, error) {
	for v := range c.ctx.IterVariables() {
		if v.Name() == optimizers.ParamLearningRate &&
			strings.HasSuffix(v.Scope(), context.ScopeSeparator+optimizers.Scope) {
			return v, nil
		}
	}
	return nil, errors.Errorf("learning rate variable %q not found, was the model trained?",
		optimizers.ParamLearningRate)
}

// LearningRate returns the current learning rate of the optimizer.
func (c *Controller) LearningRate() (float64, error) {
	v, err := c.learningRateVar()
	if err != nil {
		return 0, err
	}
	value, err := v.Value()
	if err != nil {
		return 0, err
	}
	return shapes.ConvertTo[float64](value.Value()), nil
}

// SetLearningRate changes the learning rate used by the following training steps.
func (c *Controller) SetLearningRate(lr float64) error {
	v, err := c.learningRateVar()
	if err != nil {
		return err
	}
	return errors.WithMessage(v.SetValue(tensors.FromAnyValue(shapes.CastAsDType(lr, v.DType()))),
		"setting learning rate")
}

func (c *Controller) printEpoch(r EpochRecord) {
	marker := ""
	if r.Checkpointed {
		marker = " (saved best model)"
	}
	_, _ = fmt.Fprintf(c.out,
		"Epoch %d/%d - loss: %.4f - accuracy: %.4f - val_loss: %.4f - val_accuracy: %.4f - val_auc: %.4f - lr: %s%s\n",
		r.Epoch, c.cfg.Epochs, r.TrainLoss, r.TrainAccuracy, r.ValLoss, r.ValAccuracy, r.ValAUC,
		formatLearningRate(r.LearningRate), marker)
}

func formatLearningRate(lr float64) string {
	if lr >= 1e-3 || lr == 0 || math.IsInf(lr, 0) {
		return fmt.Sprintf("%.4f", lr)
	}
	return fmt.Sprintf("%.1e", lr)
}
