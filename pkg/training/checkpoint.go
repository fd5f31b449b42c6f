// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package training

import (
	"os"

	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/pkg/errors"
)

// BestCheckpoint saves the model to a directory every time the monitored value (higher is better) improves,
// keeping only the latest checkpoint.
type BestCheckpoint struct {
	metric  *BestMetric
	handler *checkpoints.Handler
}

// NewBestCheckpoint creates a BestCheckpoint saving the variables of ctx to dir.
//
// Any previous content of dir is removed: a new training run never resumes from an old best model.
func NewBestCheckpoint(ctx *context.Context, dir string) (*BestCheckpoint, error) {
	handler, err := freshCheckpoint(ctx, dir)
	if err != nil {
		return nil, err
	}
	return &BestCheckpoint{metric: NewBestMetric(), handler: handler}, nil
}

// Update saves a checkpoint if value is better than any previous one. It returns whether it was saved.
func (bc *BestCheckpoint) Update(value float64) (saved bool, err error) {
	if !bc.metric.Update(value) {
		return false, nil
	}
	if err = bc.handler.Save(); err != nil {
		return false, errors.WithMessagef(err, "saving best model to %q", bc.handler.Dir())
	}
	return true, nil
}

// Best returns the best value saved so far.
func (bc *BestCheckpoint) Best() float64 { return bc.metric.Best() }

// Dir returns the directory of the checkpoint.
func (bc *BestCheckpoint) Dir() string { return bc.handler.Dir() }

// SaveModel writes all the variables of ctx as a new checkpoint in dir, replacing any previous content.
func SaveModel(ctx *context.Context, dir string) error {
	handler, err := freshCheckpoint(ctx, dir)
	if err != nil {
		return err
	}
	return errors.WithMessagef(handler.Save(), "saving model to %q", dir)
}

// freshCheckpoint removes dir and creates a checkpoint handler for it.
// Otherwise checkpoints.Config.Done would load the old variables into ctx.
func freshCheckpoint(ctx *context.Context, dir string) (*checkpoints.Handler, error) {
	dir, err := fsutil.ReplaceTildeInDir(dir)
	if err != nil {
		return nil, err
	}
	if err = os.RemoveAll(dir); err != nil {
		return nil, errors.Wrapf(err, "removing previous checkpoint in %q", dir)
	}
	handler, err := checkpoints.Build(ctx).Dir(dir).Keep(1).Done()
	if err != nil {
		return nil, errors.WithMessagef(err, "creating checkpoint in %q", dir)
	}
	return handler, nil
}
