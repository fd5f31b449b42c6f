// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package training

import (
	"strings"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/pkg/errors"
)

// Snapshot is an in-memory copy of the model weights, used to restore the best epoch when training stops early.
//
// It holds the variables under the model scope, except the optimizer ones (the learning rate).
type Snapshot struct {
	values map[string]*tensors.Tensor
}

// isModelVariable returns whether the variable at scope belongs to the model under modelScope (an absolute scope,
// e.g. "/model").
func isModelVariable(modelScope, scope string) bool {
	if scope != modelScope && !strings.HasPrefix(scope, modelScope+context.ScopeSeparator) {
		return false
	}
	optimizerScope := modelScope + context.ScopeSeparator + optimizers.Scope
	return scope != optimizerScope && !strings.HasPrefix(scope, optimizerScope+context.ScopeSeparator)
}

// TakeSnapshot copies the current values of the model variables of ctx under modelScope.
func TakeSnapshot(ctx *context.Context, modelScope string) (*Snapshot, error) {
	snap := &Snapshot{values: make(map[string]*tensors.Tensor)}
	for v := range ctx.IterVariables() {
		if !isModelVariable(modelScope, v.Scope()) {
			continue
		}
		value, err := v.Value()
		if err != nil {
			return nil, errors.WithMessagef(err, "reading variable %q", v.ScopeAndName())
		}
		copied, err := value.LocalClone()
		if err != nil {
			return nil, errors.WithMessagef(err, "copying variable %q", v.ScopeAndName())
		}
		snap.values[v.ScopeAndName()] = copied
	}
	if len(snap.values) == 0 {
		return nil, errors.Errorf("no variables found under scope %q", modelScope)
	}
	return snap, nil
}

// Len returns the number of variables in the snapshot.
func (s *Snapshot) Len() int { return len(s.values) }

// Restore sets the variables of ctx to the values in the snapshot. The snapshot can be restored again later.
func (s *Snapshot) Restore(ctx *context.Context) error {
	var restored int
	for v := range ctx.IterVariables() {
		value, found := s.values[v.ScopeAndName()]
		if !found {
			continue
		}
		copied, err := value.LocalClone()
		if err != nil {
			return errors.WithMessagef(err, "copying snapshot of variable %q", v.ScopeAndName())
		}
		if err = v.SetValue(copied); err != nil {
			return errors.WithMessagef(err, "restoring variable %q", v.ScopeAndName())
		}
		restored++
	}
	if restored != len(s.values) {
		return errors.Errorf("restored %d variables, but snapshot has %d", restored, len(s.values))
	}
	return nil
}
