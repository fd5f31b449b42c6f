// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/chestxray/pkg/training"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
)

// TitleStyle is used for the section titles of the reports.
var TitleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)

// ModelSummaryTable renders the size of the variables of a loaded model under ctx's current scope, and the
// number of training steps taken.
func ModelSummaryTable(modelDir string, ctx *context.Context) string {
	var numVars, totalSize int
	var totalMemory uintptr
	for v := range ctx.IterVariablesInScope() {
		numVars++
		totalSize += v.Shape().Size()
		totalMemory += v.Shape().Memory()
	}
	t := newTable(lipgloss.Right, lipgloss.Left)
	t.row(false, "model", modelDir)
	t.row(false, "scope", ctx.Scope())
	t.row(false, "global_step", humanize.Comma(globalStep(ctx)))
	t.row(false, "# variables", humanize.Comma(int64(numVars)))
	t.row(false, "# parameters", humanize.Comma(int64(totalSize)))
	t.row(false, "# bytes", humanize.Bytes(uint64(totalMemory)))
	return t.Render()
}

// globalStep returns the number of training steps saved with the model, or 0 if there is none.
func globalStep(ctx *context.Context) int64 {
	for v := range ctx.IterVariables() {
		if v.Name() != optimizers.GlobalStepVariableName {
			continue
		}
		if value, err := v.Value(); err == nil {
			return shapes.ConvertTo[int64](value.Value())
		}
	}
	return 0
}

// VariablesTable renders the variables under ctx's current scope, sorted by scope and name.
func VariablesTable(ctx *context.Context) string {
	var vars []*context.Variable
	for v := range ctx.IterVariablesInScope() {
		vars = append(vars, v)
	}
	slices.SortFunc(vars, func(a, b *context.Variable) int {
		return cmp.Or(cmp.Compare(a.Scope(), b.Scope()), cmp.Compare(a.Name(), b.Name()))
	})
	t := newTable(lipgloss.Left, lipgloss.Left, lipgloss.Left, lipgloss.Right)
	t.Headers("Scope", "Name", "Shape", "Size", "Bytes")
	for _, v := range vars {
		shape := v.Shape()
		t.row(!v.Trainable, v.Scope(), v.Name(), shape.String(),
			humanize.Comma(int64(shape.Size())), humanize.Bytes(uint64(shape.Memory())))
	}
	return t.Render()
}

// ParamsTable renders the hyperparameters saved with a model.
func ParamsTable(ctx *context.Context) string {
	type param struct{ scope, key, value, valueType string }
	var params []param
	ctx.EnumerateParams(func(scope, key string, value any) {
		params = append(params, param{scope, key, fmt.Sprintf("%v", value), fmt.Sprintf("%T", value)})
	})
	slices.SortFunc(params, func(a, b param) int {
		return cmp.Or(cmp.Compare(a.scope, b.scope), cmp.Compare(a.key, b.key))
	})
	t := newTable(lipgloss.Left, lipgloss.Left, lipgloss.Left, lipgloss.Right)
	t.Headers("Scope", "Name", "Type", "Value")
	for _, p := range params {
		t.row(false, p.scope, p.key, p.valueType, p.value)
	}
	return t.Render()
}

// RunTable renders the identification and test results of a training run.
func RunTable(info *training.RunInfo) string {
	t := newTable(lipgloss.Right, lipgloss.Left)
	t.row(false, "run", info.ID)
	t.row(false, "finished", fmt.Sprintf("%s (%s)", info.Finished.Format(time.DateTime), humanize.Time(info.Finished)))
	if info.Config != nil {
		t.row(false, "data", info.Config.DataDir)
	}
	if info.History != nil {
		epochs := fmt.Sprint(info.History.Len())
		if info.History.Restored() {
			epochs += fmt.Sprintf(" (stopped early, restored epoch %d)", info.History.RestoredEpoch+1)
		} else if info.History.StoppedEarly {
			epochs += " (stopped early)"
		}
		t.row(false, "epochs", epochs)
		t.row(false, "best val accuracy", fmt.Sprintf("%.4f", info.History.BestValAccuracy))
	}
	t.row(true, "test", info.Test.String())
	return t.Render()
}
