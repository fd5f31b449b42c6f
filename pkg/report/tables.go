// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/chestxray/pkg/model"
	"github.com/gomlx/chestxray/pkg/training"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	highlightRowStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "2", Dark: "10"}).
				Bold(true).
				PaddingLeft(1).PaddingRight(1)
)

// table with alternating row styles and a set of highlighted rows.
type table struct {
	*lgtable.Table
	count       int
	highlighted map[int]bool
}

func newTable(alignments ...lipgloss.Position) *table {
	t := &table{highlighted: make(map[int]bool)}
	t.Table = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			switch {
			case row < 0:
				return headerRowStyle
			case t.highlighted[row]:
				s = highlightRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			alignment := lipgloss.Right
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			return s.Align(alignment)
		})
	return t
}

func (t *table) row(highlight bool, cells ...string) {
	if highlight {
		t.highlighted[t.count] = true
	}
	t.Row(cells...)
	t.count++
}

// HistoryTable renders the per-epoch metrics. Epochs that saved the best model are highlighted.
func HistoryTable(h *training.History) string {
	t := newTable(lipgloss.Right)
	t.Headers("Epoch", "Loss", "Accuracy", "Val Loss", "Val Accuracy", "Val AUC", "Learning Rate", "Best")
	for _, r := range h.Epochs {
		best := ""
		if r.Checkpointed {
			best = "*"
		}
		t.row(r.Checkpointed, fmt.Sprint(r.Epoch),
			fmt.Sprintf("%.4f", r.TrainLoss), fmt.Sprintf("%.4f", r.TrainAccuracy),
			fmt.Sprintf("%.4f", r.ValLoss), fmt.Sprintf("%.4f", r.ValAccuracy), fmt.Sprintf("%.4f", r.ValAUC),
			fmt.Sprintf("%g", r.LearningRate), best)
	}
	var sb strings.Builder
	sb.WriteString(t.Render())
	if h.Restored() {
		fmt.Fprintf(&sb, "\nStopped early, restored weights of epoch %d.", h.RestoredEpoch+1)
	} else if h.StoppedEarly {
		sb.WriteString("\nStopped early, no epoch improved the validation loss.")
	}
	return sb.String()
}

// SummaryTable renders the layers of the model with their output shapes and number of parameters.
func SummaryTable(summaries []model.LayerSummary) string {
	t := newTable(lipgloss.Left, lipgloss.Left, lipgloss.Right)
	t.Headers("Layer", "Output Shape", "Params")
	for _, s := range summaries {
		shape := make([]string, len(s.OutputShape))
		for ii, dim := range s.OutputShape {
			shape[ii] = fmt.Sprint(dim)
		}
		t.row(false, s.Name, "(None, "+strings.Join(shape, ", ")+")", humanize.Comma(int64(s.Params+s.NonTrainable)))
	}
	trainable, nonTrainable := model.TotalParams(summaries)
	return fmt.Sprintf("%s\nTotal params: %s\nTrainable params: %s\nNon-trainable params: %s",
		t.Render(),
		humanize.Comma(int64(trainable+nonTrainable)),
		humanize.Comma(int64(trainable)),
		humanize.Comma(int64(nonTrainable)))
}

// EvalTable renders the evaluation results of one or more datasets, in the given order.
func EvalTable(names []string, results []training.EvalResult) string {
	t := newTable(lipgloss.Left, lipgloss.Right)
	t.Headers("Dataset", "Examples", "Loss", "Accuracy", "AUC")
	for ii, name := range names {
		r := results[ii]
		t.row(false, name, humanize.Comma(int64(r.Count)),
			fmt.Sprintf("%.4f", r.Loss), fmt.Sprintf("%.4f", r.Accuracy), fmt.Sprintf("%.4f", r.AUC))
	}
	return t.Render()
}
