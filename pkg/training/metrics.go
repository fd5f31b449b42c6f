// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package training

import (
	"fmt"
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Epsilon clips probabilities to [Epsilon, 1-Epsilon] when computing the binary cross-entropy.
const Epsilon = 1e-7

// EvalResult holds the metrics of the classifier over one dataset.
type EvalResult struct {
	Loss     float64 `yaml:"loss"`
	Accuracy float64 `yaml:"accuracy"`
	AUC      float64 `yaml:"auc"`
	Count    int     `yaml:"count"`
}

// String implements fmt.Stringer.
func (r EvalResult) String() string {
	return fmt.Sprintf("loss=%.4f accuracy=%.4f auc=%.4f (%d examples)", r.Loss, r.Accuracy, r.AUC, r.Count)
}

// ComputeMetrics returns the loss, accuracy and ROC AUC of the predicted probabilities of the positive class
// against the binary labels.
func ComputeMetrics(probs []float64, labels []int) (EvalResult, error) {
	if len(probs) != len(labels) {
		return EvalResult{}, errors.Errorf("got %d predictions for %d labels", len(probs), len(labels))
	}
	if len(probs) == 0 {
		return EvalResult{}, errors.New("no predictions to evaluate")
	}
	return EvalResult{
		Loss:     BinaryCrossEntropy(probs, labels),
		Accuracy: Accuracy(probs, labels),
		AUC:      AUC(probs, labels),
		Count:    len(probs),
	}, nil
}

// BinaryCrossEntropy returns the mean binary cross-entropy of the probabilities.
func BinaryCrossEntropy(probs []float64, labels []int) float64 {
	losses := make([]float64, len(probs))
	for ii, p := range probs {
		p = min(max(p, Epsilon), 1-Epsilon)
		if labels[ii] == 1 {
			losses[ii] = -math.Log(p)
		} else {
			losses[ii] = -math.Log(1 - p)
		}
	}
	return stat.Mean(losses, nil)
}

// Accuracy returns the fraction of probabilities on the same side of 0.5 as their label.
// A probability of exactly 0.5 predicts the negative class.
func Accuracy(probs []float64, labels []int) float64 {
	var hits int
	for ii, p := range probs {
		if (p > 0.5) == (labels[ii] == 1) {
			hits++
		}
	}
	return float64(hits) / float64(len(probs))
}

// AUC returns the area under the ROC curve of the scores. It is 0 if only one class is present.
func AUC(scores []float64, labels []int) float64 {
	order := make([]int, len(scores))
	var positives int
	for ii := range order {
		order[ii] = ii
		if labels[ii] == 1 {
			positives++
		}
	}
	if positives == 0 || positives == len(labels) {
		return 0
	}
	sort.SliceStable(order, func(i, j int) bool { return scores[order[i]] < scores[order[j]] })
	sortedScores := make([]float64, len(order))
	classes := make([]bool, len(order))
	for ii, idx := range order {
		sortedScores[ii] = scores[idx]
		classes[ii] = labels[idx] == 1
	}
	tpr, fpr, _ := stat.ROC(nil, sortedScores, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}
