// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package classifier loads a trained chest X-ray model and diagnoses images with it.
package classifier

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/chestxray/pkg/dataset"
)

// Threshold above which a score is diagnosed as Pneumonia.
const Threshold = 0.5

// Diagnosis of a chest X-ray.
type Diagnosis int

const (
	Normal Diagnosis = iota
	Pneumonia
)

func (d Diagnosis) String() string {
	switch d {
	case Normal:
		return "NORMAL"
	case Pneumonia:
		return "PNEUMONIA"
	}
	return fmt.Sprintf("Diagnosis(%d)", int(d))
}

// Diagnose converts the model score, the probability of pneumonia, into a diagnosis and the confidence in it,
// which is always >= 0.5.
func Diagnose(score float64) (Diagnosis, float64) {
	if score > Threshold {
		return Pneumonia, score
	}
	return Normal, 1 - score
}

// Result of classifying one image.
type Result struct {
	Path       string
	Score      float64
	Diagnosis  Diagnosis
	Confidence float64

	// Err is set if the image could not be classified, in which case the other fields are not set.
	Err error
}

// NewResult returns the Result for the given model score.
func NewResult(path string, score float64) Result {
	diagnosis, confidence := Diagnose(score)
	return Result{Path: path, Score: score, Diagnosis: diagnosis, Confidence: confidence}
}

// Title of a displayed image with its result.
func (r Result) Title() string {
	return fmt.Sprintf("Diagnosis: %s\nConfidence: %s", r.Diagnosis, FormatPercent(r.Confidence))
}

// FormatPercent formats a fraction as a percentage with two decimals, e.g. 0.98765 -> "98.77%".
func FormatPercent(fraction float64) string {
	return fmt.Sprintf("%.2f%%", 100*fraction)
}

// ResolveImagePaths expands the paths given by the user into the list of images to classify:
//
//   - Directories are replaced by their image files (see dataset.ImageExtensions), not recursively. They are
//     grouped by extension, in the order of dataset.ImageExtensions, and sorted by name within a group.
//   - Regular files are kept as is, whatever their extension.
//   - Paths that don't exist or can't be read are dropped.
func ResolveImagePaths(paths []string) []string {
	var resolved []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			if info.Mode().IsRegular() {
				resolved = append(resolved, p)
			}
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			continue
		}
		for _, ext := range dataset.ImageExtensions {
			for _, entry := range entries {
				if entry.IsDir() || strings.ToLower(filepath.Ext(entry.Name())) != ext {
					continue
				}
				resolved = append(resolved, filepath.Join(p, entry.Name()))
			}
		}
	}
	return resolved
}
