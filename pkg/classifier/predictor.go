// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"fmt"
	"image"
	"io"
	"path/filepath"

	"github.com/gomlx/chestxray/pkg/dataset"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ShowFn displays an image along with its classification result.
type ShowFn func(img image.Image, r Result) error

// Predictor classifies images with a Model and prints the results.
type Predictor struct {
	model Model
	out   io.Writer
	show  ShowFn
}

// NewPredictor creates a Predictor that prints its results to out.
func NewPredictor(m Model, out io.Writer) *Predictor {
	return &Predictor{model: m, out: out}
}

// WithShow sets a function to display the image when classifying a single image.
func (p *Predictor) WithShow(show ShowFn) *Predictor {
	p.show = show
	return p
}

// Classify loads and classifies the image at imagePath. The returned image is nil if it failed to load.
func (p *Predictor) Classify(imagePath string) (Result, image.Image) {
	img, err := dataset.LoadImage(imagePath)
	if err != nil {
		return Result{Path: imagePath, Err: err}, nil
	}
	score, err := p.model.Predict(img)
	if err != nil {
		return Result{Path: imagePath, Err: errors.WithMessagef(err, "classifying %q", imagePath)}, img
	}
	return NewResult(imagePath, score), img
}

// Run classifies the given images: it prints "No valid images found!" if there are none, the full result if
// there is only one, or the per-image results followed by a summary otherwise.
func (p *Predictor) Run(imagePaths []string) []Result {
	switch len(imagePaths) {
	case 0:
		p.printf("No valid images found!\n")
		return nil
	case 1:
		return []Result{p.Single(imagePaths[0])}
	default:
		return p.Batch(imagePaths)
	}
}

// Single classifies one image, prints the result and, if configured, displays the image.
func (p *Predictor) Single(imagePath string) Result {
	r, img := p.Classify(imagePath)
	if r.Err != nil {
		p.printf("  Error: %v\n", r.Err)
		return r
	}
	p.printResult(r)
	if p.show != nil {
		if err := p.show(img, r); err != nil {
			klog.Warningf("failed to display %q: %v", imagePath, err)
		}
	}
	return r
}

// Batch classifies the images in order, printing each result, and finally a summary of the diagnoses.
// Images that fail are reported and left out of the summary.
func (p *Predictor) Batch(imagePaths []string) []Result {
	results := make([]Result, 0, len(imagePaths))
	p.printf("\nProcessing %d images...\n\n", len(imagePaths))
	for ii, imagePath := range imagePaths {
		p.printf("[%d/%d] %s\n", ii+1, len(imagePaths), filepath.Base(imagePath))
		r, _ := p.Classify(imagePath)
		results = append(results, r)
		if r.Err != nil {
			p.printf("  Error: %v\n", r.Err)
			continue
		}
		p.printResult(r)
		p.printf("  → %s (%s)\n", r.Diagnosis, FormatPercent(r.Confidence))
	}
	normal, pneumonia := Count(results)
	p.printf("\nSummary:\n  Normal: %d\n  Pneumonia: %d\n", normal, pneumonia)
	return results
}

// Count returns the number of successful results diagnosed Normal and Pneumonia.
func Count(results []Result) (normal, pneumonia int) {
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		switch r.Diagnosis {
		case Normal:
			normal++
		case Pneumonia:
			pneumonia++
		}
	}
	return
}

func (p *Predictor) printResult(r Result) {
	p.printf("\nPrediction Results:\n")
	p.printf("  Diagnosis: %s\n", r.Diagnosis)
	p.printf("  Confidence: %s\n", FormatPercent(r.Confidence))
	p.printf("  Raw Score: %.4f\n", r.Score)
}

func (p *Predictor) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}
