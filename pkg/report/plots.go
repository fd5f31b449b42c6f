// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package report renders the results of a training run: plots of the training history and of sample predictions,
// the history as CSV, and tables for the terminal.
package report

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/gomlx/chestxray/pkg/training"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// ClassTitles are the names of the classes used in the plots, indexed by label.
var ClassTitles = []string{"Normal", "Pneumonia"}

var (
	correctColor = color.RGBA{G: 128, A: 255}
	wrongColor   = color.RGBA{R: 220, A: 255}
)

// PlotHistory saves to filePath a PNG with the training and validation accuracy (left) and loss (right) per epoch.
func PlotHistory(h *training.History, filePath string) error {
	if h.Len() == 0 {
		return errors.New("no epochs to plot")
	}
	accuracy, err := newEpochsPlot("Model Accuracy", "Accuracy",
		"Train Accuracy", h.Series(func(r training.EpochRecord) float64 { return r.TrainAccuracy }),
		"Val Accuracy", h.Series(func(r training.EpochRecord) float64 { return r.ValAccuracy }))
	if err != nil {
		return err
	}
	loss, err := newEpochsPlot("Model Loss", "Loss",
		"Train Loss", h.Series(func(r training.EpochRecord) float64 { return r.TrainLoss }),
		"Val Loss", h.Series(func(r training.EpochRecord) float64 { return r.ValLoss }))
	if err != nil {
		return err
	}
	return saveGrid([][]*plot.Plot{{accuracy, loss}}, 14*vg.Inch, 5*vg.Inch, filePath)
}

func newEpochsPlot(title, yLabel, trainName string, train []float64, valName string, val []float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	if err := plotutil.AddLinePoints(p, trainName, epochPoints(train), valName, epochPoints(val)); err != nil {
		return nil, errors.Wrapf(err, "plotting %q", title)
	}
	return p, nil
}

// epochPoints returns the values as points with the 1-based epoch in X.
func epochPoints(values []float64) plotter.XYs {
	points := make(plotter.XYs, len(values))
	for ii, v := range values {
		points[ii].X = float64(ii + 1)
		points[ii].Y = v
	}
	return points
}

// PlotSamples saves to filePath a PNG with up to 8 images in a 2x4 grid, each titled with the true label, the
// predicted label and the confidence of the prediction. Titles are green for correct predictions, red otherwise.
//
// probs are the predicted probabilities of PNEUMONIA, aligned with images and labels.
func PlotSamples(images []image.Image, labels []int, probs []float64, filePath string) error {
	const rows, cols = 2, 4
	if len(images) != len(labels) || len(images) > len(probs) {
		return errors.Errorf("got %d images, %d labels and %d predictions", len(images), len(labels), len(probs))
	}
	if len(images) == 0 {
		return errors.New("no images to plot")
	}
	grid := make([][]*plot.Plot, rows)
	for row := range grid {
		grid[row] = make([]*plot.Plot, cols)
		for col := range grid[row] {
			p := plot.New()
			p.HideAxes()
			grid[row][col] = p
			idx := row*cols + col
			if idx >= len(images) {
				continue
			}
			predicted, confidence := 0, 1-probs[idx]
			if probs[idx] > 0.5 {
				predicted, confidence = 1, probs[idx]
			}
			p.Title.Text = fmt.Sprintf("True: %s\nPred: %s\nConf: %.2f",
				ClassTitles[labels[idx]], ClassTitles[predicted], confidence)
			p.Title.TextStyle.Color = wrongColor
			if predicted == labels[idx] {
				p.Title.TextStyle.Color = correctColor
			}
			bounds := images[idx].Bounds()
			p.Add(plotter.NewImage(images[idx], 0, 0, float64(bounds.Dx()), float64(bounds.Dy())))
		}
	}
	return saveGrid(grid, 16*vg.Inch, 8*vg.Inch, filePath)
}

// saveGrid draws the plots aligned in a grid and saves them as a PNG.
func saveGrid(plots [][]*plot.Plot, width, height vg.Length, filePath string) error {
	img := vgimg.New(width, height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      len(plots),
		Cols:      len(plots[0]),
		PadX:      vg.Millimeter * 8,
		PadY:      vg.Millimeter * 8,
		PadTop:    vg.Millimeter * 4,
		PadBottom: vg.Millimeter * 4,
		PadLeft:   vg.Millimeter * 4,
		PadRight:  vg.Millimeter * 4,
	}
	canvases := plot.Align(plots, tiles, dc)
	for row := range plots {
		for col, p := range plots[row] {
			p.Draw(canvases[row][col])
		}
	}
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "creating plot file %q", filePath)
	}
	png := vgimg.PngCanvas{Canvas: img}
	if _, err = png.WriteTo(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "writing plot to %q", filePath)
	}
	return errors.Wrapf(f.Close(), "closing plot file %q", filePath)
}
