// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package display shows an image in a window, titled with colored text, using Fyne.
//
// Show blocks until the window is closed, and it must be called from the main goroutine.
package display

import (
	"image"
	"image/color"
	"os"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
)

var (
	// Alert is the title color of findings, e.g. pneumonia.
	Alert color.Color = color.NRGBA{R: 220, G: 30, B: 30, A: 255}

	// OK is the title color of normal results.
	OK color.Color = color.NRGBA{R: 20, G: 150, B: 20, A: 255}
)

// TitleSize is the text size of the title lines.
const TitleSize = 20

// HasWindows returns whether there is a window system to display to.
func HasWindows() bool {
	return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
}

// NewContent returns the image with the title above it, one text line per line of title.
func NewContent(img image.Image, title string, titleColor color.Color) fyne.CanvasObject {
	lines := strings.Split(title, "\n")
	texts := make([]fyne.CanvasObject, len(lines))
	for ii, line := range lines {
		text := canvas.NewText(line, titleColor)
		text.TextSize = TitleSize
		text.TextStyle = fyne.TextStyle{Bold: true}
		text.Alignment = fyne.TextAlignCenter
		texts[ii] = text
	}
	picture := canvas.NewImageFromImage(img)
	picture.FillMode = canvas.ImageFillContain
	picture.ScaleMode = canvas.ImageScaleSmooth
	return container.NewBorder(container.NewVBox(texts...), nil, nil, nil, picture)
}

// Show opens a window with the image and title, and waits for it to be closed.
func Show(windowName string, img image.Image, title string, titleColor color.Color) {
	a := app.New()
	w := a.NewWindow(windowName)
	w.SetContent(NewContent(img, title, titleColor))
	w.Resize(fyne.NewSize(640, 560))
	w.ShowAndRun()
}
