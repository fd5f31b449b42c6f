// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// xray_predict classifies chest X-ray images as NORMAL or PNEUMONIA with a model trained by xray_train.
//
// Arguments are image files or directories; flags may come before or after them:
//
//	xray_predict path/to/images/ --model best_model --no-show
package main

import (
	"flag"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/chestxray/pkg/classifier"
	"github.com/gomlx/chestxray/ui/display"
	"github.com/gomlx/gomlx/backends"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

const usage = `Chest X-Ray Pneumonia Prediction
==================================================

Usage:
  Single image:
    xray_predict path/to/image.jpg

  Multiple images:
    xray_predict img1.jpg img2.jpg

  Directory:
    xray_predict path/to/images/

Options:
  --model PATH    Model checkpoint directory or .onnx file (default: best_model)
  --no-show       Don't display images
`

var (
	flagModel  = flag.String("model", "best_model", "Model checkpoint directory or .onnx file.")
	flagNoShow = flag.Bool("no-show", false, "Don't display images.")
)

func main() {
	klog.InitFlags(nil)
	flag.Usage = func() { printUsage(flag.CommandLine.Output()) }
	if err := flag.CommandLine.Parse(reorderArgs(flag.CommandLine, os.Args[1:])); err != nil {
		os.Exit(2)
	}
	if flag.NArg() == 0 {
		printUsage(os.Stdout)
		return
	}

	fmt.Printf("Loading model from %s...\n", *flagModel)
	backend, err := backends.New()
	if err != nil {
		klog.Errorf("Failed to create backend: %+v", err)
		os.Exit(1)
	}
	m, err := classifier.Load(backend, *flagModel)
	if err != nil {
		if classifier.IsModelNotFound(err) {
			klog.Errorf("Model not found: %s", *flagModel)
		} else {
			klog.Errorf("Failed to load model %s: %+v", *flagModel, err)
		}
		os.Exit(1)
	}
	defer func() {
		if err := m.Close(); err != nil {
			klog.Warningf("Failed to release model: %v", err)
		}
	}()
	fmt.Println("Model loaded successfully!")

	predictor := classifier.NewPredictor(m, os.Stdout)
	if !*flagNoShow && display.HasWindows() {
		predictor.WithShow(show)
	}
	predictor.Run(classifier.ResolveImagePaths(flag.Args()))
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprint(w, usage)
}

// show displays the image with its diagnosis, colored by the result.
func show(img image.Image, r classifier.Result) error {
	titleColor := display.OK
	if r.Diagnosis == classifier.Pneumonia {
		titleColor = display.Alert
	}
	display.Show(filepath.Base(r.Path), img, r.Title(), titleColor)
	return nil
}

// reorderArgs moves the flags in args before the positional arguments, since the flag package stops parsing at the
// first positional one. Values of non-boolean flags given as a separate argument stay attached to their flag.
// Everything after "--" is kept positional, and the result always ends the flags with "--".
func reorderArgs(fs *flag.FlagSet, args []string) []string {
	var flags, positional []string
	for ii := 0; ii < len(args); ii++ {
		arg := args[ii]
		if arg == "--" {
			positional = append(positional, args[ii+1:]...)
			break
		}
		if len(arg) < 2 || arg[0] != '-' {
			positional = append(positional, arg)
			continue
		}
		flags = append(flags, arg)
		name := strings.TrimLeft(arg, "-")
		if strings.Contains(name, "=") {
			continue
		}
		f := fs.Lookup(name)
		if f == nil || isBoolFlag(f) {
			continue
		}
		if ii+1 < len(args) {
			ii++
			flags = append(flags, args[ii])
		}
	}
	flags = append(flags, "--")
	return append(flags, positional...)
}

func isBoolFlag(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}
