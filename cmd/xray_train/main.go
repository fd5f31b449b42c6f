// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// xray_train trains the chest X-ray pneumonia classifier.
//
// It reads the images from <data>/{train,val,test}/{NORMAL,PNEUMONIA}, trains for up to the configured number of
// epochs, and writes the best model (by validation accuracy), the final model, the training history (plot and CSV)
// and a plot with sample test predictions.
//
// Hyperparameters can be given in a YAML file (-config) and overridden with -set, e.g.:
//
//	xray_train -data ~/data/chest_xray -set "num_epochs=20;batch_size=16"
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gomlx/chestxray/pkg/config"
	"github.com/gomlx/chestxray/pkg/dataset"
	"github.com/gomlx/chestxray/pkg/model"
	"github.com/gomlx/chestxray/pkg/report"
	"github.com/gomlx/chestxray/pkg/training"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagConfig    = flag.String("config", "", "YAML file with the training configuration. If empty, defaults are used.")
	flagDataDir   = flag.String("data", "", "Directory with the train, val and test splits. Overrides the configuration.")
	flagOutputDir = flag.String("out", "", "Directory where models and plots are written. Overrides the configuration.")
	flagSeed      = flag.Int64("seed", 0, "Random seed for initialization, shuffling and augmentation. Overrides the configuration.")
	flagPlots     = flag.Bool("plots", true, "Save the training history and sample predictions plots.")
	flagProgress  = flag.Bool("progress", true, "Display a progress bar during training.")
)

func main() {
	// The -set flag lists the hyperparameters in its help, so the context is created with the defaults.
	ctx := config.Default().CreateContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		klog.Fatalf("Invalid configuration: %+v", err)
	}
	cfg.ApplyToContext(ctx)
	if _, err = commandline.ParseContextSettings(ctx, *settings); err != nil {
		klog.Fatalf("Failed to parse -set=%q: %+v", *settings, err)
	}
	cfg = cfg.FromContext(ctx)
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data":
			cfg.DataDir = *flagDataDir
		case "out":
			cfg.OutputDir = *flagOutputDir
		case "seed":
			cfg.Seed = *flagSeed
		}
	})
	cfg.DataDir = must.M1(fsutil.ReplaceTildeInDir(cfg.DataDir))
	cfg.OutputDir = must.M1(fsutil.ReplaceTildeInDir(cfg.OutputDir))
	cfg.ApplyToContext(ctx)
	if err = cfg.Validate(); err != nil {
		klog.Fatalf("Invalid configuration: %+v", err)
	}
	if err = os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		klog.Fatalf("Failed to create output directory %q: %v", cfg.OutputDir, err)
	}
	klog.V(1).Infof("Hyperparameters: %s", commandline.SprintContextSettings(ctx))

	if err = run(ctx, cfg); err != nil {
		klog.Fatalf("Training failed: %+v", err)
	}
}

// loadDatasets loads the three splits. It exits if any of the directories is missing.
func loadDatasets(cfg *config.Config) (trainData, valData, testData *dataset.Dataset) {
	load := func(split, shortName string, opts dataset.Options) *dataset.Dataset {
		opts.ImageSize = cfg.ImageSize
		ds, err := dataset.Load(split, cfg.SplitDir(split), opts)
		if err != nil {
			if dataset.IsMissing(err) {
				klog.Fatalf("Dataset directory for split %q not found, expected %s/{NORMAL,PNEUMONIA}: %v",
					split, cfg.SplitDir(split), err)
			}
			klog.Fatalf("Failed to load split %q: %+v", split, err)
		}
		counts := ds.Split().CountPerClass()
		fmt.Printf("Found %d images belonging to %d classes %v (%s): %v\n",
			ds.Len(), len(counts), ds.Split().Classes, split, counts)
		return ds.WithShortName(shortName)
	}
	trainData = load(dataset.TrainSplit, "train", dataset.Options{
		BatchSize: cfg.BatchSize,
		Shuffle:   true,
		Augment:   &cfg.Augment,
		Seed:      cfg.Seed,
	})
	valData = load(dataset.ValidationSplit, "val", dataset.Options{BatchSize: cfg.EvalBatchSize})
	testData = load(dataset.TestSplit, "test", dataset.Options{BatchSize: cfg.EvalBatchSize})
	return
}

func run(ctx *context.Context, cfg *config.Config) error {
	trainData, valData, testData := loadDatasets(cfg)
	var trainDS train.Dataset = trainData
	if cfg.ParallelLoading {
		trainDS = datasets.CustomParallel(trainData).Buffer(4).Start()
	}

	summaries, err := model.Summarize(model.XRayTopology, cfg.ImageSize, 3)
	if err != nil {
		return err
	}
	fmt.Println(report.SummaryTable(summaries))

	backend, err := backends.New()
	if err != nil {
		return err
	}
	klog.Infof("Backend %q: %s", backend.Name(), backend.Description())

	controller, err := training.NewController(backend, ctx, cfg)
	if err != nil {
		return err
	}
	if *flagProgress {
		controller.WithProgressBar()
	}
	start := time.Now()
	history, err := controller.Fit(trainDS, valData)
	if err != nil {
		return err
	}
	klog.Infof("Training finished: %d epochs in %s", history.Len(), time.Since(start).Round(time.Second))
	fmt.Println(report.HistoryTable(history))

	testResult, probs, err := controller.Test(testData)
	if err != nil {
		return err
	}
	fmt.Println(report.EvalTable([]string{"Test"}, []training.EvalResult{testResult}))

	if *flagPlots {
		if err = report.PlotHistory(history, cfg.Path(cfg.HistoryPlot)); err != nil {
			return err
		}
		if err = plotSamples(cfg, testData, probs); err != nil {
			return err
		}
	}
	if err = report.WriteHistoryCSV(history, cfg.Path(cfg.HistoryCSV)); err != nil {
		return err
	}

	finalDir := cfg.Path(cfg.FinalModelDir)
	if err = controller.SaveFinal(); err != nil {
		return err
	}
	info := training.NewRunInfo(cfg, history, testResult)
	if err = info.Save(finalDir); err != nil {
		return err
	}
	fmt.Printf("\nModel saved to %q (run %s), best model in %q.\n", finalDir, info.ID, cfg.Path(cfg.BestModelDir))
	return nil
}

// plotSamples plots the first test images with their predictions. testData is not shuffled, so probs are in the
// same order as the images yielded.
func plotSamples(cfg *config.Config, testData *dataset.Dataset, probs []float64) error {
	testData.Reset()
	images, labels, err := testData.YieldImages()
	if err != nil {
		return err
	}
	n := min(cfg.NumSamples, len(images))
	return report.PlotSamples(images[:n], labels[:n], probs[:n], cfg.Path(cfg.SamplePlot))
}
