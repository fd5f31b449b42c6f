// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// xray_inspect reports on a model directory saved by xray_train: its size, variables, hyperparameters and,
// for the final model, the training run that produced it.
//
//	xray_inspect -vars -history xray_pneumonia_model
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gomlx/chestxray/pkg/model"
	"github.com/gomlx/chestxray/pkg/report"
	"github.com/gomlx/chestxray/pkg/training"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagScope = flag.String("scope", context.RootScope+model.Scope,
		"Scope of the variables considered in the summary and variables reports. "+
			"Optimizer variables are stored under the same scope.")
	flagSummary = flag.Bool("summary", true, "Display a summary of the model size and training run.")
	flagParams  = flag.Bool("params", false, "List the hyperparameters.")
	flagVars    = flag.Bool("vars", false, "List the variables under -scope.")
	flagHistory = flag.Bool("history", false,
		fmt.Sprintf("List the per-epoch metrics, read from %q (only saved with the final model).", training.RunInfoFile))
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	args := flag.Args()
	if len(args) != 1 {
		klog.Errorf("Expected exactly one model directory to inspect. See 'xray_inspect -help'.")
		os.Exit(1)
	}
	inspect(args[0])
}

func inspect(modelDir string) {
	ctx := context.New()
	_ = must.M1(checkpoints.Load(ctx).Dir(modelDir).Immediate().Done())
	scopedCtx := ctx.InAbsPath(*flagScope)

	info, err := training.LoadRunInfo(modelDir)
	if err != nil {
		klog.V(1).Infof("No run information: %v", err)
		info = nil
	}

	if *flagSummary {
		fmt.Println(report.TitleStyle.Render("Summary"))
		fmt.Println(report.ModelSummaryTable(modelDir, scopedCtx))
		if info != nil {
			fmt.Println(report.RunTable(info))
		}
	}
	if *flagParams {
		fmt.Println(report.TitleStyle.Render("Hyperparameters"))
		fmt.Println(report.ParamsTable(ctx))
	}
	if *flagVars {
		fmt.Println(report.TitleStyle.Render("Variables"))
		fmt.Println(report.VariablesTable(scopedCtx))
	}
	if *flagHistory {
		if info == nil || info.History == nil {
			klog.Errorf("No training history in %q: only the final model directory has %s.",
				modelDir, training.RunInfoFile)
			os.Exit(1)
		}
		fmt.Println(report.TitleStyle.Render("History"))
		fmt.Println(report.HistoryTable(info.History))
	}
}
