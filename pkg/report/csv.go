// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/gomlx/chestxray/pkg/training"
	"github.com/pkg/errors"
)

// HistoryDataFrame returns the per-epoch metrics as a dataframe, one row per epoch.
func HistoryDataFrame(h *training.History) dataframe.DataFrame {
	return dataframe.LoadStructs(h.Epochs)
}

// WriteHistoryCSV saves the per-epoch metrics of h to filePath.
func WriteHistoryCSV(h *training.History, filePath string) error {
	df := HistoryDataFrame(h)
	if df.Err != nil {
		return errors.Wrap(df.Err, "converting history to dataframe")
	}
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "creating %q", filePath)
	}
	if err = df.WriteCSV(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "writing history to %q", filePath)
	}
	return errors.Wrapf(f.Close(), "closing %q", filePath)
}

// ReadHistoryCSV reads a file written by WriteHistoryCSV.
func ReadHistoryCSV(filePath string) (dataframe.DataFrame, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return dataframe.DataFrame{}, errors.Wrapf(err, "opening %q", filePath)
	}
	defer func() { _ = f.Close() }()
	df := dataframe.ReadCSV(f)
	return df, errors.Wrapf(df.Err, "parsing %q", filePath)
}
