// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package training

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gomlx/chestxray/pkg/config"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// RunInfoFile is the name of the file written along the final model describing the training run.
const RunInfoFile = "run.yaml"

// RunInfo describes a training run: its configuration and results.
type RunInfo struct {
	ID       string         `yaml:"id"`
	Finished time.Time      `yaml:"finished"`
	Config   *config.Config `yaml:"config"`
	History  *History       `yaml:"history"`
	Test     EvalResult     `yaml:"test"`
}

// NewRunInfo returns a RunInfo with a new random ID.
func NewRunInfo(cfg *config.Config, history *History, test EvalResult) *RunInfo {
	return &RunInfo{
		ID:       uuid.NewString(),
		Finished: time.Now(),
		Config:   cfg,
		History:  history,
		Test:     test,
	}
}

// Save writes the run information as YAML into dir/RunInfoFile.
func (ri *RunInfo) Save(dir string) error {
	contents, err := yaml.Marshal(ri)
	if err != nil {
		return errors.Wrap(err, "encoding run information")
	}
	filePath := filepath.Join(dir, RunInfoFile)
	return errors.Wrapf(os.WriteFile(filePath, contents, 0644), "writing run information to %q", filePath)
}

// LoadRunInfo reads the run information saved in dir.
func LoadRunInfo(dir string) (*RunInfo, error) {
	filePath := filepath.Join(dir, RunInfoFile)
	contents, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading run information from %q", filePath)
	}
	ri := &RunInfo{}
	if err = yaml.Unmarshal(contents, ri); err != nil {
		return nil, errors.Wrapf(err, "parsing run information in %q", filePath)
	}
	return ri, nil
}
