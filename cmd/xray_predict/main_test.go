// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"flag"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReorderArgs(t *testing.T) {
	newFlagSet := func() (*flag.FlagSet, *string, *bool) {
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		return fs, fs.String("model", "best_model", ""), fs.Bool("no-show", false, "")
	}

	testCases := []struct {
		args       []string
		model      string
		noShow     bool
		positional []string
	}{
		{[]string{"a.jpg"}, "best_model", false, []string{"a.jpg"}},
		{[]string{"a.jpg", "--model", "m.onnx", "b.png"}, "m.onnx", false, []string{"a.jpg", "b.png"}},
		{[]string{"dir/", "--no-show", "--model=final"}, "final", true, []string{"dir/"}},
		{[]string{"-no-show", "x.png", "-model", "ckpt", "y.png"}, "ckpt", true, []string{"x.png", "y.png"}},
		{[]string{"a.jpg", "--", "--model"}, "best_model", false, []string{"a.jpg", "--model"}},
		{[]string{"-", "a.jpg"}, "best_model", false, []string{"-", "a.jpg"}},
	}
	for _, tc := range testCases {
		fs, model, noShow := newFlagSet()
		require.NoError(t, fs.Parse(reorderArgs(fs, tc.args)), "args=%q", tc.args)
		assert.Equal(t, tc.model, *model, "args=%q", tc.args)
		assert.Equal(t, tc.noShow, *noShow, "args=%q", tc.args)
		assert.Equal(t, tc.positional, fs.Args(), "args=%q", tc.args)
	}
}

func TestUsage(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)
	assert.Contains(t, buf.String(), "Chest X-Ray Pneumonia Prediction\n")
	assert.Contains(t, buf.String(), "--model PATH")
	assert.Contains(t, buf.String(), "--no-show")
}
