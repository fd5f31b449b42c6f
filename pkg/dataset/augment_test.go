// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"image"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gradientImage has red increasing along x and green along y.
func gradientImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			offset := y*img.Stride + x*4
			img.Pix[offset] = uint8(x * 10)
			img.Pix[offset+1] = uint8(y * 10)
			img.Pix[offset+2] = 50
			img.Pix[offset+3] = 255
		}
	}
	return img
}

func TestTransformIdentity(t *testing.T) {
	img := gradientImage(7, 5)
	out := Transform{ZoomX: 1, ZoomY: 1}.Apply(img)
	assert.Equal(t, img.Pix, out.Pix)
}

func TestTransformFlip(t *testing.T) {
	img := gradientImage(7, 5)
	out := Transform{ZoomX: 1, ZoomY: 1, Flip: true}.Apply(img)
	for y := range 5 {
		for x := range 7 {
			assert.Equal(t, img.NRGBAAt(6-x, y), out.NRGBAAt(x, y))
		}
	}
}

func TestTransformShiftFillsNearest(t *testing.T) {
	img := gradientImage(10, 10)
	// Sampling 3 pixels to the right: the right border repeats the last column.
	out := Transform{ZoomX: 1, ZoomY: 1, ShiftX: 3}.Apply(img)
	assert.Equal(t, img.NRGBAAt(3, 4), out.NRGBAAt(0, 4))
	assert.Equal(t, img.NRGBAAt(9, 4), out.NRGBAAt(8, 4))
	assert.Equal(t, img.NRGBAAt(9, 4), out.NRGBAAt(9, 4))
}

func TestTransformRotation180(t *testing.T) {
	img := gradientImage(9, 9)
	out := Transform{ZoomX: 1, ZoomY: 1, Theta: math.Pi}.Apply(img)
	for y := range 9 {
		for x := range 9 {
			assert.Equal(t, img.NRGBAAt(8-x, 8-y), out.NRGBAAt(x, y))
		}
	}
}

func TestAugmentationRandomRanges(t *testing.T) {
	aug := DefaultAugmentation
	rng := rand.New(rand.NewSource(1))
	sawFlip, sawNoFlip := false, false
	for range 200 {
		tr := aug.Random(rng, 150, 150)
		require.LessOrEqual(t, math.Abs(tr.Theta), 15*math.Pi/180)
		require.LessOrEqual(t, math.Abs(tr.ShiftX), 15.0)
		require.LessOrEqual(t, math.Abs(tr.ShiftY), 15.0)
		require.LessOrEqual(t, math.Abs(tr.Shear), 0.1*math.Pi/180)
		require.InDelta(t, 1.0, tr.ZoomX, 0.1)
		require.InDelta(t, 1.0, tr.ZoomY, 0.1)
		if tr.Flip {
			sawFlip = true
		} else {
			sawNoFlip = true
		}
	}
	assert.True(t, sawFlip)
	assert.True(t, sawNoFlip)
}

func TestAugmentationValidate(t *testing.T) {
	aug := DefaultAugmentation
	require.NoError(t, aug.Validate())
	aug.ZoomRange = 1.5
	require.Error(t, aug.Validate())
	aug = DefaultAugmentation
	aug.RotationRange = -1
	require.Error(t, aug.Validate())
	assert.True(t, (&Augmentation{}).IsIdentity())
	assert.False(t, DefaultAugmentation.IsIdentity())
}
