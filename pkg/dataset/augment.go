// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"image"
	"math"
	"math/rand"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Augmentation configures the random geometric transformations applied to training images.
//
// Ranges are symmetric: a RotationRange of 15 draws angles uniformly from [-15, 15] degrees. Shifts are a
// fraction of the image width/height, ShearRange is an angle in degrees and ZoomRange draws an independent scale
// per axis from [1-ZoomRange, 1+ZoomRange].
type Augmentation struct {
	RotationRange    float64 `yaml:"rotation_range"`
	WidthShiftRange  float64 `yaml:"width_shift_range"`
	HeightShiftRange float64 `yaml:"height_shift_range"`
	ShearRange       float64 `yaml:"shear_range"`
	ZoomRange        float64 `yaml:"zoom_range"`
	HorizontalFlip   bool    `yaml:"horizontal_flip"`
}

// DefaultAugmentation used for training chest X-rays.
var DefaultAugmentation = Augmentation{
	RotationRange:    15,
	WidthShiftRange:  0.1,
	HeightShiftRange: 0.1,
	ShearRange:       0.1,
	ZoomRange:        0.1,
	HorizontalFlip:   true,
}

// Validate returns an error if any of the ranges is out of bounds.
func (a *Augmentation) Validate() error {
	if a.RotationRange < 0 || a.RotationRange > 180 {
		return errors.Errorf("rotation_range must be in [0, 180], got %g", a.RotationRange)
	}
	for _, r := range []struct {
		name  string
		value float64
	}{
		{"width_shift_range", a.WidthShiftRange},
		{"height_shift_range", a.HeightShiftRange},
		{"shear_range", a.ShearRange},
		{"zoom_range", a.ZoomRange},
	} {
		if r.value < 0 || r.value >= 1 {
			return errors.Errorf("%s must be in [0, 1), got %g", r.name, r.value)
		}
	}
	return nil
}

// IsIdentity returns whether the augmentation never changes an image.
func (a *Augmentation) IsIdentity() bool {
	return a.RotationRange == 0 && a.WidthShiftRange == 0 && a.HeightShiftRange == 0 &&
		a.ShearRange == 0 && a.ZoomRange == 0 && !a.HorizontalFlip
}

// Transform is one concrete draw of an Augmentation.
type Transform struct {
	// Theta is the rotation in radians.
	Theta float64
	// ShiftX and ShiftY are in pixels.
	ShiftX, ShiftY float64
	// Shear in radians.
	Shear float64
	// ZoomX, ZoomY are the scales along each axis.
	ZoomX, ZoomY float64
	Flip         bool
}

func uniform(rng *rand.Rand, limit float64) float64 {
	if limit == 0 {
		return 0
	}
	return (2*rng.Float64() - 1) * limit
}

// Random draws a Transform for an image of the given width and height.
func (a *Augmentation) Random(rng *rand.Rand, width, height int) Transform {
	t := Transform{ZoomX: 1, ZoomY: 1}
	t.Theta = uniform(rng, a.RotationRange) * math.Pi / 180
	t.ShiftX = uniform(rng, a.WidthShiftRange) * float64(width)
	t.ShiftY = uniform(rng, a.HeightShiftRange) * float64(height)
	t.Shear = uniform(rng, a.ShearRange) * math.Pi / 180
	if a.ZoomRange > 0 {
		t.ZoomX = 1 + uniform(rng, a.ZoomRange)
		t.ZoomY = 1 + uniform(rng, a.ZoomRange)
	}
	t.Flip = a.HorizontalFlip && rng.Intn(2) == 1
	return t
}

// affine is a 2x3 matrix mapping output (x, y) coordinates to input coordinates.
type affine [2][3]float64

func (m affine) mul(o affine) (r affine) {
	for i := range 2 {
		for j := range 3 {
			r[i][j] = m[i][0]*o[0][j] + m[i][1]*o[1][j]
		}
		r[i][2] += m[i][2]
	}
	return
}

// matrix composes rotation, shift, shear and zoom around the center of a width x height image.
func (t Transform) matrix(width, height int) affine {
	cos, sin := math.Cos(t.Theta), math.Sin(t.Theta)
	rotation := affine{{cos, -sin, 0}, {sin, cos, 0}}
	shift := affine{{1, 0, t.ShiftX}, {0, 1, t.ShiftY}}
	shear := affine{{1, -math.Sin(t.Shear), 0}, {0, math.Cos(t.Shear), 0}}
	zoom := affine{{t.ZoomX, 0, 0}, {0, t.ZoomY, 0}}
	m := rotation.mul(shift).mul(shear).mul(zoom)
	cx, cy := float64(width)/2-0.5, float64(height)/2-0.5
	toCenter := affine{{1, 0, cx}, {0, 1, cy}}
	fromCenter := affine{{1, 0, -cx}, {0, 1, -cy}}
	return toCenter.mul(m).mul(fromCenter)
}

// Apply the transform to img, returning a new image of the same size.
//
// Pixels are sampled with bilinear interpolation; coordinates falling outside the source are clamped to the
// nearest edge pixel. The flip, if any, is applied last.
func (t Transform) Apply(img *image.NRGBA) *image.NRGBA {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	m := t.matrix(width, height)
	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	clamp := func(v, limit int) int {
		if v < 0 {
			return 0
		}
		if v >= limit {
			return limit - 1
		}
		return v
	}
	pixel := func(x, y, c int) float64 {
		x, y = clamp(x, width), clamp(y, height)
		return float64(img.Pix[y*img.Stride+x*4+c])
	}
	for y := range height {
		for x := range width {
			fx := m[0][0]*float64(x) + m[0][1]*float64(y) + m[0][2]
			fy := m[1][0]*float64(x) + m[1][1]*float64(y) + m[1][2]
			x0, y0 := int(math.Floor(fx)), int(math.Floor(fy))
			dx, dy := fx-float64(x0), fy-float64(y0)
			offset := y*out.Stride + x*4
			for c := range 4 {
				v := pixel(x0, y0, c)*(1-dx)*(1-dy) +
					pixel(x0+1, y0, c)*dx*(1-dy) +
					pixel(x0, y0+1, c)*(1-dx)*dy +
					pixel(x0+1, y0+1, c)*dx*dy
				out.Pix[offset+c] = uint8(math.Round(math.Min(math.Max(v, 0), 255)))
			}
		}
	}
	if t.Flip {
		out = imaging.FlipH(out)
	}
	return out
}

// Augment draws a random Transform and applies it to img.
func (a *Augmentation) Augment(rng *rand.Rand, img *image.NRGBA) *image.NRGBA {
	if a.IsIdentity() {
		return img
	}
	bounds := img.Bounds()
	if bounds.Min != (image.Point{}) {
		img = imaging.Clone(img)
	}
	return a.Random(rng, bounds.Dx(), bounds.Dy()).Apply(img)
}
