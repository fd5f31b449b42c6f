// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	timage "github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/pkg/errors"
)

// DefaultImageSize is the height and width images are resized to before being fed to the model.
const DefaultImageSize = 150

// ImageExtensions accepted when listing image files, compared case-insensitively.
var ImageExtensions = []string{".jpg", ".jpeg", ".png"}

// IsImageFile returns whether the file name has one of the ImageExtensions.
func IsImageFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, valid := range ImageExtensions {
		if ext == valid {
			return true
		}
	}
	return false
}

// LoadImage decodes the image file at imagePath. The file is closed before returning.
func LoadImage(imagePath string) (image.Image, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening image %q", imagePath)
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding image %q", imagePath)
	}
	return img, nil
}

// Preprocess converts img to RGB and resizes it to size x size with nearest-neighbor interpolation.
//
// It is deterministic: the same input image always yields the same pixels. Both training and prediction
// go through it, so the model sees images prepared the same way.
func Preprocess(img image.Image, size int) *image.NRGBA {
	bounds := img.Bounds()
	if bounds.Dx() == size && bounds.Dy() == size {
		// imaging.Clone still converts gray/paletted images to NRGBA.
		return imaging.Clone(img)
	}
	return imaging.Resize(img, size, size, imaging.NearestNeighbor)
}

// LoadAndPreprocess is LoadImage followed by Preprocess.
func LoadAndPreprocess(imagePath string, size int) (*image.NRGBA, error) {
	img, err := LoadImage(imagePath)
	if err != nil {
		return nil, err
	}
	return Preprocess(img, size), nil
}

// ToTensor converts images (all with the same size) to a tensor shaped `[batch_size, height, width, 3]`, with
// values rescaled to [0, 1].
func ToTensor(dtype dtypes.DType, images ...image.Image) (*tensors.Tensor, error) {
	if len(images) == 0 {
		return nil, errors.New("no images given to ToTensor")
	}
	size := images[0].Bounds().Size()
	for ii, img := range images[1:] {
		if img.Bounds().Size() != size {
			return nil, errors.Errorf("image #%d has size %v, but image #0 has size %v", ii+1, img.Bounds().Size(), size)
		}
	}
	return timage.ToTensor(dtype).Batch(images), nil
}
