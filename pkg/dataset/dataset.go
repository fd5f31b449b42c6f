// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dataset reads labeled chest X-ray images from a directory tree and yields them as batches for training
// and evaluation.
//
// The expected layout is `<base>/{train,val,test}/<class>/<image files>`. Classes are labeled by the lexical order
// of their directory names, so for the "NORMAL" and "PNEUMONIA" directories NORMAL=0 and PNEUMONIA=1.
package dataset

import (
	"image"
	"io"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
)

// Names of the standard splits under the base data directory.
const (
	TrainSplit      = "train"
	ValidationSplit = "val"
	TestSplit       = "test"
)

// Sample is one labeled image file.
type Sample struct {
	Path  string
	Label int
}

// Split lists the labeled image files of one directory, with one subdirectory per class.
type Split struct {
	Dir     string
	Classes []string
	Samples []Sample
}

// Scan lists the class subdirectories of dir (sorted lexically, which defines their labels) and the image files
// in each of them (sorted by name).
//
// It returns an error wrapping fs.ErrNotExist if dir doesn't exist. It also fails if the number of classes is not
// exactly numClasses (if numClasses > 0) or if no images are found.
func Scan(dir string, numClasses int) (*Split, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "dataset directory %q", dir)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("dataset path %q is not a directory", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "listing dataset directory %q", dir)
	}
	split := &Split{Dir: dir}
	for _, entry := range entries {
		if entry.IsDir() {
			split.Classes = append(split.Classes, entry.Name())
		}
	}
	sort.Strings(split.Classes)
	if numClasses > 0 && len(split.Classes) != numClasses {
		return nil, errors.Errorf("dataset directory %q has %d class subdirectories %q, wanted %d",
			dir, len(split.Classes), split.Classes, numClasses)
	}
	for label, class := range split.Classes {
		classDir := filepath.Join(dir, class)
		files, err := os.ReadDir(classDir)
		if err != nil {
			return nil, errors.Wrapf(err, "listing class directory %q", classDir)
		}
		for _, file := range files {
			if file.IsDir() || !IsImageFile(file.Name()) {
				continue
			}
			split.Samples = append(split.Samples, Sample{Path: filepath.Join(classDir, file.Name()), Label: label})
		}
	}
	if len(split.Samples) == 0 {
		return nil, errors.Errorf("no images found under %q", dir)
	}
	return split, nil
}

// CountPerClass returns the number of samples of each class.
func (s *Split) CountPerClass() []int {
	counts := make([]int, len(s.Classes))
	for _, sample := range s.Samples {
		counts[sample.Label]++
	}
	return counts
}

// IsMissing returns whether err (as returned by Scan) was caused by a missing directory.
func IsMissing(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// Options of a Dataset.
type Options struct {
	// BatchSize is the number of examples per Yield. The last batch of an epoch may be smaller.
	BatchSize int

	// ImageSize is the height and width of the images yielded.
	ImageSize int

	// Shuffle the order of the examples at every Reset.
	Shuffle bool

	// Augment, if not nil, randomly transforms every example every time it is yielded.
	Augment *Augmentation

	// Seed for shuffling and augmentation: the same seed yields the same stream.
	Seed int64

	// DType of the images and labels tensors. Defaults to Float32.
	DType dtypes.DType
}

// Dataset implements train.Dataset over a Split, so it can be used by a train.Loop to train or evaluate.
//
// It is safe for concurrent use, so it can be wrapped with datasets.CustomParallel.
type Dataset struct {
	name, shortName string
	split           *Split
	opts            Options

	// mu protects rng, order and next.
	mu    sync.Mutex
	rng   *rand.Rand
	order []int
	next  int
}

var _ train.Dataset = (*Dataset)(nil)

// New creates a Dataset over split. The dataset is ready to use: it starts with a Reset.
func New(name string, split *Split, opts Options) (*Dataset, error) {
	if opts.BatchSize <= 0 {
		return nil, errors.Errorf("dataset %q: batch size must be > 0, got %d", name, opts.BatchSize)
	}
	if opts.ImageSize <= 0 {
		opts.ImageSize = DefaultImageSize
	}
	if opts.DType == dtypes.InvalidDType {
		opts.DType = dtypes.Float32
	}
	if opts.Augment != nil {
		if err := opts.Augment.Validate(); err != nil {
			return nil, errors.WithMessagef(err, "dataset %q", name)
		}
	}
	ds := &Dataset{
		name:      name,
		shortName: name,
		split:     split,
		opts:      opts,
		rng:       rand.New(rand.NewSource(opts.Seed)),
		order:     make([]int, len(split.Samples)),
	}
	for ii := range ds.order {
		ds.order[ii] = ii
	}
	ds.Reset()
	return ds, nil
}

// Load scans dir and creates a Dataset over it, see Scan and New.
func Load(name, dir string, opts Options) (*Dataset, error) {
	split, err := Scan(dir, 2)
	if err != nil {
		return nil, err
	}
	return New(name, split, opts)
}

// Name implements train.Dataset.
func (ds *Dataset) Name() string { return ds.name }

// ShortName implements train.HasShortName.
func (ds *Dataset) ShortName() string { return ds.shortName }

// WithShortName sets the short name used in metrics reporting. It returns itself.
func (ds *Dataset) WithShortName(shortName string) *Dataset {
	ds.shortName = shortName
	return ds
}

// Split returns the underlying list of samples.
func (ds *Dataset) Split() *Split { return ds.split }

// Len returns the number of examples in one epoch.
func (ds *Dataset) Len() int { return len(ds.split.Samples) }

// NumBatches returns the number of Yield calls in one epoch.
func (ds *Dataset) NumBatches() int {
	return (ds.Len() + ds.opts.BatchSize - 1) / ds.opts.BatchSize
}

// Labels returns the labels of the examples in the order they are yielded in the current epoch.
//
// For datasets without Shuffle this is always the order of the Split samples.
func (ds *Dataset) Labels() []int {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	labels := make([]int, len(ds.order))
	for ii, sampleIdx := range ds.order {
		labels[ii] = ds.split.Samples[sampleIdx].Label
	}
	return labels
}

// Reset implements train.Dataset. It restarts the epoch, reshuffling the examples if Options.Shuffle is set.
func (ds *Dataset) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.next = 0
	if ds.opts.Shuffle {
		ds.rng.Shuffle(len(ds.order), func(i, j int) {
			ds.order[i], ds.order[j] = ds.order[j], ds.order[i]
		})
	}
}

// nextBatch selects the samples of the next batch, and a seed for the augmentation of each.
func (ds *Dataset) nextBatch() (samples []Sample, seeds []int64, err error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.next >= len(ds.order) {
		return nil, nil, io.EOF
	}
	end := min(ds.next+ds.opts.BatchSize, len(ds.order))
	samples = make([]Sample, 0, end-ds.next)
	for _, sampleIdx := range ds.order[ds.next:end] {
		samples = append(samples, ds.split.Samples[sampleIdx])
	}
	if ds.opts.Augment != nil {
		seeds = make([]int64, len(samples))
		for ii := range seeds {
			seeds[ii] = ds.rng.Int63()
		}
	}
	ds.next = end
	return
}

// YieldImages returns the next batch as preprocessed (and possibly augmented) images, along with their labels.
// It returns io.EOF at the end of the epoch.
func (ds *Dataset) YieldImages() (images []image.Image, labels []int, err error) {
	samples, seeds, err := ds.nextBatch()
	if err != nil {
		return nil, nil, err
	}
	images = make([]image.Image, len(samples))
	labels = make([]int, len(samples))
	for ii, sample := range samples {
		img, err := LoadAndPreprocess(sample.Path, ds.opts.ImageSize)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "dataset %q", ds.name)
		}
		if seeds != nil {
			img = ds.opts.Augment.Augment(rand.New(rand.NewSource(seeds[ii])), img)
		}
		images[ii] = img
		labels[ii] = sample.Label
	}
	return images, labels, nil
}

// Yield implements train.Dataset. It returns:
//
//   - spec: not used, left as nil.
//   - inputs: the images batch shaped `[batch_size, image_size, image_size, 3]`, with values in [0, 1].
//   - labels: the binary labels shaped `[batch_size, 1]`.
func (ds *Dataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	var images []image.Image
	var intLabels []int
	images, intLabels, err = ds.YieldImages()
	if err != nil {
		return
	}
	imagesT, err := ToTensor(ds.opts.DType, images...)
	if err != nil {
		return
	}
	inputs = []*tensors.Tensor{imagesT}
	labels = []*tensors.Tensor{LabelsToTensor(ds.opts.DType, intLabels)}
	return
}

// LabelsToTensor converts binary labels to a tensor shaped `[len(labels), 1]` of the given dtype.
func LabelsToTensor(dtype dtypes.DType, labels []int) *tensors.Tensor {
	values := make([][]int, len(labels))
	for ii, label := range labels {
		values[ii] = []int{label}
	}
	return tensors.FromAnyValue(shapes.CastAsDType(values, dtype))
}
