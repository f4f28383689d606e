package layers

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
	"github.com/born-ml/brew/internal/data"
	"github.com/born-ml/brew/internal/engine"
	log "github.com/sirupsen/logrus"
)

// batch is one prefetched minibatch.
type batch[T blob.Float] struct {
	data      []T
	labels    []T
	filenames []string
	err       error
}

// Data is a source layer reading Datum records from a store. A producer
// goroutine fills the next batch once Forward has handed the previous one
// back, so at most one batch is read ahead.
type Data[T blob.Float] struct {
	base[T]

	store  *data.Store
	cursor *data.Cursor
	rng    *rand.Rand

	// datum geometry and the cropped output geometry
	channels, height, width int
	outHeight, outWidth     int
	withLabels              bool
	mean                    []T

	// class-balanced sampling state, nil unless ImagesPerClass > 0
	classKeys [][]string
	classPos  []int

	full      chan *batch[T]
	free      chan *batch[T]
	quit      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    bool
	read      atomic.Int64

	filenames []string
}

// NewData creates a data layer.
func NewData[T blob.Float](p config.LayerParameter) *Data[T] {
	return &Data[T]{base: newBase[T](p)}
}

func (l *Data[T]) SetUp(bottom, top []*blob.Blob[T]) error {
	if err := l.expect(bottom, top, 0, 0, 1, 2); err != nil {
		return err
	}
	p := l.param

	store, err := data.Open(p.Source)
	if err != nil {
		return l.errorf(ErrInvalidParam, "%v", err)
	}
	if store.Len() == 0 {
		return l.errorf(ErrInvalidParam, "source %s is empty", p.Source)
	}
	l.store = store
	l.cursor = store.Cursor()
	l.rng = rand.New(engine.NewSource())

	if p.RandSkip > 0 {
		skip := l.rng.IntN(p.RandSkip)
		log.WithFields(log.Fields{"layer": p.Name, "records": skip}).Info("skipping data points")
		l.cursor.Skip(skip)
	}

	first, err := store.Get(store.Keys()[0])
	if err != nil {
		return l.errorf(ErrInvalidParam, "%v", err)
	}
	l.channels, l.height, l.width = int(first.Channels), int(first.Height), int(first.Width)
	l.outHeight, l.outWidth = l.height, l.width
	if p.CropSize > 0 {
		if p.CropSize > l.height || p.CropSize > l.width {
			return l.errorf(ErrShapeMismatch, "crop %d larger than datum %dx%d", p.CropSize, l.height, l.width)
		}
		l.outHeight, l.outWidth = p.CropSize, p.CropSize
	}

	if p.MeanFile != "" {
		mean, err := data.LoadBlob[T](p.MeanFile)
		if err != nil {
			return l.errorf(ErrInvalidParam, "mean file: %v", err)
		}
		if mean.Count() != first.Size() {
			return l.errorf(ErrShapeMismatch, "mean %s does not match datum %dx%dx%d",
				mean.ShapeString(), l.channels, l.height, l.width)
		}
		l.mean = mean.CPUData()
	}

	if p.ImagesPerClass > 0 {
		if err := l.indexClasses(); err != nil {
			return err
		}
	}

	top[0].Reshape(p.BatchSize, l.channels, l.outHeight, l.outWidth)
	l.withLabels = len(top) > 1
	if l.withLabels {
		top[1].Reshape(p.BatchSize, 1, 1, 1)
	}
	log.WithFields(log.Fields{
		"layer":   p.Name,
		"source":  store.Path(),
		"records": store.Len(),
	}).Infof("output data size %s", top[0].ShapeString())

	l.start(top[0].Count())
	return l.done(bottom, top)
}

// indexClasses groups the store keys by label for class-balanced batches.
func (l *Data[T]) indexClasses() error {
	byLabel := make(map[int32][]string)
	for _, key := range l.store.Keys() {
		d, err := l.store.Get(key)
		if err != nil {
			return l.errorf(ErrInvalidParam, "%v", err)
		}
		byLabel[d.Label] = append(byLabel[d.Label], key)
	}
	labels := make([]int32, 0, len(byLabel))
	for label := range byLabel {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	perRound := len(labels) * l.param.ImagesPerClass
	if l.param.BatchSize%perRound != 0 {
		return l.errorf(ErrInvalidParam, "batch size %d not divisible by %d classes × %d images",
			l.param.BatchSize, len(labels), l.param.ImagesPerClass)
	}
	l.classKeys = make([][]string, len(labels))
	for i, label := range labels {
		l.classKeys[i] = byLabel[label]
	}
	l.classPos = make([]int, len(labels))
	log.WithFields(log.Fields{"layer": l.param.Name, "classes": len(labels)}).Debug("class-balanced sampling")
	return nil
}

func (l *Data[T]) start(count int) {
	l.full = make(chan *batch[T], 1)
	l.free = make(chan *batch[T], 1)
	l.quit = make(chan struct{})
	b := &batch[T]{
		data:      make([]T, count),
		filenames: make([]string, l.param.BatchSize),
	}
	if l.withLabels {
		b.labels = make([]T, l.param.BatchSize)
	}
	l.free <- b
	l.wg.Add(1)
	go l.prefetch()
}

func (l *Data[T]) prefetch() {
	defer l.wg.Done()
	for {
		select {
		case b := <-l.free:
			l.fill(b)
			select {
			case l.full <- b:
			case <-l.quit:
				return
			}
		case <-l.quit:
			return
		}
	}
}

// next returns the record for position i of a batch.
func (l *Data[T]) next(i int) (*data.Datum, error) {
	if l.classKeys == nil {
		_, d, err := l.cursor.Next()
		return d, err
	}
	class := (i / l.param.ImagesPerClass) % len(l.classKeys)
	keys := l.classKeys[class]
	key := keys[l.classPos[class]%len(keys)]
	l.classPos[class]++
	return l.store.Get(key)
}

func (l *Data[T]) fill(b *batch[T]) {
	b.err = nil
	train := engine.CurrentPhase() == engine.Train
	size := l.channels * l.outHeight * l.outWidth
	for i := 0; i < l.param.BatchSize; i++ {
		d, err := l.next(i)
		if err != nil {
			b.err = err
			return
		}
		if int(d.Channels) != l.channels || int(d.Height) != l.height || int(d.Width) != l.width {
			b.err = fmt.Errorf("datum %q is %dx%dx%d, want %dx%dx%d", d.Filename,
				d.Channels, d.Height, d.Width, l.channels, l.height, l.width)
			return
		}
		l.read.Add(1)
		l.transform(d, train, b.data[i*size:(i+1)*size])
		if b.labels != nil {
			b.labels[i] = T(d.Label)
		}
		b.filenames[i] = d.Filename
	}
}

// transform crops, mirrors, subtracts the mean and scales one datum into out.
func (l *Data[T]) transform(d *data.Datum, train bool, out []T) {
	hOff, wOff := 0, 0
	if l.param.CropSize > 0 {
		if train {
			hOff = l.rng.IntN(l.height - l.outHeight + 1)
			wOff = l.rng.IntN(l.width - l.outWidth + 1)
		} else {
			hOff = (l.height - l.outHeight) / 2
			wOff = (l.width - l.outWidth) / 2
		}
	}
	mirror := train && l.param.Mirror && l.rng.IntN(2) == 1
	scale := l.param.Scale

	for c := 0; c < l.channels; c++ {
		for h := 0; h < l.outHeight; h++ {
			for w := 0; w < l.outWidth; w++ {
				src := (c*l.height+h+hOff)*l.width + w + wOff
				dw := w
				if mirror {
					dw = l.outWidth - 1 - w
				}
				v := d.Value(src)
				if l.mean != nil {
					v -= float64(l.mean[src])
				}
				out[(c*l.outHeight+h)*l.outWidth+dw] = T(v * scale)
			}
		}
	}
}

// DataCount returns the number of records in the source.
func (l *Data[T]) DataCount() int {
	if l.store == nil {
		return 0
	}
	return l.store.Len()
}

// Filenames returns the filenames of the records in the last batch.
func (l *Data[T]) Filenames() []string { return l.filenames }

// Close stops the prefetch goroutine. Forward panics afterwards.
func (l *Data[T]) Close() {
	l.closeOnce.Do(func() {
		l.closed = true
		if l.quit != nil {
			close(l.quit)
			l.wg.Wait()
		}
		log.WithFields(log.Fields{"layer": l.Name(), "records": l.read.Load()}).Debug("data source closed")
	})
}

func (l *Data[T]) ForwardCPU(bottom, top []*blob.Blob[T]) {
	if l.closed {
		panic(fmt.Sprintf("layer %q: Forward after Close", l.Name()))
	}
	b := <-l.full
	if b.err != nil {
		panic(fmt.Sprintf("layer %q: reading %s: %v", l.Name(), l.param.Source, b.err))
	}
	copy(top[0].MutableCPUData(), b.data)
	if l.withLabels {
		copy(top[1].MutableCPUData(), b.labels)
	}
	l.filenames = append(l.filenames[:0], b.filenames...)
	l.free <- b
}

// ForwardGPU fills the tops on the host; consumers upload on first device access.
func (l *Data[T]) ForwardGPU(bottom, top []*blob.Blob[T]) {
	l.ForwardCPU(bottom, top)
}

func (l *Data[T]) BackwardCPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	return 0
}

func (l *Data[T]) BackwardGPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	return 0
}
