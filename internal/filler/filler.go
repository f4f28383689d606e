// Package filler initialises parameter blobs.
package filler

import (
	"fmt"
	"math"

	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
	"github.com/born-ml/brew/internal/engine"
	"gonum.org/v1/gonum/stat/distuv"
)

// Filler writes initial values into a blob's data.
type Filler[T blob.Float] interface {
	Fill(b *blob.Blob[T])
}

// New returns the filler described by p.
func New[T blob.Float](p config.FillerParameter) (Filler[T], error) {
	p = p.Defaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch p.Type {
	case config.FillerConstant:
		return constant[T]{value: T(p.Value)}, nil
	case config.FillerUniform:
		return uniform[T]{min: p.Min, max: p.Max}, nil
	case config.FillerGaussian:
		return gaussian[T]{mean: p.Mean, std: p.Std}, nil
	case config.FillerXavier:
		return xavier[T]{}, nil
	default:
		return nil, fmt.Errorf("filler: unknown type %q", p.Type)
	}
}

type constant[T blob.Float] struct {
	value T
}

func (f constant[T]) Fill(b *blob.Blob[T]) {
	data := b.MutableCPUData()
	for i := range data {
		data[i] = f.value
	}
}

type uniform[T blob.Float] struct {
	min, max float64
}

func (f uniform[T]) Fill(b *blob.Blob[T]) {
	fillFrom(b, distuv.Uniform{Min: f.min, Max: f.max, Src: engine.NewSource()})
}

type gaussian[T blob.Float] struct {
	mean, std float64
}

func (f gaussian[T]) Fill(b *blob.Blob[T]) {
	if f.std == 0 {
		constant[T]{value: T(f.mean)}.Fill(b)
		return
	}
	fillFrom(b, distuv.Normal{Mu: f.mean, Sigma: f.std, Src: engine.NewSource()})
}

// xavier draws from U(-sqrt(3/fanIn), sqrt(3/fanIn)) with fanIn = count/num,
// which keeps the activation variance roughly constant across layers.
type xavier[T blob.Float] struct{}

func (xavier[T]) Fill(b *blob.Blob[T]) {
	fanIn := b.Count() / b.Num()
	scale := math.Sqrt(3 / float64(fanIn))
	fillFrom(b, distuv.Uniform{Min: -scale, Max: scale, Src: engine.NewSource()})
}

type sampler interface {
	Rand() float64
}

func fillFrom[T blob.Float](b *blob.Blob[T], dist sampler) {
	data := b.MutableCPUData()
	for i := range data {
		data[i] = T(dist.Rand())
	}
}
