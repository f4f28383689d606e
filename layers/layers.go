// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package layers provides the computation layers and their two-pass protocol.
//
// A layer is built from a LayerParameter, set up once against its bottom and
// top blobs, then run forward and backward:
//
//	p := layers.NewParameter("ip1", layers.TypeInnerProduct)
//	p.NumOutput = 10
//	l, err := layers.New[float32](p)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	top := []*blob.Blob[float32]{blob.New[float32]()}
//	if err := l.SetUp(bottom, top); err != nil {
//	    log.Fatal(err)
//	}
//	layers.Forward(l, bottom, top)
//	loss := layers.Backward(l, top, []bool{true}, bottom)
//
// Backward overwrites the diff of each bottom whose flag is set and adds into
// the diff of the parameter blobs.
package layers

import (
	"github.com/born-ml/brew/blob"
	"github.com/born-ml/brew/internal/config"
	"github.com/born-ml/brew/internal/layers"
)

// Layer is the capability set shared by every layer.
type Layer[T blob.Float] = layers.Layer[T]

// Option configures a layer at construction.
type Option = layers.Option

// IterationSource reports the current training iteration.
type IterationSource = layers.IterationSource

// Configuration types.
type (
	LayerParameter  = config.LayerParameter
	FillerParameter = config.FillerParameter
	LayerType       = config.LayerType
	PoolMethod      = config.PoolMethod
	NormRegion      = config.NormRegion
)

// Layer types.
const (
	TypeAccuracy                = config.TypeAccuracy
	TypeBNLL                    = config.TypeBNLL
	TypeConvolution             = config.TypeConvolution
	TypeData                    = config.TypeData
	TypeDropout                 = config.TypeDropout
	TypeElementWiseProduct      = config.TypeElementWiseProduct
	TypeEuclideanLoss           = config.TypeEuclideanLoss
	TypeEuclideanTripletLoss    = config.TypeEuclideanTripletLoss
	TypeFlatten                 = config.TypeFlatten
	TypeIm2col                  = config.TypeIm2col
	TypeInfogainLoss            = config.TypeInfogainLoss
	TypeInnerProduct            = config.TypeInnerProduct
	TypeLRN                     = config.TypeLRN
	TypeMultinomialLogisticLoss = config.TypeMultinomialLogisticLoss
	TypePadding                 = config.TypePadding
	TypePooling                 = config.TypePooling
	TypeReLU                    = config.TypeReLU
	TypeSigmoid                 = config.TypeSigmoid
	TypeSigmoidWithLoss         = config.TypeSigmoidWithLoss
	TypeSoftmax                 = config.TypeSoftmax
	TypeSoftmaxWithLoss         = config.TypeSoftmaxWithLoss
)

// Pooling methods and LRN regions.
const (
	PoolMax        = config.PoolMax
	PoolAve        = config.PoolAve
	AcrossChannels = config.AcrossChannels
	WithinChannel  = config.WithinChannel
)

// Filler types.
const (
	FillerConstant = config.FillerConstant
	FillerUniform  = config.FillerUniform
	FillerGaussian = config.FillerGaussian
	FillerXavier   = config.FillerXavier
)

// SetUp errors.
var (
	ErrBottomCount   = layers.ErrBottomCount
	ErrTopCount      = layers.ErrTopCount
	ErrShapeMismatch = layers.ErrShapeMismatch
	ErrInvalidParam  = layers.ErrInvalidParam
	ErrAlreadySetUp  = layers.ErrAlreadySetUp
	ErrInPlace       = layers.ErrInPlace
)

// NewParameter returns a LayerParameter with the library defaults.
func NewParameter(name string, typ LayerType) LayerParameter {
	return config.NewLayer(name, typ)
}

// New builds the layer described by p.
func New[T blob.Float](p LayerParameter, opts ...Option) (Layer[T], error) {
	return layers.New[T](p, opts...)
}

// WithIterations installs the iteration counter read by decay schedules.
func WithIterations(src IterationSource) Option {
	return layers.WithIterations(src)
}

// Forward runs the layer on the configured execution path.
func Forward[T blob.Float](l Layer[T], bottom, top []*blob.Blob[T]) {
	layers.Forward(l, bottom, top)
}

// Backward runs the backward pass and returns the layer's loss contribution.
func Backward[T blob.Float](l Layer[T], top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	return layers.Backward(l, top, propagateDown, bottom)
}

// IsLoss reports whether a layer type produces a loss in Backward.
func IsLoss(t LayerType) bool {
	return layers.IsLoss(t)
}
