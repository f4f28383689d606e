package layers

import (
	"fmt"

	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
)

// IterationSource reports the current training iteration. Layers with
// iteration-dependent schedules read it on every Forward.
type IterationSource func() int

// Option configures a layer at construction.
type Option func(*options)

type options struct {
	iterations IterationSource
}

// WithIterations installs the iteration counter used by the decay schedules
// of Sigmoid, SigmoidWithLoss and EuclideanTripletLoss. Without it the
// iteration is always 0.
func WithIterations(src IterationSource) Option {
	return func(o *options) {
		o.iterations = src
	}
}

func buildOptions(opts []Option) options {
	o := options{iterations: func() int { return 0 }}
	for _, opt := range opts {
		opt(&o)
	}
	if o.iterations == nil {
		o.iterations = func() int { return 0 }
	}
	return o
}

// New creates the layer described by p. Defaults are applied to a copy of p
// and the result is validated before construction.
func New[T blob.Float](p config.LayerParameter, opts ...Option) (Layer[T], error) {
	p = p.Defaults()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}
	o := buildOptions(opts)

	switch p.Type {
	case config.TypeReLU:
		return NewReLU[T](p), nil
	case config.TypeSigmoid:
		return NewSigmoid[T](p, o.iterations), nil
	case config.TypeBNLL:
		return NewBNLL[T](p), nil
	case config.TypeDropout:
		return NewDropout[T](p), nil
	case config.TypeElementWiseProduct:
		return NewElementWiseProduct[T](p), nil
	case config.TypeFlatten:
		return NewFlatten[T](p), nil
	case config.TypeInnerProduct:
		return NewInnerProduct[T](p), nil
	case config.TypePadding:
		return NewPadding[T](p), nil
	case config.TypeLRN:
		return NewLRN[T](p), nil
	case config.TypeIm2col:
		return NewIm2col[T](p), nil
	case config.TypePooling:
		return NewPooling[T](p), nil
	case config.TypeConvolution:
		return NewConvolution[T](p), nil
	case config.TypeData:
		return NewData[T](p), nil
	case config.TypeSoftmax:
		return NewSoftmax[T](p), nil
	case config.TypeMultinomialLogisticLoss:
		return NewMultinomialLogisticLoss[T](p), nil
	case config.TypeInfogainLoss:
		return NewInfogainLoss[T](p), nil
	case config.TypeSoftmaxWithLoss:
		return NewSoftmaxWithLoss[T](p), nil
	case config.TypeSigmoidWithLoss:
		return NewSigmoidWithLoss[T](p, o.iterations), nil
	case config.TypeEuclideanLoss:
		return NewEuclideanLoss[T](p), nil
	case config.TypeEuclideanTripletLoss:
		return NewEuclideanTripletLoss[T](p, o.iterations), nil
	case config.TypeAccuracy:
		return NewAccuracy[T](p), nil
	default:
		return nil, fmt.Errorf("%w: unknown layer type %q", ErrInvalidParam, p.Type)
	}
}

// IsLoss reports whether a layer type produces a loss in Backward.
func IsLoss(t config.LayerType) bool {
	switch t {
	case config.TypeMultinomialLogisticLoss, config.TypeInfogainLoss, config.TypeSoftmaxWithLoss,
		config.TypeSigmoidWithLoss, config.TypeEuclideanLoss, config.TypeEuclideanTripletLoss:
		return true
	default:
		return false
	}
}
