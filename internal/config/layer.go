// Package config defines the hyperparameter records that layers and nets are
// built from.
//
// Values are plain structs. NewLayer returns a LayerParameter carrying every
// documented default; Defaults fills the fields whose zero value is never
// meaningful; Validate checks the fields each layer type requires.
package config

import (
	"fmt"
)

// LayerType names a layer implementation.
type LayerType string

// Layer types.
const (
	TypeAccuracy                LayerType = "accuracy"
	TypeBNLL                    LayerType = "bnll"
	TypeConvolution             LayerType = "conv"
	TypeData                    LayerType = "data"
	TypeDropout                 LayerType = "dropout"
	TypeElementWiseProduct      LayerType = "eltwise_product"
	TypeEuclideanLoss           LayerType = "euclidean_loss"
	TypeEuclideanTripletLoss    LayerType = "euclidean_triplet_loss"
	TypeFlatten                 LayerType = "flatten"
	TypeIm2col                  LayerType = "im2col"
	TypeInfogainLoss            LayerType = "infogain_loss"
	TypeInnerProduct            LayerType = "innerproduct"
	TypeLRN                     LayerType = "lrn"
	TypeMultinomialLogisticLoss LayerType = "multinomial_logistic_loss"
	TypePadding                 LayerType = "padding"
	TypePooling                 LayerType = "pool"
	TypeReLU                    LayerType = "relu"
	TypeSigmoid                 LayerType = "sigmoid"
	TypeSigmoidWithLoss         LayerType = "sigmoid_loss"
	TypeSoftmax                 LayerType = "softmax"
	TypeSoftmaxWithLoss         LayerType = "softmax_loss"
)

// PoolMethod selects max or average pooling.
type PoolMethod int

// Pooling methods.
const (
	PoolMax PoolMethod = iota
	PoolAve
)

// String returns the method name.
func (p PoolMethod) String() string {
	switch p {
	case PoolMax:
		return "MAX"
	case PoolAve:
		return "AVE"
	default:
		return fmt.Sprintf("PoolMethod(%d)", int(p))
	}
}

// NormRegion selects the LRN neighbourhood.
type NormRegion int

// LRN regions.
const (
	AcrossChannels NormRegion = iota
	WithinChannel
)

// String returns the region name.
func (r NormRegion) String() string {
	switch r {
	case AcrossChannels:
		return "ACROSS_CHANNELS"
	case WithinChannel:
		return "WITHIN_CHANNEL"
	default:
		return fmt.Sprintf("NormRegion(%d)", int(r))
	}
}

// LayerParameter holds the hyperparameters of one layer. Layers read it and
// never modify it.
type LayerParameter struct {
	Name string
	Type LayerType

	// Convolution, inner product.
	NumOutput    int
	BiasTerm     bool
	WeightFiller FillerParameter
	BiasFiller   FillerParameter
	Pad          int
	KernelSize   int
	Group        int
	Stride       int

	// Pooling.
	Pool PoolMethod

	// Dropout.
	DropoutRatio float64

	// LRN.
	LocalSize  int
	Alpha      float64
	Beta       float64
	K          float64
	NormRegion NormRegion

	// Data.
	Source         string
	Scale          float64
	MeanFile       string
	BatchSize      int
	CropSize       int
	Mirror         bool
	RandSkip       int
	ImagesPerClass int

	// Per parameter blob learning rate and weight decay multipliers.
	BlobsLR     []float64
	WeightDecay []float64

	// Sigmoid steepness schedule.
	SigmoidSteepness float64
	SigmoidDecay     float64
	IterDecay        int

	// Triplet loss.
	LossThreshold float64
	LaplacianBeta float64
	Decay         float64

	// Infogain loss.
	InfogainFile string
}

// NewLayer returns a parameter set with every default applied.
func NewLayer(name string, typ LayerType) LayerParameter {
	return LayerParameter{
		Name:             name,
		Type:             typ,
		BiasTerm:         true,
		WeightFiller:     FillerParameter{Type: FillerConstant},
		BiasFiller:       FillerParameter{Type: FillerConstant},
		Group:            1,
		Stride:           1,
		Pool:             PoolMax,
		DropoutRatio:     0.5,
		LocalSize:        5,
		Alpha:            1,
		Beta:             0.75,
		K:                1,
		Scale:            1,
		SigmoidSteepness: 1,
		SigmoidDecay:     1,
		LossThreshold:    1,
		Decay:            1,
	}
}

// Defaults returns a copy of p with the fields whose zero value is never
// meaningful replaced by their defaults.
func (p LayerParameter) Defaults() LayerParameter {
	if p.Group == 0 {
		p.Group = 1
	}
	if p.Stride == 0 {
		p.Stride = 1
	}
	if p.LocalSize == 0 {
		p.LocalSize = 5
	}
	if p.Scale == 0 {
		p.Scale = 1
	}
	if p.SigmoidSteepness == 0 {
		p.SigmoidSteepness = 1
	}
	if p.SigmoidDecay == 0 {
		p.SigmoidDecay = 1
	}
	if p.Decay == 0 {
		p.Decay = 1
	}
	p.WeightFiller = p.WeightFiller.Defaults()
	p.BiasFiller = p.BiasFiller.Defaults()
	p.BlobsLR = append([]float64(nil), p.BlobsLR...)
	p.WeightDecay = append([]float64(nil), p.WeightDecay...)
	return p
}

// Validate reports the first missing or out-of-range field for the layer type.
func (p LayerParameter) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("layer of type %q has no name", p.Type)
	}

	switch p.Type {
	case TypeConvolution:
		if err := p.requireKernel(); err != nil {
			return err
		}
		if p.NumOutput <= 0 {
			return p.errorf("num_output must be positive, got %d", p.NumOutput)
		}
		if p.Group <= 0 {
			return p.errorf("group must be positive, got %d", p.Group)
		}
		if p.NumOutput%p.Group != 0 {
			return p.errorf("num_output %d not divisible by group %d", p.NumOutput, p.Group)
		}
		if p.Pad < 0 {
			return p.errorf("pad must be non-negative, got %d", p.Pad)
		}
	case TypeIm2col, TypePooling:
		if err := p.requireKernel(); err != nil {
			return err
		}
		if p.Type == TypePooling && p.Pool != PoolMax && p.Pool != PoolAve {
			return p.errorf("unknown pooling method %v", p.Pool)
		}
	case TypeInnerProduct:
		if p.NumOutput <= 0 {
			return p.errorf("num_output must be positive, got %d", p.NumOutput)
		}
	case TypeDropout:
		if p.DropoutRatio < 0 || p.DropoutRatio >= 1 {
			return p.errorf("dropout_ratio must be in [0, 1), got %g", p.DropoutRatio)
		}
	case TypePadding:
		if p.Pad < 0 {
			return p.errorf("pad must be non-negative, got %d", p.Pad)
		}
	case TypeLRN:
		if p.LocalSize <= 0 || p.LocalSize%2 == 0 {
			return p.errorf("local_size must be a positive odd number, got %d", p.LocalSize)
		}
		if p.NormRegion != AcrossChannels && p.NormRegion != WithinChannel {
			return p.errorf("unknown norm region %v", p.NormRegion)
		}
	case TypeSigmoid, TypeSigmoidWithLoss:
		if p.IterDecay < 0 {
			return p.errorf("iter_decay must be non-negative, got %d", p.IterDecay)
		}
	case TypeEuclideanTripletLoss:
		if p.IterDecay < 0 {
			return p.errorf("iter_decay must be non-negative, got %d", p.IterDecay)
		}
		if p.LossThreshold < 0 {
			return p.errorf("loss_threshold must be non-negative, got %g", p.LossThreshold)
		}
	case TypeInfogainLoss:
		if p.InfogainFile == "" {
			return p.errorf("infogain_file is required")
		}
	case TypeData:
		if p.Source == "" {
			return p.errorf("source is required")
		}
		if p.BatchSize <= 0 {
			return p.errorf("batch_size must be positive, got %d", p.BatchSize)
		}
		if p.CropSize < 0 || p.RandSkip < 0 || p.ImagesPerClass < 0 {
			return p.errorf("crop_size, rand_skip and images_per_class must be non-negative")
		}
	case TypeAccuracy, TypeBNLL, TypeElementWiseProduct, TypeEuclideanLoss, TypeFlatten,
		TypeMultinomialLogisticLoss, TypeReLU, TypeSoftmax, TypeSoftmaxWithLoss:
	default:
		return p.errorf("unknown layer type")
	}

	if err := p.WeightFiller.Validate(); err != nil {
		return p.errorf("weight_filler: %v", err)
	}
	if err := p.BiasFiller.Validate(); err != nil {
		return p.errorf("bias_filler: %v", err)
	}
	return nil
}

func (p LayerParameter) requireKernel() error {
	if p.KernelSize <= 0 {
		return p.errorf("kernel_size must be positive, got %d", p.KernelSize)
	}
	if p.Stride <= 0 {
		return p.errorf("stride must be positive, got %d", p.Stride)
	}
	return nil
}

func (p LayerParameter) errorf(format string, args ...any) error {
	return fmt.Errorf("layer %q (%s): %s", p.Name, p.Type, fmt.Sprintf(format, args...))
}
