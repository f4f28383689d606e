package layers

import (
	"github.com/born-ml/brew/internal/backend/cpu"
	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
)

// neuron is the shared SetUp of element-wise layers: one bottom, one top of
// the same shape.
type neuron[T blob.Float] struct {
	base[T]
}

func (l *neuron[T]) SetUp(bottom, top []*blob.Blob[T]) error {
	if err := l.expect(bottom, top, 1, 1, 1, 1); err != nil {
		return err
	}
	top[0].ReshapeLike(bottom[0])
	return l.done(bottom, top)
}

// ReLU computes max(0, x).
type ReLU[T blob.Float] struct {
	neuron[T]
}

// NewReLU creates a ReLU layer.
func NewReLU[T blob.Float](p config.LayerParameter) *ReLU[T] {
	return &ReLU[T]{neuron[T]{newBase[T](p)}}
}

func (l *ReLU[T]) ForwardCPU(bottom, top []*blob.Blob[T]) {
	cpu.ReLUForward(bottom[0].CPUData(), top[0].MutableCPUData())
}

func (l *ReLU[T]) ForwardGPU(bottom, top []*blob.Blob[T]) {
	device().ReLUForward(bottom[0].GPUData(), top[0].MutableGPUData())
}

func (l *ReLU[T]) BackwardCPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	if propagateDown[0] {
		cpu.ReLUBackward(bottom[0].CPUData(), top[0].CPUDiff(), bottom[0].MutableCPUDiff())
	}
	return 0
}

func (l *ReLU[T]) BackwardGPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	if propagateDown[0] {
		device().ReLUBackward(bottom[0].GPUData(), top[0].GPUDiff(), bottom[0].MutableGPUDiff())
	}
	return 0
}

// Sigmoid computes 1/(1+exp(-s·x)) where the steepness s decays by
// SigmoidDecay every IterDecay iterations.
type Sigmoid[T blob.Float] struct {
	neuron[T]
	iterations IterationSource
	steepness  float64
}

// NewSigmoid creates a sigmoid layer reading the iteration from iter.
func NewSigmoid[T blob.Float](p config.LayerParameter, iter IterationSource) *Sigmoid[T] {
	return &Sigmoid[T]{neuron: neuron[T]{newBase[T](p)}, iterations: iter, steepness: p.SigmoidSteepness}
}

// Steepness returns the steepness used by the last Forward.
func (l *Sigmoid[T]) Steepness() float64 { return l.steepness }

func (l *Sigmoid[T]) schedule() {
	p := l.param
	l.steepness = decayedScale(p.SigmoidSteepness, p.SigmoidDecay, p.IterDecay, l.iterations())
}

func (l *Sigmoid[T]) ForwardCPU(bottom, top []*blob.Blob[T]) {
	l.schedule()
	cpu.SigmoidForward(l.steepness, bottom[0].CPUData(), top[0].MutableCPUData())
}

func (l *Sigmoid[T]) ForwardGPU(bottom, top []*blob.Blob[T]) {
	l.schedule()
	device().SigmoidForward(l.steepness, bottom[0].GPUData(), top[0].MutableGPUData())
}

func (l *Sigmoid[T]) BackwardCPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	if propagateDown[0] {
		cpu.SigmoidBackward(l.steepness, top[0].CPUData(), top[0].CPUDiff(), bottom[0].MutableCPUDiff())
	}
	return 0
}

func (l *Sigmoid[T]) BackwardGPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	if propagateDown[0] {
		device().SigmoidBackward(l.steepness, top[0].GPUData(), top[0].GPUDiff(), bottom[0].MutableGPUDiff())
	}
	return 0
}

// BNLL computes the binomial normal log likelihood log(1+exp(x)).
type BNLL[T blob.Float] struct {
	neuron[T]
}

// NewBNLL creates a BNLL layer.
func NewBNLL[T blob.Float](p config.LayerParameter) *BNLL[T] {
	return &BNLL[T]{neuron[T]{newBase[T](p)}}
}

func (l *BNLL[T]) ForwardCPU(bottom, top []*blob.Blob[T]) {
	cpu.BNLLForward(bottom[0].CPUData(), top[0].MutableCPUData())
}

func (l *BNLL[T]) ForwardGPU(bottom, top []*blob.Blob[T]) {
	device().BNLLForward(bottom[0].GPUData(), top[0].MutableGPUData())
}

func (l *BNLL[T]) BackwardCPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	if propagateDown[0] {
		cpu.BNLLBackward(bottom[0].CPUData(), top[0].CPUDiff(), bottom[0].MutableCPUDiff())
	}
	return 0
}

func (l *BNLL[T]) BackwardGPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	if propagateDown[0] {
		device().BNLLBackward(bottom[0].GPUData(), top[0].GPUDiff(), bottom[0].MutableGPUDiff())
	}
	return 0
}
