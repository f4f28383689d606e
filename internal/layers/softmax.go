package layers

import (
	"github.com/born-ml/brew/internal/backend/cpu"
	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
)

// Softmax normalises each of the num rows of C·H·W values into a
// probability distribution.
type Softmax[T blob.Float] struct {
	neuron[T]
	num, dim int
}

// NewSoftmax creates a softmax layer.
func NewSoftmax[T blob.Float](p config.LayerParameter) *Softmax[T] {
	return &Softmax[T]{neuron: neuron[T]{newBase[T](p)}}
}

func (l *Softmax[T]) SetUp(bottom, top []*blob.Blob[T]) error {
	if err := l.neuron.SetUp(bottom, top); err != nil {
		return err
	}
	l.num = bottom[0].Num()
	l.dim = bottom[0].Count() / l.num
	return nil
}

func (l *Softmax[T]) ForwardCPU(bottom, top []*blob.Blob[T]) {
	cpu.SoftmaxForward(bottom[0].CPUData(), l.num, l.dim, top[0].MutableCPUData())
}

func (l *Softmax[T]) ForwardGPU(bottom, top []*blob.Blob[T]) {
	device().SoftmaxForward(bottom[0].GPUData(), l.num, l.dim, top[0].MutableGPUData())
}

func (l *Softmax[T]) BackwardCPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	if propagateDown[0] {
		cpu.SoftmaxBackward(top[0].CPUData(), top[0].CPUDiff(), l.num, l.dim, bottom[0].MutableCPUDiff())
	}
	return 0
}

func (l *Softmax[T]) BackwardGPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	if propagateDown[0] {
		device().SoftmaxBackward(top[0].GPUData(), top[0].GPUDiff(), l.num, l.dim, bottom[0].MutableGPUDiff())
	}
	return 0
}
