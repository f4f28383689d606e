package layers

import (
	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
)

// Flatten reshapes (N, C, H, W) into (N, C·H·W, 1, 1).
type Flatten[T blob.Float] struct {
	base[T]
}

// NewFlatten creates a flatten layer.
func NewFlatten[T blob.Float](p config.LayerParameter) *Flatten[T] {
	return &Flatten[T]{newBase[T](p)}
}

func (l *Flatten[T]) SetUp(bottom, top []*blob.Blob[T]) error {
	if err := l.expect(bottom, top, 1, 1, 1, 1); err != nil {
		return err
	}
	b := bottom[0]
	top[0].Reshape(b.Num(), b.Shape().CountFrom(1), 1, 1)
	return l.done(bottom, top)
}

func (l *Flatten[T]) ForwardCPU(bottom, top []*blob.Blob[T]) {
	copy(top[0].MutableCPUData(), bottom[0].CPUData())
}

func (l *Flatten[T]) ForwardGPU(bottom, top []*blob.Blob[T]) {
	device().Copy(bottom[0].GPUData(), top[0].MutableGPUData())
}

func (l *Flatten[T]) BackwardCPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	if propagateDown[0] {
		copy(bottom[0].MutableCPUDiff(), top[0].CPUDiff())
	}
	return 0
}

func (l *Flatten[T]) BackwardGPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	if propagateDown[0] {
		device().Copy(top[0].GPUDiff(), bottom[0].MutableGPUDiff())
	}
	return 0
}
