package layers

import (
	"github.com/born-ml/brew/internal/backend"
	"github.com/born-ml/brew/internal/backend/cpu"
	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
)

// Padding surrounds every plane with a zero border of width Pad.
type Padding[T blob.Float] struct {
	base[T]
	geom backend.PadGeometry
}

// NewPadding creates a padding layer.
func NewPadding[T blob.Float](p config.LayerParameter) *Padding[T] {
	return &Padding[T]{base: newBase[T](p)}
}

func (l *Padding[T]) SetUp(bottom, top []*blob.Blob[T]) error {
	if err := l.expect(bottom, top, 1, 1, 1, 1); err != nil {
		return err
	}
	b := bottom[0]
	l.geom = backend.PadGeometry{
		Num: b.Num(), Channels: b.Channels(), Height: b.Height(), Width: b.Width(), Pad: l.param.Pad,
	}
	top[0].Reshape(b.Num(), b.Channels(), l.geom.OutHeight(), l.geom.OutWidth())
	return l.done(bottom, top)
}

func (l *Padding[T]) ForwardCPU(bottom, top []*blob.Blob[T]) {
	cpu.PadForward(bottom[0].CPUData(), l.geom, top[0].MutableCPUData())
}

func (l *Padding[T]) ForwardGPU(bottom, top []*blob.Blob[T]) {
	device().PadForward(bottom[0].GPUData(), l.geom, top[0].MutableGPUData())
}

func (l *Padding[T]) BackwardCPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	if propagateDown[0] {
		cpu.PadBackward(top[0].CPUDiff(), l.geom, bottom[0].MutableCPUDiff())
	}
	return 0
}

func (l *Padding[T]) BackwardGPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	if propagateDown[0] {
		device().PadBackward(top[0].GPUDiff(), l.geom, bottom[0].MutableGPUDiff())
	}
	return 0
}
