package layers

import (
	"github.com/born-ml/brew/internal/backend"
	"github.com/born-ml/brew/internal/backend/cpu"
	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
)

// LRN is local response normalization, y = x·scale^-β, where scale is
// k + α/n·Σx² over a neighbourhood of LocalSize channels or a
// LocalSize×LocalSize spatial window.
type LRN[T blob.Float] struct {
	base[T]
	geom  backend.LRNGeometry
	scale *blob.Blob[T]
}

// NewLRN creates a local response normalization layer.
func NewLRN[T blob.Float](p config.LayerParameter) *LRN[T] {
	return &LRN[T]{base: newBase[T](p)}
}

func (l *LRN[T]) SetUp(bottom, top []*blob.Blob[T]) error {
	if err := l.expect(bottom, top, 1, 1, 1, 1); err != nil {
		return err
	}
	b := bottom[0]
	l.geom = backend.LRNGeometry{
		Num:           b.Num(),
		Channels:      b.Channels(),
		Height:        b.Height(),
		Width:         b.Width(),
		Size:          l.param.LocalSize,
		Alpha:         l.param.Alpha,
		Beta:          l.param.Beta,
		K:             l.param.K,
		WithinChannel: l.param.NormRegion == config.WithinChannel,
	}
	top[0].ReshapeLike(b)
	l.scale = blob.New[T]()
	l.scale.ReshapeLike(b)
	return l.done(bottom, top)
}

func (l *LRN[T]) ForwardCPU(bottom, top []*blob.Blob[T]) {
	cpu.LRNForward(bottom[0].CPUData(), l.geom, l.scale.MutableCPUData(), top[0].MutableCPUData())
}

func (l *LRN[T]) ForwardGPU(bottom, top []*blob.Blob[T]) {
	device().LRNForward(bottom[0].GPUData(), l.geom, l.scale.MutableGPUData(), top[0].MutableGPUData())
}

func (l *LRN[T]) BackwardCPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	if propagateDown[0] {
		cpu.LRNBackward(bottom[0].CPUData(), top[0].CPUData(), l.scale.CPUData(), top[0].CPUDiff(),
			l.geom, bottom[0].MutableCPUDiff())
	}
	return 0
}

func (l *LRN[T]) BackwardGPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	if propagateDown[0] {
		device().LRNBackward(bottom[0].GPUData(), top[0].GPUData(), l.scale.GPUData(), top[0].GPUDiff(),
			l.geom, bottom[0].MutableGPUDiff())
	}
	return 0
}
