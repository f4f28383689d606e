package layers

import (
	"fmt"

	"github.com/born-ml/brew/internal/backend"
	"github.com/born-ml/brew/internal/backend/cpu"
	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
)

// Pooling reduces each kernel window with MAX or AVE. The pooled size keeps
// the last partial window: ceil((H-k)/stride)+1.
type Pooling[T blob.Float] struct {
	base[T]
	geom   backend.PoolGeometry
	method backend.PoolMethod

	// mask holds the flat bottom index of each max winner. maskVersion is the
	// top version written by the Forward that filled it.
	mask        *blob.SyncedMemory[int32]
	maskVersion uint64
}

// NewPooling creates a pooling layer.
func NewPooling[T blob.Float](p config.LayerParameter) *Pooling[T] {
	method := backend.PoolMax
	if p.Pool == config.PoolAve {
		method = backend.PoolAve
	}
	return &Pooling[T]{base: newBase[T](p), method: method}
}

func (l *Pooling[T]) SetUp(bottom, top []*blob.Blob[T]) error {
	if err := l.expect(bottom, top, 1, 1, 1, 1); err != nil {
		return err
	}
	b := bottom[0]
	k, s := l.param.KernelSize, l.param.Stride
	if b.Height() < k || b.Width() < k {
		return l.errorf(ErrShapeMismatch, "kernel %d larger than input %dx%d", k, b.Height(), b.Width())
	}
	l.geom = backend.PoolGeometry{
		Num:          b.Num(),
		Channels:     b.Channels(),
		Height:       b.Height(),
		Width:        b.Width(),
		KernelSize:   k,
		Stride:       s,
		PooledHeight: backend.PooledSize(b.Height(), k, s),
		PooledWidth:  backend.PooledSize(b.Width(), k, s),
	}
	top[0].Reshape(b.Num(), b.Channels(), l.geom.PooledHeight, l.geom.PooledWidth)
	if l.method == backend.PoolMax {
		l.mask = blob.NewSyncedMemory[int32](top[0].Count())
	}
	return l.done(bottom, top)
}

// Indices returns the winner indices recorded by the last MAX Forward.
func (l *Pooling[T]) Indices() []int32 {
	if l.mask == nil {
		return nil
	}
	return l.mask.CPU()
}

func (l *Pooling[T]) ForwardCPU(bottom, top []*blob.Blob[T]) {
	var mask []int32
	if l.mask != nil {
		mask = l.mask.MutableCPU()
	}
	cpu.PoolForward(l.method, bottom[0].CPUData(), l.geom, top[0].MutableCPUData(), mask)
	l.maskVersion = top[0].Version()
}

func (l *Pooling[T]) ForwardGPU(bottom, top []*blob.Blob[T]) {
	var mask backend.Span
	if l.mask != nil {
		mask = l.mask.MutableGPU()
	}
	device().PoolForward(l.method, bottom[0].GPUData(), l.geom, top[0].MutableGPUData(), mask)
	l.maskVersion = top[0].Version()
}

// checkMask panics when the top data changed after the Forward that
// recorded the winners.
func (l *Pooling[T]) checkMask(top *blob.Blob[T]) {
	if l.mask != nil && top.Version() != l.maskVersion {
		panic(fmt.Sprintf("layer %q: max pooling indices are stale, top was rewritten after Forward", l.Name()))
	}
}

func (l *Pooling[T]) BackwardCPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	if !propagateDown[0] {
		return 0
	}
	l.checkMask(top[0])
	var mask []int32
	if l.mask != nil {
		mask = l.mask.CPU()
	}
	cpu.PoolBackward(l.method, top[0].CPUDiff(), mask, l.geom, bottom[0].MutableCPUDiff())
	return 0
}

func (l *Pooling[T]) BackwardGPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	if !propagateDown[0] {
		return 0
	}
	l.checkMask(top[0])
	var mask backend.Span
	if l.mask != nil {
		mask = l.mask.GPU()
	}
	device().PoolBackward(l.method, top[0].GPUDiff(), mask, l.geom, bottom[0].MutableGPUDiff())
	return 0
}
