package layers

import (
	"github.com/born-ml/brew/internal/backend"
	"github.com/born-ml/brew/internal/backend/cpu"
	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
)

// Im2col rearranges every kernel-sized patch of each image into a column.
type Im2col[T blob.Float] struct {
	base[T]
	geom backend.ConvGeometry
}

// NewIm2col creates an im2col layer.
func NewIm2col[T blob.Float](p config.LayerParameter) *Im2col[T] {
	return &Im2col[T]{base: newBase[T](p)}
}

func (l *Im2col[T]) SetUp(bottom, top []*blob.Blob[T]) error {
	if err := l.expect(bottom, top, 1, 1, 1, 1); err != nil {
		return err
	}
	geom, err := l.convGeometry(bottom[0])
	if err != nil {
		return err
	}
	l.geom = geom
	top[0].Reshape(bottom[0].Num(), geom.ColRows(), geom.OutHeight(), geom.OutWidth())
	return l.done(bottom, top)
}

// convGeometry describes the per-image im2col of b for the layer's kernel.
func (b *base[T]) convGeometry(x *blob.Blob[T]) (backend.ConvGeometry, error) {
	g := backend.ConvGeometry{
		Channels:   x.Channels(),
		Height:     x.Height(),
		Width:      x.Width(),
		KernelSize: b.param.KernelSize,
		Pad:        b.param.Pad,
		Stride:     b.param.Stride,
	}
	if err := g.Validate(); err != nil {
		return g, b.errorf(ErrShapeMismatch, "%v", err)
	}
	return g, nil
}

func (l *Im2col[T]) ForwardCPU(bottom, top []*blob.Blob[T]) {
	x, y := bottom[0].CPUData(), top[0].MutableCPUData()
	in, out := bottom[0].Shape().CountFrom(1), top[0].Shape().CountFrom(1)
	for n := 0; n < bottom[0].Num(); n++ {
		cpu.Im2col(x[n*in:(n+1)*in], l.geom, y[n*out:(n+1)*out])
	}
}

func (l *Im2col[T]) ForwardGPU(bottom, top []*blob.Blob[T]) {
	dev := device()
	x, y := bottom[0].GPUData(), top[0].MutableGPUData()
	in, out := bottom[0].Shape().CountFrom(1), top[0].Shape().CountFrom(1)
	for n := 0; n < bottom[0].Num(); n++ {
		dev.Im2col(x.Slice(n*in, in), l.geom, y.Slice(n*out, out))
	}
}

func (l *Im2col[T]) BackwardCPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	if !propagateDown[0] {
		return 0
	}
	dy, dx := top[0].CPUDiff(), bottom[0].MutableCPUDiff()
	in, out := bottom[0].Shape().CountFrom(1), top[0].Shape().CountFrom(1)
	for n := 0; n < bottom[0].Num(); n++ {
		cpu.Col2im(dy[n*out:(n+1)*out], l.geom, dx[n*in:(n+1)*in])
	}
	return 0
}

func (l *Im2col[T]) BackwardGPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	if !propagateDown[0] {
		return 0
	}
	dev := device()
	dy, dx := top[0].GPUDiff(), bottom[0].MutableGPUDiff()
	in, out := bottom[0].Shape().CountFrom(1), top[0].Shape().CountFrom(1)
	for n := 0; n < bottom[0].Num(); n++ {
		dev.Col2im(dy.Slice(n*out, out), l.geom, dx.Slice(n*in, in))
	}
	return 0
}
