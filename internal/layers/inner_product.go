package layers

import (
	"github.com/born-ml/brew/internal/backend/cpu"
	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
)

// InnerProduct is a fully connected layer. The bottom is viewed as an M×K
// matrix, the weight is stored N×K and the top is Y = X·Wᵀ + 1·bᵀ.
type InnerProduct[T blob.Float] struct {
	base[T]
	m, k, n int

	weight         *blob.Blob[T]
	bias           *blob.Blob[T]
	biasMultiplier *blob.Blob[T]
}

// NewInnerProduct creates a fully connected layer.
func NewInnerProduct[T blob.Float](p config.LayerParameter) *InnerProduct[T] {
	return &InnerProduct[T]{base: newBase[T](p)}
}

func (l *InnerProduct[T]) SetUp(bottom, top []*blob.Blob[T]) error {
	if err := l.expect(bottom, top, 1, 1, 1, 1); err != nil {
		return err
	}
	l.m = bottom[0].Num()
	l.k = bottom[0].Count() / l.m
	l.n = l.param.NumOutput
	top[0].Reshape(l.m, l.n, 1, 1)

	var err error
	if l.weight, err = l.newParam(l.param.WeightFiller, 1, 1, l.n, l.k); err != nil {
		return err
	}
	if l.param.BiasTerm {
		if l.bias, err = l.newParam(l.param.BiasFiller, 1, 1, 1, l.n); err != nil {
			return err
		}
		l.biasMultiplier = ones[T](l.m)
	}
	return l.done(bottom, top)
}

func (l *InnerProduct[T]) ForwardCPU(bottom, top []*blob.Blob[T]) {
	y := top[0].MutableCPUData()
	cpu.Gemm(false, true, l.m, l.n, l.k, 1, bottom[0].CPUData(), l.weight.CPUData(), 0, y)
	if l.bias != nil {
		cpu.Gemm(false, false, l.m, l.n, 1, 1, l.biasMultiplier.CPUData(), l.bias.CPUData(), 1, y)
	}
}

func (l *InnerProduct[T]) ForwardGPU(bottom, top []*blob.Blob[T]) {
	dev := device()
	y := top[0].MutableGPUData()
	dev.Gemm(false, true, l.m, l.n, l.k, 1, bottom[0].GPUData(), l.weight.GPUData(), 0, y)
	if l.bias != nil {
		dev.Gemm(false, false, l.m, l.n, 1, 1, l.biasMultiplier.GPUData(), l.bias.GPUData(), 1, y)
	}
}

func (l *InnerProduct[T]) BackwardCPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	dy := top[0].CPUDiff()
	// dW += dYᵀ·X
	cpu.Gemm(true, false, l.n, l.k, l.m, 1, dy, bottom[0].CPUData(), 1, l.weight.MutableCPUDiff())
	if l.bias != nil {
		cpu.Gemm(true, false, l.n, 1, l.m, 1, dy, l.biasMultiplier.CPUData(), 1, l.bias.MutableCPUDiff())
	}
	if propagateDown[0] {
		cpu.Gemm(false, false, l.m, l.k, l.n, 1, dy, l.weight.CPUData(), 0, bottom[0].MutableCPUDiff())
	}
	return 0
}

func (l *InnerProduct[T]) BackwardGPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	dev := device()
	dy := top[0].GPUDiff()
	dev.Gemm(true, false, l.n, l.k, l.m, 1, dy, bottom[0].GPUData(), 1, l.weight.MutableGPUDiff())
	if l.bias != nil {
		dev.Gemm(true, false, l.n, 1, l.m, 1, dy, l.biasMultiplier.GPUData(), 1, l.bias.MutableGPUDiff())
	}
	if propagateDown[0] {
		dev.Gemm(false, false, l.m, l.k, l.n, 1, dy, l.weight.GPUData(), 0, bottom[0].MutableGPUDiff())
	}
	return 0
}
