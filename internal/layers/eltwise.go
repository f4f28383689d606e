package layers

import (
	"github.com/born-ml/brew/internal/backend/cpu"
	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
)

// ElementWiseProduct multiplies two or more bottoms of identical shape.
type ElementWiseProduct[T blob.Float] struct {
	base[T]
}

// NewElementWiseProduct creates an element-wise product layer.
func NewElementWiseProduct[T blob.Float](p config.LayerParameter) *ElementWiseProduct[T] {
	return &ElementWiseProduct[T]{newBase[T](p)}
}

func (l *ElementWiseProduct[T]) SetUp(bottom, top []*blob.Blob[T]) error {
	if err := l.expect(bottom, top, 2, -1, 1, 1); err != nil {
		return err
	}
	for i := 1; i < len(bottom); i++ {
		if !bottom[i].Shape().Equal(bottom[0].Shape()) {
			return l.errorf(ErrShapeMismatch, "bottom %d is %s, bottom 0 is %s",
				i, bottom[i].ShapeString(), bottom[0].ShapeString())
		}
	}
	top[0].ReshapeLike(bottom[0])
	return l.done(bottom, top)
}

func (l *ElementWiseProduct[T]) ForwardCPU(bottom, top []*blob.Blob[T]) {
	y := top[0].MutableCPUData()
	cpu.Mul(bottom[0].CPUData(), bottom[1].CPUData(), y)
	for i := 2; i < len(bottom); i++ {
		cpu.Mul(y, bottom[i].CPUData(), y)
	}
}

func (l *ElementWiseProduct[T]) ForwardGPU(bottom, top []*blob.Blob[T]) {
	dev := device()
	y := top[0].MutableGPUData()
	dev.Mul(bottom[0].GPUData(), bottom[1].GPUData(), y)
	for i := 2; i < len(bottom); i++ {
		dev.Mul(y, bottom[i].GPUData(), y)
	}
}

// The gradient for bottom i is dy times the product of every other bottom,
// so zeros in bottom i do not poison it.
func (l *ElementWiseProduct[T]) BackwardCPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	dy := top[0].CPUDiff()
	for i := range bottom {
		if !propagateDown[i] {
			continue
		}
		dx := bottom[i].MutableCPUDiff()
		copy(dx, dy)
		for j := range bottom {
			if j != i {
				cpu.Mul(dx, bottom[j].CPUData(), dx)
			}
		}
	}
	return 0
}

func (l *ElementWiseProduct[T]) BackwardGPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	dev := device()
	dy := top[0].GPUDiff()
	for i := range bottom {
		if !propagateDown[i] {
			continue
		}
		dx := bottom[i].MutableGPUDiff()
		dev.Copy(dy, dx)
		for j := range bottom {
			if j != i {
				dev.Mul(dx, bottom[j].GPUData(), dx)
			}
		}
	}
	return 0
}
