package emu

import (
	"fmt"
	"sync/atomic"

	"github.com/born-ml/brew/internal/backend"
	"github.com/born-ml/brew/internal/backend/cpu"
)

// dispatch routes each kernel to the typed implementation for the span dtype.
type dispatch struct {
	launches *atomic.Int64
}

func (d dispatch) of(s backend.Span) backend.Kernels {
	d.launches.Add(1)
	switch s.DType {
	case backend.Float32:
		return typed[float32]{}
	case backend.Float64:
		return typed[float64]{}
	default:
		panic(fmt.Sprintf("emu: no kernels for %s", s.DType))
	}
}

func (d dispatch) Gemm(transA, transB bool, m, n, k int, alpha float64, a, b backend.Span, beta float64, c backend.Span) {
	d.of(c).Gemm(transA, transB, m, n, k, alpha, a, b, beta, c)
}
func (d dispatch) Axpy(alpha float64, x, y backend.Span) { d.of(y).Axpy(alpha, x, y) }
func (d dispatch) Scale(alpha float64, x backend.Span) { d.of(x).Scale(alpha, x) }
func (d dispatch) Set(alpha float64, x backend.Span) { d.of(x).Set(alpha, x) }
func (d dispatch) Copy(src, dst backend.Span) { d.of(dst).Copy(src, dst) }
func (d dispatch) Mul(a, b, y backend.Span) { d.of(y).Mul(a, b, y) }
func (d dispatch) ReLUForward(x, y backend.Span) { d.of(y).ReLUForward(x, y) }
func (d dispatch) ReLUBackward(x, dy, dx backend.Span) { d.of(dx).ReLUBackward(x, dy, dx) }
func (d dispatch) SigmoidForward(s float64, x, y backend.Span) {
	d.of(y).SigmoidForward(s, x, y)
}
func (d dispatch) SigmoidBackward(s float64, y, dy, dx backend.Span) {
	d.of(dx).SigmoidBackward(s, y, dy, dx)
}
func (d dispatch) BNLLForward(x, y backend.Span) { d.of(y).BNLLForward(x, y) }
func (d dispatch) BNLLBackward(x, dy, dx backend.Span) { d.of(dx).BNLLBackward(x, dy, dx) }
func (d dispatch) DropoutForward(x, mask backend.Span, scale float64, y backend.Span) {
	d.of(y).DropoutForward(x, mask, scale, y)
}
func (d dispatch) DropoutBackward(dy, mask backend.Span, scale float64, dx backend.Span) {
	d.of(dx).DropoutBackward(dy, mask, scale, dx)
}
func (d dispatch) Im2col(im backend.Span, g backend.ConvGeometry, col backend.Span) {
	d.of(col).Im2col(im, g, col)
}
func (d dispatch) Col2im(col backend.Span, g backend.ConvGeometry, im backend.Span) {
	d.of(im).Col2im(col, g, im)
}
func (d dispatch) PoolForward(m backend.PoolMethod, x backend.Span, g backend.PoolGeometry, y, mask backend.Span) {
	d.of(y).PoolForward(m, x, g, y, mask)
}
func (d dispatch) PoolBackward(m backend.PoolMethod, dy, mask backend.Span, g backend.PoolGeometry, dx backend.Span) {
	d.of(dx).PoolBackward(m, dy, mask, g, dx)
}
func (d dispatch) PadForward(x backend.Span, g backend.PadGeometry, y backend.Span) {
	d.of(y).PadForward(x, g, y)
}
func (d dispatch) PadBackward(dy backend.Span, g backend.PadGeometry, dx backend.Span) {
	d.of(dx).PadBackward(dy, g, dx)
}
func (d dispatch) LRNForward(x backend.Span, g backend.LRNGeometry, scale, y backend.Span) {
	d.of(y).LRNForward(x, g, scale, y)
}
func (d dispatch) LRNBackward(x, y, scale, dy backend.Span, g backend.LRNGeometry, dx backend.Span) {
	d.of(dx).LRNBackward(x, y, scale, dy, g, dx)
}
func (d dispatch) SoftmaxForward(x backend.Span, num, dim int, y backend.Span) {
	d.of(y).SoftmaxForward(x, num, dim, y)
}
func (d dispatch) SoftmaxBackward(y, dy backend.Span, num, dim int, dx backend.Span) {
	d.of(dx).SoftmaxBackward(y, dy, num, dim, dx)
}

// typed runs the cpu kernels over device memory viewed as []T.
type typed[T backend.Float] struct{}

func (typed[T]) Gemm(transA, transB bool, m, n, k int, alpha float64, a, b backend.Span, beta float64, c backend.Span) {
	cpu.Gemm(transA, transB, m, n, k, T(alpha), view[T](a), view[T](b), T(beta), view[T](c))
}

func (typed[T]) Axpy(alpha float64, x, y backend.Span) {
	cpu.Axpy(T(alpha), view[T](x), view[T](y))
}

func (typed[T]) Scale(alpha float64, x backend.Span) {
	cpu.Scal(T(alpha), view[T](x))
}

func (typed[T]) Set(alpha float64, x backend.Span) {
	cpu.Set(T(alpha), view[T](x))
}

func (typed[T]) Copy(src, dst backend.Span) {
	if src.Len != dst.Len {
		panic(fmt.Sprintf("emu: copy length mismatch %d vs %d", src.Len, dst.Len))
	}
	copy(view[T](dst), view[T](src))
}

func (typed[T]) Mul(a, b, y backend.Span) {
	cpu.Mul(view[T](a), view[T](b), view[T](y))
}

func (typed[T]) ReLUForward(x, y backend.Span) {
	cpu.ReLUForward(view[T](x), view[T](y))
}

func (typed[T]) ReLUBackward(x, dy, dx backend.Span) {
	cpu.ReLUBackward(view[T](x), view[T](dy), view[T](dx))
}

func (typed[T]) SigmoidForward(s float64, x, y backend.Span) {
	cpu.SigmoidForward(s, view[T](x), view[T](y))
}

func (typed[T]) SigmoidBackward(s float64, y, dy, dx backend.Span) {
	cpu.SigmoidBackward(s, view[T](y), view[T](dy), view[T](dx))
}

func (typed[T]) BNLLForward(x, y backend.Span) {
	cpu.BNLLForward(view[T](x), view[T](y))
}

func (typed[T]) BNLLBackward(x, dy, dx backend.Span) {
	cpu.BNLLBackward(view[T](x), view[T](dy), view[T](dx))
}

func (typed[T]) DropoutForward(x, mask backend.Span, scale float64, y backend.Span) {
	cpu.DropoutForward(view[T](x), view[uint32](mask), T(scale), view[T](y))
}

func (typed[T]) DropoutBackward(dy, mask backend.Span, scale float64, dx backend.Span) {
	cpu.DropoutBackward(view[T](dy), view[uint32](mask), T(scale), view[T](dx))
}

func (typed[T]) Im2col(im backend.Span, g backend.ConvGeometry, col backend.Span) {
	cpu.Im2col(view[T](im), g, view[T](col))
}

func (typed[T]) Col2im(col backend.Span, g backend.ConvGeometry, im backend.Span) {
	cpu.Col2im(view[T](col), g, view[T](im))
}

func (typed[T]) PoolForward(m backend.PoolMethod, x backend.Span, g backend.PoolGeometry, y, mask backend.Span) {
	cpu.PoolForward(m, view[T](x), g, view[T](y), view[int32](mask))
}

func (typed[T]) PoolBackward(m backend.PoolMethod, dy, mask backend.Span, g backend.PoolGeometry, dx backend.Span) {
	cpu.PoolBackward(m, view[T](dy), view[int32](mask), g, view[T](dx))
}

func (typed[T]) PadForward(x backend.Span, g backend.PadGeometry, y backend.Span) {
	cpu.PadForward(view[T](x), g, view[T](y))
}

func (typed[T]) PadBackward(dy backend.Span, g backend.PadGeometry, dx backend.Span) {
	cpu.PadBackward(view[T](dy), g, view[T](dx))
}

func (typed[T]) LRNForward(x backend.Span, g backend.LRNGeometry, scale, y backend.Span) {
	cpu.LRNForward(view[T](x), g, view[T](scale), view[T](y))
}

func (typed[T]) LRNBackward(x, y, scale, dy backend.Span, g backend.LRNGeometry, dx backend.Span) {
	cpu.LRNBackward(view[T](x), view[T](y), view[T](scale), view[T](dy), g, view[T](dx))
}

func (typed[T]) SoftmaxForward(x backend.Span, num, dim int, y backend.Span) {
	cpu.SoftmaxForward(view[T](x), num, dim, view[T](y))
}

func (typed[T]) SoftmaxBackward(y, dy backend.Span, num, dim int, dx backend.Span) {
	cpu.SoftmaxBackward(view[T](y), view[T](dy), num, dim, view[T](dx))
}
