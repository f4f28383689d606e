package cpu

import (
	"fmt"

	"github.com/born-ml/brew/internal/backend"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
)

// Gemm computes c = alpha*op(a)*op(b) + beta*c for row-major matrices, where
// op(a) is m×k and op(b) is k×n.
func Gemm[T backend.Float](transA, transB bool, m, n, k int, alpha T, a, b []T, beta T, c []T) {
	if m == 0 || n == 0 {
		return
	}
	if k == 0 {
		Scal(beta, c[:m*n])
		return
	}

	ta, lda := blas.NoTrans, k
	if transA {
		ta, lda = blas.Trans, m
	}
	tb, ldb := blas.NoTrans, n
	if transB {
		tb, ldb = blas.Trans, k
	}

	switch c := any(c).(type) {
	case []float32:
		blas32.Implementation().Sgemm(ta, tb, m, n, k,
			float32(alpha), any(a).([]float32), lda, any(b).([]float32), ldb,
			float32(beta), c, n)
	case []float64:
		blas64.Implementation().Dgemm(ta, tb, m, n, k,
			float64(alpha), any(a).([]float64), lda, any(b).([]float64), ldb,
			float64(beta), c, n)
	default:
		panic(fmt.Sprintf("gemm: unsupported element type %T", c))
	}
}

// Axpy computes y += alpha*x.
func Axpy[T backend.Float](alpha T, x, y []T) {
	if len(x) != len(y) {
		panic(fmt.Sprintf("axpy: length mismatch %d vs %d", len(x), len(y)))
	}
	if len(x) == 0 {
		return
	}
	switch y := any(y).(type) {
	case []float32:
		blas32.Implementation().Saxpy(len(y), float32(alpha), any(x).([]float32), 1, y, 1)
	case []float64:
		blas64.Implementation().Daxpy(len(y), float64(alpha), any(x).([]float64), 1, y, 1)
	}
}

// Axpby computes y = alpha*x + beta*y.
func Axpby[T backend.Float](alpha T, x []T, beta T, y []T) {
	Scal(beta, y)
	Axpy(alpha, x, y)
}

// Scal computes x *= alpha.
func Scal[T backend.Float](alpha T, x []T) {
	if len(x) == 0 {
		return
	}
	switch x := any(x).(type) {
	case []float32:
		blas32.Implementation().Sscal(len(x), float32(alpha), x, 1)
	case []float64:
		blas64.Implementation().Dscal(len(x), float64(alpha), x, 1)
	}
}

// Dot returns the inner product of x and y.
func Dot[T backend.Float](x, y []T) T {
	if len(x) != len(y) {
		panic(fmt.Sprintf("dot: length mismatch %d vs %d", len(x), len(y)))
	}
	if len(x) == 0 {
		return 0
	}
	switch x := any(x).(type) {
	case []float32:
		return T(blas32.Implementation().Sdot(len(x), x, 1, any(y).([]float32), 1))
	case []float64:
		return T(blas64.Implementation().Ddot(len(x), x, 1, any(y).([]float64), 1))
	}
	return 0
}

// Asum returns the sum of absolute values of x.
func Asum[T backend.Float](x []T) T {
	if len(x) == 0 {
		return 0
	}
	switch x := any(x).(type) {
	case []float32:
		return T(blas32.Implementation().Sasum(len(x), x, 1))
	case []float64:
		return T(blas64.Implementation().Dasum(len(x), x, 1))
	}
	return 0
}

// Set fills x with alpha.
func Set[T backend.Float](alpha T, x []T) {
	if alpha == 0 {
		clear(x)
		return
	}
	for i := range x {
		x[i] = alpha
	}
}

// Mul computes y = a*b element-wise.
func Mul[T backend.Float](a, b, y []T) {
	for i := range y {
		y[i] = a[i] * b[i]
	}
}

// SumSquares returns the sum of squared elements of x.
func SumSquares[T backend.Float](x []T) T {
	switch x := any(x).(type) {
	case []float64:
		return T(floats.Dot(x, x))
	}
	return Dot(x, x)
}
