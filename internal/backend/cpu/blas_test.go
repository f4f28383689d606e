package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestGemm_MatchesDense(t *testing.T) {
	tests := []struct {
		name           string
		transA, transB bool
	}{
		{"NN", false, false},
		{"TN", true, false},
		{"NT", false, true},
		{"TT", true, true},
	}

	m, n, k := 3, 4, 5
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := make([]float64, m*k)
			b := make([]float64, k*n)
			for i := range a {
				a[i] = float64(i%7) - 3
			}
			for i := range b {
				b[i] = float64(i%5) * 0.5
			}

			var A, B mat.Matrix
			if tt.transA {
				A = mat.NewDense(k, m, a).T()
			} else {
				A = mat.NewDense(m, k, a)
			}
			if tt.transB {
				B = mat.NewDense(n, k, b).T()
			} else {
				B = mat.NewDense(k, n, b)
			}
			var want mat.Dense
			want.Mul(A, B)

			c := make([]float64, m*n)
			for i := range c {
				c[i] = 1
			}
			Gemm(tt.transA, tt.transB, m, n, k, 2, a, b, 0.5, c)

			for i := 0; i < m; i++ {
				for j := 0; j < n; j++ {
					assert.InDelta(t, 2*want.At(i, j)+0.5, c[i*n+j], 1e-9, "c[%d,%d]", i, j)
				}
			}
		})
	}
}

func TestGemm_Float32(t *testing.T) {
	a := []float32{1, 2, 3, 4, 5, 6}
	w := []float32{1, 0, 1, 0, 1, 1}
	c := make([]float32, 4)

	// [2x3] · [2x3]ᵀ
	Gemm(false, true, 2, 2, 3, 1, a, w, 0, c)
	assert.Equal(t, []float32{4, 5, 10, 11}, c)
}

func TestAxpyScalDot(t *testing.T) {
	x := []float32{1, 2, 3}
	y := []float32{1, 1, 1}

	Axpy(2, x, y)
	assert.Equal(t, []float32{3, 5, 7}, y)

	Scal(0.5, y)
	assert.Equal(t, []float32{1.5, 2.5, 3.5}, y)

	assert.InDelta(t, 1.5+5+10.5, float64(Dot(x, y)), 1e-6)
	assert.InDelta(t, 6, float64(Asum([]float32{-1, 2, -3})), 1e-6)

	Axpby(1, x, 0, y)
	assert.Equal(t, x, y)

	require.Panics(t, func() { Axpy(1, x, []float32{1}) })
}

func TestSet(t *testing.T) {
	x := []float64{1, 2, 3}
	Set(0, x)
	assert.Equal(t, []float64{0, 0, 0}, x)
	Set(4, x)
	assert.Equal(t, []float64{4, 4, 4}, x)
}
