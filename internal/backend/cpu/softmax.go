package cpu

import (
	"math"

	"github.com/born-ml/brew/internal/backend"
)

// SoftmaxForward normalises each of num rows of dim elements of x into y.
// The row maximum is subtracted before exponentiation.
func SoftmaxForward[T backend.Float](x []T, num, dim int, y []T) {
	for n := 0; n < num; n++ {
		src := x[n*dim : (n+1)*dim]
		dst := y[n*dim : (n+1)*dim]

		peak := src[0]
		for _, v := range src[1:] {
			peak = max(peak, v)
		}
		var sum T
		for i, v := range src {
			e := T(math.Exp(float64(v - peak)))
			dst[i] = e
			sum += e
		}
		Scal(1/sum, dst)
	}
}

// SoftmaxBackward computes dx = (dy - <dy, y>) * y row by row.
func SoftmaxBackward[T backend.Float](y, dy []T, num, dim int, dx []T) {
	for n := 0; n < num; n++ {
		prob := y[n*dim : (n+1)*dim]
		grad := dy[n*dim : (n+1)*dim]
		out := dx[n*dim : (n+1)*dim]

		dot := Dot(grad, prob)
		for i := range out {
			out[i] = (grad[i] - dot) * prob[i]
		}
	}
}
