package cpu

import (
	"math"

	"github.com/born-ml/brew/internal/backend"
)

// bnllThreshold bounds exp() arguments in BNLL to keep it finite.
const bnllThreshold = 50

// ReLUForward computes y = max(0, x).
func ReLUForward[T backend.Float](x, y []T) {
	for i, v := range x {
		y[i] = max(v, 0)
	}
}

// ReLUBackward computes dx = dy * [x > 0].
func ReLUBackward[T backend.Float](x, dy, dx []T) {
	for i, v := range x {
		if v > 0 {
			dx[i] = dy[i]
		} else {
			dx[i] = 0
		}
	}
}

// SigmoidForward computes y = 1 / (1 + exp(-s*x)).
func SigmoidForward[T backend.Float](steepness float64, x, y []T) {
	for i, v := range x {
		y[i] = T(1 / (1 + math.Exp(-steepness*float64(v))))
	}
}

// SigmoidBackward computes dx = dy * s * y * (1 - y) from the forward output y.
func SigmoidBackward[T backend.Float](steepness float64, y, dy, dx []T) {
	s := T(steepness)
	for i, v := range y {
		dx[i] = dy[i] * s * v * (1 - v)
	}
}

// BNLLForward computes the binomial normal log likelihood log(1 + exp(x)),
// evaluated in a form that does not overflow for large |x|.
func BNLLForward[T backend.Float](x, y []T) {
	for i, v := range x {
		f := float64(v)
		if f > 0 {
			y[i] = T(f + math.Log1p(math.Exp(-f)))
		} else {
			y[i] = T(math.Log1p(math.Exp(f)))
		}
	}
}

// BNLLBackward computes dx = dy * sigmoid(x).
func BNLLBackward[T backend.Float](x, dy, dx []T) {
	for i, v := range x {
		e := math.Exp(math.Min(float64(v), bnllThreshold))
		dx[i] = dy[i] * T(e/(e+1))
	}
}

// DropoutForward computes y = x * mask * scale.
func DropoutForward[T backend.Float](x []T, mask []uint32, scale T, y []T) {
	for i, v := range x {
		if mask[i] != 0 {
			y[i] = v * scale
		} else {
			y[i] = 0
		}
	}
}

// DropoutBackward computes dx = dy * mask * scale.
func DropoutBackward[T backend.Float](dy []T, mask []uint32, scale T, dx []T) {
	DropoutForward(dy, mask, scale, dx)
}
