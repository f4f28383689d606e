package cpu

import (
	"math"
	"testing"

	"github.com/born-ml/brew/internal/backend"
	"github.com/stretchr/testify/assert"
)

func TestReLU(t *testing.T) {
	x := []float32{-2, -0.5, 0, 0.5, 2}
	y := make([]float32, len(x))
	ReLUForward(x, y)
	assert.Equal(t, []float32{0, 0, 0, 0.5, 2}, y)

	dx := make([]float32, len(x))
	ReLUBackward(x, []float32{1, 1, 1, 1, 1}, dx)
	assert.Equal(t, []float32{0, 0, 0, 1, 1}, dx)
}

func TestSigmoid_Steepness(t *testing.T) {
	x := []float64{0, 1, -1}
	y := make([]float64, 3)
	SigmoidForward(2, x, y)

	assert.InDelta(t, 0.5, y[0], 1e-12)
	assert.InDelta(t, 1/(1+math.Exp(-2)), y[1], 1e-12)
	assert.InDelta(t, 1-y[1], y[2], 1e-12)

	dx := make([]float64, 3)
	SigmoidBackward(2, y, []float64{1, 1, 1}, dx)
	assert.InDelta(t, 0.5, dx[0], 1e-12)
}

func TestBNLL_Stable(t *testing.T) {
	x := []float64{-1000, -1, 0, 1, 1000}
	y := make([]float64, len(x))
	BNLLForward(x, y)

	assert.InDelta(t, 0, y[0], 1e-12)
	assert.InDelta(t, math.Log(2), y[2], 1e-12)
	assert.InDelta(t, 1000, y[4], 1e-9)
	assert.InDelta(t, y[3]-y[1], 1.0, 1e-12)

	dx := make([]float64, len(x))
	BNLLBackward(x, []float64{1, 1, 1, 1, 1}, dx)
	assert.InDelta(t, 0.5, dx[2], 1e-12)
	assert.InDelta(t, 1, dx[4], 1e-12)
	assert.False(t, math.IsNaN(dx[4]))
}

func TestDropout_MaskAndScale(t *testing.T) {
	x := []float32{1, 2, 3, 4}
	mask := []uint32{1, 0, 1, 0}
	y := make([]float32, 4)
	DropoutForward(x, mask, 2, y)
	assert.Equal(t, []float32{2, 0, 6, 0}, y)

	dx := make([]float32, 4)
	DropoutBackward([]float32{1, 1, 1, 1}, mask, 2, dx)
	assert.Equal(t, []float32{2, 0, 2, 0}, dx)
}

func TestPadding_RoundTrip(t *testing.T) {
	for _, pad := range []int{0, 1, 3} {
		g := backend.PadGeometry{Num: 2, Channels: 3, Height: 4, Width: 5, Pad: pad}
		x := make([]float64, g.Num*g.Channels*g.Height*g.Width)
		for i := range x {
			x[i] = float64(i) + 0.5
		}
		y := make([]float64, g.Num*g.Channels*g.OutHeight()*g.OutWidth())
		for i := range y {
			y[i] = 42
		}
		PadForward(x, g, y)

		if pad > 0 {
			assert.Zero(t, y[0], "border")
		}

		back := make([]float64, len(x))
		PadBackward(y, g, back)
		assert.Equal(t, x, back, "pad %d", pad)
	}
}

func TestSoftmax(t *testing.T) {
	x := []float64{1, 2, 3, 1000, 1000, 1000}
	y := make([]float64, 6)
	SoftmaxForward(x, 2, 3, y)

	assert.InDelta(t, 1, y[0]+y[1]+y[2], 1e-12)
	assert.InDelta(t, math.Exp(1)/math.Exp(2), y[0]/y[1], 1e-12)
	for _, v := range y[3:] {
		assert.InDelta(t, 1.0/3, v, 1e-12)
	}

	// A gradient equal on every class carries no information.
	dx := make([]float64, 6)
	SoftmaxBackward(y, []float64{1, 1, 1, 2, 2, 2}, 2, 3, dx)
	assert.InDeltaSlice(t, make([]float64, 6), dx, 1e-12)
}

func TestLRN_AcrossChannelsValues(t *testing.T) {
	g := backend.LRNGeometry{Num: 1, Channels: 3, Height: 1, Width: 1, Size: 3, Alpha: 3, Beta: 1, K: 1}
	x := []float64{1, 2, 3}
	scale := make([]float64, 3)
	y := make([]float64, 3)

	LRNForward(x, g, scale, y)

	// alpha/size = 1; windows {0,1}, {0,1,2}, {1,2}.
	assert.InDeltaSlice(t, []float64{1 + 5, 1 + 14, 1 + 13}, scale, 1e-12)
	assert.InDeltaSlice(t, []float64{1.0 / 6, 2.0 / 15, 3.0 / 14}, y, 1e-12)
}

func TestLRN_BackwardMatchesFiniteDifference(t *testing.T) {
	for _, within := range []bool{false, true} {
		g := backend.LRNGeometry{
			Num: 1, Channels: 4, Height: 3, Width: 3,
			Size: 3, Alpha: 0.5, Beta: 0.75, K: 1.5, WithinChannel: within,
		}
		n := g.Num * g.Channels * g.Height * g.Width
		x := make([]float64, n)
		dy := make([]float64, n)
		for i := range x {
			x[i] = math.Sin(float64(i)) * 2
			dy[i] = math.Cos(float64(i))
		}
		scale := make([]float64, n)
		y := make([]float64, n)
		LRNForward(x, g, scale, y)
		dx := make([]float64, n)
		LRNBackward(x, y, scale, dy, g, dx)

		objective := func(in []float64) float64 {
			s := make([]float64, n)
			out := make([]float64, n)
			LRNForward(in, g, s, out)
			return Dot(out, dy)
		}
		const h = 1e-6
		for i := range x {
			orig := x[i]
			x[i] = orig + h
			fp := objective(x)
			x[i] = orig - h
			fm := objective(x)
			x[i] = orig
			assert.InDelta(t, (fp-fm)/(2*h), dx[i], 1e-6, "within=%v i=%d", within, i)
		}
	}
}
