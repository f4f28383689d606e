package layers_test

import (
	"math"
	"testing"

	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
	"github.com/born-ml/brew/internal/engine"
	"github.com/born-ml/brew/internal/layers"
	"github.com/born-ml/brew/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setUp[T blob.Float](t *testing.T, p config.LayerParameter, bottom []*blob.Blob[T], nTop int, opts ...layers.Option) (layers.Layer[T], []*blob.Blob[T]) {
	t.Helper()
	l, err := layers.New[T](p, opts...)
	require.NoError(t, err)
	top := testutil.Tops[T](nTop)
	require.NoError(t, l.SetUp(bottom, top))
	return l, top
}

func TestReLU_Forward(t *testing.T) {
	x := testutil.FromSlice([]float64{-2, -0.5, 0, 0.5, 3}, 1, 1, 1, 5)
	l, top := setUp(t, config.NewLayer("relu", config.TypeReLU), []*blob.Blob[float64]{x}, 1)

	layers.Forward(l, []*blob.Blob[float64]{x}, top)
	assert.Equal(t, []float64{0, 0, 0, 0.5, 3}, top[0].CPUData())
}

func TestNeuron_Gradients(t *testing.T) {
	tests := []struct {
		name  string
		typ   config.LayerType
		check testutil.GradientChecker
	}{
		{"relu", config.TypeReLU, testutil.GradientChecker{Step: 1e-4, Threshold: 1e-3, KinkRange: 1e-2}},
		{"sigmoid", config.TypeSigmoid, testutil.DefaultChecker()},
		{"bnll", config.TypeBNLL, testutil.DefaultChecker()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := testutil.Gaussian[float64](1, 1, 2, 3, 4, 5)
			bottom := []*blob.Blob[float64]{x}
			l, top := setUp(t, config.NewLayer(tt.name, tt.typ), bottom, 1)
			testutil.CheckGradient(t, tt.check, l, bottom, top)
		})
	}
}

func TestNeuron_Parity(t *testing.T) {
	for _, typ := range []config.LayerType{config.TypeReLU, config.TypeSigmoid, config.TypeBNLL, config.TypeDropout} {
		t.Run(string(typ), func(t *testing.T) {
			testutil.Parity(t, func(t *testing.T) (layers.Layer[float32], []*blob.Blob[float32], []*blob.Blob[float32]) {
				x := testutil.Gaussian[float32](3, 2, 2, 3, 4, 5)
				bottom := []*blob.Blob[float32]{x}
				l, top := setUp(t, config.NewLayer("n", typ), bottom, 1)
				return l, bottom, top
			}, 1e-5, true)
		})
	}
}

func TestSigmoid_SteepnessDecay(t *testing.T) {
	iter := 0
	p := config.NewLayer("sig", config.TypeSigmoid)
	p.SigmoidSteepness = 4
	p.SigmoidDecay = 0.5
	p.IterDecay = 10

	x := testutil.FromSlice([]float64{1}, 1, 1, 1, 1)
	bottom := []*blob.Blob[float64]{x}
	l, top := setUp(t, p, bottom, 1, layers.WithIterations(func() int { return iter }))
	sig := l.(*layers.Sigmoid[float64])

	for _, tc := range []struct {
		iter int
		want float64
	}{{0, 4}, {9, 4}, {10, 2}, {25, 1}} {
		iter = tc.iter
		layers.Forward(l, bottom, top)
		assert.Equal(t, tc.want, sig.Steepness(), "iter %d", tc.iter)
		assert.InDelta(t, 1/(1+math.Exp(-tc.want)), top[0].CPUData()[0], 1e-12)
	}
}

func TestSigmoid_GradientWithSteepness(t *testing.T) {
	p := config.NewLayer("sig", config.TypeSigmoid)
	p.SigmoidSteepness = 2.5
	x := testutil.Gaussian[float64](5, 1, 1, 2, 3, 3)
	bottom := []*blob.Blob[float64]{x}
	l, top := setUp(t, p, bottom, 1)
	testutil.CheckGradient(t, testutil.DefaultChecker(), l, bottom, top)
}

func TestDropout_RatioZeroIsIdentity(t *testing.T) {
	t.Cleanup(engine.Reset)
	p := config.NewLayer("drop", config.TypeDropout)
	p.DropoutRatio = 0

	x := testutil.Gaussian[float64](2, 1, 2, 3, 4, 4)
	bottom := []*blob.Blob[float64]{x}
	l, top := setUp(t, p, bottom, 1)

	for _, phase := range []engine.Phase{engine.Train, engine.Test} {
		engine.SetPhase(phase)
		layers.Forward(l, bottom, top)
		assert.Equal(t, x.CPUData(), top[0].CPUData(), phase.String())

		copy(top[0].MutableCPUDiff(), x.CPUData())
		layers.Backward(l, top, []bool{true}, bottom)
		assert.Equal(t, x.CPUData(), x.CPUDiff(), phase.String())
	}
}

func TestDropout_HighRatioZeroesMostOutputs(t *testing.T) {
	t.Cleanup(engine.Reset)
	engine.SetRandomSeed(11)
	p := config.NewLayer("drop", config.TypeDropout)
	p.DropoutRatio = 0.999

	x := testutil.Uniform[float64](1, 1, 2, 1, 1, 10, 100)
	bottom := []*blob.Blob[float64]{x}
	l, top := setUp(t, p, bottom, 1)
	layers.Forward(l, bottom, top)

	var zeros int
	for _, v := range top[0].CPUData() {
		if v == 0 {
			zeros++
		}
	}
	assert.Greater(t, zeros, 980)
}

func TestDropout_MaskReusedInBackward(t *testing.T) {
	t.Cleanup(engine.Reset)
	engine.SetRandomSeed(3)
	p := config.NewLayer("drop", config.TypeDropout)
	p.DropoutRatio = 0.5

	x := testutil.Uniform[float64](4, 1, 2, 1, 1, 1, 64)
	bottom := []*blob.Blob[float64]{x}
	l, top := setUp(t, p, bottom, 1)
	layers.Forward(l, bottom, top)

	for i := range top[0].MutableCPUDiff() {
		top[0].MutableCPUDiff()[i] = 1
	}
	layers.Backward(l, top, []bool{true}, bottom)

	mask := l.(*layers.Dropout[float64]).Mask()
	for i, keep := range mask {
		if keep == 1 {
			assert.InDelta(t, 2*x.CPUData()[i], top[0].CPUData()[i], 1e-12)
			assert.InDelta(t, 2.0, x.CPUDiff()[i], 1e-12)
		} else {
			assert.Zero(t, top[0].CPUData()[i])
			assert.Zero(t, x.CPUDiff()[i])
		}
	}
}

func TestDropout_MaskRedrawnEachForward(t *testing.T) {
	t.Cleanup(engine.Reset)
	engine.SetRandomSeed(5)
	p := config.NewLayer("drop", config.TypeDropout)
	p.DropoutRatio = 0.5

	x := testutil.Uniform[float64](6, 1, 2, 1, 1, 1, 64)
	bottom := []*blob.Blob[float64]{x}
	l, top := setUp(t, p, bottom, 1)
	drop := l.(*layers.Dropout[float64])

	layers.Forward(l, bottom, top)
	first := append([]uint32(nil), drop.Mask()...)
	layers.Forward(l, bottom, top)
	second := append([]uint32(nil), drop.Mask()...)
	require.NotEqual(t, first, second)

	for i := range top[0].MutableCPUDiff() {
		top[0].MutableCPUDiff()[i] = 1
	}
	layers.Backward(l, top, []bool{true}, bottom)
	for i, keep := range second {
		assert.InDelta(t, 2*float64(keep), x.CPUDiff()[i], 1e-12, "element %d", i)
		assert.InDelta(t, 2*float64(keep)*x.CPUData()[i], top[0].CPUData()[i], 1e-12, "element %d", i)
	}
}

func TestNeuron_PropagateDownFalseLeavesDiff(t *testing.T) {
	x := testutil.Gaussian[float64](9, 1, 1, 1, 2, 4)
	for i := range x.MutableCPUDiff() {
		x.MutableCPUDiff()[i] = 42
	}
	bottom := []*blob.Blob[float64]{x}
	l, top := setUp(t, config.NewLayer("relu", config.TypeReLU), bottom, 1)
	layers.Forward(l, bottom, top)
	copy(top[0].MutableCPUDiff(), top[0].CPUData())

	layers.Backward(l, top, nil, bottom)
	for _, v := range x.CPUDiff() {
		assert.Equal(t, 42.0, v)
	}
}

func TestLayer_ContractViolationsPanic(t *testing.T) {
	x := testutil.Gaussian[float64](1, 1, 1, 1, 1, 4)
	bottom := []*blob.Blob[float64]{x}
	l, err := layers.New[float64](config.NewLayer("relu", config.TypeReLU))
	require.NoError(t, err)
	top := testutil.Tops[float64](1)

	assert.Panics(t, func() { layers.Forward(l, bottom, top) })
	require.NoError(t, l.SetUp(bottom, top))
	assert.Panics(t, func() { layers.Backward(l, top, []bool{true}, bottom) })
	assert.ErrorIs(t, l.SetUp(bottom, top), layers.ErrAlreadySetUp)
}

func TestLayer_SetUpErrors(t *testing.T) {
	x := testutil.Gaussian[float64](1, 1, 1, 1, 1, 4)

	l, err := layers.New[float64](config.NewLayer("relu", config.TypeReLU))
	require.NoError(t, err)
	assert.ErrorIs(t, l.SetUp(nil, testutil.Tops[float64](1)), layers.ErrBottomCount)

	l, err = layers.New[float64](config.NewLayer("relu", config.TypeReLU))
	require.NoError(t, err)
	assert.ErrorIs(t, l.SetUp([]*blob.Blob[float64]{x}, nil), layers.ErrTopCount)

	l, err = layers.New[float64](config.NewLayer("relu", config.TypeReLU))
	require.NoError(t, err)
	assert.ErrorIs(t, l.SetUp([]*blob.Blob[float64]{x}, []*blob.Blob[float64]{x}), layers.ErrInPlace)

	_, err = layers.New[float64](config.NewLayer("", config.TypeReLU))
	assert.ErrorIs(t, err, layers.ErrInvalidParam)

	_, err = layers.New[float64](config.NewLayer("x", "nope"))
	assert.ErrorIs(t, err, layers.ErrInvalidParam)
}
