package layers_test

import (
	"testing"

	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
	"github.com/born-ml/brew/internal/layers"
	"github.com/born-ml/brew/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func innerProduct(numOutput int) config.LayerParameter {
	p := config.NewLayer("ip", config.TypeInnerProduct)
	p.NumOutput = numOutput
	p.WeightFiller = config.FillerParameter{Type: config.FillerGaussian, Std: 0.5}
	p.BiasFiller = config.FillerParameter{Type: config.FillerUniform, Min: -1, Max: 1}
	return p
}

func TestInnerProduct_Example(t *testing.T) {
	p := config.NewLayer("ip", config.TypeInnerProduct)
	p.NumOutput = 2
	x := testutil.FromSlice([]float32{1, 2, 3, 4, 5, 6}, 2, 3, 1, 1)
	bottom := []*blob.Blob[float32]{x}
	l, top := setUp(t, p, bottom, 1)

	params := l.Params()
	require.Len(t, params, 2)
	assert.Equal(t, []int{1, 1, 2, 3}, []int(params[0].Shape()))
	// W is stored N×K, the transpose of [[1,0],[0,1],[1,1]].
	copy(params[0].MutableCPUData(), []float32{1, 0, 1, 0, 1, 1})

	layers.Forward(l, bottom, top)
	assert.Equal(t, []int{2, 2, 1, 1}, []int(top[0].Shape()))
	assert.Equal(t, []float32{4, 5, 10, 11}, top[0].CPUData())

	copy(top[0].MutableCPUDiff(), []float32{1, 1, 1, 1})
	layers.Backward(l, top, []bool{true}, bottom)
	assert.Equal(t, []float32{2, 2}, params[1].CPUDiff())
	// Xᵀ·dY is [[5,5],[7,7],[9,9]], stored transposed.
	assert.Equal(t, []float32{5, 7, 9, 5, 7, 9}, params[0].CPUDiff())
	// dX = dY·W
	assert.Equal(t, []float32{1, 1, 2, 1, 1, 2}, x.CPUDiff())
}

func TestInnerProduct_MatchesMatrixProduct(t *testing.T) {
	x := testutil.Gaussian[float64](1, 1, 4, 2, 3, 1)
	bottom := []*blob.Blob[float64]{x}
	l, top := setUp(t, innerProduct(5), bottom, 1)
	layers.Forward(l, bottom, top)

	w, b := l.Params()[0], l.Params()[1]
	want := mat.NewDense(4, 5, nil)
	want.Mul(mat.NewDense(4, 6, x.CPUData()), mat.NewDense(5, 6, w.CPUData()).T())
	for i := 0; i < 4; i++ {
		for j := 0; j < 5; j++ {
			want.Set(i, j, want.At(i, j)+b.CPUData()[j])
		}
	}
	assert.InDeltaSlice(t, want.RawMatrix().Data, top[0].CPUData(), 1e-12)
}

func TestInnerProduct_Gradient(t *testing.T) {
	x := testutil.Gaussian[float64](2, 1, 3, 2, 2, 2)
	bottom := []*blob.Blob[float64]{x}
	l, top := setUp(t, innerProduct(4), bottom, 1)
	testutil.CheckGradient(t, testutil.DefaultChecker(), l, bottom, top)
}

func TestInnerProduct_NoBias(t *testing.T) {
	p := innerProduct(3)
	p.BiasTerm = false
	x := testutil.Gaussian[float64](2, 1, 2, 4, 1, 1)
	bottom := []*blob.Blob[float64]{x}
	l, top := setUp(t, p, bottom, 1)
	assert.Len(t, l.Params(), 1)
	testutil.CheckGradient(t, testutil.DefaultChecker(), l, bottom, top)
}

func TestInnerProduct_AccumulatesParamDiffs(t *testing.T) {
	x := testutil.Gaussian[float64](3, 1, 2, 3, 1, 1)
	bottom := []*blob.Blob[float64]{x}
	l, top := setUp(t, innerProduct(2), bottom, 1)
	layers.Forward(l, bottom, top)
	copy(top[0].MutableCPUDiff(), []float64{1, -2, 0.5, 3})

	layers.Backward(l, top, []bool{true}, bottom)
	first := make([][]float64, 0, 2)
	for _, p := range l.Params() {
		first = append(first, append([]float64(nil), p.CPUDiff()...))
	}
	dx := append([]float64(nil), x.CPUDiff()...)

	layers.Backward(l, top, []bool{true}, bottom)
	for i, p := range l.Params() {
		for j, v := range p.CPUDiff() {
			assert.InDelta(t, 2*first[i][j], v, 1e-12)
		}
	}
	// Bottom gradients are overwritten, not summed.
	assert.InDeltaSlice(t, dx, x.CPUDiff(), 1e-12)
}

func TestInnerProduct_Parity(t *testing.T) {
	testutil.Parity(t, func(t *testing.T) (layers.Layer[float64], []*blob.Blob[float64], []*blob.Blob[float64]) {
		x := testutil.Gaussian[float64](4, 1, 3, 2, 2, 2)
		bottom := []*blob.Blob[float64]{x}
		l, top := setUp(t, innerProduct(5), bottom, 1)
		return l, bottom, top
	}, 1e-10, true)
}

func TestElementWiseProduct(t *testing.T) {
	a := testutil.Gaussian[float64](1, 1, 2, 3, 2, 2)
	b := testutil.Gaussian[float64](2, 1, 2, 3, 2, 2)
	bottom := []*blob.Blob[float64]{a, b}
	l, top := setUp(t, config.NewLayer("prod", config.TypeElementWiseProduct), bottom, 1)

	layers.Forward(l, bottom, top)
	for i, v := range top[0].CPUData() {
		assert.InDelta(t, a.CPUData()[i]*b.CPUData()[i], v, 1e-12)
	}
	testutil.CheckGradient(t, testutil.DefaultChecker(), l, bottom, top)
}

func TestElementWiseProduct_PerBottomFlags(t *testing.T) {
	a := testutil.Gaussian[float64](1, 1, 1, 1, 2, 2)
	b := testutil.Gaussian[float64](2, 1, 1, 1, 2, 2)
	for i := range b.MutableCPUDiff() {
		b.MutableCPUDiff()[i] = 7
	}
	bottom := []*blob.Blob[float64]{a, b}
	l, top := setUp(t, config.NewLayer("prod", config.TypeElementWiseProduct), bottom, 1)
	layers.Forward(l, bottom, top)
	for i := range top[0].MutableCPUDiff() {
		top[0].MutableCPUDiff()[i] = 1
	}

	layers.Backward(l, top, []bool{true, false}, bottom)
	assert.Equal(t, b.CPUData(), a.CPUDiff())
	assert.Equal(t, []float64{7, 7, 7, 7}, b.CPUDiff())
}

func TestElementWiseProduct_ShapeMismatch(t *testing.T) {
	a := testutil.Gaussian[float64](1, 1, 1, 1, 2, 2)
	b := testutil.Gaussian[float64](2, 1, 1, 1, 4, 1)
	l, err := layers.New[float64](config.NewLayer("prod", config.TypeElementWiseProduct))
	require.NoError(t, err)
	assert.ErrorIs(t, l.SetUp([]*blob.Blob[float64]{a, b}, testutil.Tops[float64](1)), layers.ErrShapeMismatch)
}

func TestFlatten(t *testing.T) {
	x := testutil.Gaussian[float64](1, 1, 2, 3, 4, 5)
	bottom := []*blob.Blob[float64]{x}
	l, top := setUp(t, config.NewLayer("flat", config.TypeFlatten), bottom, 1)
	assert.Equal(t, []int{2, 60, 1, 1}, []int(top[0].Shape()))

	layers.Forward(l, bottom, top)
	assert.Equal(t, x.CPUData(), top[0].CPUData())
	testutil.CheckGradient(t, testutil.DefaultChecker(), l, bottom, top)
}
