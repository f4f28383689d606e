package layers_test

import (
	"testing"

	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
	"github.com/born-ml/brew/internal/layers"
	"github.com/born-ml/brew/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func convolution(numOutput, kernel, stride, pad, group int) config.LayerParameter {
	p := config.NewLayer("conv", config.TypeConvolution)
	p.NumOutput = numOutput
	p.KernelSize = kernel
	p.Stride = stride
	p.Pad = pad
	p.Group = group
	p.WeightFiller = config.FillerParameter{Type: config.FillerGaussian, Std: 0.3}
	p.BiasFiller = config.FillerParameter{Type: config.FillerConstant, Value: 0.1}
	return p
}

func pooling(method config.PoolMethod, kernel, stride int) config.LayerParameter {
	p := config.NewLayer("pool", config.TypePooling)
	p.Pool = method
	p.KernelSize = kernel
	p.Stride = stride
	return p
}

func TestPadding_RoundTrip(t *testing.T) {
	for _, pad := range []int{0, 1, 3} {
		p := config.NewLayer("pad", config.TypePadding)
		p.Pad = pad
		x := testutil.Gaussian[float64](uint64(pad), 1, 2, 3, 4, 5)
		bottom := []*blob.Blob[float64]{x}
		l, top := setUp(t, p, bottom, 1)
		assert.Equal(t, []int{2, 3, 4 + 2*pad, 5 + 2*pad}, []int(top[0].Shape()))

		layers.Forward(l, bottom, top)
		copy(top[0].MutableCPUDiff(), top[0].CPUData())
		layers.Backward(l, top, []bool{true}, bottom)
		assert.Equal(t, x.CPUData(), x.CPUDiff(), "pad %d", pad)
		if pad > 0 {
			assert.Zero(t, top[0].DataAt(1, 2, 0, 0))
			assert.Equal(t, x.DataAt(1, 2, 0, 0), top[0].DataAt(1, 2, pad, pad))
		}
	}
}

func TestIm2col_Layer(t *testing.T) {
	p := config.NewLayer("im2col", config.TypeIm2col)
	p.KernelSize = 2
	p.Stride = 1
	x := testutil.FromSlice([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9}, 1, 1, 3, 3)
	bottom := []*blob.Blob[float64]{x}
	l, top := setUp(t, p, bottom, 1)
	assert.Equal(t, []int{1, 4, 2, 2}, []int(top[0].Shape()))

	layers.Forward(l, bottom, top)
	assert.Equal(t, []float64{
		1, 2, 4, 5,
		2, 3, 5, 6,
		4, 5, 7, 8,
		5, 6, 8, 9,
	}, top[0].CPUData())
}

func TestIm2col_Gradient(t *testing.T) {
	p := config.NewLayer("im2col", config.TypeIm2col)
	p.KernelSize = 3
	p.Stride = 2
	p.Pad = 1
	x := testutil.Gaussian[float64](1, 1, 2, 2, 5, 5)
	bottom := []*blob.Blob[float64]{x}
	l, top := setUp(t, p, bottom, 1)
	testutil.CheckGradient(t, testutil.DefaultChecker(), l, bottom, top)
}

func TestPooling_MaxRoutesToWinner(t *testing.T) {
	x := testutil.FromSlice([]float64{
		1, 9, 2, 0,
		3, 4, 8, 5,
		7, 6, 1, 1,
		0, 2, 3, 10,
	}, 1, 1, 4, 4)
	bottom := []*blob.Blob[float64]{x}
	l, top := setUp(t, pooling(config.PoolMax, 2, 2), bottom, 1)
	layers.Forward(l, bottom, top)
	assert.Equal(t, []float64{9, 8, 7, 10}, top[0].CPUData())
	assert.Equal(t, []int32{1, 6, 8, 15}, l.(*layers.Pooling[float64]).Indices())

	copy(top[0].MutableCPUDiff(), []float64{1, 2, 3, 4})
	layers.Backward(l, top, []bool{true}, bottom)
	want := make([]float64, 16)
	want[1], want[6], want[8], want[15] = 1, 2, 3, 4
	assert.Equal(t, want, x.CPUDiff())
}

func TestPooling_StaleIndicesPanic(t *testing.T) {
	x := testutil.Gaussian[float64](1, 1, 1, 1, 4, 4)
	bottom := []*blob.Blob[float64]{x}
	l, top := setUp(t, pooling(config.PoolMax, 2, 2), bottom, 1)
	layers.Forward(l, bottom, top)

	top[0].MutableCPUData()[0] = 100
	assert.Panics(t, func() { layers.Backward(l, top, []bool{true}, bottom) })
}

func TestPooling_CeilShape(t *testing.T) {
	x := testutil.Gaussian[float64](1, 1, 2, 3, 7, 6)
	bottom := []*blob.Blob[float64]{x}
	_, top := setUp(t, pooling(config.PoolAve, 3, 2), bottom, 1)
	assert.Equal(t, []int{2, 3, 3, 3}, []int(top[0].Shape()))
}

func TestPooling_Gradients(t *testing.T) {
	for _, method := range []config.PoolMethod{config.PoolMax, config.PoolAve} {
		t.Run(method.String(), func(t *testing.T) {
			x := testutil.Uniform[float64](2, -5, 5, 2, 2, 5, 5)
			bottom := []*blob.Blob[float64]{x}
			l, top := setUp(t, pooling(method, 3, 2), bottom, 1)
			testutil.CheckGradient(t, testutil.GradientChecker{Step: 1e-5, Threshold: 1e-3}, l, bottom, top)
		})
	}
}

func TestConvolution_Shapes(t *testing.T) {
	x := testutil.Gaussian[float64](1, 1, 2, 4, 7, 7)
	bottom := []*blob.Blob[float64]{x}
	l, top := setUp(t, convolution(6, 3, 2, 1, 2), bottom, 1)
	assert.Equal(t, []int{2, 6, 4, 4}, []int(top[0].Shape()))
	require.Len(t, l.Params(), 2)
	assert.Equal(t, []int{6, 2, 3, 3}, []int(l.Params()[0].Shape()))
	assert.Equal(t, []int{1, 1, 1, 6}, []int(l.Params()[1].Shape()))
}

func TestConvolution_KnownOutput(t *testing.T) {
	p := convolution(1, 2, 1, 0, 1)
	p.WeightFiller = config.FillerParameter{Type: config.FillerConstant, Value: 1}
	p.BiasFiller = config.FillerParameter{Type: config.FillerConstant, Value: 0.5}
	x := testutil.FromSlice([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9}, 1, 1, 3, 3)
	bottom := []*blob.Blob[float64]{x}
	l, top := setUp(t, p, bottom, 1)

	layers.Forward(l, bottom, top)
	assert.Equal(t, []float64{12.5, 16.5, 24.5, 28.5}, top[0].CPUData())
}

func TestConvolution_Gradient(t *testing.T) {
	tests := []struct {
		name                               string
		numOutput, kernel, stride, pad, gr int
	}{
		{"plain", 3, 3, 1, 0, 1},
		{"strided padded", 4, 3, 2, 1, 1},
		{"grouped", 4, 2, 1, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := testutil.Gaussian[float64](3, 1, 2, 2, 5, 5)
			bottom := []*blob.Blob[float64]{x}
			l, top := setUp(t, convolution(tt.numOutput, tt.kernel, tt.stride, tt.pad, tt.gr), bottom, 1)
			testutil.CheckGradient(t, testutil.DefaultChecker(), l, bottom, top)
		})
	}
}

func TestConvolution_ChannelsNotDivisible(t *testing.T) {
	x := testutil.Gaussian[float64](1, 1, 1, 3, 5, 5)
	l, err := layers.New[float64](convolution(4, 3, 1, 0, 2))
	require.NoError(t, err)
	assert.ErrorIs(t, l.SetUp([]*blob.Blob[float64]{x}, testutil.Tops[float64](1)), layers.ErrShapeMismatch)
}

func TestLRN_Gradients(t *testing.T) {
	for _, region := range []config.NormRegion{config.AcrossChannels, config.WithinChannel} {
		t.Run(region.String(), func(t *testing.T) {
			p := config.NewLayer("lrn", config.TypeLRN)
			p.LocalSize = 3
			p.Alpha = 0.5
			p.NormRegion = region
			x := testutil.Gaussian[float64](4, 1, 2, 5, 3, 3)
			bottom := []*blob.Blob[float64]{x}
			l, top := setUp(t, p, bottom, 1)
			testutil.CheckGradient(t, testutil.DefaultChecker(), l, bottom, top)
		})
	}
}

func TestSpatial_Parity(t *testing.T) {
	lrn := config.NewLayer("lrn", config.TypeLRN)
	lrn.LocalSize = 3
	pad := config.NewLayer("pad", config.TypePadding)
	pad.Pad = 2
	im2col := config.NewLayer("im2col", config.TypeIm2col)
	im2col.KernelSize = 3
	im2col.Pad = 1

	tests := []struct {
		name  string
		param config.LayerParameter
	}{
		{"conv", convolution(4, 3, 1, 1, 2)},
		{"max pool", pooling(config.PoolMax, 3, 2)},
		{"ave pool", pooling(config.PoolAve, 2, 2)},
		{"lrn", lrn},
		{"padding", pad},
		{"im2col", im2col},
		{"softmax", config.NewLayer("softmax", config.TypeSoftmax)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.Parity(t, func(t *testing.T) (layers.Layer[float32], []*blob.Blob[float32], []*blob.Blob[float32]) {
				x := testutil.Gaussian[float32](5, 1, 2, 4, 6, 6)
				bottom := []*blob.Blob[float32]{x}
				l, top := setUp(t, tt.param, bottom, 1)
				return l, bottom, top
			}, 1e-5, true)
		})
	}
}
