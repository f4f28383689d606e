package cpu

import (
	"testing"

	"github.com/born-ml/brew/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIm2col_Layout(t *testing.T) {
	// 1 channel, 3x3 image, 2x2 kernel, stride 1, no pad
	im := []float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}
	g := backend.ConvGeometry{Channels: 1, Height: 3, Width: 3, KernelSize: 2, Stride: 1}
	require.Equal(t, 4, g.ColRows())
	col := make([]float64, g.ColCount())

	Im2col(im, g, col)

	assert.Equal(t, []float64{
		1, 2, 4, 5, // kh=0 kw=0
		2, 3, 5, 6, // kh=0 kw=1
		4, 5, 7, 8, // kh=1 kw=0
		5, 6, 8, 9, // kh=1 kw=1
	}, col)
}

func TestIm2col_PadReadsZero(t *testing.T) {
	im := []float32{1, 2, 3, 4}
	g := backend.ConvGeometry{Channels: 1, Height: 2, Width: 2, KernelSize: 3, Pad: 1, Stride: 1}
	col := make([]float32, g.ColCount())

	Im2col(im, g, col)

	// Centre tap (kh=1, kw=1) sees the image itself.
	centre := col[4*4 : 5*4]
	assert.Equal(t, []float32{1, 2, 3, 4}, centre)
	// Top-left tap only sees the last pixel.
	assert.Equal(t, []float32{0, 0, 0, 1}, col[0:4])
}

func TestCol2im_IsAdjointOfIm2col(t *testing.T) {
	g := backend.ConvGeometry{Channels: 2, Height: 5, Width: 4, KernelSize: 3, Pad: 1, Stride: 2}
	require.NoError(t, g.Validate())

	im := make([]float64, g.Channels*g.Height*g.Width)
	for i := range im {
		im[i] = float64(i%11) - 5
	}
	col := make([]float64, g.ColCount())
	for i := range col {
		col[i] = float64(i%7) * 0.25
	}

	// <im2col(im), col> == <im, col2im(col)>
	expanded := make([]float64, g.ColCount())
	Im2col(im, g, expanded)
	folded := make([]float64, len(im))
	Col2im(col, g, folded)

	assert.InDelta(t, Dot(expanded, col), Dot(im, folded), 1e-9)
}

func TestCol2im_OverwritesOutput(t *testing.T) {
	g := backend.ConvGeometry{Channels: 1, Height: 2, Width: 2, KernelSize: 1, Stride: 1}
	im := []float32{9, 9, 9, 9}
	Col2im([]float32{1, 2, 3, 4}, g, im)
	assert.Equal(t, []float32{1, 2, 3, 4}, im)
}

func TestConvGeometry_Validate(t *testing.T) {
	assert.Error(t, backend.ConvGeometry{Channels: 1, Height: 2, Width: 2, KernelSize: 5, Stride: 1}.Validate())
	assert.Error(t, backend.ConvGeometry{Channels: 1, Height: 2, Width: 2, KernelSize: 1}.Validate())
	assert.NoError(t, backend.ConvGeometry{Channels: 1, Height: 2, Width: 2, KernelSize: 5, Pad: 2, Stride: 1}.Validate())
}
