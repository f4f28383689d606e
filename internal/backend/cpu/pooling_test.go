package cpu

import (
	"testing"

	"github.com/born-ml/brew/internal/backend"
	"github.com/stretchr/testify/assert"
)

func poolGeometry(n, c, h, w, k, s int) backend.PoolGeometry {
	return backend.PoolGeometry{
		Num: n, Channels: c, Height: h, Width: w, KernelSize: k, Stride: s,
		PooledHeight: backend.PooledSize(h, k, s),
		PooledWidth:  backend.PooledSize(w, k, s),
	}
}

func TestPooledSize_KeepsPartialWindow(t *testing.T) {
	assert.Equal(t, 2, backend.PooledSize(4, 2, 2))
	assert.Equal(t, 3, backend.PooledSize(5, 2, 2))
	assert.Equal(t, 3, backend.PooledSize(7, 3, 2))
	assert.Equal(t, 1, backend.PooledSize(3, 3, 1))
}

func TestPoolForward_Max(t *testing.T) {
	x := make([]float32, 16)
	for i := range x {
		x[i] = float32(i + 1)
	}
	g := poolGeometry(1, 1, 4, 4, 2, 2)
	y := make([]float32, 4)
	mask := make([]int32, 4)

	PoolForward(backend.PoolMax, x, g, y, mask)

	assert.Equal(t, []float32{6, 8, 14, 16}, y)
	assert.Equal(t, []int32{5, 7, 13, 15}, mask)
}

func TestPoolForward_MaxFirstWinsTies(t *testing.T) {
	x := []float64{3, 3, 3, 3}
	g := poolGeometry(1, 1, 2, 2, 2, 2)
	y := make([]float64, 1)
	mask := make([]int32, 1)

	PoolForward(backend.PoolMax, x, g, y, mask)
	assert.Equal(t, int32(0), mask[0])
}

func TestPoolForward_AveClipsWindow(t *testing.T) {
	// 3x3 with k=2 s=2: pooled 2x2, right/bottom windows partial.
	x := []float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}
	g := poolGeometry(1, 1, 3, 3, 2, 2)
	y := make([]float64, 4)

	PoolForward(backend.PoolAve, x, g, y, nil)

	assert.InDeltaSlice(t, []float64{3, 4.5, 7.5, 9}, y, 1e-12)
}

func TestPoolBackward_MaxRoutesToWinner(t *testing.T) {
	x := []float64{
		1, 9, 2, 0,
		3, 4, 8, 1,
		0, 0, 5, 6,
		7, 1, 2, 2,
	}
	g := poolGeometry(1, 1, 4, 4, 2, 2)
	y := make([]float64, 4)
	mask := make([]int32, 4)
	PoolForward(backend.PoolMax, x, g, y, mask)

	dy := []float64{1, 2, 3, 4}
	dx := make([]float64, 16)
	for i := range dx {
		dx[i] = -1
	}
	PoolBackward(backend.PoolMax, dy, mask, g, dx)

	want := make([]float64, 16)
	want[1], want[6], want[12], want[11] = 1, 2, 3, 4
	assert.Equal(t, want, dx)

	var total float64
	for _, v := range dx {
		total += v
	}
	assert.Equal(t, 10.0, total)
}

func TestPoolBackward_AveSpreadsEvenly(t *testing.T) {
	g := poolGeometry(1, 2, 2, 2, 2, 2)
	dy := []float32{4, 8}
	dx := make([]float32, 8)

	PoolBackward(backend.PoolAve, dy, nil, g, dx)

	assert.Equal(t, []float32{1, 1, 1, 1, 2, 2, 2, 2}, dx)
}
