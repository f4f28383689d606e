package layers_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
	"github.com/born-ml/brew/internal/data"
	"github.com/born-ml/brew/internal/engine"
	"github.com/born-ml/brew/internal/layers"
	"github.com/born-ml/brew/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeStore writes n 1×2×2 records whose pixels all equal the record index
// and whose label is index % classes.
func makeStore(t *testing.T, n, classes int) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "db")
	s, err := data.Create(dir)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		v := byte(i)
		require.NoError(t, s.Put(fmt.Sprintf("%08d", i), &data.Datum{
			Channels: 1, Height: 2, Width: 2,
			Data:     []byte{v, v, v, v},
			Label:    int32(i % classes),
			Filename: fmt.Sprintf("img%d.png", i),
		}))
	}
	return dir
}

func dataLayer(source string, batch int) config.LayerParameter {
	p := config.NewLayer("data", config.TypeData)
	p.Source = source
	p.BatchSize = batch
	return p
}

func newData(t *testing.T, p config.LayerParameter) (*layers.Data[float64], []*blob.Blob[float64]) {
	t.Helper()
	l, top := setUp[float64](t, p, nil, 2)
	d := l.(*layers.Data[float64])
	t.Cleanup(d.Close)
	return d, top
}

func TestData_KeyOrderAndWrap(t *testing.T) {
	d, top := newData(t, dataLayer(makeStore(t, 5, 5), 3))
	assert.Equal(t, 5, d.DataCount())
	assert.Equal(t, []int{3, 1, 2, 2}, []int(top[0].Shape()))
	assert.Equal(t, []int{3, 1, 1, 1}, []int(top[1].Shape()))

	var labels []float64
	for i := 0; i < 3; i++ {
		layers.Forward[float64](d, nil, top)
		labels = append(labels, top[1].CPUData()...)
	}
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 0, 1, 2, 3}, labels)
	assert.Equal(t, []string{"img1.png", "img2.png", "img3.png"}, d.Filenames())
	assert.Equal(t, []float64{3, 3, 3, 3}, top[0].CPUData()[8:12])
}

func TestData_ScaleAndMean(t *testing.T) {
	mean := testutil.FromSlice([]float64{1, 1, 1, 1}, 1, 1, 2, 2)
	meanFile := filepath.Join(t.TempDir(), "mean.binaryproto")
	require.NoError(t, data.Flush(data.FromBlob(mean, false), meanFile))

	p := dataLayer(makeStore(t, 3, 3), 1)
	p.Scale = 0.5
	p.MeanFile = meanFile
	d, top := newData(t, p)

	layers.Forward[float64](d, nil, top)
	layers.Forward[float64](d, nil, top)
	layers.Forward[float64](d, nil, top)
	// (2 − 1) · 0.5
	assert.Equal(t, []float64{0.5, 0.5, 0.5, 0.5}, top[0].CPUData())
}

func TestData_CentreCropInTest(t *testing.T) {
	t.Cleanup(engine.Reset)
	engine.SetPhase(engine.Test)

	dir := filepath.Join(t.TempDir(), "db")
	s, err := data.Create(dir)
	require.NoError(t, err)
	pixels := make([]byte, 16)
	for i := range pixels {
		pixels[i] = byte(i)
	}
	require.NoError(t, s.Put("a", &data.Datum{Channels: 1, Height: 4, Width: 4, Data: pixels}))

	p := dataLayer(dir, 1)
	p.CropSize = 2
	p.Mirror = true
	d, top := setUp[float64](t, p, nil, 1)
	t.Cleanup(d.(*layers.Data[float64]).Close)
	assert.Equal(t, []int{1, 1, 2, 2}, []int(top[0].Shape()))

	layers.Forward(d, nil, top)
	assert.Equal(t, []float64{5, 6, 9, 10}, top[0].CPUData())
}

func TestData_ClassBalanced(t *testing.T) {
	p := dataLayer(makeStore(t, 12, 3), 6)
	p.ImagesPerClass = 2
	d, top := newData(t, p)

	layers.Forward[float64](d, nil, top)
	assert.Equal(t, []float64{0, 0, 1, 1, 2, 2}, top[1].CPUData())
	layers.Forward[float64](d, nil, top)
	assert.Equal(t, []float64{0, 0, 1, 1, 2, 2}, top[1].CPUData())
	// The second batch continues within each class.
	assert.Equal(t, []string{"img6.png", "img9.png", "img7.png", "img10.png", "img8.png", "img11.png"}, d.Filenames())
}

func TestData_ClassBalancedRejectsBatch(t *testing.T) {
	p := dataLayer(makeStore(t, 6, 3), 4)
	p.ImagesPerClass = 1
	l, err := layers.New[float64](p)
	require.NoError(t, err)
	assert.ErrorIs(t, l.SetUp(nil, testutil.Tops[float64](2)), layers.ErrInvalidParam)
}

func TestData_MissingSource(t *testing.T) {
	l, err := layers.New[float64](dataLayer(filepath.Join(t.TempDir(), "nope"), 1))
	require.NoError(t, err)
	assert.ErrorIs(t, l.SetUp(nil, testutil.Tops[float64](1)), layers.ErrInvalidParam)
}

func TestData_ForwardAfterClosePanics(t *testing.T) {
	d, top := newData(t, dataLayer(makeStore(t, 2, 2), 1))
	d.Close()
	assert.Panics(t, func() { layers.Forward[float64](d, nil, top) })
}
