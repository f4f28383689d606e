package testutil

import (
	"math/rand/v2"
	"testing"

	"github.com/born-ml/brew/internal/backend/emu"
	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/engine"
	"github.com/born-ml/brew/internal/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"
)

// Uniform returns a blob of the given shape filled from U(lo, hi).
func Uniform[T blob.Float](seed uint64, lo, hi float64, dims ...int) *blob.Blob[T] {
	b := blob.New[T](dims...)
	dist := distuv.Uniform{Min: lo, Max: hi, Src: rand.NewPCG(seed, 1)}
	data := b.MutableCPUData()
	for i := range data {
		data[i] = T(dist.Rand())
	}
	return b
}

// Gaussian returns a blob of the given shape filled from N(0, std²).
func Gaussian[T blob.Float](seed uint64, std float64, dims ...int) *blob.Blob[T] {
	b := blob.New[T](dims...)
	dist := distuv.Normal{Mu: 0, Sigma: std, Src: rand.NewPCG(seed, 2)}
	data := b.MutableCPUData()
	for i := range data {
		data[i] = T(dist.Rand())
	}
	return b
}

// FromSlice returns a blob of the given shape holding vals.
func FromSlice[T blob.Float](vals []T, dims ...int) *blob.Blob[T] {
	b := blob.New[T](dims...)
	copy(b.MutableCPUData(), vals)
	return b
}

// Labels returns a (n,1,1,1) blob of class indices drawn from [0, classes).
func Labels[T blob.Float](seed uint64, n, classes int) *blob.Blob[T] {
	r := rand.New(rand.NewPCG(seed, 3))
	b := blob.New[T](n, 1, 1, 1)
	data := b.MutableCPUData()
	for i := range data {
		data[i] = T(r.IntN(classes))
	}
	return b
}

// Tops returns n empty blobs for SetUp to shape.
func Tops[T blob.Float](n int) []*blob.Blob[T] {
	top := make([]*blob.Blob[T], n)
	for i := range top {
		top[i] = blob.New[T]()
	}
	return top
}

// UseEmu switches the engine to GPU mode on a fresh emulated device and
// restores the previous state when the test ends.
func UseEmu(t testing.TB) *emu.Device {
	t.Helper()
	dev := emu.New()
	engine.SetDevice(dev)
	engine.SetMode(engine.GPU)
	t.Cleanup(engine.Reset)
	return dev
}

// Case builds a freshly set-up layer with its blobs. It is called once per
// execution mode with the engine seed reset, so fillers and masks match.
type Case[T blob.Float] func(t *testing.T) (l layers.Layer[T], bottom, top []*blob.Blob[T])

// pass is everything observable after one Forward/Backward.
type pass struct {
	tops, bottomDiffs, paramDiffs [][]float64
	loss                          float64
}

func run[T blob.Float](t *testing.T, build Case[T], seed uint64, backward bool) pass {
	engine.SetRandomSeed(seed)
	l, bottom, top := build(t)

	layers.Forward(l, bottom, top)
	var out pass
	for _, b := range top {
		out.tops = append(out.tops, toFloat64(b.CPUData()))
	}
	if !backward {
		return out
	}
	seedTopDiff(top)
	propagate := make([]bool, len(bottom))
	for i := range propagate {
		propagate[i] = true
	}
	out.loss = float64(layers.Backward(l, top, propagate, bottom))
	for _, b := range bottom {
		out.bottomDiffs = append(out.bottomDiffs, toFloat64(b.CPUDiff()))
	}
	for _, p := range l.Params() {
		out.paramDiffs = append(out.paramDiffs, toFloat64(p.CPUDiff()))
	}
	return out
}

// Parity runs the case on the host and on the emulated device and requires
// the outputs, gradients and loss to agree within tol.
func Parity[T blob.Float](t *testing.T, build Case[T], tol float64, backward bool) {
	t.Helper()
	t.Cleanup(engine.Reset)

	engine.Reset()
	host := run(t, build, 7, backward)

	UseEmu(t)
	dev := run(t, build, 7, backward)

	require.Len(t, dev.tops, len(host.tops))
	for i := range host.tops {
		assert.InDeltaSlice(t, host.tops[i], dev.tops[i], tol, "top %d", i)
	}
	if !backward {
		return
	}
	assert.InDelta(t, host.loss, dev.loss, tol, "loss")
	require.Len(t, dev.bottomDiffs, len(host.bottomDiffs))
	for i := range host.bottomDiffs {
		assert.InDeltaSlice(t, host.bottomDiffs[i], dev.bottomDiffs[i], tol, "bottom diff %d", i)
	}
	require.Len(t, dev.paramDiffs, len(host.paramDiffs))
	for i := range host.paramDiffs {
		assert.InDeltaSlice(t, host.paramDiffs[i], dev.paramDiffs[i], tol, "param diff %d", i)
	}
}
