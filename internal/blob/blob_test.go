package blob

import (
	"testing"

	"github.com/born-ml/brew/internal/backend/emu"
	"github.com/born-ml/brew/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withDevice(t *testing.T) *emu.Device {
	t.Helper()
	d := emu.New()
	engine.SetDevice(d)
	t.Cleanup(engine.Reset)
	return d
}

func TestSyncedMemory_HeadTransitions(t *testing.T) {
	withDevice(t)

	m := NewSyncedMemory[float32](4)
	assert.Equal(t, Uninitialized, m.Head())

	host := m.MutableCPU()
	assert.Equal(t, []float32{0, 0, 0, 0}, host)
	assert.Equal(t, HostFresh, m.Head())
	copy(host, []float32{1, 2, 3, 4})

	m.GPU()
	assert.Equal(t, Synced, m.Head())
	assert.Equal(t, 1, m.Transfers())

	// Reading again from either side does not copy.
	m.CPU()
	m.GPU()
	assert.Equal(t, 1, m.Transfers())

	m.MutableGPU()
	assert.Equal(t, DeviceFresh, m.Head())

	assert.Equal(t, []float32{1, 2, 3, 4}, m.CPU())
	assert.Equal(t, Synced, m.Head())
	assert.Equal(t, 2, m.Transfers())

	m.MutableCPU()
	assert.Equal(t, HostFresh, m.Head())
}

func TestSyncedMemory_UninitializedDevice(t *testing.T) {
	withDevice(t)

	m := NewSyncedMemory[int32](3)
	m.MutableGPU()
	assert.Equal(t, DeviceFresh, m.Head())
	assert.Equal(t, []int32{0, 0, 0}, m.CPU())
}

func TestSyncedMemory_NoDevicePanics(t *testing.T) {
	engine.Reset()
	m := NewSyncedMemory[float64](2)
	assert.Panics(t, func() { m.GPU() })
}

func TestSyncedMemory_ReleaseFreesDeviceOnLastRef(t *testing.T) {
	d := withDevice(t)

	m := NewSyncedMemory[float32](8)
	m.GPU()
	m.Retain()
	assert.Equal(t, 2, m.RefCount())

	m.Release()
	assert.Equal(t, 1, d.Stats().LiveBuffers)
	m.Release()
	assert.Equal(t, 0, d.Stats().LiveBuffers)
}

func TestBlob_ShapeAccessors(t *testing.T) {
	b := New[float32](2, 3, 4, 5)
	assert.Equal(t, 120, b.Count())
	assert.Equal(t, 2, b.Num())
	assert.Equal(t, 3, b.Channels())
	assert.Equal(t, 4, b.Height())
	assert.Equal(t, 5, b.Width())
	assert.Equal(t, ((1*3+2)*4+3)*5+4, b.Offset(1, 2, 3, 4))
	assert.Equal(t, "2 3 4 5 (120)", b.ShapeString())
	assert.Equal(t, 60, b.Shape().CountFrom(1))
	assert.Equal(t, 5, b.Shape().CountFrom(3))
	assert.Equal(t, 1, b.Shape().CountFrom(4))

	flat := New[float32](7, 3)
	assert.Equal(t, 1, flat.Height())
	assert.Equal(t, 1, flat.Width())

	assert.Panics(t, func() { b.Reshape(2, 0) })
}

func TestBlob_ReshapeWithinCapacityReuses(t *testing.T) {
	b := New[float64](4, 3)
	data := b.Data()

	b.Reshape(2, 3)
	assert.Same(t, data, b.Data())
	assert.Len(t, b.CPUData(), 6)
	assert.Equal(t, 12, b.Capacity())

	b.Reshape(5, 3)
	assert.NotSame(t, data, b.Data())
	assert.Equal(t, 15, b.Capacity())
}

func TestBlob_VersionTracksMutation(t *testing.T) {
	b := New[float32](2)
	v := b.Version()
	b.CPUData()
	assert.Equal(t, v, b.Version())
	b.MutableCPUData()
	assert.NotEqual(t, v, b.Version())
}

func TestBlob_ShareData(t *testing.T) {
	a := New[float32](2, 2)
	b := New[float32](4)
	copy(a.MutableCPUData(), []float32{1, 2, 3, 4})

	b.ShareData(a)
	assert.Equal(t, []float32{1, 2, 3, 4}, b.CPUData())
	assert.Equal(t, 2, a.Data().RefCount())

	b.MutableCPUData()[0] = 9
	assert.Equal(t, float32(9), a.CPUData()[0])

	assert.Panics(t, func() { New[float32](3).ShareData(a) })
}

func TestBlob_CopyFrom(t *testing.T) {
	src := New[float64](1, 2)
	copy(src.MutableCPUData(), []float64{5, 6})
	copy(src.MutableCPUDiff(), []float64{7, 8})

	dst := New[float64](3)
	require.ErrorIs(t, dst.CopyFrom(src, false, false), ErrShape)

	require.NoError(t, dst.CopyFrom(src, false, true))
	assert.Equal(t, []float64{5, 6}, dst.CPUData())
	require.NoError(t, dst.CopyFrom(src, true, false))
	assert.Equal(t, []float64{7, 8}, dst.CPUDiff())
}

func TestBlob_CopyFromOnDevice(t *testing.T) {
	withDevice(t)
	engine.SetMode(engine.GPU)

	src := New[float32](3)
	copy(src.MutableCPUData(), []float32{1, 2, 3})
	dst := New[float32](3)

	require.NoError(t, dst.CopyFrom(src, false, false))
	assert.Equal(t, DeviceFresh, dst.Data().Head())
	assert.Equal(t, []float32{1, 2, 3}, dst.CPUData())
}

func TestBlob_Update(t *testing.T) {
	b := New[float32](3)
	copy(b.MutableCPUData(), []float32{1, 2, 3})
	copy(b.MutableCPUDiff(), []float32{0.5, 0.5, 0.5})

	b.Update()
	assert.Equal(t, []float32{0.5, 1.5, 2.5}, b.CPUData())
}

func TestBlob_UpdateOnDevice(t *testing.T) {
	d := withDevice(t)

	b := New[float64](2)
	copy(b.MutableCPUData(), []float64{3, 4})
	copy(b.MutableCPUDiff(), []float64{1, 1})
	b.MutableGPUData()
	launches := d.Stats().Launches

	b.Update()
	assert.Greater(t, d.Stats().Launches, launches)
	assert.Equal(t, []float64{2, 3}, b.CPUData())
}

func TestBlob_Norms(t *testing.T) {
	b := New[float64](3)
	copy(b.MutableCPUData(), []float64{-1, 2, -2})
	copy(b.MutableCPUDiff(), []float64{1, -1, 0})

	assert.InDelta(t, 5, b.AsumData(), 1e-12)
	assert.InDelta(t, 2, b.AsumDiff(), 1e-12)
	assert.InDelta(t, 9, b.SumSquaresData(), 1e-12)
	assert.Equal(t, float64(2), b.DataAt(0, 2, 0, 0)*-1)
}
