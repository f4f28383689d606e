package data

import (
	"path/filepath"
	"testing"

	"github.com/born-ml/brew/internal/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func datum(label int32, fill byte) *Datum {
	return &Datum{Channels: 1, Height: 2, Width: 2, Data: []byte{fill, fill, fill, fill}, Label: label}
}

func TestStore_PutGetOrder(t *testing.T) {
	s, err := Create(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)

	require.NoError(t, s.Put("b", datum(2, 20)))
	require.NoError(t, s.Put("a", datum(1, 10)))
	require.NoError(t, s.Put("c", datum(3, 30)))
	require.NoError(t, s.Put("a", datum(4, 40)))

	assert.Equal(t, []string{"a", "b", "c"}, s.Keys())

	d, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, int32(4), d.Label)
	assert.Equal(t, 40.0, d.Value(3))

	_, err = s.Get("zzz")
	assert.Error(t, err)
}

func TestStore_ReopenSeesRecords(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	s, err := Create(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put("k1", datum(1, 1)))

	reopened, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Len())

	_, err = Open(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestStore_RejectsInvalid(t *testing.T) {
	s, err := Create(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, s.Put("", datum(0, 0)))
	assert.Error(t, s.Put("a/b", datum(0, 0)))
	assert.Error(t, s.Put("bad", &Datum{Channels: 1, Height: 1, Width: 2, Data: []byte{1}}))
}

func TestCursor_Wraps(t *testing.T) {
	s, err := Create(t.TempDir())
	require.NoError(t, err)
	for i, k := range []string{"0", "1", "2"} {
		require.NoError(t, s.Put(k, datum(int32(i), byte(i))))
	}

	c := s.Cursor()
	var labels []int32
	for i := 0; i < 7; i++ {
		_, d, err := c.Next()
		require.NoError(t, err)
		labels = append(labels, d.Label)
	}
	assert.Equal(t, []int32{0, 1, 2, 0, 1, 2, 0}, labels)

	c.Skip(2)
	key, _, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, "0", key)
}

func TestCursor_FollowsStoreIndex(t *testing.T) {
	s, err := Create(t.TempDir())
	require.NoError(t, err)
	_, _, err = s.Cursor().Next()
	assert.ErrorContains(t, err, "empty")

	require.NoError(t, s.Put("a", datum(0, 0)))
	require.NoError(t, s.Put("c", datum(2, 2)))
	c := s.Cursor()
	key, _, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", key)

	// A record put behind the cursor's position is seen on the next step.
	require.NoError(t, s.Put("b", datum(1, 1)))
	key, d, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, "b", key)
	assert.Equal(t, int32(1), d.Label)
}

func TestBlobProto_RoundTrip(t *testing.T) {
	b := blob.New[float64](1, 2, 1, 2)
	copy(b.MutableCPUData(), []float64{1, 2, 3, 4})

	file := filepath.Join(t.TempDir(), "mean.binaryproto")
	require.NoError(t, Flush(FromBlob(b, false), file))

	loaded, err := LoadBlob[float32](file)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 1, 2}, []int(loaded.Shape()))
	assert.Equal(t, []float32{1, 2, 3, 4}, loaded.CPUData())
}

func TestDatum_Validate(t *testing.T) {
	assert.NoError(t, (&Datum{Channels: 1, Height: 1, Width: 2, FloatData: []float32{1, 2}}).Validate())
	assert.Error(t, (&Datum{Channels: 1, Height: 1, Width: 2, FloatData: []float32{1}}).Validate())
	assert.Error(t, (&Datum{}).Validate())
}
