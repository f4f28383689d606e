package layers

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
	"github.com/born-ml/brew/internal/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestData_ReadsOneBatchAhead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	s, err := data.Create(dir)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Put(fmt.Sprintf("%08d", i), &data.Datum{
			Channels: 1, Height: 1, Width: 1,
			Data:  []byte{byte(i)},
			Label: int32(i),
		}))
	}

	p := config.NewLayer("data", config.TypeData)
	p.Source = dir
	p.BatchSize = 2
	l := NewData[float64](p)
	top := []*blob.Blob[float64]{blob.New[float64](), blob.New[float64]()}
	require.NoError(t, l.SetUp(nil, top))
	t.Cleanup(l.Close)

	// settle waits for a filled batch and gives the producer time to run on.
	settle := func() {
		require.Eventually(t, func() bool { return len(l.full) == 1 }, time.Second, time.Millisecond)
		time.Sleep(20 * time.Millisecond)
	}

	settle()
	assert.EqualValues(t, 2, l.read.Load())

	Forward[float64](l, nil, top)
	assert.Equal(t, []float64{0, 1}, top[1].CPUData())
	settle()
	assert.EqualValues(t, 4, l.read.Load())

	Forward[float64](l, nil, top)
	assert.Equal(t, []float64{2, 3}, top[1].CPUData())
}
