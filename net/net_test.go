package net_test

import (
	"testing"

	"github.com/born-ml/brew/backend/emu"
	"github.com/born-ml/brew/blob"
	"github.com/born-ml/brew/engine"
	"github.com/born-ml/brew/layers"
	"github.com/born-ml/brew/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reluDistance() net.Parameter {
	return net.Parameter{
		Name: "relu-distance",
		Inputs: []net.Input{
			{Name: "x", Shape: []int{2, 3, 1, 1}},
			{Name: "target", Shape: []int{2, 3, 1, 1}},
		},
		Layers: []net.LayerConnection{
			{Layer: layers.NewParameter("relu", layers.TypeReLU), Bottom: []string{"x"}, Top: []string{"r"}},
			{Layer: layers.NewParameter("loss", layers.TypeEuclideanLoss), Bottom: []string{"r", "target"}},
		},
	}
}

func TestPublicAPI(t *testing.T) {
	for _, gpu := range []bool{false, true} {
		t.Run(map[bool]string{false: "cpu", true: "emu"}[gpu], func(t *testing.T) {
			t.Cleanup(engine.Reset)
			if gpu {
				engine.SetDevice(emu.New())
				engine.SetMode(engine.GPU)
			}

			n, err := net.New[float64](reluDistance())
			require.NoError(t, err)
			defer n.Close()

			x := blob.New[float64](2, 3, 1, 1)
			copy(x.MutableCPUData(), []float64{-1, 2, 3, 0, -4, 1})
			target := blob.New[float64](2, 3, 1, 1)
			copy(target.MutableCPUData(), []float64{1, 2, 2, 0, 0, 0})

			_, err = n.Forward(x, target)
			require.NoError(t, err)
			// Differences after relu: -1 0 1 0 0 1.
			assert.InDelta(t, 3.0/4, n.Backward(), 1e-12)
			assert.Empty(t, n.Params())

			_, err = n.Forward(x)
			assert.ErrorIs(t, err, net.ErrInputCount)
		})
	}
}
