package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLayer_Defaults(t *testing.T) {
	p := NewLayer("conv1", TypeConvolution)

	assert.True(t, p.BiasTerm)
	assert.Equal(t, 1, p.Group)
	assert.Equal(t, 1, p.Stride)
	assert.Equal(t, 0.5, p.DropoutRatio)
	assert.Equal(t, 5, p.LocalSize)
	assert.Equal(t, 0.75, p.Beta)
	assert.Equal(t, FillerConstant, p.WeightFiller.Type)
}

func TestDefaults_DoesNotMutate(t *testing.T) {
	p := LayerParameter{Name: "x", Type: TypePooling, BlobsLR: []float64{1, 2}}
	d := p.Defaults()

	assert.Equal(t, 0, p.Stride)
	assert.Equal(t, 1, d.Stride)

	d.BlobsLR[0] = 10
	assert.Equal(t, 1.0, p.BlobsLR[0])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*LayerParameter)
		typ     LayerType
		wantErr string
	}{
		{"conv ok", func(p *LayerParameter) { p.NumOutput, p.KernelSize = 4, 3 }, TypeConvolution, ""},
		{"conv no kernel", func(p *LayerParameter) { p.NumOutput = 4 }, TypeConvolution, "kernel_size"},
		{"conv group", func(p *LayerParameter) { p.NumOutput, p.KernelSize, p.Group = 3, 3, 2 }, TypeConvolution, "divisible"},
		{"ip no outputs", func(*LayerParameter) {}, TypeInnerProduct, "num_output"},
		{"dropout ratio 1", func(p *LayerParameter) { p.DropoutRatio = 1 }, TypeDropout, "dropout_ratio"},
		{"dropout ratio 0", func(p *LayerParameter) { p.DropoutRatio = 0 }, TypeDropout, ""},
		{"lrn even", func(p *LayerParameter) { p.LocalSize = 4 }, TypeLRN, "odd"},
		{"data no source", func(p *LayerParameter) { p.BatchSize = 2 }, TypeData, "source"},
		{"infogain file", func(*LayerParameter) {}, TypeInfogainLoss, "infogain_file"},
		{"unknown", func(*LayerParameter) {}, LayerType("nope"), "unknown layer type"},
		{"bad filler", func(p *LayerParameter) { p.WeightFiller.Type = "magic" }, TypeReLU, "weight_filler"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewLayer("l", tt.typ)
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFillerDefaults(t *testing.T) {
	assert.Equal(t, FillerConstant, FillerParameter{}.Defaults().Type)
	assert.Equal(t, 1.0, FillerParameter{Type: FillerUniform}.Defaults().Max)
	assert.Equal(t, 1.0, FillerParameter{Type: FillerGaussian}.Defaults().Std)
	assert.Error(t, FillerParameter{Type: FillerUniform, Min: 2, Max: 1}.Validate())
}

func TestNetValidate(t *testing.T) {
	relu := NewLayer("relu", TypeReLU)
	ok := NetParameter{
		Name:   "n",
		Inputs: []Input{{Name: "data", Shape: []int{1, 2}}},
		Layers: []LayerConnection{{Layer: relu, Bottom: []string{"data"}, Top: []string{"out"}}},
	}
	assert.NoError(t, ok.Validate())

	missing := ok
	missing.Layers = []LayerConnection{{Layer: relu, Bottom: []string{"nope"}, Top: []string{"out"}}}
	assert.ErrorContains(t, missing.Validate(), "unknown blob")

	inPlace := ok
	inPlace.Layers = []LayerConnection{{Layer: relu, Bottom: []string{"data"}, Top: []string{"data"}}}
	assert.ErrorContains(t, inPlace.Validate(), "in place")
}
