package config

import "fmt"

// Filler types.
const (
	FillerConstant = "constant"
	FillerUniform  = "uniform"
	FillerGaussian = "gaussian"
	FillerXavier   = "xavier"
)

// FillerParameter configures how a parameter blob is initialised.
type FillerParameter struct {
	Type  string
	Value float64 // constant
	Min   float64 // uniform
	Max   float64 // uniform
	Mean  float64 // gaussian
	Std   float64 // gaussian
}

// Defaults returns a copy with the type and range defaults applied.
func (f FillerParameter) Defaults() FillerParameter {
	if f.Type == "" {
		f.Type = FillerConstant
	}
	if f.Type == FillerUniform && f.Min == 0 && f.Max == 0 {
		f.Max = 1
	}
	if f.Type == FillerGaussian && f.Std == 0 {
		f.Std = 1
	}
	return f
}

// Validate checks the filler type and its ranges.
func (f FillerParameter) Validate() error {
	switch f.Type {
	case "", FillerConstant, FillerXavier:
	case FillerUniform:
		if f.Min > f.Max {
			return fmt.Errorf("uniform filler min %g > max %g", f.Min, f.Max)
		}
	case FillerGaussian:
		if f.Std < 0 {
			return fmt.Errorf("gaussian filler std %g < 0", f.Std)
		}
	default:
		return fmt.Errorf("unknown filler type %q", f.Type)
	}
	return nil
}
