// Package testutil provides helpers shared by layer tests: random blob
// fillers, a finite-difference gradient checker and a CPU/GPU parity runner.
package testutil

import (
	"math"
	"testing"

	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/layers"
	"gonum.org/v1/gonum/diff/fd"
)

// GradientChecker compares the gradients computed by a layer's Backward with
// central differences of an objective.
//
// For layers with top blobs the objective is Σ top²/2, so the top gradient
// equals the top data. Loss layers (no tops) use the loss returned by
// Backward.
type GradientChecker struct {
	// Step is the finite-difference step.
	Step float64
	// Threshold is the relative tolerance: |a−n| ≤ Threshold·max(|a|, |n|, 1).
	Threshold float64
	// Bottoms lists the bottom indices to check. Nil checks every bottom.
	Bottoms []int
	// SkipParams disables checking the parameter blobs.
	SkipParams bool
	// Kink and KinkRange skip elements whose input lies within KinkRange of
	// Kink, where the objective is not differentiable.
	Kink, KinkRange float64
}

// DefaultChecker suits float64 layers.
func DefaultChecker() GradientChecker {
	return GradientChecker{Step: 1e-4, Threshold: 1e-3}
}

// CheckGradient verifies the analytic gradients of a layer that has been set
// up with bottom and top.
func CheckGradient[T blob.Float](t *testing.T, c GradientChecker, l layers.Layer[T], bottom, top []*blob.Blob[T]) {
	t.Helper()

	checkBottoms := c.Bottoms
	if checkBottoms == nil {
		for i := range bottom {
			checkBottoms = append(checkBottoms, i)
		}
	}
	propagate := make([]bool, len(bottom))
	for _, i := range checkBottoms {
		propagate[i] = true
	}

	// Analytic pass.
	for _, p := range l.Params() {
		clear(p.MutableCPUDiff())
	}
	layers.Forward(l, bottom, top)
	seedTopDiff(top)
	layers.Backward(l, top, propagate, bottom)

	type target struct {
		name     string
		blob     *blob.Blob[T]
		analytic []float64
		kinks    bool
	}
	var targets []target
	for _, i := range checkBottoms {
		targets = append(targets, target{name: "bottom", blob: bottom[i], analytic: toFloat64(bottom[i].CPUDiff()), kinks: true})
	}
	if !c.SkipParams {
		for _, p := range l.Params() {
			targets = append(targets, target{name: "param", blob: p, analytic: toFloat64(p.CPUDiff())})
		}
	}

	objective := func() float64 {
		layers.Forward(l, bottom, top)
		if len(top) == 0 {
			return float64(layers.Backward(l, top, make([]bool, len(bottom)), bottom))
		}
		var e float64
		for _, b := range top {
			for _, v := range b.CPUData() {
				e += float64(v) * float64(v) / 2
			}
		}
		return e
	}

	settings := &fd.Settings{Formula: fd.Central, Step: c.Step}
	for ti, tg := range targets {
		x0 := toFloat64(tg.blob.CPUData())
		numeric := fd.Gradient(nil, func(x []float64) float64 {
			data := tg.blob.MutableCPUData()
			for i, v := range x {
				data[i] = T(v)
			}
			return objective()
		}, x0, settings)

		data := tg.blob.MutableCPUData()
		for i, v := range x0 {
			data[i] = T(v)
		}

		for i := range numeric {
			if tg.kinks && c.KinkRange > 0 && math.Abs(x0[i]-c.Kink) < c.KinkRange {
				continue
			}
			a, n := tg.analytic[i], numeric[i]
			scale := math.Max(math.Max(math.Abs(a), math.Abs(n)), 1)
			if math.Abs(a-n) > c.Threshold*scale {
				t.Errorf("%s %d element %d: analytic %g, numeric %g", tg.name, ti, i, a, n)
			}
		}
	}
}

// seedTopDiff sets every top gradient to its data, the gradient of Σ top²/2.
func seedTopDiff[T blob.Float](top []*blob.Blob[T]) {
	for _, b := range top {
		copy(b.MutableCPUDiff(), b.CPUData())
	}
}

func toFloat64[T blob.Float](s []T) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = float64(v)
	}
	return out
}
