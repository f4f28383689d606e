package cpu

import (
	"math"

	"github.com/born-ml/brew/internal/backend"
	"github.com/born-ml/brew/internal/parallel"
)

// LRNForward computes local response normalization.
//
// Across channels:
//
//	scale[n,c,h,w] = k + alpha/size * sum(x[n,c',h,w]^2), c' in [c-prePad, c-prePad+size)
//
// Within a channel the sum runs over a size×size spatial window anchored the
// same way and alpha is divided by size². In both cases y = x * scale^-beta.
// Out-of-range neighbours contribute zero.
func LRNForward[T backend.Float](x []T, g backend.LRNGeometry, scale, y []T) {
	if g.WithinChannel {
		lrnWithinForward(x, g, scale)
	} else {
		lrnAcrossForward(x, g, scale)
	}
	for i, v := range x {
		y[i] = v * T(math.Pow(float64(scale[i]), -g.Beta))
	}
}

// LRNBackward computes dx from the forward input, output and scale.
//
//	dx[i] = dy[i]*scale[i]^-beta - 2*alpha*beta/n * x[i] * sum_{j: i in window(j)} dy[j]*y[j]/scale[j]
//
// where n is size (across channels) or size² (within a channel).
func LRNBackward[T backend.Float](x, y, scale, dy []T, g backend.LRNGeometry, dx []T) {
	ratio := make([]T, len(x))
	for i := range ratio {
		ratio[i] = dy[i] * y[i] / scale[i]
	}
	if g.WithinChannel {
		lrnWithinBackward(x, ratio, g, dx)
	} else {
		lrnAcrossBackward(x, ratio, g, dx)
	}
	for i := range dx {
		dx[i] += dy[i] * T(math.Pow(float64(scale[i]), -g.Beta))
	}
}

func lrnAcrossForward[T backend.Float](x []T, g backend.LRNGeometry, scale []T) {
	plane := g.Height * g.Width
	alphaOver := T(g.Alpha / float64(g.Size))
	pre := g.PrePad()

	parallel.For(g.Num, func(n int) {
		base := n * g.Channels * plane
		for c := 0; c < g.Channels; c++ {
			lo := max(c-pre, 0)
			hi := min(c-pre+g.Size, g.Channels)
			dst := scale[base+c*plane : base+(c+1)*plane]
			for i := range dst {
				var sum T
				for cc := lo; cc < hi; cc++ {
					v := x[base+cc*plane+i]
					sum += v * v
				}
				dst[i] = T(g.K) + alphaOver*sum
			}
		}
	}, parallelConfig())
}

func lrnAcrossBackward[T backend.Float](x, ratio []T, g backend.LRNGeometry, dx []T) {
	plane := g.Height * g.Width
	factor := T(2 * g.Alpha * g.Beta / float64(g.Size))
	pre := g.PrePad()

	parallel.For(g.Num, func(n int) {
		base := n * g.Channels * plane
		for c := 0; c < g.Channels; c++ {
			// channel c sits in the window of every c' with c'-pre <= c < c'-pre+size
			lo := max(c+pre-g.Size+1, 0)
			hi := min(c+pre+1, g.Channels)
			for i := 0; i < plane; i++ {
				var acc T
				for cc := lo; cc < hi; cc++ {
					acc += ratio[base+cc*plane+i]
				}
				idx := base + c*plane + i
				dx[idx] = -factor * x[idx] * acc
			}
		}
	}, parallelConfig())
}

func lrnWithinForward[T backend.Float](x []T, g backend.LRNGeometry, scale []T) {
	plane := g.Height * g.Width
	alphaOver := T(g.Alpha / float64(g.Size*g.Size))
	pre := g.PrePad()

	parallel.For(g.Num*g.Channels, func(p int) {
		src := x[p*plane : (p+1)*plane]
		dst := scale[p*plane : (p+1)*plane]
		for h := 0; h < g.Height; h++ {
			hLo, hHi := max(h-pre, 0), min(h-pre+g.Size, g.Height)
			for w := 0; w < g.Width; w++ {
				wLo, wHi := max(w-pre, 0), min(w-pre+g.Size, g.Width)
				var sum T
				for hh := hLo; hh < hHi; hh++ {
					for ww := wLo; ww < wHi; ww++ {
						v := src[hh*g.Width+ww]
						sum += v * v
					}
				}
				dst[h*g.Width+w] = T(g.K) + alphaOver*sum
			}
		}
	}, parallelConfig())
}

func lrnWithinBackward[T backend.Float](x, ratio []T, g backend.LRNGeometry, dx []T) {
	plane := g.Height * g.Width
	factor := T(2 * g.Alpha * g.Beta / float64(g.Size*g.Size))
	pre := g.PrePad()

	parallel.For(g.Num*g.Channels, func(p int) {
		r := ratio[p*plane : (p+1)*plane]
		for h := 0; h < g.Height; h++ {
			hLo, hHi := max(h+pre-g.Size+1, 0), min(h+pre+1, g.Height)
			for w := 0; w < g.Width; w++ {
				wLo, wHi := max(w+pre-g.Size+1, 0), min(w+pre+1, g.Width)
				var acc T
				for hh := hLo; hh < hHi; hh++ {
					for ww := wLo; ww < wHi; ww++ {
						acc += r[hh*g.Width+ww]
					}
				}
				idx := p*plane + h*g.Width + w
				dx[idx] = -factor * x[idx] * acc
			}
		}
	}, parallelConfig())
}
