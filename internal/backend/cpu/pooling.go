package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/brew/internal/backend"
	"github.com/born-ml/brew/internal/parallel"
)

// PoolForward reduces every kernel window of x into y.
//
// Windows start at multiples of stride and are clipped at the bottom/right
// border, so the last window of a row may be partial. For PoolMax, mask
// receives the flat index into x of each window's first maximum. For PoolAve
// the sum is divided by the clipped window area and mask is unused.
func PoolForward[T backend.Float](method backend.PoolMethod, x []T, g backend.PoolGeometry, y []T, mask []int32) {
	ph, pw := g.PooledHeight, g.PooledWidth
	plane := g.Height * g.Width

	parallel.For(g.Num*g.Channels, func(p int) {
		src := x[p*plane : (p+1)*plane]
		dst := y[p*ph*pw : (p+1)*ph*pw]

		for oh := 0; oh < ph; oh++ {
			hStart := oh * g.Stride
			hEnd := min(hStart+g.KernelSize, g.Height)
			for ow := 0; ow < pw; ow++ {
				wStart := ow * g.Stride
				wEnd := min(wStart+g.KernelSize, g.Width)
				out := oh*pw + ow

				switch method {
				case backend.PoolMax:
					best := T(math.Inf(-1))
					bestIdx := hStart*g.Width + wStart
					for h := hStart; h < hEnd; h++ {
						for w := wStart; w < wEnd; w++ {
							if v := src[h*g.Width+w]; v > best {
								best, bestIdx = v, h*g.Width+w
							}
						}
					}
					dst[out] = best
					mask[p*ph*pw+out] = int32(p*plane + bestIdx)
				case backend.PoolAve:
					var sum T
					for h := hStart; h < hEnd; h++ {
						for w := wStart; w < wEnd; w++ {
							sum += src[h*g.Width+w]
						}
					}
					dst[out] = sum / T((hEnd-hStart)*(wEnd-wStart))
				default:
					panic(fmt.Sprintf("pooling: unknown method %d", int(method)))
				}
			}
		}
	}, parallelConfig())
}

// PoolBackward routes dy into dx. dx is overwritten.
//
// For PoolMax each output gradient goes to the single input recorded in mask.
// For PoolAve it is spread evenly over the clipped window.
func PoolBackward[T backend.Float](method backend.PoolMethod, dy []T, mask []int32, g backend.PoolGeometry, dx []T) {
	ph, pw := g.PooledHeight, g.PooledWidth
	plane := g.Height * g.Width
	clear(dx[:g.Num*g.Channels*plane])

	parallel.For(g.Num*g.Channels, func(p int) {
		grad := dy[p*ph*pw : (p+1)*ph*pw]

		switch method {
		case backend.PoolMax:
			winners := mask[p*ph*pw : (p+1)*ph*pw]
			for i, idx := range winners {
				dx[idx] += grad[i]
			}
		case backend.PoolAve:
			dst := dx[p*plane : (p+1)*plane]
			for oh := 0; oh < ph; oh++ {
				hStart := oh * g.Stride
				hEnd := min(hStart+g.KernelSize, g.Height)
				for ow := 0; ow < pw; ow++ {
					wStart := ow * g.Stride
					wEnd := min(wStart+g.KernelSize, g.Width)
					share := grad[oh*pw+ow] / T((hEnd-hStart)*(wEnd-wStart))
					for h := hStart; h < hEnd; h++ {
						for w := wStart; w < wEnd; w++ {
							dst[h*g.Width+w] += share
						}
					}
				}
			}
		default:
			panic(fmt.Sprintf("pooling: unknown method %d", int(method)))
		}
	}, parallelConfig())
}
