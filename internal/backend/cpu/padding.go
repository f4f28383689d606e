package cpu

import (
	"github.com/born-ml/brew/internal/backend"
	"github.com/born-ml/brew/internal/parallel"
)

// PadForward copies x into the interior of y and zeroes the border.
func PadForward[T backend.Float](x []T, g backend.PadGeometry, y []T) {
	hOut, wOut := g.OutHeight(), g.OutWidth()

	parallel.ForBatch(g.Num, g.Channels, func(n, c int) {
		p := n*g.Channels + c
		src := x[p*g.Height*g.Width : (p+1)*g.Height*g.Width]
		dst := y[p*hOut*wOut : (p+1)*hOut*wOut]
		clear(dst)
		for h := 0; h < g.Height; h++ {
			row := (h+g.Pad)*wOut + g.Pad
			copy(dst[row:row+g.Width], src[h*g.Width:(h+1)*g.Width])
		}
	}, parallelConfig())
}

// PadBackward copies the interior of dy into dx, dropping the border.
func PadBackward[T backend.Float](dy []T, g backend.PadGeometry, dx []T) {
	hOut, wOut := g.OutHeight(), g.OutWidth()

	parallel.ForBatch(g.Num, g.Channels, func(n, c int) {
		p := n*g.Channels + c
		src := dy[p*hOut*wOut : (p+1)*hOut*wOut]
		dst := dx[p*g.Height*g.Width : (p+1)*g.Height*g.Width]
		for h := 0; h < g.Height; h++ {
			row := (h+g.Pad)*wOut + g.Pad
			copy(dst[h*g.Width:(h+1)*g.Width], src[row:row+g.Width])
		}
	}, parallelConfig())
}
