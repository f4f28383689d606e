package cpu

import (
	"fmt"

	"github.com/born-ml/brew/internal/backend"
	"github.com/born-ml/brew/internal/parallel"
)

// Im2col expands one image [C, H, W] into its column matrix.
//
// The column matrix has C*k*k rows and H_out*W_out columns, row-major:
//
//	row = (c*k + kh)*k + kw
//	col[row, h*W_out + w] = im[c, h*stride - pad + kh, w*stride - pad + kw]
//
// Positions that fall into the zero padding read as 0.
func Im2col[T backend.Float](im []T, g backend.ConvGeometry, col []T) {
	if len(col) < g.ColCount() {
		panic(fmt.Sprintf("im2col: column buffer has %d elements, need %d", len(col), g.ColCount()))
	}
	k := g.KernelSize
	hOut, wOut := g.OutHeight(), g.OutWidth()

	parallel.For(g.ColRows(), func(row int) {
		kw := row % k
		kh := (row / k) % k
		c := row / (k * k)
		dst := col[row*hOut*wOut : (row+1)*hOut*wOut]
		src := im[c*g.Height*g.Width : (c+1)*g.Height*g.Width]

		for h := 0; h < hOut; h++ {
			hIn := h*g.Stride - g.Pad + kh
			out := dst[h*wOut : (h+1)*wOut]
			if hIn < 0 || hIn >= g.Height {
				clear(out)
				continue
			}
			for w := range out {
				wIn := w*g.Stride - g.Pad + kw
				if wIn >= 0 && wIn < g.Width {
					out[w] = src[hIn*g.Width+wIn]
				} else {
					out[w] = 0
				}
			}
		}
	}, parallelConfig())
}

// Col2im folds a column matrix back into an image, summing the contributions
// of overlapping windows. im is overwritten.
func Col2im[T backend.Float](col []T, g backend.ConvGeometry, im []T) {
	if len(col) < g.ColCount() {
		panic(fmt.Sprintf("col2im: column buffer has %d elements, need %d", len(col), g.ColCount()))
	}
	k := g.KernelSize
	hOut, wOut := g.OutHeight(), g.OutWidth()
	clear(im[:g.Channels*g.Height*g.Width])

	// Rows of one channel only ever write into that channel's plane.
	parallel.For(g.Channels, func(c int) {
		dst := im[c*g.Height*g.Width : (c+1)*g.Height*g.Width]
		for kh := 0; kh < k; kh++ {
			for kw := 0; kw < k; kw++ {
				row := (c*k+kh)*k + kw
				src := col[row*hOut*wOut : (row+1)*hOut*wOut]
				for h := 0; h < hOut; h++ {
					hIn := h*g.Stride - g.Pad + kh
					if hIn < 0 || hIn >= g.Height {
						continue
					}
					for w := 0; w < wOut; w++ {
						wIn := w*g.Stride - g.Pad + kw
						if wIn >= 0 && wIn < g.Width {
							dst[hIn*g.Width+wIn] += src[h*wOut+w]
						}
					}
				}
			}
		}
	}, parallelConfig())
}
