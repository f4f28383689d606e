//go:build windows

package webgpu

import (
	"fmt"
	"math"

	"github.com/born-ml/brew/internal/backend"
)

// f32 panics unless every non-empty span holds float32 elements.
func f32(spans ...backend.Span) {
	for _, s := range spans {
		if !s.IsZero() && s.DType != backend.Float32 {
			panic(fmt.Sprintf("webgpu: %s spans are not supported", s.DType))
		}
	}
}

func u(v int) uint32 { return uint32(v) }

func fbits(v float64) uint32 { return math.Float32bits(float32(v)) }

func flag(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func (d *Device) Gemm(transA, transB bool, m, n, k int, alpha float64, a, b backend.Span, beta float64, c backend.Span) {
	f32(a, b, c)
	d.launch("gemm", m*n, []uint32{
		u(m * n), u(a.Off), u(b.Off), u(c.Off), u(m), u(n), u(k),
		flag(transA), flag(transB), fbits(alpha), fbits(beta),
	}, a, b, c)
}

func (d *Device) Axpy(alpha float64, x, y backend.Span) {
	f32(x, y)
	d.launch("axpy", y.Len, []uint32{u(y.Len), u(x.Off), u(y.Off), fbits(alpha)}, x, y)
}

func (d *Device) Scale(alpha float64, x backend.Span) {
	f32(x)
	d.launch("scale", x.Len, []uint32{u(x.Len), u(x.Off), fbits(alpha)}, x)
}

func (d *Device) Set(alpha float64, x backend.Span) {
	f32(x)
	d.launch("set", x.Len, []uint32{u(x.Len), u(x.Off), fbits(alpha)}, x)
}

// Copy moves bytes with a buffer-to-buffer copy, so it serves every dtype.
func (d *Device) Copy(src, dst backend.Span) {
	if src.Len != dst.Len || src.DType != dst.DType {
		panic(fmt.Sprintf("webgpu: copy of %d %s into %d %s", src.Len, src.DType, dst.Len, dst.DType))
	}
	if src.Len == 0 {
		return
	}
	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(mustBuffer(src.Buf).buf, uint64(src.ByteOffset()),
		mustBuffer(dst.Buf).buf, uint64(dst.ByteOffset()), uint64(src.ByteLen()))
	d.queue.Submit(encoder.Finish(nil))
	d.launches.Add(1)
}

func (d *Device) Mul(a, b, y backend.Span) {
	f32(a, b, y)
	d.launch("mul", y.Len, []uint32{u(y.Len), u(a.Off), u(b.Off), u(y.Off)}, a, b, y)
}

func (d *Device) ReLUForward(x, y backend.Span) {
	f32(x, y)
	d.launch("relu_forward", y.Len, []uint32{u(y.Len), u(x.Off), u(y.Off)}, x, y)
}

func (d *Device) ReLUBackward(x, dy, dx backend.Span) {
	f32(x, dy, dx)
	d.launch("relu_backward", dx.Len, []uint32{u(dx.Len), u(x.Off), u(dy.Off), u(dx.Off)}, x, dy, dx)
}

func (d *Device) SigmoidForward(steepness float64, x, y backend.Span) {
	f32(x, y)
	d.launch("sigmoid_forward", y.Len, []uint32{u(y.Len), u(x.Off), u(y.Off), fbits(steepness)}, x, y)
}

func (d *Device) SigmoidBackward(steepness float64, y, dy, dx backend.Span) {
	f32(y, dy, dx)
	d.launch("sigmoid_backward", dx.Len,
		[]uint32{u(dx.Len), u(y.Off), u(dy.Off), u(dx.Off), fbits(steepness)}, y, dy, dx)
}

func (d *Device) BNLLForward(x, y backend.Span) {
	f32(x, y)
	d.launch("bnll_forward", y.Len, []uint32{u(y.Len), u(x.Off), u(y.Off)}, x, y)
}

func (d *Device) BNLLBackward(x, dy, dx backend.Span) {
	f32(x, dy, dx)
	d.launch("bnll_backward", dx.Len, []uint32{u(dx.Len), u(x.Off), u(dy.Off), u(dx.Off)}, x, dy, dx)
}

func (d *Device) DropoutForward(x, mask backend.Span, scale float64, y backend.Span) {
	f32(x, y)
	d.launch("dropout", y.Len, []uint32{u(y.Len), u(x.Off), u(mask.Off), u(y.Off), fbits(scale)}, x, mask, y)
}

func (d *Device) DropoutBackward(dy, mask backend.Span, scale float64, dx backend.Span) {
	d.DropoutForward(dy, mask, scale, dx)
}

func convParams(n int, im, col backend.Span, g backend.ConvGeometry) []uint32 {
	return []uint32{
		u(n), u(im.Off), u(col.Off), u(g.Channels), u(g.Height), u(g.Width),
		u(g.KernelSize), u(g.Pad), u(g.Stride), u(g.OutHeight()), u(g.OutWidth()),
	}
}

func (d *Device) Im2col(im backend.Span, g backend.ConvGeometry, col backend.Span) {
	f32(im, col)
	n := g.ColCount()
	d.launch("im2col", n, convParams(n, im, col, g), im, col)
}

func (d *Device) Col2im(col backend.Span, g backend.ConvGeometry, im backend.Span) {
	f32(col, im)
	n := g.Channels * g.Height * g.Width
	d.launch("col2im", n, convParams(n, im, col, g), col, im)
}

func (d *Device) PoolForward(method backend.PoolMethod, x backend.Span, g backend.PoolGeometry, y, mask backend.Span) {
	f32(x, y)
	n := g.Num * g.Channels * g.PooledHeight * g.PooledWidth
	d.launch("pool_forward", n, []uint32{
		u(n), u(x.Off), u(y.Off), u(mask.Off), u(g.Height), u(g.Width),
		u(g.KernelSize), u(g.Stride), u(g.PooledHeight), u(g.PooledWidth), u(int(method)),
	}, x, y, mask)
}

func (d *Device) PoolBackward(method backend.PoolMethod, dy, mask backend.Span, g backend.PoolGeometry, dx backend.Span) {
	f32(dy, dx)
	n := g.Num * g.Channels * g.Height * g.Width
	d.launch("pool_backward", n, []uint32{
		u(n), u(dy.Off), u(mask.Off), u(dx.Off), u(g.Height), u(g.Width),
		u(g.KernelSize), u(g.Stride), u(g.PooledHeight), u(g.PooledWidth), u(int(method)),
	}, dy, mask, dx)
}

func (d *Device) PadForward(x backend.Span, g backend.PadGeometry, y backend.Span) {
	f32(x, y)
	n := g.Num * g.Channels * g.OutHeight() * g.OutWidth()
	d.launch("pad_forward", n, []uint32{u(n), u(x.Off), u(y.Off), u(g.Height), u(g.Width), u(g.Pad)}, x, y)
}

func (d *Device) PadBackward(dy backend.Span, g backend.PadGeometry, dx backend.Span) {
	f32(dy, dx)
	n := g.Num * g.Channels * g.Height * g.Width
	d.launch("pad_backward", n, []uint32{u(n), u(dy.Off), u(dx.Off), u(g.Height), u(g.Width), u(g.Pad)}, dy, dx)
}

func (d *Device) LRNForward(x backend.Span, g backend.LRNGeometry, scale, y backend.Span) {
	f32(x, scale, y)
	n := g.Num * g.Channels * g.Height * g.Width
	d.launch("lrn_forward", n, []uint32{
		u(n), u(x.Off), u(scale.Off), u(y.Off), u(g.Channels), u(g.Height), u(g.Width),
		u(g.Size), flag(g.WithinChannel), fbits(g.Alpha), fbits(g.Beta), fbits(g.K),
	}, x, scale, y)
}

func (d *Device) LRNBackward(x, y, scale, dy backend.Span, g backend.LRNGeometry, dx backend.Span) {
	f32(x, y, scale, dy, dx)
	n := g.Num * g.Channels * g.Height * g.Width
	d.launch("lrn_backward", n, []uint32{
		u(n), u(x.Off), u(y.Off), u(scale.Off), u(dy.Off), u(dx.Off),
		u(g.Channels), u(g.Height), u(g.Width), u(g.Size), flag(g.WithinChannel),
		fbits(g.Alpha), fbits(g.Beta),
	}, x, y, scale, dy, dx)
}

func (d *Device) SoftmaxForward(x backend.Span, num, dim int, y backend.Span) {
	f32(x, y)
	d.launch("softmax_forward", num, []uint32{u(num), u(x.Off), u(y.Off), u(dim)}, x, y)
}

func (d *Device) SoftmaxBackward(y, dy backend.Span, num, dim int, dx backend.Span) {
	f32(y, dy, dx)
	d.launch("softmax_backward", num, []uint32{u(num), u(y.Off), u(dy.Off), u(dx.Off), u(dim)}, y, dy, dx)
}
