package layers

import (
	"github.com/born-ml/brew/internal/backend"
	"github.com/born-ml/brew/internal/backend/cpu"
	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
)

// Convolution computes grouped 2D convolution through im2col and GEMM. For
// each image and group g, top_g = W_g·col_g where W_g is M×K, col_g is K×N,
// M = NumOutput/G, K = C/G·k·k and N = H_out·W_out.
type Convolution[T blob.Float] struct {
	base[T]
	geom backend.ConvGeometry

	groups  int
	m, k, n int

	weight         *blob.Blob[T]
	bias           *blob.Blob[T]
	biasMultiplier *blob.Blob[T]
	// col holds the column matrix of one image in data and its gradient in diff.
	col *blob.Blob[T]
}

// NewConvolution creates a convolution layer.
func NewConvolution[T blob.Float](p config.LayerParameter) *Convolution[T] {
	return &Convolution[T]{base: newBase[T](p), groups: p.Group}
}

func (l *Convolution[T]) SetUp(bottom, top []*blob.Blob[T]) error {
	if err := l.expect(bottom, top, 1, 1, 1, 1); err != nil {
		return err
	}
	b := bottom[0]
	if b.Channels()%l.groups != 0 {
		return l.errorf(ErrShapeMismatch, "channels %d not divisible by group %d", b.Channels(), l.groups)
	}
	geom, err := l.convGeometry(b)
	if err != nil {
		return err
	}
	l.geom = geom
	numOutput, ks := l.param.NumOutput, l.param.KernelSize
	l.m = numOutput / l.groups
	l.k = b.Channels() / l.groups * ks * ks
	l.n = geom.OutHeight() * geom.OutWidth()

	top[0].Reshape(b.Num(), numOutput, geom.OutHeight(), geom.OutWidth())
	l.col = blob.New[T](1, geom.ColRows(), geom.OutHeight(), geom.OutWidth())

	if l.weight, err = l.newParam(l.param.WeightFiller, numOutput, b.Channels()/l.groups, ks, ks); err != nil {
		return err
	}
	if l.param.BiasTerm {
		if l.bias, err = l.newParam(l.param.BiasFiller, 1, 1, 1, numOutput); err != nil {
			return err
		}
		l.biasMultiplier = ones[T](l.n)
	}
	return l.done(bottom, top)
}

func (l *Convolution[T]) ForwardCPU(bottom, top []*blob.Blob[T]) {
	x, y := bottom[0].CPUData(), top[0].MutableCPUData()
	w := l.weight.CPUData()
	col := l.col.MutableCPUData()
	in, out := bottom[0].Shape().CountFrom(1), top[0].Shape().CountFrom(1)
	wg, cg, yg := l.m*l.k, l.k*l.n, l.m*l.n

	for n := 0; n < bottom[0].Num(); n++ {
		cpu.Im2col(x[n*in:(n+1)*in], l.geom, col)
		yn := y[n*out : (n+1)*out]
		for g := 0; g < l.groups; g++ {
			cpu.Gemm(false, false, l.m, l.n, l.k, 1, w[g*wg:(g+1)*wg], col[g*cg:(g+1)*cg], 0, yn[g*yg:(g+1)*yg])
		}
		if l.bias != nil {
			cpu.Gemm(false, false, l.param.NumOutput, l.n, 1, 1, l.bias.CPUData(), l.biasMultiplier.CPUData(), 1, yn)
		}
	}
}

func (l *Convolution[T]) ForwardGPU(bottom, top []*blob.Blob[T]) {
	dev := device()
	x, y := bottom[0].GPUData(), top[0].MutableGPUData()
	w := l.weight.GPUData()
	col := l.col.MutableGPUData()
	in, out := bottom[0].Shape().CountFrom(1), top[0].Shape().CountFrom(1)
	wg, cg, yg := l.m*l.k, l.k*l.n, l.m*l.n

	for n := 0; n < bottom[0].Num(); n++ {
		dev.Im2col(x.Slice(n*in, in), l.geom, col)
		yn := y.Slice(n*out, out)
		for g := 0; g < l.groups; g++ {
			dev.Gemm(false, false, l.m, l.n, l.k, 1, w.Slice(g*wg, wg), col.Slice(g*cg, cg), 0, yn.Slice(g*yg, yg))
		}
		if l.bias != nil {
			dev.Gemm(false, false, l.param.NumOutput, l.n, 1, 1, l.bias.GPUData(), l.biasMultiplier.GPUData(), 1, yn)
		}
	}
}

func (l *Convolution[T]) BackwardCPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	dy := top[0].CPUDiff()
	x := bottom[0].CPUData()
	w := l.weight.CPUData()
	dw := l.weight.MutableCPUDiff()
	in, out := bottom[0].Shape().CountFrom(1), top[0].Shape().CountFrom(1)
	wg, cg, yg := l.m*l.k, l.k*l.n, l.m*l.n
	num := bottom[0].Num()

	if l.bias != nil {
		db := l.bias.MutableCPUDiff()
		for n := 0; n < num; n++ {
			cpu.Gemm(false, false, l.param.NumOutput, 1, l.n, 1, dy[n*out:(n+1)*out], l.biasMultiplier.CPUData(), 1, db)
		}
	}

	col := l.col.MutableCPUData()
	for n := 0; n < num; n++ {
		// The column matrix is recomputed since one scratch buffer serves the whole batch.
		cpu.Im2col(x[n*in:(n+1)*in], l.geom, col)
		dyn := dy[n*out : (n+1)*out]
		for g := 0; g < l.groups; g++ {
			cpu.Gemm(false, true, l.m, l.k, l.n, 1, dyn[g*yg:(g+1)*yg], col[g*cg:(g+1)*cg], 1, dw[g*wg:(g+1)*wg])
		}
	}

	if propagateDown[0] {
		dx := bottom[0].MutableCPUDiff()
		dcol := l.col.MutableCPUDiff()
		for n := 0; n < num; n++ {
			dyn := dy[n*out : (n+1)*out]
			for g := 0; g < l.groups; g++ {
				cpu.Gemm(true, false, l.k, l.n, l.m, 1, w[g*wg:(g+1)*wg], dyn[g*yg:(g+1)*yg], 0, dcol[g*cg:(g+1)*cg])
			}
			cpu.Col2im(dcol, l.geom, dx[n*in:(n+1)*in])
		}
	}
	return 0
}

func (l *Convolution[T]) BackwardGPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	dev := device()
	dy := top[0].GPUDiff()
	x := bottom[0].GPUData()
	w := l.weight.GPUData()
	dw := l.weight.MutableGPUDiff()
	in, out := bottom[0].Shape().CountFrom(1), top[0].Shape().CountFrom(1)
	wg, cg, yg := l.m*l.k, l.k*l.n, l.m*l.n
	num := bottom[0].Num()

	if l.bias != nil {
		db := l.bias.MutableGPUDiff()
		for n := 0; n < num; n++ {
			dev.Gemm(false, false, l.param.NumOutput, 1, l.n, 1, dy.Slice(n*out, out), l.biasMultiplier.GPUData(), 1, db)
		}
	}

	col := l.col.MutableGPUData()
	for n := 0; n < num; n++ {
		dev.Im2col(x.Slice(n*in, in), l.geom, col)
		dyn := dy.Slice(n*out, out)
		for g := 0; g < l.groups; g++ {
			dev.Gemm(false, true, l.m, l.k, l.n, 1, dyn.Slice(g*yg, yg), col.Slice(g*cg, cg), 1, dw.Slice(g*wg, wg))
		}
	}

	if propagateDown[0] {
		dx := bottom[0].MutableGPUDiff()
		dcol := l.col.MutableGPUDiff()
		for n := 0; n < num; n++ {
			dyn := dy.Slice(n*out, out)
			for g := 0; g < l.groups; g++ {
				dev.Gemm(true, false, l.k, l.n, l.m, 1, w.Slice(g*wg, wg), dyn.Slice(g*yg, yg), 0, dcol.Slice(g*cg, cg))
			}
			dev.Col2im(dcol, l.geom, dx.Slice(n*in, in))
		}
	}
	return 0
}
