// Package layers implements the computation layers and the forward/backward
// protocol they share.
//
// A layer is built from a config.LayerParameter, shaped once by SetUp, then
// driven through Forward and Backward, which dispatch to the CPU or GPU entry
// point according to engine.CurrentMode. Layers without dedicated device
// kernels run their CPU code from the GPU entry points; blob memory follows
// automatically.
//
// Backward reads the gradient stored in each top blob's diff, overwrites the
// diff of every bottom whose propagate flag is set and adds into the diff of
// the layer's parameter blobs. Parameter gradients are never zeroed here.
package layers

import (
	"fmt"
	"math"

	"github.com/born-ml/brew/internal/backend"
	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
	"github.com/born-ml/brew/internal/engine"
	"github.com/born-ml/brew/internal/filler"
	log "github.com/sirupsen/logrus"
)

// Layer is the capability set shared by every layer.
type Layer[T blob.Float] interface {
	// Name returns the configured layer name.
	Name() string
	// Type returns the layer type.
	Type() config.LayerType
	// Param returns the parameters the layer was built from.
	Param() config.LayerParameter
	// Params returns the learnable parameter blobs (weights first).
	Params() []*blob.Blob[T]

	// SetUp checks the bottom blobs, shapes the top blobs and allocates
	// parameters and scratch space. It may be called once.
	SetUp(bottom, top []*blob.Blob[T]) error

	ForwardCPU(bottom, top []*blob.Blob[T])
	ForwardGPU(bottom, top []*blob.Blob[T])

	// BackwardCPU and BackwardGPU return the loss contribution of the layer.
	BackwardCPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T
	BackwardGPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T

	state() *base[T]
}

// Forward runs the layer on the configured execution path.
//
// Calling Forward on a layer that has not been set up panics.
func Forward[T blob.Float](l Layer[T], bottom, top []*blob.Blob[T]) {
	st := l.state()
	if !st.ready {
		panic(fmt.Sprintf("layer %q: Forward called before SetUp", l.Name()))
	}
	if engine.CurrentMode() == engine.GPU {
		l.ForwardGPU(bottom, top)
	} else {
		l.ForwardCPU(bottom, top)
	}
	st.forwarded = true
}

// Backward runs the backward pass on the configured execution path and returns
// the layer's loss contribution.
//
// propagateDown holds one flag per bottom; missing flags are false. Calling
// Backward before SetUp or before the first Forward panics.
func Backward[T blob.Float](l Layer[T], top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	st := l.state()
	if !st.ready {
		panic(fmt.Sprintf("layer %q: Backward called before SetUp", l.Name()))
	}
	if !st.forwarded {
		panic(fmt.Sprintf("layer %q: Backward called before Forward", l.Name()))
	}
	flags := make([]bool, len(bottom))
	copy(flags, propagateDown)

	if engine.CurrentMode() == engine.GPU {
		return l.BackwardGPU(top, flags, bottom)
	}
	return l.BackwardCPU(top, flags, bottom)
}

// base carries the state every layer shares.
type base[T blob.Float] struct {
	param  config.LayerParameter
	params []*blob.Blob[T]

	ready     bool
	forwarded bool
}

func newBase[T blob.Float](p config.LayerParameter) base[T] {
	return base[T]{param: p}
}

func (b *base[T]) Name() string                 { return b.param.Name }
func (b *base[T]) Type() config.LayerType       { return b.param.Type }
func (b *base[T]) Param() config.LayerParameter { return b.param }
func (b *base[T]) Params() []*blob.Blob[T]      { return b.params }
func (b *base[T]) state() *base[T]              { return b }

// expect validates blob counts before SetUp proceeds. A negative maximum
// means unbounded.
func (b *base[T]) expect(bottom, top []*blob.Blob[T], minBottom, maxBottom, minTop, maxTop int) error {
	if b.ready {
		return b.errorf(ErrAlreadySetUp, "SetUp called twice")
	}
	if len(bottom) < minBottom || (maxBottom >= 0 && len(bottom) > maxBottom) {
		return b.errorf(ErrBottomCount, "got %d, want %s", len(bottom), countRange(minBottom, maxBottom))
	}
	if len(top) < minTop || (maxTop >= 0 && len(top) > maxTop) {
		return b.errorf(ErrTopCount, "got %d, want %s", len(top), countRange(minTop, maxTop))
	}
	for _, t := range top {
		if t == nil {
			return b.errorf(ErrTopCount, "nil top blob")
		}
		for _, bt := range bottom {
			if t == bt {
				return b.errorf(ErrInPlace, "blob used as both bottom and top")
			}
		}
	}
	for i, bt := range bottom {
		if bt == nil || bt.Count() == 0 {
			return b.errorf(ErrShapeMismatch, "bottom %d is empty", i)
		}
	}
	return nil
}

// done marks SetUp as complete.
func (b *base[T]) done(bottom, top []*blob.Blob[T]) error {
	b.ready = true
	if log.IsLevelEnabled(log.DebugLevel) {
		for i, t := range top {
			log.WithFields(log.Fields{"layer": b.param.Name, "top": i}).Debugf("top shape %s", t.ShapeString())
		}
		if len(top) == 0 && len(bottom) > 0 {
			log.WithField("layer", b.param.Name).Debug("no top blobs")
		}
	}
	return nil
}

func (b *base[T]) errorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("layer %q (%s): %w: %s", b.param.Name, b.param.Type, sentinel, fmt.Sprintf(format, args...))
}

func countRange(lo, hi int) string {
	switch {
	case hi < 0:
		return fmt.Sprintf("at least %d", lo)
	case lo == hi:
		return fmt.Sprintf("%d", lo)
	default:
		return fmt.Sprintf("%d to %d", lo, hi)
	}
}

// device returns the accelerator for the GPU entry points.
func device() backend.Device {
	return engine.Device()
}

// ones returns a blob of n ones used as a GEMM multiplier.
func ones[T blob.Float](n int) *blob.Blob[T] {
	b := blob.New[T](1, 1, 1, n)
	data := b.MutableCPUData()
	for i := range data {
		data[i] = 1
	}
	return b
}

// decayedScale returns start·rate^⌊iter/every⌋, or start when every is 0.
func decayedScale(start, rate float64, every, iter int) float64 {
	if every <= 0 {
		return start
	}
	return start * math.Pow(rate, float64(iter/every))
}

// newParam allocates a parameter blob and fills it.
func (b *base[T]) newParam(fp config.FillerParameter, dims ...int) (*blob.Blob[T], error) {
	f, err := filler.New[T](fp)
	if err != nil {
		return nil, b.errorf(ErrInvalidParam, "%v", err)
	}
	p := blob.New[T](dims...)
	f.Fill(p)
	b.params = append(b.params, p)
	log.WithFields(log.Fields{"layer": b.param.Name, "filler": fp.Type}).Debugf("param %s", p.ShapeString())
	return p, nil
}
