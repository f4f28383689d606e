package layers

import (
	"math/rand/v2"

	"github.com/born-ml/brew/internal/backend/cpu"
	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
	"github.com/born-ml/brew/internal/engine"
	"gonum.org/v1/gonum/stat/distuv"
)

// Dropout zeroes each input with probability DropoutRatio during training
// and scales the survivors by 1/(1-ratio). In the test phase it is the
// identity.
type Dropout[T blob.Float] struct {
	neuron[T]
	mask  *blob.SyncedMemory[uint32]
	src   rand.Source
	scale float64
	train bool
}

// NewDropout creates a dropout layer.
func NewDropout[T blob.Float](p config.LayerParameter) *Dropout[T] {
	return &Dropout[T]{
		neuron: neuron[T]{newBase[T](p)},
		scale:  1 / (1 - p.DropoutRatio),
	}
}

func (l *Dropout[T]) SetUp(bottom, top []*blob.Blob[T]) error {
	if err := l.neuron.SetUp(bottom, top); err != nil {
		return err
	}
	l.mask = blob.NewSyncedMemory[uint32](bottom[0].Count())
	l.src = engine.NewSource()
	return nil
}

// Mask returns the keep mask drawn by the last training Forward.
func (l *Dropout[T]) Mask() []uint32 { return l.mask.CPU() }

// draw refreshes the keep mask on the host.
func (l *Dropout[T]) draw() {
	keep := distuv.Bernoulli{P: 1 - l.param.DropoutRatio, Src: l.src}
	mask := l.mask.MutableCPU()
	for i := range mask {
		mask[i] = uint32(keep.Rand())
	}
}

func (l *Dropout[T]) ForwardCPU(bottom, top []*blob.Blob[T]) {
	l.train = engine.CurrentPhase() == engine.Train
	if !l.train {
		copy(top[0].MutableCPUData(), bottom[0].CPUData())
		return
	}
	l.draw()
	cpu.DropoutForward(bottom[0].CPUData(), l.mask.CPU(), T(l.scale), top[0].MutableCPUData())
}

func (l *Dropout[T]) ForwardGPU(bottom, top []*blob.Blob[T]) {
	dev := device()
	l.train = engine.CurrentPhase() == engine.Train
	if !l.train {
		dev.Copy(bottom[0].GPUData(), top[0].MutableGPUData())
		return
	}
	l.draw()
	dev.DropoutForward(bottom[0].GPUData(), l.mask.GPU(), l.scale, top[0].MutableGPUData())
}

func (l *Dropout[T]) BackwardCPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	if !propagateDown[0] {
		return 0
	}
	if !l.train {
		copy(bottom[0].MutableCPUDiff(), top[0].CPUDiff())
		return 0
	}
	cpu.DropoutBackward(top[0].CPUDiff(), l.mask.CPU(), T(l.scale), bottom[0].MutableCPUDiff())
	return 0
}

func (l *Dropout[T]) BackwardGPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	if !propagateDown[0] {
		return 0
	}
	dev := device()
	if !l.train {
		dev.Copy(top[0].GPUDiff(), bottom[0].MutableGPUDiff())
		return 0
	}
	dev.DropoutBackward(top[0].GPUDiff(), l.mask.GPU(), l.scale, bottom[0].MutableGPUDiff())
	return 0
}
