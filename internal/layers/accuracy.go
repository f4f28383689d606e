package layers

import (
	"fmt"
	"math"

	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
)

// accuracyLogFloor bounds the probabilities fed to the log term.
const accuracyLogFloor = 1e-20

// Accuracy reports the top-1 accuracy and the mean negative log probability
// of the labelled class. It has no backward pass.
type Accuracy[T blob.Float] struct {
	classLoss[T]
}

// NewAccuracy creates an accuracy layer.
func NewAccuracy[T blob.Float](p config.LayerParameter) *Accuracy[T] {
	return &Accuracy[T]{classLoss[T]{base: newBase[T](p)}}
}

func (l *Accuracy[T]) SetUp(bottom, top []*blob.Blob[T]) error {
	if err := l.expect(bottom, top, 2, 2, 1, 1); err != nil {
		return err
	}
	top[0].Reshape(1, 2, 1, 1)
	return l.setUpLabels(bottom, top)
}

func (l *Accuracy[T]) ForwardCPU(bottom, top []*blob.Blob[T]) {
	prob, labels := bottom[0].CPUData(), bottom[1].CPUData()
	var correct int
	var logprob float64
	for i := 0; i < l.num; i++ {
		row := prob[i*l.dim : (i+1)*l.dim]
		best := 0
		for j := 1; j < l.dim; j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		c := l.label(labels, i)
		if best == c {
			correct++
		}
		logprob -= math.Log(max(float64(row[c]), accuracyLogFloor))
	}
	out := top[0].MutableCPUData()
	out[0] = T(float64(correct) / float64(l.num))
	out[1] = T(logprob / float64(l.num))
}

func (l *Accuracy[T]) ForwardGPU(bottom, top []*blob.Blob[T]) {
	l.ForwardCPU(bottom, top)
}

func (l *Accuracy[T]) BackwardCPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	panic(fmt.Sprintf("layer %q: accuracy has no backward pass", l.Name()))
}

func (l *Accuracy[T]) BackwardGPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	return l.BackwardCPU(top, propagateDown, bottom)
}
