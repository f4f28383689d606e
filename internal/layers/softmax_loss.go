package layers

import (
	"math"

	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
)

// SoftmaxWithLoss runs an inner Softmax in Forward and, in Backward, returns
// the multinomial logistic loss of the probabilities and writes (p − y)/num
// into the logit gradient.
type SoftmaxWithLoss[T blob.Float] struct {
	classLoss[T]
	softmax *Softmax[T]
	prob    *blob.Blob[T]
}

// NewSoftmaxWithLoss creates a softmax loss layer.
func NewSoftmaxWithLoss[T blob.Float](p config.LayerParameter) *SoftmaxWithLoss[T] {
	inner := p
	inner.Name = p.Name + "/softmax"
	inner.Type = config.TypeSoftmax
	return &SoftmaxWithLoss[T]{
		classLoss: classLoss[T]{base: newBase[T](p)},
		softmax:   NewSoftmax[T](inner),
		prob:      blob.New[T](),
	}
}

func (l *SoftmaxWithLoss[T]) SetUp(bottom, top []*blob.Blob[T]) error {
	if err := l.expect(bottom, top, 2, 2, 0, 0); err != nil {
		return err
	}
	if err := l.softmax.SetUp(bottom[:1], []*blob.Blob[T]{l.prob}); err != nil {
		return err
	}
	return l.setUpLabels(bottom, top)
}

// Prob returns the probabilities computed by the last Forward.
func (l *SoftmaxWithLoss[T]) Prob() *blob.Blob[T] { return l.prob }

func (l *SoftmaxWithLoss[T]) ForwardCPU(bottom, top []*blob.Blob[T]) {
	l.softmax.ForwardCPU(bottom[:1], []*blob.Blob[T]{l.prob})
}

func (l *SoftmaxWithLoss[T]) ForwardGPU(bottom, top []*blob.Blob[T]) {
	l.softmax.ForwardGPU(bottom[:1], []*blob.Blob[T]{l.prob})
}

func (l *SoftmaxWithLoss[T]) BackwardCPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	prob, labels := l.prob.CPUData(), bottom[1].CPUData()
	tiny := smallestPositive[T]()
	var loss float64
	for i := 0; i < l.num; i++ {
		p := max(prob[i*l.dim+l.label(labels, i)], tiny)
		loss -= math.Log(float64(p))
	}
	if propagateDown[0] {
		dx := bottom[0].MutableCPUDiff()
		copy(dx, prob)
		scale := 1 / T(l.num)
		for i := 0; i < l.num; i++ {
			dx[i*l.dim+l.label(labels, i)]--
		}
		for i := range dx {
			dx[i] *= scale
		}
	}
	return T(loss / float64(l.num))
}

func (l *SoftmaxWithLoss[T]) BackwardGPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	return l.BackwardCPU(top, propagateDown, bottom)
}

// smallestPositive is the smallest positive normal value of T.
func smallestPositive[T blob.Float]() T {
	var zero T
	tiny := 0x1p-1022
	if _, ok := any(zero).(float32); ok {
		tiny = 0x1p-126
	}
	return T(tiny)
}

// SigmoidWithLoss runs an inner Sigmoid in Forward and returns the cross
// entropy against targets in [0, 1]. The logit gradient is s·(p − y)/num
// for the current steepness s.
type SigmoidWithLoss[T blob.Float] struct {
	base[T]
	sigmoid *Sigmoid[T]
	prob    *blob.Blob[T]
}

// NewSigmoidWithLoss creates a sigmoid cross-entropy loss layer.
func NewSigmoidWithLoss[T blob.Float](p config.LayerParameter, iter IterationSource) *SigmoidWithLoss[T] {
	inner := p
	inner.Name = p.Name + "/sigmoid"
	inner.Type = config.TypeSigmoid
	return &SigmoidWithLoss[T]{
		base:    newBase[T](p),
		sigmoid: NewSigmoid[T](inner, iter),
		prob:    blob.New[T](),
	}
}

func (l *SigmoidWithLoss[T]) SetUp(bottom, top []*blob.Blob[T]) error {
	if err := l.expect(bottom, top, 2, 2, 0, 0); err != nil {
		return err
	}
	if bottom[0].Count() != bottom[1].Count() {
		return l.errorf(ErrShapeMismatch, "logits %s and targets %s differ", bottom[0].ShapeString(), bottom[1].ShapeString())
	}
	if err := l.sigmoid.SetUp(bottom[:1], []*blob.Blob[T]{l.prob}); err != nil {
		return err
	}
	return l.done(bottom, top)
}

// Prob returns the probabilities computed by the last Forward.
func (l *SigmoidWithLoss[T]) Prob() *blob.Blob[T] { return l.prob }

func (l *SigmoidWithLoss[T]) ForwardCPU(bottom, top []*blob.Blob[T]) {
	l.sigmoid.ForwardCPU(bottom[:1], []*blob.Blob[T]{l.prob})
}

func (l *SigmoidWithLoss[T]) ForwardGPU(bottom, top []*blob.Blob[T]) {
	l.sigmoid.ForwardGPU(bottom[:1], []*blob.Blob[T]{l.prob})
}

func (l *SigmoidWithLoss[T]) BackwardCPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	x, y := bottom[0].CPUData(), bottom[1].CPUData()
	s := l.sigmoid.Steepness()
	num := float64(bottom[0].Num())

	// Cross entropy on z = s·x in the form that does not overflow:
	// max(z, 0) − z·y + log(1 + exp(−|z|)).
	var loss float64
	for i := range x {
		z := s * float64(x[i])
		loss += max(z, 0) - z*float64(y[i]) + math.Log1p(math.Exp(-math.Abs(z)))
	}
	if propagateDown[0] {
		p := l.prob.CPUData()
		dx := bottom[0].MutableCPUDiff()
		for i := range dx {
			dx[i] = T(s * (float64(p[i]) - float64(y[i])) / num)
		}
	}
	return T(loss / num)
}

func (l *SigmoidWithLoss[T]) BackwardGPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	return l.BackwardCPU(top, propagateDown, bottom)
}
