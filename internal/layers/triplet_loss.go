package layers

import (
	"github.com/born-ml/brew/internal/backend/cpu"
	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
)

// EuclideanTripletLoss learns an embedding from consecutive (anchor,
// positive, negative) rows. With d⁺ = ‖a−p‖² and d⁻ = ‖a−n‖², a triplet
// whose hinge h = d⁺ − d⁻ + LossThreshold is positive contributes h + λ·d⁺,
// where λ = LaplacianBeta·Decay^⌊iter/IterDecay⌋; any other triplet
// contributes nothing. The total is divided by the number of triplets.
type EuclideanTripletLoss[T blob.Float] struct {
	base[T]
	iterations IterationSource

	triplets, dim int
	// difference holds a−p and a−n of every triplet.
	difference *blob.Blob[T]
	// active marks the triplets whose hinge is positive.
	active *blob.Blob[T]
	lambda float64
}

// NewEuclideanTripletLoss creates a triplet loss layer reading the iteration
// from iter.
func NewEuclideanTripletLoss[T blob.Float](p config.LayerParameter, iter IterationSource) *EuclideanTripletLoss[T] {
	return &EuclideanTripletLoss[T]{base: newBase[T](p), iterations: iter}
}

func (l *EuclideanTripletLoss[T]) SetUp(bottom, top []*blob.Blob[T]) error {
	if err := l.expect(bottom, top, 1, 1, 0, 0); err != nil {
		return err
	}
	num := bottom[0].Num()
	if num%3 != 0 {
		return l.errorf(ErrShapeMismatch, "batch of %d rows is not made of triplets", num)
	}
	l.triplets = num / 3
	l.dim = bottom[0].Shape().CountFrom(1)
	l.difference = blob.New[T](l.triplets, 2, 1, l.dim)
	l.active = blob.New[T](l.triplets, 1, 1, 1)
	return l.done(bottom, top)
}

// Lambda returns the regularisation weight used by the last Backward.
func (l *EuclideanTripletLoss[T]) Lambda() float64 { return l.lambda }

// Active returns the hinge mask of the last Backward, 1 for triplets that
// violate the margin.
func (l *EuclideanTripletLoss[T]) Active() []T { return l.active.CPUData() }

func (l *EuclideanTripletLoss[T]) ForwardCPU(bottom, top []*blob.Blob[T]) {}
func (l *EuclideanTripletLoss[T]) ForwardGPU(bottom, top []*blob.Blob[T]) {}

func (l *EuclideanTripletLoss[T]) BackwardCPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	p := l.param
	l.lambda = decayedScale(p.LaplacianBeta, p.Decay, p.IterDecay, l.iterations())
	lambda := T(l.lambda)
	margin := T(p.LossThreshold)

	x := bottom[0].CPUData()
	diff := l.difference.MutableCPUData()
	active := l.active.MutableCPUData()
	d := l.dim

	var loss T
	for t := 0; t < l.triplets; t++ {
		a := x[(3*t)*d : (3*t+1)*d]
		pos := x[(3*t+1)*d : (3*t+2)*d]
		neg := x[(3*t+2)*d : (3*t+3)*d]
		ap := diff[(2*t)*d : (2*t+1)*d]
		an := diff[(2*t+1)*d : (2*t+2)*d]

		copy(ap, a)
		cpu.Axpy(-1, pos, ap)
		copy(an, a)
		cpu.Axpy(-1, neg, an)

		dPos, dNeg := cpu.Dot(ap, ap), cpu.Dot(an, an)
		if h := dPos - dNeg + margin; h > 0 {
			active[t] = 1
			loss += h + lambda*dPos
		} else {
			active[t] = 0
		}
	}

	if propagateDown[0] {
		dx := bottom[0].MutableCPUDiff()
		scale := 2 / T(l.triplets)
		for t := 0; t < l.triplets; t++ {
			ap := diff[(2*t)*d : (2*t+1)*d]
			an := diff[(2*t+1)*d : (2*t+2)*d]
			da := dx[(3*t)*d : (3*t+1)*d]
			dp := dx[(3*t+1)*d : (3*t+2)*d]
			dn := dx[(3*t+2)*d : (3*t+3)*d]
			s := scale * active[t]
			for i := 0; i < d; i++ {
				da[i] = s * ((1+lambda)*ap[i] - an[i])
				dp[i] = -s * (1 + lambda) * ap[i]
				dn[i] = s * an[i]
			}
		}
	}
	return loss / T(l.triplets)
}

func (l *EuclideanTripletLoss[T]) BackwardGPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	return l.BackwardCPU(top, propagateDown, bottom)
}
