package layers

import (
	"fmt"
	"math"

	"github.com/born-ml/brew/internal/backend/cpu"
	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
	"github.com/born-ml/brew/internal/data"
)

// Loss layers do all of their work in Backward, which returns the loss and
// writes the prediction gradient. Forward is a no-op and there are no tops.
// The GPU entry points run the host code.

// classLoss is the shared SetUp of losses over (prediction, label) pairs with
// one integer label per row.
type classLoss[T blob.Float] struct {
	base[T]
	num, dim int
}

func (l *classLoss[T]) SetUp(bottom, top []*blob.Blob[T]) error {
	if err := l.expect(bottom, top, 2, 2, 0, 0); err != nil {
		return err
	}
	return l.setUpLabels(bottom, top)
}

func (l *classLoss[T]) setUpLabels(bottom, top []*blob.Blob[T]) error {
	if bottom[0].Num() != bottom[1].Num() {
		return l.errorf(ErrShapeMismatch, "predictions have %d rows, labels %d", bottom[0].Num(), bottom[1].Num())
	}
	if bottom[1].Count() != bottom[1].Num() {
		return l.errorf(ErrShapeMismatch, "labels must hold one value per row, got %s", bottom[1].ShapeString())
	}
	l.num = bottom[0].Num()
	l.dim = bottom[0].Count() / l.num
	return l.done(bottom, top)
}

func (l *classLoss[T]) ForwardCPU(bottom, top []*blob.Blob[T]) {}
func (l *classLoss[T]) ForwardGPU(bottom, top []*blob.Blob[T]) {}

// label returns the class index of row i.
func (l *classLoss[T]) label(labels []T, i int) int {
	c := int(labels[i])
	if c < 0 || c >= l.dim {
		panic(fmt.Sprintf("layer %q: label %d of row %d outside [0, %d)", l.Name(), c, i, l.dim))
	}
	return c
}

// MultinomialLogisticLoss is -Σ log p[label] / num over probabilities p.
type MultinomialLogisticLoss[T blob.Float] struct {
	classLoss[T]
}

// NewMultinomialLogisticLoss creates a multinomial logistic loss layer.
func NewMultinomialLogisticLoss[T blob.Float](p config.LayerParameter) *MultinomialLogisticLoss[T] {
	return &MultinomialLogisticLoss[T]{classLoss[T]{base: newBase[T](p)}}
}

func (l *MultinomialLogisticLoss[T]) BackwardCPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	prob, labels := bottom[0].CPUData(), bottom[1].CPUData()
	var dp []T
	if propagateDown[0] {
		dp = bottom[0].MutableCPUDiff()
		cpu.Set(0, dp)
	}
	var loss float64
	for i := 0; i < l.num; i++ {
		c := l.label(labels, i)
		p := prob[i*l.dim+c]
		if p <= 0 {
			panic(fmt.Sprintf("layer %q: non-positive probability %g for row %d", l.Name(), float64(p), i))
		}
		loss -= math.Log(float64(p))
		if dp != nil {
			dp[i*l.dim+c] = -1 / (p * T(l.num))
		}
	}
	return T(loss / float64(l.num))
}

func (l *MultinomialLogisticLoss[T]) BackwardGPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	return l.BackwardCPU(top, propagateDown, bottom)
}

// InfogainLoss weighs the log probabilities of every class by the row of the
// infogain matrix H selected by the label: -Σ_j H[label, j]·log p_j / num.
type InfogainLoss[T blob.Float] struct {
	classLoss[T]
	infogain *blob.Blob[T]
}

// NewInfogainLoss creates an infogain loss layer. The matrix is read from
// InfogainFile at SetUp.
func NewInfogainLoss[T blob.Float](p config.LayerParameter) *InfogainLoss[T] {
	return &InfogainLoss[T]{classLoss: classLoss[T]{base: newBase[T](p)}}
}

func (l *InfogainLoss[T]) SetUp(bottom, top []*blob.Blob[T]) error {
	if err := l.expect(bottom, top, 2, 2, 0, 0); err != nil {
		return err
	}
	h, err := data.LoadBlob[T](l.param.InfogainFile)
	if err != nil {
		return l.errorf(ErrInvalidParam, "infogain matrix: %v", err)
	}
	l.infogain = h
	dim := bottom[0].Count() / bottom[0].Num()
	if h.Count() != dim*dim {
		return l.errorf(ErrShapeMismatch, "infogain matrix %s does not match %d classes", h.ShapeString(), dim)
	}
	return l.setUpLabels(bottom, top)
}

// Infogain returns the loaded matrix.
func (l *InfogainLoss[T]) Infogain() *blob.Blob[T] { return l.infogain }

func (l *InfogainLoss[T]) BackwardCPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	prob, labels, h := bottom[0].CPUData(), bottom[1].CPUData(), l.infogain.CPUData()
	var dp []T
	if propagateDown[0] {
		dp = bottom[0].MutableCPUDiff()
	}
	var loss float64
	for i := 0; i < l.num; i++ {
		c := l.label(labels, i)
		for j := 0; j < l.dim; j++ {
			w := h[c*l.dim+j]
			p := prob[i*l.dim+j]
			if w == 0 {
				if dp != nil {
					dp[i*l.dim+j] = 0
				}
				continue
			}
			if p <= 0 {
				panic(fmt.Sprintf("layer %q: non-positive probability %g for row %d class %d", l.Name(), float64(p), i, j))
			}
			loss -= float64(w) * math.Log(float64(p))
			if dp != nil {
				dp[i*l.dim+j] = -w / (p * T(l.num))
			}
		}
	}
	return T(loss / float64(l.num))
}

func (l *InfogainLoss[T]) BackwardGPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	return l.BackwardCPU(top, propagateDown, bottom)
}

// EuclideanLoss is Σ‖a − b‖² / (2·num) over two bottoms of equal count.
type EuclideanLoss[T blob.Float] struct {
	base[T]
	difference *blob.Blob[T]
}

// NewEuclideanLoss creates a Euclidean loss layer.
func NewEuclideanLoss[T blob.Float](p config.LayerParameter) *EuclideanLoss[T] {
	return &EuclideanLoss[T]{base: newBase[T](p)}
}

func (l *EuclideanLoss[T]) SetUp(bottom, top []*blob.Blob[T]) error {
	if err := l.expect(bottom, top, 2, 2, 0, 0); err != nil {
		return err
	}
	if bottom[0].Num() != bottom[1].Num() || bottom[0].Count() != bottom[1].Count() {
		return l.errorf(ErrShapeMismatch, "bottoms %s and %s differ", bottom[0].ShapeString(), bottom[1].ShapeString())
	}
	l.difference = blob.New[T]()
	l.difference.ReshapeLike(bottom[0])
	return l.done(bottom, top)
}

func (l *EuclideanLoss[T]) ForwardCPU(bottom, top []*blob.Blob[T]) {}
func (l *EuclideanLoss[T]) ForwardGPU(bottom, top []*blob.Blob[T]) {}

func (l *EuclideanLoss[T]) BackwardCPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	diff := l.difference.MutableCPUData()
	copy(diff, bottom[0].CPUData())
	cpu.Axpy(-1, bottom[1].CPUData(), diff)
	num := T(bottom[0].Num())
	loss := cpu.Dot(diff, diff) / num / 2

	if propagateDown[0] {
		da := bottom[0].MutableCPUDiff()
		copy(da, diff)
		cpu.Scal(1/num, da)
	}
	if len(propagateDown) > 1 && propagateDown[1] {
		db := bottom[1].MutableCPUDiff()
		copy(db, diff)
		cpu.Scal(-1/num, db)
	}
	return loss
}

func (l *EuclideanLoss[T]) BackwardGPU(top []*blob.Blob[T], propagateDown []bool, bottom []*blob.Blob[T]) T {
	return l.BackwardCPU(top, propagateDown, bottom)
}
