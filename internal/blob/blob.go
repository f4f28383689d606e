// Package blob implements the shaped numeric buffers that flow between layers.
//
// A Blob carries two synchronized regions of the same size: data (values) and
// diff (gradients). Either region can be read or written from the host as a Go
// slice or on the accelerator as a backend.Span; SyncedMemory moves the bytes
// on demand.
package blob

import (
	"fmt"
	"strings"

	"github.com/born-ml/brew/internal/backend"
	"github.com/born-ml/brew/internal/backend/cpu"
	"github.com/born-ml/brew/internal/engine"
)

// Float is the element constraint for blob values.
type Float = backend.Float

// Blob is a shaped pair of data/diff buffers.
type Blob[T Float] struct {
	shape    Shape
	count    int
	capacity int

	data *SyncedMemory[T]
	diff *SyncedMemory[T]

	// version changes whenever data may have been rewritten.
	version uint64
}

// New creates a blob with the given shape. With no dimensions the blob is
// empty until Reshape is called.
func New[T Float](dims ...int) *Blob[T] {
	b := &Blob[T]{}
	if len(dims) > 0 {
		b.Reshape(dims...)
	}
	return b
}

// Reshape changes the blob shape. Storage is reallocated only when the new
// element count exceeds the current capacity; otherwise it is reused and its
// contents are unspecified.
func (b *Blob[T]) Reshape(dims ...int) {
	shape := Shape(dims)
	if err := shape.Validate(); err != nil {
		panic(fmt.Sprintf("blob: reshape to %v: %v", dims, err))
	}
	b.shape = shape.Clone()
	b.count = shape.Count()
	b.version++
	if b.count > b.capacity {
		b.releaseStorage()
		b.capacity = b.count
		b.data = NewSyncedMemory[T](b.count)
		b.diff = NewSyncedMemory[T](b.count)
	}
}

// ReshapeLike reshapes b to the shape of other.
func (b *Blob[T]) ReshapeLike(other *Blob[T]) {
	b.Reshape(other.shape...)
}

// Shape returns the blob dimensions.
func (b *Blob[T]) Shape() Shape { return b.shape }

// Count returns the number of elements.
func (b *Blob[T]) Count() int { return b.count }

// Capacity returns the number of elements the current storage can hold.
func (b *Blob[T]) Capacity() int { return b.capacity }

// Num returns axis 0.
func (b *Blob[T]) Num() int { return b.shape.Axis(0) }

// Channels returns axis 1.
func (b *Blob[T]) Channels() int { return b.shape.Axis(1) }

// Height returns axis 2.
func (b *Blob[T]) Height() int { return b.shape.Axis(2) }

// Width returns axis 3.
func (b *Blob[T]) Width() int { return b.shape.Axis(3) }

// Offset returns the flat index of element (n, c, h, w).
func (b *Blob[T]) Offset(n, c, h, w int) int {
	return ((n*b.Channels()+c)*b.Height()+h)*b.Width() + w
}

// Version returns a counter that changes on every mutable data access and on
// reshape.
func (b *Blob[T]) Version() uint64 { return b.version }

func (b *Blob[T]) mustHaveStorage() {
	if b.data == nil {
		panic("blob: accessed before Reshape")
	}
}

// CPUData returns the data for reading on the host.
func (b *Blob[T]) CPUData() []T {
	b.mustHaveStorage()
	return b.data.CPU()[:b.count]
}

// MutableCPUData returns the data for writing on the host.
func (b *Blob[T]) MutableCPUData() []T {
	b.mustHaveStorage()
	b.version++
	return b.data.MutableCPU()[:b.count]
}

// GPUData returns the data for reading on the accelerator.
func (b *Blob[T]) GPUData() backend.Span {
	b.mustHaveStorage()
	return b.data.GPU().Slice(0, b.count)
}

// MutableGPUData returns the data for writing on the accelerator.
func (b *Blob[T]) MutableGPUData() backend.Span {
	b.mustHaveStorage()
	b.version++
	return b.data.MutableGPU().Slice(0, b.count)
}

// CPUDiff returns the gradient for reading on the host.
func (b *Blob[T]) CPUDiff() []T {
	b.mustHaveStorage()
	return b.diff.CPU()[:b.count]
}

// MutableCPUDiff returns the gradient for writing on the host.
func (b *Blob[T]) MutableCPUDiff() []T {
	b.mustHaveStorage()
	return b.diff.MutableCPU()[:b.count]
}

// GPUDiff returns the gradient for reading on the accelerator.
func (b *Blob[T]) GPUDiff() backend.Span {
	b.mustHaveStorage()
	return b.diff.GPU().Slice(0, b.count)
}

// MutableGPUDiff returns the gradient for writing on the accelerator.
func (b *Blob[T]) MutableGPUDiff() backend.Span {
	b.mustHaveStorage()
	return b.diff.MutableGPU().Slice(0, b.count)
}

// Data exposes the underlying data region.
func (b *Blob[T]) Data() *SyncedMemory[T] { return b.data }

// Diff exposes the underlying gradient region.
func (b *Blob[T]) Diff() *SyncedMemory[T] { return b.diff }

// DataAt returns data element (n, c, h, w).
func (b *Blob[T]) DataAt(n, c, h, w int) T {
	return b.CPUData()[b.Offset(n, c, h, w)]
}

// DiffAt returns gradient element (n, c, h, w).
func (b *Blob[T]) DiffAt(n, c, h, w int) T {
	return b.CPUDiff()[b.Offset(n, c, h, w)]
}

// ShareData makes b use other's data storage. Counts must match.
func (b *Blob[T]) ShareData(other *Blob[T]) {
	if b.count != other.count {
		panic(fmt.Sprintf("blob: share data between counts %d and %d", b.count, other.count))
	}
	other.data.Retain()
	b.data.Release()
	b.data = other.data
	b.version++
}

// ShareDiff makes b use other's gradient storage. Counts must match.
func (b *Blob[T]) ShareDiff(other *Blob[T]) {
	if b.count != other.count {
		panic(fmt.Sprintf("blob: share diff between counts %d and %d", b.count, other.count))
	}
	other.diff.Retain()
	b.diff.Release()
	b.diff = other.diff
}

// CopyFrom copies src's data (or gradient, when copyDiff is set) into b. When
// the shapes differ b is reshaped if reshape is set, otherwise an error is
// returned. The copy runs in the memory space of the current engine mode.
func (b *Blob[T]) CopyFrom(src *Blob[T], copyDiff, reshape bool) error {
	if !b.shape.Equal(src.shape) {
		if !reshape {
			return fmt.Errorf("blob: copy from shape %v into %v: %w", src.shape, b.shape, ErrShape)
		}
		b.Reshape(src.shape...)
	}

	if engine.CurrentMode() == engine.GPU {
		if copyDiff {
			engine.Device().Copy(src.GPUDiff(), b.MutableGPUDiff())
		} else {
			engine.Device().Copy(src.GPUData(), b.MutableGPUData())
		}
		return nil
	}
	if copyDiff {
		copy(b.MutableCPUDiff(), src.CPUDiff())
	} else {
		copy(b.MutableCPUData(), src.CPUData())
	}
	return nil
}

// Update applies data -= diff in whichever memory space holds fresh data.
func (b *Blob[T]) Update() {
	if b.data == nil {
		return
	}
	switch b.data.Head() {
	case HostFresh:
		cpu.Axpy(-1, b.CPUDiff(), b.MutableCPUData())
	case DeviceFresh, Synced:
		if engine.HasDevice() && b.data.dev != nil {
			engine.Device().Axpy(-1, b.GPUDiff(), b.MutableGPUData())
			return
		}
		cpu.Axpy(-1, b.CPUDiff(), b.MutableCPUData())
	case Uninitialized:
	}
}

// AsumData returns the L1 norm of the data.
func (b *Blob[T]) AsumData() T {
	return cpu.Asum(b.CPUData())
}

// AsumDiff returns the L1 norm of the gradient.
func (b *Blob[T]) AsumDiff() T {
	return cpu.Asum(b.CPUDiff())
}

// SumSquaresData returns the squared L2 norm of the data.
func (b *Blob[T]) SumSquaresData() T {
	return cpu.SumSquares(b.CPUData())
}

// Release drops this blob's references to its storage.
func (b *Blob[T]) Release() {
	b.releaseStorage()
	b.capacity = 0
}

func (b *Blob[T]) releaseStorage() {
	if b.data != nil {
		b.data.Release()
		b.data = nil
	}
	if b.diff != nil {
		b.diff.Release()
		b.diff = nil
	}
}

// ShapeString formats the shape as "2 3 4 4 (96)".
func (b *Blob[T]) ShapeString() string {
	var sb strings.Builder
	for _, d := range b.shape {
		fmt.Fprintf(&sb, "%d ", d)
	}
	fmt.Fprintf(&sb, "(%d)", b.count)
	return sb.String()
}
