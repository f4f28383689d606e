// Package backend defines the contract between layers and the memory spaces they
// execute in.
//
// The host path works directly on Go slices (see package cpu). An accelerator is a
// Device: it owns memory that the host cannot address directly and exposes the
// kernel set layers need to run their GPU entry points. Device memory is addressed
// through Span values so that a layer can hand out sub-ranges (one image of a
// batch, one convolution group) without copying.
package backend

import "fmt"

// Float is the element constraint for blob data and gradients.
type Float interface {
	float32 | float64
}

// Element is the constraint for synchronized memory regions. The integer types
// back pooling winner indices (int32) and dropout masks (uint32).
type Element interface {
	float32 | float64 | int32 | uint32
}

// DType is runtime element type information for device memory.
type DType int

// Supported element types.
const (
	Float32 DType = iota
	Float64
	Int32
	Uint32
)

// Size returns the byte size of one element.
func (dt DType) Size() int {
	switch dt {
	case Float32, Int32, Uint32:
		return 4
	case Float64:
		return 8
	default:
		panic(fmt.Sprintf("backend: unknown dtype %d", int(dt)))
	}
}

// String returns a human-readable name for the data type.
func (dt DType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	default:
		return "unknown"
	}
}

// DTypeOf returns the DType matching the element type E.
func DTypeOf[E Element]() DType {
	var zero E
	switch any(zero).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case int32:
		return Int32
	case uint32:
		return Uint32
	default:
		panic("backend: unsupported element type")
	}
}

// Buffer is an opaque allocation in device memory.
type Buffer interface {
	// Size returns the allocation size in bytes.
	Size() int
}

// Span addresses Len elements of type DType starting at element Off of Buf.
type Span struct {
	Buf   Buffer
	DType DType
	Off   int
	Len   int
}

// Slice returns the sub-span [off, off+n) relative to s.
func (s Span) Slice(off, n int) Span {
	if off < 0 || n < 0 || off+n > s.Len {
		panic(fmt.Sprintf("backend: span slice [%d:%d] out of range (len %d)", off, off+n, s.Len))
	}
	return Span{Buf: s.Buf, DType: s.DType, Off: s.Off + off, Len: n}
}

// ByteOffset returns the offset of the first element in bytes.
func (s Span) ByteOffset() int {
	return s.Off * s.DType.Size()
}

// ByteLen returns the span length in bytes.
func (s Span) ByteLen() int {
	return s.Len * s.DType.Size()
}

// IsZero reports whether the span addresses no buffer.
func (s Span) IsZero() bool {
	return s.Buf == nil
}

// Device is an accelerator with its own memory space.
//
// Allocations are zero-initialised. Upload and Download move whole prefixes of a
// buffer; partial transfers are expressed with Copy between spans.
type Device interface {
	// Name returns a human-readable device name.
	Name() string

	// Alloc allocates size bytes of zeroed device memory.
	Alloc(size int) (Buffer, error)

	// Free releases a buffer obtained from Alloc.
	Free(buf Buffer)

	// Upload copies src into the beginning of dst.
	Upload(dst Buffer, src []byte)

	// Download copies the beginning of src into dst.
	Download(dst []byte, src Buffer)

	// Synchronize blocks until all submitted work has completed.
	Synchronize()

	Kernels
}

// Kernels is the set of device-side primitives the layer library uses.
//
// Scalars are passed as float64 and narrowed to the span element type by the
// implementation. Every kernel overwrites its outputs unless noted otherwise.
type Kernels interface {
	// Gemm computes c = alpha*op(a)*op(b) + beta*c with op(a) m×k and op(b) k×n,
	// all matrices row-major.
	Gemm(transA, transB bool, m, n, k int, alpha float64, a, b Span, beta float64, c Span)

	// Axpy computes y += alpha*x.
	Axpy(alpha float64, x, y Span)

	// Scale computes x *= alpha.
	Scale(alpha float64, x Span)

	// Set fills x with alpha.
	Set(alpha float64, x Span)

	// Copy copies src into dst (same length).
	Copy(src, dst Span)

	// Mul computes y = a*b element-wise.
	Mul(a, b, y Span)

	ReLUForward(x, y Span)
	ReLUBackward(x, dy, dx Span)

	SigmoidForward(steepness float64, x, y Span)
	SigmoidBackward(steepness float64, y, dy, dx Span)

	BNLLForward(x, y Span)
	BNLLBackward(x, dy, dx Span)

	// DropoutForward computes y = x*mask*scale with a uint32 0/1 mask.
	DropoutForward(x, mask Span, scale float64, y Span)
	// DropoutBackward computes dx = dy*mask*scale.
	DropoutBackward(dy, mask Span, scale float64, dx Span)

	// Im2col expands one image into its column matrix.
	Im2col(im Span, g ConvGeometry, col Span)
	// Col2im folds a column matrix back into one image, summing overlaps.
	Col2im(col Span, g ConvGeometry, im Span)

	// PoolForward reduces each window. For PoolMax, mask receives the flat
	// bottom index of each winner (int32); it is ignored for PoolAve.
	PoolForward(method PoolMethod, x Span, g PoolGeometry, y, mask Span)
	// PoolBackward routes dy back into dx (dx is overwritten).
	PoolBackward(method PoolMethod, dy, mask Span, g PoolGeometry, dx Span)

	PadForward(x Span, g PadGeometry, y Span)
	PadBackward(dy Span, g PadGeometry, dx Span)

	// LRNForward fills scale and computes y.
	LRNForward(x Span, g LRNGeometry, scale, y Span)
	// LRNBackward computes dx from the forward scale and output.
	LRNBackward(x, y, scale, dy Span, g LRNGeometry, dx Span)

	// SoftmaxForward normalises each of num rows of dim elements.
	SoftmaxForward(x Span, num, dim int, y Span)
	// SoftmaxBackward computes dx = (dy - <dy, y>) * y per row.
	SoftmaxBackward(y, dy Span, num, dim int, dx Span)
}
