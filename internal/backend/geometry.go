package backend

import "fmt"

// ConvGeometry describes the im2col transform of a single image.
type ConvGeometry struct {
	Channels   int
	Height     int
	Width      int
	KernelSize int
	Pad        int
	Stride     int
}

// OutHeight returns the number of kernel positions along the height.
func (g ConvGeometry) OutHeight() int {
	return (g.Height+2*g.Pad-g.KernelSize)/g.Stride + 1
}

// OutWidth returns the number of kernel positions along the width.
func (g ConvGeometry) OutWidth() int {
	return (g.Width+2*g.Pad-g.KernelSize)/g.Stride + 1
}

// ColRows returns the row count of the column matrix (C·k·k).
func (g ConvGeometry) ColRows() int {
	return g.Channels * g.KernelSize * g.KernelSize
}

// ColCount returns the element count of the column matrix.
func (g ConvGeometry) ColCount() int {
	return g.ColRows() * g.OutHeight() * g.OutWidth()
}

// Validate checks that the kernel fits the padded image.
func (g ConvGeometry) Validate() error {
	if g.Channels <= 0 || g.Height <= 0 || g.Width <= 0 {
		return fmt.Errorf("invalid image %dx%dx%d", g.Channels, g.Height, g.Width)
	}
	if g.KernelSize <= 0 || g.Stride <= 0 || g.Pad < 0 {
		return fmt.Errorf("invalid kernel %d stride %d pad %d", g.KernelSize, g.Stride, g.Pad)
	}
	if g.Height+2*g.Pad < g.KernelSize || g.Width+2*g.Pad < g.KernelSize {
		return fmt.Errorf("kernel %d larger than padded image %dx%d", g.KernelSize, g.Height+2*g.Pad, g.Width+2*g.Pad)
	}
	return nil
}

// PoolMethod selects the pooling reduction.
type PoolMethod int

// Pooling methods.
const (
	PoolMax PoolMethod = iota
	PoolAve
)

// String returns the method name.
func (m PoolMethod) String() string {
	switch m {
	case PoolMax:
		return "MAX"
	case PoolAve:
		return "AVE"
	default:
		return "unknown"
	}
}

// PoolGeometry describes a pooling pass over a whole batch.
type PoolGeometry struct {
	Num          int
	Channels     int
	Height       int
	Width        int
	KernelSize   int
	Stride       int
	PooledHeight int
	PooledWidth  int
}

// PooledSize returns ceil((size-k)/stride)+1, the rounding used by this layer
// family so that the last partial window is kept.
func PooledSize(size, kernel, stride int) int {
	return (size-kernel+stride-1)/stride + 1
}

// PadGeometry describes zero padding of a batch.
type PadGeometry struct {
	Num      int
	Channels int
	Height   int
	Width    int
	Pad      int
}

// OutHeight returns the padded height.
func (g PadGeometry) OutHeight() int { return g.Height + 2*g.Pad }

// OutWidth returns the padded width.
func (g PadGeometry) OutWidth() int { return g.Width + 2*g.Pad }

// LRNGeometry describes local response normalization of a batch.
type LRNGeometry struct {
	Num           int
	Channels      int
	Height        int
	Width         int
	Size          int
	Alpha         float64
	Beta          float64
	K             float64
	WithinChannel bool
}

// PrePad returns the number of neighbours on each side of the window centre.
func (g LRNGeometry) PrePad() int {
	return (g.Size - 1) / 2
}
