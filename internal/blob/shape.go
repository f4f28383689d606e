package blob

import "fmt"

// Shape represents the dimensions of a blob.
type Shape []int

// Count returns the product of the dimensions.
func (s Shape) Count() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that every dimension is positive.
func (s Shape) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("empty shape")
	}
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// Axis returns dimension i, or 1 when the shape has fewer axes.
func (s Shape) Axis(i int) int {
	if i < len(s) {
		return s[i]
	}
	return 1
}

// CountFrom returns the product of the dimensions from axis start onwards.
func (s Shape) CountFrom(start int) int {
	n := 1
	for i := start; i < len(s); i++ {
		n *= s[i]
	}
	return n
}
