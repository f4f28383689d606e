package blob

import "errors"

// ErrShape is returned when two blobs are required to have the same shape.
var ErrShape = errors.New("shape mismatch")
