package layers

import "errors"

// Errors returned by SetUp. They are wrapped with the layer name and the
// offending values.
var (
	ErrBottomCount   = errors.New("wrong number of bottom blobs")
	ErrTopCount      = errors.New("wrong number of top blobs")
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrInvalidParam  = errors.New("invalid parameter")
	ErrAlreadySetUp  = errors.New("layer already set up")
	ErrInPlace       = errors.New("bottom and top must be distinct blobs")
)
