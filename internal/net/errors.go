package net

import "errors"

var (
	// ErrInputCount is returned when Forward receives the wrong number of inputs.
	ErrInputCount = errors.New("wrong number of inputs")
	// ErrWeights is returned when a weight snapshot does not match the net.
	ErrWeights = errors.New("weights do not match net")
)
