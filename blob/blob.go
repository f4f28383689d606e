// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package blob provides the 4-D arrays layers read and write.
//
// A Blob holds data and gradient (diff) of shape (num, channels, height,
// width), each backed by memory that is lazily synchronized between the host
// and the installed accelerator:
//
//	b := blob.New[float32](2, 3, 4, 4)
//	copy(b.MutableCPUData(), pixels)
//	fmt.Println(b.ShapeString()) // 2 3 4 4 (96)
package blob

import "github.com/born-ml/brew/internal/blob"

// Float is the element constraint of blobs: float32 or float64.
type Float = blob.Float

// Blob is a 4-D array with data and gradient.
type Blob[T Float] = blob.Blob[T]

// Shape is the dimension list of a blob.
type Shape = blob.Shape

// Head tells which memory space of a synced region is authoritative.
type Head = blob.Head

// Head states.
const (
	Uninitialized = blob.Uninitialized
	HostFresh     = blob.HostFresh
	DeviceFresh   = blob.DeviceFresh
	Synced        = blob.Synced
)

// ErrShape is returned when blobs are required to share a shape.
var ErrShape = blob.ErrShape

// New creates a blob with the given dimensions.
func New[T Float](dims ...int) *Blob[T] {
	return blob.New[T](dims...)
}
