// Package webgpu provides a WebGPU accelerator for the layer library.
//
// The device implements backend.Device with WGSL compute shaders over
// storage buffers, through the zero-CGO go-webgpu bindings. WGSL has no
// double precision, so only float32 blobs (plus the int32 and uint32 masks)
// can live on this device. The bindings are only built on Windows; elsewhere
// Open reports ErrUnavailable.
package webgpu

import "errors"

// ErrUnavailable is returned when no WebGPU adapter can be opened.
var ErrUnavailable = errors.New("webgpu: not available")
