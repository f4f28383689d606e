// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU accelerator (Windows, float32 only).
//
// Example:
//
//	if webgpu.IsAvailable() {
//	    dev, err := webgpu.Open()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    engine.SetDevice(dev)
//	    engine.SetMode(engine.GPU)
//	}
package webgpu

import (
	"github.com/born-ml/brew/engine"
	internalwebgpu "github.com/born-ml/brew/internal/backend/webgpu"
)

// ErrUnavailable is returned when no adapter can be opened.
var ErrUnavailable = internalwebgpu.ErrUnavailable

// Open opens the high-performance adapter.
func Open() (engine.Device, error) {
	return internalwebgpu.Open()
}

// IsAvailable reports whether a WebGPU adapter can be requested.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}

// Adapters describes the available adapters.
func Adapters() ([]string, error) {
	return internalwebgpu.Adapters()
}
