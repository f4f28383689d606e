// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package emu provides a software accelerator that runs the GPU code paths on
// host goroutines with a separate device memory space.
package emu

import "github.com/born-ml/brew/internal/backend/emu"

// Device is the emulated accelerator.
type Device = emu.Device

// Stats reports device activity.
type Stats = emu.Stats

// New creates an emulated device with empty memory.
func New() *Device {
	return emu.New()
}
