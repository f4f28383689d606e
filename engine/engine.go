// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package engine holds the process-wide execution settings: compute mode,
// phase, accelerator and random seed.
//
// Example:
//
//	dev := emu.New()
//	engine.SetDevice(dev)
//	engine.SetMode(engine.GPU)
//	engine.SetPhase(engine.Test)
package engine

import (
	"github.com/born-ml/brew/internal/backend"
	"github.com/born-ml/brew/internal/engine"
)

// Mode selects the CPU or GPU entry points of every layer.
type Mode = engine.Mode

// Compute modes.
const (
	CPU = engine.CPU
	GPU = engine.GPU
)

// Phase tells layers whether the net is training or evaluating.
type Phase = engine.Phase

// Phases.
const (
	Train = engine.Train
	Test  = engine.Test
)

// Device is an accelerator with its own memory space.
type Device = backend.Device

// SetMode selects the execution path for all layers.
func SetMode(m Mode) { engine.SetMode(m) }

// CurrentMode returns the configured execution path.
func CurrentMode() Mode { return engine.CurrentMode() }

// SetPhase switches between training and evaluation behaviour.
func SetPhase(p Phase) { engine.SetPhase(p) }

// CurrentPhase returns the configured phase.
func CurrentPhase() Phase { return engine.CurrentPhase() }

// SetDevice installs the accelerator. Passing nil removes it.
func SetDevice(d Device) { engine.SetDevice(d) }

// HasDevice reports whether an accelerator is installed.
func HasDevice() bool { return engine.HasDevice() }

// SetRandomSeed reseeds every random stream created afterwards.
func SetRandomSeed(seed uint64) { engine.SetRandomSeed(seed) }

// Reset restores CPU mode, train phase and no device.
func Reset() { engine.Reset() }
