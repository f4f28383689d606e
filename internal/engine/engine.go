// Package engine holds the process-wide execution state shared by every layer:
// the compute mode, the network phase, the active accelerator and the random
// seed.
//
// The state is set once during start-up and read on every Forward/Backward.
package engine

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/born-ml/brew/internal/backend"
	log "github.com/sirupsen/logrus"
)

// Mode selects the execution path of Forward and Backward.
type Mode int

// Compute modes.
const (
	CPU Mode = iota
	GPU
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case CPU:
		return "CPU"
	case GPU:
		return "GPU"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Phase tells layers whether the network is training or evaluating.
type Phase int

// Network phases.
const (
	Train Phase = iota
	Test
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Train:
		return "TRAIN"
	case Test:
		return "TEST"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

var (
	mu     sync.RWMutex
	mode   = CPU
	phase  = Train
	device backend.Device
	seed   = uint64(time.Now().UnixNano())

	// streams hands out distinct PCG sequences for the same seed.
	streams atomic.Uint64
)

// SetMode selects the execution path for all layers.
func SetMode(m Mode) {
	mu.Lock()
	mode = m
	mu.Unlock()
	log.WithField("mode", m).Debug("engine mode set")
}

// CurrentMode returns the configured execution path.
func CurrentMode() Mode {
	mu.RLock()
	defer mu.RUnlock()
	return mode
}

// SetPhase switches between training and evaluation behaviour.
func SetPhase(p Phase) {
	mu.Lock()
	phase = p
	mu.Unlock()
	log.WithField("phase", p).Debug("engine phase set")
}

// CurrentPhase returns the configured phase.
func CurrentPhase() Phase {
	mu.RLock()
	defer mu.RUnlock()
	return phase
}

// SetDevice installs the accelerator used for device memory and GPU kernels.
// Passing nil removes it.
func SetDevice(d backend.Device) {
	mu.Lock()
	device = d
	mu.Unlock()
	if d != nil {
		log.WithField("device", d.Name()).Info("accelerator attached")
	}
}

// HasDevice reports whether an accelerator is installed.
func HasDevice() bool {
	mu.RLock()
	defer mu.RUnlock()
	return device != nil
}

// Device returns the installed accelerator.
//
// Touching device memory without an accelerator is a configuration error and
// panics.
func Device() backend.Device {
	mu.RLock()
	defer mu.RUnlock()
	if device == nil {
		panic("engine: no accelerator device configured (call engine.SetDevice)")
	}
	return device
}

// SetRandomSeed reseeds every random stream created afterwards.
func SetRandomSeed(s uint64) {
	mu.Lock()
	seed = s
	streams.Store(0)
	mu.Unlock()
}

// NewSource returns an independent random source derived from the seed.
//
// Sources created after the same SetRandomSeed call, in the same order,
// produce the same sequences.
func NewSource() rand.Source {
	mu.RLock()
	s := seed
	mu.RUnlock()
	return rand.NewPCG(s, streams.Add(1))
}

// Reset restores the default state: CPU mode, train phase, no device.
func Reset() {
	mu.Lock()
	mode, phase, device = CPU, Train, nil
	mu.Unlock()
}
