//go:build !windows

package webgpu

import "github.com/born-ml/brew/internal/backend"

// Open reports ErrUnavailable: the bindings are only built on Windows.
func Open() (backend.Device, error) {
	return nil, ErrUnavailable
}

// IsAvailable reports false on this platform.
func IsAvailable() bool { return false }

// Adapters reports ErrUnavailable on this platform.
func Adapters() ([]string, error) {
	return nil, ErrUnavailable
}
