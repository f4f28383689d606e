package blob

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/born-ml/brew/internal/backend"
	"github.com/born-ml/brew/internal/engine"
)

// Head records which memory space holds the authoritative copy.
type Head int

// Memory heads.
const (
	Uninitialized Head = iota
	HostFresh
	DeviceFresh
	Synced
)

// String returns a human-readable head name.
func (h Head) String() string {
	switch h {
	case Uninitialized:
		return "UNINITIALIZED"
	case HostFresh:
		return "HOST_FRESH"
	case DeviceFresh:
		return "DEVICE_FRESH"
	case Synced:
		return "SYNCED"
	default:
		return "UNKNOWN"
	}
}

// SyncedMemory is a region of count elements mirrored between host and device
// memory. Each accessor copies from the other space when that space holds the
// only fresh copy; the mutable accessors then mark their own space as the sole
// fresh one.
//
// Host and device storage are allocated lazily and zero-initialised.
// SyncedMemory is reference counted: NewSyncedMemory returns it with one
// reference and the device buffer is freed when the last reference is released.
type SyncedMemory[E backend.Element] struct {
	count int
	head  Head

	host []E

	dev       backend.Buffer
	devOwner  backend.Device
	devDType  backend.DType
	refCount  atomic.Int32
	transfers int
}

// NewSyncedMemory creates an uninitialised region of count elements.
func NewSyncedMemory[E backend.Element](count int) *SyncedMemory[E] {
	if count < 0 {
		panic(fmt.Sprintf("synced memory: negative count %d", count))
	}
	m := &SyncedMemory[E]{count: count, devDType: backend.DTypeOf[E]()}
	m.refCount.Store(1)
	return m
}

// Count returns the number of elements.
func (m *SyncedMemory[E]) Count() int { return m.count }

// Head returns the current coherence state.
func (m *SyncedMemory[E]) Head() Head { return m.head }

// Transfers returns the number of host/device copies performed so far.
func (m *SyncedMemory[E]) Transfers() int { return m.transfers }

// CPU returns the host copy for reading.
func (m *SyncedMemory[E]) CPU() []E {
	m.toHost()
	return m.host
}

// MutableCPU returns the host copy for writing and marks it as the only fresh copy.
func (m *SyncedMemory[E]) MutableCPU() []E {
	m.toHost()
	m.head = HostFresh
	return m.host
}

// GPU returns the device copy for reading.
func (m *SyncedMemory[E]) GPU() backend.Span {
	m.toDevice()
	return m.span()
}

// MutableGPU returns the device copy for writing and marks it as the only fresh copy.
func (m *SyncedMemory[E]) MutableGPU() backend.Span {
	m.toDevice()
	m.head = DeviceFresh
	return m.span()
}

func (m *SyncedMemory[E]) span() backend.Span {
	return backend.Span{Buf: m.dev, DType: m.devDType, Len: m.count}
}

func (m *SyncedMemory[E]) toHost() {
	switch m.head {
	case Uninitialized:
		m.host = make([]E, m.count)
		m.head = HostFresh
	case DeviceFresh:
		if m.host == nil {
			m.host = make([]E, m.count)
		}
		m.devOwner.Download(asBytes(m.host), m.dev)
		m.transfers++
		m.head = Synced
	case HostFresh, Synced:
	}
}

func (m *SyncedMemory[E]) toDevice() {
	switch m.head {
	case Uninitialized:
		m.allocDevice()
		m.head = DeviceFresh
	case HostFresh:
		if m.dev == nil {
			m.allocDevice()
		}
		m.devOwner.Upload(m.dev, asBytes(m.host))
		m.transfers++
		m.head = Synced
	case DeviceFresh, Synced:
	}
}

func (m *SyncedMemory[E]) allocDevice() {
	dev := engine.Device()
	buf, err := dev.Alloc(max(m.count, 1) * m.devDType.Size())
	if err != nil {
		panic(fmt.Sprintf("synced memory: device allocation of %d elements failed: %v", m.count, err))
	}
	m.dev, m.devOwner = buf, dev
}

// Retain adds a reference.
func (m *SyncedMemory[E]) Retain() {
	m.refCount.Add(1)
}

// Release drops a reference and frees both copies when none remain.
func (m *SyncedMemory[E]) Release() {
	if m.refCount.Add(-1) != 0 {
		return
	}
	if m.dev != nil {
		m.devOwner.Free(m.dev)
		m.dev, m.devOwner = nil, nil
	}
	m.host = nil
	m.head = Uninitialized
}

// RefCount returns the number of live references.
func (m *SyncedMemory[E]) RefCount() int {
	return int(m.refCount.Load())
}

func asBytes[E backend.Element](s []E) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero E
	//nolint:gosec // unsafe.Slice for zero-copy transfer, length derived from the typed slice
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(unsafe.Sizeof(zero)))
}
