// Package emu provides a software-emulated accelerator.
//
// The device keeps its own memory, separate from the host slices that blobs
// hand out, so every host/device transfer performed by SyncedMemory is real.
// Kernels run on host goroutines using the cpu kernels over typed views of
// device buffers. It is used to exercise the GPU code paths on machines
// without a GPU and to check CPU/GPU parity in tests.
package emu

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/born-ml/brew/internal/backend"
)

// Verify that Device implements backend.Device.
var _ backend.Device = (*Device)(nil)

type buffer struct {
	words []uint64
	size  int
	freed bool
}

// Size returns the allocation size in bytes.
func (b *buffer) Size() int { return b.size }

func (b *buffer) bytes() []byte {
	if len(b.words) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice over the word-aligned backing array
	return unsafe.Slice((*byte)(unsafe.Pointer(&b.words[0])), b.size)
}

// Stats reports device activity.
type Stats struct {
	LiveBuffers int
	LiveBytes   int
	Uploads     int64
	Downloads   int64
	Launches    int64
}

// Device is the emulated accelerator.
type Device struct {
	dispatch

	buffersMu sync.Mutex
	buffers   map[*buffer]struct{}
	liveBytes int

	uploads   atomic.Int64
	downloads atomic.Int64
	launches  atomic.Int64
}

// New creates an emulated device with empty memory.
func New() *Device {
	d := &Device{buffers: make(map[*buffer]struct{})}
	d.dispatch = dispatch{launches: &d.launches}
	return d
}

// Name returns the device name.
func (d *Device) Name() string { return "emu" }

// Alloc allocates size bytes of zeroed device memory.
func (d *Device) Alloc(size int) (backend.Buffer, error) {
	if size < 0 {
		return nil, fmt.Errorf("emu: invalid allocation size %d", size)
	}
	buf := &buffer{words: make([]uint64, (size+7)/8), size: size}

	d.buffersMu.Lock()
	d.buffers[buf] = struct{}{}
	d.liveBytes += size
	d.buffersMu.Unlock()
	return buf, nil
}

// Free releases a buffer obtained from Alloc.
func (d *Device) Free(b backend.Buffer) {
	buf := mustBuffer(b)
	d.buffersMu.Lock()
	defer d.buffersMu.Unlock()
	if buf.freed {
		panic("emu: double free")
	}
	buf.freed = true
	delete(d.buffers, buf)
	d.liveBytes -= buf.size
	buf.words = nil
}

// Upload copies src into the beginning of dst.
func (d *Device) Upload(dst backend.Buffer, src []byte) {
	buf := mustBuffer(dst)
	if len(src) > buf.size {
		panic(fmt.Sprintf("emu: upload of %d bytes into %d byte buffer", len(src), buf.size))
	}
	copy(buf.bytes(), src)
	d.uploads.Add(1)
}

// Download copies the beginning of src into dst.
func (d *Device) Download(dst []byte, src backend.Buffer) {
	buf := mustBuffer(src)
	if len(dst) > buf.size {
		panic(fmt.Sprintf("emu: download of %d bytes from %d byte buffer", len(dst), buf.size))
	}
	copy(dst, buf.bytes())
	d.downloads.Add(1)
}

// Synchronize is a no-op: kernels complete before returning.
func (d *Device) Synchronize() {}

// Stats returns a snapshot of the device counters.
func (d *Device) Stats() Stats {
	d.buffersMu.Lock()
	defer d.buffersMu.Unlock()
	return Stats{
		LiveBuffers: len(d.buffers),
		LiveBytes:   d.liveBytes,
		Uploads:     d.uploads.Load(),
		Downloads:   d.downloads.Load(),
		Launches:    d.launches.Load(),
	}
}

func mustBuffer(b backend.Buffer) *buffer {
	buf, ok := b.(*buffer)
	if !ok {
		panic(fmt.Sprintf("emu: foreign buffer %T", b))
	}
	if buf.freed {
		panic("emu: use of freed buffer")
	}
	return buf
}

// view returns the elements addressed by s as a typed slice.
func view[E backend.Element](s backend.Span) []E {
	if s.IsZero() || s.Len == 0 {
		return nil
	}
	if want := backend.DTypeOf[E](); s.DType != want {
		panic(fmt.Sprintf("emu: span of %s viewed as %s", s.DType, want))
	}
	buf := mustBuffer(s.Buf)
	if s.ByteOffset()+s.ByteLen() > buf.size {
		panic(fmt.Sprintf("emu: span [%d:+%d] exceeds buffer of %d bytes", s.ByteOffset(), s.ByteLen(), buf.size))
	}
	data := buf.bytes()[s.ByteOffset():]
	//nolint:gosec // unsafe.Slice for zero-copy typed view, bounds checked above
	return unsafe.Slice((*E)(unsafe.Pointer(&data[0])), s.Len)
}
