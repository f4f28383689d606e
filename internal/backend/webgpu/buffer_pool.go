//go:build windows

package webgpu

import (
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
)

// sizeClass buckets pooled buffers so a lookup only scans comparable sizes.
type sizeClass int

const (
	smallClass sizeClass = iota
	mediumClass
	largeClass
)

const (
	smallThreshold  = 4 * 1024
	mediumThreshold = 1024 * 1024
	maxPoolSize     = 100
)

// storageUsage is the usage of every blob buffer: bound to kernels and both
// ends of copies.
const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

type pooledBuffer struct {
	buffer *wgpu.Buffer
	size   uint64
}

// bufferPool recycles freed storage buffers.
type bufferPool struct {
	device *wgpu.Device

	classes [3][]pooledBuffer
	mu      sync.Mutex

	allocated uint64
	released  uint64
	hits      uint64
	misses    uint64
}

func newBufferPool(device *wgpu.Device) *bufferPool {
	return &bufferPool{device: device}
}

func classOf(size uint64) sizeClass {
	switch {
	case size < smallThreshold:
		return smallClass
	case size < mediumThreshold:
		return mediumClass
	default:
		return largeClass
	}
}

// acquire returns a buffer of at least size bytes and its actual size. Reused
// buffers are not cleared.
func (p *bufferPool) acquire(size uint64) (*wgpu.Buffer, uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := classOf(size)
	pool := p.classes[c]
	for i, pb := range pool {
		// Do not hand a large buffer to a much smaller request.
		if pb.size >= size && pb.size <= 2*size {
			p.classes[c] = append(pool[:i], pool[i+1:]...)
			p.hits++
			return pb.buffer, pb.size, true
		}
	}

	p.misses++
	p.allocated++
	buf := p.device.CreateBuffer(&wgpu.BufferDescriptor{Usage: storageUsage, Size: size})
	return buf, size, false
}

// release returns a buffer to the pool, or destroys it when the pool is full.
func (p *bufferPool) release(buffer *wgpu.Buffer, size uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.released++
	c := classOf(size)
	if len(p.classes[c]) >= maxPoolSize {
		buffer.Release()
		return
	}
	p.classes[c] = append(p.classes[c], pooledBuffer{buffer: buffer, size: size})
}

// clear destroys every pooled buffer.
func (p *bufferPool) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for c := range p.classes {
		for _, pb := range p.classes[c] {
			pb.buffer.Release()
		}
		p.classes[c] = nil
	}
}

// PoolStats reports buffer pool activity.
type PoolStats struct {
	Allocated uint64
	Released  uint64
	Hits      uint64
	Misses    uint64
	Pooled    int
}

func (p *bufferPool) stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Allocated: p.allocated,
		Released:  p.released,
		Hits:      p.hits,
		Misses:    p.misses,
		Pooled:    len(p.classes[smallClass]) + len(p.classes[mediumClass]) + len(p.classes[largeClass]),
	}
}
