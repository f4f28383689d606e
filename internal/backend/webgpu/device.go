//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/born-ml/brew/internal/backend"
	"github.com/go-webgpu/webgpu/wgpu"
	log "github.com/sirupsen/logrus"
)

// Verify that Device implements backend.Device.
var _ backend.Device = (*Device)(nil)

type buffer struct {
	buf      *wgpu.Buffer
	size     int
	capacity uint64
	freed    bool
}

// Size returns the requested allocation size in bytes.
func (b *buffer) Size() int { return b.size }

// Stats reports device activity.
type Stats struct {
	LiveBuffers int64
	Uploads     int64
	Downloads   int64
	Launches    int64
	Pool        PoolStats
}

// Device is a WebGPU adapter and queue running the layer kernels.
type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	info     wgpu.AdapterInfo

	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	pool *bufferPool

	// dummy is bound in place of an absent optional span.
	dummy *wgpu.Buffer

	live      atomic.Int64
	uploads   atomic.Int64
	downloads atomic.Int64
	launches  atomic.Int64
}

// New opens the high-performance adapter.
func New() (dev *Device, err error) {
	// wgpu_native panics when its library cannot be loaded.
	defer func() {
		if r := recover(); r != nil {
			dev = nil
			err = fmt.Errorf("%w: %v", ErrUnavailable, r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: requesting adapter: %v", ErrUnavailable, err)
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: requesting device: %v", ErrUnavailable, err)
	}
	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: no queue", ErrUnavailable)
	}

	d := &Device{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     queue,
		info:      adapter.GetInfo(),
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
		pool:      newBufferPool(device),
	}
	d.dummy = device.CreateBuffer(&wgpu.BufferDescriptor{Usage: storageUsage, Size: 16})
	log.WithField("adapter", d.Name()).Debug("webgpu device opened")
	return d, nil
}

// Open returns the WebGPU device as a backend.Device.
func Open() (backend.Device, error) {
	return New()
}

// IsAvailable reports whether an adapter can be requested.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()
	instance := wgpu.CreateInstance(nil)
	defer instance.Release()
	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

// Adapters describes the default adapter. WebGPU does not enumerate adapters.
func Adapters() (names []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			names = nil
			err = fmt.Errorf("%w: %v", ErrUnavailable, r)
		}
	}()
	instance := wgpu.CreateInstance(nil)
	defer instance.Release()
	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer adapter.Release()
	return []string{describe(adapter.GetInfo())}, nil
}

func describe(info wgpu.AdapterInfo) string {
	return fmt.Sprintf("%v %v (%v)", info.Vendor, info.Device, info.BackendType)
}

// Name returns the adapter description.
func (d *Device) Name() string {
	return "webgpu " + describe(d.info)
}

// Release destroys the device and every cached object.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pool != nil {
		d.pool.clear()
		d.pool = nil
	}
	for _, p := range d.pipelines {
		p.Release()
	}
	d.pipelines = nil
	for _, s := range d.shaders {
		s.Release()
	}
	d.shaders = nil
	if d.dummy != nil {
		d.dummy.Release()
		d.dummy = nil
	}
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

// Stats returns a snapshot of the device counters.
func (d *Device) Stats() Stats {
	return Stats{
		LiveBuffers: d.live.Load(),
		Uploads:     d.uploads.Load(),
		Downloads:   d.downloads.Load(),
		Launches:    d.launches.Load(),
		Pool:        d.pool.stats(),
	}
}

// Alloc allocates size bytes of zeroed device memory.
func (d *Device) Alloc(size int) (backend.Buffer, error) {
	if size < 0 {
		return nil, fmt.Errorf("webgpu: invalid allocation size %d", size)
	}
	padded := uint64(max((size+15)&^15, 16))
	buf, capacity, reused := d.pool.acquire(padded)
	if reused {
		words := int(capacity / 4)
		d.launch("set", words, []uint32{uint32(words), 0, math.Float32bits(0)}, backend.Span{
			Buf: &buffer{buf: buf, capacity: capacity}, DType: backend.Float32, Len: words,
		})
	}
	d.live.Add(1)
	return &buffer{buf: buf, size: size, capacity: capacity}, nil
}

// Free returns a buffer to the pool.
func (d *Device) Free(b backend.Buffer) {
	buf := mustBuffer(b)
	buf.freed = true
	d.live.Add(-1)
	d.pool.release(buf.buf, buf.capacity)
}

// Upload copies src into the beginning of dst through a mapped staging buffer.
func (d *Device) Upload(dst backend.Buffer, src []byte) {
	buf := mustBuffer(dst)
	if len(src) > buf.size {
		panic(fmt.Sprintf("webgpu: upload of %d bytes into %d byte buffer", len(src), buf.size))
	}
	if len(src) == 0 {
		return
	}
	size := uint64((len(src) + 3) &^ 3)
	staging := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageCopySrc | wgpu.BufferUsageMapWrite,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	defer staging.Release()
	mapped := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice over the mapped range
	copy(unsafe.Slice((*byte)(mapped), size), src)
	staging.Unmap()

	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, buf.buf, 0, size)
	d.queue.Submit(encoder.Finish(nil))
	d.uploads.Add(1)
}

// Download copies the beginning of src into dst.
func (d *Device) Download(dst []byte, src backend.Buffer) {
	buf := mustBuffer(src)
	if len(dst) > buf.size {
		panic(fmt.Sprintf("webgpu: download of %d bytes from %d byte buffer", len(dst), buf.size))
	}
	if len(dst) == 0 {
		return
	}
	raw, err := d.read(buf.buf, 0, uint64((len(dst)+3)&^3))
	if err != nil {
		panic(fmt.Sprintf("webgpu: download: %v", err))
	}
	copy(dst, raw)
	d.downloads.Add(1)
}

// Synchronize waits for submitted work by mapping an empty readback.
func (d *Device) Synchronize() {
	if _, err := d.read(d.dummy, 0, 4); err != nil {
		panic(fmt.Sprintf("webgpu: synchronize: %v", err))
	}
}

// read copies size bytes at offset of src back to host memory.
func (d *Device) read(src *wgpu.Buffer, offset, size uint64) ([]byte, error) {
	staging := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, offset, staging, 0, size)
	d.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(d.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("mapping staging buffer: %w", err)
	}
	mapped := staging.GetMappedRange(0, size)
	out := make([]byte, size)
	//nolint:gosec // unsafe.Slice over the mapped range
	copy(out, unsafe.Slice((*byte)(mapped), size))
	staging.Unmap()
	return out, nil
}

func (d *Device) pipeline(name string) *wgpu.ComputePipeline {
	d.mu.RLock()
	p, ok := d.pipelines[name]
	d.mu.RUnlock()
	if ok {
		return p
	}

	code, ok := shaders[name]
	if !ok {
		panic(fmt.Sprintf("webgpu: no shader %q", name))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pipelines[name]; ok {
		return p
	}
	shader := d.device.CreateShaderModuleWGSL(code)
	d.shaders[name] = shader
	p = d.device.CreateComputePipelineSimple(nil, shader, "main")
	d.pipelines[name] = p
	return p
}

// launch runs kernel name over n invocations. Spans are bound in order,
// followed by the uniform parameter block.
func (d *Device) launch(name string, n int, params []uint32, spans ...backend.Span) {
	if n == 0 {
		return
	}
	if len(params) > maxParams {
		panic(fmt.Sprintf("webgpu: %s takes %d params, max %d", name, len(params), maxParams))
	}
	pipeline := d.pipeline(name)

	raw := make([]byte, 4*maxParams)
	for i, p := range params {
		binary.LittleEndian.PutUint32(raw[4*i:], p)
	}
	uniform := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             uint64(len(raw)),
		MappedAtCreation: wgpu.True,
	})
	defer uniform.Release()
	mapped := uniform.GetMappedRange(0, uint64(len(raw)))
	//nolint:gosec // unsafe.Slice over the mapped range
	copy(unsafe.Slice((*byte)(mapped), len(raw)), raw)
	uniform.Unmap()

	entries := make([]wgpu.BindGroupEntry, 0, len(spans)+1)
	for i, s := range spans {
		buf, size := d.dummy, uint64(16)
		if !s.IsZero() {
			b := mustBuffer(s.Buf)
			buf, size = b.buf, b.capacity
		}
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), buf, 0, size))
	}
	entries = append(entries, wgpu.BufferBindingEntry(uint32(len(spans)), uniform, 0, uint64(len(raw))))

	bindGroup := d.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), entries)
	defer bindGroup.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	x, y := workgroups(n)
	pass.DispatchWorkgroups(x, y, 1)
	pass.End()
	d.queue.Submit(encoder.Finish(nil))
	d.launches.Add(1)
}

func mustBuffer(b backend.Buffer) *buffer {
	buf, ok := b.(*buffer)
	if !ok {
		panic(fmt.Sprintf("webgpu: foreign buffer %T", b))
	}
	if buf.freed {
		panic("webgpu: use of freed buffer")
	}
	return buf
}
