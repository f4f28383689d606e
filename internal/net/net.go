// Package net wires layers into a feed-forward graph by blob name and drives
// the forward/backward protocol over it.
package net

import (
	"fmt"

	"github.com/born-ml/brew/internal/backend"
	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
	"github.com/born-ml/brew/internal/data"
	"github.com/born-ml/brew/internal/engine"
	"github.com/born-ml/brew/internal/layers"
	"github.com/dustin/go-humanize"
	"github.com/pbnjay/memory"
	log "github.com/sirupsen/logrus"
)

// Net is a built graph of set-up layers.
type Net[T blob.Float] struct {
	name string

	inputs  []*blob.Blob[T]
	outputs []*blob.Blob[T]

	blobs     map[string]*blob.Blob[T]
	blobNames []string

	layers        []layers.Layer[T]
	bottoms       [][]*blob.Blob[T]
	tops          [][]*blob.Blob[T]
	propagate     [][]bool
	needsBackward []bool

	// splits[i] are the fanned-out tops of layer i.
	splits [][]*split[T]
}

// New builds and sets up every layer of param in order.
//
// A bottom receives a gradient iff the layer that produced it needs backward;
// a layer needs backward iff it has parameters or one of its bottoms does.
// A blob read by several layers that propagate into it gets one diff per
// reader, summed into its own diff before its producer runs backward.
func New[T blob.Float](param config.NetParameter, opts ...layers.Option) (*Net[T], error) {
	if err := param.Validate(); err != nil {
		return nil, err
	}
	n := &Net[T]{
		name:  param.Name,
		blobs: make(map[string]*blob.Blob[T]),
	}

	// blobNeedsBackward tracks, per blob name, whether its producer needs backward.
	blobNeedsBackward := make(map[string]bool)
	for _, in := range param.Inputs {
		b := blob.New[T](in.Shape...)
		n.inputs = append(n.inputs, b)
		n.addBlob(in.Name, b)
	}

	fanOut := readers(param.Layers)
	producer := make(map[string]int)
	splits := make(map[string]*split[T])
	consumed := make(map[string]bool)
	for _, conn := range param.Layers {
		l, err := layers.New[T](conn.Layer, opts...)
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("net %q: %w", n.name, err)
		}

		bottom := make([]*blob.Blob[T], len(conn.Bottom))
		flags := make([]bool, len(conn.Bottom))
		needs := false
		for i, name := range conn.Bottom {
			bottom[i] = n.blobs[name]
			flags[i] = blobNeedsBackward[name]
			needs = needs || flags[i]
			consumed[name] = true
			if flags[i] && fanOut[name] > 1 && conn.Layer.Type != config.TypeAccuracy {
				s, ok := splits[name]
				if !ok {
					s = &split[T]{source: bottom[i]}
					splits[name] = s
					p := producer[name]
					n.splits[p] = append(n.splits[p], s)
				}
				bottom[i] = s.part()
			}
		}
		top := make([]*blob.Blob[T], len(conn.Top))
		for i, name := range conn.Top {
			top[i] = blob.New[T]()
			n.addBlob(name, top[i])
			producer[name] = len(n.layers)
		}

		if err := l.SetUp(bottom, top); err != nil {
			n.Close()
			return nil, fmt.Errorf("net %q: %w", n.name, err)
		}
		n.layers = append(n.layers, l)

		needs = needs || len(l.Params()) > 0
		if l.Type() == config.TypeAccuracy {
			needs = false
			clear(flags)
		}
		for _, name := range conn.Top {
			blobNeedsBackward[name] = needs
		}

		n.bottoms = append(n.bottoms, bottom)
		n.tops = append(n.tops, top)
		n.propagate = append(n.propagate, flags)
		n.needsBackward = append(n.needsBackward, needs)
		n.splits = append(n.splits, nil)

		log.WithFields(log.Fields{
			"net":      n.name,
			"layer":    l.Name(),
			"type":     l.Type(),
			"backward": needs,
		}).Debugf("bottoms %v -> tops %v", conn.Bottom, conn.Top)
	}

	for _, name := range n.blobNames {
		if !consumed[name] {
			n.outputs = append(n.outputs, n.blobs[name])
		}
	}

	log.WithFields(log.Fields{
		"net":    n.name,
		"layers": len(n.layers),
		"blobs":  len(n.blobNames),
		"params": len(n.Params()),
	}).Info("net initialized")
	log.WithField("net", n.name).Info(n.MemoryUsage())
	return n, nil
}

func (n *Net[T]) addBlob(name string, b *blob.Blob[T]) {
	n.blobs[name] = b
	n.blobNames = append(n.blobNames, name)
}

// Name returns the net name.
func (n *Net[T]) Name() string { return n.name }

// Inputs returns the externally fed blobs in declaration order.
func (n *Net[T]) Inputs() []*blob.Blob[T] { return n.inputs }

// Outputs returns the blobs no layer consumes.
func (n *Net[T]) Outputs() []*blob.Blob[T] { return n.outputs }

// Layers returns the layers in execution order.
func (n *Net[T]) Layers() []layers.Layer[T] { return n.layers }

// Blob returns the blob with the given name, or nil.
func (n *Net[T]) Blob(name string) *blob.Blob[T] { return n.blobs[name] }

// BlobNames returns blob names in creation order.
func (n *Net[T]) BlobNames() []string { return n.blobNames }

// Bottoms returns the bottom blobs of layer i.
func (n *Net[T]) Bottoms(i int) []*blob.Blob[T] { return n.bottoms[i] }

// Tops returns the top blobs of layer i.
func (n *Net[T]) Tops(i int) []*blob.Blob[T] { return n.tops[i] }

// NeedsBackward reports whether layer i takes part in the backward pass.
func (n *Net[T]) NeedsBackward(i int) bool { return n.needsBackward[i] }

// PropagateDown returns the per-bottom gradient flags of layer i.
func (n *Net[T]) PropagateDown(i int) []bool { return n.propagate[i] }

// Forward copies inputs into the input blobs and runs every layer.
func (n *Net[T]) Forward(inputs ...*blob.Blob[T]) ([]*blob.Blob[T], error) {
	if len(inputs) != len(n.inputs) {
		return nil, fmt.Errorf("net %q: %w: got %d, want %d", n.name, ErrInputCount, len(inputs), len(n.inputs))
	}
	for i, in := range inputs {
		if err := n.inputs[i].CopyFrom(in, false, false); err != nil {
			return nil, fmt.Errorf("net %q: input %d: %w", n.name, i, err)
		}
	}
	return n.ForwardPrefilled(), nil
}

// ForwardPrefilled runs every layer on the current contents of the input blobs.
func (n *Net[T]) ForwardPrefilled() []*blob.Blob[T] {
	for i, l := range n.layers {
		layers.Forward(l, n.bottoms[i], n.tops[i])
	}
	return n.outputs
}

// Backward runs the layers that need it in reverse order and returns the
// summed loss. Loss layers always run so that their loss is reported.
func (n *Net[T]) Backward() T {
	var loss T
	for i := len(n.layers) - 1; i >= 0; i-- {
		l := n.layers[i]
		if !n.needsBackward[i] && !layers.IsLoss(l.Type()) {
			continue
		}
		for _, s := range n.splits[i] {
			s.gather()
		}
		loss += layers.Backward(l, n.tops[i], n.propagate[i], n.bottoms[i])
	}
	return loss
}

// ForwardBackward runs a full pass over the current inputs and returns the loss.
func (n *Net[T]) ForwardBackward() T {
	n.ForwardPrefilled()
	return n.Backward()
}

// Params returns every learnable blob, layer by layer.
func (n *Net[T]) Params() []*blob.Blob[T] {
	var ps []*blob.Blob[T]
	for _, l := range n.layers {
		ps = append(ps, l.Params()...)
	}
	return ps
}

// ParamsLR returns the learning rate multiplier of every blob in Params.
// Layers without configured multipliers report 1.
func (n *Net[T]) ParamsLR() []float64 {
	return n.perParam(func(p config.LayerParameter) []float64 { return p.BlobsLR })
}

// WeightDecay returns the weight decay multiplier of every blob in Params.
func (n *Net[T]) WeightDecay() []float64 {
	return n.perParam(func(p config.LayerParameter) []float64 { return p.WeightDecay })
}

func (n *Net[T]) perParam(get func(config.LayerParameter) []float64) []float64 {
	var out []float64
	for _, l := range n.layers {
		mult := get(l.Param())
		for j := range l.Params() {
			v := 1.0
			if j < len(mult) {
				v = mult[j]
			}
			out = append(out, v)
		}
	}
	return out
}

// Update applies data -= diff to every parameter.
func (n *Net[T]) Update() {
	for _, p := range n.Params() {
		p.Update()
	}
}

// ZeroParamDiffs clears the accumulated parameter gradients.
func (n *Net[T]) ZeroParamDiffs() {
	gpu := engine.CurrentMode() == engine.GPU
	for _, p := range n.Params() {
		if gpu {
			engine.Device().Set(0, p.MutableGPUDiff())
			continue
		}
		clear(p.MutableCPUDiff())
	}
}

// Close releases resources held by layers such as data prefetchers.
func (n *Net[T]) Close() {
	for _, l := range n.layers {
		if c, ok := l.(interface{ Close() }); ok {
			c.Close()
		}
	}
	for _, ss := range n.splits {
		for _, s := range ss {
			s.release()
		}
	}
}

// MemoryReport summarizes the blob storage of a net.
type MemoryReport struct {
	Blobs  uint64
	Params uint64
	System uint64
}

// Total returns blob plus parameter bytes.
func (r MemoryReport) Total() uint64 { return r.Blobs + r.Params }

func (r MemoryReport) String() string {
	s := fmt.Sprintf("memory: blobs %s, params %s, total %s",
		humanize.Bytes(r.Blobs), humanize.Bytes(r.Params), humanize.Bytes(r.Total()))
	if r.System > 0 {
		s += fmt.Sprintf(" (%.4f%% of %s)", 100*float64(r.Total())/float64(r.System), humanize.Bytes(r.System))
	}
	return s
}

// MemoryUsage reports the bytes reserved for data and gradients.
func (n *Net[T]) MemoryUsage() MemoryReport {
	size := uint64(backend.DTypeOf[T]().Size())
	r := MemoryReport{System: memory.TotalMemory()}
	for _, b := range n.blobs {
		r.Blobs += 2 * size * uint64(b.Capacity())
	}
	for _, p := range n.Params() {
		r.Params += 2 * size * uint64(p.Capacity())
	}
	for _, ss := range n.splits {
		for _, s := range ss {
			for _, p := range s.parts {
				r.Blobs += size * uint64(p.Capacity())
			}
		}
	}
	return r
}

// Weights snapshots every parameter blob, grouped by layer name.
func (n *Net[T]) Weights() *data.NetWeights {
	w := &data.NetWeights{Name: n.name}
	for _, l := range n.layers {
		if len(l.Params()) == 0 {
			continue
		}
		lw := &data.LayerWeights{Name: l.Name()}
		for _, p := range l.Params() {
			lw.Blobs = append(lw.Blobs, data.FromBlob(p, false))
		}
		w.Layers = append(w.Layers, lw)
	}
	return w
}

// SetWeights copies a snapshot into the parameters of the layers it names.
// Layers absent from the snapshot keep their values.
func (n *Net[T]) SetWeights(w *data.NetWeights) error {
	byName := make(map[string]layers.Layer[T], len(n.layers))
	for _, l := range n.layers {
		byName[l.Name()] = l
	}
	for _, lw := range w.Layers {
		l, ok := byName[lw.Name]
		if !ok {
			return fmt.Errorf("net %q: %w: unknown layer %q", n.name, ErrWeights, lw.Name)
		}
		params := l.Params()
		if len(lw.Blobs) != len(params) {
			return fmt.Errorf("net %q: %w: layer %q has %d blobs, snapshot %d",
				n.name, ErrWeights, lw.Name, len(params), len(lw.Blobs))
		}
		for j, bp := range lw.Blobs {
			tmp := blob.New[T]()
			if err := data.ToBlob(bp, tmp); err != nil {
				return fmt.Errorf("net %q: layer %q blob %d: %w", n.name, lw.Name, j, err)
			}
			if err := params[j].CopyFrom(tmp, false, false); err != nil {
				return fmt.Errorf("net %q: %w: layer %q blob %d: %v", n.name, ErrWeights, lw.Name, j, err)
			}
		}
	}
	return nil
}

// SaveWeights writes the parameter snapshot to fileName.
func (n *Net[T]) SaveWeights(fileName string) error {
	if err := data.Flush(n.Weights(), fileName); err != nil {
		return err
	}
	log.WithFields(log.Fields{"net": n.name, "file": fileName}).Info("weights saved")
	return nil
}

// LoadWeights reads a snapshot written by SaveWeights.
func (n *Net[T]) LoadWeights(fileName string) error {
	var w data.NetWeights
	if err := data.Load(fileName, &w); err != nil {
		return err
	}
	return n.SetWeights(&w)
}
