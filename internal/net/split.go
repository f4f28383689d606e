package net

import (
	"github.com/born-ml/brew/internal/backend/cpu"
	"github.com/born-ml/brew/internal/blob"
	"github.com/born-ml/brew/internal/config"
	"github.com/born-ml/brew/internal/engine"
)

// split fans a blob out to several consumers that all propagate into it.
// Each consumer reads the shared data through its own part and writes its own
// diff; gather sums the part diffs into the source.
type split[T blob.Float] struct {
	source *blob.Blob[T]
	parts  []*blob.Blob[T]
}

func (s *split[T]) part() *blob.Blob[T] {
	b := blob.New[T]()
	b.ReshapeLike(s.source)
	b.ShareData(s.source)
	s.parts = append(s.parts, b)
	return b
}

func (s *split[T]) gather() {
	if engine.CurrentMode() == engine.GPU {
		dev := engine.Device()
		dst := s.source.MutableGPUDiff()
		dev.Copy(s.parts[0].GPUDiff(), dst)
		for _, p := range s.parts[1:] {
			dev.Axpy(1, p.GPUDiff(), dst)
		}
		return
	}
	dst := s.source.MutableCPUDiff()
	copy(dst, s.parts[0].CPUDiff())
	for _, p := range s.parts[1:] {
		cpu.Axpy(1, p.CPUDiff(), dst)
	}
}

func (s *split[T]) release() {
	for _, p := range s.parts {
		p.Release()
	}
}

// readers counts, per blob name, the bottoms of layers that may run backward
// into it. Accuracy never does.
func readers(conns []config.LayerConnection) map[string]int {
	counts := make(map[string]int)
	for _, conn := range conns {
		if conn.Layer.Type == config.TypeAccuracy {
			continue
		}
		for _, name := range conn.Bottom {
			counts[name]++
		}
	}
	return counts
}
