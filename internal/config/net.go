package config

import "fmt"

// Input declares an externally fed blob of a net.
type Input struct {
	Name  string
	Shape []int
}

// LayerConnection places a layer in a net and names the blobs it reads and
// writes.
type LayerConnection struct {
	Layer  LayerParameter
	Bottom []string
	Top    []string
}

// NetParameter describes a whole net.
type NetParameter struct {
	Name   string
	Inputs []Input
	Layers []LayerConnection
}

// Validate checks that every layer is valid and only reads blobs that exist at
// that point of the net.
func (n NetParameter) Validate() error {
	available := make(map[string]bool)
	for _, in := range n.Inputs {
		if in.Name == "" {
			return fmt.Errorf("net %q: unnamed input", n.Name)
		}
		if available[in.Name] {
			return fmt.Errorf("net %q: duplicate input %q", n.Name, in.Name)
		}
		for _, d := range in.Shape {
			if d <= 0 {
				return fmt.Errorf("net %q: input %q has invalid shape %v", n.Name, in.Name, in.Shape)
			}
		}
		available[in.Name] = true
	}

	names := make(map[string]bool)
	for i, conn := range n.Layers {
		p := conn.Layer.Defaults()
		if err := p.Validate(); err != nil {
			return fmt.Errorf("net %q: layer %d: %w", n.Name, i, err)
		}
		if names[p.Name] {
			return fmt.Errorf("net %q: duplicate layer name %q", n.Name, p.Name)
		}
		names[p.Name] = true

		for _, b := range conn.Bottom {
			if !available[b] {
				return fmt.Errorf("net %q: layer %q reads unknown blob %q", n.Name, p.Name, b)
			}
		}
		for _, t := range conn.Top {
			if available[t] {
				return fmt.Errorf("net %q: layer %q writes blob %q in place", n.Name, p.Name, t)
			}
			available[t] = true
		}
	}
	return nil
}
