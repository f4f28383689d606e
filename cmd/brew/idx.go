package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	idxImageMagic = 2051
	idxLabelMagic = 2049
)

type idxImages struct {
	rows, cols int
	pixels     [][]byte
}

// readIDXImages reads an IDX3 unsigned-byte image file: a big-endian header
// of magic, count, rows and cols followed by rows·cols bytes per image.
func readIDXImages(r io.Reader) (*idxImages, error) {
	var header [4]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("reading image header: %w", err)
	}
	if header[0] != idxImageMagic {
		return nil, fmt.Errorf("invalid image magic number: got %d, want %d", header[0], idxImageMagic)
	}

	imgs := &idxImages{rows: int(header[2]), cols: int(header[3])}
	imgs.pixels = make([][]byte, header[1])
	for i := range imgs.pixels {
		imgs.pixels[i] = make([]byte, imgs.rows*imgs.cols)
		if _, err := io.ReadFull(r, imgs.pixels[i]); err != nil {
			return nil, fmt.Errorf("reading image %d: %w", i, err)
		}
	}
	return imgs, nil
}

// readIDXLabels reads an IDX1 unsigned-byte label file.
func readIDXLabels(r io.Reader) ([]byte, error) {
	var header [2]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("reading label header: %w", err)
	}
	if header[0] != idxLabelMagic {
		return nil, fmt.Errorf("invalid label magic number: got %d, want %d", header[0], idxLabelMagic)
	}
	labels := make([]byte, header[1])
	if _, err := io.ReadFull(r, labels); err != nil {
		return nil, fmt.Errorf("reading labels: %w", err)
	}
	return labels, nil
}

func openIDX[V any](fileName string, read func(io.Reader) (V, error)) (V, error) {
	var zero V
	f, err := os.Open(fileName)
	if err != nil {
		return zero, err
	}
	defer f.Close()
	v, err := read(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", fileName, err)
	}
	return v, nil
}
