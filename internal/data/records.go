// Package data stores training examples and blob snapshots on disk.
//
// Records are protobuf messages: Datum for a single labelled example and
// BlobProto for a dense 4-D array (mean images, infogain matrices). A Store
// is a directory holding one Datum file per key, read back in key order.
package data

import (
	"fmt"
	"os"

	"github.com/born-ml/brew/internal/blob"
	"github.com/golang/protobuf/proto"
)

// Datum is one example: a C×H×W image stored either as raw bytes or as
// floats, plus its class label.
type Datum struct {
	Channels  int32     `protobuf:"varint,1,opt,name=channels,proto3" json:"channels,omitempty"`
	Height    int32     `protobuf:"varint,2,opt,name=height,proto3" json:"height,omitempty"`
	Width     int32     `protobuf:"varint,3,opt,name=width,proto3" json:"width,omitempty"`
	Data      []byte    `protobuf:"bytes,4,opt,name=data,proto3" json:"data,omitempty"`
	Label     int32     `protobuf:"varint,5,opt,name=label,proto3" json:"label,omitempty"`
	FloatData []float32 `protobuf:"fixed32,6,rep,packed,name=float_data,json=floatData,proto3" json:"float_data,omitempty"`
	Filename  string    `protobuf:"bytes,7,opt,name=filename,proto3" json:"filename,omitempty"`
}

// Reset clears the message.
func (m *Datum) Reset() { *m = Datum{} }

// String returns the compact text form.
func (m *Datum) String() string { return proto.CompactTextString(m) }

// ProtoMessage marks Datum as a protobuf message.
func (*Datum) ProtoMessage() {}

// Size returns the number of pixel values.
func (m *Datum) Size() int {
	return int(m.Channels * m.Height * m.Width)
}

// Validate checks that the payload matches the declared dimensions.
func (m *Datum) Validate() error {
	n := m.Size()
	if n <= 0 {
		return fmt.Errorf("datum: invalid dimensions %dx%dx%d", m.Channels, m.Height, m.Width)
	}
	switch {
	case len(m.Data) > 0 && len(m.Data) != n:
		return fmt.Errorf("datum: %d data bytes for %d values", len(m.Data), n)
	case len(m.Data) == 0 && len(m.FloatData) != n:
		return fmt.Errorf("datum: %d float values for %d values", len(m.FloatData), n)
	}
	return nil
}

// Value returns pixel i as a float, whichever encoding is used.
func (m *Datum) Value(i int) float64 {
	if len(m.Data) > 0 {
		return float64(m.Data[i])
	}
	return float64(m.FloatData[i])
}

// BlobProto is the serialized form of a blob.
type BlobProto struct {
	Num      int32     `protobuf:"varint,1,opt,name=num,proto3" json:"num,omitempty"`
	Channels int32     `protobuf:"varint,2,opt,name=channels,proto3" json:"channels,omitempty"`
	Height   int32     `protobuf:"varint,3,opt,name=height,proto3" json:"height,omitempty"`
	Width    int32     `protobuf:"varint,4,opt,name=width,proto3" json:"width,omitempty"`
	Data     []float32 `protobuf:"fixed32,5,rep,packed,name=data,proto3" json:"data,omitempty"`
	Diff     []float32 `protobuf:"fixed32,6,rep,packed,name=diff,proto3" json:"diff,omitempty"`
}

// Reset clears the message.
func (m *BlobProto) Reset() { *m = BlobProto{} }

// String returns the compact text form.
func (m *BlobProto) String() string { return proto.CompactTextString(m) }

// ProtoMessage marks BlobProto as a protobuf message.
func (*BlobProto) ProtoMessage() {}

// Count returns the number of elements the header declares.
func (m *BlobProto) Count() int {
	return int(m.Num * m.Channels * m.Height * m.Width)
}

// ToBlob copies the proto into a blob, reshaping it.
func ToBlob[T blob.Float](m *BlobProto, b *blob.Blob[T]) error {
	if m.Count() <= 0 || len(m.Data) != m.Count() {
		return fmt.Errorf("blob proto: %d values for shape %dx%dx%dx%d", len(m.Data), m.Num, m.Channels, m.Height, m.Width)
	}
	b.Reshape(int(m.Num), int(m.Channels), int(m.Height), int(m.Width))
	dst := b.MutableCPUData()
	for i, v := range m.Data {
		dst[i] = T(v)
	}
	if len(m.Diff) == len(m.Data) {
		diff := b.MutableCPUDiff()
		for i, v := range m.Diff {
			diff[i] = T(v)
		}
	}
	return nil
}

// FromBlob snapshots a blob's data (and diff when withDiff is set).
func FromBlob[T blob.Float](b *blob.Blob[T], withDiff bool) *BlobProto {
	m := &BlobProto{
		Num:      int32(b.Num()),
		Channels: int32(b.Channels()),
		Height:   int32(b.Height()),
		Width:    int32(b.Width()),
		Data:     make([]float32, b.Count()),
	}
	for i, v := range b.CPUData() {
		m.Data[i] = float32(v)
	}
	if withDiff {
		m.Diff = make([]float32, b.Count())
		for i, v := range b.CPUDiff() {
			m.Diff[i] = float32(v)
		}
	}
	return m
}

// Load reads and deserializes a file into a protobuf message.
func Load(fileName string, m proto.Message) error {
	raw, err := os.ReadFile(fileName)
	if err != nil {
		return fmt.Errorf("reading %s: %w", fileName, err)
	}
	if err := proto.Unmarshal(raw, m); err != nil {
		return fmt.Errorf("deserializing %s: %w", fileName, err)
	}
	return nil
}

// Flush serializes a protobuf message into a file.
func Flush(m proto.Message, fileName string) error {
	raw, err := proto.Marshal(m)
	if err != nil {
		return fmt.Errorf("serializing message to %s: %w", fileName, err)
	}
	if err := os.WriteFile(fileName, raw, 0o644); err != nil {
		return fmt.Errorf("saving message to %s: %w", fileName, err)
	}
	return nil
}

// LoadBlob reads a BlobProto file into a new blob.
func LoadBlob[T blob.Float](fileName string) (*blob.Blob[T], error) {
	var m BlobProto
	if err := Load(fileName, &m); err != nil {
		return nil, err
	}
	b := blob.New[T]()
	if err := ToBlob(&m, b); err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	return b, nil
}

// LayerWeights holds the parameter blobs of one layer.
type LayerWeights struct {
	Name  string       `protobuf:"bytes,1,opt,name=name,proto3" json:"name,omitempty"`
	Blobs []*BlobProto `protobuf:"bytes,2,rep,name=blobs,proto3" json:"blobs,omitempty"`
}

// Reset clears the message.
func (m *LayerWeights) Reset() { *m = LayerWeights{} }

// String returns the compact text form.
func (m *LayerWeights) String() string { return proto.CompactTextString(m) }

// ProtoMessage marks LayerWeights as a protobuf message.
func (*LayerWeights) ProtoMessage() {}

// NetWeights is a snapshot of every learnable blob of a net, by layer name.
type NetWeights struct {
	Name   string          `protobuf:"bytes,1,opt,name=name,proto3" json:"name,omitempty"`
	Layers []*LayerWeights `protobuf:"bytes,2,rep,name=layers,proto3" json:"layers,omitempty"`
}

// Reset clears the message.
func (m *NetWeights) Reset() { *m = NetWeights{} }

// String returns the compact text form.
func (m *NetWeights) String() string { return proto.CompactTextString(m) }

// ProtoMessage marks NetWeights as a protobuf message.
func (*NetWeights) ProtoMessage() {}
