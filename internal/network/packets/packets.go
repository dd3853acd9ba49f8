// Package packets defines the geometry replication records a master
// broadcasts to its replicas.
//
// Every record starts with the same little-endian header:
//
//	0  uint16 record ID
//	2  uint32 sequence number, starting at 0 for the Begin record
//	6  uint32 total record length in bytes
package packets

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Record IDs
const (
	RecBegin      uint16 = 0x0B01 // Stream header
	RecBatch      uint16 = 0x0B02 // Vertices committed since the last batch
	RecClear      uint16 = 0x0B03 // Master sink was cleared
	RecEndOfBatch uint16 = 0x0B04 // Replica is consistent with the master
	RecComplete   uint16 = 0x0B05 // Extraction finished, stop receiving
)

// HeaderSize is the size of the common record header.
const HeaderSize = 10

// VertexSize is the encoded size of one vertex: x, y, z, value as float32.
const VertexSize = 16

var (
	// ErrTruncated is returned when a record is shorter than it claims.
	ErrTruncated = errors.New("truncated record")
	// ErrUnknownRecord is returned for an unrecognised record ID.
	ErrUnknownRecord = errors.New("unknown record")
)

// Record is one replication message.
type Record interface {
	ID() uint16
	Sequence() uint32
	SetSequence(seq uint32)
	Size() int
	Encode() []byte
}

// Header is the common record prefix.
type Header struct {
	RecordID uint16
	Seq      uint32
}

// Sequence returns the record's position in the stream.
func (h Header) Sequence() uint32 { return h.Seq }

// SetSequence stamps the record's position in the stream.
func (h *Header) SetSequence(seq uint32) { h.Seq = seq }

func (h Header) encode(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:], h.RecordID)
	binary.LittleEndian.PutUint32(buf[2:], h.Seq)
	binary.LittleEndian.PutUint32(buf[6:], uint32(len(buf)))
}

// Vertex is the wire form of geometry.Vertex.
type Vertex struct {
	X, Y, Z, Value float32
}

func (v Vertex) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(v.X))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(v.Y))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(v.Z))
	binary.LittleEndian.PutUint32(buf[12:], math.Float32bits(v.Value))
}

func decodeVertex(buf []byte) Vertex {
	return Vertex{
		X:     math.Float32frombits(binary.LittleEndian.Uint32(buf[0:])),
		Y:     math.Float32frombits(binary.LittleEndian.Uint32(buf[4:])),
		Z:     math.Float32frombits(binary.LittleEndian.Uint32(buf[8:])),
		Value: math.Float32frombits(binary.LittleEndian.Uint32(buf[12:])),
	}
}

// Begin (RecBegin 0x0B01) opens a stream.
type Begin struct {
	Header
	Stream    [16]byte // stream UUID
	Algorithm [24]byte // algorithm name, zero padded
	Kind      uint8    // geometry.Kind of the sink
	BlockSize uint32
	Version   uint64 // sink version when the stream opened
}

// ID returns RecBegin.
func (p *Begin) ID() uint16 { return RecBegin }

// Size returns record size.
func (p *Begin) Size() int { return HeaderSize + 53 }

// Encode encodes the record.
func (p *Begin) Encode() []byte {
	buf := make([]byte, p.Size())
	p.RecordID = RecBegin
	p.Header.encode(buf)
	copy(buf[10:26], p.Stream[:])
	copy(buf[26:50], p.Algorithm[:])
	buf[50] = p.Kind
	binary.LittleEndian.PutUint32(buf[51:], p.BlockSize)
	binary.LittleEndian.PutUint64(buf[55:], p.Version)
	return buf
}

// SetAlgorithm stores name, truncated to 24 bytes.
func (p *Begin) SetAlgorithm(name string) {
	p.Algorithm = [24]byte{}
	copy(p.Algorithm[:], name)
}

// AlgorithmName returns the algorithm name without padding.
func (p *Begin) AlgorithmName() string {
	n := 0
	for n < len(p.Algorithm) && p.Algorithm[n] != 0 {
		n++
	}
	return string(p.Algorithm[:n])
}

// Batch (RecBatch 0x0B02) carries vertices [First, First+len(Vertices)).
type Batch struct {
	Header
	Version    uint64 // sink version the vertices belong to
	First      uint32 // index of the first vertex
	Primitives uint32 // whole primitives completed by this batch
	Vertices   []Vertex
}

// ID returns RecBatch.
func (p *Batch) ID() uint16 { return RecBatch }

// Size returns record size.
func (p *Batch) Size() int { return HeaderSize + 20 + len(p.Vertices)*VertexSize }

// Encode encodes the record.
func (p *Batch) Encode() []byte {
	buf := make([]byte, p.Size())
	p.RecordID = RecBatch
	p.Header.encode(buf)
	binary.LittleEndian.PutUint64(buf[10:], p.Version)
	binary.LittleEndian.PutUint32(buf[18:], p.First)
	binary.LittleEndian.PutUint32(buf[22:], p.Primitives)
	binary.LittleEndian.PutUint32(buf[26:], uint32(len(p.Vertices)))
	off := 30
	for _, v := range p.Vertices {
		v.encode(buf[off:])
		off += VertexSize
	}
	return buf
}

// Clear (RecClear 0x0B03) tells replicas to drop their vertices.
type Clear struct {
	Header
	Version uint64 // master sink version after the clear
}

// ID returns RecClear.
func (p *Clear) ID() uint16 { return RecClear }

// Size returns record size.
func (p *Clear) Size() int { return HeaderSize + 8 }

// Encode encodes the record.
func (p *Clear) Encode() []byte {
	buf := make([]byte, p.Size())
	p.RecordID = RecClear
	p.Header.encode(buf)
	binary.LittleEndian.PutUint64(buf[10:], p.Version)
	return buf
}

// EndOfBatch (RecEndOfBatch 0x0B04) marks the end of one flush.
type EndOfBatch struct {
	Header
	NumVertices uint32 // master vertex count at the end of the flush
}

// ID returns RecEndOfBatch.
func (p *EndOfBatch) ID() uint16 { return RecEndOfBatch }

// Size returns record size.
func (p *EndOfBatch) Size() int { return HeaderSize + 4 }

// Encode encodes the record.
func (p *EndOfBatch) Encode() []byte {
	buf := make([]byte, p.Size())
	p.RecordID = RecEndOfBatch
	p.Header.encode(buf)
	binary.LittleEndian.PutUint32(buf[10:], p.NumVertices)
	return buf
}

// Complete (RecComplete 0x0B05) ends the stream.
type Complete struct {
	Header
	NumVertices uint32
}

// ID returns RecComplete.
func (p *Complete) ID() uint16 { return RecComplete }

// Size returns record size.
func (p *Complete) Size() int { return HeaderSize + 4 }

// Encode encodes the record.
func (p *Complete) Encode() []byte {
	buf := make([]byte, p.Size())
	p.RecordID = RecComplete
	p.Header.encode(buf)
	binary.LittleEndian.PutUint32(buf[10:], p.NumVertices)
	return buf
}

// Name returns a short record name for logs and metrics.
func Name(id uint16) string {
	switch id {
	case RecBegin:
		return "begin"
	case RecBatch:
		return "batch"
	case RecClear:
		return "clear"
	case RecEndOfBatch:
		return "end_of_batch"
	case RecComplete:
		return "complete"
	default:
		return fmt.Sprintf("0x%04X", id)
	}
}

// Decode parses one record.
func Decode(data []byte) (Record, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, header needs %d", ErrTruncated, len(data), HeaderSize)
	}
	h := Header{
		RecordID: binary.LittleEndian.Uint16(data[0:]),
		Seq:      binary.LittleEndian.Uint32(data[2:]),
	}
	if n := binary.LittleEndian.Uint32(data[6:]); int(n) != len(data) {
		return nil, fmt.Errorf("%w: %s claims %d bytes, got %d", ErrTruncated, Name(h.RecordID), n, len(data))
	}

	var rec Record
	switch h.RecordID {
	case RecBegin:
		p := &Begin{Header: h}
		if err := need(data, p.Size()); err != nil {
			return nil, err
		}
		copy(p.Stream[:], data[10:26])
		copy(p.Algorithm[:], data[26:50])
		p.Kind = data[50]
		p.BlockSize = binary.LittleEndian.Uint32(data[51:])
		p.Version = binary.LittleEndian.Uint64(data[55:])
		rec = p
	case RecBatch:
		p := &Batch{Header: h}
		if len(data) < HeaderSize+20 {
			return nil, fmt.Errorf("%w: batch header needs %d bytes, got %d", ErrTruncated, HeaderSize+20, len(data))
		}
		p.Version = binary.LittleEndian.Uint64(data[10:])
		p.First = binary.LittleEndian.Uint32(data[18:])
		p.Primitives = binary.LittleEndian.Uint32(data[22:])
		count := int(binary.LittleEndian.Uint32(data[26:]))
		if err := need(data, HeaderSize+20+count*VertexSize); err != nil {
			return nil, err
		}
		p.Vertices = make([]Vertex, count)
		for i := range p.Vertices {
			p.Vertices[i] = decodeVertex(data[30+i*VertexSize:])
		}
		rec = p
	case RecClear:
		p := &Clear{Header: h}
		if err := need(data, p.Size()); err != nil {
			return nil, err
		}
		p.Version = binary.LittleEndian.Uint64(data[10:])
		rec = p
	case RecEndOfBatch:
		p := &EndOfBatch{Header: h}
		if err := need(data, p.Size()); err != nil {
			return nil, err
		}
		p.NumVertices = binary.LittleEndian.Uint32(data[10:])
		rec = p
	case RecComplete:
		p := &Complete{Header: h}
		if err := need(data, p.Size()); err != nil {
			return nil, err
		}
		p.NumVertices = binary.LittleEndian.Uint32(data[10:])
		rec = p
	default:
		return nil, fmt.Errorf("%w: ID 0x%04X", ErrUnknownRecord, h.RecordID)
	}
	return rec, nil
}

// need checks that data holds exactly n bytes.
func need(data []byte, n int) error {
	if len(data) != n {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrTruncated, Name(binary.LittleEndian.Uint16(data)), n, len(data))
	}
	return nil
}
