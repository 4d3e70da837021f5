package embed

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Model asset framing: 4-byte magic, then little-endian dimensionality,
// vocabulary size, and dequantization scale, followed by int8 weights in
// row-major [vocab][dim] order.
var sessionMagic = []byte("QEV1")

const sessionHeaderLen = 4 + 4 + 4 + 4

// Session is a loaded, ready-to-run quantized encoder. Run aggregates the
// dequantized token rows into one fixed-length vector by mean pooling,
// which makes the output a deterministic function of the token-id
// sequence.
type Session struct {
	dim     int
	vocab   int
	scale   float32
	weights []int8
}

// NewSession parses a quantized encoder asset.
func NewSession(data []byte) (*Session, error) {
	if len(data) < sessionHeaderLen {
		return nil, fmt.Errorf("embed: model asset too short (%d bytes)", len(data))
	}
	if string(data[:4]) != string(sessionMagic) {
		return nil, fmt.Errorf("embed: bad model magic %q", data[:4])
	}
	dim := int(binary.LittleEndian.Uint32(data[4:]))
	vocab := int(binary.LittleEndian.Uint32(data[8:]))
	scale := math.Float32frombits(binary.LittleEndian.Uint32(data[12:]))
	if dim <= 0 || vocab <= 0 {
		return nil, fmt.Errorf("embed: invalid model header: dim=%d vocab=%d", dim, vocab)
	}

	want := sessionHeaderLen + dim*vocab
	if len(data) != want {
		return nil, fmt.Errorf("embed: model asset size mismatch: want %d bytes, got %d", want, len(data))
	}

	weights := make([]int8, dim*vocab)
	for i, b := range data[sessionHeaderLen:] {
		weights[i] = int8(b)
	}
	return &Session{dim: dim, vocab: vocab, scale: scale, weights: weights}, nil
}

// Dimensions returns the output vector length.
func (s *Session) Dimensions() int { return s.dim }

// Run encodes a token-id sequence into a single fixed-length vector. Ids
// outside the model's vocabulary are rejected; an empty sequence yields
// the zero vector.
func (s *Session) Run(ids []int32) ([]float32, error) {
	if s.weights == nil {
		return nil, fmt.Errorf("embed: session is closed")
	}
	out := make([]float32, s.dim)
	if len(ids) == 0 {
		return out, nil
	}
	for _, id := range ids {
		if id < 0 || int(id) >= s.vocab {
			return nil, fmt.Errorf("embed: token id %d outside model vocabulary of %d", id, s.vocab)
		}
		row := s.weights[int(id)*s.dim : (int(id)+1)*s.dim]
		for i, w := range row {
			out[i] += float32(w)
		}
	}
	inv := s.scale / float32(len(ids))
	for i := range out {
		out[i] *= inv
	}
	return out, nil
}

// Close releases the session's weights. A closed session cannot Run.
func (s *Session) Close() { s.weights = nil }

// EncodeSessionAsset serializes a quantized weight matrix into the model
// asset format. The export pipeline and tests share this single source of
// truth for the framing.
func EncodeSessionAsset(dim int, scale float32, weights []int8) ([]byte, error) {
	if dim <= 0 || len(weights)%dim != 0 {
		return nil, fmt.Errorf("embed: weight matrix of %d values is not divisible by dim %d", len(weights), dim)
	}
	vocab := len(weights) / dim
	out := make([]byte, 0, sessionHeaderLen+len(weights))
	out = append(out, sessionMagic...)
	out = binary.LittleEndian.AppendUint32(out, uint32(dim))
	out = binary.LittleEndian.AppendUint32(out, uint32(vocab))
	out = binary.LittleEndian.AppendUint32(out, math.Float32bits(scale))
	for _, w := range weights {
		out = append(out, byte(w))
	}
	return out, nil
}
