package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Codec encodes and decodes application messages of type M.
//
// Payloads are not length-prefixed on the wire, so a codec must be
// self-delimiting: Decode reports how many bytes of src the value used.
// When src holds only a prefix of a valid encoding, Decode must return an
// error wrapping io.ErrUnexpectedEOF; any other failure should wrap
// ErrInvalidData.
type Codec[M any] interface {
	// Append appends the encoding of m to dst.
	Append(dst []byte, m M) ([]byte, error)

	// Decode decodes one value from the start of src and returns it with
	// the number of bytes consumed.
	Decode(src []byte) (M, int, error)
}

// BinaryCodec is a Codec built from a pair of functions over Encoder and
// Decoder. It is the compact choice for fixed message schemas.
type BinaryCodec[M any] struct {
	encode func(*Encoder, M) error
	decode func(*Decoder) (M, error)
}

// NewBinaryCodec creates a binary codec.
//
// Example:
//
//	codec := protocol.NewBinaryCodec(
//	    func(e *protocol.Encoder, p Position) error {
//	        e.WriteFloat32(p.X)
//	        e.WriteFloat32(p.Y)
//	        return nil
//	    },
//	    func(d *protocol.Decoder) (p Position, err error) {
//	        if p.X, err = d.ReadFloat32(); err != nil {
//	            return p, err
//	        }
//	        p.Y, err = d.ReadFloat32()
//	        return p, err
//	    },
//	)
func NewBinaryCodec[M any](encode func(*Encoder, M) error, decode func(*Decoder) (M, error)) *BinaryCodec[M] {
	return &BinaryCodec[M]{encode: encode, decode: decode}
}

// Append implements Codec.
func (c *BinaryCodec[M]) Append(dst []byte, m M) ([]byte, error) {
	e := NewEncoderTo(dst)
	if err := c.encode(e, m); err != nil {
		return dst, err
	}
	return e.Bytes(), nil
}

// Decode implements Codec.
func (c *BinaryCodec[M]) Decode(src []byte) (M, int, error) {
	d := NewDecoder(src)
	m, err := c.decode(d)
	if err != nil {
		var zero M
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return zero, 0, err
		}
		return zero, 0, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return m, d.Position(), nil
}

// JSONCodec encodes messages as JSON values. JSON objects and arrays are
// self-delimiting, which makes it usable without a length prefix. Bare
// numbers at the very end of a buffer cannot be told apart from truncated
// ones, so message types should be structs, slices or maps.
type JSONCodec[M any] struct{}

// Append implements Codec.
func (JSONCodec[M]) Append(dst []byte, m M) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return dst, err
	}
	return append(dst, b...), nil
}

// Decode implements Codec.
func (JSONCodec[M]) Decode(src []byte) (M, int, error) {
	var m M
	dec := json.NewDecoder(bytes.NewReader(src))
	if err := dec.Decode(&m); err != nil {
		var zero M
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return zero, 0, io.ErrUnexpectedEOF
		}
		return zero, 0, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return m, int(dec.InputOffset()), nil
}
