package protocol

import (
	"errors"
	"io"
	"testing"
)

func TestCodecRoundTripConsumed(t *testing.T) {
	msg := chat{From: "alice", Text: "ready"}

	for name, codec := range testCodecs() {
		t.Run(name, func(t *testing.T) {
			encoded, err := codec.Append(nil, msg)
			if err != nil {
				t.Fatalf("Append() error = %v", err)
			}

			// Trailing bytes belong to the next frame and must not be consumed.
			src := append(append([]byte{}, encoded...), byte(TagInternal), 0x00)
			got, n, err := codec.Decode(src)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != msg {
				t.Errorf("Decode() = %+v, want %+v", got, msg)
			}
			if n != len(encoded) {
				t.Errorf("Decode() consumed %d bytes, want %d", n, len(encoded))
			}
		})
	}
}

func TestCodecTruncated(t *testing.T) {
	msg := chat{From: "bob", Text: "a longer message body"}

	for name, codec := range testCodecs() {
		t.Run(name, func(t *testing.T) {
			encoded, err := codec.Append(nil, msg)
			if err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			for cut := 0; cut < len(encoded); cut++ {
				if _, _, err := codec.Decode(encoded[:cut]); !errors.Is(err, io.ErrUnexpectedEOF) {
					t.Fatalf("Decode(%d of %d bytes) error = %v, want io.ErrUnexpectedEOF", cut, len(encoded), err)
				}
			}
		})
	}
}

func TestCodecInvalid(t *testing.T) {
	tests := []struct {
		name  string
		codec Codec[chat]
		src   []byte
	}{
		{name: "json_syntax", codec: JSONCodec[chat]{}, src: []byte("]")},
		{name: "json_type", codec: JSONCodec[chat]{}, src: []byte(`{"from":3}`)},
		{
			name: "binary_rejected",
			codec: NewBinaryCodec(
				func(*Encoder, chat) error { return nil },
				func(d *Decoder) (chat, error) {
					return chat{}, errors.New("bad magic")
				},
			),
			src: []byte{0x01},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := tc.codec.Decode(tc.src)
			if !errors.Is(err, ErrInvalidData) {
				t.Fatalf("Decode() error = %v, want ErrInvalidData", err)
			}
		})
	}
}

func TestEncoderDecoderPrimitives(t *testing.T) {
	e := NewEncoder()
	e.WriteByte(0x7F)
	e.WriteBool(true)
	e.WriteUvarint(300)
	e.WriteSvarint(-42)
	e.WriteUint16(0xBEEF)
	e.WriteUint32(0xDEADBEEF)
	e.WriteUint64(1 << 60)
	e.WriteInt32(-7)
	e.WriteInt64(-1 << 40)
	e.WriteFloat32(1.5)
	e.WriteFloat64(-2.25)
	e.WriteString("tick")
	e.WriteLenBytes([]byte{1, 2, 3})

	d := NewDecoder(e.Bytes())
	check := func(name string, got, want any, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("%s error = %v", name, err)
		}
		if got != want {
			t.Fatalf("%s = %v, want %v", name, got, want)
		}
	}

	b, err := d.ReadByte()
	check("ReadByte", b, byte(0x7F), err)
	bo, err := d.ReadBool()
	check("ReadBool", bo, true, err)
	uv, err := d.ReadUvarint()
	check("ReadUvarint", uv, uint64(300), err)
	sv, err := d.ReadSvarint()
	check("ReadSvarint", sv, int64(-42), err)
	u16, err := d.ReadUint16()
	check("ReadUint16", u16, uint16(0xBEEF), err)
	u32, err := d.ReadUint32()
	check("ReadUint32", u32, uint32(0xDEADBEEF), err)
	u64, err := d.ReadUint64()
	check("ReadUint64", u64, uint64(1<<60), err)
	i32, err := d.ReadInt32()
	check("ReadInt32", i32, int32(-7), err)
	i64, err := d.ReadInt64()
	check("ReadInt64", i64, int64(-1<<40), err)
	f32, err := d.ReadFloat32()
	check("ReadFloat32", f32, float32(1.5), err)
	f64, err := d.ReadFloat64()
	check("ReadFloat64", f64, -2.25, err)
	s, err := d.ReadString()
	check("ReadString", s, "tick", err)
	lb, err := d.ReadLenBytes()
	if err != nil || len(lb) != 3 || lb[2] != 3 {
		t.Fatalf("ReadLenBytes() = %v, %v", lb, err)
	}

	if d.Remaining() != 0 {
		t.Fatalf("Remaining() = %d, want 0", d.Remaining())
	}
	if _, err := d.ReadByte(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("ReadByte() past end error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestDecoderAllocationLimit(t *testing.T) {
	e := NewEncoder()
	e.WriteUvarint(MaxAllocation + 1)
	d := NewDecoder(e.Bytes())
	if _, err := d.ReadString(); !errors.Is(err, ErrAllocationTooLarge) {
		t.Fatalf("ReadString() error = %v, want ErrAllocationTooLarge", err)
	}
}
