package protocol

import "fmt"

// InternalKind identifies an internal control message.
type InternalKind uint8

const (
	KindPing InternalKind = 0x00 // Clock probe
	KindPong InternalKind = 0x01 // Reply to a probe
)

// Encoded sizes of internal messages, including the kind byte.
const (
	pingSize = 1 + 1 + 8
	pongSize = 1 + 1 + 8 + 8
)

// String returns the string representation of the kind.
func (k InternalKind) String() string {
	switch k {
	case KindPing:
		return "Ping"
	case KindPong:
		return "Pong"
	default:
		return "Unknown"
	}
}

// Internal is a clock synchronization message. It is produced and consumed
// by clock.Timer and never surfaced to the application.
type Internal struct {
	Kind InternalKind

	// Tick is the sender's tick counter when the Ping was created. A Pong
	// echoes the Ping's tick.
	Tick uint8

	// SendTime is the Ping's wall clock time in milliseconds. A Pong echoes
	// it unchanged.
	SendTime uint64

	// ReplyTime is the responder's wall clock time in milliseconds. Only set
	// on Pong.
	ReplyTime uint64
}

// Ping creates a clock probe.
func Ping(tick uint8, sendTime uint64) Internal {
	return Internal{Kind: KindPing, Tick: tick, SendTime: sendTime}
}

// Pong creates the reply to a probe.
func Pong(tick uint8, echoTime, replyTime uint64) Internal {
	return Internal{Kind: KindPong, Tick: tick, SendTime: echoTime, ReplyTime: replyTime}
}

// String returns a compact description for logs.
func (m Internal) String() string {
	if m.Kind == KindPong {
		return fmt.Sprintf("Pong(%d, %d, %d)", m.Tick, m.SendTime, m.ReplyTime)
	}
	return fmt.Sprintf("%s(%d, %d)", m.Kind, m.Tick, m.SendTime)
}

// EncodedSize returns the payload size of m without the frame tag.
func (m Internal) EncodedSize() int {
	if m.Kind == KindPong {
		return pongSize
	}
	return pingSize
}

// AppendTo appends the payload encoding of m to dst.
func (m Internal) AppendTo(dst []byte) []byte {
	e := NewEncoderTo(dst)
	e.WriteByte(byte(m.Kind))
	e.WriteByte(m.Tick)
	e.WriteUint64(m.SendTime)
	if m.Kind == KindPong {
		e.WriteUint64(m.ReplyTime)
	}
	return e.Bytes()
}

// DecodeInternal decodes an internal message payload from the start of src
// and returns it with the number of bytes consumed.
func DecodeInternal(src []byte) (Internal, int, error) {
	d := NewDecoder(src)
	kind, err := d.ReadByte()
	if err != nil {
		return Internal{}, 0, err
	}
	m := Internal{Kind: InternalKind(kind)}
	if m.Kind != KindPing && m.Kind != KindPong {
		return Internal{}, 0, fmt.Errorf("%w: internal kind 0x%02x", ErrInvalidData, kind)
	}
	if m.Tick, err = d.ReadByte(); err != nil {
		return Internal{}, 0, err
	}
	if m.SendTime, err = d.ReadUint64(); err != nil {
		return Internal{}, 0, err
	}
	if m.Kind == KindPong {
		if m.ReplyTime, err = d.ReadUint64(); err != nil {
			return Internal{}, 0, err
		}
	}
	return m, d.Position(), nil
}
