package protocol

import (
	"errors"
	"fmt"
	"io"
	"iter"
)

// Tag identifies the kind of frame that follows it.
type Tag uint8

const (
	TagInternal Tag = 0x00 // Ping/Pong control message
	TagMessage  Tag = 0x01 // Application message
)

// DefaultMaxPending is the largest truncated frame (64KB) the reader keeps
// waiting on before falling back to a one byte skip.
const DefaultMaxPending = 64 * 1024

// ErrInvalidData is returned when a payload cannot be encoded or decoded.
var ErrInvalidData = errors.New("protocol: invalid data")

// String returns the string representation of the tag.
func (t Tag) String() string {
	switch t {
	case TagInternal:
		return "Internal"
	case TagMessage:
		return "Message"
	default:
		return "Unknown"
	}
}

// AppendInternal appends an internal frame for m to dst.
func AppendInternal(dst []byte, m Internal) []byte {
	dst = append(dst, byte(TagInternal))
	return m.AppendTo(dst)
}

// AppendMessage appends an application frame for m to dst.
// On error dst is returned unchanged.
func AppendMessage[M any](dst []byte, codec Codec[M], m M) ([]byte, error) {
	out, err := codec.Append(append(dst, byte(TagMessage)), m)
	if err != nil {
		return dst, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return out, nil
}

// FrameReader splits an incoming byte stream into frames. Internal frames
// are queued for the clock; application frames are decoded with Codec.
//
// Frames carry no length prefix. A frame whose decode runs off the end of
// the buffer (io.ErrUnexpectedEOF) is kept for the next read rather than
// skipped, so frames split across reads survive. The trade-off: a stray
// byte that starts an incomplete frame holds back the complete frames
// behind it until more bytes arrive to decode or reject it, or until more
// than MaxPending bytes are buffered and the stray byte is skipped. A
// stray 0x00 followed by a short application frame is read as the start of
// a Pong in this way.
//
// A FrameReader is not safe for concurrent use.
type FrameReader[M any] struct {
	// Codec decodes application payloads.
	Codec Codec[M]

	// MaxPending is the largest truncated trailing frame kept for the next
	// read. Larger ones are resynchronized by skipping a byte.
	// Default: DefaultMaxPending.
	MaxPending int

	skipped uint64
}

// NewFrameReader creates a reader with default limits.
func NewFrameReader[M any](codec Codec[M]) *FrameReader[M] {
	return &FrameReader[M]{Codec: codec, MaxPending: DefaultMaxPending}
}

// Skipped returns the number of bytes discarded by resynchronization.
func (r *FrameReader[M]) Skipped() uint64 {
	return r.skipped
}

// Next scans buf for the next application message. Every internal message
// found before it is appended to queue. All scanned bytes are removed from
// buf whether or not a message was found.
func (r *FrameReader[M]) Next(buf *Buffer, queue *[]Internal) (M, bool) {
	var (
		msg   M
		found bool
	)
	data := buf.Bytes()
	i := 0

scan:
	for i < len(data) {
		switch Tag(data[i]) {
		case TagInternal:
			m, n, err := DecodeInternal(data[i+1:])
			if err == nil {
				*queue = append(*queue, m)
				i += 1 + n
				continue
			}
			if r.pending(err, len(data)-i) {
				break scan
			}

		case TagMessage:
			m, n, err := r.Codec.Decode(data[i+1:])
			if err == nil {
				msg, found = m, true
				i += 1 + n
				break scan
			}
			if r.pending(err, len(data)-i) {
				break scan
			}
		}

		// Unknown tag or undecodable payload: reinterpret the next byte.
		i++
		r.skipped++
	}

	buf.Consume(i)
	return msg, found
}

// Messages returns a sequence that drains every application message
// currently buffered. Each call scans the buffer as it is when iteration
// starts; it is not a persistent cursor.
func (r *FrameReader[M]) Messages(buf *Buffer, queue *[]Internal) iter.Seq[M] {
	return func(yield func(M) bool) {
		for {
			msg, ok := r.Next(buf, queue)
			if !ok || !yield(msg) {
				return
			}
		}
	}
}

// pending reports whether a decode failure is a truncated frame that should
// wait in the buffer for more bytes.
func (r *FrameReader[M]) pending(err error, remaining int) bool {
	limit := r.MaxPending
	if limit <= 0 {
		limit = DefaultMaxPending
	}
	return errors.Is(err, io.ErrUnexpectedEOF) && remaining <= limit
}
