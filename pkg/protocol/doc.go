// Package protocol implements the tickwire wire format.
//
// A connection carries a single byte stream made of frames. Internal control
// frames (clock synchronization) are interleaved with application frames so
// that both share one transport and one ordering.
//
// # Wire Format
//
// Each frame is a one byte tag followed by its payload:
//
//	┌─────────────┬───────────────────────────────────────────────┐
//	│ Tag         │ Payload                                       │
//	│ (1 byte)    │ (self-describing, no length prefix)           │
//	└─────────────┴───────────────────────────────────────────────┘
//
// # Tags
//
//   - TagInternal (0x00): Ping/Pong clock synchronization message
//   - TagMessage (0x01): one application message
//
// The payload length is not stored. It is recovered by decoding the payload
// with the codec for the tag and using the number of bytes the codec consumed.
//
// # Internal Messages
//
//	Ping: [Kind: 0x00][Tick: u8][SendTime: u64]
//	Pong: [Kind: 0x01][Tick: u8][EchoTime: u64][ReplyTime: u64]
//
// Times are wall clock milliseconds since the Unix epoch, big-endian.
//
// # Resynchronization
//
// A frame whose payload fails to decode is skipped one byte at a time: the
// byte after the tag is reinterpreted as the next tag. A frame that is only
// truncated (the codec reports io.ErrUnexpectedEOF) is left in the buffer so
// the remainder can arrive with the next read, as long as it is no larger
// than FrameReader.MaxPending.
//
// # Usage Example
//
//	codec := protocol.JSONCodec[Chat]{}
//	out, _ := protocol.AppendMessage(nil, codec, Chat{Text: "hi"})
//	out = protocol.AppendInternal(out, protocol.Ping(3, 1700000000000))
//
//	var in protocol.Buffer
//	in.Write(out)
//
//	var queue []protocol.Internal
//	reader := protocol.NewFrameReader[Chat](codec)
//	for msg := range reader.Messages(&in, &queue) {
//	    fmt.Println(msg.Text)
//	}
//
// # File Structure
//
//   - buffer.go: cursor-addressed incoming byte arena
//   - encoder.go / decoder.go: binary primitives for payloads
//   - internal.go: Ping/Pong messages
//   - frame.go: tags, frame construction and the frame reader
//   - codec.go: application payload codecs
package protocol
