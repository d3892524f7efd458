package main

import (
	"fmt"

	"github.com/vango-dev/tickwire/pkg/protocol"
)

// Kind identifies a demo message.
type Kind uint8

const (
	KindHello Kind = iota + 1
	KindText
	KindEcho
)

func (k Kind) String() string {
	switch k {
	case KindHello:
		return "hello"
	case KindText:
		return "text"
	case KindEcho:
		return "echo"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Message is what the serve, connect and demo commands exchange.
type Message struct {
	Kind Kind
	Tick uint8
	Text string
}

// messageCodec encodes a Message as kind, tick and a length-prefixed text.
var messageCodec = protocol.NewBinaryCodec(encodeMessage, decodeMessage)

func encodeMessage(e *protocol.Encoder, m Message) error {
	if m.Kind == 0 {
		return fmt.Errorf("message: missing kind")
	}
	e.WriteByte(byte(m.Kind))
	e.WriteByte(m.Tick)
	e.WriteString(m.Text)
	return nil
}

func decodeMessage(d *protocol.Decoder) (Message, error) {
	var m Message
	kind, err := d.ReadByte()
	if err != nil {
		return m, err
	}
	if kind < byte(KindHello) || kind > byte(KindEcho) {
		return m, fmt.Errorf("message: unknown kind %d", kind)
	}
	m.Kind = Kind(kind)
	if m.Tick, err = d.ReadByte(); err != nil {
		return m, err
	}
	if m.Text, err = d.ReadString(); err != nil {
		return m, err
	}
	return m, nil
}
