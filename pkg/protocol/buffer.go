package protocol

// Buffer is a growable byte arena with a read cursor.
//
// Consumed bytes are not moved on every read; the cursor advances and the
// backing array is compacted only once the dead prefix outgrows the live data.
// The zero value is an empty buffer ready for use.
type Buffer struct {
	data []byte
	off  int
}

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int {
	return len(b.data) - b.off
}

// Bytes returns the unconsumed bytes. The slice is valid until the next
// mutating call.
func (b *Buffer) Bytes() []byte {
	return b.data[b.off:]
}

// Write appends p to the buffer. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

// Reserve returns a writable slice of n bytes past the end of the buffer.
// Bytes written into it become part of the buffer after Commit.
func (b *Buffer) Reserve(n int) []byte {
	if cap(b.data)-len(b.data) < n {
		b.compact()
	}
	if cap(b.data)-len(b.data) < n {
		grown := make([]byte, len(b.data), 2*cap(b.data)+n)
		copy(grown, b.data)
		b.data = grown
	}
	return b.data[len(b.data) : len(b.data)+n]
}

// Commit extends the buffer by n bytes previously written into the slice
// returned by Reserve.
func (b *Buffer) Commit(n int) {
	b.data = b.data[:len(b.data)+n]
}

// Consume discards the first n unconsumed bytes.
func (b *Buffer) Consume(n int) {
	if n <= 0 {
		return
	}
	if n >= b.Len() {
		b.Reset()
		return
	}
	b.off += n
	if b.off > len(b.data)/2 {
		b.compact()
	}
}

// Reset empties the buffer, keeping its capacity.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.off = 0
}

func (b *Buffer) compact() {
	if b.off == 0 {
		return
	}
	n := copy(b.data, b.data[b.off:])
	b.data = b.data[:n]
	b.off = 0
}
