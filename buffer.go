package h1wire

// compactThreshold is the consumed-prefix size past which appendBytes slides
// the unread tail back to the front of the backing array.
const compactThreshold = 4 << 10

// pendingBuffer accumulates unconsumed input for the parser. Bytes are only
// ever appended at the tail and consumed from the head, never rewritten in
// place. Consumed prefixes are reclaimed exclusively inside appendBytes, so
// views handed out by consume stay valid until the next ReceiveData call —
// which is exactly the lifetime promised for Data event bytes.
type pendingBuffer struct {
	data  []byte
	start int
}

func (b *pendingBuffer) appendBytes(p []byte) {
	if b.start >= len(b.data) {
		b.data = b.data[:0]
		b.start = 0
	} else if b.start > compactThreshold {
		n := copy(b.data, b.data[b.start:])
		b.data = b.data[:n]
		b.start = 0
	}
	b.data = append(b.data, p...)
}

// length returns the number of unconsumed bytes.
func (b *pendingBuffer) length() int {
	return len(b.data) - b.start
}

// unread returns a view of the unconsumed bytes without consuming them.
func (b *pendingBuffer) unread() []byte {
	return b.data[b.start:]
}

// consume advances the head by n and returns a view of the consumed bytes.
func (b *pendingBuffer) consume(n int) []byte {
	v := b.data[b.start : b.start+n]
	b.start += n
	return v
}
