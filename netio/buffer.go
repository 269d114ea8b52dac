package netio

// readBuffer tracks the stream's read buffer together with whether the
// framework allocated it (mine=true) or the caller supplied it at
// construction (mine=false). Ownership can flip at runtime: if the
// handler's OnRead swaps the slice header, the stream adopts the new
// slice as caller-owned and frees the old one iff it was mine.
type readBuffer struct {
	buf  []byte
	mine bool
}

func newReadBuffer(caller []byte, internalSize int) readBuffer {
	if caller != nil {
		return readBuffer{buf: caller, mine: false}
	}
	return readBuffer{buf: make([]byte, internalSize), mine: true}
}

// adopt detects a handler-swapped slice (different backing array) and
// updates ownership accordingly. The framework never frees a buffer it
// did not allocate.
func (b *readBuffer) adopt(after []byte) {
	if len(after) > 0 && len(b.buf) > 0 && &after[0] == &b.buf[0] {
		b.buf = after
		return
	}
	b.buf = after
	b.mine = false
}
