package ua

// Buffer is a bounded, position-tracking byte buffer used to build and
// consume OPC UA binary messages. It comes in two flavors (Spec Section 4.1):
//
//   - Fixed: a single allocation, capped at creation; Grow always fails.
//   - Growable: grows in increments of its initial size, up to MaximumSize.
//
// Buffer is not safe for concurrent use; callers that share a Buffer across
// goroutines must serialize access themselves (the secure-channel and
// session layers above this package already do, via their single-consumer
// event loops).
type Buffer struct {
	data        []byte
	length      int // logical length (<= cap(data))
	position    int // current read/write cursor
	initialSize int // growth increment; 0 for fixed buffers
	maximumSize int // hard cap; writes beyond this fail
}

// NewFixedBuffer allocates a Buffer that can never grow past size bytes.
func NewFixedBuffer(size int) *Buffer {
	return &Buffer{
		data:        make([]byte, size),
		maximumSize: size,
	}
}

// NewGrowableBuffer allocates a Buffer that starts at initialSize bytes and
// grows in multiples of initialSize, never past maximumSize.
func NewGrowableBuffer(initialSize, maximumSize int) *Buffer {
	if initialSize <= 0 {
		initialSize = 256
	}
	if maximumSize < initialSize {
		maximumSize = initialSize
	}
	return &Buffer{
		data:        make([]byte, initialSize),
		initialSize: initialSize,
		maximumSize: maximumSize,
	}
}

// NewBufferFromBytes wraps an existing slice for reading; the buffer is
// fixed at len(b) and its length is set to len(b) (fully populated, position
// at 0, ready to Read).
func NewBufferFromBytes(b []byte) *Buffer {
	return &Buffer{
		data:        b,
		length:      len(b),
		maximumSize: len(b),
	}
}

// MaximumSize returns the hard cap on this buffer's size.
func (b *Buffer) MaximumSize() int { return b.maximumSize }

// Length returns the logical length of populated data.
func (b *Buffer) Length() int { return b.length }

// Position returns the current read/write cursor.
func (b *Buffer) Position() int { return b.position }

// Remaining returns the number of unread bytes between Position and Length.
func (b *Buffer) Remaining() int { return b.length - b.position }

// SetPosition moves the cursor. Returns ErrPositionOOB if pos > Length.
func (b *Buffer) SetPosition(pos int) error {
	if pos < 0 || pos > b.length {
		return ErrPositionOOB
	}
	b.position = pos
	return nil
}

// SetLength changes the logical length. Growing zero-fills the newly exposed
// region (via growTo); shrinking zeroes the dropped region so stale bytes
// never leak through a later SetLength back up.
func (b *Buffer) SetLength(n int) error {
	if n < 0 || n > b.maximumSize {
		return ErrLengthOOB
	}
	if n > len(b.data) {
		if err := b.growTo(n); err != nil {
			return err
		}
	}
	if n < b.length {
		for i := n; i < b.length; i++ {
			b.data[i] = 0
		}
	}
	b.length = n
	if b.position > n {
		b.position = n
	}
	return nil
}

// Reset clears length and position to zero without releasing the backing
// array, so the buffer can be reused for the next message.
func (b *Buffer) Reset() {
	for i := 0; i < b.length; i++ {
		b.data[i] = 0
	}
	b.length = 0
	b.position = 0
}

// Bytes returns the populated region of the buffer (index 0..Length).
// Callers must not retain the slice past the next mutating call.
func (b *Buffer) Bytes() []byte { return b.data[:b.length] }

// Copy returns an independent Buffer with the same populated contents,
// position, and limits.
func (b *Buffer) Copy() *Buffer {
	cp := &Buffer{
		data:        make([]byte, len(b.data)),
		length:      b.length,
		position:    b.position,
		initialSize: b.initialSize,
		maximumSize: b.maximumSize,
	}
	copy(cp.data, b.data)
	return cp
}

// Write appends p at the current position, growing the buffer if it is
// growable and the write does not exceed MaximumSize. Returns
// ErrWouldOverflow otherwise. Advances Position and Length.
func (b *Buffer) Write(p []byte) (int, error) {
	need := b.position + len(p)
	if need > b.maximumSize {
		return 0, ErrWouldOverflow
	}
	if need > len(b.data) {
		if err := b.growTo(need); err != nil {
			return 0, err
		}
	}
	n := copy(b.data[b.position:need], p)
	b.position += n
	if b.position > b.length {
		b.length = b.position
	}
	return n, nil
}

// Read copies exactly n bytes starting at the current position into a new
// slice and advances Position. Returns ErrLengthOOB if n exceeds the
// remaining populated bytes.
func (b *Buffer) Read(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeLength
	}
	if b.position+n > b.length {
		return nil, ErrLengthOOB
	}
	out := make([]byte, n)
	copy(out, b.data[b.position:b.position+n])
	b.position += n
	return out, nil
}

// growTo grows a growable buffer to at least need bytes, using the smallest
// multiple of initialSize that covers it (or maximumSize, whichever is
// smaller), per Spec Section 4.1's growth policy. Fixed buffers (initialSize
// == 0) never grow.
func (b *Buffer) growTo(need int) error {
	if b.initialSize <= 0 {
		return ErrWouldOverflow
	}
	newCap := ((need + b.initialSize - 1) / b.initialSize) * b.initialSize
	if newCap > b.maximumSize {
		newCap = b.maximumSize
	}
	if newCap < need {
		return ErrWouldOverflow
	}
	grown := make([]byte, newCap)
	copy(grown, b.data[:b.length])
	b.data = grown
	return nil
}
