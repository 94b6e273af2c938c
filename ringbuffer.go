package choke

// ringBuffer is a FIFO backed by a circular slice that doubles when full.
type ringBuffer[T any] struct {
	head int
	n    int
	buf  []T
}

func newRingBuffer[T any](capacity int) ringBuffer[T] {
	return ringBuffer[T]{
		buf: make([]T, max(capacity, 1)),
	}
}

func (r *ringBuffer[T]) PushBack(value T) {
	if r.n == len(r.buf) {
		r.grow()
	}
	r.buf[(r.head+r.n)%len(r.buf)] = value
	r.n++
}

func (r *ringBuffer[T]) grow() {
	newBuf := make([]T, max(2*len(r.buf), 1))
	for i := range r.n {
		newBuf[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	r.buf = newBuf
	r.head = 0
}

// PopFront removes and returns the oldest value.
func (r *ringBuffer[T]) PopFront() (T, bool) {
	var zero T
	if r.n == 0 {
		return zero, false
	}
	value := r.buf[r.head]
	// release the slot so the buffer does not pin packet payloads
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.n--
	return value, true
}

func (r *ringBuffer[T]) Peek() (T, bool) {
	if r.n == 0 {
		var zero T
		return zero, false
	}
	return r.buf[r.head], true
}

func (r *ringBuffer[T]) Len() int {
	return r.n
}

func (r *ringBuffer[T]) Empty() bool {
	return r.n == 0
}
