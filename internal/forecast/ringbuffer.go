package forecast

// RingBuffer is a fixed-size circular buffer of float64 values. Add
// overwrites the oldest value; Get returns the oldest value without moving.
type RingBuffer struct {
	buf    []float64
	curPos int
}

// NewRingBuffer copies values into a new buffer of the same length.
func NewRingBuffer(values []float64) *RingBuffer {
	buf := make([]float64, len(values))
	copy(buf, values)
	return &RingBuffer{buf: buf}
}

// Len returns the buffer capacity.
func (r *RingBuffer) Len() int { return len(r.buf) }

// Add overwrites the head and advances the position.
func (r *RingBuffer) Add(v float64) {
	r.buf[r.curPos] = v
	r.curPos++
	if r.curPos >= len(r.buf) {
		r.curPos = 0
	}
}

// Get returns the head, which is the oldest value.
func (r *RingBuffer) Get() float64 {
	return r.buf[r.curPos]
}

// GetAt returns the value pos slots after the head.
func (r *RingBuffer) GetAt(pos int) float64 {
	n := len(r.buf)
	return r.buf[((r.curPos+pos)%n+n)%n]
}

// Values returns the contents ordered from head to tail.
func (r *RingBuffer) Values() []float64 {
	out := make([]float64, 0, len(r.buf))
	out = append(out, r.buf[r.curPos:]...)
	return append(out, r.buf[:r.curPos]...)
}
