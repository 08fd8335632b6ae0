package md

type RingBuffer struct {
	values []Bar
	size   int
	index  int
	filled bool
}

func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1
	}
	return &RingBuffer{
		values: make([]Bar, size),
		size:   size,
	}
}

func (r *RingBuffer) Add(bar Bar) {
	r.values[r.index] = bar
	r.index = (r.index + 1) % r.size
	if r.index == 0 {
		r.filled = true
	}
}

func (r *RingBuffer) Len() int {
	if r.filled {
		return r.size
	}
	return r.index
}

// Window returns the buffered bars oldest first.
func (r *RingBuffer) Window() Window {
	length := r.Len()
	result := make(Window, 0, length)
	if length == 0 {
		return result
	}
	if r.filled {
		result = append(result, r.values[r.index:]...)
	}
	result = append(result, r.values[:r.index]...)
	return result
}

func (r *RingBuffer) Latest() (Bar, bool) {
	if r.Len() == 0 {
		return Bar{}, false
	}
	return r.values[(r.index-1+r.size)%r.size], true
}
