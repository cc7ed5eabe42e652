package codec

// bitWriter appends values MSB first into a growing byte slice.
type bitWriter struct {
	buf []byte
	n   int
}

func (w *bitWriter) write(v uint64, width int) {
	for i := width - 1; i >= 0; i-- {
		if w.n%8 == 0 {
			w.buf = append(w.buf, 0)
		}

		if v>>uint(i)&1 == 1 {
			w.buf[w.n/8] |= 0x80 >> (w.n % 8)
		}

		w.n++
	}
}

func (w *bitWriter) writeBits(bits []byte, length int) {
	for i := range length {
		var bit uint64
		if bits[i/8]&(0x80>>(i%8)) != 0 {
			bit = 1
		}

		w.write(bit, 1)
	}
}

// bitReader consumes values MSB first.
type bitReader struct {
	buf []byte
	n   int
}

func (r *bitReader) remaining() int {
	return len(r.buf)*8 - r.n
}

func (r *bitReader) read(width int) (uint64, bool) {
	if width > r.remaining() {
		return 0, false
	}

	var v uint64

	for range width {
		v <<= 1
		if r.buf[r.n/8]&(0x80>>(r.n%8)) != 0 {
			v |= 1
		}

		r.n++
	}

	return v, true
}

func (r *bitReader) readBits(length int) ([]byte, bool) {
	if length > r.remaining() {
		return nil, false
	}

	out := make([]byte, (length+7)/8)

	for i := range length {
		if r.buf[r.n/8]&(0x80>>(r.n%8)) != 0 {
			out[i/8] |= 0x80 >> (i % 8)
		}

		r.n++
	}

	return out, true
}
