package fast

// pmapWriter collects presence bits in field order.
type pmapWriter struct {
	bits []bool
}

func (w *pmapWriter) set(present bool) {
	w.bits = append(w.bits, present)
}

// pmapStop marks the final byte of a presence map. Presence bits occupy
// the upper seven bits of each byte, most significant first.
const pmapStop = 0x01

// appendTo writes the map seven bits per byte, dropping trailing bytes
// whose bits are all clear, and sets the low bit of the final byte.
func (w *pmapWriter) appendTo(dst []byte) []byte {
	n := (len(w.bits) + 6) / 7
	if n == 0 {
		n = 1
	}
	groups := make([]byte, n)
	for i, b := range w.bits {
		if b {
			groups[i/7] |= 0x80 >> (i % 7)
		}
	}
	for n > 1 && groups[n-1] == 0 {
		n--
	}
	groups = groups[:n]
	groups[n-1] |= pmapStop
	return append(dst, groups...)
}

// pmapReader yields presence bits. Bits beyond the encoded bytes read as
// clear.
type pmapReader struct {
	groups []byte
	idx    int
}

func readPMap(r *reader) (*pmapReader, error) {
	for i := r.pos; i < len(r.buf); i++ {
		if r.buf[i]&pmapStop != 0 {
			pm := &pmapReader{groups: r.buf[r.pos : i+1]}
			r.pos = i + 1
			return pm, nil
		}
	}
	return nil, ErrPresenceMapTruncated
}

func (p *pmapReader) next() bool {
	g := p.idx / 7
	bit := p.idx % 7
	p.idx++
	if g >= len(p.groups) {
		return false
	}
	return p.groups[g]&(0x80>>bit) != 0
}
