// Package fast implements the FAST (FIX Adapted for STreaming) binary
// encoding: stop-bit integers and strings, presence maps, and
// template-driven field operators backed by a per-stream context.
package fast

import "math"

/*
 * Stop-bit encoding.
 *
 * Every byte carries seven data bits. The high bit (0x80) is set on the
 * last byte of a field and clear on all others. Signed integers are two's
 * complement, with bit 6 of the first byte acting as the sign.
 *
 * Nullable representations reserve zero for null: unsigned values are
 * shifted up by one, signed non-negative values are shifted up by one, and
 * a nullable string uses 0x80 for null and 0x00 0x80 for the empty string.
 */

const stopBit = 0x80

// maxStopBitBytes bounds a 64-bit integer: ceil(64/7).
const maxStopBitBytes = 10

// AppendUint appends v in stop-bit encoding.
func AppendUint(dst []byte, v uint64) []byte {
	var tmp [maxStopBitBytes]byte
	i := len(tmp) - 1
	tmp[i] = byte(v&0x7f) | stopBit
	for v >>= 7; v != 0; v >>= 7 {
		i--
		tmp[i] = byte(v & 0x7f)
	}
	return append(dst, tmp[i:]...)
}

// AppendInt appends v in signed stop-bit encoding using the fewest bytes
// whose leading data bit matches the sign.
func AppendInt(dst []byte, v int64) []byte {
	var tmp [maxStopBitBytes]byte
	i := len(tmp)
	stop := byte(stopBit)
	for {
		i--
		tmp[i] = byte(v&0x7f) | stop
		stop = 0
		if v >= -64 && v <= 63 {
			break
		}
		v >>= 7
	}
	return append(dst, tmp[i:]...)
}

// AppendNullableUint appends v+1, or 0 for null.
func AppendNullableUint(dst []byte, v uint64, null bool) ([]byte, error) {
	if null {
		return AppendUint(dst, 0), nil
	}
	if v == math.MaxUint64 {
		return dst, ErrOverflow
	}
	return AppendUint(dst, v+1), nil
}

// AppendNullableInt appends v+1 for non-negative v, v for negative v, and
// 0 for null.
func AppendNullableInt(dst []byte, v int64, null bool) ([]byte, error) {
	if null {
		return AppendInt(dst, 0), nil
	}
	if v >= 0 {
		if v == math.MaxInt64 {
			return dst, ErrOverflow
		}
		v++
	}
	return AppendInt(dst, v), nil
}

// AppendASCII appends s. s must be 7-bit and free of NUL bytes.
func AppendASCII(dst []byte, s string, nullable, null bool) ([]byte, error) {
	if null {
		return append(dst, stopBit), nil
	}
	for i := 0; i < len(s); i++ {
		if s[i] == 0 || s[i] >= 0x80 {
			return dst, ErrInvalidValue
		}
	}
	if s == "" {
		if nullable {
			return append(dst, 0x00, stopBit), nil
		}
		return append(dst, stopBit), nil
	}
	dst = append(dst, s[:len(s)-1]...)
	return append(dst, s[len(s)-1]|stopBit), nil
}

// AppendBytes appends a length-prefixed byte vector.
func AppendBytes(dst []byte, b []byte, nullable, null bool) ([]byte, error) {
	var err error
	if nullable {
		if dst, err = AppendNullableUint(dst, uint64(len(b)), null); err != nil || null {
			return dst, err
		}
	} else {
		dst = AppendUint(dst, uint64(len(b)))
	}
	return append(dst, b...), nil
}

// reader consumes stop-bit encoded values from a buffer.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.pos
}

// stopBitField returns the bytes of the next field including the stop byte.
func (r *reader) stopBitField() ([]byte, error) {
	for i := r.pos; i < len(r.buf); i++ {
		if r.buf[i]&stopBit != 0 {
			f := r.buf[r.pos : i+1]
			r.pos = i + 1
			return f, nil
		}
	}
	return nil, ErrTruncated
}

func (r *reader) uint() (uint64, error) {
	f, err := r.stopBitField()
	if err != nil {
		return 0, err
	}
	if len(f) > maxStopBitBytes {
		return 0, ErrOverflow
	}
	var v uint64
	for _, b := range f {
		if v > math.MaxUint64>>7 {
			return 0, ErrOverflow
		}
		v = v<<7 | uint64(b&0x7f)
	}
	return v, nil
}

func (r *reader) int() (int64, error) {
	f, err := r.stopBitField()
	if err != nil {
		return 0, err
	}
	if len(f) > maxStopBitBytes {
		return 0, ErrOverflow
	}
	var v int64
	if f[0]&0x40 != 0 {
		v = -1
	}
	for _, b := range f {
		if v < -(1<<56) || v >= 1<<56 {
			return 0, ErrOverflow
		}
		v = v<<7 | int64(b&0x7f)
	}
	return v, nil
}

func (r *reader) nullableUint() (uint64, bool, error) {
	v, err := r.uint()
	if err != nil || v == 0 {
		return 0, err == nil, err
	}
	return v - 1, false, nil
}

func (r *reader) nullableInt() (int64, bool, error) {
	v, err := r.int()
	switch {
	case err != nil:
		return 0, false, err
	case v == 0:
		return 0, true, nil
	case v > 0:
		return v - 1, false, nil
	default:
		return v, false, nil
	}
}

func (r *reader) ascii(nullable bool) (string, bool, error) {
	f, err := r.stopBitField()
	if err != nil {
		return "", false, err
	}
	if len(f) == 1 && f[0] == stopBit {
		return "", nullable, nil
	}
	if f[0] == 0x00 {
		if nullable && len(f) == 2 && f[1] == stopBit {
			return "", false, nil
		}
		return "", false, ErrInvalidValue
	}
	b := make([]byte, len(f))
	copy(b, f)
	b[len(b)-1] &^= stopBit
	return string(b), false, nil
}

func (r *reader) bytes(nullable bool) ([]byte, bool, error) {
	var n uint64
	if nullable {
		v, null, err := r.nullableUint()
		if err != nil || null {
			return nil, null, err
		}
		n = v
	} else {
		v, err := r.uint()
		if err != nil {
			return nil, false, err
		}
		n = v
	}
	if n > uint64(r.remaining()) {
		return nil, false, ErrTruncated
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, false, nil
}
